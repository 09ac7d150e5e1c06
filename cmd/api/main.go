package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/showroomhq/testdrive-core/internal/bridge"
	"github.com/showroomhq/testdrive-core/internal/hold"
	"github.com/showroomhq/testdrive-core/internal/http/handlers"
	"github.com/showroomhq/testdrive-core/internal/hub"
	"github.com/showroomhq/testdrive-core/internal/ratelimit"
	"github.com/showroomhq/testdrive-core/internal/relay"
	repo "github.com/showroomhq/testdrive-core/internal/repo/postgres"
	"github.com/showroomhq/testdrive-core/internal/session"
	"github.com/showroomhq/testdrive-core/internal/ws"
	"github.com/showroomhq/testdrive-core/pkg/config"
	"github.com/showroomhq/testdrive-core/pkg/database"
	"github.com/showroomhq/testdrive-core/pkg/logger"
	mw "github.com/showroomhq/testdrive-core/pkg/middleware"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Persistence collaborator
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	bookingRepo := repo.NewBookingRepo(pool)

	// Redis backs the session rate limiter; a missing Redis degrades to
	// unlimited issuance rather than refusing to start.
	var rdb *redis.Client
	if opt, err := redis.ParseURL(cfg.Redis.URL); err == nil {
		client := redis.NewClient(opt)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, session rate limiting disabled", "error", err)
		} else {
			rdb = client
			defer client.Close()
		}
		cancel()
	} else {
		logger.Warn("invalid REDIS_URL, session rate limiting disabled", "error", err)
	}

	// Broadcast plane
	broadcastHub := hub.New()
	eventBridge := bridge.New(broadcastHub)

	var natsRelay *relay.Relay
	if cfg.NATS.URL != "" {
		instanceID := cfg.NATS.InstanceID
		if instanceID == "" {
			instanceID = uuid.New().String()
		}
		natsRelay, err = relay.Connect(cfg.NATS.URL, instanceID)
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsRelay.Close()
		if err := natsRelay.Start(broadcastHub); err != nil {
			logger.Error("failed to start broadcast relay", "error", err)
			os.Exit(1)
		}
		eventBridge.WithBackbone(natsRelay)
		logger.Info("broadcast relay connected", "instance_id", instanceID)
	}

	// Hold coordination
	holdStore := hold.NewStore()
	holdManager := hold.NewManager(holdStore, bookingRepo, eventBridge, cfg.Hold.TTL)
	sweeper := hold.NewSweeper(holdStore, eventBridge, cfg.Hold.SweepInterval)

	// Transport
	sessions := session.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	limiter := ratelimit.New(rdb, cfg.RateLimit.SessionRequests, cfg.RateLimit.SessionWindow)
	wsServer := ws.NewServer(broadcastHub, holdManager, sessions)
	h := handlers.New(sessions, limiter, holdManager, eventBridge)

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/ws", wsServer.ServeWS)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/sessions", h.CreateSession)
		r.Post("/notifications", h.PublishNotification)
		r.Route("/bookings/{id}", func(r chi.Router) {
			r.Post("/cancel", h.CancelBooking)
			r.Patch("/status", h.UpdateBookingStatus)
			r.Post("/assign", h.AssignBooking)
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", "addr", srv.Addr, "hold_ttl", cfg.Hold.TTL.String(), "sweep_interval", cfg.Hold.SweepInterval.String())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		if err := sweeper.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}
