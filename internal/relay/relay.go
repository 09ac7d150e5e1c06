// Package relay carries hub emissions across server instances over NATS.
// Each instance publishes its bridge output onto a shared subject and
// replays envelopes from other instances into its local hub, so a client
// connected to any instance sees every topic event. Envelopes are tagged
// with the origin instance to avoid double delivery.
package relay

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/showroomhq/testdrive-core/pkg/logger"
)

const broadcastSubject = "testdrive.broadcast"

type envelope struct {
	Origin  string          `json:"origin"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// LocalHub is the subset of the hub the relay feeds remote events into.
type LocalHub interface {
	Publish(topic string, payload []byte)
}

type Relay struct {
	conn       *nats.Conn
	instanceID string
	sub        *nats.Subscription
}

func Connect(url, instanceID string) (*Relay, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("relay: connect to NATS: %w", err)
	}
	return &Relay{conn: conn, instanceID: instanceID}, nil
}

// Publish sends a topic payload to every other instance. Failures are
// logged, never propagated: cross-instance fan-out is best-effort and must
// not fail the triggering business operation.
func (r *Relay) Publish(topic string, payload []byte) {
	env := envelope{Origin: r.instanceID, Topic: topic, Payload: payload}
	data, err := json.Marshal(env)
	if err != nil {
		logger.Error("relay: marshal envelope", "topic", topic, "error", err)
		return
	}
	if err := r.conn.Publish(broadcastSubject, data); err != nil {
		logger.Warn("relay: publish failed", "topic", topic, "error", err)
	}
}

// Start subscribes to the broadcast subject and replays remote envelopes
// into the local hub. Envelopes originating from this instance are skipped;
// the bridge already delivered them locally.
func (r *Relay) Start(local LocalHub) error {
	sub, err := r.conn.Subscribe(broadcastSubject, func(msg *nats.Msg) {
		var env envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			logger.Warn("relay: bad envelope", "error", err)
			return
		}
		if env.Origin == r.instanceID {
			return
		}
		local.Publish(env.Topic, env.Payload)
	})
	if err != nil {
		return fmt.Errorf("relay: subscribe: %w", err)
	}
	r.sub = sub
	return nil
}

func (r *Relay) Close() {
	if r.sub != nil {
		_ = r.sub.Unsubscribe()
	}
	r.conn.Close()
}
