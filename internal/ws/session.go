package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/showroomhq/testdrive-core/internal/domain"
	"github.com/showroomhq/testdrive-core/internal/http/response"
	"github.com/showroomhq/testdrive-core/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

var errSlowConsumer = errors.New("send buffer full")

// Conn is one live websocket connection. It owns its outbound queue: the
// hub and the dispatch loop both enqueue, the write pump alone touches the
// socket. A consumer that cannot drain its queue is dropped rather than
// allowed to stall fan-out for everyone else.
type Conn struct {
	id        string
	sessionID string // wizard session owning this connection's hold ops
	sock      *websocket.Conn
	server    *Server
	send      chan []byte
	closeOnce sync.Once
}

// Send implements hub.Sender. The payload is wrapped in an object keyed by
// the topic name so clients can route by channel.
func (c *Conn) Send(topic string, payload []byte) error {
	msg, err := json.Marshal(map[string]json.RawMessage{topic: payload})
	if err != nil {
		return err
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return errSlowConsumer
	}
}

func (c *Conn) reply(msg serverMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("marshal ws reply", "conn_id", c.id, "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		// Queue full; the read side will tear the connection down soon.
	}
}

func (c *Conn) replyError(id string, err error) {
	c.reply(serverMessage{
		Event: eventError,
		ID:    id,
		Data:  errorData{Code: response.CodeFor(err), Message: err.Error()},
	})
}

// Close implements hub.Sender. The hub calls it when a delivery to this
// connection fails, so the socket is torn down and the client reconnects
// rather than keeping a connection the hub no longer delivers to. Only the
// socket is closed here; closing it unblocks the read pump, whose teardown
// owns the send channel.
func (c *Conn) Close() {
	c.server.hub.DropConnection(c.id)
	_ = c.sock.Close()
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		c.server.hub.DropConnection(c.id)
		close(c.send)
		_ = c.sock.Close()
	})
}

func (c *Conn) readPump() {
	defer c.close()

	c.sock.SetReadLimit(maxMessageSize)
	_ = c.sock.SetReadDeadline(time.Now().Add(pongWait))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket closed unexpectedly", "conn_id", c.id, "error", err)
			}
			return
		}
		c.dispatch(data)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.sock.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.sock.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.sock.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) dispatch(data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply(serverMessage{
			Event: eventError,
			Data:  errorData{Code: response.CodeInvalidInput, Message: "malformed message"},
		})
		return
	}

	ctx := context.WithValue(context.Background(), logger.ConnIDKey, c.id)
	ctx = context.WithValue(ctx, logger.SessionIDKey, c.sessionID)

	switch msg.Action {
	case actionSubscribe:
		if msg.Channel == "" {
			c.replyInvalid(msg.ID, "channel required")
			return
		}
		c.server.hub.Subscribe(c.id, msg.Channel)
		c.reply(serverMessage{Event: eventSubscribed, ID: msg.ID, Data: channelData{Channel: msg.Channel}})

	case actionUnsubscribe:
		if msg.Channel == "" {
			c.replyInvalid(msg.ID, "channel required")
			return
		}
		c.server.hub.Unsubscribe(c.id, msg.Channel)
		c.reply(serverMessage{Event: eventUnsubscribed, ID: msg.ID, Data: channelData{Channel: msg.Channel}})

	case actionAcquire:
		var req acquireRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.replyInvalid(msg.ID, "malformed acquire request")
			return
		}
		slot := domain.SlotKey{
			ShowroomID: req.ShowroomID,
			Date:       req.Date,
			StartTime:  req.StartTime,
			CarModelID: req.CarModelID,
		}
		if !slot.Valid() {
			c.replyInvalid(msg.ID, "showroom_id, date, and start_time are required")
			return
		}
		h, err := c.server.holds.Acquire(ctx, slot, c.sessionID)
		if err != nil {
			c.replyError(msg.ID, err)
			return
		}
		c.reply(serverMessage{Event: eventResult, ID: msg.ID, Data: holdToData(h)})

	case actionRenew:
		var req holdRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil || req.HoldID == "" {
			c.replyInvalid(msg.ID, "hold_id required")
			return
		}
		h, err := c.server.holds.Renew(ctx, req.HoldID, c.sessionID)
		if err != nil {
			c.replyError(msg.ID, err)
			return
		}
		c.reply(serverMessage{Event: eventResult, ID: msg.ID, Data: holdToData(h)})

	case actionRelease:
		var req holdRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil || req.HoldID == "" {
			c.replyInvalid(msg.ID, "hold_id required")
			return
		}
		if err := c.server.holds.Release(ctx, req.HoldID, c.sessionID); err != nil {
			c.replyError(msg.ID, err)
			return
		}
		c.reply(serverMessage{Event: eventResult, ID: msg.ID, Data: map[string]bool{"released": true}})

	case actionConvert:
		var req convertRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil || req.HoldID == "" {
			c.replyInvalid(msg.ID, "hold_id required")
			return
		}
		booking, err := c.server.holds.Convert(ctx, req.HoldID, c.sessionID, req.Customer)
		if err != nil {
			c.replyError(msg.ID, err)
			return
		}
		c.reply(serverMessage{Event: eventResult, ID: msg.ID, Data: booking})

	default:
		c.replyInvalid(msg.ID, "unknown action: "+msg.Action)
	}
}

func (c *Conn) replyInvalid(id, message string) {
	c.reply(serverMessage{
		Event: eventError,
		ID:    id,
		Data:  errorData{Code: response.CodeInvalidInput, Message: message},
	})
}
