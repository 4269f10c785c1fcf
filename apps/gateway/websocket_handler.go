package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mahaj/chatcore/pkg/model"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	sendBuffer = 256

	// Bound on the store work one inbound event may trigger.
	eventTimeout = 5 * time.Second
)

var (
	errSendBufferFull = errors.New("send buffer full")
	errClientClosed   = errors.New("client closed")
)

// Client is one websocket connection. It is the registry session for its
// user once a join event has been accepted.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	id   string

	// userID is fixed by the token at upgrade time.
	userID string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	limiter *rate.Limiter

	mu     sync.Mutex
	joined bool
}

func newClient(h *Hub, conn *websocket.Conn, userID string) *Client {
	lim := rate.NewLimiter(rate.Inf, 0)
	if h.eventRate > 0 {
		lim = rate.NewLimiter(h.eventRate, h.eventBurst)
	}
	return &Client{
		hub:     h,
		conn:    conn,
		id:      uuid.NewString(),
		userID:  userID,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		limiter: lim,
	}
}

func (c *Client) ID() string { return c.id }

// Send queues one frame. It never blocks: a slow client loses frames
// rather than stalling the fanout.
func (c *Client) Send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(model.Frame{Event: event, Data: data})
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return errSendBufferFull
	}
}

func (c *Client) sendError(err error) {
	var de *model.Error
	msg := "internal error"
	if errors.As(err, &de) {
		msg = de.Message
	}
	c.Send(model.EventError, model.ErrorPayload{Code: model.KindOf(err), Message: msg})
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) isJoined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined
}

// readPump pumps frames from the websocket connection into the core.
func (c *Client) readPump() {
	log := c.hub.log.With(slog.String("user_id", c.userID), slog.String("session_id", c.id))
	defer func() {
		if c.isJoined() {
			ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
			c.hub.core.Leave(ctx, c.userID, c)
			cancel()
		}
		c.close()
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn("websocket read failed", slog.Any("error", err))
			}
			return
		}

		var frame model.Frame
		if err := json.Unmarshal(message, &frame); err != nil || frame.Event == "" {
			c.sendError(model.InvalidArgument("malformed frame"))
			continue
		}
		if !c.limiter.Allow() {
			c.Send(model.EventError, model.ErrorPayload{Code: "rate_limited", Message: "too many events"})
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		err = c.handle(ctx, frame)
		cancel()
		if err != nil {
			if model.KindOf(err) == model.KindInternal {
				log.Error("event failed", slog.String("event", frame.Event), slog.Any("error", err))
			}
			c.sendError(err)
		}
	}
}

func (c *Client) handle(ctx context.Context, frame model.Frame) error {
	if frame.Event == model.EventJoin {
		return c.join(ctx, frame.Data)
	}
	if !c.isJoined() {
		return model.InvalidArgument("join before sending %s", frame.Event)
	}

	switch frame.Event {
	case model.EventTypingStart, model.EventTypingStop:
		var p model.TypingPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			return model.InvalidArgument("malformed %s payload", frame.Event)
		}
		c.hub.core.Typing(ctx, c.userID, p, frame.Event == model.EventTypingStart)
		return nil

	case model.EventMessageDelivered, model.EventMessageSeen:
		var p model.ReceiptPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil || p.MessageID <= 0 {
			return model.InvalidArgument("malformed %s payload", frame.Event)
		}
		mark := c.hub.core.Delivery.MarkDelivered
		if frame.Event == model.EventMessageSeen {
			mark = c.hub.core.Delivery.MarkSeen
		}
		_, err := mark(ctx, p.MessageID, c.userID)
		return err

	case model.EventCallUser, model.EventAnswerCall, model.EventICECandidate, model.EventEndCall:
		var p model.CallSignal
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			return model.InvalidArgument("malformed %s payload", frame.Event)
		}
		return c.hub.core.Signal(ctx, c.userID, frame.Event, p)

	default:
		return model.InvalidArgument("unknown event %q", frame.Event)
	}
}

// join binds this connection to the token's user. A join naming another
// user is refused.
func (c *Client) join(ctx context.Context, data json.RawMessage) error {
	var p model.JoinPayload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &p); err != nil {
			return model.InvalidArgument("malformed join payload")
		}
	}
	if p.UserID != "" && p.UserID != c.userID {
		return model.Forbidden("cannot join as another user")
	}

	res, err := c.hub.core.Join(ctx, c.userID, c)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.joined = true
	c.mu.Unlock()

	if res.Superseded != nil {
		c.hub.log.Info("session superseded",
			slog.String("user_id", c.userID),
			slog.String("previous_session_id", res.Superseded.ID()),
			slog.String("session_id", c.id),
		)
	}
	return nil
}

// writePump pumps queued frames to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}
