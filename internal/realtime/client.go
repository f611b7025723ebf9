package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"collab-server/services/groupchat-api/internal/domain/identity"
	"collab-server/services/groupchat-api/internal/utils/idgen"
)

// ClientConfig tunes a websocket client.
type ClientConfig struct {
	PingInterval    time.Duration
	PongTimeout     time.Duration
	WriteTimeout    time.Duration
	SendBuffer      int
	MaxMessageBytes int64
}

// Client is one websocket connection of an authenticated identity.
type Client struct {
	id    string
	ident identity.Identity
	ws    *websocket.Conn
	cfg   ClientConfig
	log   zerolog.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient wraps an upgraded websocket connection.
func NewClient(ws *websocket.Conn, ident identity.Identity, cfg ClientConfig, log zerolog.Logger) *Client {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	id := idgen.New("conn")
	return &Client{
		id:    id,
		ident: ident,
		ws:    ws,
		cfg:   cfg,
		log:   log.With().Str("conn_id", id).Str("identity", ident.Key()).Logger(),
		send:  make(chan []byte, cfg.SendBuffer),
		done:  make(chan struct{}),
	}
}

func (c *Client) ID() string                  { return c.id }
func (c *Client) Identity() identity.Identity { return c.ident }

// Send queues a frame. A closed client or a full buffer yields ErrStale.
func (c *Client) Send(frame []byte) error {
	select {
	case <-c.done:
		return ErrStale
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrStale
	default:
		return ErrStale
	}
}

// Emit encodes and queues an event.
func (c *Client) Emit(event string, payload any) error {
	frame, err := EncodeFrame(event, payload)
	if err != nil {
		return err
	}
	return c.Send(frame)
}

// Close stops both pumps and closes the socket. Safe to call repeatedly.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// ReadPump decodes inbound frames and hands them to dispatch one at a time,
// preserving per-connection order. It returns when the socket fails or the
// peer stops answering pings.
func (c *Client) ReadPump(ctx context.Context, dispatch func(ctx context.Context, f Frame)) {
	defer c.Close()

	if c.cfg.MaxMessageBytes > 0 {
		c.ws.SetReadLimit(c.cfg.MaxMessageBytes)
	}
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("websocket read failed")
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))

		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil || f.Event == "" {
			_ = c.Emit(EventError, ErrorPayload{Reason: ReasonInvalidPayload})
			continue
		}
		dispatch(ctx, f)
	}
}

// WritePump drains the send buffer and keeps the connection alive with
// pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					c.log.Debug().Err(err).Msg("websocket write failed")
				}
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
