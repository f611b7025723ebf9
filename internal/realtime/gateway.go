package realtime

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"collab-server/services/groupchat-api/internal/domain/identity"
	"collab-server/services/groupchat-api/internal/infrastructure/metrics"
)

// Gateway upgrades authenticated requests and runs their connections.
type Gateway struct {
	hub        *Hub
	dispatcher *Dispatcher
	upgrader   websocket.Upgrader
	cfg        ClientConfig
	log        zerolog.Logger
}

// NewGateway creates the websocket gateway. allowedOrigins may contain "*".
func NewGateway(hub *Hub, dispatcher *Dispatcher, cfg ClientConfig, allowedOrigins []string, log zerolog.Logger) *Gateway {
	return &Gateway{
		hub:        hub,
		dispatcher: dispatcher,
		cfg:        cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: log.With().Str("component", "realtime-gateway").Logger(),
	}
}

// Serve upgrades the request and blocks until the connection ends. The
// identity must already be verified.
func (g *Gateway) Serve(w http.ResponseWriter, r *http.Request, ident identity.Identity) error {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := NewClient(ws, ident, g.cfg, g.log)
	g.hub.Register(client)
	metrics.RecordConnectionOpened()
	client.log.Info().Msg("websocket connected")

	defer func() {
		g.hub.Disconnect(client)
		metrics.RecordConnectionClosed()
		client.log.Info().Msg("websocket disconnected")
	}()

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	go func() {
		<-client.Done()
		cancel()
	}()

	go client.WritePump()
	client.ReadPump(ctx, func(ctx context.Context, f Frame) {
		g.dispatcher.Dispatch(ctx, client, f)
	})
	return nil
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	normalized := make([]string, 0, len(allowed))
	for _, o := range allowed {
		normalized = append(normalized, strings.TrimRight(strings.ToLower(strings.TrimSpace(o)), "/"))
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return slices.Contains(normalized, strings.ToLower(u.Scheme+"://"+u.Host))
	}
}
