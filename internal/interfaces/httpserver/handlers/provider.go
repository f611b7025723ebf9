package handlers

import (
	"github.com/google/wire"
	"github.com/rs/zerolog"

	"collab-server/services/groupchat-api/internal/domain/group"
	"collab-server/services/groupchat-api/internal/domain/message"
	"collab-server/services/groupchat-api/internal/infrastructure/auth"
	"collab-server/services/groupchat-api/internal/realtime"
)

// Provider holds all HTTP handlers.
type Provider struct {
	Group   *GroupHandler
	Message *MessageHandler
	Socket  *SocketHandler
}

// NewProvider creates a new handler provider.
func NewProvider(
	groups group.Service,
	pipeline message.Pipeline,
	history message.History,
	validator *auth.Validator,
	gateway *realtime.Gateway,
	log zerolog.Logger,
) *Provider {
	return &Provider{
		Group:   NewGroupHandler(groups, log),
		Message: NewMessageHandler(pipeline, history, log),
		Socket:  NewSocketHandler(validator, gateway, log),
	}
}

// HandlerProvider provides all handlers for wire.
var HandlerProvider = wire.NewSet(
	NewProvider,
)
