package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"collab-server/services/groupchat-api/internal/domain/events"
	"collab-server/services/groupchat-api/internal/infrastructure/auth"
	"collab-server/services/groupchat-api/internal/realtime"
)

// SocketHandler authenticates the websocket handshake and hands the
// connection to the realtime gateway.
type SocketHandler struct {
	validator *auth.Validator
	gateway   *realtime.Gateway
	log       zerolog.Logger
}

// NewSocketHandler constructs the handler.
func NewSocketHandler(validator *auth.Validator, gateway *realtime.Gateway, log zerolog.Logger) *SocketHandler {
	return &SocketHandler{
		validator: validator,
		gateway:   gateway,
		log:       log.With().Str("handler", "socket").Logger(),
	}
}

// Serve handles GET /v1/socket
// @Summary Open the live chat connection
// @Description Upgrades to a websocket. The token is read from the Authorization header or the token query parameter.
// @Tags Realtime
// @Param token query string false "Bearer token"
// @Success 101
// @Failure 401 {object} responses.ErrorResponse
// @Router /v1/socket [get]
func (h *SocketHandler) Serve(c *gin.Context) {
	ident, err := h.validator.Verify(c.Request.Context(), auth.TokenFromRequest(c.Request))
	if err != nil {
		h.validator.Reject(c, err, events.TransportSocket)
		return
	}

	if err := h.gateway.Serve(c.Writer, c.Request, ident); err != nil {
		// The upgrader has already written the handshake failure.
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
	}
}
