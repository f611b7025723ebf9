package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"collab-server/services/groupchat-api/internal/domain/events"
	"collab-server/services/groupchat-api/internal/domain/message"
	"collab-server/services/groupchat-api/internal/infrastructure/metrics"
	"collab-server/services/groupchat-api/internal/interfaces/httpserver/requests"
	"collab-server/services/groupchat-api/internal/interfaces/httpserver/responses"
	"collab-server/services/groupchat-api/internal/utils/platformerrors"
)

// MessageHandler exposes the stateless message endpoints.
type MessageHandler struct {
	pipeline message.Pipeline
	history  message.History
	log      zerolog.Logger
}

// NewMessageHandler constructs the handler.
func NewMessageHandler(pipeline message.Pipeline, history message.History, log zerolog.Logger) *MessageHandler {
	return &MessageHandler{
		pipeline: pipeline,
		history:  history,
		log:      log.With().Str("handler", "message").Logger(),
	}
}

// List handles GET /v1/groups/:groupId/messages
// @Summary List group messages
// @Description Returns up to limit messages before the cursor, oldest first. before is a message id or an ISO-8601 timestamp.
// @Tags Messages
// @Produce json
// @Param groupId path int true "Group ID"
// @Param limit query int false "Page size (default 50, max 200)"
// @Param before query string false "Message id or timestamp cursor"
// @Success 200 {array} message.View
// @Failure 400 {object} responses.ErrorResponse
// @Failure 403 {object} responses.ErrorResponse
// @Failure 500 {object} responses.ErrorResponse
// @Security BearerAuth
// @Router /v1/groups/{groupId}/messages [get]
func (h *MessageHandler) List(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}
	groupID, ok := pathID(c, "groupId")
	if !ok {
		return
	}

	// A non-numeric limit falls back to the default page size.
	limit, _ := strconv.Atoi(c.Query("limit"))

	start := time.Now()
	views, err := h.history.List(c.Request.Context(), ident, groupID, message.HistoryQuery{
		Limit:  limit,
		Before: c.Query("before"),
	})
	metrics.HistoryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		responses.HandleError(c, err, "failed to list messages")
		return
	}
	if views == nil {
		views = []message.View{}
	}
	c.JSON(http.StatusOK, views)
}

// Send handles POST /v1/groups/:groupId/messages
// @Summary Post a message
// @Description Persists a message and broadcasts it to the group's live room. Members only.
// @Tags Messages
// @Accept json
// @Produce json
// @Param groupId path int true "Group ID"
// @Param request body requests.SendMessageRequest true "Message"
// @Success 201 {object} message.View
// @Failure 400 {object} responses.ErrorResponse
// @Failure 403 {object} responses.ErrorResponse
// @Failure 500 {object} responses.ErrorResponse
// @Security BearerAuth
// @Router /v1/groups/{groupId}/messages [post]
func (h *MessageHandler) Send(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}
	groupID, ok := pathID(c, "groupId")
	if !ok {
		return
	}

	var req requests.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, message.ReasonTextRequired, "message-send-bind-001")
		return
	}

	view, err := h.pipeline.Send(c.Request.Context(), ident, message.SendInput{
		GroupID: groupID,
		Text:    req.Text,
		Meta:    req.Meta,
	}, events.TransportHTTP)
	if err != nil {
		responses.HandleError(c, err, "failed to send message")
		return
	}
	c.JSON(http.StatusCreated, view)
}
