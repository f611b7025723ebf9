package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"collab-server/services/groupchat-api/internal/domain/events"
	"collab-server/services/groupchat-api/internal/domain/membership"
	"collab-server/services/groupchat-api/internal/domain/message"
	"collab-server/services/groupchat-api/internal/infrastructure/metrics"
	"collab-server/services/groupchat-api/internal/infrastructure/observability"
	"collab-server/services/groupchat-api/internal/utils/platformerrors"
)

type groupRequest struct {
	GroupID GroupID `json:"groupId" validate:"required,gt=0"`
}

type sendRequest struct {
	GroupID GroupID         `json:"groupId" validate:"required,gt=0"`
	Text    string          `json:"text"`
	Meta    json.RawMessage `json:"meta"`
}

// Dispatcher executes inbound websocket events on behalf of a client.
type Dispatcher struct {
	hub      *Hub
	oracle   membership.Oracle
	pipeline message.Pipeline
	history  message.History
	observer events.Observer
	validate *validator.Validate
	log      zerolog.Logger
}

// NewDispatcher creates the websocket event dispatcher.
func NewDispatcher(hub *Hub, oracle membership.Oracle, pipeline message.Pipeline, history message.History, observer events.Observer, log zerolog.Logger) *Dispatcher {
	if observer == nil {
		observer = events.Nop
	}
	return &Dispatcher{
		hub:      hub,
		oracle:   oracle,
		pipeline: pipeline,
		history:  history,
		observer: observer,
		validate: validator.New(),
		log:      log.With().Str("component", "realtime-dispatcher").Logger(),
	}
}

// Dispatch handles one inbound frame. Failures are reported to the client as
// error frames and never close the connection.
func (d *Dispatcher) Dispatch(ctx context.Context, c *Client, f Frame) {
	ctx, span := observability.StartSocketEventSpan(ctx, f.Event, c.ID())
	defer span.End()

	switch f.Event {
	case EventJoinGroup:
		var req groupRequest
		if !d.decode(c, f.Data, &req) {
			return
		}
		span.SetAttributes(observability.GroupAttribute(int64(req.GroupID)))
		observability.RecordError(span, d.join(ctx, c, int64(req.GroupID)))
	case EventLeaveGroup:
		var req groupRequest
		if !d.decode(c, f.Data, &req) {
			return
		}
		span.SetAttributes(observability.GroupAttribute(int64(req.GroupID)))
		d.hub.Leave(int64(req.GroupID), c)
		_ = c.Emit(EventLeftGroup, GroupPayload{GroupID: int64(req.GroupID)})
	case EventSendMessage:
		var req sendRequest
		if !d.decode(c, f.Data, &req) {
			return
		}
		span.SetAttributes(observability.GroupAttribute(int64(req.GroupID)))
		observability.RecordError(span, d.send(ctx, c, req))
	default:
		_ = c.Emit(EventError, ErrorPayload{Reason: ReasonUnknownEvent})
	}
}

func (d *Dispatcher) decode(c *Client, data json.RawMessage, dst any) bool {
	if len(data) == 0 || json.Unmarshal(data, dst) != nil || d.validate.Struct(dst) != nil {
		_ = c.Emit(EventError, ErrorPayload{Reason: ReasonInvalidPayload})
		return false
	}
	return true
}

// join returns the error recorded on the event span, if any.
func (d *Dispatcher) join(ctx context.Context, c *Client, groupID int64) error {
	ident := c.Identity()

	ok, err := d.oracle.IsMember(ctx, groupID, ident)
	if err != nil {
		d.log.Error().Err(err).Int64("group_id", groupID).Str("identity", ident.Key()).Msg("join membership check failed")
		d.observer.Observe(ctx, events.PersistenceFailed{Operation: "membership_check", GroupID: groupID, Actor: ident, Err: err})
		_ = c.Emit(EventError, ErrorPayload{Reason: ReasonJoinFailed})
		return err
	}
	if !ok {
		d.observer.Observe(ctx, events.JoinDenied{GroupID: groupID, Actor: ident})
		_ = c.Emit(EventError, ErrorPayload{Reason: ReasonNotMemberOfGroup})
		return errors.New(ReasonNotMemberOfGroup)
	}

	if d.hub.Join(groupID, c) {
		metrics.RoomJoins.Inc()
	}
	_ = c.Emit(EventJoinedGroup, GroupPayload{GroupID: groupID})

	start := time.Now()
	backlog, err := d.history.Backlog(ctx, groupID)
	metrics.HistoryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		d.log.Error().Err(err).Int64("group_id", groupID).Msg("failed to load join backlog")
		_ = c.Emit(EventError, ErrorPayload{Reason: ReasonJoinFailed})
		return err
	}
	_ = c.Emit(EventGroupMessages, backlog)
	return nil
}

func (d *Dispatcher) send(ctx context.Context, c *Client, req sendRequest) error {
	// Blank live submissions are ignored without a reply.
	if strings.TrimSpace(req.Text) == "" {
		return nil
	}

	_, err := d.pipeline.Send(ctx, c.Identity(), message.SendInput{
		GroupID: int64(req.GroupID),
		Text:    req.Text,
		Meta:    req.Meta,
	}, events.TransportSocket)
	if err == nil {
		return nil
	}

	switch {
	case platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation):
		return nil
	case platformerrors.IsErrorType(err, platformerrors.ErrorTypeForbidden):
		_ = c.Emit(EventError, ErrorPayload{Reason: ReasonNotGroupMember})
	default:
		if perr := platformerrors.GetPlatformError(err); perr != nil {
			platformerrors.LogError(d.log, perr)
		} else {
			d.log.Error().Err(err).Int64("group_id", int64(req.GroupID)).Msg("send failed")
		}
		_ = c.Emit(EventError, ErrorPayload{Reason: ReasonSendFailed})
	}
	return err
}
