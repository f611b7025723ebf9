// Package realtime owns live connections: presence, group rooms, fan-out and
// the websocket event protocol.
package realtime

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Inbound events.
const (
	EventJoinGroup   = "join_group"
	EventLeaveGroup  = "leave_group"
	EventSendMessage = "send_message"
)

// Outbound events.
const (
	EventJoinedGroup   = "joined_group"
	EventLeftGroup     = "left_group"
	EventGroupMessages = "group_messages"
	EventNewMessage    = "new_message"
	EventError         = "error"
	EventGroupCreated  = "group_created"
	EventAddedToGroup  = "added_to_group"
)

// Error reasons sent to clients.
const (
	ReasonNotMemberOfGroup = "You are not a member of this group"
	ReasonJoinFailed       = "Failed to join group"
	ReasonNotGroupMember   = "Not a group member"
	ReasonSendFailed       = "Failed to send message"
	ReasonUnknownEvent     = "Unknown event"
	ReasonInvalidPayload   = "Invalid payload"
)

// Frame is the envelope of every websocket message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ErrorPayload is the body of an error frame.
type ErrorPayload struct {
	Reason string `json:"reason"`
}

// GroupPayload is the body of joined_group, left_group and added_to_group.
type GroupPayload struct {
	GroupID int64 `json:"groupId"`
}

// EncodeFrame serializes an outbound frame.
func EncodeFrame(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(Frame{Event: event, Data: data})
}

// GroupID accepts a JSON number or a numeric string.
type GroupID int64

// UnmarshalJSON implements json.Unmarshaler.
func (g *GroupID) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		return nil
	}
	raw = strings.Trim(raw, `"`)
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("groupId must be numeric: %w", err)
	}
	*g = GroupID(id)
	return nil
}

// RoomName is the live room of a group.
func RoomName(groupID int64) string {
	return "group_" + strconv.FormatInt(groupID, 10)
}
