package realtime

import (
	"context"

	"collab-server/services/groupchat-api/internal/domain/group"
	"collab-server/services/groupchat-api/internal/domain/identity"
	"collab-server/services/groupchat-api/internal/domain/message"
)

// Notifier routes domain deliveries onto the hub.
type Notifier struct {
	hub *Hub
}

// NewNotifier creates a notifier backed by the hub.
func NewNotifier(hub *Hub) *Notifier {
	return &Notifier{hub: hub}
}

// PublishMessage broadcasts new_message to the group's room.
func (n *Notifier) PublishMessage(_ context.Context, view message.View) {
	n.hub.Broadcast(view.GroupID, EventNewMessage, view)
}

// GroupCreated notifies the online administrators of the group's org.
func (n *Notifier) GroupCreated(_ context.Context, payload group.CreatedPayload) {
	n.hub.EmitToOrgAdmins(payload.OrgID, EventGroupCreated, payload)
}

// MemberAdded notifies every online connection of the added participant.
// Employees may be connected under either the employee or the admin role.
func (n *Notifier) MemberAdded(_ context.Context, groupID int64, kind identity.MemberKind, participantID int64) {
	payload := GroupPayload{GroupID: groupID}
	switch kind {
	case identity.MemberKindEmployee:
		n.hub.EmitToUser(string(identity.RoleEmployee), participantID, EventAddedToGroup, payload)
		n.hub.EmitToUser(string(identity.RoleAdmin), participantID, EventAddedToGroup, payload)
	case identity.MemberKindCustomer:
		n.hub.EmitToUser(string(identity.RoleCustomer), participantID, EventAddedToGroup, payload)
	case identity.MemberKindNone:
	}
}

var (
	_ message.Publisher = (*Notifier)(nil)
	_ group.Notifier    = (*Notifier)(nil)
)
