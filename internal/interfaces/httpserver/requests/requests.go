// Package requests contains HTTP request DTOs for the groupchat-api.
// Binding only rejects malformed JSON; field rules are enforced by the domain
// services after the authorization check.
package requests

import "encoding/json"

// MemberRequest names one participant. Exactly one of employeeId or
// customerId must be set.
type MemberRequest struct {
	EmployeeID *int64 `json:"employeeId,omitempty"`
	CustomerID *int64 `json:"customerId,omitempty"`
	Role       string `json:"role,omitempty" enums:"member,admin"`
}

// CreateGroupRequest is the body of POST /v1/groups. orgId defaults to the
// caller's organization.
type CreateGroupRequest struct {
	ProjectID int64           `json:"projectId"`
	Name      string          `json:"name"`
	OrgID     int64           `json:"orgId,omitempty"`
	Members   []MemberRequest `json:"members,omitempty"`
}

// SendMessageRequest is the body of POST /v1/groups/:groupId/messages.
type SendMessageRequest struct {
	Text string          `json:"text"`
	Meta json.RawMessage `json:"meta,omitempty" swaggertype:"object"`
}

// ProvisionGroupRequest is the body of POST /v1/projects/:projectId/group.
// name defaults to "Project <projectId>" and orgId to the caller's
// organization.
type ProvisionGroupRequest struct {
	Name       string `json:"name,omitempty"`
	OrgID      int64  `json:"orgId,omitempty"`
	CustomerID int64  `json:"customerId"`
}
