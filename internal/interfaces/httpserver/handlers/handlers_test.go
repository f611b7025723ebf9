package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-server/services/groupchat-api/internal/domain/events"
	"collab-server/services/groupchat-api/internal/domain/group"
	"collab-server/services/groupchat-api/internal/domain/identity"
	"collab-server/services/groupchat-api/internal/domain/membership"
	"collab-server/services/groupchat-api/internal/domain/message"
	"collab-server/services/groupchat-api/internal/infrastructure/auth"
	"collab-server/services/groupchat-api/internal/utils/platformerrors"
)

// MockGroupService is a mock implementation of group.Service
type MockGroupService struct {
	ListForIdentityFunc       func(ctx context.Context, actor identity.Identity) ([]group.Summary, error)
	CreateFunc                func(ctx context.Context, actor identity.Identity, in group.CreateInput) (*group.Group, error)
	AddMemberFunc             func(ctx context.Context, actor identity.Identity, groupID int64, in group.MemberInput) (*membership.Membership, error)
	ListMembersFunc           func(ctx context.Context, actor identity.Identity, groupID int64) ([]group.Member, error)
	ProvisionProjectGroupFunc func(ctx context.Context, actor identity.Identity, projectID int64, in group.ProvisionInput) (*group.Group, bool, error)
}

func (m *MockGroupService) ListForIdentity(ctx context.Context, actor identity.Identity) ([]group.Summary, error) {
	return m.ListForIdentityFunc(ctx, actor)
}

func (m *MockGroupService) Create(ctx context.Context, actor identity.Identity, in group.CreateInput) (*group.Group, error) {
	return m.CreateFunc(ctx, actor, in)
}

func (m *MockGroupService) AddMember(ctx context.Context, actor identity.Identity, groupID int64, in group.MemberInput) (*membership.Membership, error) {
	return m.AddMemberFunc(ctx, actor, groupID, in)
}

func (m *MockGroupService) ListMembers(ctx context.Context, actor identity.Identity, groupID int64) ([]group.Member, error) {
	return m.ListMembersFunc(ctx, actor, groupID)
}

func (m *MockGroupService) ProvisionProjectGroup(ctx context.Context, actor identity.Identity, projectID int64, in group.ProvisionInput) (*group.Group, bool, error) {
	return m.ProvisionProjectGroupFunc(ctx, actor, projectID, in)
}

// MockPipeline is a mock implementation of message.Pipeline
type MockPipeline struct {
	SendFunc func(ctx context.Context, actor identity.Identity, in message.SendInput, transport events.Transport) (*message.View, error)
}

func (m *MockPipeline) Send(ctx context.Context, actor identity.Identity, in message.SendInput, transport events.Transport) (*message.View, error) {
	return m.SendFunc(ctx, actor, in, transport)
}

func (m *MockPipeline) Record(context.Context, *message.Message) error { return nil }

func (m *MockPipeline) RecordSystem(context.Context, int64, string) (*message.View, error) {
	return nil, nil
}

func (m *MockPipeline) Publish(context.Context, message.View) {}

func (m *MockPipeline) Sequence(ctx context.Context, _ int64, fn func(context.Context) (*message.View, error)) (*message.View, error) {
	return fn(ctx)
}

// MockHistory is a mock implementation of message.History
type MockHistory struct {
	ListFunc func(ctx context.Context, actor identity.Identity, groupID int64, q message.HistoryQuery) ([]message.View, error)
}

func (m *MockHistory) List(ctx context.Context, actor identity.Identity, groupID int64, q message.HistoryQuery) ([]message.View, error) {
	return m.ListFunc(ctx, actor, groupID, q)
}

func (m *MockHistory) Backlog(context.Context, int64) ([]message.View, error) {
	return nil, nil
}

func adminIdentity() identity.Identity {
	ident := identity.New(1, "admin", "")
	org := int64(7)
	ident.OrgID = &org
	return ident
}

func setupRouter(ident *identity.Identity, groups group.Service, pipeline message.Pipeline, history message.History) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	if ident != nil {
		router.Use(func(c *gin.Context) {
			c.Set(auth.IdentityKey, *ident)
			c.Next()
		})
	}

	gh := NewGroupHandler(groups, zerolog.Nop())
	mh := NewMessageHandler(pipeline, history, zerolog.Nop())
	router.GET("/v1/groups", gh.List)
	router.POST("/v1/groups", gh.Create)
	router.GET("/v1/groups/:groupId/members", gh.ListMembers)
	router.POST("/v1/groups/:groupId/members", gh.AddMember)
	router.POST("/v1/projects/:projectId/group", gh.ProvisionProjectGroup)
	router.GET("/v1/groups/:groupId/messages", mh.List)
	router.POST("/v1/groups/:groupId/messages", mh.Send)
	return router
}

func do(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			_ = json.NewEncoder(&buf).Encode(b)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) platformerrors.HTTPErrorDetail {
	t.Helper()
	var resp platformerrors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return *resp.Error
}

func TestHandlers_RequireIdentity(t *testing.T) {
	router := setupRouter(nil, &MockGroupService{}, &MockPipeline{}, &MockHistory{})

	w := do(router, http.MethodGet, "/v1/groups", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, auth.CodeNoAuth, errorBody(t, w).Code)
}

func TestGroupHandler_List(t *testing.T) {
	ident := adminIdentity()

	t.Run("empty list is an array", func(t *testing.T) {
		svc := &MockGroupService{ListForIdentityFunc: func(context.Context, identity.Identity) ([]group.Summary, error) {
			return nil, nil
		}}
		w := do(setupRouter(&ident, svc, nil, nil), http.MethodGet, "/v1/groups", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[]`, w.Body.String())
	})

	t.Run("returns summaries", func(t *testing.T) {
		svc := &MockGroupService{ListForIdentityFunc: func(_ context.Context, actor identity.Identity) ([]group.Summary, error) {
			assert.Equal(t, int64(1), actor.ID)
			return []group.Summary{{Group: group.Group{ID: 4, Name: "Alpha"}, MemberCount: 3, Role: membership.RoleAdmin}}, nil
		}}
		w := do(setupRouter(&ident, svc, nil, nil), http.MethodGet, "/v1/groups", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var got []map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "Alpha", got[0]["name"])
		assert.Equal(t, float64(3), got[0]["memberCount"])
	})

	t.Run("unclassified error is a 500", func(t *testing.T) {
		svc := &MockGroupService{ListForIdentityFunc: func(context.Context, identity.Identity) ([]group.Summary, error) {
			return nil, errors.New("connection reset by peer")
		}}
		w := do(setupRouter(&ident, svc, nil, nil), http.MethodGet, "/v1/groups", nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "connection reset")
	})
}

func TestGroupHandler_Create(t *testing.T) {
	ident := adminIdentity()

	t.Run("maps body and defaults org", func(t *testing.T) {
		var got group.CreateInput
		svc := &MockGroupService{CreateFunc: func(_ context.Context, _ identity.Identity, in group.CreateInput) (*group.Group, error) {
			got = in
			return &group.Group{ID: 9, Name: in.Name, ProjectID: in.ProjectID, OrgID: in.OrgID, CreatedAt: time.Now()}, nil
		}}
		w := do(setupRouter(&ident, svc, nil, nil), http.MethodPost, "/v1/groups",
			`{"projectId":3,"name":"Launch","members":[{"employeeId":2},{"customerId":5,"role":"member"}]}`)
		require.Equal(t, http.StatusCreated, w.Code)

		assert.Equal(t, int64(3), got.ProjectID)
		assert.Equal(t, "Launch", got.Name)
		assert.Equal(t, int64(7), got.OrgID)
		require.Len(t, got.Members, 2)
		require.NotNil(t, got.Members[0].EmployeeID)
		assert.Equal(t, int64(2), *got.Members[0].EmployeeID)
		require.NotNil(t, got.Members[1].CustomerID)
		assert.Equal(t, "member", got.Members[1].Role)
	})

	t.Run("explicit org wins", func(t *testing.T) {
		svc := &MockGroupService{CreateFunc: func(_ context.Context, _ identity.Identity, in group.CreateInput) (*group.Group, error) {
			assert.Equal(t, int64(11), in.OrgID)
			return &group.Group{ID: 1}, nil
		}}
		w := do(setupRouter(&ident, svc, nil, nil), http.MethodPost, "/v1/groups", `{"projectId":3,"name":"x","orgId":11}`)
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		w := do(setupRouter(&ident, &MockGroupService{}, nil, nil), http.MethodPost, "/v1/groups", `{"projectId":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "group-create-bind-001", errorBody(t, w).Code)
	})

	t.Run("forbidden passes through", func(t *testing.T) {
		svc := &MockGroupService{CreateFunc: func(ctx context.Context, _ identity.Identity, _ group.CreateInput) (*group.Group, error) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden, "Admins only", nil, "group-create-forbidden")
		}}
		w := do(setupRouter(&ident, svc, nil, nil), http.MethodPost, "/v1/groups", `{}`)
		assert.Equal(t, http.StatusForbidden, w.Code)
		detail := errorBody(t, w)
		assert.Equal(t, "Admins only", detail.Message)
		assert.Equal(t, "forbidden_error", detail.Type)
	})
}

func TestGroupHandler_AddMember(t *testing.T) {
	ident := adminIdentity()

	t.Run("invalid group id", func(t *testing.T) {
		w := do(setupRouter(&ident, &MockGroupService{}, nil, nil), http.MethodPost, "/v1/groups/abc/members", `{"employeeId":1}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("conflict", func(t *testing.T) {
		svc := &MockGroupService{AddMemberFunc: func(ctx context.Context, _ identity.Identity, groupID int64, in group.MemberInput) (*membership.Membership, error) {
			assert.Equal(t, int64(4), groupID)
			require.NotNil(t, in.CustomerID)
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict, "Already a member", nil, "member-add-conflict")
		}}
		w := do(setupRouter(&ident, svc, nil, nil), http.MethodPost, "/v1/groups/4/members", `{"customerId":8}`)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("created", func(t *testing.T) {
		svc := &MockGroupService{AddMemberFunc: func(_ context.Context, _ identity.Identity, groupID int64, in group.MemberInput) (*membership.Membership, error) {
			return &membership.Membership{ID: 12, GroupID: groupID, EmployeeID: in.EmployeeID, Role: membership.RoleMember}, nil
		}}
		w := do(setupRouter(&ident, svc, nil, nil), http.MethodPost, "/v1/groups/4/members", `{"employeeId":2}`)
		require.Equal(t, http.StatusCreated, w.Code)
		var got map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, float64(12), got["id"])
	})
}

func TestGroupHandler_ListMembers(t *testing.T) {
	ident := adminIdentity()
	svc := &MockGroupService{ListMembersFunc: func(_ context.Context, _ identity.Identity, groupID int64) ([]group.Member, error) {
		assert.Equal(t, int64(6), groupID)
		return nil, nil
	}}
	w := do(setupRouter(&ident, svc, nil, nil), http.MethodGet, "/v1/groups/6/members", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestGroupHandler_ProvisionProjectGroup(t *testing.T) {
	ident := adminIdentity()

	tests := []struct {
		name     string
		body     string
		created  bool
		wantName string
		wantCode int
	}{
		{"created with default name", `{"customerId":5}`, true, "Project 42", http.StatusCreated},
		{"existing group", `{"customerId":5,"name":"Renovation"}`, false, "Renovation", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockGroupService{ProvisionProjectGroupFunc: func(_ context.Context, _ identity.Identity, projectID int64, in group.ProvisionInput) (*group.Group, bool, error) {
				assert.Equal(t, int64(42), projectID)
				assert.Equal(t, tt.wantName, in.Name)
				assert.Equal(t, int64(7), in.OrgID)
				assert.Equal(t, int64(5), in.CustomerID)
				return &group.Group{ID: 1, Name: in.Name, ProjectID: projectID}, tt.created, nil
			}}
			w := do(setupRouter(&ident, svc, nil, nil), http.MethodPost, "/v1/projects/42/group", tt.body)
			assert.Equal(t, tt.wantCode, w.Code)
		})
	}

	t.Run("non-positive project id", func(t *testing.T) {
		w := do(setupRouter(&ident, &MockGroupService{}, nil, nil), http.MethodPost, "/v1/projects/0/group", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestMessageHandler_List(t *testing.T) {
	ident := identity.New(3, "customer", "")

	t.Run("passes query through", func(t *testing.T) {
		history := &MockHistory{ListFunc: func(_ context.Context, actor identity.Identity, groupID int64, q message.HistoryQuery) ([]message.View, error) {
			assert.Equal(t, identity.SenderCustomer, actor.Type)
			assert.Equal(t, int64(2), groupID)
			assert.Equal(t, 20, q.Limit)
			assert.Equal(t, "15", q.Before)
			return []message.View{{ID: 14, GroupID: 2, Text: "hi", SenderType: identity.SenderCustomer}}, nil
		}}
		w := do(setupRouter(&ident, nil, nil, history), http.MethodGet, "/v1/groups/2/messages?limit=20&before=15", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var got []map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "customer", got[0]["senderType"])
	})

	t.Run("non-numeric limit uses default", func(t *testing.T) {
		history := &MockHistory{ListFunc: func(_ context.Context, _ identity.Identity, _ int64, q message.HistoryQuery) ([]message.View, error) {
			assert.Zero(t, q.Limit)
			return nil, nil
		}}
		w := do(setupRouter(&ident, nil, nil, history), http.MethodGet, "/v1/groups/2/messages?limit=lots", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[]`, w.Body.String())
	})

	t.Run("not a member", func(t *testing.T) {
		history := &MockHistory{ListFunc: func(ctx context.Context, _ identity.Identity, _ int64, _ message.HistoryQuery) ([]message.View, error) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden, message.ReasonNotMember, nil, "history-not-member")
		}}
		w := do(setupRouter(&ident, nil, nil, history), http.MethodGet, "/v1/groups/2/messages", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, message.ReasonNotMember, errorBody(t, w).Message)
	})
}

func TestMessageHandler_Send(t *testing.T) {
	ident := identity.New(3, "employee", "")

	t.Run("created over http transport", func(t *testing.T) {
		pipeline := &MockPipeline{SendFunc: func(_ context.Context, _ identity.Identity, in message.SendInput, transport events.Transport) (*message.View, error) {
			assert.Equal(t, events.TransportHTTP, transport)
			assert.Equal(t, int64(5), in.GroupID)
			assert.Equal(t, "hello", in.Text)
			assert.JSONEq(t, `{"k":1}`, string(in.Meta))
			return &message.View{ID: 1, GroupID: 5, Text: in.Text, SenderName: "Eve"}, nil
		}}
		w := do(setupRouter(&ident, nil, pipeline, nil), http.MethodPost, "/v1/groups/5/messages", `{"text":"hello","meta":{"k":1}}`)
		require.Equal(t, http.StatusCreated, w.Code)

		var got map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, "Eve", got["senderName"])
	})

	t.Run("malformed body", func(t *testing.T) {
		w := do(setupRouter(&ident, nil, &MockPipeline{}, nil), http.MethodPost, "/v1/groups/5/messages", `text=hello`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, message.ReasonTextRequired, errorBody(t, w).Message)
	})

	t.Run("empty text", func(t *testing.T) {
		pipeline := &MockPipeline{SendFunc: func(ctx context.Context, _ identity.Identity, _ message.SendInput, _ events.Transport) (*message.View, error) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, message.ReasonTextRequired, nil, "message-empty")
		}}
		w := do(setupRouter(&ident, nil, pipeline, nil), http.MethodPost, "/v1/groups/5/messages", `{"text":"  "}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
