package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-server/services/groupchat-api/internal/config"
	"collab-server/services/groupchat-api/internal/domain/group"
	"collab-server/services/groupchat-api/internal/domain/identity"
	"collab-server/services/groupchat-api/internal/domain/message"
	"collab-server/services/groupchat-api/internal/infrastructure/audit"
	"collab-server/services/groupchat-api/internal/infrastructure/auth"
	"collab-server/services/groupchat-api/internal/infrastructure/store"
	"collab-server/services/groupchat-api/internal/realtime"
)

const testSecret = "groupchat-test-secret"

type testApp struct {
	app    *Application
	server *httptest.Server
	audit  *store.MemoryAudit
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	log := zerolog.Nop()

	cfg := &config.Config{
		ServiceName:       "groupchat-api-test",
		StoreDriver:       config.StoreDriverMemory,
		JWTSecret:         testSecret,
		WSPingInterval:    time.Second,
		WSPongTimeout:     5 * time.Second,
		WSWriteTimeout:    time.Second,
		WSSendBuffer:      16,
		WSMaxMessageBytes: 65536,
		WSAllowedOrigins:  []string{"*"},
		NameCacheType:     config.CacheTypeMemory,
		NameCacheSize:     100,
		NameCacheTTL:      time.Minute,
		AuditEnabled:      true,
		AuditBufferSize:   64,
		AuditPIILevel:     "hashed",
	}

	mem := store.NewMemoryStore(log)
	mem.PutEmployee(store.Employee{ID: 1, Name: "Ada Admin", Role: identity.RoleAdmin, OrgID: 1})
	mem.PutEmployee(store.Employee{ID: 2, Name: "Eve Employee", Role: identity.RoleEmployee, OrgID: 1})
	mem.PutCustomer(store.Customer{ID: 7, Name: "Carl Customer", OrgID: 1})
	auditStore := store.NewMemoryAudit()

	app, err := BuildApplication(context.Background(), cfg, log, NewMemoryStores(mem, auditStore), nil)
	require.NoError(t, err)
	app.auditor.Start(context.Background())

	server := httptest.NewServer(app.httpServer.Handler())
	t.Cleanup(func() {
		server.Close()
		app.shutdown()
	})
	return &testApp{app: app, server: server, audit: auditStore}
}

func token(t *testing.T, id int64, role string) string {
	t.Helper()
	org := int64(1)
	tok, err := auth.SignHS256([]byte(testSecret), auth.TokenClaims{ID: id, Role: role, OrgID: &org}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (a *testApp) request(t *testing.T, method, path, tok string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func (a *testApp) dial(t *testing.T, tok string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(a.server.URL, "http") + "/v1/socket?token=" + tok
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func sendFrame(t *testing.T, ws *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(realtime.Frame{Event: event, Data: raw}))
}

func nextFrame(t *testing.T, ws *websocket.Conn) realtime.Frame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	var f realtime.Frame
	require.NoError(t, ws.ReadJSON(&f))
	return f
}

func TestServer_Probes(t *testing.T) {
	a := newTestApp(t)

	resp := a.request(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = a.request(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestServer_RejectsMissingToken(t *testing.T) {
	a := newTestApp(t)

	resp := a.request(t, http.MethodGet, "/v1/groups", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	url := "ws" + strings.TrimPrefix(a.server.URL, "http") + "/v1/socket"
	_, hs, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, hs)
	assert.Equal(t, http.StatusUnauthorized, hs.StatusCode)
	_ = hs.Body.Close()

	require.Eventually(t, func() bool {
		for _, row := range a.audit.Audits() {
			if row.Action == audit.ActionAuthFailed {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_GroupChatFlow(t *testing.T) {
	a := newTestApp(t)
	adminTok := token(t, 1, "admin")
	employeeTok := token(t, 2, "employee")
	customerTok := token(t, 7, "customer")

	adminWS := a.dial(t, adminTok)
	customerWS := a.dial(t, customerTok)
	require.Eventually(t, func() bool { return a.app.hub.ConnectionCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	// customers cannot create groups
	resp := a.request(t, http.MethodPost, "/v1/groups", customerTok, map[string]any{"projectId": 10, "name": "Kitchen"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = a.request(t, http.MethodPost, "/v1/groups", adminTok, map[string]any{
		"projectId": 10,
		"name":      "Kitchen",
		"members":   []map[string]any{{"employeeId": 2}, {"customerId": 7}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created group.Group
	decode(t, resp, &created)
	require.NotZero(t, created.ID)
	assert.Equal(t, int64(1), created.OrgID)

	assert.Equal(t, realtime.EventGroupCreated, nextFrame(t, adminWS).Event)

	var groups []group.Summary
	decode(t, a.request(t, http.MethodGet, "/v1/groups", customerTok, nil), &groups)
	require.Len(t, groups, 1)
	assert.Equal(t, created.ID, groups[0].ID)

	sendFrame(t, customerWS, realtime.EventJoinGroup, map[string]any{"groupId": created.ID})
	assert.Equal(t, realtime.EventJoinedGroup, nextFrame(t, customerWS).Event)
	backlog := nextFrame(t, customerWS)
	require.Equal(t, realtime.EventGroupMessages, backlog.Event)
	var views []message.View
	require.NoError(t, json.Unmarshal(backlog.Data, &views))
	require.Len(t, views, 1)
	assert.Equal(t, identity.SenderSystem, views[0].SenderType)
	assert.Equal(t, group.CreatedMessage("Kitchen"), views[0].Text)

	resp = a.request(t, http.MethodPost, "/v1/groups/"+itoa(created.ID)+"/messages", employeeTok, map[string]any{"text": "On my way"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	live := nextFrame(t, customerWS)
	require.Equal(t, realtime.EventNewMessage, live.Event)
	var view message.View
	require.NoError(t, json.Unmarshal(live.Data, &view))
	assert.Equal(t, "On my way", view.Text)
	assert.Equal(t, "Eve Employee", view.SenderName)

	var page []message.View
	decode(t, a.request(t, http.MethodGet, "/v1/groups/"+itoa(created.ID)+"/messages?limit=10", customerTok, nil), &page)
	require.Len(t, page, 2)
	assert.Equal(t, "On my way", page[1].Text)

	// employee 3 is not a member
	resp = a.request(t, http.MethodGet, "/v1/groups/"+itoa(created.ID)+"/messages", token(t, 3, "employee"), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	require.Eventually(t, func() bool {
		var sent, made bool
		for _, row := range a.audit.Audits() {
			switch row.Action {
			case audit.ActionMessageSent:
				sent = true
			case audit.ActionGroupCreated:
				made = true
			}
		}
		return sent && made
	}, 2*time.Second, 10*time.Millisecond)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
