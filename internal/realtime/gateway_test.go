package realtime_test

import (
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
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"collab-server/services/groupchat-api/internal/domain/group"
	"collab-server/services/groupchat-api/internal/domain/identity"
	"collab-server/services/groupchat-api/internal/domain/membership"
	"collab-server/services/groupchat-api/internal/domain/message"
	"collab-server/services/groupchat-api/internal/infrastructure/store"
	"collab-server/services/groupchat-api/internal/realtime"
)

type liveServer struct {
	server  *httptest.Server
	hub     *realtime.Hub
	mem     *store.MemoryStore
	history message.History
	groupID int64
}

// newLiveServer serves the gateway with the identity taken from the "as"
// query parameter, e.g. ?as=employee:2.
func newLiveServer(t *testing.T) *liveServer {
	t.Helper()
	ctx := context.Background()
	log := zerolog.Nop()

	mem := store.NewMemoryStore(log)
	mem.PutEmployee(store.Employee{ID: 2, Name: "Eve Employee", Role: identity.RoleEmployee, OrgID: 1})
	mem.PutCustomer(store.Customer{ID: 7, Name: "Carl Customer", OrgID: 1})

	g := &group.Group{ProjectID: 10, OrgID: 1, Name: "Bathroom"}
	require.NoError(t, mem.Groups().Create(ctx, g))
	employeeID, customerID := int64(2), int64(7)
	require.NoError(t, mem.Memberships().Add(ctx, &membership.Membership{GroupID: g.ID, EmployeeID: &employeeID}))
	require.NoError(t, mem.Memberships().Add(ctx, &membership.Membership{GroupID: g.ID, CustomerID: &customerID}))
	require.NoError(t, mem.Messages().Create(ctx, &message.Message{GroupID: g.ID, SenderID: 2, SenderType: identity.SenderEmployee, Text: "earlier"}))

	hub := realtime.NewHub(log)
	notifier := realtime.NewNotifier(hub)
	oracle := membership.NewOracle(mem.Memberships(), log)
	resolver := message.NewResolver(mem.Directory(), nil, log)
	pipeline := message.NewPipeline(message.PipelineConfig{
		Repo:      mem.Messages(),
		Stamper:   mem.Groups(),
		Oracle:    oracle,
		Tx:        mem,
		Resolver:  resolver,
		Publisher: notifier,
	}, log)
	history := message.NewHistory(mem.Messages(), oracle, resolver, nil, log)
	dispatcher := realtime.NewDispatcher(hub, oracle, pipeline, history, nil, log)
	gateway := realtime.NewGateway(hub, dispatcher, realtime.ClientConfig{
		PingInterval: time.Second,
		PongTimeout:  5 * time.Second,
		WriteTimeout: time.Second,
		SendBuffer:   16,
	}, []string{"*"}, log)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		label, rawID, _ := strings.Cut(r.URL.Query().Get("as"), ":")
		id, _ := strconv.ParseInt(rawID, 10, 64)
		_ = gateway.Serve(w, r, identity.New(id, label, ""))
	}))
	t.Cleanup(func() {
		hub.CloseAll()
		server.Close()
	})

	return &liveServer{server: server, hub: hub, mem: mem, history: history, groupID: g.ID}
}

func (s *liveServer) dial(t *testing.T, as string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/?as=" + as
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(realtime.Frame{Event: event, Data: raw}))
}

func next(t *testing.T, ws *websocket.Conn) realtime.Frame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	var f realtime.Frame
	require.NoError(t, ws.ReadJSON(&f))
	return f
}

func TestGateway_JoinReceivesBacklog(t *testing.T) {
	s := newLiveServer(t)
	ws := s.dial(t, "customer:7")

	send(t, ws, realtime.EventJoinGroup, map[string]any{"groupId": s.groupID})

	joined := next(t, ws)
	assert.Equal(t, realtime.EventJoinedGroup, joined.Event)

	backlog := next(t, ws)
	require.Equal(t, realtime.EventGroupMessages, backlog.Event)
	var views []message.View
	require.NoError(t, json.Unmarshal(backlog.Data, &views))
	require.Len(t, views, 1)
	assert.Equal(t, "earlier", views[0].Text)
	assert.Equal(t, "Eve Employee", views[0].SenderName)
}

func TestGateway_NonMemberJoinIsRefused(t *testing.T) {
	s := newLiveServer(t)
	ws := s.dial(t, "customer:99")

	send(t, ws, realtime.EventJoinGroup, map[string]any{"groupId": strconv.FormatInt(s.groupID, 10)})

	f := next(t, ws)
	require.Equal(t, realtime.EventError, f.Event)
	var payload realtime.ErrorPayload
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	assert.Equal(t, realtime.ReasonNotMemberOfGroup, payload.Reason)
	assert.Empty(t, s.hub.Members(s.groupID))
}

func TestGateway_SendFansOutToRoomIncludingSender(t *testing.T) {
	s := newLiveServer(t)
	employee := s.dial(t, "employee:2")
	customer := s.dial(t, "customer:7")

	for _, ws := range []*websocket.Conn{employee, customer} {
		send(t, ws, realtime.EventJoinGroup, map[string]any{"groupId": s.groupID})
		assert.Equal(t, realtime.EventJoinedGroup, next(t, ws).Event)
		assert.Equal(t, realtime.EventGroupMessages, next(t, ws).Event)
	}

	send(t, employee, realtime.EventSendMessage, map[string]any{"groupId": s.groupID, "text": "Grout is dry"})

	for _, ws := range []*websocket.Conn{employee, customer} {
		f := next(t, ws)
		require.Equal(t, realtime.EventNewMessage, f.Event)
		var view message.View
		require.NoError(t, json.Unmarshal(f.Data, &view))
		assert.Equal(t, "Grout is dry", view.Text)
		assert.Equal(t, identity.SenderEmployee, view.SenderType)
		assert.Equal(t, "Eve Employee", view.SenderName)
	}
}

func TestGateway_SendWithoutJoinStillPersists(t *testing.T) {
	s := newLiveServer(t)
	ws := s.dial(t, "customer:7")

	send(t, ws, realtime.EventSendMessage, map[string]any{"groupId": s.groupID, "text": "from the lobby"})
	// an unknown event afterwards proves the send was processed first
	send(t, ws, "ping_me", map[string]any{})
	f := next(t, ws)
	assert.Equal(t, realtime.EventError, f.Event)

	page, err := s.mem.Messages().ListPage(context.Background(), message.PageQuery{GroupID: s.groupID, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, "from the lobby", page[0].Text)
}

func TestGateway_NonMemberSendIsRejected(t *testing.T) {
	s := newLiveServer(t)
	ws := s.dial(t, "employee:99")

	send(t, ws, realtime.EventSendMessage, map[string]any{"groupId": s.groupID, "text": "let me in"})
	f := next(t, ws)
	require.Equal(t, realtime.EventError, f.Event)
	var payload realtime.ErrorPayload
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	assert.Equal(t, realtime.ReasonNotGroupMember, payload.Reason)
}

func TestGateway_InvalidPayloadKeepsConnection(t *testing.T) {
	s := newLiveServer(t)
	ws := s.dial(t, "customer:7")

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("not json")))
	f := next(t, ws)
	assert.Equal(t, realtime.EventError, f.Event)

	send(t, ws, realtime.EventJoinGroup, map[string]any{"groupId": "abc"})
	f = next(t, ws)
	assert.Equal(t, realtime.EventError, f.Event)

	send(t, ws, realtime.EventJoinGroup, map[string]any{"groupId": s.groupID})
	assert.Equal(t, realtime.EventJoinedGroup, next(t, ws).Event)
}

func TestGateway_LeaveStopsDelivery(t *testing.T) {
	s := newLiveServer(t)
	ws := s.dial(t, "customer:7")

	send(t, ws, realtime.EventJoinGroup, map[string]any{"groupId": s.groupID})
	next(t, ws)
	next(t, ws)

	send(t, ws, realtime.EventLeaveGroup, map[string]any{"groupId": s.groupID})
	assert.Equal(t, realtime.EventLeftGroup, next(t, ws).Event)
	assert.Empty(t, s.hub.Members(s.groupID))
}

func joinRoom(t *testing.T, ws *websocket.Conn, groupID int64) {
	t.Helper()
	send(t, ws, realtime.EventJoinGroup, map[string]any{"groupId": groupID})
	require.Equal(t, realtime.EventJoinedGroup, next(t, ws).Event)
	require.Equal(t, realtime.EventGroupMessages, next(t, ws).Event)
}

func errorReason(t *testing.T, f realtime.Frame) string {
	t.Helper()
	require.Equal(t, realtime.EventError, f.Event)
	var payload realtime.ErrorPayload
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	return payload.Reason
}

func TestGateway_BlankSendIsSilentAndNotStored(t *testing.T) {
	s := newLiveServer(t)
	ws := s.dial(t, "employee:2")
	joinRoom(t, ws, s.groupID)

	send(t, ws, realtime.EventSendMessage, map[string]any{"groupId": s.groupID, "text": "  \n\t "})
	// the first frame back must answer the unknown event, not the blank send
	send(t, ws, "ping_me", map[string]any{})
	assert.Equal(t, realtime.ReasonUnknownEvent, errorReason(t, next(t, ws)))

	page, err := s.mem.Messages().ListPage(context.Background(), message.PageQuery{GroupID: s.groupID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "earlier", page[0].Text)
}

func TestGateway_MembershipGrantedMidConnection(t *testing.T) {
	s := newLiveServer(t)
	ctx := context.Background()
	ws := s.dial(t, "customer:8")
	newcomer := identity.New(8, "customer", "")

	send(t, ws, realtime.EventJoinGroup, map[string]any{"groupId": s.groupID})
	assert.Equal(t, realtime.ReasonNotMemberOfGroup, errorReason(t, next(t, ws)))
	send(t, ws, realtime.EventSendMessage, map[string]any{"groupId": s.groupID, "text": "hello?"})
	assert.Equal(t, realtime.ReasonNotGroupMember, errorReason(t, next(t, ws)))
	_, err := s.history.List(ctx, newcomer, s.groupID, message.HistoryQuery{})
	require.Error(t, err)

	customerID := int64(8)
	require.NoError(t, s.mem.Memberships().Add(ctx, &membership.Membership{GroupID: s.groupID, CustomerID: &customerID}))

	joinRoom(t, ws, s.groupID)
	send(t, ws, realtime.EventSendMessage, map[string]any{"groupId": s.groupID, "text": "I'm in"})
	f := next(t, ws)
	require.Equal(t, realtime.EventNewMessage, f.Event)
	var view message.View
	require.NoError(t, json.Unmarshal(f.Data, &view))
	assert.Equal(t, "I'm in", view.Text)

	views, err := s.history.List(ctx, newcomer, s.groupID, message.HistoryQuery{})
	require.NoError(t, err)
	require.NotEmpty(t, views)
	assert.Equal(t, "I'm in", views[len(views)-1].Text)
}

func TestGateway_RepeatedJoinDeliversOnce(t *testing.T) {
	s := newLiveServer(t)
	employee := s.dial(t, "employee:2")
	customer := s.dial(t, "customer:7")

	joinRoom(t, employee, s.groupID)
	joinRoom(t, employee, s.groupID)
	assert.Len(t, s.hub.Members(s.groupID), 1)

	for _, text := range []string{"once", "marker"} {
		send(t, customer, realtime.EventSendMessage, map[string]any{"groupId": s.groupID, "text": text})
		f := next(t, employee)
		require.Equal(t, realtime.EventNewMessage, f.Event)
		var view message.View
		require.NoError(t, json.Unmarshal(f.Data, &view))
		// a duplicate "once" would arrive before "marker"
		assert.Equal(t, text, view.Text)
	}
}

func TestGateway_FailedEventsMarkTheSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	s := newLiveServer(t)
	ws := s.dial(t, "employee:99")

	send(t, ws, realtime.EventSendMessage, map[string]any{"groupId": s.groupID, "text": "let me in"})
	assert.Equal(t, realtime.ReasonNotGroupMember, errorReason(t, next(t, ws)))

	require.Eventually(t, func() bool { return len(recorder.Ended()) > 0 }, 2*time.Second, 10*time.Millisecond)
	span := recorder.Ended()[0]
	assert.Equal(t, "socket."+realtime.EventSendMessage, span.Name())
	assert.Equal(t, codes.Error, span.Status().Code)
}
