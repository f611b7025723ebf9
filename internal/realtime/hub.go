package realtime

import (
	"errors"
	"hash/fnv"
	"sync"

	"github.com/rs/zerolog"

	"collab-server/services/groupchat-api/internal/domain/identity"
	"collab-server/services/groupchat-api/internal/infrastructure/metrics"
)

const shardCount = 32

// ErrStale is returned by Conn.Send when the connection is closed or its send
// buffer is full.
var ErrStale = errors.New("connection is stale")

// Conn is a live connection handle as seen by the hub.
type Conn interface {
	ID() string
	Identity() identity.Identity
	// Send queues an encoded frame without blocking.
	Send(frame []byte) error
	Close()
}

type shard struct {
	mu       sync.RWMutex
	presence map[string]map[string]Conn
	rooms    map[string]map[string]Conn
	joined   map[string]map[int64]struct{}
}

// Hub holds all presence and room state of this process. Keys are striped
// across fixed shards so unrelated keys never contend on one lock.
type Hub struct {
	shards [shardCount]*shard
	log    zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	h := &Hub{log: log.With().Str("component", "realtime-hub").Logger()}
	for i := range h.shards {
		h.shards[i] = &shard{
			presence: make(map[string]map[string]Conn),
			rooms:    make(map[string]map[string]Conn),
			joined:   make(map[string]map[int64]struct{}),
		}
	}
	return h
}

func (h *Hub) shardFor(key string) *shard {
	f := fnv.New32a()
	_, _ = f.Write([]byte(key))
	return h.shards[f.Sum32()%shardCount]
}

// Register adds a connection under its identity's presence key.
func (h *Hub) Register(c Conn) {
	key := c.Identity().Key()
	s := h.shardFor(key)
	s.mu.Lock()
	set, ok := s.presence[key]
	if !ok {
		set = make(map[string]Conn)
		s.presence[key] = set
	}
	set[c.ID()] = c
	s.mu.Unlock()
}

// Unregister removes a connection from its presence key. An empty set drops
// the key.
func (h *Hub) Unregister(c Conn) {
	h.unregisterKey(c.Identity().Key(), c.ID())
}

func (h *Hub) unregisterKey(key, connID string) {
	s := h.shardFor(key)
	s.mu.Lock()
	if set, ok := s.presence[key]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(s.presence, key)
		}
	}
	s.mu.Unlock()
}

// Connections returns a snapshot of the connections under a presence key.
func (h *Hub) Connections(key string) []Conn {
	s := h.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.presence[key]
	out := make([]Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// Join puts a connection into a group room. It reports whether the
// connection was newly added.
func (h *Hub) Join(groupID int64, c Conn) bool {
	room := RoomName(groupID)
	s := h.shardFor(room)
	s.mu.Lock()
	set, ok := s.rooms[room]
	if !ok {
		set = make(map[string]Conn)
		s.rooms[room] = set
	}
	_, already := set[c.ID()]
	set[c.ID()] = c
	s.mu.Unlock()

	cs := h.shardFor(connKey(c.ID()))
	cs.mu.Lock()
	groups, ok := cs.joined[c.ID()]
	if !ok {
		groups = make(map[int64]struct{})
		cs.joined[c.ID()] = groups
	}
	groups[groupID] = struct{}{}
	cs.mu.Unlock()

	return !already
}

// Leave removes a connection from a group room.
func (h *Hub) Leave(groupID int64, c Conn) {
	h.leaveRoom(groupID, c.ID())

	cs := h.shardFor(connKey(c.ID()))
	cs.mu.Lock()
	if groups, ok := cs.joined[c.ID()]; ok {
		delete(groups, groupID)
		if len(groups) == 0 {
			delete(cs.joined, c.ID())
		}
	}
	cs.mu.Unlock()
}

func (h *Hub) leaveRoom(groupID int64, connID string) {
	room := RoomName(groupID)
	s := h.shardFor(room)
	s.mu.Lock()
	if set, ok := s.rooms[room]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(s.rooms, room)
		}
	}
	s.mu.Unlock()
}

// Members returns a snapshot of the connections in a group room.
func (h *Hub) Members(groupID int64) []Conn {
	room := RoomName(groupID)
	s := h.shardFor(room)
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.rooms[room]
	out := make([]Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// Rooms returns the groups a connection has joined.
func (h *Hub) Rooms(c Conn) []int64 {
	cs := h.shardFor(connKey(c.ID()))
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make([]int64, 0, len(cs.joined[c.ID()]))
	for id := range cs.joined[c.ID()] {
		out = append(out, id)
	}
	return out
}

// Broadcast delivers an event to every connection in a group room, the
// sender included. Stale handles are skipped and pruned. It returns the
// number of connections the frame was queued for.
func (h *Hub) Broadcast(groupID int64, event string, payload any) int {
	frame, err := EncodeFrame(event, payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Int64("group_id", groupID).Msg("failed to encode broadcast")
		return 0
	}

	delivered := 0
	for _, c := range h.Members(groupID) {
		if err := c.Send(frame); err != nil {
			h.log.Debug().Err(err).Str("conn_id", c.ID()).Int64("group_id", groupID).Msg("skipping stale connection")
			metrics.BroadcastSkipped.Inc()
			h.Leave(groupID, c)
			c.Close()
			continue
		}
		delivered++
	}
	metrics.BroadcastDeliveries.Add(float64(delivered))
	return delivered
}

// EmitTo delivers an event to every connection under a presence key.
func (h *Hub) EmitTo(key, event string, payload any) int {
	conns := h.Connections(key)
	if len(conns) == 0 {
		return 0
	}
	frame, err := EncodeFrame(event, payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Str("key", key).Msg("failed to encode targeted event")
		return 0
	}

	delivered := 0
	for _, c := range conns {
		if err := c.Send(frame); err != nil {
			h.log.Debug().Err(err).Str("conn_id", c.ID()).Str("key", key).Msg("skipping stale connection")
			metrics.BroadcastSkipped.Inc()
			h.unregisterKey(key, c.ID())
			c.Close()
			continue
		}
		delivered++
	}
	return delivered
}

// EmitToUser delivers to the connections of one user under the given role or
// type label, e.g. ("customer", 7).
func (h *Hub) EmitToUser(label string, id int64, event string, payload any) int {
	return h.EmitTo(identity.Key(label, id), event, payload)
}

// EmitToOrgAdmins delivers an event to every connected administrator of an
// organization.
func (h *Hub) EmitToOrgAdmins(orgID int64, event string, payload any) int {
	var targets []Conn
	for _, s := range h.shards {
		s.mu.RLock()
		for _, set := range s.presence {
			for _, c := range set {
				ident := c.Identity()
				if ident.IsAdmin() && ident.OrgID != nil && *ident.OrgID == orgID {
					targets = append(targets, c)
				}
			}
		}
		s.mu.RUnlock()
	}
	if len(targets) == 0 {
		return 0
	}

	frame, err := EncodeFrame(event, payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Int64("org_id", orgID).Msg("failed to encode org event")
		return 0
	}
	delivered := 0
	for _, c := range targets {
		if err := c.Send(frame); err != nil {
			metrics.BroadcastSkipped.Inc()
			h.Unregister(c)
			c.Close()
			continue
		}
		delivered++
	}
	return delivered
}

// Disconnect removes a connection from presence and from every room it
// joined.
func (h *Hub) Disconnect(c Conn) {
	h.Unregister(c)

	cs := h.shardFor(connKey(c.ID()))
	cs.mu.Lock()
	groups := cs.joined[c.ID()]
	delete(cs.joined, c.ID())
	cs.mu.Unlock()

	for groupID := range groups {
		h.leaveRoom(groupID, c.ID())
	}
}

// CloseAll closes every registered connection. Their pumps call Disconnect
// as they exit.
func (h *Hub) CloseAll() {
	var all []Conn
	for _, s := range h.shards {
		s.mu.RLock()
		for _, set := range s.presence {
			for _, c := range set {
				all = append(all, c)
			}
		}
		s.mu.RUnlock()
	}
	for _, c := range all {
		c.Close()
	}
	h.log.Info().Int("connections", len(all)).Msg("closed all live connections")
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	n := 0
	for _, s := range h.shards {
		s.mu.RLock()
		for _, set := range s.presence {
			n += len(set)
		}
		s.mu.RUnlock()
	}
	return n
}

func connKey(connID string) string {
	return "conn:" + connID
}
