package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"collab-server/services/groupchat-api/internal/domain/group"
	"collab-server/services/groupchat-api/internal/domain/identity"
	"collab-server/services/groupchat-api/internal/domain/membership"
	"collab-server/services/groupchat-api/internal/domain/message"
	"collab-server/services/groupchat-api/internal/domain/transaction"
	"collab-server/services/groupchat-api/internal/utils/platformerrors"
)

var (
	// ErrDuplicateMember is returned when a participant already belongs to the group.
	ErrDuplicateMember = errors.New("participant is already a member of the group")
	// ErrGroupNotFound is returned when a row references a missing group.
	ErrGroupNotFound = errors.New("group not found")
)

// Employee is a directory row of the memory store.
type Employee struct {
	ID    int64
	Name  string
	Email string
	Role  identity.Role
	OrgID int64
}

// Customer is a directory row of the memory store.
type Customer struct {
	ID    int64
	Name  string
	Email string
	OrgID int64
}

// MemoryStore is a mutex-based in-memory store for groups, memberships,
// messages and the identity directory. It backs STORE_DRIVER=memory and the
// tests. Thread-safe via sync.RWMutex.
type MemoryStore struct {
	mu          sync.RWMutex
	txMu        sync.Mutex
	groups      map[int64]*group.Group
	memberships []membership.Membership
	messages    []message.Message
	employees   map[int64]Employee
	customers   map[int64]Customer
	nextGroup   int64
	nextMember  int64
	nextMessage int64
	log         zerolog.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(log zerolog.Logger) *MemoryStore {
	return &MemoryStore{
		groups:    make(map[int64]*group.Group),
		employees: make(map[int64]Employee),
		customers: make(map[int64]Customer),
		log:       log.With().Str("component", "memory-store").Logger(),
	}
}

// PutEmployee upserts a directory employee.
func (s *MemoryStore) PutEmployee(e Employee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees[e.ID] = e
}

// PutCustomer upserts a directory customer.
func (s *MemoryStore) PutCustomer(c Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[c.ID] = c
}

// Groups returns the group repository view.
func (s *MemoryStore) Groups() *MemoryGroups { return &MemoryGroups{s: s} }

// Memberships returns the membership repository view.
func (s *MemoryStore) Memberships() *MemoryMemberships { return &MemoryMemberships{s: s} }

// Messages returns the message repository view.
func (s *MemoryStore) Messages() *MemoryMessages { return &MemoryMessages{s: s} }

// Directory returns the identity directory view.
func (s *MemoryStore) Directory() *MemoryDirectory { return &MemoryDirectory{s: s} }

type memoryTxKey struct{}

// Do runs fn as one unit of work. Units are serialized; nested calls join the
// outer unit. The memory store does not roll back partial writes.
func (s *MemoryStore) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memoryTxKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(context.WithValue(ctx, memoryTxKey{}, true))
}

var _ transaction.Manager = (*MemoryStore)(nil)

// MemoryGroups implements group.Repository and message.GroupStamper.
type MemoryGroups struct{ s *MemoryStore }

var (
	_ group.Repository     = (*MemoryGroups)(nil)
	_ message.GroupStamper = (*MemoryGroups)(nil)
)

// Create stores a new group.
func (r *MemoryGroups) Create(_ context.Context, g *group.Group) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.nextGroup++
	g.ID = r.s.nextGroup
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	stored := *g
	r.s.groups[g.ID] = &stored
	return nil
}

// Get retrieves a group by ID.
func (r *MemoryGroups) Get(_ context.Context, id int64) (*group.Group, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	g, ok := r.s.groups[id]
	if !ok {
		return nil, nil
	}
	out := *g
	return &out, nil
}

// LockProject is a no-op: the memory unit of work already serializes writers.
func (r *MemoryGroups) LockProject(context.Context, int64) error { return nil }

// FindByProject retrieves the oldest group of a project.
func (r *MemoryGroups) FindByProject(_ context.Context, projectID int64) (*group.Group, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var found *group.Group
	for _, g := range r.s.groups {
		if g.ProjectID == projectID && (found == nil || g.ID < found.ID) {
			found = g
		}
	}
	if found == nil {
		return nil, nil
	}
	out := *found
	return &out, nil
}

// GetMany retrieves several groups by ID.
func (r *MemoryGroups) GetMany(_ context.Context, ids []int64) (map[int64]group.Group, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make(map[int64]group.Group, len(ids))
	for _, id := range ids {
		if g, ok := r.s.groups[id]; ok {
			out[id] = *g
		}
	}
	return out, nil
}

// CountMembers counts the memberships of each group.
func (r *MemoryGroups) CountMembers(_ context.Context, ids []int64) (map[int64]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make(map[int64]int, len(ids))
	for _, m := range r.s.memberships {
		if _, ok := want[m.GroupID]; ok {
			out[m.GroupID]++
		}
	}
	return out, nil
}

// StampLastMessage moves last_message_at forward only.
func (r *MemoryGroups) StampLastMessage(_ context.Context, groupID int64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.groups[groupID]
	if !ok {
		return nil
	}
	if g.LastMessageAt == nil || g.LastMessageAt.Before(at) {
		stamp := at
		g.LastMessageAt = &stamp
	}
	return nil
}

// MemoryMemberships implements membership.Repository.
type MemoryMemberships struct{ s *MemoryStore }

var _ membership.Repository = (*MemoryMemberships)(nil)

// Add stores a membership, rejecting duplicates.
func (r *MemoryMemberships) Add(ctx context.Context, m *membership.Membership) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.groups[m.GroupID]; !ok {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
			"group not found", ErrGroupNotFound, "membership-create-notfound-001")
	}
	kind, id := m.Participant()
	pred, ok := membership.PredicateFor(m.GroupID, kind, id)
	if !ok {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeValidation,
			"membership must name an employee or a customer", nil, "membership-create-validation-001")
	}
	for _, existing := range r.s.memberships {
		if pred.Matches(existing) {
			return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict,
				"participant is already a member of the group", ErrDuplicateMember, "membership-create-conflict-001")
		}
	}

	r.s.nextMember++
	m.ID = r.s.nextMember
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}
	if m.Role == "" {
		m.Role = membership.RoleMember
	}
	r.s.memberships = append(r.s.memberships, *m)
	return nil
}

// Find returns the membership matching the predicate.
func (r *MemoryMemberships) Find(_ context.Context, p membership.Predicate) (*membership.Membership, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, m := range r.s.memberships {
		if p.Matches(m) {
			out := m
			return &out, nil
		}
	}
	return nil, nil
}

// ListByGroup returns the memberships of a group in join order.
func (r *MemoryMemberships) ListByGroup(_ context.Context, groupID int64) ([]membership.Membership, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []membership.Membership
	for _, m := range r.s.memberships {
		if m.GroupID == groupID {
			out = append(out, m)
		}
	}
	return out, nil
}

// ListByParticipant returns the memberships held by one participant.
func (r *MemoryMemberships) ListByParticipant(_ context.Context, kind identity.MemberKind, participantID int64) ([]membership.Membership, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []membership.Membership
	for _, m := range r.s.memberships {
		k, id := m.Participant()
		if k == kind && id == participantID {
			out = append(out, m)
		}
	}
	return out, nil
}

// MemoryMessages implements message.Repository.
type MemoryMessages struct{ s *MemoryStore }

var _ message.Repository = (*MemoryMessages)(nil)

// Create appends a message.
func (r *MemoryMessages) Create(ctx context.Context, m *message.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.groups[m.GroupID]; !ok {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
			"group not found", ErrGroupNotFound, "message-create-notfound-001")
	}
	r.s.nextMessage++
	m.ID = r.s.nextMessage
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	r.s.messages = append(r.s.messages, *m)
	return nil
}

// Get retrieves a message by ID.
func (r *MemoryMessages) Get(_ context.Context, id int64) (*message.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, m := range r.s.messages {
		if m.ID == id {
			out := m
			return &out, nil
		}
	}
	return nil, nil
}

// ListPage returns a page ordered by (created_at, id) descending.
func (r *MemoryMessages) ListPage(_ context.Context, q message.PageQuery) ([]message.Message, error) {
	r.s.mu.RLock()
	var rows []message.Message
	for _, m := range r.s.messages {
		if m.GroupID != q.GroupID {
			continue
		}
		if q.Before != nil && !m.Position().Before(*q.Before) {
			continue
		}
		if q.BeforeID != nil && m.ID >= *q.BeforeID {
			continue
		}
		rows = append(rows, m)
	}
	r.s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		return rows[j].Position().Before(rows[i].Position())
	})
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return rows, nil
}

// MemoryDirectory implements message.Directory and group.AdminDirectory.
type MemoryDirectory struct{ s *MemoryStore }

var (
	_ message.Directory    = (*MemoryDirectory)(nil)
	_ group.AdminDirectory = (*MemoryDirectory)(nil)
)

// EmployeeNames looks up employee display names.
func (r *MemoryDirectory) EmployeeNames(_ context.Context, ids []int64) (map[int64]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make(map[int64]string, len(ids))
	for _, id := range ids {
		if e, ok := r.s.employees[id]; ok && e.Name != "" {
			out[id] = e.Name
		}
	}
	return out, nil
}

// CustomerNames looks up customer display names.
func (r *MemoryDirectory) CustomerNames(_ context.Context, ids []int64) (map[int64]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make(map[int64]string, len(ids))
	for _, id := range ids {
		if c, ok := r.s.customers[id]; ok && c.Name != "" {
			out[id] = c.Name
		}
	}
	return out, nil
}

// OrgAdminIDs lists the administrators of an organization in id order.
func (r *MemoryDirectory) OrgAdminIDs(_ context.Context, orgID int64) ([]int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []int64
	for _, e := range r.s.employees {
		if e.Role == identity.RoleAdmin && e.OrgID == orgID {
			out = append(out, e.ID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
