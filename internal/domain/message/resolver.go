package message

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"collab-server/services/groupchat-api/internal/domain/identity"
)

// Directory performs batch name lookups against the identity tables.
type Directory interface {
	EmployeeNames(ctx context.Context, ids []int64) (map[int64]string, error)
	CustomerNames(ctx context.Context, ids []int64) (map[int64]string, error)
}

// NameCache stores resolved display names keyed by table and id.
type NameCache interface {
	GetMany(ctx context.Context, keys []string) map[string]string
	SetMany(ctx context.Context, entries map[string]string)
}

// SenderRef identifies a message author.
type SenderRef struct {
	Type identity.SenderType
	ID   int64
}

// Resolver maps senders to display names. It never fails: anything it cannot
// resolve gets the "{senderType}:{senderId}" label.
type Resolver interface {
	Resolve(ctx context.Context, refs []SenderRef) map[SenderRef]string
	ResolveOne(ctx context.Context, ref SenderRef) string
}

type resolver struct {
	directory Directory
	cache     NameCache
	log       zerolog.Logger
}

// NewResolver creates a sender-name resolver. cache may be nil.
func NewResolver(directory Directory, cache NameCache, log zerolog.Logger) Resolver {
	return &resolver{
		directory: directory,
		cache:     cache,
		log:       log.With().Str("component", "sender-name-resolver").Logger(),
	}
}

func (r *resolver) ResolveOne(ctx context.Context, ref SenderRef) string {
	return r.Resolve(ctx, []SenderRef{ref})[ref]
}

// Resolve issues at most one lookup per backing table: employees and admins
// share the employee table, customers use the customer table.
func (r *resolver) Resolve(ctx context.Context, refs []SenderRef) map[SenderRef]string {
	out := make(map[SenderRef]string, len(refs))
	if len(refs) == 0 {
		return out
	}

	employeeIDs := newIDSet()
	customerIDs := newIDSet()
	for _, ref := range refs {
		switch ref.Type {
		case identity.SenderEmployee, identity.SenderAdmin:
			employeeIDs.add(ref.ID)
		case identity.SenderCustomer:
			customerIDs.add(ref.ID)
		case identity.SenderSystem, identity.SenderUnknown:
		}
	}

	employees := r.cached(ctx, employeeKey, employeeIDs)
	customers := r.cached(ctx, customerKey, customerIDs)

	employeeMisses := employeeIDs.missing(employees)
	customerMisses := customerIDs.missing(customers)

	var (
		g             errgroup.Group
		employeeFound map[int64]string
		customerFound map[int64]string
	)
	if len(employeeMisses) > 0 {
		g.Go(func() error {
			names, err := r.directory.EmployeeNames(ctx, employeeMisses)
			if err != nil {
				r.log.Warn().Err(err).Int("count", len(employeeMisses)).Msg("employee name lookup failed")
				return nil
			}
			employeeFound = names
			return nil
		})
	}
	if len(customerMisses) > 0 {
		g.Go(func() error {
			names, err := r.directory.CustomerNames(ctx, customerMisses)
			if err != nil {
				r.log.Warn().Err(err).Int("count", len(customerMisses)).Msg("customer name lookup failed")
				return nil
			}
			customerFound = names
			return nil
		})
	}
	_ = g.Wait()

	r.remember(ctx, employeeKey, employeeFound)
	r.remember(ctx, customerKey, customerFound)
	for id, name := range employeeFound {
		employees[id] = name
	}
	for id, name := range customerFound {
		customers[id] = name
	}

	for _, ref := range refs {
		var (
			name string
			ok   bool
		)
		switch ref.Type {
		case identity.SenderEmployee, identity.SenderAdmin:
			name, ok = employees[ref.ID]
		case identity.SenderCustomer:
			name, ok = customers[ref.ID]
		case identity.SenderSystem:
			name, ok = "System", true
		case identity.SenderUnknown:
		}
		if !ok || name == "" {
			name = identity.FallbackName(ref.Type, ref.ID)
		}
		out[ref] = name
	}
	return out
}

func (r *resolver) cached(ctx context.Context, keyFn func(int64) string, ids idSet) map[int64]string {
	found := make(map[int64]string)
	if r.cache == nil || len(ids.order) == 0 {
		return found
	}

	keys := make([]string, 0, len(ids.order))
	byKey := make(map[string]int64, len(ids.order))
	for _, id := range ids.order {
		k := keyFn(id)
		keys = append(keys, k)
		byKey[k] = id
	}
	for k, name := range r.cache.GetMany(ctx, keys) {
		found[byKey[k]] = name
	}
	return found
}

func (r *resolver) remember(ctx context.Context, keyFn func(int64) string, names map[int64]string) {
	if r.cache == nil || len(names) == 0 {
		return
	}
	entries := make(map[string]string, len(names))
	for id, name := range names {
		entries[keyFn(id)] = name
	}
	r.cache.SetMany(ctx, entries)
}

func employeeKey(id int64) string { return "employee:" + strconv.FormatInt(id, 10) }
func customerKey(id int64) string { return "customer:" + strconv.FormatInt(id, 10) }

type idSet struct {
	seen  map[int64]struct{}
	order []int64
}

func newIDSet() idSet {
	return idSet{seen: make(map[int64]struct{})}
}

func (s *idSet) add(id int64) {
	if _, ok := s.seen[id]; ok {
		return
	}
	s.seen[id] = struct{}{}
	s.order = append(s.order, id)
}

func (s idSet) missing(found map[int64]string) []int64 {
	var out []int64
	for _, id := range s.order {
		if _, ok := found[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
