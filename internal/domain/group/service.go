package group

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"collab-server/services/groupchat-api/internal/domain/events"
	"collab-server/services/groupchat-api/internal/domain/identity"
	"collab-server/services/groupchat-api/internal/domain/membership"
	"collab-server/services/groupchat-api/internal/domain/message"
	"collab-server/services/groupchat-api/internal/domain/transaction"
	"collab-server/services/groupchat-api/internal/utils/platformerrors"
)

// Service manages groups and their memberships.
type Service interface {
	ListForIdentity(ctx context.Context, actor identity.Identity) ([]Summary, error)
	Create(ctx context.Context, actor identity.Identity, in CreateInput) (*Group, error)
	AddMember(ctx context.Context, actor identity.Identity, groupID int64, in MemberInput) (*membership.Membership, error)
	ListMembers(ctx context.Context, actor identity.Identity, groupID int64) ([]Member, error)
	// ProvisionProjectGroup returns the project's group, creating it when
	// missing. created reports whether this call created it.
	ProvisionProjectGroup(ctx context.Context, actor identity.Identity, projectID int64, in ProvisionInput) (g *Group, created bool, err error)
}

// ServiceConfig bundles the collaborators of the group service.
type ServiceConfig struct {
	Groups      Repository
	Memberships membership.Repository
	Oracle      membership.Oracle
	Admins      AdminDirectory
	Pipeline    message.Pipeline
	Resolver    message.Resolver
	Tx          transaction.Manager
	Notifier    Notifier
	Observer    events.Observer
}

type service struct {
	groups      Repository
	memberships membership.Repository
	oracle      membership.Oracle
	admins      AdminDirectory
	pipeline    message.Pipeline
	resolver    message.Resolver
	tx          transaction.Manager
	notifier    Notifier
	observer    events.Observer
	log         zerolog.Logger
}

// NewService creates the group service.
func NewService(cfg ServiceConfig, log zerolog.Logger) Service {
	s := &service{
		groups:      cfg.Groups,
		memberships: cfg.Memberships,
		oracle:      cfg.Oracle,
		admins:      cfg.Admins,
		pipeline:    cfg.Pipeline,
		resolver:    cfg.Resolver,
		tx:          cfg.Tx,
		notifier:    cfg.Notifier,
		observer:    cfg.Observer,
		log:         log.With().Str("component", "group-service").Logger(),
	}
	if s.observer == nil {
		s.observer = events.Nop
	}
	if s.tx == nil {
		s.tx = transaction.ManagerFunc(func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		})
	}
	return s
}

func (s *service) ListForIdentity(ctx context.Context, actor identity.Identity) ([]Summary, error) {
	kind := actor.Type.MemberKind()
	if kind == identity.MemberKindNone {
		return []Summary{}, nil
	}

	rows, err := s.memberships.ListByParticipant(ctx, kind, actor.ID)
	if err != nil {
		return nil, storeError(ctx, err, "failed to list memberships", "group-list-db-001")
	}
	if len(rows) == 0 {
		return []Summary{}, nil
	}

	ids := make([]int64, 0, len(rows))
	for _, m := range rows {
		ids = append(ids, m.GroupID)
	}
	groups, err := s.groups.GetMany(ctx, ids)
	if err != nil {
		return nil, storeError(ctx, err, "failed to load groups", "group-list-db-002")
	}
	counts, err := s.groups.CountMembers(ctx, ids)
	if err != nil {
		return nil, storeError(ctx, err, "failed to count members", "group-list-db-003")
	}

	out := make([]Summary, 0, len(rows))
	for _, m := range rows {
		g, ok := groups[m.GroupID]
		if !ok {
			continue
		}
		out = append(out, Summary{
			Group:       g,
			MemberCount: counts[m.GroupID],
			Role:        m.Role,
			JoinedAt:    m.JoinedAt,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := activity(out[i].Group), activity(out[j].Group)
		if ai.Equal(aj) {
			return out[i].ID > out[j].ID
		}
		return ai.After(aj)
	})
	return out, nil
}

func (s *service) Create(ctx context.Context, actor identity.Identity, in CreateInput) (*Group, error) {
	if !actor.IsAdmin() {
		return nil, forbidden(ctx, "group-create-forbidden-001")
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.ProjectID <= 0 || in.Name == "" || in.OrgID <= 0 {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"projectId, name and orgId are required", nil, "group-create-validation-001")
	}

	members := make([]membership.Membership, 0, len(in.Members))
	for i, mi := range in.Members {
		m, err := toMembership(mi)
		if err != nil {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
				fmt.Sprintf("members[%d]: %s", i, err.Error()), nil, "group-create-validation-002")
		}
		members = append(members, m)
	}

	g, view, err := s.createWithMembers(ctx, Group{ProjectID: in.ProjectID, Name: in.Name, OrgID: in.OrgID}, members)
	if err != nil {
		return nil, storeError(ctx, err, "failed to create group", "group-create-db-001")
	}

	s.afterCreate(ctx, actor, g, view)
	return g, nil
}

func (s *service) ProvisionProjectGroup(ctx context.Context, actor identity.Identity, projectID int64, in ProvisionInput) (*Group, bool, error) {
	if !actor.IsAdmin() {
		return nil, false, forbidden(ctx, "group-provision-forbidden-001")
	}
	in.Name = strings.TrimSpace(in.Name)
	if projectID <= 0 || in.Name == "" || in.OrgID <= 0 || in.CustomerID <= 0 {
		return nil, false, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"name, orgId and customerId are required", nil, "group-provision-validation-001")
	}

	var (
		g    *Group
		view *message.View
	)
	err := s.tx.Do(ctx, func(txCtx context.Context) error {
		if err := s.groups.LockProject(txCtx, projectID); err != nil {
			return storeError(txCtx, err, "failed to lock project", "group-provision-db-004")
		}
		existing, err := s.groups.FindByProject(txCtx, projectID)
		if err != nil {
			return storeError(txCtx, err, "failed to look up project group", "group-provision-db-001")
		}
		if existing != nil {
			g = existing
			return nil
		}

		adminIDs, err := s.admins.OrgAdminIDs(txCtx, in.OrgID)
		if err != nil {
			return storeError(txCtx, err, "failed to list org admins", "group-provision-db-002")
		}

		customerID := in.CustomerID
		members := []membership.Membership{{CustomerID: &customerID, Role: membership.RoleMember}}
		for _, id := range adminIDs {
			adminID := id
			members = append(members, membership.Membership{EmployeeID: &adminID, Role: membership.RoleAdmin})
		}

		g, view, err = s.createWithMembers(txCtx, Group{ProjectID: projectID, Name: in.Name, OrgID: in.OrgID}, members)
		if err != nil {
			return storeError(txCtx, err, "failed to provision project group", "group-provision-db-003")
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if view == nil {
		return g, false, nil
	}

	s.afterCreate(ctx, actor, g, view)
	return g, true, nil
}

func (s *service) AddMember(ctx context.Context, actor identity.Identity, groupID int64, in MemberInput) (*membership.Membership, error) {
	if !actor.IsAdmin() {
		return nil, forbidden(ctx, "member-add-forbidden-001")
	}
	m, err := toMembership(in)
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			err.Error(), nil, "member-add-validation-001")
	}

	g, err := s.groups.Get(ctx, groupID)
	if err != nil {
		return nil, storeError(ctx, err, "failed to load group", "member-add-db-001")
	}
	if g == nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound,
			"group not found", nil, "member-add-notfound-001")
	}

	m.GroupID = groupID
	kind, participantID := m.Participant()
	text := fmt.Sprintf("Employee %d added to group", participantID)
	if kind == identity.MemberKindCustomer {
		text = fmt.Sprintf("Customer %d added to group", participantID)
	}

	_, err = s.pipeline.Sequence(ctx, groupID, func(seqCtx context.Context) (*message.View, error) {
		var view *message.View
		err := s.tx.Do(seqCtx, func(txCtx context.Context) error {
			if err := s.memberships.Add(txCtx, &m); err != nil {
				return err
			}
			v, err := s.pipeline.RecordSystem(txCtx, groupID, text)
			if err != nil {
				return err
			}
			view = v
			return nil
		})
		return view, err
	})
	if err != nil {
		return nil, storeError(ctx, err, "failed to add member", "member-add-db-002")
	}

	if s.notifier != nil {
		s.notifier.MemberAdded(ctx, groupID, kind, participantID)
	}
	s.observer.Observe(ctx, events.MemberAdded{
		GroupID:    groupID,
		EmployeeID: m.EmployeeID,
		CustomerID: m.CustomerID,
		Actor:      actor,
	})

	s.log.Info().
		Int64("group_id", groupID).
		Str("participant", kind.String()).
		Int64("participant_id", participantID).
		Msg("member added")
	return &m, nil
}

func (s *service) ListMembers(ctx context.Context, actor identity.Identity, groupID int64) ([]Member, error) {
	ok, err := s.oracle.IsMember(ctx, groupID, actor)
	if err != nil {
		return nil, storeError(ctx, err, "membership lookup failed", "member-list-db-001")
	}
	if !ok {
		s.observer.Observe(ctx, events.HistoryDenied{GroupID: groupID, Actor: actor})
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden,
			message.ReasonNotMember, nil, "member-list-forbidden-001")
	}

	rows, err := s.memberships.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, storeError(ctx, err, "failed to list members", "member-list-db-002")
	}

	refs := make([]message.SenderRef, 0, len(rows))
	for _, m := range rows {
		refs = append(refs, participantRef(m))
	}
	names := s.resolver.Resolve(ctx, refs)

	out := make([]Member, 0, len(rows))
	for _, m := range rows {
		out = append(out, Member{
			ID:         m.ID,
			GroupID:    m.GroupID,
			EmployeeID: m.EmployeeID,
			CustomerID: m.CustomerID,
			Role:       m.Role,
			Name:       names[participantRef(m)],
			JoinedAt:   m.JoinedAt,
		})
	}
	return out, nil
}

// createWithMembers inserts the group, its members and the creation system
// message in one transaction.
func (s *service) createWithMembers(ctx context.Context, g Group, members []membership.Membership) (*Group, *message.View, error) {
	var view *message.View
	err := s.tx.Do(ctx, func(txCtx context.Context) error {
		if err := s.groups.Create(txCtx, &g); err != nil {
			return err
		}
		for i := range members {
			members[i].GroupID = g.ID
			if err := s.memberships.Add(txCtx, &members[i]); err != nil {
				return err
			}
		}
		v, err := s.pipeline.RecordSystem(txCtx, g.ID, CreatedMessage(g.Name))
		if err != nil {
			return err
		}
		view = v
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	// The system message stamped the group inside the transaction.
	g.LastMessageAt = &view.CreatedAt
	return &g, view, nil
}

func (s *service) afterCreate(ctx context.Context, actor identity.Identity, g *Group, view *message.View) {
	s.pipeline.Publish(ctx, *view)
	if s.notifier != nil {
		s.notifier.GroupCreated(ctx, NewCreatedPayload(*g))
	}
	s.observer.Observe(ctx, events.GroupCreated{
		GroupID:   g.ID,
		ProjectID: g.ProjectID,
		OrgID:     g.OrgID,
		Actor:     actor,
	})
	s.log.Info().
		Int64("group_id", g.ID).
		Int64("project_id", g.ProjectID).
		Int64("org_id", g.OrgID).
		Msg("group created")
}

// CreatedMessage is the system message recorded when a group is created.
func CreatedMessage(name string) string {
	return `Group "` + name + `" created.`
}

func activity(g Group) time.Time {
	if g.LastMessageAt != nil {
		return *g.LastMessageAt
	}
	return g.CreatedAt
}

func toMembership(in MemberInput) (membership.Membership, error) {
	hasEmployee := in.EmployeeID != nil && *in.EmployeeID > 0
	hasCustomer := in.CustomerID != nil && *in.CustomerID > 0
	if hasEmployee == hasCustomer {
		return membership.Membership{}, fmt.Errorf("exactly one of employeeId or customerId is required")
	}
	role, ok := membership.ParseRole(in.Role)
	if !ok {
		return membership.Membership{}, fmt.Errorf("unknown role %q", in.Role)
	}

	m := membership.Membership{Role: role}
	if hasEmployee {
		id := *in.EmployeeID
		m.EmployeeID = &id
	} else {
		id := *in.CustomerID
		m.CustomerID = &id
	}
	return m, nil
}

func participantRef(m membership.Membership) message.SenderRef {
	kind, id := m.Participant()
	if kind == identity.MemberKindCustomer {
		return message.SenderRef{Type: identity.SenderCustomer, ID: id}
	}
	return message.SenderRef{Type: identity.SenderEmployee, ID: id}
}

func forbidden(ctx context.Context, code string) *platformerrors.PlatformError {
	return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden,
		"admin role required", nil, code)
}

// storeError keeps the type of a platform error raised below (CONFLICT on a
// duplicate member) and classifies anything else as a database failure.
func storeError(ctx context.Context, err error, msg, code string) error {
	if platformerrors.GetPlatformError(err) != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, msg)
	}
	return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeDatabaseError, msg, err, code)
}
