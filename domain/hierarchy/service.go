// Package hierarchy keeps the parent/child pointer between tickets acyclic
// and referentially valid.
package hierarchy

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/markus-michalski/osticket-subticket-manager/domain/tickets"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/logger"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/tracing"
)

// DefaultWalkLimit is the hop cap of the upward parent walk.
const DefaultWalkLimit = 10

// Store is the relation store the service reads and writes.
type Store interface {
	Exists(ctx context.Context, id int64) (bool, error)
	GetParentID(ctx context.Context, id int64) (*int64, error)
	SetParentID(ctx context.Context, childID int64, parentID *int64) error
	FindIDByNumber(ctx context.Context, number string) (*int64, error)
	ListChildren(ctx context.Context, parentID int64) ([]tickets.Child, error)
	GetParentRecord(ctx context.Context, childID int64) (*tickets.ParentRecord, error)
	CountChildren(ctx context.Context, parentID int64) (int, error)
}

// Limits bound the shape of the hierarchy. Zero disables MaxDepth and
// MaxChildren; WalkLimit falls back to DefaultWalkLimit.
type Limits struct {
	WalkLimit   int
	MaxDepth    int
	MaxChildren int
}

// Service links and unlinks tickets. It holds no state between calls and
// takes no locks: two concurrent links of the same child end with whichever
// write lands last.
type Service struct {
	store  Store
	limits Limits
	log    *slog.Logger
}

// NewService creates a new hierarchy service
func NewService(store Store, limits Limits, log *slog.Logger) *Service {
	if limits.WalkLimit <= 0 {
		limits.WalkLimit = DefaultWalkLimit
	}
	return &Service{
		store:  store,
		limits: limits,
		log:    log.With(logger.Scope("hierarchy.svc")),
	}
}

// Limits returns the limits the service enforces.
func (s *Service) Limits() Limits {
	return s.limits
}

// LinkTicket makes parentID the parent of childID.
// Checks run cheapest first and stop at the first failure; nothing is
// written unless all of them pass.
func (s *Service) LinkTicket(ctx context.Context, childID, parentID int64) (err error) {
	ctx, span := tracing.Start(ctx, "hierarchy.link",
		attribute.Int64("ticket.child_id", childID),
		attribute.Int64("ticket.parent_id", parentID),
	)
	defer func() {
		tracing.Fail(span, err)
		span.End()
		observe("link", err)
	}()

	if childID <= 0 || parentID <= 0 {
		return ErrInvalidTicketID
	}
	if childID == parentID {
		return ErrSelfLink
	}

	ok, err := s.store.Exists(ctx, childID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTicketNotFound
	}
	ok, err = s.store.Exists(ctx, parentID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrParentNotFound
	}

	// Walking up from the new parent must not reach the child.
	w, err := s.walk(ctx, parentID, childID)
	if err != nil {
		return err
	}
	if w.found {
		s.log.Warn("circular link rejected",
			slog.Int64("child_id", childID),
			slog.Int64("parent_id", parentID),
		)
		return ErrCircularDependency
	}

	if s.limits.MaxDepth > 0 {
		// parent sits at level ancestors+1, the child lands one below it
		if w.ancestors+2 > s.limits.MaxDepth {
			return ErrMaxDepthExceeded
		}
	}

	if s.limits.MaxChildren > 0 {
		current, err := s.store.GetParentID(ctx, childID)
		if err != nil {
			return err
		}
		if current == nil || *current != parentID {
			n, err := s.store.CountChildren(ctx, parentID)
			if err != nil {
				return err
			}
			if n >= s.limits.MaxChildren {
				return ErrMaxChildrenExceeded
			}
		}
	}

	if err := s.store.SetParentID(ctx, childID, &parentID); err != nil {
		return err
	}

	s.log.Info("ticket linked",
		slog.Int64("child_id", childID),
		slog.Int64("parent_id", parentID),
	)
	return nil
}

// LinkTicketByNumber resolves the parent's public number and links to it.
func (s *Service) LinkTicketByNumber(ctx context.Context, childID int64, parentNumber string) error {
	if childID <= 0 {
		observe("link_by_number", ErrInvalidTicketID)
		return ErrInvalidTicketID
	}
	id, err := s.ResolveNumber(ctx, parentNumber)
	if err != nil {
		return err
	}
	return s.LinkTicket(ctx, childID, id)
}

// ResolveNumber returns the id of the ticket with the given public number.
func (s *Service) ResolveNumber(ctx context.Context, number string) (int64, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		observe("link_by_number", ErrParentNumberNotFound)
		return 0, ErrParentNumberNotFound
	}

	id, err := s.store.FindIDByNumber(ctx, number)
	if err != nil {
		observe("link_by_number", err)
		return 0, err
	}
	if id == nil {
		observe("link_by_number", ErrParentNumberNotFound)
		return 0, ErrParentNumberNotFound
	}
	return *id, nil
}

// LinkTicketByNumberInt accepts a numeric ticket number.
func (s *Service) LinkTicketByNumberInt(ctx context.Context, childID int64, parentNumber int64) error {
	return s.LinkTicketByNumber(ctx, childID, strconv.FormatInt(parentNumber, 10))
}

// UnlinkTicket detaches childID from its parent. It does not check that the
// ticket exists or has a parent; repeating it is harmless.
func (s *Service) UnlinkTicket(ctx context.Context, childID int64) (err error) {
	ctx, span := tracing.Start(ctx, "hierarchy.unlink",
		attribute.Int64("ticket.child_id", childID),
	)
	defer func() {
		tracing.Fail(span, err)
		span.End()
		observe("unlink", err)
	}()

	if childID <= 0 {
		return ErrInvalidTicketID
	}
	if err := s.store.SetParentID(ctx, childID, nil); err != nil {
		return err
	}

	s.log.Info("ticket unlinked", slog.Int64("child_id", childID))
	return nil
}

// GetChildren lists the direct children of parentID, oldest first.
// An invalid id yields an empty list.
func (s *Service) GetChildren(ctx context.Context, parentID int64) (children []tickets.Child, err error) {
	ctx, span := tracing.Start(ctx, "hierarchy.children",
		attribute.Int64("ticket.parent_id", parentID),
	)
	defer func() {
		tracing.Fail(span, err)
		span.End()
		observe("children", err)
	}()

	if parentID <= 0 {
		return []tickets.Child{}, nil
	}
	children, err = s.store.ListChildren(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if children == nil {
		children = []tickets.Child{}
	}
	return children, nil
}

// GetParent returns the parent of childID, or nil.
func (s *Service) GetParent(ctx context.Context, childID int64) (rec *tickets.ParentRecord, err error) {
	ctx, span := tracing.Start(ctx, "hierarchy.parent",
		attribute.Int64("ticket.child_id", childID),
	)
	defer func() {
		tracing.Fail(span, err)
		span.End()
		observe("parent", err)
	}()

	if childID <= 0 {
		return nil, nil
	}
	return s.store.GetParentRecord(ctx, childID)
}

// IsDescendant reports whether ancestorID is reached by walking parent
// pointers up from ticketID. A walk that hits the hop cap answers false.
func (s *Service) IsDescendant(ctx context.Context, ticketID, ancestorID int64) (bool, error) {
	if ticketID <= 0 || ancestorID <= 0 {
		return false, nil
	}
	w, err := s.walk(ctx, ticketID, ancestorID)
	if err != nil {
		return false, err
	}
	return w.found, nil
}

type walkResult struct {
	// target was met on the way up
	found bool

	// parents seen before stopping
	ancestors int
}

func (s *Service) walk(ctx context.Context, from, target int64) (walkResult, error) {
	var w walkResult
	current := from
	for hop := 0; hop < s.limits.WalkLimit; hop++ {
		parent, err := s.store.GetParentID(ctx, current)
		if err != nil {
			return w, fmt.Errorf("walk from ticket %d: %w", from, err)
		}
		if parent == nil {
			return w, nil
		}
		w.ancestors++
		if *parent == target {
			w.found = true
			return w, nil
		}
		current = *parent
	}

	s.log.Debug("parent walk hit hop cap",
		slog.Int64("from", from),
		slog.Int("limit", s.limits.WalkLimit),
	)
	return w, nil
}
