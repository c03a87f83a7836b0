// Package testutil provides in-memory doubles shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/markus-michalski/osticket-subticket-manager/domain/tickets"
)

// TicketStore is an in-memory ticket table. It counts writes so tests can
// assert that rejected operations never touched the store.
type TicketStore struct {
	mu      sync.Mutex
	tickets map[int64]*tickets.Ticket
	nextID  int64
	writes  int
	reads   int
	clock   time.Time

	// FailWith, when set, is returned by every call.
	FailWith error
}

// NewTicketStore creates an empty store.
func NewTicketStore() *TicketStore {
	return &TicketStore{
		tickets: make(map[int64]*tickets.Ticket),
		nextID:  1,
		clock:   time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

// Add inserts a root ticket with the given id and number in department 1.
// Each added ticket is created one minute after the previous one.
func (s *TicketStore) Add(id int64, number string) *tickets.Ticket {
	return s.AddTicket(tickets.Ticket{ID: id, Number: number, DepartmentID: 1, UserID: 100})
}

// AddTicket inserts a copy of t. Zero ID, number or status are filled in.
func (s *TicketStore) AddTicket(t tickets.Ticket) *tickets.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == 0 {
		t.ID = s.nextID
	}
	if t.ID >= s.nextID {
		s.nextID = t.ID + 1
	}
	if t.Number == "" {
		t.Number = fmt.Sprintf("%06d", 100000+t.ID)
	}
	if t.Status == "" {
		t.Status = tickets.StatusOpen
	}
	if t.Subject == "" {
		t.Subject = fmt.Sprintf("Ticket %d", t.ID)
	}
	if t.CreatedAt.IsZero() {
		s.clock = s.clock.Add(time.Minute)
		t.CreatedAt = s.clock
	}
	t.UpdatedAt = t.CreatedAt

	s.tickets[t.ID] = &t
	out := t
	return &out
}

// Chain adds tickets ids[0..n] where each one is the parent of the next.
func (s *TicketStore) Chain(ids ...int64) {
	for i, id := range ids {
		t := tickets.Ticket{ID: id, DepartmentID: 1, UserID: 100}
		if i > 0 {
			parent := ids[i-1]
			t.ParentID = &parent
		}
		s.AddTicket(t)
	}
}

// Writes returns the number of mutating calls that reached the store.
func (s *TicketStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Reads returns the number of read calls that reached the store.
func (s *TicketStore) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Parent returns the raw parent pointer of id.
func (s *TicketStore) Parent(id int64) *int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok || t.ParentID == nil {
		return nil
	}
	p := *t.ParentID
	return &p
}

func (s *TicketStore) read() error {
	s.reads++
	return s.FailWith
}

func (s *TicketStore) Exists(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.read(); err != nil {
		return false, err
	}
	_, ok := s.tickets[id]
	return ok, nil
}

func (s *TicketStore) GetParentID(_ context.Context, id int64) (*int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.read(); err != nil {
		return nil, err
	}
	t, ok := s.tickets[id]
	if !ok || t.ParentID == nil {
		return nil, nil
	}
	p := *t.ParentID
	return &p, nil
}

// SetParentID mirrors the schema: zero matched rows succeed and an unknown
// parent fails like the foreign key would.
func (s *TicketStore) SetParentID(_ context.Context, childID int64, parentID *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.FailWith != nil {
		return s.FailWith
	}
	if parentID != nil {
		if _, ok := s.tickets[*parentID]; !ok {
			return fmt.Errorf("foreign key violation: parent %d", *parentID)
		}
	}
	t, ok := s.tickets[childID]
	if !ok {
		return nil
	}
	if parentID == nil {
		t.ParentID = nil
	} else {
		p := *parentID
		t.ParentID = &p
	}
	return nil
}

func (s *TicketStore) FindIDByNumber(_ context.Context, number string) (*int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.read(); err != nil {
		return nil, err
	}
	for _, t := range s.tickets {
		if t.Number == number {
			id := t.ID
			return &id, nil
		}
	}
	return nil, nil
}

func (s *TicketStore) ListChildren(_ context.Context, parentID int64) ([]tickets.Child, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.read(); err != nil {
		return nil, err
	}
	children := []tickets.Child{}
	for _, t := range s.tickets {
		if t.ParentID != nil && *t.ParentID == parentID {
			children = append(children, tickets.Child{
				ID:           t.ID,
				Number:       t.Number,
				Subject:      t.Subject,
				Status:       t.Status,
				CreatedAt:    t.CreatedAt,
				DepartmentID: t.DepartmentID,
				StaffID:      t.StaffID,
			})
		}
	}
	sort.Slice(children, func(i, j int) bool {
		if children[i].CreatedAt.Equal(children[j].CreatedAt) {
			return children[i].ID < children[j].ID
		}
		return children[i].CreatedAt.Before(children[j].CreatedAt)
	})
	return children, nil
}

func (s *TicketStore) GetParentRecord(_ context.Context, childID int64) (*tickets.ParentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.read(); err != nil {
		return nil, err
	}
	child, ok := s.tickets[childID]
	if !ok || child.ParentID == nil {
		return nil, nil
	}
	p, ok := s.tickets[*child.ParentID]
	if !ok {
		return nil, nil
	}
	return &tickets.ParentRecord{
		ID:           p.ID,
		Number:       p.Number,
		Subject:      p.Subject,
		Status:       p.Status,
		DepartmentID: p.DepartmentID,
		StaffID:      p.StaffID,
	}, nil
}

func (s *TicketStore) CountChildren(_ context.Context, parentID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.read(); err != nil {
		return 0, err
	}
	n := 0
	for _, t := range s.tickets {
		if t.ParentID != nil && *t.ParentID == parentID {
			n++
		}
	}
	return n, nil
}

func (s *TicketStore) GetByID(_ context.Context, id int64) (*tickets.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.read(); err != nil {
		return nil, err
	}
	t, ok := s.tickets[id]
	if !ok {
		return nil, nil
	}
	out := *t
	return &out, nil
}

// CreateChild inserts an unlinked ticket inheriting parent's requester fields.
func (s *TicketStore) CreateChild(_ context.Context, parent *tickets.Ticket, in tickets.NewChild) (*tickets.Ticket, error) {
	s.mu.Lock()
	s.writes++
	fail := s.FailWith
	s.mu.Unlock()
	if fail != nil {
		return nil, fail
	}

	return s.AddTicket(tickets.Ticket{
		Subject:      in.Subject,
		DepartmentID: in.DepartmentID,
		UserID:       parent.UserID,
		TopicID:      parent.TopicID,
		PriorityID:   parent.PriorityID,
		SLAID:        parent.SLAID,
	}), nil
}
