package tickets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/uptrace/bun"

	"github.com/markus-michalski/osticket-subticket-manager/internal/database"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/apperror"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/logger"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/pgutils"
)

// numberAttempts bounds the retries on a ticket number collision.
const numberAttempts = 5

// ErrNumberExhausted is returned when no free ticket number was found.
var ErrNumberExhausted = errors.New("tickets: could not allocate a unique ticket number")

// Repository handles database operations for tickets
type Repository struct {
	db        bun.IDB
	log       *slog.Logger
	newNumber func() string
}

// NewRepository creates a new tickets repository
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:        db,
		log:       log.With(logger.Scope("tickets.repo")),
		newNumber: randomNumber,
	}
}

// randomNumber returns a six digit public ticket number.
func randomNumber() string {
	return fmt.Sprintf("%06d", 100000+rand.IntN(900000))
}

// Exists reports whether a ticket with id exists
func (r *Repository) Exists(ctx context.Context, id int64) (bool, error) {
	ok, err := r.db.NewSelect().
		Model((*Ticket)(nil)).
		Where("id = ?", id).
		Exists(ctx)
	if err != nil {
		r.log.Error("failed to check ticket existence", slog.Int64("ticket_id", id), logger.Error(err))
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	return ok, nil
}

// GetParentID returns the parent id of a ticket. nil means no parent or no
// such ticket.
func (r *Repository) GetParentID(ctx context.Context, id int64) (*int64, error) {
	var parent sql.NullInt64
	err := r.db.NewSelect().
		Model((*Ticket)(nil)).
		Column("parent_id").
		Where("id = ?", id).
		Limit(1).
		Scan(ctx, &parent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.log.Error("failed to get parent id", slog.Int64("ticket_id", id), logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	if !parent.Valid {
		return nil, nil
	}
	return &parent.Int64, nil
}

// SetParentID points childID at parentID, or detaches it when parentID is nil.
// A single UPDATE scoped by primary key; zero affected rows is not an error.
func (r *Repository) SetParentID(ctx context.Context, childID int64, parentID *int64) error {
	_, err := r.db.NewUpdate().
		Model((*Ticket)(nil)).
		Set("parent_id = ?", parentID).
		Set("updated_at = now()").
		Where("id = ?", childID).
		Exec(ctx)
	if err != nil {
		if pgutils.IsForeignKeyViolation(err) {
			return apperror.ErrNotFound.WithMessage("Parent ticket not found").WithInternal(err)
		}
		if pgutils.IsCheckViolation(err) {
			return apperror.ErrIntegrity.WithMessage("A ticket cannot be its own parent").WithInternal(err)
		}
		r.log.Error("failed to set parent id",
			slog.Int64("ticket_id", childID),
			logger.Error(err),
		)
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// FindIDByNumber resolves a public ticket number to its id. nil when unknown.
func (r *Repository) FindIDByNumber(ctx context.Context, number string) (*int64, error) {
	var id int64
	err := r.db.NewSelect().
		Model((*Ticket)(nil)).
		Column("id").
		Where("number = ?", number).
		Limit(1).
		Scan(ctx, &id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.log.Error("failed to find ticket by number", slog.String("number", number), logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return &id, nil
}

// ListChildren returns the direct children of parentID, oldest first
func (r *Repository) ListChildren(ctx context.Context, parentID int64) ([]Child, error) {
	children := []Child{}
	err := r.db.NewSelect().
		Model((*Ticket)(nil)).
		Column("id", "number", "subject", "status", "created_at", "department_id", "staff_id").
		Where("parent_id = ?", parentID).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx, &children)
	if err != nil {
		r.log.Error("failed to list children", slog.Int64("parent_id", parentID), logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return children, nil
}

// GetParentRecord returns the parent of childID, or nil when it has none
func (r *Repository) GetParentRecord(ctx context.Context, childID int64) (*ParentRecord, error) {
	rec := &ParentRecord{}
	err := r.db.NewSelect().
		TableExpr("ticket AS c").
		Join("JOIN ticket AS p ON p.id = c.parent_id").
		ColumnExpr("p.id, p.number, p.subject, p.status, p.department_id, p.staff_id").
		Where("c.id = ?", childID).
		Limit(1).
		Scan(ctx, rec)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.log.Error("failed to get parent record", slog.Int64("ticket_id", childID), logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return rec, nil
}

// CountChildren returns the number of direct children of parentID
func (r *Repository) CountChildren(ctx context.Context, parentID int64) (int, error) {
	n, err := r.db.NewSelect().
		Model((*Ticket)(nil)).
		Where("parent_id = ?", parentID).
		Count(ctx)
	if err != nil {
		r.log.Error("failed to count children", slog.Int64("parent_id", parentID), logger.Error(err))
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	return n, nil
}

// GetByID returns a ticket by id, or nil when it does not exist
func (r *Repository) GetByID(ctx context.Context, id int64) (*Ticket, error) {
	t := &Ticket{}
	err := r.db.NewSelect().
		Model(t).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.log.Error("failed to get ticket", slog.Int64("ticket_id", id), logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return t, nil
}

// CreateChild opens a new ticket on behalf of parent's requester. The ticket
// is not linked; parent_id stays null.
func (r *Repository) CreateChild(ctx context.Context, parent *Ticket, in NewChild) (*Ticket, error) {
	tx, err := database.BeginSafeTx(ctx, r.db)
	if err != nil {
		r.log.Error("failed to begin transaction", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	defer func() { _ = tx.Rollback() }()

	t := &Ticket{
		Subject:      in.Subject,
		Status:       StatusOpen,
		DepartmentID: in.DepartmentID,
		UserID:       parent.UserID,
		TopicID:      parent.TopicID,
		PriorityID:   parent.PriorityID,
		SLAID:        parent.SLAID,
	}

	inserted := false
	for attempt := 0; attempt < numberAttempts; attempt++ {
		t.Number = r.newNumber()

		res, err := tx.NewInsert().
			Model(t).
			ExcludeColumn("id", "parent_id", "created_at", "updated_at").
			On("CONFLICT (number) DO NOTHING").
			Returning("id, created_at, updated_at").
			Exec(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			r.log.Error("failed to insert ticket", logger.Error(err))
			return nil, apperror.ErrDatabase.WithInternal(err)
		}
		if err == nil {
			if n, _ := res.RowsAffected(); n > 0 {
				inserted = true
				break
			}
		}

		r.log.Debug("ticket number taken, retrying", slog.String("number", t.Number))
	}
	if !inserted {
		return nil, apperror.ErrDatabase.WithInternal(ErrNumberExhausted)
	}

	entry := &ThreadEntry{
		TicketID: t.ID,
		Body:     in.Message,
	}
	if in.StaffID > 0 {
		staffID := in.StaffID
		entry.StaffID = &staffID
	}
	if _, err := tx.NewInsert().
		Model(entry).
		ExcludeColumn("id", "created_at").
		Returning("id, created_at").
		Exec(ctx); err != nil {
		r.log.Error("failed to insert thread entry", slog.Int64("ticket_id", t.ID), logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	if err := tx.Commit(); err != nil {
		r.log.Error("failed to commit ticket creation", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	r.log.Info("ticket created",
		slog.Int64("ticket_id", t.ID),
		slog.String("number", t.Number),
		slog.Int64("requester_id", t.UserID),
	)
	return t, nil
}
