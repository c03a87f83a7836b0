package tickets

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/markus-michalski/osticket-subticket-manager/pkg/apperror"
)

// newMockRepo returns a repository over sqlmock. bun renders arguments into
// the query text, so expectations match on SQL fragments rather than args.
func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)

	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})

	return NewRepository(db, slog.New(slog.NewTextHandler(io.Discard, nil))), mock
}

func TestRepository_Exists(t *testing.T) {
	ctx := context.Background()

	t.Run("present", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`SELECT EXISTS .*FROM "ticket" AS "t" WHERE \(id = 42\)`).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		ok, err := repo.Exists(ctx, 42)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("absent", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`SELECT EXISTS .*WHERE \(id = 7\)`).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		ok, err := repo.Exists(ctx, 7)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("store fault", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`SELECT EXISTS`).WillReturnError(errors.New("connection reset"))

		_, err := repo.Exists(ctx, 7)
		assert.ErrorIs(t, err, apperror.ErrDatabase)
	})
}

func TestRepository_GetParentID(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		rows *sqlmock.Rows
		want *int64
	}{
		{
			name: "has parent",
			rows: sqlmock.NewRows([]string{"parent_id"}).AddRow(int64(1)),
			want: ptr(int64(1)),
		},
		{
			name: "root ticket",
			rows: sqlmock.NewRows([]string{"parent_id"}).AddRow(nil),
			want: nil,
		},
		{
			name: "missing ticket",
			rows: sqlmock.NewRows([]string{"parent_id"}),
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepo(t)
			mock.ExpectQuery(`SELECT .*parent_id.* FROM "ticket" AS "t" WHERE \(id = 2\)`).
				WillReturnRows(tt.rows)

			got, err := repo.GetParentID(ctx, 2)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRepository_SetParentID(t *testing.T) {
	ctx := context.Background()

	t.Run("link", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(`UPDATE "ticket" AS "t" SET parent_id = 1, updated_at = now\(\) WHERE \(id = 2\)`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.SetParentID(ctx, 2, ptr(int64(1))))
	})

	t.Run("unlink writes NULL", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(`UPDATE "ticket" AS "t" SET parent_id = NULL, updated_at = now\(\) WHERE \(id = 2\)`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.SetParentID(ctx, 2, nil))
	})

	t.Run("zero rows is success", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(`UPDATE "ticket"`).WillReturnResult(sqlmock.NewResult(0, 0))

		assert.NoError(t, repo.SetParentID(ctx, 999, nil))
	})

	t.Run("parent deleted concurrently", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(`UPDATE "ticket"`).
			WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "ticket_parent_id_fkey"})

		err := repo.SetParentID(ctx, 2, ptr(int64(1)))
		assert.ErrorIs(t, err, apperror.ErrNotFound)
	})

	t.Run("self reference rejected by schema", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(`UPDATE "ticket"`).
			WillReturnError(&pgconn.PgError{Code: "23514", ConstraintName: "ticket_parent_not_self"})

		err := repo.SetParentID(ctx, 2, ptr(int64(2)))
		assert.ErrorIs(t, err, apperror.ErrIntegrity)
	})

	t.Run("store fault", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(`UPDATE "ticket"`).WillReturnError(errors.New("disk full"))

		err := repo.SetParentID(ctx, 2, nil)
		assert.ErrorIs(t, err, apperror.ErrDatabase)
	})
}

func TestRepository_FindIDByNumber(t *testing.T) {
	ctx := context.Background()

	t.Run("known number", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`SELECT .*id.* FROM "ticket" AS "t" WHERE \(number = '100001'\)`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

		id, err := repo.FindIDByNumber(ctx, "100001")
		require.NoError(t, err)
		require.NotNil(t, id)
		assert.Equal(t, int64(1), *id)
	})

	t.Run("unknown number", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`WHERE \(number = '424242'\)`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		id, err := repo.FindIDByNumber(ctx, "424242")
		require.NoError(t, err)
		assert.Nil(t, id)
	})

	t.Run("input is bound, not concatenated", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`WHERE \(number = '1'' OR ''1''=''1'\)`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		id, err := repo.FindIDByNumber(ctx, "1' OR '1'='1")
		require.NoError(t, err)
		assert.Nil(t, id)
	})
}

func TestRepository_ListChildren(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockRepo(t)

	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`department_id"?, ("t"\.)?"?staff_id"? FROM "ticket" AS "t" WHERE \(parent_id = 1\) ORDER BY created_at ASC, id ASC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "number", "subject", "status", "created_at", "department_id", "staff_id"}).
			AddRow(int64(2), "100002", "first", StatusOpen, t0, int64(4), nil).
			AddRow(int64(3), "100003", "second", StatusClosed, t0.Add(time.Hour), int64(5), int64(9)))

	children, err := repo.ListChildren(ctx, 1)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, Child{ID: 2, Number: "100002", Subject: "first", Status: StatusOpen, CreatedAt: t0, DepartmentID: 4}, children[0])
	assert.Equal(t, int64(3), children[1].ID)
	assert.Equal(t, int64(5), children[1].DepartmentID)
	require.NotNil(t, children[1].StaffID)
	assert.Equal(t, int64(9), *children[1].StaffID)
}

func TestRepository_ListChildren_Empty(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`WHERE \(parent_id = 5\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "number", "subject", "status", "created_at"}))

	children, err := repo.ListChildren(context.Background(), 5)
	require.NoError(t, err)
	assert.NotNil(t, children)
	assert.Empty(t, children)
}

func TestRepository_GetParentRecord(t *testing.T) {
	ctx := context.Background()

	t.Run("has parent", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`SELECT p.id, p.number, p.subject, p.status, p.department_id, p.staff_id FROM ticket AS c JOIN ticket AS p ON p.id = c.parent_id WHERE \(c.id = 2\)`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "number", "subject", "status", "department_id", "staff_id"}).
				AddRow(int64(1), "100001", "root", StatusOpen, int64(3), nil))

		rec, err := repo.GetParentRecord(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, &ParentRecord{ID: 1, Number: "100001", Subject: "root", Status: StatusOpen, DepartmentID: 3}, rec)
	})

	t.Run("no parent", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`JOIN ticket AS p`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "number", "subject", "status"}))

		rec, err := repo.GetParentRecord(ctx, 1)
		require.NoError(t, err)
		assert.Nil(t, rec)
	})
}

func TestRepository_CountChildren(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`SELECT count\(\*\) FROM "ticket" AS "t" WHERE \(parent_id = 1\)`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := repo.CountChildren(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestRepository_GetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`FROM "ticket" AS "t" WHERE \(id = 1\)`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "number", "department_id", "user_id", "staff_id"}).
				AddRow(int64(1), "100001", int64(4), int64(77), int64(9)))

		tk, err := repo.GetByID(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, tk)
		assert.Equal(t, int64(4), tk.DepartmentID)
		assert.True(t, tk.AssignedTo(9))
		assert.False(t, tk.AssignedTo(10))
	})

	t.Run("missing", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`FROM "ticket" AS "t" WHERE \(id = 404\)`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		tk, err := repo.GetByID(ctx, 404)
		require.NoError(t, err)
		assert.Nil(t, tk)
	})
}

func TestRepository_CreateChild(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockRepo(t)

	numbers := []string{"100001", "555555"}
	repo.newNumber = func() string {
		n := numbers[0]
		numbers = numbers[1:]
		return n
	}

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	parent := &Ticket{ID: 1, Number: "100001", UserID: 77, TopicID: ptr(int64(2)), PriorityID: ptr(int64(3)), SLAID: ptr(int64(4))}

	mock.ExpectBegin()
	// first number collides with the parent's
	mock.ExpectQuery(`INSERT INTO "ticket" .*'100001'.*ON CONFLICT \(number\) DO NOTHING RETURNING id, created_at, updated_at`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}))
	mock.ExpectQuery(`INSERT INTO "ticket" .*'555555'.*ON CONFLICT \(number\) DO NOTHING`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(10), now, now))
	mock.ExpectQuery(`INSERT INTO "ticket_thread_entry"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), now))
	mock.ExpectCommit()

	child, err := repo.CreateChild(ctx, parent, NewChild{Subject: "Check printer", DepartmentID: 5, Message: "Toner low", StaffID: 9})
	require.NoError(t, err)

	assert.Equal(t, int64(10), child.ID)
	assert.Equal(t, "555555", child.Number)
	assert.Equal(t, int64(77), child.UserID)
	assert.Equal(t, int64(5), child.DepartmentID)
	assert.Equal(t, parent.TopicID, child.TopicID)
	assert.Equal(t, parent.PriorityID, child.PriorityID)
	assert.Equal(t, parent.SLAID, child.SLAID)
	assert.Nil(t, child.ParentID)
	assert.Equal(t, StatusOpen, child.Status)
}

func TestRepository_CreateChild_RollsBackOnFailure(t *testing.T) {
	repo, mock := newMockRepo(t)
	repo.newNumber = func() string { return "200000" }

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "ticket"`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := repo.CreateChild(context.Background(), &Ticket{ID: 1, UserID: 1}, NewChild{Subject: "s", DepartmentID: 1, Message: "m"})
	assert.ErrorIs(t, err, apperror.ErrDatabase)
}

func TestRepository_CreateChild_NumberExhausted(t *testing.T) {
	repo, mock := newMockRepo(t)
	repo.newNumber = func() string { return "100001" }

	mock.ExpectBegin()
	for i := 0; i < numberAttempts; i++ {
		mock.ExpectQuery(`INSERT INTO "ticket"`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}))
	}
	mock.ExpectRollback()

	_, err := repo.CreateChild(context.Background(), &Ticket{ID: 1, UserID: 1}, NewChild{Subject: "s", DepartmentID: 1, Message: "m"})
	assert.ErrorIs(t, err, ErrNumberExhausted)
}

func TestRandomNumber(t *testing.T) {
	for i := 0; i < 100; i++ {
		n := randomNumber()
		assert.Len(t, n, 6)
		assert.NotEqual(t, byte('0'), n[0])
	}
}

func ptr[T any](v T) *T { return &v }
