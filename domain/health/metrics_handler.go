package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"

	"github.com/markus-michalski/osticket-subticket-manager/domain/tickets"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/apperror"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/auth"
)

// hierarchyCacheTTL bounds how often the table-wide aggregates run.
const hierarchyCacheTTL = 30 * time.Second

// MetricsHandler reports hierarchy statistics from the ticket table
type MetricsHandler struct {
	db bun.IDB

	mu     sync.Mutex
	cached *HierarchyMetrics
	until  time.Time
	now    func() time.Time
}

func NewMetricsHandler(db bun.IDB) *MetricsHandler {
	return &MetricsHandler{db: db, now: time.Now}
}

// HierarchyMetrics summarizes parent links across all tickets
type HierarchyMetrics struct {
	Tickets     int64  `json:"tickets"`
	Subtickets  int64  `json:"subtickets"`
	Parents     int64  `json:"parents"`
	OpenOrphans int64  `json:"openSubticketsOfClosedParents"`
	Timestamp   string `json:"timestamp"`
}

// Hierarchy returns link counts to staff. Results are reused for
// hierarchyCacheTTL.
func (h *MetricsHandler) Hierarchy(c echo.Context) error {
	if _, err := auth.RequireStaff(c); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	if h.cached == nil || !now.Before(h.until) {
		m, err := h.collect(c.Request().Context())
		if err != nil {
			return apperror.ErrDatabase.WithInternal(err)
		}
		m.Timestamp = now.UTC().Format(time.RFC3339)
		h.cached, h.until = m, now.Add(hierarchyCacheTTL)
	}
	return c.JSON(http.StatusOK, h.cached)
}

func (h *MetricsHandler) collect(ctx context.Context) (*HierarchyMetrics, error) {
	m := &HierarchyMetrics{}
	err := h.db.NewSelect().
		TableExpr("ticket AS t").
		ColumnExpr("count(*) AS tickets").
		ColumnExpr("count(t.parent_id) AS subtickets").
		ColumnExpr("count(DISTINCT t.parent_id) AS parents").
		Scan(ctx, &m.Tickets, &m.Subtickets, &m.Parents)
	if err != nil {
		return nil, err
	}

	err = h.db.NewSelect().
		TableExpr("ticket AS c").
		Join("JOIN ticket AS p ON p.id = c.parent_id").
		ColumnExpr("count(*)").
		Where("c.status = ?", tickets.StatusOpen).
		Where("p.status = ?", tickets.StatusClosed).
		Scan(ctx, &m.OpenOrphans)
	if err != nil {
		return nil, err
	}
	return m, nil
}
