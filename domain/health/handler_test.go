package health

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/markus-michalski/osticket-subticket-manager/domain/gate"
	"github.com/markus-michalski/osticket-subticket-manager/internal/config"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/apperror"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/auth"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/session"
)

const testSecret = "health-test-secret"

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

// pingableStore is a memory session store that also answers pings.
type pingableStore struct {
	*session.MemoryStore
	fakePinger
}

func newTestEcho(h *Handler, m *MetricsHandler, maxRequests int) *echo.Echo {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{Auth: config.AuthConfig{JWTSecret: testSecret}}
	sessions := session.NewMemoryStore()
	g := gate.NewGate(
		gate.NewRateLimiter(sessions, maxRequests, time.Minute, time.Minute),
		nil,
		gate.NewCSRF(sessions, time.Hour),
		nil,
		log,
	)

	e := echo.New()
	e.HTTPErrorHandler = apperror.HTTPErrorHandler(log)
	RegisterRoutes(e, h, m, auth.NewMiddleware(cfg, log), g)
	return e
}

func serve(t *testing.T, h *Handler, m *MetricsHandler, path string) *httptest.ResponseRecorder {
	t.Helper()
	return get(newTestEcho(h, m, 100), path, "")
}

func get(e *echo.Echo, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func staffToken(t *testing.T) string {
	t.Helper()
	token, err := auth.Sign(testSecret, "", auth.Actor{StaffID: 7, SessionID: "sess-7", Role: auth.RoleStaff, Departments: []int64{2}}, time.Hour)
	require.NoError(t, err)
	return token
}

func TestHealth(t *testing.T) {
	cfg := &config.Config{Environment: "local"}

	tests := []struct {
		name       string
		db         error
		store      session.Store
		wantStatus int
		wantChecks []string
	}{
		{"healthy memory sessions", nil, session.NewMemoryStore(), http.StatusOK, []string{"database"}},
		{"database down", errors.New("dial tcp: refused"), session.NewMemoryStore(), http.StatusServiceUnavailable, []string{"database"}},
		{"redis down", nil, pingableStore{session.NewMemoryStore(), fakePinger{errors.New("redis gone")}}, http.StatusServiceUnavailable, []string{"database", "sessions"}},
		{"redis up", nil, pingableStore{session.NewMemoryStore(), fakePinger{}}, http.StatusOK, []string{"database", "sessions"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(fakePinger{tt.db}, tt.store, cfg)
			rec := serve(t, h, nil, "/health")
			assert.Equal(t, tt.wantStatus, rec.Code)

			var body HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			for _, name := range tt.wantChecks {
				assert.Contains(t, body.Checks, name)
			}
			assert.Len(t, body.Checks, len(tt.wantChecks))
		})
	}
}

func TestReadyAndLiveness(t *testing.T) {
	cfg := &config.Config{}

	down := NewHandler(fakePinger{errors.New("down")}, session.NewMemoryStore(), cfg)
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, down, nil, "/ready").Code)
	assert.Equal(t, http.StatusOK, serve(t, down, nil, "/healthz").Code)

	up := NewHandler(fakePinger{}, session.NewMemoryStore(), cfg)
	assert.Equal(t, http.StatusOK, serve(t, up, nil, "/ready").Code)
}

func TestDebugHiddenInProduction(t *testing.T) {
	h := NewHandler(fakePinger{}, session.NewMemoryStore(), &config.Config{Environment: "production"})
	assert.Equal(t, http.StatusNotFound, serve(t, h, nil, "/debug").Code)

	h = NewHandler(fakePinger{}, session.NewMemoryStore(), &config.Config{Environment: "local"})
	assert.Equal(t, http.StatusOK, serve(t, h, nil, "/debug").Code)
}

func TestPrometheusEndpoint(t *testing.T) {
	h := NewHandler(fakePinger{}, session.NewMemoryStore(), &config.Config{})
	rec := serve(t, h, nil, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestMetricsHandler_Hierarchy(t *testing.T) {
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	mock.ExpectQuery(`SELECT count\(\*\) AS tickets, count\(t.parent_id\) AS subtickets, count\(DISTINCT t.parent_id\) AS parents FROM ticket AS t`).
		WillReturnRows(sqlmock.NewRows([]string{"tickets", "subtickets", "parents"}).AddRow(12, 5, 2))
	mock.ExpectQuery(`FROM ticket AS c JOIN ticket AS p ON p.id = c.parent_id WHERE \(c.status = 'open'\) AND \(p.status = 'closed'\)`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	m := NewMetricsHandler(db)
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	e := newTestEcho(NewHandler(fakePinger{}, session.NewMemoryStore(), &config.Config{}), m, 100)
	token := staffToken(t)

	rec := get(e, "/api/metrics/hierarchy", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"openSubticketsOfClosedParents":1`)

	var got HierarchyMetrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(12), got.Tickets)
	assert.Equal(t, int64(5), got.Subtickets)
	assert.Equal(t, int64(2), got.Parents)
	assert.Equal(t, int64(1), got.OpenOrphans)

	// served from cache; no further queries are expected
	now = now.Add(10 * time.Second)
	rec = get(e, "/api/metrics/hierarchy", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMetricsHandler_HierarchyRequiresStaff(t *testing.T) {
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	e := newTestEcho(NewHandler(fakePinger{}, session.NewMemoryStore(), &config.Config{}), NewMetricsHandler(db), 100)

	rec := get(e, "/api/metrics/hierarchy", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	userToken, err := auth.Sign(testSecret, "", auth.Actor{StaffID: 50, SessionID: "sess-u", Role: auth.RoleUser}, time.Hour)
	require.NoError(t, err)
	rec = get(e, "/api/metrics/hierarchy", userToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.NoError(t, mock.ExpectationsWereMet(), "no query may run for rejected callers")
}

func TestMetricsHandler_HierarchyIsRateLimited(t *testing.T) {
	sqldb, _, err := sqlmock.New()
	require.NoError(t, err)
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	e := newTestEcho(NewHandler(fakePinger{}, session.NewMemoryStore(), &config.Config{}), NewMetricsHandler(db), 2)

	codes := []int{}
	for i := 0; i < 3; i++ {
		codes = append(codes, get(e, "/api/metrics/hierarchy", "").Code)
	}
	assert.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}, codes)
}
