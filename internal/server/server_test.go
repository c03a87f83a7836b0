package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markus-michalski/osticket-subticket-manager/internal/config"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/apperror"
)

func newTestEcho() *echo.Echo {
	return NewEcho(EchoParams{
		Config: &config.Config{},
		Log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestNewEcho_RendersEnvelopeOnError(t *testing.T) {
	e := newTestEcho()
	e.GET("/boom", func(c echo.Context) error {
		return apperror.ErrIntegrity.WithMessage("Circular dependency detected")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)

	var body apperror.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "integrity_violation", body.Code)
	assert.Equal(t, "Circular dependency detected", body.Message)
}

func TestNewEcho_UnknownRouteIsNotFoundEnvelope(t *testing.T) {
	e := newTestEcho()

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body apperror.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_found", body.Code)
}

func TestNewEcho_RecoversFromPanic(t *testing.T) {
	e := newTestEcho()
	e.GET("/panic", func(c echo.Context) error {
		panic("kaboom")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestNewEcho_TrailingSlashRemoved(t *testing.T) {
	e := newTestEcho()
	e.GET("/api/thing", func(c echo.Context) error {
		return c.JSON(http.StatusOK, apperror.OK("ok", nil))
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/thing/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIsProbePath(t *testing.T) {
	e := echo.New()
	tests := []struct {
		path string
		want bool
	}{
		{"/health", true},
		{"/healthz", true},
		{"/ready", true},
		{"/metrics", true},
		{"/api/subtickets/1/children", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			c := e.NewContext(httptest.NewRequest(http.MethodGet, tt.path, nil), httptest.NewRecorder())
			assert.Equal(t, tt.want, IsProbePath(c))
		})
	}
}

func TestNewEcho_BodyLimit(t *testing.T) {
	e := NewEcho(EchoParams{
		Config: &config.Config{BodyLimit: "16B"},
		Log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	e.POST("/api/echo", func(c echo.Context) error {
		return c.JSON(http.StatusOK, apperror.OK("ok", nil))
	})

	small := httptest.NewRequest(http.MethodPost, "/api/echo", strings.NewReader(`{"a":1}`))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, small)
	assert.Equal(t, http.StatusOK, rec.Code)

	large := httptest.NewRequest(http.MethodPost, "/api/echo", strings.NewReader(`{"subject":"`+strings.Repeat("x", 64)+`"}`))
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, large)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	var body apperror.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "bad_request", body.Code)
}

func TestNewEcho_RequestTimeoutSetsDeadline(t *testing.T) {
	e := NewEcho(EchoParams{
		Config: &config.Config{RequestTimeout: time.Second},
		Log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	var hasDeadline bool
	e.GET("/api/slow", func(c echo.Context) error {
		_, hasDeadline = c.Request().Context().Deadline()
		return c.NoContent(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/slow", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, hasDeadline)
}

func TestNewEcho_ClientIP(t *testing.T) {
	tests := []struct {
		name    string
		proxies []string
		remote  string
		xff     string
		want    string
	}{
		{"forwarded header ignored without proxies", nil, "203.0.113.5:4000", "198.51.100.9", "203.0.113.5"},
		{"trusted proxy forwards client", []string{"10.0.0.0/8"}, "10.1.2.3:4000", "198.51.100.9", "198.51.100.9"},
		{"untrusted peer cannot forward", []string{"10.0.0.0/8"}, "203.0.113.5:4000", "198.51.100.9", "203.0.113.5"},
		{"private peer not trusted by default", []string{"10.0.0.0/8"}, "192.168.1.1:4000", "198.51.100.9", "192.168.1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEcho(EchoParams{
				Config: &config.Config{TrustedProxies: tt.proxies},
				Log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
			})
			e.GET("/api/ip", func(c echo.Context) error {
				return c.String(http.StatusOK, c.RealIP())
			})

			req := httptest.NewRequest(http.MethodGet, "/api/ip", nil)
			req.RemoteAddr = tt.remote
			req.Header.Set(echo.HeaderXForwardedFor, tt.xff)
			req.Header.Set(echo.HeaderXRealIP, tt.xff)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Body.String())
		})
	}
}
