package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func ok(context.Context) error { return nil }

func fail(context.Context) error { return errors.New("connection refused") }

func TestRegistry_ServeHTTP(t *testing.T) {
	tests := []struct {
		name       string
		checkers   map[string]*FuncChecker
		wantCode   int
		wantStatus Status
	}{
		{
			name:       "all healthy",
			checkers:   map[string]*FuncChecker{"storage": Critical("storage", ok)},
			wantCode:   http.StatusOK,
			wantStatus: StatusHealthy,
		},
		{
			name:       "optional dependency down",
			checkers:   map[string]*FuncChecker{"storage": Critical("storage", ok), "kafka": Optional("kafka", fail)},
			wantCode:   http.StatusOK,
			wantStatus: StatusDegraded,
		},
		{
			name:       "storage down",
			checkers:   map[string]*FuncChecker{"storage": Critical("storage", fail), "kafka": Optional("kafka", ok)},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewRegistry("v1.2.3")
			for name, checker := range tt.checkers {
				registry.Register(name, checker)
			}

			w := httptest.NewRecorder()
			registry.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			require.Equal(t, tt.wantCode, w.Code)
			var report Report
			require.NoError(t, json.NewDecoder(w.Body).Decode(&report))
			require.Equal(t, tt.wantStatus, report.Status)
			require.Equal(t, "v1.2.3", report.Version)
			require.Len(t, report.Checks, len(tt.checkers))
		})
	}
}

func TestRegistry_ReadinessHandler(t *testing.T) {
	registry := NewRegistry("dev")
	registry.Register("storage", Critical("storage", ok))

	w := httptest.NewRecorder()
	registry.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ready", w.Body.String())

	registry.Register("storage", Critical("storage", fail))
	w = httptest.NewRecorder()
	registry.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, "not ready", w.Body.String())
}

func TestLivenessHandler(t *testing.T) {
	w := httptest.NewRecorder()
	LivenessHandler(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", w.Body.String())
}

func TestFuncChecker_ReportsError(t *testing.T) {
	check := Critical("storage", fail).Check(context.Background())

	require.Equal(t, StatusUnhealthy, check.Status)
	require.True(t, check.Critical)
	require.Equal(t, "connection refused", check.Message)
}

func TestRegistry_Names(t *testing.T) {
	registry := NewRegistry("dev")
	registry.Register("storage", Critical("storage", ok))
	registry.Register("kafka", Optional("kafka", ok))

	require.Equal(t, []string{"kafka", "storage"}, registry.Names())
}
