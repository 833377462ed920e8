package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seamus/ptysup/internal/adapter"
	"github.com/seamus/ptysup/internal/manager"
)

func TestExporter_HandlerServesRegisteredMetricNames(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := New(Config{Registry: reg})

	mgr := manager.New(manager.Config{Registry: adapter.NewRegistry()})
	e.Refresh(mgr)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	e.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, "ptysup_manager_sessions"))
	assert.True(t, strings.Contains(text, "ptysup_session_stall_detected_total"))
	assert.True(t, strings.Contains(text, "ptysup_session_auto_response_firings_total"))
}

func TestExporter_RefreshZerosEveryKnownStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := New(Config{Registry: reg})
	mgr := manager.New(manager.Config{Registry: adapter.NewRegistry()})

	e.Refresh(mgr)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	e.Handler().ServeHTTP(rec, req)
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `status="ready"`)
	assert.Contains(t, string(body), `status="busy"`)
}
