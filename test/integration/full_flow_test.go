package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/usagegate/usagegate/internal/api"
	"github.com/usagegate/usagegate/internal/clock"
	"github.com/usagegate/usagegate/internal/config"
	"github.com/usagegate/usagegate/internal/engine"
	"github.com/usagegate/usagegate/internal/metrics"
	"github.com/usagegate/usagegate/internal/models"
	"github.com/usagegate/usagegate/internal/quota"
	"github.com/usagegate/usagegate/internal/store"
)

type testServer struct {
	Server *api.Server
	Store  *store.SQLiteStore
	Clock  *clock.Fake
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dbPath := filepath.Join(t.TempDir(), "integration.db")
	st, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	fake := clock.NewFake(time.Date(2025, 6, 16, 12, 0, 0, 0, time.UTC))
	m := metrics.NewMetrics("usagegate_integration")
	eng := engine.New(st, engine.Limits{Daily: 2, Weekly: 5, Monthly: 10},
		engine.WithClock(fake), engine.WithMetrics(m))
	svc := quota.NewService(eng, st, m, nil)

	cfg := config.ServerConfig{Host: "localhost", HTTPPort: 8421}
	return &testServer{
		Server: api.NewServer(cfg, config.APIConfig{}, svc, st, m, nil),
		Store:  st,
		Clock:  fake,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(data)
	} else {
		reader = bytes.NewBuffer(nil)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.Server.Router().ServeHTTP(w, req)
	return w
}

func decodeDecision(t *testing.T, w *httptest.ResponseRecorder) models.Decision {
	t.Helper()
	var d models.Decision
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	return d
}

// TestFullQuotaFlow exercises the complete lifecycle over the SQLite backing:
// status, consumes up to each limit, denial, rollover, overrides.
func TestFullQuotaFlow(t *testing.T) {
	ts := setupTestServer(t)

	// Fresh user is allowed with zeroed counters.
	w := ts.do(t, "GET", "/users/alice/quota", nil)
	require.Equal(t, http.StatusOK, w.Code)
	d := decodeDecision(t, w)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Usage.Daily.Count)

	// Two consumes fill the daily window.
	for i := 0; i < 2; i++ {
		w = ts.do(t, "POST", "/users/alice/quota/consume", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	// Third consume is denied on the daily period.
	w = ts.do(t, "POST", "/users/alice/quota/consume", nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	d = decodeDecision(t, w)
	require.NotNil(t, d.ExceededPeriod)
	assert.Equal(t, "daily", d.ExceededPeriod.String())

	// Next day the daily window rolls over, but two more consumes exhaust
	// the weekly limit of 5 (2 + 2 + 1).
	ts.Clock.Set(time.Date(2025, 6, 17, 8, 0, 0, 0, time.UTC))
	for i := 0; i < 2; i++ {
		w = ts.do(t, "POST", "/users/alice/quota/consume", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	ts.Clock.Set(time.Date(2025, 6, 18, 8, 0, 0, 0, time.UTC))
	w = ts.do(t, "POST", "/users/alice/quota/consume", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, "POST", "/users/alice/quota/consume", nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	d = decodeDecision(t, w)
	require.NotNil(t, d.ExceededPeriod)
	assert.Equal(t, "weekly", d.ExceededPeriod.String())

	// The following Monday the weekly window resets.
	ts.Clock.Set(time.Date(2025, 6, 23, 8, 0, 0, 0, time.UTC))
	w = ts.do(t, "POST", "/users/alice/quota/consume", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

// TestOverrideFlow exercises admin overrides end to end.
func TestOverrideFlow(t *testing.T) {
	ts := setupTestServer(t)

	unlimited := true
	w := ts.do(t, "PUT", "/users/bob/quota/limits", api.SetLimitsRequest{Unlimited: &unlimited})
	require.Equal(t, http.StatusOK, w.Code)

	// Unlimited user sails past the daily limit of 2.
	for i := 0; i < 10; i++ {
		w = ts.do(t, "POST", "/users/bob/quota/consume", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	// Clearing restores enforcement immediately; counters never moved, so
	// two consumes are left.
	w = ts.do(t, "DELETE", "/users/bob/quota/limits", nil)
	require.Equal(t, http.StatusOK, w.Code)

	for i := 0; i < 2; i++ {
		w = ts.do(t, "POST", "/users/bob/quota/consume", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w = ts.do(t, "POST", "/users/bob/quota/consume", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

// TestStatePersistsAcrossRestart verifies counters survive reopening the
// database.
func TestStatePersistsAcrossRestart(t *testing.T) {
	gin.SetMode(gin.TestMode)

	dbPath := filepath.Join(t.TempDir(), "restart.db")
	now := time.Date(2025, 6, 16, 12, 0, 0, 0, time.UTC)

	build := func() (*api.Server, *store.SQLiteStore) {
		st, err := store.NewSQLiteStore(dbPath)
		require.NoError(t, err)
		m := metrics.NewMetrics("usagegate_restart")
		eng := engine.New(st, engine.Limits{Daily: 2, Weekly: 5, Monthly: 10},
			engine.WithClock(clock.NewFake(now)), engine.WithMetrics(m))
		svc := quota.NewService(eng, st, m, nil)
		return api.NewServer(config.ServerConfig{Host: "localhost", HTTPPort: 8421}, config.APIConfig{}, svc, st, m, nil), st
	}

	server, st := build()
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/users/carol/quota/consume", nil)
		server.Router().ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}
	st.Close()

	server, st = build()
	defer st.Close()
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/users/carol/quota/consume", nil)
	server.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
