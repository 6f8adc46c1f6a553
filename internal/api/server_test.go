package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/FairForge/dropsense/internal/adaptation"
	"github.com/FairForge/dropsense/internal/auth"
	"github.com/FairForge/dropsense/internal/config"
	"github.com/FairForge/dropsense/internal/events"
	"github.com/FairForge/dropsense/internal/insights"
	"github.com/FairForge/dropsense/internal/intelligence"
	"github.com/FairForge/dropsense/internal/metrics"
	"github.com/FairForge/dropsense/internal/profile"
	"github.com/FairForge/dropsense/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type testEnv struct {
	server   *Server
	events   *events.MemoryStore
	profiles *profile.Service
	outbox   *queue.Outbox
	tokens   *auth.TokenService
}

func newTestEnv(t *testing.T, cfg config.ServerConfig) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	m := metrics.NewCollector()
	policy := config.NewLive(config.DefaultPolicy())

	store := events.NewMemoryStore()
	outbox := queue.NewOutbox(queue.DefaultConfig())
	gateway := events.NewGateway(store, outbox, policy, logger, m)
	profiles := profile.NewService(profile.NewMemoryStore(), logger)
	tokens := auth.NewTokenService(testSecret, "")

	analyzer := intelligence.NewAnalyzer(intelligence.Deps{
		Events:    gateway,
		Trigger:   outbox,
		Profiles:  profiles,
		Engine:    adaptation.NewEngine(policy, logger, m),
		Generator: insights.NewGenerator(insights.NewResilientAdvisor(nil, policy, logger, m), logger, m),
		Policy:    policy,
		Logger:    logger,
		Metrics:   m,
	})

	srv := NewServer(cfg, Deps{
		Events:   gateway,
		Analyzer: analyzer,
		Profiles: profiles,
		Trigger:  outbox,
		Tokens:   tokens,
		Logger:   logger,
		Metrics:  m,
	})
	return &testEnv{server: srv, events: store, profiles: profiles, outbox: outbox, tokens: tokens}
}

func defaultServerConfig() config.ServerConfig {
	return config.Default().Server
}

func (e *testEnv) do(t *testing.T, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if userID != "" {
		token, err := e.tokens.GenerateJWT(userID, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestIngest(t *testing.T) {
	env := newTestEnv(t, defaultServerConfig())

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"accepted", `{"action":"click","element":"join","section":"airdrops","duration_ms":1200,"metadata":{"chain":"base"}}`, http.StatusAccepted},
		{"missing section", `{"action":"click","element":"join"}`, http.StatusBadRequest},
		{"unknown action", `{"action":"teleport","element":"x","section":"y"}`, http.StatusBadRequest},
		{"negative duration", `{"action":"view","element":"x","section":"y","duration_ms":-5}`, http.StatusBadRequest},
		{"not json", `{"action":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/events", "user-1", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	evts, err := env.events.Query(context.Background(), events.Query{UserID: "user-1", Order: events.OldestFirst})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, "user-1", evts[0].UserID)
	assert.Equal(t, "base", evts[0].MetaString(events.MetaChain))
}

func TestIngest_UserComesFromToken(t *testing.T) {
	env := newTestEnv(t, defaultServerConfig())

	w := env.do(t, http.MethodPost, "/api/v1/events", "user-7", `{"action":"view","element":"x","section":"y","user_id":"someone-else"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	n, err := env.events.Count(context.Background(), "someone-else")
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = env.events.Count(context.Background(), "user-7")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestIngest_RateLimitedPerUser(t *testing.T) {
	cfg := defaultServerConfig()
	cfg.IngestRate = 0.001
	cfg.IngestBurst = 2
	env := newTestEnv(t, cfg)
	body := `{"action":"view","element":"x","section":"y"}`

	assert.Equal(t, http.StatusAccepted, env.do(t, http.MethodPost, "/api/v1/events", "user-1", body).Code)
	assert.Equal(t, http.StatusAccepted, env.do(t, http.MethodPost, "/api/v1/events", "user-1", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, env.do(t, http.MethodPost, "/api/v1/events", "user-1", body).Code)
	assert.Equal(t, http.StatusAccepted, env.do(t, http.MethodPost, "/api/v1/events", "user-2", body).Code)
}

func TestIngest_TriggersAnalysisOnCadence(t *testing.T) {
	env := newTestEnv(t, defaultServerConfig())
	body := `{"action":"view","element":"x","section":"y"}`

	for i := 0; i < config.DefaultPolicy().TriggerEvery; i++ {
		require.Equal(t, http.StatusAccepted, env.do(t, http.MethodPost, "/api/v1/events", "user-1", body).Code)
	}
	assert.Equal(t, 1, env.outbox.Stats().Pending)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t, defaultServerConfig())

	w := env.do(t, http.MethodGet, "/api/v1/profile", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/profile", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProfile_EmptyForNewUser(t *testing.T) {
	env := newTestEnv(t, defaultServerConfig())

	w := env.do(t, http.MethodGet, "/api/v1/profile", "new-user", "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode(t, w)
	assert.Equal(t, false, resp["computed"])
	assert.Equal(t, "new-user", resp["user_id"])
}

func TestAssessment(t *testing.T) {
	env := newTestEnv(t, defaultServerConfig())
	body := `{"investment_experience":5,"risk_capacity":5,"time_horizon":5,"technical_knowledge":5,
		"security_priority":1,"loss_tolerance":5,"diversification_understanding":5,"volatility_comfort":5}`

	w := env.do(t, http.MethodPost, "/api/v1/assessment", "user-1", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode(t, w)
	assert.Equal(t, "user-1", resp["user_id"])
	assert.Contains(t, resp, "risk_tolerance_score")
	assert.Contains(t, resp, "risk_category")

	// re-analysis was requested
	assert.Equal(t, 1, env.outbox.Stats().Pending)

	w = env.do(t, http.MethodGet, "/api/v1/profile", "user-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["computed"])
}

func TestAssessment_Invalid(t *testing.T) {
	env := newTestEnv(t, defaultServerConfig())

	tests := []struct {
		name string
		body string
	}{
		{"out of range", `{"investment_experience":9,"risk_capacity":1,"time_horizon":1,"technical_knowledge":1,"security_priority":1,"loss_tolerance":1,"diversification_understanding":1,"volatility_comfort":1}`},
		{"missing answers", `{}`},
		{"unknown field", `{"favourite_chain":"base"}`},
		{"malformed", `[1,2`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/assessment", "user-1", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestInsights_ListAndMarkRead(t *testing.T) {
	env := newTestEnv(t, defaultServerConfig())
	now := time.Now().UTC()
	require.NoError(t, env.profiles.SaveInsights(context.Background(), []*insights.Insight{
		{ID: "i-1", UserID: "user-1", Type: insights.TypeBurstActivity, CreatedAt: now, ValidUntil: now.Add(24 * time.Hour)},
		{ID: "i-2", UserID: "user-1", Type: insights.TypeLowSecurity, CreatedAt: now, ValidUntil: now.Add(24 * time.Hour)},
	}))

	w := env.do(t, http.MethodGet, "/api/v1/insights", "user-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["count"])

	w = env.do(t, http.MethodPost, "/api/v1/insights/i-1/read", "user-1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(t, http.MethodPost, "/api/v1/insights/i-1/read", "user-1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/insights/i-1/read", "user-2", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = env.do(t, http.MethodPost, "/api/v1/insights/missing/read", "user-1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/insights/read-all", "user-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["marked"])
}

func TestRequestAnalysis(t *testing.T) {
	env := newTestEnv(t, defaultServerConfig())

	w := env.do(t, http.MethodPost, "/api/v1/analysis", "user-1", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	w = env.do(t, http.MethodPost, "/api/v1/analysis", "user-1", "")
	assert.Equal(t, http.StatusAccepted, w.Code)

	assert.Equal(t, 1, env.outbox.Stats().Pending)
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, defaultServerConfig())

	w := env.do(t, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])

	w = env.do(t, http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	env.server.deps.Ready = func(context.Context) error { return errors.New("database unreachable") }
	w = env.do(t, http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, false, decode(t, w)["ready"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, defaultServerConfig())
	env.do(t, http.MethodPost, "/api/v1/events", "user-1", `{"action":"view","element":"x","section":"y"}`)

	w := env.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "dropsense_events_ingested_total")
}

func TestDocsRoutes(t *testing.T) {
	env := newTestEnv(t, defaultServerConfig())

	w := env.do(t, http.MethodGet, "/openapi.json", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "3.0.3", decode(t, w)["openapi"])

	w = env.do(t, http.MethodGet, "/docs", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
