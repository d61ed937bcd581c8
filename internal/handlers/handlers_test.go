package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carpenike/fitcoach/internal/database"
	"github.com/carpenike/fitcoach/internal/llm"
	"github.com/carpenike/fitcoach/internal/metrics"
	"github.com/carpenike/fitcoach/internal/middleware"
	"github.com/carpenike/fitcoach/internal/models"
	"github.com/carpenike/fitcoach/internal/scheduler"
)

// testDB creates a fresh in-memory SQLite database with migrations applied.
func testDB(t testing.TB) *sql.DB {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := database.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("run migrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// testSessionManager creates a cookie-based in-memory session manager for tests.
func testSessionManager() *scs.SessionManager {
	sm := scs.New()
	sm.Lifetime = 30 * 24 * time.Hour
	sm.Cookie.HttpOnly = true
	sm.Cookie.SameSite = http.SameSiteLaxMode
	return sm
}

// stubCompleter answers every completion with out or err.
type stubCompleter struct {
	out   string
	err   error
	calls int
}

func (s *stubCompleter) Complete(_ context.Context, spec llm.PromptSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}
	s.calls++
	return s.out, s.err
}

type testEnv struct {
	t   *testing.T
	db  *sql.DB
	srv *httptest.Server
}

// newTestEnv starts a server whose completions come from the sample
// provider unless d.Completer is set.
func newTestEnv(t *testing.T, d Deps) *testEnv {
	t.Helper()
	if d.Completer == nil {
		d.Completer = llm.NewService(llm.NewSampleProvider(), llm.Options{JSON: true})
	}
	return startEnv(t, d)
}

// startEnv starts a server with completions resolved from settings unless
// d.Completer is set.
func startEnv(t *testing.T, d Deps) *testEnv {
	t.Helper()
	if d.DB == nil {
		d.DB = testDB(t)
	}
	if d.Sessions == nil {
		d.Sessions = testSessionManager()
	}
	srv := httptest.NewServer(NewRouter(d))
	t.Cleanup(srv.Close)
	return &testEnv{t: t, db: d.DB, srv: srv}
}

// seedUser creates a user. The password is always "password123".
func (e *testEnv) seedUser(username string, admin bool) *models.User {
	e.t.Helper()
	u, err := models.CreateUser(e.db, username, "password123", "", admin)
	require.NoError(e.t, err)
	return u
}

func (e *testEnv) seedProfile(userID int64) {
	e.t.Helper()
	_, err := models.UpsertProfile(e.db, &models.Profile{
		UserID: userID, Age: 30, WeightKg: 80, HeightCm: 180, Gender: "male",
		Goal: models.GoalMuscleGain, TrainingDaysPerWeek: 3,
	})
	require.NoError(e.t, err)
}

// client is a cookie-keeping API client.
type client struct {
	e    *testEnv
	http *http.Client
	csrf string
}

func (e *testEnv) client() *client {
	jar, err := cookiejar.New(nil)
	require.NoError(e.t, err)
	return &client{e: e, http: &http.Client{Jar: jar}}
}

func (c *client) do(method, path string, body any) (int, []byte) {
	c.e.t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(c.e.t, err)
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.e.srv.URL+path, r)
	require.NoError(c.e.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.csrf != "" {
		req.Header.Set(middleware.CSRFHeader, c.csrf)
	}
	resp, err := c.http.Do(req)
	require.NoError(c.e.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(c.e.t, err)
	return resp.StatusCode, data
}

func (c *client) login(username string) {
	c.e.t.Helper()
	status, body := c.do("POST", "/api/login", map[string]string{"username": username, "password": "password123"})
	require.Equal(c.e.t, http.StatusOK, status, string(body))
	var resp sessionResponse
	require.NoError(c.e.t, json.Unmarshal(body, &resp))
	require.NotEmpty(c.e.t, resp.CSRFToken)
	c.csrf = resp.CSRFToken
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t, Deps{})
	status, body := e.client().do("GET", "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestMetricsEndpoint(t *testing.T) {
	m, reg := metrics.NewTestManagerAndRegistry()
	e := newTestEnv(t, Deps{Metrics: m, Gatherer: reg})
	c := e.client()

	c.do("GET", "/health", nil)
	status, body := c.do("GET", "/metrics", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "fitcoach_test_server_request")
}

func TestAuth_LoginLogout(t *testing.T) {
	e := newTestEnv(t, Deps{})
	e.seedUser("alice", false)
	c := e.client()

	status, _ := c.do("GET", "/api/profile", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := c.do("POST", "/api/login", map[string]string{"username": "alice", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid_credentials", decode[map[string]string](t, body)["code"])

	status, _ = c.do("POST", "/api/login", map[string]string{"username": "alice"})
	assert.Equal(t, http.StatusBadRequest, status)

	c.login("alice")
	status, body = c.do("GET", "/api/session", nil)
	require.Equal(t, http.StatusOK, status)
	sess := decode[sessionResponse](t, body)
	assert.Equal(t, "alice", sess.User.Username)
	assert.Equal(t, c.csrf, sess.CSRFToken)

	status, _ = c.do("POST", "/api/logout", nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = c.do("GET", "/api/session", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestAuth_LoginIsRateLimited(t *testing.T) {
	rl := middleware.NewRateLimiter(2, time.Minute)
	t.Cleanup(rl.Stop)
	e := newTestEnv(t, Deps{LoginLimiter: rl})
	c := e.client()

	creds := map[string]string{"username": "nobody", "password": "x"}
	for range 2 {
		status, _ := c.do("POST", "/api/login", creds)
		assert.Equal(t, http.StatusUnauthorized, status)
	}
	status, _ := c.do("POST", "/api/login", creds)
	assert.Equal(t, http.StatusTooManyRequests, status)
}

func TestWritesRequireCSRFToken(t *testing.T) {
	e := newTestEnv(t, Deps{})
	e.seedUser("alice", false)
	c := e.client()
	c.login("alice")

	token := c.csrf
	c.csrf = ""
	status, body := c.do("PUT", "/api/profile", map[string]any{"age": 30})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "csrf", decode[map[string]string](t, body)["code"])

	c.csrf = token
	status, _ = c.do("PUT", "/api/profile", map[string]any{"age": 30})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
}

func TestProfile_GetAndUpdate(t *testing.T) {
	e := newTestEnv(t, Deps{})
	e.seedUser("alice", false)
	c := e.client()
	c.login("alice")

	status, body := c.do("GET", "/api/profile", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "profile_missing", decode[map[string]string](t, body)["code"])

	status, body = c.do("PUT", "/api/profile", map[string]any{
		"age": 30, "weight_kg": 70, "height_cm": 175, "gender": "female", "goal": "endurance",
		"equipment": []string{"bike"}, "dietary_preferences": []string{"vegetarian"},
	})
	require.Equal(t, http.StatusOK, status, string(body))
	p := decode[models.Profile](t, body)
	assert.Equal(t, "moderate", p.ActivityLevel)
	assert.Equal(t, 3, p.TrainingDaysPerWeek)
	assert.Equal(t, []string{"vegetarian"}, p.DietaryPreferences)

	status, body = c.do("GET", "/api/profile", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "endurance", decode[models.Profile](t, body).Goal)

	status, _ = c.do("PUT", "/api/profile", `{"age": 30, "favourite_color": "red"}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestPlans_GenerateAndRead(t *testing.T) {
	e := newTestEnv(t, Deps{})
	alice := e.seedUser("alice", false)
	c := e.client()
	c.login("alice")

	status, body := c.do("POST", "/api/plans/workout/generate", map[string]string{})
	assert.Equal(t, http.StatusConflict, status)
	msg := decode[map[string]string](t, body)
	assert.Equal(t, "profile_missing", msg["code"])
	assert.Equal(t, "complete_profile", msg["action"])

	e.seedProfile(alice.ID)

	status, _ = c.do("GET", "/api/plans/workout/active", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = c.do("POST", "/api/plans/workout/generate", map[string]string{"preferences": "short sessions"})
	require.Equal(t, http.StatusCreated, status, string(body))
	first := decode[models.Plan](t, body)
	assert.True(t, first.IsActive)
	assert.Equal(t, "Full Body Foundations", first.Title)

	// No body at all is also accepted.
	status, body = c.do("POST", "/api/plans/workout/generate", nil)
	require.Equal(t, http.StatusCreated, status, string(body))
	second := decode[models.Plan](t, body)

	status, body = c.do("GET", "/api/plans/workout/active", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, second.ID, decode[models.Plan](t, body).ID)

	status, body = c.do("GET", "/api/plans/workout", nil)
	require.Equal(t, http.StatusOK, status)
	history := decode[[]models.Plan](t, body)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID)
	assert.False(t, history[1].IsActive)

	status, body = c.do("GET", "/api/plans/nutrition", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(body))
}

func TestPlans_UnknownCategory(t *testing.T) {
	e := newTestEnv(t, Deps{})
	e.seedUser("alice", false)
	c := e.client()
	c.login("alice")

	for _, path := range []string{"/api/plans/yoga/generate", "/api/plans/yoga/active", "/api/plans/yoga"} {
		method := "GET"
		if strings.HasSuffix(path, "generate") {
			method = "POST"
		}
		status, body := c.do(method, path, nil)
		assert.Equal(t, http.StatusBadRequest, status, path)
		assert.Equal(t, "unknown_category", decode[map[string]string](t, body)["code"], path)
	}
}

func TestPlans_GenerateFailureStatuses(t *testing.T) {
	tests := []struct {
		name   string
		stub   *stubCompleter
		status int
		code   string
	}{
		{"quota", &stubCompleter{out: `{"error":"QUOTA_EXCEEDED"}`}, http.StatusPaymentRequired, "quota_exceeded"},
		{"service error", &stubCompleter{out: `{"error":"model overloaded"}`}, http.StatusBadGateway, "completion_unavailable"},
		{"transport", &stubCompleter{err: errors.New("connection refused")}, http.StatusBadGateway, "completion_unavailable"},
		{"invalid plan", &stubCompleter{out: `Sure! Here is your plan.`}, http.StatusBadGateway, "invalid_plan_format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t, Deps{Completer: tt.stub})
			alice := e.seedUser("alice", false)
			e.seedProfile(alice.ID)
			c := e.client()
			c.login("alice")

			status, body := c.do("POST", "/api/plans/nutrition/generate", nil)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, decode[map[string]string](t, body)["code"])
			assert.Equal(t, 1, tt.stub.calls)

			n, err := models.CountActivePlans(e.db, alice.ID, "nutrition")
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestPlans_GenerateUnconfigured(t *testing.T) {
	e := startEnv(t, Deps{})
	alice := e.seedUser("alice", false)
	e.seedProfile(alice.ID)
	c := e.client()
	c.login("alice")

	status, body := c.do("POST", "/api/plans/workout/generate", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "completion_unavailable", decode[map[string]string](t, body)["code"])
}

func TestPlans_GenerateUsesMockProviderSetting(t *testing.T) {
	db := testDB(t)
	require.NoError(t, models.SetSetting(db, "llm.provider", "mock"))
	e := startEnv(t, Deps{DB: db})

	alice := e.seedUser("alice", false)
	e.seedProfile(alice.ID)
	c := e.client()
	c.login("alice")

	status, body := c.do("POST", "/api/plans/meal/generate", nil)
	require.Equal(t, http.StatusCreated, status, string(body))
	p := decode[models.Plan](t, body)
	assert.Equal(t, "nutrition", string(p.Category))
	assert.Equal(t, "Balanced Week", p.Title)
}

func TestPlans_GenerateIsRateLimitedPerUser(t *testing.T) {
	rl := middleware.NewRateLimiter(1, time.Hour).ByUser()
	t.Cleanup(rl.Stop)
	e := newTestEnv(t, Deps{GenerateLimiter: rl})
	alice := e.seedUser("alice", false)
	bob := e.seedUser("bob", false)
	e.seedProfile(alice.ID)
	e.seedProfile(bob.ID)

	a := e.client()
	a.login("alice")
	b := e.client()
	b.login("bob")

	status, _ := a.do("POST", "/api/plans/workout/generate", nil)
	assert.Equal(t, http.StatusCreated, status)
	status, body := a.do("POST", "/api/plans/workout/generate", nil)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "rate_limited", decode[map[string]string](t, body)["code"])

	status, _ = b.do("POST", "/api/plans/workout/generate", nil)
	assert.Equal(t, http.StatusCreated, status)
}

func TestPlans_UsersAreIsolated(t *testing.T) {
	e := newTestEnv(t, Deps{})
	alice := e.seedUser("alice", false)
	e.seedUser("bob", false)
	e.seedProfile(alice.ID)

	a := e.client()
	a.login("alice")
	status, _ := a.do("POST", "/api/plans/workout/generate", nil)
	require.Equal(t, http.StatusCreated, status)

	b := e.client()
	b.login("bob")
	status, _ = b.do("GET", "/api/plans/workout/active", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestLogs_GetAndToggle(t *testing.T) {
	m := metrics.NewTestManager()
	e := newTestEnv(t, Deps{Metrics: m})
	e.seedUser("alice", false)
	c := e.client()
	c.login("alice")

	status, body := c.do("GET", "/api/logs/2026-10-19", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"user_id":1,"log_date":"2026-10-19","consumed_items":[],"totals":{"calories":0,"protein":0},"updated_at":"0001-01-01T00:00:00Z"}`, string(body))

	toggle := map[string]any{"label": "Breakfast", "name": "Eggs", "calories": 300, "protein": 25}
	status, body = c.do("POST", "/api/logs/2026-10-19/toggle", toggle)
	require.Equal(t, http.StatusOK, status, string(body))
	res := decode[struct {
		Log      map[string]any `json:"log"`
		Previous map[string]any `json:"previous"`
	}](t, body)
	assert.Nil(t, res.Previous)
	assert.Equal(t, map[string]any{"calories": 300.0, "protein": 25.0}, res.Log["totals"])

	status, body = c.do("POST", "/api/logs/2026-10-19/toggle", toggle)
	require.Equal(t, http.StatusOK, status)
	res = decode[struct {
		Log      map[string]any `json:"log"`
		Previous map[string]any `json:"previous"`
	}](t, body)
	assert.NotNil(t, res.Previous)
	assert.Equal(t, []any{}, res.Log["consumed_items"])

	status, _ = c.do("GET", "/api/logs/19-10-2026", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = c.do("POST", "/api/logs/2026-10-19/toggle", map[string]any{"label": "", "name": "Eggs"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestLogs_ToggleSyncFailureReturnsSnapshot(t *testing.T) {
	e := newTestEnv(t, Deps{})
	e.seedUser("alice", false)
	c := e.client()
	c.login("alice")

	_, err := e.db.Exec(`DROP TABLE daily_logs`)
	require.NoError(t, err)

	status, body := c.do("POST", "/api/logs/2026-10-19/toggle", map[string]any{"label": "Lunch", "name": "Wrap"})
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.JSONEq(t, `{"code":"toggle_sync_failed","message":"Your change could not be saved. Please try again.","previous":null}`, string(body))
}

func TestLogs_Checklist(t *testing.T) {
	e := newTestEnv(t, Deps{})
	alice := e.seedUser("alice", false)
	e.seedProfile(alice.ID)
	c := e.client()
	c.login("alice")

	status, _ := c.do("GET", "/api/logs/2026-10-19/checklist", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = c.do("POST", "/api/plans/nutrition/generate", nil)
	require.Equal(t, http.StatusCreated, status)

	status, _ = c.do("POST", "/api/logs/2026-10-19/toggle", map[string]any{
		"label": "Breakfast", "name": "Greek Yogurt Bowl", "calories": 450, "protein": 30,
	})
	require.Equal(t, http.StatusOK, status)

	status, body := c.do("GET", "/api/logs/2026-10-19/checklist", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	cl := decode[checklistResponse](t, body)
	assert.Equal(t, 0, cl.DayIndex)
	require.Len(t, cl.Items, 4)
	assert.Equal(t, "Breakfast", cl.Items[0].Label)
	assert.True(t, cl.Items[0].Checked)
	assert.False(t, cl.Items[1].Checked)
	assert.Equal(t, 450.0, cl.Totals.Calories)

	status, _ = c.do("GET", "/api/logs/2026-10-19/checklist?category=pilates", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestPortability_ExportImport(t *testing.T) {
	e := newTestEnv(t, Deps{})
	alice := e.seedUser("alice", false)
	e.seedUser("bob", false)
	e.seedProfile(alice.ID)

	a := e.client()
	a.login("alice")
	status, body := a.do("POST", "/api/plans/workout/generate", map[string]string{})
	require.Equal(t, http.StatusCreated, status, string(body))
	status, _ = a.do("POST", "/api/logs/2026-10-19/toggle", map[string]any{"label": "Lunch", "name": "Wrap", "calories": 500, "protein": 30})
	require.Equal(t, http.StatusOK, status)

	status, body = a.do("GET", "/api/export", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	export := decode[models.ExportJSON](t, body)
	assert.Equal(t, "alice", export.Username)
	require.NotNil(t, export.Profile)
	require.Len(t, export.Plans, 1)
	assert.True(t, export.Plans[0].Active)
	require.Len(t, export.DailyLogs, 1)

	status, csvBody := a.do("GET", "/api/export?format=csv&from=2026-10-01&to=2026-10-31", nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, strings.HasPrefix(string(csvBody), "Date,Label,Item,Calories,Protein,Recorded At\n"))
	assert.Contains(t, string(csvBody), "2026-10-19,Lunch,Wrap,500,30,")

	status, _ = a.do("GET", "/api/export?format=xml", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = a.do("GET", "/api/export?format=csv&from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = a.do("GET", "/api/export?format=csv&from=2026-10-31&to=2026-10-01", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	b := e.client()
	b.login("bob")
	status, body = b.do("POST", "/api/import", string(body))
	require.Equal(t, http.StatusOK, status, string(body))
	res := decode[models.ImportResult](t, body)
	assert.Equal(t, models.ImportResult{ProfileImported: true, PlansImported: 1, PlansActivated: 1, LogsImported: 1}, res)

	status, _ = b.do("GET", "/api/plans/workout/active", nil)
	assert.Equal(t, http.StatusOK, status)
	status, body = b.do("GET", "/api/logs/2026-10-19", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"calories":500`)

	status, _ = b.do("POST", "/api/import", string(csvBody))
	assert.Equal(t, http.StatusOK, status)
}

func TestPortability_ImportRejectsBadFiles(t *testing.T) {
	e := newTestEnv(t, Deps{})
	e.seedUser("alice", false)
	c := e.client()
	c.login("alice")

	status, body := c.do("POST", "/api/import", "hello")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "unknown_format", decode[map[string]string](t, body)["code"])

	status, body = c.do("POST", "/api/import", `{"plans": []}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_file", decode[map[string]string](t, body)["code"])

	status, body = c.do("POST", "/api/import", `{"version": "1.0", "plans": [{"category": "workout", "content": {"days": []}}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "invalid_import", decode[map[string]string](t, body)["code"])

	status, _ = c.do("GET", "/api/plans/workout", nil)
	assert.Equal(t, http.StatusOK, status)
	plans, err := models.ListPlans(e.db, 1, "workout")
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestSettings_AdminOnly(t *testing.T) {
	e := newTestEnv(t, Deps{})
	e.seedUser("alice", false)
	e.seedUser("root", true)

	member := e.client()
	member.login("alice")
	status, _ := member.do("GET", "/api/settings", nil)
	assert.Equal(t, http.StatusForbidden, status)

	admin := e.client()
	admin.login("root")
	status, body := admin.do("GET", "/api/settings", nil)
	require.Equal(t, http.StatusOK, status)
	groups := decode[[]settingGroupResponse](t, body)
	require.NotEmpty(t, groups)
	assert.Equal(t, "General", groups[0].Name)

	status, body = admin.do("PUT", "/api/settings", map[string]string{"generate.rate_limit": "5"})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, 5, models.GetGenerateRateLimit(e.db))

	status, _ = admin.do("PUT", "/api/settings", map[string]string{"generate.rate_limit": ""})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 10, models.GetGenerateRateLimit(e.db))

	status, _ = admin.do("PUT", "/api/settings", map[string]string{"no.such.key": "1"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, _ = admin.do("POST", "/api/settings/test-llm", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
}

func TestSettings_Maintenance(t *testing.T) {
	db := testDB(t)
	t.Setenv("FITCOACH_MAINTENANCE_INTERVAL_HOURS", "")
	t.Setenv("FITCOACH_LOG_RETENTION_DAYS", "")
	e := newTestEnv(t, Deps{DB: db, Maintenance: scheduler.New(db, nil)})
	e.seedUser("root", true)
	admin := e.client()
	admin.login("root")

	status, body := admin.do("GET", "/api/settings/maintenance", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Nil(t, decode[maintenanceResponse](t, body).LastRun)

	status, body = admin.do("POST", "/api/settings/maintenance/run", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	got := decode[maintenanceResponse](t, body)
	assert.NotNil(t, got.LastRun)
	assert.Equal(t, 24, got.IntervalHours)

	bare := newTestEnv(t, Deps{})
	bare.seedUser("root", true)
	c := bare.client()
	c.login("root")
	status, _ = c.do("GET", "/api/settings/maintenance", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestIsMaskedPlaceholder(t *testing.T) {
	assert.True(t, isMaskedPlaceholder("sk-a••••wxyz"))
	assert.False(t, isMaskedPlaceholder("sk-abcdef"))
}

func TestFunctions_GeneratePlan(t *testing.T) {
	t.Setenv("FITCOACH_FUNCTION_TOKEN", "")
	t.Setenv("FITCOACH_LLM_PROVIDER", "mock")
	stub := &stubCompleter{out: "```json\n{\"days\":[]}\n```"}
	e := newTestEnv(t, Deps{Completer: stub})

	spec := map[string]any{
		"category":    "workout",
		"preferences": "",
		"profile": map[string]any{
			"age": 30, "weight_kg": 80, "height_cm": 180, "gender": "male", "goal": "strength",
		},
	}
	status, body := e.client().do("POST", "/functions/generate-plan", spec)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "```json\n{\"days\":[]}\n```", string(body))

	spec["category"] = "yoga"
	status, body = e.client().do("POST", "/functions/generate-plan", spec)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.JSONEq(t, `{"error":"INVALID_REQUEST"}`, string(body))
	assert.Equal(t, 1, stub.calls)
}

func TestFunctions_Token(t *testing.T) {
	db := testDB(t)
	t.Setenv("FITCOACH_FUNCTION_TOKEN", "s3cret")
	stub := &stubCompleter{out: `{"error":"QUOTA_EXCEEDED"}`}
	e := newTestEnv(t, Deps{DB: db, Completer: stub})

	spec := llm.PromptSpec{Category: llm.CategoryMeal, Profile: &models.Profile{
		Age: 30, WeightKg: 80, HeightCm: 180, Gender: "male", Goal: models.GoalHealth,
	}}
	status, body := e.client().do("POST", "/functions/generate-plan", spec)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.JSONEq(t, `{"error":"UNAUTHORIZED"}`, string(body))

	// The FunctionClient round trip: quota surfaces as the error document.
	out, err := llm.NewFunctionClient(e.srv.URL+"/functions/generate-plan", "s3cret").Complete(context.Background(), spec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"QUOTA_EXCEEDED"}`, out)
}

func functionSpec() llm.PromptSpec {
	return llm.PromptSpec{Category: llm.CategoryWorkout, Profile: &models.Profile{
		Age: 30, WeightKg: 80, HeightCm: 180, Gender: "male", Goal: models.GoalStrength,
	}}
}

func TestFunctions_RefusesAnonymousWithoutToken(t *testing.T) {
	t.Setenv("FITCOACH_FUNCTION_TOKEN", "")
	t.Setenv("FITCOACH_LLM_PROVIDER", "openai")
	stub := &stubCompleter{out: "{}"}
	e := newTestEnv(t, Deps{Completer: stub})

	for i := 0; i < 3; i++ {
		status, body := e.client().do("POST", "/functions/generate-plan", functionSpec())
		assert.Equal(t, http.StatusServiceUnavailable, status)
		assert.JSONEq(t, `{"error":"NOT_CONFIGURED"}`, string(body))
	}
	assert.Zero(t, stub.calls)
	assert.False(t, FunctionOpen(e.db))
}

func TestFunctions_RateLimitedPerIP(t *testing.T) {
	t.Setenv("FITCOACH_FUNCTION_TOKEN", "")
	t.Setenv("FITCOACH_LLM_PROVIDER", "mock")
	rl := middleware.NewRateLimiter(2, time.Hour)
	t.Cleanup(rl.Stop)
	stub := &stubCompleter{out: "{}"}
	e := newTestEnv(t, Deps{Completer: stub, FunctionLimiter: rl})

	for i := 0; i < 2; i++ {
		status, _ := e.client().do("POST", "/functions/generate-plan", functionSpec())
		require.Equal(t, http.StatusOK, status)
	}
	status, _ := e.client().do("POST", "/functions/generate-plan", functionSpec())
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, 2, stub.calls)
}

func TestPlans_GenerateEmptyBodyOfUnknownLength(t *testing.T) {
	db := testDB(t)
	u, err := models.CreateUser(db, "alice", "password123", "", false)
	require.NoError(t, err)
	_, err = models.UpsertProfile(db, &models.Profile{
		UserID: u.ID, Age: 30, WeightKg: 80, HeightCm: 180, Gender: "male",
		Goal: models.GoalStrength, TrainingDaysPerWeek: 3,
	})
	require.NoError(t, err)

	h := &Plans{DB: db, Completer: llm.NewService(llm.NewSampleProvider(), llm.Options{JSON: true})}
	req := httptest.NewRequest("POST", "/api/plans/workout/generate", http.NoBody)
	req.ContentLength = -1
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("category", "workout")
	ctx := context.WithValue(middleware.WithUser(req.Context(), u), chi.RouteCtxKey, rctx)

	rec := httptest.NewRecorder()
	h.Generate(rec, req.WithContext(ctx))
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestPlans_GenerateProfileReadFailure(t *testing.T) {
	e := newTestEnv(t, Deps{})
	e.seedUser("alice", false)
	c := e.client()
	c.login("alice")

	_, err := e.db.Exec(`DROP TABLE profiles`)
	require.NoError(t, err)

	status, body := c.do("POST", "/api/plans/workout/generate", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	msg := decode[map[string]string](t, body)
	assert.Equal(t, "profile_unavailable", msg["code"])
	assert.Equal(t, "retry", msg["action"])
}

func TestNotFoundIsJSON(t *testing.T) {
	e := newTestEnv(t, Deps{})
	status, body := e.client().do("GET", "/nope", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", decode[map[string]string](t, body)["code"])
}
