package scheduler

import (
	"database/sql"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carpenike/fitcoach/internal/dailylog"
	"github.com/carpenike/fitcoach/internal/database"
	"github.com/carpenike/fitcoach/internal/metrics"
	"github.com/carpenike/fitcoach/internal/models"
	"github.com/carpenike/fitcoach/internal/plan"
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

func insertWorkout(t *testing.T, db *sql.DB, userID int64, title string, at time.Time) {
	t.Helper()
	c, err := plan.Validate(`{"title":"`+title+`","days":[{"exercises":[{"name":"Row"}]}]}`, plan.Workout)
	require.NoError(t, err)
	p, err := models.NewPlan(userID, c)
	require.NoError(t, err)
	p.CreatedAt = at
	_, err = models.InsertActivePlan(db, p)
	require.NoError(t, err)
}

func TestSchedulerStartStop(t *testing.T) {
	db := testDB(t)
	s := New(db, nil)
	s.Start()
	// Stop should return without blocking.
	s.Stop()
	assert.False(t, s.Status().LastRun.IsZero())
}

func TestRunOnce_RepairsAndPrunes(t *testing.T) {
	db := testDB(t)
	t.Setenv("FITCOACH_MAINTENANCE_INTERVAL_HOURS", "")
	t.Setenv("FITCOACH_LOG_RETENTION_DAYS", "")
	require.NoError(t, models.SetSetting(db, "maintenance.log_retention_days", "30"))

	u, err := models.CreateUser(db, "alice", "password123", "", false)
	require.NoError(t, err)

	base := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	insertWorkout(t, db, u.ID, "Old", base)
	insertWorkout(t, db, u.ID, "New", base.Add(time.Hour))

	for _, d := range []string{"2026-08-01", "2026-10-18"} {
		l := dailylog.Apply(nil, u.ID, d, dailylog.Item{Label: "Lunch", Name: "Bowl", Calories: 600}, base)
		require.NoError(t, models.UpsertDailyLog(db, l))
	}

	m := metrics.NewTestManager()
	s := New(db, m)
	now := time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	st := s.RunOnce()
	assert.Equal(t, int64(1), st.PlansRepaired)
	assert.Equal(t, int64(1), st.LogsPruned)
	assert.Equal(t, 24, st.IntervalHours)
	assert.Equal(t, 30, st.RetentionDays)
	assert.Equal(t, now.Add(24*time.Hour), st.NextRun)
	assert.Equal(t, st, s.Status())

	n, err := models.CountActivePlans(db, u.ID, plan.Workout)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	active, err := models.GetActivePlan(db, u.ID, plan.Workout)
	require.NoError(t, err)
	assert.Equal(t, "New", active.Title)

	old, err := models.GetDailyLog(db, u.ID, "2026-08-01")
	require.NoError(t, err)
	assert.Nil(t, old)
	kept, err := models.GetDailyLog(db, u.ID, "2026-10-18")
	require.NoError(t, err)
	assert.NotNil(t, kept)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.CounterMaintenance.WithLabelValues("repair_plans")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CounterMaintenance.WithLabelValues("prune_logs")))
}

func TestRunOnce_ZeroRetentionKeepsLogs(t *testing.T) {
	db := testDB(t)
	t.Setenv("FITCOACH_LOG_RETENTION_DAYS", "")

	u, err := models.CreateUser(db, "alice", "password123", "", false)
	require.NoError(t, err)
	l := dailylog.Apply(nil, u.ID, "2020-01-01", dailylog.Item{Label: "Lunch", Name: "Bowl"}, time.Now())
	require.NoError(t, models.UpsertDailyLog(db, l))

	st := New(db, nil).RunOnce()
	assert.Zero(t, st.LogsPruned)
	assert.Zero(t, st.PlansRepaired)

	got, err := models.GetDailyLog(db, u.ID, "2020-01-01")
	require.NoError(t, err)
	assert.NotNil(t, got)
}
