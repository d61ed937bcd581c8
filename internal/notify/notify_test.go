package notify

import (
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carpenike/fitcoach/internal/database"
	"github.com/carpenike/fitcoach/internal/metrics"
	"github.com/carpenike/fitcoach/internal/models"
	"github.com/carpenike/fitcoach/internal/plan"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(db))
	t.Cleanup(func() { db.Close() })
	return db
}

type recorder struct {
	mu   sync.Mutex
	sent map[string][]string
	fail map[string]bool
}

func (r *recorder) send(u, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[u] {
		return errors.New("unreachable")
	}
	if r.sent == nil {
		r.sent = map[string][]string{}
	}
	r.sent[u] = append(r.sent[u], msg)
	return nil
}

func TestBroadcaster_PlanReady(t *testing.T) {
	db := testDB(t)
	t.Setenv("FITCOACH_NOTIFY_URLS", "")
	t.Setenv("FITCOACH_APP_NAME", "")
	require.NoError(t, models.SetSetting(db, "notify.urls", "ntfy://ntfy.sh/a\ndiscord://t@c"))
	u, err := models.CreateUser(db, "alice", "password123", "", false)
	require.NoError(t, err)

	rec := &recorder{fail: map[string]bool{"discord://t@c": true}}
	m := metrics.NewTestManager()
	b := NewBroadcaster(db, m).WithSender(rec.send)

	b.PlanReady(&models.Plan{UserID: u.ID, Category: plan.Workout, Title: "Push Pull"})
	b.Wait()

	require.Len(t, rec.sent["ntfy://ntfy.sh/a"], 1)
	assert.Equal(t, `FitCoach: new workout plan "Push Pull" is ready for alice.`, rec.sent["ntfy://ntfy.sh/a"][0])
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CounterNotifications.WithLabelValues("sent")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CounterNotifications.WithLabelValues("failed")))
}

func TestBroadcaster_NoURLsIsNoop(t *testing.T) {
	db := testDB(t)
	t.Setenv("FITCOACH_NOTIFY_URLS", "")

	called := false
	b := NewBroadcaster(db, nil).WithSender(func(string, string) error {
		called = true
		return nil
	})
	b.Broadcast("hello")
	b.Wait()
	assert.False(t, called)
	assert.Error(t, b.TestConnection())
}

func TestBroadcaster_TestConnection(t *testing.T) {
	db := testDB(t)
	t.Setenv("FITCOACH_NOTIFY_URLS", "ntfy://ntfy.sh/ok,ntfy://ntfy.sh/bad")

	rec := &recorder{}
	b := NewBroadcaster(db, nil).WithSender(rec.send)
	require.NoError(t, b.TestConnection())
	assert.Len(t, rec.sent, 2)

	t.Setenv("FITCOACH_NOTIFY_URLS", "ntfy://ntfy.sh/ok\nntfy://ntfy.sh/bad")
	rec = &recorder{fail: map[string]bool{"ntfy://ntfy.sh/bad": true}}
	b = NewBroadcaster(db, nil).WithSender(rec.send)
	err := b.TestConnection()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ntfy://ntfy.sh/••••")
}

func TestMaskURL(t *testing.T) {
	assert.Equal(t, "••••", maskURL("abc"))
	assert.Equal(t, "ntfy:••••", maskURL("ntfy://x"))
	assert.Equal(t, "discord://token••••", maskURL("discord://token@channel"))
}
