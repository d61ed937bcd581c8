package models

import (
	"bytes"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carpenike/fitcoach/internal/dailylog"
	"github.com/carpenike/fitcoach/internal/importers"
	"github.com/carpenike/fitcoach/internal/plan"
)

func seedExportData(t *testing.T, db *sql.DB, userID int64) {
	t.Helper()
	_, err := UpsertProfile(db, &Profile{
		UserID: userID, Age: 30, WeightKg: 80, HeightCm: 180, Gender: "male",
		Goal: GoalStrength, Equipment: []string{"barbell"},
	})
	require.NoError(t, err)

	base := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	_, err = ActivatePlan(db, testWorkoutPlan(t, userID, "Old", base))
	require.NoError(t, err)
	_, err = ActivatePlan(db, testWorkoutPlan(t, userID, "Current", base.Add(time.Hour)))
	require.NoError(t, err)

	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	l := dailylog.Apply(nil, userID, "2026-10-19", dailylog.Item{Label: "Lunch", Name: "Wrap, chicken", Calories: 500, Protein: 30}, at)
	l = dailylog.Apply(l, userID, "2026-10-19", dailylog.Item{Label: "Dinner", Name: "Salmon", Calories: 650.5, Protein: 45}, at)
	require.NoError(t, UpsertDailyLog(db, l))
}

func TestExportImport_JSONRoundTrip(t *testing.T) {
	db := testDB(t)
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	seedExportData(t, db, alice.ID)

	export, err := BuildExportJSON(db, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", export.Username)
	require.NotNil(t, export.Profile)
	assert.Equal(t, []string{"barbell"}, export.Profile.Equipment)
	require.Len(t, export.Plans, 2)
	assert.True(t, export.Plans[0].Active)
	require.Len(t, export.DailyLogs, 1)

	var buf bytes.Buffer
	require.NoError(t, WriteExportJSON(&buf, export))
	assert.Equal(t, importers.FormatFitCoachJSON, importers.DetectFormat(buf.Bytes()))

	pf, err := importers.ParseFitCoachJSON(&buf)
	require.NoError(t, err)
	res, err := ExecuteImport(db, bob.ID, pf)
	require.NoError(t, err)
	assert.Equal(t, &ImportResult{ProfileImported: true, PlansImported: 2, PlansActivated: 1, LogsImported: 1}, res)

	p, err := GetProfile(db, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, GoalStrength, p.Goal)

	active, err := GetActivePlan(db, bob.ID, plan.Workout)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "Current", active.Title)
	n, err := CountActivePlans(db, bob.ID, plan.Workout)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	l, err := GetDailyLog(db, bob.ID, "2026-10-19")
	require.NoError(t, err)
	require.Len(t, l.Items, 2)
	assert.Equal(t, dailylog.Totals{Calories: 1150.5, Protein: 75}, l.Totals)
}

func TestImport_ExistingActivePlanWins(t *testing.T) {
	db := testDB(t)
	alice := seedUser(t, db, "alice")
	seedExportData(t, db, alice.ID)

	export, err := BuildExportJSON(db, alice.ID)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, WriteExportJSON(&buf, export))
	pf, err := importers.ParseFitCoachJSON(&buf)
	require.NoError(t, err)

	res, err := ExecuteImport(db, alice.ID, pf)
	require.NoError(t, err)
	assert.Equal(t, 0, res.PlansActivated)
	assert.Equal(t, 1, res.LogsReplaced)

	n, err := CountActivePlans(db, alice.ID, plan.Workout)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	history, err := ListPlans(db, alice.ID, plan.Workout)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestImport_InvalidDataWritesNothing(t *testing.T) {
	db := testDB(t)
	u := seedUser(t, db, "alice")

	data := `{"version": "1.0",
	  "profile": {"age": 30, "weight_kg": 80, "height_cm": 180, "gender": "male", "goal": "strength"},
	  "plans": [{"category": "workout", "title": "Broken", "content": {"days": []}}]}`
	pf, err := importers.ParseFitCoachJSON(strings.NewReader(data))
	require.NoError(t, err)

	_, err = ExecuteImport(db, u.ID, pf)
	assert.ErrorIs(t, err, ErrInvalidImport)

	p, err := GetProfile(db, u.ID)
	require.NoError(t, err)
	assert.Nil(t, p)

	pf = &importers.ParsedFile{Profile: &importers.ParsedProfile{Age: 5, Gender: "male", Goal: "strength"}}
	_, err = ExecuteImport(db, u.ID, pf)
	assert.ErrorIs(t, err, ErrInvalidImport)
	assert.ErrorIs(t, err, ErrInvalidProfile)

	pf = &importers.ParsedFile{DailyLogs: []importers.ParsedDailyLog{{Date: "2026-10-19", Items: []importers.ParsedItem{{Label: "Lunch"}}}}}
	_, err = ExecuteImport(db, u.ID, pf)
	assert.ErrorIs(t, err, ErrInvalidImport)
}

func TestExportImport_LogCSVRoundTrip(t *testing.T) {
	db := testDB(t)
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	seedExportData(t, db, alice.ID)

	var buf bytes.Buffer
	require.NoError(t, WriteExportLogCSV(&buf, db, alice.ID, "2026-10-01", "2026-10-31"))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Date,Label,Item,Calories,Protein,Recorded At", lines[0])
	assert.Equal(t, `2026-10-19,Lunch,"Wrap, chicken",500,30,2026-10-19T12:00:00Z`, lines[1])

	assert.Equal(t, importers.FormatLogCSV, importers.DetectFormat(buf.Bytes()))
	pf, err := importers.ParseLogCSV(&buf)
	require.NoError(t, err)
	res, err := ExecuteImport(db, bob.ID, pf)
	require.NoError(t, err)
	assert.Equal(t, 1, res.LogsImported)
	assert.False(t, res.ProfileImported)

	l, err := GetDailyLog(db, bob.ID, "2026-10-19")
	require.NoError(t, err)
	assert.Equal(t, 1150.5, l.Totals.Calories)
	assert.Equal(t, time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC), l.Items[0].RecordedAt.UTC())
}
