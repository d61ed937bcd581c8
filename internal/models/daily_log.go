package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/carpenike/fitcoach/internal/dailylog"
)

// GetDailyLog returns the user's log for date, or nil if nothing was logged
// that day.
func GetDailyLog(db *sql.DB, userID int64, date string) (*dailylog.Log, error) {
	date = normalizeDate(date)
	l := &dailylog.Log{UserID: userID}
	var items string
	err := db.QueryRow(
		`SELECT log_date, consumed_items, total_calories, total_protein, updated_at
		 FROM daily_logs WHERE user_id = ? AND log_date = ?`,
		userID, date,
	).Scan(&l.Date, &items, &l.Totals.Calories, &l.Totals.Protein, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Nothing logged yet is not an error.
		}
		return nil, fmt.Errorf("models: get daily log for user %d on %s: %w", userID, date, err)
	}

	l.Items = []dailylog.Item{}
	if items != "" {
		if err := json.Unmarshal([]byte(items), &l.Items); err != nil {
			return nil, fmt.Errorf("models: decode daily log items for user %d on %s: %w", userID, date, err)
		}
	}
	l.Date = normalizeDate(l.Date)
	return l, nil
}

// UpsertDailyLog writes the whole day's log, replacing any previous items
// and totals for the same (user, date).
func UpsertDailyLog(db *sql.DB, l *dailylog.Log) error {
	return upsertDailyLog(db, l)
}

func upsertDailyLog(ex execer, l *dailylog.Log) error {
	if _, err := time.Parse(dateLayout, l.Date); err != nil {
		return fmt.Errorf("models: upsert daily log: invalid date %q", l.Date)
	}
	items := l.Items
	if items == nil {
		items = []dailylog.Item{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("models: encode daily log items: %w", err)
	}

	updatedAt := l.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err = ex.Exec(
		`INSERT INTO daily_logs (user_id, log_date, consumed_items, total_calories, total_protein, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, log_date) DO UPDATE SET
		    consumed_items = excluded.consumed_items,
		    total_calories = excluded.total_calories,
		    total_protein = excluded.total_protein,
		    updated_at = excluded.updated_at`,
		l.UserID, l.Date, string(data), l.Totals.Calories, l.Totals.Protein,
		updatedAt.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("models: upsert daily log for user %d on %s: %w", l.UserID, l.Date, err)
	}
	return nil
}

// ListDailyLogs returns the user's logs between from and to inclusive,
// oldest first.
func ListDailyLogs(db *sql.DB, userID int64, from, to string) ([]*dailylog.Log, error) {
	rows, err := db.Query(
		`SELECT log_date FROM daily_logs
		 WHERE user_id = ? AND log_date BETWEEN ? AND ?
		 ORDER BY log_date`,
		userID, normalizeDate(from), normalizeDate(to),
	)
	if err != nil {
		return nil, fmt.Errorf("models: list daily logs for user %d: %w", userID, err)
	}
	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			rows.Close()
			return nil, fmt.Errorf("models: scan daily log date: %w", err)
		}
		dates = append(dates, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// SetMaxOpenConns(1): the cursor must be closed before nested queries.
	logs := make([]*dailylog.Log, 0, len(dates))
	for _, d := range dates {
		l, err := GetDailyLog(db, userID, d)
		if err != nil {
			return nil, err
		}
		if l != nil {
			logs = append(logs, l)
		}
	}
	return logs, nil
}

// DailyLogStore exposes the daily_logs table to the consumption tracker.
type DailyLogStore struct {
	DB *sql.DB
}

func (s DailyLogStore) Get(_ context.Context, userID int64, date string) (*dailylog.Log, error) {
	return GetDailyLog(s.DB, userID, date)
}

func (s DailyLogStore) Save(_ context.Context, l *dailylog.Log) error {
	return UpsertDailyLog(s.DB, l)
}

// DeleteDailyLogsBefore removes every log dated strictly before date and
// returns how many were deleted.
func DeleteDailyLogsBefore(db *sql.DB, date string) (int64, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return 0, fmt.Errorf("models: delete daily logs: invalid date %q", date)
	}
	result, err := db.Exec(`DELETE FROM daily_logs WHERE log_date < ?`, date)
	if err != nil {
		return 0, fmt.Errorf("models: delete daily logs before %s: %w", date, err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
