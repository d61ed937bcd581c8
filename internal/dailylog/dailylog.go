// Package dailylog tracks which plan items a user marked consumed or
// completed on a given calendar date.
//
// A log is created lazily by the first toggle of a day and is afterwards a
// mutable set of items keyed by (label, name). Logs are decoupled from
// plans: they stay valid when the plan that produced their items is
// deactivated or regenerated.
package dailylog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrToggleSyncFailed is returned when a toggle could not be persisted.
	// Callers holding an optimistic view must roll back to Result.Previous.
	ErrToggleSyncFailed = errors.New("dailylog: toggle sync failed")

	// ErrInvalidDate is returned for dates not in YYYY-MM-DD form.
	ErrInvalidDate = errors.New("dailylog: invalid date")

	// ErrInvalidItem is returned when an item has no label or name.
	ErrInvalidItem = errors.New("dailylog: item label and name are required")
)

// DateLayout is the calendar date format of log dates.
const DateLayout = "2006-01-02"

// Key identifies an item within a day's log.
type Key struct {
	Label string
	Name  string
}

// Item is one consumed meal item or completed exercise.
type Item struct {
	Label      string    `json:"label"`
	Name       string    `json:"name"`
	Calories   float64   `json:"calories,omitempty"`
	Protein    float64   `json:"protein,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Key returns the item's identity.
func (i Item) Key() Key {
	return Key{Label: i.Label, Name: i.Name}
}

// Totals are derived sums over a log's items.
type Totals struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
}

// Log is a user's record for one calendar date.
type Log struct {
	UserID    int64     `json:"user_id"`
	Date      string    `json:"log_date"`
	Items     []Item    `json:"consumed_items"`
	Totals    Totals    `json:"totals"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Has reports whether the item with the given key is in the log.
func (l *Log) Has(k Key) bool {
	if l == nil {
		return false
	}
	for _, it := range l.Items {
		if it.Key() == k {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the log.
func (l *Log) Clone() *Log {
	if l == nil {
		return nil
	}
	c := *l
	c.Items = append([]Item(nil), l.Items...)
	return &c
}

// Recompute sums calories and protein over items. Totals are always derived
// from the full item list, never adjusted incrementally.
func Recompute(items []Item) Totals {
	var t Totals
	for _, it := range items {
		t.Calories += it.Calories
		t.Protein += it.Protein
	}
	return t
}

// Apply toggles item in prev and returns the resulting log without touching
// prev. An item already present (by key) is removed; otherwise it is added
// with RecordedAt set to now. A nil prev is an empty log.
func Apply(prev *Log, userID int64, date string, item Item, now time.Time) *Log {
	next := &Log{UserID: userID, Date: date, Items: []Item{}, UpdatedAt: now}

	key := item.Key()
	removed := false
	if prev != nil {
		for _, it := range prev.Items {
			if it.Key() == key {
				removed = true
				continue
			}
			next.Items = append(next.Items, it)
		}
	}
	if !removed {
		item.RecordedAt = now
		next.Items = append(next.Items, item)
	}

	next.Totals = Recompute(next.Items)
	return next
}

// ParseDate validates a YYYY-MM-DD date and returns it normalized.
func ParseDate(s string) (string, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d.Format(DateLayout), nil
}

// Store persists logs keyed by (user, date). Save must upsert: repeated
// saves for the same day converge to one record.
type Store interface {
	Get(ctx context.Context, userID int64, date string) (*Log, error)
	Save(ctx context.Context, l *Log) error
}

// Observer receives toggle outcomes, typically a metrics manager.
type Observer interface {
	ObserveToggle(outcome string)
}

// Tracker mutates daily logs with replace-the-day semantics.
type Tracker struct {
	Store    Store
	Observer Observer         // optional
	Now      func() time.Time // defaults to time.Now
}

// NewTracker returns a Tracker over store.
func NewTracker(store Store) *Tracker {
	return &Tracker{Store: store, Now: time.Now}
}

// Result is the outcome of a toggle. Previous is the pre-toggle snapshot
// (nil when the day had no log) that callers use to roll back optimistic
// state if the toggle fails to sync.
type Result struct {
	Log      *Log `json:"log"`
	Previous *Log `json:"previous"`
}

// Get returns the user's log for date, or nil if nothing was logged.
func (t *Tracker) Get(ctx context.Context, userID int64, date string) (*Log, error) {
	d, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	l, err := t.Store.Get(ctx, userID, d)
	if err != nil {
		return nil, fmt.Errorf("dailylog: get log for user %d on %s: %w", userID, d, err)
	}
	return l, nil
}

// Toggle flips membership of item (keyed by label and item name) in the
// user's log for date and persists the whole day. On a persistence failure
// the returned Result still carries the computed log and the snapshot, and
// the error wraps ErrToggleSyncFailed.
func (t *Tracker) Toggle(ctx context.Context, userID int64, date, label string, item Item) (*Result, error) {
	d, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	item.Label = strings.TrimSpace(label)
	item.Name = strings.TrimSpace(item.Name)
	if item.Label == "" || item.Name == "" {
		return nil, ErrInvalidItem
	}

	prev, err := t.Store.Get(ctx, userID, d)
	if err != nil {
		t.observe("load_failed")
		return nil, fmt.Errorf("%w: load log for user %d on %s: %w", ErrToggleSyncFailed, userID, d, err)
	}

	next := Apply(prev, userID, d, item, t.now())
	res := &Result{Log: next, Previous: prev.Clone()}

	if err := t.Store.Save(ctx, next); err != nil {
		log.Warnf("dailylog: save log for user %d on %s: %v", userID, d, err)
		t.observe("sync_failed")
		return res, fmt.Errorf("%w: save log for user %d on %s: %w", ErrToggleSyncFailed, userID, d, err)
	}

	if prev.Has(item.Key()) {
		t.observe("removed")
	} else {
		t.observe("added")
	}
	return res, nil
}

func (t *Tracker) now() time.Time {
	if t.Now == nil {
		return time.Now()
	}
	return t.Now()
}

func (t *Tracker) observe(outcome string) {
	if t.Observer != nil {
		t.Observer.ObserveToggle(outcome)
	}
}
