package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/carpenike/fitcoach/internal/plan"
)

// Plan is a generated workout or nutrition program. For a given user and
// category at most one plan is active; older plans are deactivated, never
// deleted.
type Plan struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Category  plan.Category   `json:"category"`
	Title     string          `json:"title"`
	Content   json.RawMessage `json:"content"`
	IsActive  bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewPlan builds an unsaved plan record from validated content.
func NewPlan(userID int64, c *plan.Content) (*Plan, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("models: encode %s plan content: %w", c.Category, err)
	}
	return &Plan{
		UserID:   userID,
		Category: c.Category,
		Title:    c.Title(),
		Content:  data,
	}, nil
}

// Decode returns the plan's typed content.
func (p *Plan) Decode() (*plan.Content, error) {
	return plan.Decode(p.Category, p.Content)
}

const planColumns = `id, user_id, category, title, content, is_active, created_at`

func scanPlan(row interface{ Scan(...any) error }) (*Plan, error) {
	p := &Plan{}
	var content string
	if err := row.Scan(&p.ID, &p.UserID, &p.Category, &p.Title, &content, &p.IsActive, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Content = json.RawMessage(content)
	return p, nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// DeactivatePlans marks every plan of the category inactive for the user.
// It is idempotent.
func DeactivatePlans(db *sql.DB, userID int64, category plan.Category) error {
	return deactivatePlans(db, userID, category)
}

func deactivatePlans(ex execer, userID int64, category plan.Category) error {
	_, err := ex.Exec(
		`UPDATE plans SET is_active = 0 WHERE user_id = ? AND category = ? AND is_active = 1`,
		userID, category,
	)
	if err != nil {
		return fmt.Errorf("models: deactivate %s plans for user %d: %w", category, userID, err)
	}
	return nil
}

// InsertActivePlan appends the plan as active. It does not deactivate other
// plans; callers run DeactivatePlans first or use ActivatePlan.
func InsertActivePlan(db *sql.DB, p *Plan) (*Plan, error) {
	id, err := insertPlan(db, p, true)
	if err != nil {
		return nil, err
	}
	return GetPlanByID(db, id)
}

func insertPlan(ex execer, p *Plan, active bool) (int64, error) {
	if !p.Category.Valid() {
		return 0, fmt.Errorf("models: insert plan: unknown category %q", p.Category)
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	result, err := ex.Exec(
		`INSERT INTO plans (user_id, category, title, content, is_active, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.UserID, p.Category, p.Title, string(p.Content), active, createdAt.UTC().Format(timestampLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("models: insert %s plan for user %d: %w", p.Category, p.UserID, err)
	}
	id, _ := result.LastInsertId()
	return id, nil
}

// ActivatePlan deactivates the user's plans of the category and inserts the
// new plan as active inside one transaction, so readers never observe zero
// or two active plans.
func ActivatePlan(db *sql.DB, p *Plan) (*Plan, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("models: activate plan: begin: %w", err)
	}
	defer tx.Rollback()

	if err := deactivatePlans(tx, p.UserID, p.Category); err != nil {
		return nil, err
	}
	id, err := insertPlan(tx, p, true)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("models: activate plan: commit: %w", err)
	}
	return GetPlanByID(db, id)
}

// GetPlanByID retrieves a plan by primary key.
func GetPlanByID(db *sql.DB, id int64) (*Plan, error) {
	p, err := scanPlan(db.QueryRow(`SELECT `+planColumns+` FROM plans WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("models: get plan %d: %w", id, err)
	}
	return p, nil
}

// GetActivePlan returns the user's active plan for the category, or nil if
// none. Should more than one row be active, the most recent wins.
func GetActivePlan(db *sql.DB, userID int64, category plan.Category) (*Plan, error) {
	p, err := scanPlan(db.QueryRow(
		`SELECT `+planColumns+` FROM plans
		 WHERE user_id = ? AND category = ? AND is_active = 1
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		userID, category,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // No active plan is not an error.
		}
		return nil, fmt.Errorf("models: get active %s plan for user %d: %w", category, userID, err)
	}
	return p, nil
}

// ListPlans returns the user's plan history for the category, newest first.
func ListPlans(db *sql.DB, userID int64, category plan.Category) ([]*Plan, error) {
	rows, err := db.Query(
		`SELECT `+planColumns+` FROM plans
		 WHERE user_id = ? AND category = ?
		 ORDER BY created_at DESC, id DESC`,
		userID, category,
	)
	if err != nil {
		return nil, fmt.Errorf("models: list %s plans for user %d: %w", category, userID, err)
	}
	defer rows.Close()

	var plans []*Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("models: scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// CountActivePlans returns how many plans of the category are active for
// the user. Used by tests and the integrity check in the CLI.
func CountActivePlans(db *sql.DB, userID int64, category plan.Category) (int, error) {
	var n int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM plans WHERE user_id = ? AND category = ? AND is_active = 1`,
		userID, category,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("models: count active %s plans for user %d: %w", category, userID, err)
	}
	return n, nil
}

// PlanStore exposes the plan table to the plan generator.
type PlanStore struct {
	DB *sql.DB
}

func (s PlanStore) DeactivateAll(_ context.Context, userID int64, category plan.Category) error {
	return DeactivatePlans(s.DB, userID, category)
}

func (s PlanStore) InsertActive(_ context.Context, p *Plan) (*Plan, error) {
	return InsertActivePlan(s.DB, p)
}

func (s PlanStore) GetActive(_ context.Context, userID int64, category plan.Category) (*Plan, error) {
	return GetActivePlan(s.DB, userID, category)
}

func (s PlanStore) Activate(_ context.Context, p *Plan) (*Plan, error) {
	return ActivatePlan(s.DB, p)
}

// PlanConflict is a (user, category) pair with more than one active plan.
type PlanConflict struct {
	UserID   int64
	Category plan.Category
	Active   int
}

// ListActivePlanConflicts returns every (user, category) with more than one
// active plan. It is empty while the single-active invariant holds.
func ListActivePlanConflicts(db *sql.DB) ([]PlanConflict, error) {
	rows, err := db.Query(
		`SELECT user_id, category, COUNT(*) FROM plans
		 WHERE is_active = 1
		 GROUP BY user_id, category
		 HAVING COUNT(*) > 1
		 ORDER BY user_id, category`,
	)
	if err != nil {
		return nil, fmt.Errorf("models: list active plan conflicts: %w", err)
	}
	defer rows.Close()

	var out []PlanConflict
	for rows.Next() {
		var c PlanConflict
		if err := rows.Scan(&c.UserID, &c.Category, &c.Active); err != nil {
			return nil, fmt.Errorf("models: scan plan conflict: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RepairActivePlans deactivates every active plan that is not the most
// recent active plan of its (user, category), restoring the single-active
// invariant. It returns the number of plans deactivated.
func RepairActivePlans(db *sql.DB) (int64, error) {
	result, err := db.Exec(
		`UPDATE plans SET is_active = 0
		 WHERE is_active = 1 AND id NOT IN (
		     SELECT (SELECT p2.id FROM plans p2
		             WHERE p2.user_id = p.user_id AND p2.category = p.category AND p2.is_active = 1
		             ORDER BY p2.created_at DESC, p2.id DESC LIMIT 1)
		     FROM plans p WHERE p.is_active = 1
		     GROUP BY p.user_id, p.category
		 )`,
	)
	if err != nil {
		return 0, fmt.Errorf("models: repair active plans: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
