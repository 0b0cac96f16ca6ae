package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/gtd-mail/internal/model"
)

// UpsertRule inserts or replaces a category rule for one user.
// If the rule has no ID, a new UUID is generated.
func (s *SQLiteStore) UpsertRule(
	ctx context.Context,
	userID string,
	rule model.CategoryRule,
) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}

	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("marshaling conditions for rule %s: %w", rule.ID, err)
	}
	actions, err := json.Marshal(rule.Actions)
	if err != nil {
		return fmt.Errorf("marshaling actions for rule %s: %w", rule.ID, err)
	}

	createdAt := rule.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO category_rules (
			id, user_id, name, description, category, priority,
			is_active, conditions, actions, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, userID, rule.Name, rule.Description,
		string(rule.Category), string(rule.Priority),
		boolToInt(rule.IsActive), string(conditions), string(actions),
		createdAt.UTC(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting rule %s: %w", rule.ID, err)
	}
	return nil
}

// GetRules retrieves all category rules for one user, active or not.
// Winner selection between rules is the engine's job, not the store's.
func (s *SQLiteStore) GetRules(
	ctx context.Context,
	userID string,
) ([]model.CategoryRule, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT * FROM category_rules WHERE user_id = ? ORDER BY created_at ASC, id ASC",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}
	defer rows.Close()

	var rules []model.CategoryRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// DeleteRule removes one rule belonging to the given user.
func (s *SQLiteStore) DeleteRule(ctx context.Context, userID, ruleID string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM category_rules WHERE id = ? AND user_id = ?",
		ruleID, userID,
	)
	if err != nil {
		return fmt.Errorf("deleting rule %s: %w", ruleID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// scanRule scans a category rule row. Column order follows the
// category_rules table definition.
func scanRule(rows *sqlx.Rows) (model.CategoryRule, error) {
	var (
		rule       model.CategoryRule
		userID     string
		category   string
		priority   string
		isActive   int
		conditions string
		actions    string
	)

	err := rows.Scan(
		&rule.ID, &userID, &rule.Name, &rule.Description, &category, &priority,
		&isActive, &conditions, &actions, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return model.CategoryRule{}, fmt.Errorf("scanning rule row: %w", err)
	}

	rule.Category = model.EmailCategory(category)
	rule.Priority = model.Priority(priority)
	rule.IsActive = isActive != 0

	if conditions != "" {
		if err := json.Unmarshal([]byte(conditions), &rule.Conditions); err != nil {
			return model.CategoryRule{}, fmt.Errorf("unmarshaling rule conditions: %w", err)
		}
	}
	if actions != "" {
		if err := json.Unmarshal([]byte(actions), &rule.Actions); err != nil {
			return model.CategoryRule{}, fmt.Errorf("unmarshaling rule actions: %w", err)
		}
	}

	return rule, nil
}
