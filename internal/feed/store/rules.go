package store

import (
	"context"
	"fmt"

	"skiff/internal/core"
	"skiff/internal/feed/models"
)

// RuleStore handles automation rule persistence
type RuleStore struct {
	db     *core.Database
	logger *core.Logger
}

// NewRuleStore creates a new rule store
func NewRuleStore(db *core.Database, logger *core.Logger) *RuleStore {
	return &RuleStore{
		db:     db,
		logger: logger.ForComponent("rules"),
	}
}

// Create creates a new filter rule
func (s *RuleStore) Create(ctx context.Context, rule *models.FilterRule) (*models.FilterRule, error) {
	switch rule.Condition {
	case models.RuleConditionTitleContains, models.RuleConditionContentContains,
		models.RuleConditionAuthorContains, models.RuleConditionFeedIs:
	default:
		return nil, core.NewValidationError(fmt.Sprintf("unknown rule condition: %s", rule.Condition), nil)
	}

	switch rule.Action {
	case models.RuleActionMarkRead, models.RuleActionStar, models.RuleActionDelete:
	case models.RuleActionTag:
		if rule.TagValue == "" {
			return nil, core.NewValidationError("tag rules require a tag value", nil)
		}
	default:
		return nil, core.NewValidationError(fmt.Sprintf("unknown rule action: %s", rule.Action), nil)
	}

	query := `
		INSERT INTO filter_rules (condition, value, action, tag_value, enabled)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id, created_at
	`

	err := s.db.QueryRowWithTimeout(ctx, query,
		string(rule.Condition), rule.Value, string(rule.Action), rule.TagValue, rule.Enabled,
	).Scan(&rule.ID, &rule.CreatedAt)
	if err != nil {
		return nil, core.NewDatabaseError("failed to create rule", err)
	}

	s.logger.Info("Created filter rule", "id", rule.ID, "condition", rule.Condition, "action", rule.Action)
	return rule, nil
}

// ListEnabled retrieves all active rules in creation order
func (s *RuleStore) ListEnabled(ctx context.Context) ([]models.FilterRule, error) {
	query := `
		SELECT id, condition, value, action, tag_value, enabled, created_at
		FROM filter_rules
		WHERE enabled = 1
		ORDER BY id
	`

	rows, err := s.db.QueryWithTimeout(ctx, query)
	if err != nil {
		return nil, core.NewDatabaseError("failed to query rules", err)
	}
	defer rows.Close()

	var rules []models.FilterRule
	for rows.Next() {
		var rule models.FilterRule
		var condition, action string
		if err := rows.Scan(&rule.ID, &condition, &rule.Value, &action, &rule.TagValue, &rule.Enabled, &rule.CreatedAt); err != nil {
			return nil, core.NewDatabaseError("failed to scan rule", err)
		}
		rule.Condition = models.RuleCondition(condition)
		rule.Action = models.RuleAction(action)
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// SetEnabled toggles a rule
func (s *RuleStore) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	result, err := s.db.ExecWithTimeout(ctx, `UPDATE filter_rules SET enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return core.NewDatabaseError("failed to toggle rule", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return core.NewNotFoundError(fmt.Sprintf("rule not found: %d", id), nil)
	}

	return nil
}

// Delete removes a rule
func (s *RuleStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecWithTimeout(ctx, `DELETE FROM filter_rules WHERE id = ?`, id)
	if err != nil {
		return core.NewDatabaseError("failed to delete rule", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return core.NewNotFoundError(fmt.Sprintf("rule not found: %d", id), nil)
	}

	return nil
}
