package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/liamcoop/rulevalidator/internal/database"
)

const ruleColumns = `id, name, field, rule_condition, condition_value, active, created_at, updated_at`

// SQLRuleStore implements RuleStore on PostgreSQL or SQLite for one tenant.
type SQLRuleStore struct {
	db       *sql.DB
	dialect  database.Dialect
	tenantID string
}

// NewSQLRuleStore creates a SQL-backed RuleStore for a specific tenant
func NewSQLRuleStore(db *sql.DB, dialect database.Dialect, tenantID string) *SQLRuleStore {
	return &SQLRuleStore{
		db:       db,
		dialect:  dialect,
		tenantID: tenantID,
	}
}

// NewPostgresRuleStore creates a PostgreSQL-backed RuleStore for a specific tenant
func NewPostgresRuleStore(db *sql.DB, tenantID string) *SQLRuleStore {
	return NewSQLRuleStore(db, database.DialectPostgres, tenantID)
}

// Add inserts a new rule into the database
func (s *SQLRuleStore) Add(ctx context.Context, rule *Rule) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT EXISTS(SELECT 1 FROM rules WHERE id = $1 AND tenant_id = $2)
	`), rule.ID, s.tenantID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check rule existence: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrRuleExists, rule.ID)
	}

	value, err := json.Marshal(rule.ConditionValue)
	if err != nil {
		return fmt.Errorf("failed to encode condition value: %w", err)
	}

	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, s.dialect.Rebind(`
		INSERT INTO rules (id, tenant_id, name, field, rule_condition, condition_value, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`), rule.ID, s.tenantID, rule.Name, rule.Field, string(rule.Condition), string(value),
		rule.Active, rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	return nil
}

// Get retrieves a rule by ID
func (s *SQLRuleStore) Get(ctx context.Context, id string) (*Rule, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT `+ruleColumns+`
		FROM rules
		WHERE id = $1 AND tenant_id = $2
	`), id, s.tenantID)

	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	return rule, nil
}

// List returns every rule for the tenant
func (s *SQLRuleStore) List(ctx context.Context) ([]*Rule, error) {
	return s.query(ctx, `
		SELECT `+ruleColumns+`
		FROM rules
		WHERE tenant_id = $1
		ORDER BY created_at ASC, id ASC
	`)
}

// ListActive returns all active rules for the tenant
func (s *SQLRuleStore) ListActive(ctx context.Context) ([]*Rule, error) {
	return s.query(ctx, `
		SELECT `+ruleColumns+`
		FROM rules
		WHERE tenant_id = $1 AND active = $2
		ORDER BY created_at ASC, id ASC
	`, true)
}

func (s *SQLRuleStore) query(ctx context.Context, query string, args ...any) ([]*Rule, error) {
	args = append([]any{s.tenantID}, args...)

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	rulesList := []*Rule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rulesList = append(rulesList, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return rulesList, nil
}

// Update modifies an existing rule
func (s *SQLRuleStore) Update(ctx context.Context, rule *Rule) error {
	existing, err := s.Get(ctx, rule.ID)
	if err != nil {
		return err
	}

	value, err := json.Marshal(rule.ConditionValue)
	if err != nil {
		return fmt.Errorf("failed to encode condition value: %w", err)
	}

	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, s.dialect.Rebind(`
		UPDATE rules
		SET name = $1, field = $2, rule_condition = $3, condition_value = $4, active = $5, updated_at = $6
		WHERE id = $7 AND tenant_id = $8
	`), rule.Name, rule.Field, string(rule.Condition), string(value), rule.Active,
		rule.UpdatedAt, rule.ID, s.tenantID)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, rule.ID)
	}

	return nil
}

// Delete removes a rule from the database
func (s *SQLRuleStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.dialect.Rebind(`
		DELETE FROM rules
		WHERE id = $1 AND tenant_id = $2
	`), id, s.tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}

	return nil
}

// DeleteAll removes every rule belonging to the tenant.
func (s *SQLRuleStore) DeleteAll(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM rules WHERE tenant_id = $1`), s.tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete rules: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*Rule, error) {
	var (
		rule      Rule
		condition string
		value     []byte
	)

	if err := row.Scan(&rule.ID, &rule.Name, &rule.Field, &condition, &value,
		&rule.Active, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
		return nil, err
	}

	rule.Condition = Condition(condition)
	if err := json.Unmarshal(value, &rule.ConditionValue); err != nil {
		return nil, fmt.Errorf("failed to decode condition value for rule %s: %w", rule.ID, err)
	}

	return &rule, nil
}
