package multitenantengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/liamcoop/rulevalidator/internal/database"
	"github.com/liamcoop/rulevalidator/rules"
)

var (
	ErrTenantNotFound = errors.New("tenant not found")
	ErrTenantExists   = errors.New("tenant already exists")
	ErrInvalidTenant  = errors.New("invalid tenant")
	ErrDefaultTenant  = errors.New("the default tenant cannot be deleted")
)

// Tenant owns an isolated rule catalog and evaluation policy.
type Tenant struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	LegacyComparisons bool      `json:"legacy_comparisons"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Options is the evaluation policy the tenant's engine runs with.
func (t *Tenant) Options() rules.Options {
	return rules.Options{LegacyComparisons: t.LegacyComparisons}
}

// TenantStore persists tenant records.
type TenantStore interface {
	// Create inserts a tenant, setting its timestamps.
	Create(ctx context.Context, tenant *Tenant) error

	// Get retrieves a tenant by ID
	Get(ctx context.Context, id string) (*Tenant, error)

	// List returns every tenant ordered by ID
	List(ctx context.Context) ([]*Tenant, error)

	// Update modifies an existing tenant
	Update(ctx context.Context, tenant *Tenant) error

	// Delete removes a tenant. SQL stores cascade to its rules.
	Delete(ctx context.Context, id string) error
}

// InMemoryTenantStore is a map-backed TenantStore.
type InMemoryTenantStore struct {
	mu      sync.RWMutex
	tenants map[string]*Tenant
}

// NewInMemoryTenantStore creates an empty in-memory tenant store.
func NewInMemoryTenantStore() *InMemoryTenantStore {
	return &InMemoryTenantStore{
		tenants: make(map[string]*Tenant),
	}
}

func (s *InMemoryTenantStore) Create(ctx context.Context, tenant *Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tenants[tenant.ID]; exists {
		return fmt.Errorf("%w: %s", ErrTenantExists, tenant.ID)
	}

	now := time.Now().UTC()
	tenant.CreatedAt = now
	tenant.UpdatedAt = now

	stored := *tenant
	s.tenants[tenant.ID] = &stored
	return nil
}

func (s *InMemoryTenantStore) Get(ctx context.Context, id string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenant, exists := s.tenants[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, id)
	}
	out := *tenant
	return &out, nil
}

func (s *InMemoryTenantStore) List(ctx context.Context) ([]*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenants := make([]*Tenant, 0, len(s.tenants))
	for _, tenant := range s.tenants {
		out := *tenant
		tenants = append(tenants, &out)
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].ID < tenants[j].ID })
	return tenants, nil
}

func (s *InMemoryTenantStore) Update(ctx context.Context, tenant *Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.tenants[tenant.ID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrTenantNotFound, tenant.ID)
	}

	tenant.CreatedAt = existing.CreatedAt
	tenant.UpdatedAt = time.Now().UTC()

	stored := *tenant
	s.tenants[tenant.ID] = &stored
	return nil
}

func (s *InMemoryTenantStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tenants[id]; !exists {
		return fmt.Errorf("%w: %s", ErrTenantNotFound, id)
	}
	delete(s.tenants, id)
	return nil
}

// SQLTenantStore implements TenantStore on the tenants table.
type SQLTenantStore struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewSQLTenantStore creates a SQL-backed TenantStore
func NewSQLTenantStore(db *sql.DB, dialect database.Dialect) *SQLTenantStore {
	return &SQLTenantStore{db: db, dialect: dialect}
}

func (s *SQLTenantStore) Create(ctx context.Context, tenant *Tenant) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT EXISTS(SELECT 1 FROM tenants WHERE id = $1)
	`), tenant.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check tenant existence: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrTenantExists, tenant.ID)
	}

	now := time.Now().UTC()
	tenant.CreatedAt = now
	tenant.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, s.dialect.Rebind(`
		INSERT INTO tenants (id, name, legacy_comparisons, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`), tenant.ID, tenant.Name, tenant.LegacyComparisons, tenant.CreatedAt, tenant.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert tenant: %w", err)
	}
	return nil
}

func (s *SQLTenantStore) Get(ctx context.Context, id string) (*Tenant, error) {
	var tenant Tenant
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT id, name, legacy_comparisons, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`), id).Scan(&tenant.ID, &tenant.Name, &tenant.LegacyComparisons, &tenant.CreatedAt, &tenant.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return &tenant, nil
}

func (s *SQLTenantStore) List(ctx context.Context) ([]*Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, legacy_comparisons, created_at, updated_at
		FROM tenants
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tenants: %w", err)
	}
	defer rows.Close()

	tenants := []*Tenant{}
	for rows.Next() {
		var tenant Tenant
		if err := rows.Scan(&tenant.ID, &tenant.Name, &tenant.LegacyComparisons, &tenant.CreatedAt, &tenant.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tenant row: %w", err)
		}
		tenants = append(tenants, &tenant)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tenant rows: %w", err)
	}
	return tenants, nil
}

func (s *SQLTenantStore) Update(ctx context.Context, tenant *Tenant) error {
	existing, err := s.Get(ctx, tenant.ID)
	if err != nil {
		return err
	}

	tenant.CreatedAt = existing.CreatedAt
	tenant.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, s.dialect.Rebind(`
		UPDATE tenants
		SET name = $1, legacy_comparisons = $2, updated_at = $3
		WHERE id = $4
	`), tenant.Name, tenant.LegacyComparisons, tenant.UpdatedAt, tenant.ID)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	return requireRow(result, tenant.ID)
}

func (s *SQLTenantStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM tenants WHERE id = $1`), id)
	if err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}
	return requireRow(result, id)
}

func requireRow(result sql.Result, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrTenantNotFound, id)
	}
	return nil
}
