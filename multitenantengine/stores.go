package multitenantengine

import (
	"context"
	"database/sql"
	"sync"

	"github.com/liamcoop/rulevalidator/internal/database"
	"github.com/liamcoop/rulevalidator/rules"
)

// RuleStoreProvider hands out the rule store scoped to one tenant.
type RuleStoreProvider interface {
	RuleStore(tenantID string) rules.RuleStore

	// Forget drops every rule of a deleted tenant.
	Forget(ctx context.Context, tenantID string) error
}

// InMemoryRuleStores keeps one InMemoryRuleStore per tenant. A store
// survives engine rebuilds, so settings changes keep the tenant's rules.
type InMemoryRuleStores struct {
	mu     sync.Mutex
	stores map[string]*rules.InMemoryRuleStore
}

func NewInMemoryRuleStores() *InMemoryRuleStores {
	return &InMemoryRuleStores{stores: make(map[string]*rules.InMemoryRuleStore)}
}

func (p *InMemoryRuleStores) RuleStore(tenantID string) rules.RuleStore {
	p.mu.Lock()
	defer p.mu.Unlock()

	store, ok := p.stores[tenantID]
	if !ok {
		store = rules.NewInMemoryRuleStore()
		p.stores[tenantID] = store
	}
	return store
}

func (p *InMemoryRuleStores) Forget(ctx context.Context, tenantID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.stores, tenantID)
	return nil
}

// SQLRuleStores scopes SQLRuleStore instances over one shared database.
type SQLRuleStores struct {
	db      *sql.DB
	dialect database.Dialect
}

func NewSQLRuleStores(db *sql.DB, dialect database.Dialect) *SQLRuleStores {
	return &SQLRuleStores{db: db, dialect: dialect}
}

func (p *SQLRuleStores) RuleStore(tenantID string) rules.RuleStore {
	return rules.NewSQLRuleStore(p.db, p.dialect, tenantID)
}

// Forget deletes the tenant's rules explicitly; the tenants foreign key
// cascades too, but SQLite only honours it with foreign_keys enabled.
func (p *SQLRuleStores) Forget(ctx context.Context, tenantID string) error {
	return rules.NewSQLRuleStore(p.db, p.dialect, tenantID).DeleteAll(ctx)
}
