package multitenantengine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/liamcoop/rulevalidator/internal/logger"
	"github.com/liamcoop/rulevalidator/rules"
)

// DefaultTenantID is the tenant behind the unscoped validation endpoint.
const DefaultTenantID = "default"

// TenantEngine pairs a tenant record with the engine built for it.
type TenantEngine struct {
	Tenant *Tenant
	Engine *rules.Engine
}

// TenantSettings is a partial tenant update; nil fields are left unchanged.
type TenantSettings struct {
	Name              *string `json:"name,omitempty"`
	LegacyComparisons *bool   `json:"legacy_comparisons,omitempty"`
}

// MultiTenantEngineManager manages engines for all tenants
type MultiTenantEngineManager struct {
	tenants    TenantStore
	ruleStores RuleStoreProvider

	engineOptions []rules.EngineOption
	cacheConfig   rules.CacheConfig
	defaults      rules.Options

	// writeMu serializes tenant mutations and reloads; mu guards engines.
	writeMu sync.Mutex
	mu      sync.RWMutex
	engines map[string]*TenantEngine
}

// ManagerOption configures a MultiTenantEngineManager.
type ManagerOption func(*MultiTenantEngineManager)

// WithEngineOptions appends options to every engine the manager builds.
func WithEngineOptions(opts ...rules.EngineOption) ManagerOption {
	return func(m *MultiTenantEngineManager) {
		m.engineOptions = append(m.engineOptions, opts...)
	}
}

// WithCacheConfig sets the rules cache configuration of every engine.
func WithCacheConfig(cfg rules.CacheConfig) ManagerOption {
	return func(m *MultiTenantEngineManager) { m.cacheConfig = cfg }
}

// WithDefaultOptions sets the evaluation policy of tenants created without
// explicit settings.
func WithDefaultOptions(opts rules.Options) ManagerOption {
	return func(m *MultiTenantEngineManager) { m.defaults = opts }
}

// NewMultiTenantEngineManager creates a new manager instance. No engines are
// loaded until LoadAllTenants or EnsureDefaultTenant is called.
func NewMultiTenantEngineManager(tenants TenantStore, ruleStores RuleStoreProvider, options ...ManagerOption) *MultiTenantEngineManager {
	m := &MultiTenantEngineManager{
		tenants:     tenants,
		ruleStores:  ruleStores,
		cacheConfig: rules.DefaultCacheConfig(),
		engines:     make(map[string]*TenantEngine),
	}
	for _, option := range options {
		option(m)
	}
	return m
}

func (m *MultiTenantEngineManager) newEngine(ctx context.Context, tenant *Tenant) (*rules.Engine, error) {
	opts := []rules.EngineOption{
		rules.WithOptions(tenant.Options()),
		rules.WithCache(rules.NewInMemoryRulesCache(m.cacheConfig)),
	}
	opts = append(opts, m.engineOptions...)

	engine, err := rules.NewEngine(ctx, m.ruleStores.RuleStore(tenant.ID), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine for tenant %s: %w", tenant.ID, err)
	}
	return engine, nil
}

// LoadAllTenants loads every tenant from the store, builds their engines and
// replaces the loaded set. Tenants removed from the store are dropped. On
// error the previously loaded engines stay in place.
func (m *MultiTenantEngineManager) LoadAllTenants(ctx context.Context) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	tenants, err := m.tenants.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch tenants: %w", err)
	}

	engines := make(map[string]*TenantEngine, len(tenants))
	for _, tenant := range tenants {
		engine, err := m.newEngine(ctx, tenant)
		if err != nil {
			return fmt.Errorf("failed to initialize tenant %s: %w", tenant.ID, err)
		}
		engines[tenant.ID] = &TenantEngine{Tenant: tenant, Engine: engine}
	}

	m.mu.Lock()
	m.engines = engines
	m.mu.Unlock()

	logger.Info("tenants loaded", "count", len(engines))
	return nil
}

// EnsureDefaultTenant creates the default tenant when the store lacks it and
// makes sure its engine is loaded.
func (m *MultiTenantEngineManager) EnsureDefaultTenant(ctx context.Context) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	tenant, err := m.tenants.Get(ctx, DefaultTenantID)
	if errors.Is(err, ErrTenantNotFound) {
		tenant = &Tenant{
			ID:                DefaultTenantID,
			Name:              "Default",
			LegacyComparisons: m.defaults.LegacyComparisons,
		}
		if err := m.tenants.Create(ctx, tenant); err != nil && !errors.Is(err, ErrTenantExists) {
			return fmt.Errorf("failed to create default tenant: %w", err)
		}
		logger.Info("default tenant created", "tenant_id", DefaultTenantID)
	} else if err != nil {
		return fmt.Errorf("failed to get default tenant: %w", err)
	}

	return m.install(ctx, tenant)
}

// CreateTenant validates and stores a new tenant and loads its engine.
// An empty id gets a generated UUID; a nil settings field takes the
// manager default (the name defaults to the id).
func (m *MultiTenantEngineManager) CreateTenant(ctx context.Context, id string, settings TenantSettings) (*Tenant, error) {
	if id == "" {
		id = uuid.New().String()
	}
	if err := ValidateTenantID(id); err != nil {
		return nil, err
	}

	tenant := &Tenant{
		ID:                id,
		Name:              id,
		LegacyComparisons: m.defaults.LegacyComparisons,
	}
	if settings.Name != nil {
		tenant.Name = *settings.Name
	}
	if settings.LegacyComparisons != nil {
		tenant.LegacyComparisons = *settings.LegacyComparisons
	}
	if err := ValidateTenantName(tenant.Name); err != nil {
		return nil, err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := m.tenants.Create(ctx, tenant); err != nil {
		return nil, err
	}
	if err := m.install(ctx, tenant); err != nil {
		return nil, err
	}

	logger.Info("tenant created", "tenant_id", tenant.ID, "legacy_comparisons", tenant.LegacyComparisons)
	out := *tenant
	return &out, nil
}

// install builds an engine for tenant and swaps it in. Callers hold writeMu.
func (m *MultiTenantEngineManager) install(ctx context.Context, tenant *Tenant) error {
	engine, err := m.newEngine(ctx, tenant)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.engines[tenant.ID] = &TenantEngine{Tenant: tenant, Engine: engine}
	m.mu.Unlock()
	return nil
}

// GetEngine retrieves the engine for a specific tenant
func (m *MultiTenantEngineManager) GetEngine(tenantID string) (*rules.Engine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	te, exists := m.engines[tenantID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, tenantID)
	}
	return te.Engine, nil
}

// GetTenant returns a copy of a loaded tenant's record.
func (m *MultiTenantEngineManager) GetTenant(tenantID string) (*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	te, exists := m.engines[tenantID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, tenantID)
	}
	out := *te.Tenant
	return &out, nil
}

// UpdateTenantSettings applies settings to a tenant. A new engine is built
// with the new policy and swapped in atomically; in-flight evaluations keep
// using the engine they started with.
func (m *MultiTenantEngineManager) UpdateTenantSettings(ctx context.Context, tenantID string, settings TenantSettings) (*Tenant, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	current, err := m.GetTenant(tenantID)
	if err != nil {
		return nil, err
	}

	updated := *current
	if settings.Name != nil {
		if err := ValidateTenantName(*settings.Name); err != nil {
			return nil, err
		}
		updated.Name = *settings.Name
	}
	if settings.LegacyComparisons != nil {
		updated.LegacyComparisons = *settings.LegacyComparisons
	}

	// Build first so a failure leaves both the store and the engine untouched.
	engine, err := m.newEngine(ctx, &updated)
	if err != nil {
		return nil, err
	}
	if err := m.tenants.Update(ctx, &updated); err != nil {
		return nil, fmt.Errorf("failed to save tenant: %w", err)
	}

	m.mu.Lock()
	m.engines[tenantID] = &TenantEngine{Tenant: &updated, Engine: engine}
	m.mu.Unlock()

	logger.Info("tenant settings updated", "tenant_id", tenantID, "legacy_comparisons", updated.LegacyComparisons)
	out := updated
	return &out, nil
}

// ListTenants returns copies of all loaded tenants ordered by ID.
func (m *MultiTenantEngineManager) ListTenants() []*Tenant {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tenants := make([]*Tenant, 0, len(m.engines))
	for _, te := range m.engines {
		out := *te.Tenant
		tenants = append(tenants, &out)
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].ID < tenants[j].ID })
	return tenants
}

// DeleteTenant removes a tenant, its rules and its engine. The default
// tenant cannot be deleted.
func (m *MultiTenantEngineManager) DeleteTenant(ctx context.Context, tenantID string) error {
	if tenantID == DefaultTenantID {
		return ErrDefaultTenant
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := m.tenants.Delete(ctx, tenantID); err != nil {
		return err
	}
	if err := m.ruleStores.Forget(ctx, tenantID); err != nil {
		return fmt.Errorf("failed to delete rules of tenant %s: %w", tenantID, err)
	}

	m.mu.Lock()
	delete(m.engines, tenantID)
	m.mu.Unlock()

	logger.Info("tenant deleted", "tenant_id", tenantID)
	return nil
}

// Count returns the number of loaded tenants.
func (m *MultiTenantEngineManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.engines)
}
