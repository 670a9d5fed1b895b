package multitenantengine

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/rulevalidator/internal/database"
	"github.com/liamcoop/rulevalidator/rules"
)

func newSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(context.Background(), database.DialectSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(db, database.DialectSQLite))
	return db
}

// testTenantStore runs the TenantStore contract against an implementation.
func testTenantStore(t *testing.T, newStore func(t *testing.T) TenantStore) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		store := newStore(t)
		tenant := &Tenant{ID: "acme", Name: "Acme Corp", LegacyComparisons: true}
		require.NoError(t, store.Create(ctx, tenant))
		assert.False(t, tenant.CreatedAt.IsZero())

		got, err := store.Get(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, "Acme Corp", got.Name)
		assert.True(t, got.LegacyComparisons)
		assert.WithinDuration(t, tenant.CreatedAt, got.CreatedAt, 0)
	})

	t.Run("duplicate", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, &Tenant{ID: "acme", Name: "a"}))
		assert.ErrorIs(t, store.Create(ctx, &Tenant{ID: "acme", Name: "b"}), ErrTenantExists)
	})

	t.Run("not found", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(ctx, "ghost")
		assert.ErrorIs(t, err, ErrTenantNotFound)
		assert.ErrorIs(t, store.Update(ctx, &Tenant{ID: "ghost", Name: "g"}), ErrTenantNotFound)
		assert.ErrorIs(t, store.Delete(ctx, "ghost"), ErrTenantNotFound)
	})

	t.Run("update keeps created_at", func(t *testing.T) {
		store := newStore(t)
		tenant := &Tenant{ID: "acme", Name: "Acme"}
		require.NoError(t, store.Create(ctx, tenant))
		created := tenant.CreatedAt

		require.NoError(t, store.Update(ctx, &Tenant{ID: "acme", Name: "Acme EU", LegacyComparisons: true}))

		got, err := store.Get(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, "Acme EU", got.Name)
		assert.True(t, got.LegacyComparisons)
		assert.WithinDuration(t, created, got.CreatedAt, 0)
		assert.False(t, got.UpdatedAt.Before(created))
	})

	t.Run("list ordered by id", func(t *testing.T) {
		store := newStore(t)
		for _, id := range []string{"zeta", "alpha", "mid"} {
			require.NoError(t, store.Create(ctx, &Tenant{ID: id, Name: id}))
		}

		tenants, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, tenants, 3)
		assert.Equal(t, "alpha", tenants[0].ID)
		assert.Equal(t, "mid", tenants[1].ID)
		assert.Equal(t, "zeta", tenants[2].ID)
	})

	t.Run("empty list", func(t *testing.T) {
		tenants, err := newStore(t).List(ctx)
		require.NoError(t, err)
		assert.NotNil(t, tenants)
		assert.Empty(t, tenants)
	})

	t.Run("delete", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, &Tenant{ID: "acme", Name: "Acme"}))
		require.NoError(t, store.Delete(ctx, "acme"))

		_, err := store.Get(ctx, "acme")
		assert.ErrorIs(t, err, ErrTenantNotFound)
	})
}

func TestInMemoryTenantStore(t *testing.T) {
	testTenantStore(t, func(t *testing.T) TenantStore { return NewInMemoryTenantStore() })
}

func TestSQLTenantStoreSQLite(t *testing.T) {
	testTenantStore(t, func(t *testing.T) TenantStore {
		return NewSQLTenantStore(newSQLiteDB(t), database.DialectSQLite)
	})
}

// Deleting a tenant row cascades to its rules.
func TestSQLTenantStoreCascade(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)
	tenants := NewSQLTenantStore(db, database.DialectSQLite)
	require.NoError(t, tenants.Create(ctx, &Tenant{ID: "acme", Name: "Acme"}))

	store := rules.NewSQLRuleStore(db, database.DialectSQLite, "acme")
	require.NoError(t, store.Add(ctx, &rules.Rule{ID: "r1", Name: "age", Field: "age", Condition: rules.ConditionGte, ConditionValue: 18.0, Active: true}))

	require.NoError(t, tenants.Delete(ctx, "acme"))

	remaining, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestTenantOptions(t *testing.T) {
	assert.Equal(t, rules.Options{LegacyComparisons: true}, (&Tenant{LegacyComparisons: true}).Options())
	assert.Equal(t, rules.Options{}, (&Tenant{}).Options())
}
