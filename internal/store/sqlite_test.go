package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/propstatus/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_CreateAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	id, err := st.CreateProperty(ctx, model.Property{
		Tenant:  "acme",
		Address: "1 Main St, Springfield",
		Price:   250000,
		Agent:   "Dana",
		Paid:    true,
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	addr, err := st.GetAddress(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "1 Main St, Springfield", addr)

	p, err := st.GetProperty(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "acme", p.Tenant)
	assert.Equal(t, model.StatusActive, p.Status)
	assert.InDelta(t, 250000, p.Price, 0.001)
	assert.Equal(t, "Dana", p.Agent)
	assert.True(t, p.Paid)
	assert.False(t, p.CreatedAt.IsZero())
}

func TestSQLite_GetAddress_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetAddress(context.Background(), 404)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = st.GetProperty(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_CreateProperty_Validation(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.CreateProperty(context.Background(), model.Property{Address: "1 Main St"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant is required")

	_, err = st.CreateProperty(context.Background(), model.Property{Tenant: "acme"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address is required")
}

func TestSQLite_ListByTenantAndTenants(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, p := range []model.Property{
		{Tenant: "beta", Address: "9 Elm St"},
		{Tenant: "acme", Address: "1 Main St"},
		{Tenant: "acme", Address: "2 Oak Ave", Status: model.StatusPending},
	} {
		_, err := st.CreateProperty(ctx, p)
		require.NoError(t, err)
	}

	props, err := st.ListByTenant(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, props, 2)
	assert.Equal(t, "1 Main St", props[0].Address)
	assert.Equal(t, model.StatusPending, props[1].Status)

	none, err := st.ListByTenant(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)

	tenants, err := st.ListTenants(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme", "beta"}, tenants)
}

func TestSQLite_UpdateStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	st.nowFunc = func() time.Time { return created }
	id, err := st.CreateProperty(ctx, model.Property{Tenant: "acme", Address: "1 Main St"})
	require.NoError(t, err)

	later := created.Add(48 * time.Hour)
	st.nowFunc = func() time.Time { return later }
	require.NoError(t, st.UpdateStatus(ctx, id, model.StatusSold))

	p, err := st.GetProperty(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSold, p.Status)
	assert.True(t, p.UpdatedAt.After(p.CreatedAt))

	err = st.UpdateStatus(ctx, 9999, model.StatusSold)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ImportProperties_KeepsStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	n, err := st.ImportProperties(ctx, []model.Property{
		{Tenant: "acme", Address: "1 Main St", Price: 100},
		{Tenant: "acme", Address: "2 Oak Ave", Price: 200},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	props, err := st.ListByTenant(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, props, 2)
	require.NoError(t, st.UpdateStatus(ctx, props[0].ID, model.StatusSold))

	_, err = st.ImportProperties(ctx, []model.Property{{Tenant: "acme", Address: "1 Main St", Price: 150}})
	require.NoError(t, err)

	p, err := st.GetProperty(ctx, props[0].ID)
	require.NoError(t, err)
	assert.InDelta(t, 150, p.Price, 0.001)
	assert.Equal(t, model.StatusSold, p.Status)

	n, err = st.ImportProperties(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLite_ImportProperties_RejectsInvalid(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.ImportProperties(ctx, []model.Property{
		{Tenant: "acme", Address: "1 Main St"},
		{Tenant: "acme"},
	})
	require.Error(t, err)

	props, err := st.ListByTenant(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, props, "a failed import is rolled back")
}

func TestSQLite_Ping(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Ping(context.Background()))
}
