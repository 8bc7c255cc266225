package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	records []Record
	touched []string
}

func (f *fakeStore) List(ctx context.Context) ([]Record, error) {
	return f.records, nil
}

func (f *fakeStore) TouchLastUsed(ctx context.Context, keyHash string) {
	f.touched = append(f.touched, keyHash)
}

func TestResolveUnknownKeyIsUnauthenticated(t *testing.T) {
	r := NewResolver(&fakeStore{})
	_, err := r.Resolve(context.Background(), "sp_nope")
	require.Error(t, err)
}

func TestResolveEmptyKeyIsUnauthenticated(t *testing.T) {
	r := NewResolver(&fakeStore{})
	_, err := r.Resolve(context.Background(), "")
	require.Error(t, err)
}

func TestResolveKnownKey(t *testing.T) {
	store := &fakeStore{records: []Record{
		{KeyHash: HashKey("sp_abc"), Identity: Identity{Tenant: "acme", Role: RoleAnalyst}},
	}}
	r := NewResolver(store)
	require.NoError(t, r.Refresh(context.Background()))

	id, err := r.Resolve(context.Background(), "sp_abc")
	require.NoError(t, err)
	require.Equal(t, "acme", id.Tenant)
	require.False(t, id.IsAdmin())
	require.Len(t, store.touched, 1)
}

func TestResolveAdminTenant(t *testing.T) {
	store := &fakeStore{records: []Record{
		{KeyHash: HashKey("sp_admin"), Identity: Identity{Tenant: AdminTenant, Role: RoleAdmin}},
	}}
	r := NewResolver(store)
	require.NoError(t, r.Refresh(context.Background()))

	id, err := r.Resolve(context.Background(), "sp_admin")
	require.NoError(t, err)
	require.True(t, id.IsAdmin())
}

func TestSetInstallsKeyImmediately(t *testing.T) {
	r := NewResolver(&fakeStore{})
	r.Set(HashKey("sp_new"), Identity{Tenant: "acme", Role: RoleViewer})

	id, err := r.Resolve(context.Background(), "sp_new")
	require.NoError(t, err)
	require.Equal(t, "acme", id.Tenant)
}

func TestRemoveEvictsKey(t *testing.T) {
	r := NewResolver(&fakeStore{})
	r.Set(HashKey("sp_new"), Identity{Tenant: "acme", Role: RoleViewer})
	r.Remove(HashKey("sp_new"))

	_, err := r.Resolve(context.Background(), "sp_new")
	require.Error(t, err)
}
