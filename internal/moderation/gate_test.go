package moderation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"orgmap.org/internal/authz"
	"orgmap.org/internal/directory"
)

func TestResolveMoveEventAO(t *testing.T) {
	f := newFixture(t)
	gate := NewGate(f.store, authz.New(f.store))

	scope, err := gate.Resolve(context.Background(), MoveEventAO{
		EventID: "e1", NewAOID: "a2", NewLocationID: "l2",
	})
	require.NoError(t, err)
	require.Equal(t, "r2", scope.RegionID, "record files under the destination AO's region")
	require.ElementsMatch(t, []string{"a1", "a2"}, scope.Implicated)
	require.Equal(t, "e1", scope.Meta["original_event_id"])
	require.Equal(t, "a1", scope.Meta["original_ao_id"])
	require.Equal(t, "l1", scope.Meta["original_location_id"])
	require.Equal(t, "a2", scope.Meta["new_ao_id"])
	require.Equal(t, "l2", scope.Meta["new_location_id"])
}

func TestResolveOrphanAO(t *testing.T) {
	f := newFixture(t)
	f.store.Seed([]directory.Org{
		{ID: "loner", OrgType: directory.OrgTypeAO, Name: "Loner", IsActive: true},
	}, nil, nil)
	gate := NewGate(f.store, authz.New(f.store))

	_, err := gate.Resolve(context.Background(), DeleteAO{AOID: "loner"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestResolveRejectsWrongOrgType(t *testing.T) {
	f := newFixture(t)
	gate := NewGate(f.store, authz.New(f.store))
	ctx := context.Background()

	// a region is not a movable AO
	_, err := gate.Resolve(ctx, MoveAORegion{AOID: "r1", NewRegionID: "r2"})
	require.ErrorIs(t, err, ErrValidation)

	// an AO is not a destination region
	_, err = gate.Resolve(ctx, MoveAORegion{AOID: "a1", NewRegionID: "a2"})
	require.ErrorIs(t, err, ErrValidation)

	// delete-AO cannot soft-delete a region
	_, err = gate.Resolve(ctx, DeleteAO{AOID: "r1"})
	require.ErrorIs(t, err, ErrValidation)

	// AOs live under regions, never under other AOs
	_, err = gate.Resolve(ctx, CreateAO{RegionID: "a1", AO: AOFields{Name: "Nested"}})
	require.ErrorIs(t, err, ErrValidation)

	// events attach to AOs only
	_, err = gate.Resolve(ctx, MoveEventAO{EventID: "e1", NewAOID: "r2", NewLocationID: "l2"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestResolveMissingEntity(t *testing.T) {
	f := newFixture(t)
	gate := NewGate(f.store, authz.New(f.store))

	_, err := gate.Resolve(context.Background(), EditEvent{EventID: "ghost"})
	require.ErrorIs(t, err, directory.ErrNotFound)

	_, err = gate.Resolve(context.Background(), MoveAORegion{AOID: "a1", NewRegionID: "ghost"})
	require.ErrorIs(t, err, directory.ErrNotFound)
}

func TestDecideAllOrNothing(t *testing.T) {
	f := newFixture(t)
	az := authz.New(f.store)
	gate := NewGate(f.store, az)
	ctx := context.Background()

	p := f.principal(t, "u1", [2]string{"r1", "editor"})
	scope := Scope{Implicated: []string{"a1", "a2"}}

	ok, err := gate.Decide(ctx, p, scope)
	require.NoError(t, err)
	require.False(t, ok, "one uncovered node fails the whole request")

	f.store.Grant("u1", "r2", directory.RoleEditor)
	p = f.principal(t, "u1")
	ok, err = gate.Decide(ctx, p, scope)
	require.NoError(t, err)
	require.True(t, ok)
}
