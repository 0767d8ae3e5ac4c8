package directory

import (
	"context"
	"errors"
	"testing"
)

func seedTree(s *InMemory) {
	s.Seed([]Org{
		{ID: "nation", OrgType: OrgTypeNation, Name: "Nation", IsActive: true},
		{ID: "sector", ParentID: "nation", OrgType: OrgTypeSector, Name: "Sector", IsActive: true},
		{ID: "area", ParentID: "sector", OrgType: OrgTypeArea, Name: "Area", IsActive: true},
		{ID: "r1", ParentID: "area", OrgType: OrgTypeRegion, Name: "Region One", IsActive: true},
		{ID: "r2", ParentID: "nation", OrgType: OrgTypeRegion, Name: "Region Two", IsActive: true},
		{ID: "a1", ParentID: "r1", OrgType: OrgTypeAO, Name: "AO One", IsActive: true},
		{ID: "a2", ParentID: "r2", OrgType: OrgTypeAO, Name: "AO Two", IsActive: true},
	}, []Location{
		{ID: "l1", OrgID: "r1", Name: "The Park", IsActive: true},
	}, []Event{
		{ID: "e1", OrgID: "a1", LocationID: "l1", Name: "Bootcamp", DayOfWeek: 6, IsActive: true},
	})
}

func TestAncestorChainBounded(t *testing.T) {
	s := NewInMemory()
	seedTree(s)
	ctx := context.Background()

	chain, err := s.AncestorChain(ctx, "a1")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a1", "r1", "area", "sector", "nation"}
	if len(chain) != len(want) {
		t.Fatalf("chain = %v, want %v", chain, want)
	}
	for i := range want {
		if chain[i] != want[i] {
			t.Fatalf("chain[%d] = %s, want %s", i, chain[i], want[i])
		}
	}

	chain, err = s.AncestorChain(ctx, "missing")
	if err != nil {
		t.Fatal(err)
	}
	if len(chain) != 0 {
		t.Fatalf("expected empty chain for missing org, got %v", chain)
	}
}

func TestDescendantsIncludesInput(t *testing.T) {
	s := NewInMemory()
	seedTree(s)

	got, err := s.Descendants(context.Background(), []string{"r1"})
	if err != nil {
		t.Fatal(err)
	}
	set := map[string]bool{}
	for _, id := range got {
		set[id] = true
	}
	if !set["r1"] || !set["a1"] {
		t.Fatalf("expected r1 and a1 in %v", got)
	}
	if set["r2"] || set["a2"] || set["nation"] {
		t.Fatalf("expansion escaped the r1 subtree: %v", got)
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	s := NewInMemory()
	seedTree(s)
	ctx := context.Background()

	err := s.WithinTx(ctx, func(tx Tx) error {
		loc := &Location{OrgID: "r1", Name: "New Spot"}
		if err := tx.InsertLocation(ctx, loc); err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected error")
	}

	// the staged insert must not be visible
	if _, err := s.GetLocation(ctx, "l1"); err != nil {
		t.Fatalf("pre-existing row lost: %v", err)
	}
	got, _ := s.Descendants(ctx, []string{"r1"})
	if len(got) != 2 {
		t.Fatalf("unexpected tree mutation after rollback: %v", got)
	}
}

func TestInsertEventRequiresAO(t *testing.T) {
	s := NewInMemory()
	seedTree(s)
	ctx := context.Background()

	err := s.WithinTx(ctx, func(tx Tx) error {
		return tx.InsertEvent(ctx, &Event{OrgID: "r1", LocationID: "l1", Name: "Bad"})
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestReparentConflict(t *testing.T) {
	s := NewInMemory()
	seedTree(s)
	ctx := context.Background()

	err := s.WithinTx(ctx, func(tx Tx) error {
		return tx.ReparentOrg(ctx, "a1", "r2", "r2")
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on stale parent, got %v", err)
	}

	if err := s.WithinTx(ctx, func(tx Tx) error {
		return tx.ReparentOrg(ctx, "a1", "r1", "r2")
	}); err != nil {
		t.Fatal(err)
	}
	org, _ := s.GetOrg(ctx, "a1")
	if org.ParentID != "r2" {
		t.Fatalf("parent = %s, want r2", org.ParentID)
	}
}
