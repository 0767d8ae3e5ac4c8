package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"orgmap.org/internal/directory"
)

func TestAncestorChainSingleQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select o0.id, o1.id, o2.id, o3.id, o4.id").
		WithArgs("ao-1").
		WillReturnRows(sqlmock.NewRows([]string{"id0", "id1", "id2", "id3", "id4"}).
			AddRow("ao-1", "region-1", "area-1", "nation-1", nil))

	chain, err := NewWithDB(db).AncestorChain(context.Background(), "ao-1")
	if err != nil {
		t.Fatalf("AncestorChain: %v", err)
	}
	want := []string{"ao-1", "region-1", "area-1", "nation-1"}
	if len(chain) != len(want) {
		t.Fatalf("chain = %v, want %v", chain, want)
	}
	for i := range want {
		if chain[i] != want[i] {
			t.Fatalf("chain[%d] = %s, want %s", i, chain[i], want[i])
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAncestorChainMissingOrg(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select o0.id, o1.id, o2.id, o3.id, o4.id").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id0", "id1", "id2", "id3", "id4"}))

	chain, err := NewWithDB(db).AncestorChain(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("AncestorChain: %v", err)
	}
	if len(chain) != 0 {
		t.Fatalf("expected empty chain for missing org, got %v", chain)
	}
}

func TestDescendantsExpandsRoots(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("with recursive sub").
		WithArgs("region-1,region-2", directory.MaxAncestorHops).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).
			AddRow("region-1").AddRow("region-2").AddRow("ao-1"))

	out, err := NewWithDB(db).Descendants(context.Background(), []string{"region-1", "region-2"})
	if err != nil {
		t.Fatalf("Descendants: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 ids, got %v", out)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReparentOrgConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("select parent_id from orgs").
		WithArgs("ao-1").
		WillReturnRows(sqlmock.NewRows([]string{"parent_id"}).AddRow("region-9"))
	mock.ExpectRollback()

	err = NewWithDB(db).WithinTx(context.Background(), func(tx directory.Tx) error {
		return tx.ReparentOrg(context.Background(), "ao-1", "region-1", "region-2")
	})
	if !errors.Is(err, directory.ErrConflict) {
		t.Fatalf("expected ErrConflict on stale parent, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWithinTxCommitsOnSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("update events set is_active = false").
		WithArgs("ev-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = NewWithDB(db).WithinTx(context.Background(), func(tx directory.Tx) error {
		return tx.DeactivateEvent(context.Background(), "ev-1")
	})
	if err != nil {
		t.Fatalf("WithinTx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	boom := errors.New("handler failed")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err = NewWithDB(db).WithinTx(context.Background(), func(tx directory.Tx) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertEventRejectsNonAO(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("select org_type from orgs").
		WithArgs("region-1").
		WillReturnRows(sqlmock.NewRows([]string{"org_type"}).AddRow("region"))
	mock.ExpectRollback()

	err = NewWithDB(db).WithinTx(context.Background(), func(tx directory.Tx) error {
		return tx.InsertEvent(context.Background(), &directory.Event{
			OrgID: "region-1", LocationID: "loc-1", Name: "Bootcamp", StartTime: "0530",
		})
	})
	if !errors.Is(err, directory.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestGetOrgNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select id, parent_id, org_type").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "parent_id", "org_type", "name", "is_active", "created_at", "updated_at"}))

	_, err = NewWithDB(db).GetOrg(context.Background(), "ghost")
	if !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetEventLoadsTags(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("select id, org_id, location_id").
		WithArgs("ev-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "org_id", "location_id", "name", "description", "day_of_week",
			"start_time", "end_time", "start_date", "is_active", "is_private", "created_at", "updated_at",
		}).AddRow("ev-1", "ao-1", "loc-1", "Bootcamp", "", 6, "0530", "0615", now, true, false, now, now))
	mock.ExpectQuery("select tag from event_tags").
		WithArgs("ev-1").
		WillReturnRows(sqlmock.NewRows([]string{"tag"}).AddRow("bootcamp").AddRow("ruck"))

	ev, err := NewWithDB(db).GetEvent(context.Background(), "ev-1")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if len(ev.Tags) != 2 || ev.Tags[0] != "bootcamp" {
		t.Fatalf("unexpected tags: %v", ev.Tags)
	}
	if ev.StartDate == "" {
		t.Fatalf("start_date was not rendered")
	}
}
