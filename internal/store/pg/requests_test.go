package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"orgmap.org/internal/directory"
	"orgmap.org/internal/moderation"
)

func TestRecordsAppendAndFind(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("insert into update_requests").
		WithArgs("req-1", "delete_event", "pending", "user-1", "region-1",
			sqlmock.AnyArg(), []byte(nil), []byte(nil), []byte(nil)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	records := NewWithDB(db).Records()
	rec := &moderation.Record{
		ID:          "req-1",
		Kind:        moderation.KindDeleteEvent,
		Status:      moderation.StatusPending,
		SubmittedBy: "user-1",
		RegionID:    "region-1",
		Meta:        map[string]string{"original_event_id": "ev-1"},
	}
	if err := records.Append(context.Background(), rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if rec.CreatedAt.IsZero() {
		t.Fatalf("created_at was not filled from the returning clause")
	}

	mock.ExpectQuery("select id, request_type, status").
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "request_type", "status", "submitted_by", "region_id",
			"meta", "ao", "location", "event", "created_at", "updated_at",
		}).AddRow("req-1", "delete_event", "pending", "user-1", "region-1",
			[]byte(`{"original_event_id":"ev-1"}`), nil, nil, nil, now, now))

	got, err := records.Find(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got.Meta["original_event_id"] != "ev-1" {
		t.Fatalf("meta did not round-trip: %v", got.Meta)
	}
	if got.AO != nil || got.Location != nil || got.Event != nil {
		t.Fatalf("null patch columns must stay nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRecordsTransitionRace(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	// zero rows updated: the status guard did not match
	mock.ExpectExec("update update_requests").
		WithArgs("req-1", "pending", "rejected").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select status from update_requests").
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("rejected"))

	err = NewWithDB(db).Records().Transition(context.Background(),
		"req-1", moderation.StatusPending, moderation.StatusRejected)
	if !errors.Is(err, directory.ErrConflict) {
		t.Fatalf("expected ErrConflict on lost race, got %v", err)
	}
}

func TestRecordsTransitionMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("update update_requests").
		WithArgs("ghost", "pending", "rejected").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select status from update_requests").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"status"}))

	err = NewWithDB(db).Records().Transition(context.Background(),
		"ghost", moderation.StatusPending, moderation.StatusRejected)
	if !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
