package moderation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"orgmap.org/internal/authz"
	"orgmap.org/internal/directory"
)

type fixture struct {
	store    *directory.InMemory
	records  *InMemoryRecords
	workflow *Workflow
	notified []*Record
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   directory.NewInMemory(),
		records: NewInMemoryRecords(),
	}
	f.store.Seed([]directory.Org{
		{ID: "nation", OrgType: directory.OrgTypeNation, Name: "Nation", IsActive: true},
		{ID: "r1", ParentID: "nation", OrgType: directory.OrgTypeRegion, Name: "R1", IsActive: true},
		{ID: "r2", ParentID: "nation", OrgType: directory.OrgTypeRegion, Name: "R2", IsActive: true},
		{ID: "a1", ParentID: "r1", OrgType: directory.OrgTypeAO, Name: "A1", IsActive: true},
		{ID: "a2", ParentID: "r2", OrgType: directory.OrgTypeAO, Name: "A2", IsActive: true},
	}, []directory.Location{
		{ID: "l1", OrgID: "r1", Name: "The Park", IsActive: true},
		{ID: "l2", OrgID: "r2", Name: "The Pier", IsActive: true},
	}, []directory.Event{
		{ID: "e1", OrgID: "a1", LocationID: "l1", Name: "Bootcamp", DayOfWeek: 6, StartTime: "0530", IsActive: true},
		{ID: "e2", OrgID: "a2", LocationID: "l2", Name: "Ruck", DayOfWeek: 2, StartTime: "0530", IsActive: true},
	})
	az := authz.New(f.store)
	f.workflow = NewWorkflow(
		NewGate(f.store, az),
		NewHandlers(f.store),
		f.records,
		az,
		notifierFunc(func(ctx context.Context, rec *Record) error {
			f.notified = append(f.notified, rec)
			return nil
		}),
	)
	return f
}

type notifierFunc func(ctx context.Context, rec *Record) error

func (f notifierFunc) NotifyModerators(ctx context.Context, rec *Record) error { return f(ctx, rec) }

func (f *fixture) principal(t *testing.T, id string, grants ...[2]string) authz.Principal {
	t.Helper()
	for _, g := range grants {
		f.store.Grant(id, g[0], directory.Role(g[1]))
	}
	asg, err := f.store.AssignmentsFor(context.Background(), id)
	require.NoError(t, err)
	return authz.Principal{ID: id, Assignments: asg}
}

func TestSubmitAuthorizedApplies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.principal(t, "u1", [2]string{"r1", "editor"})

	sub, err := f.workflow.Submit(ctx, p, DeleteEvent{EventID: "e1"})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, sub.Status)

	ev, err := f.store.GetEvent(ctx, "e1")
	require.NoError(t, err)
	require.False(t, ev.IsActive, "mutation must be durably visible")

	rec, err := f.records.Find(ctx, sub.RequestID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, rec.Status)
	require.Empty(t, f.notified, "approved submissions do not notify moderators")
}

func TestSubmitUnauthorizedQueues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.principal(t, "u1", [2]string{"r2", "editor"})

	sub, err := f.workflow.Submit(ctx, p, DeleteEvent{EventID: "e1"})
	require.NoError(t, err)
	require.Equal(t, StatusPending, sub.Status)

	ev, err := f.store.GetEvent(ctx, "e1")
	require.NoError(t, err)
	require.True(t, ev.IsActive, "no mutation may occur on a pending request")

	require.Len(t, f.notified, 1)
	require.Equal(t, sub.RequestID, f.notified[0].ID)
	require.Equal(t, "r1", f.notified[0].RegionID)
}

func TestMoveAORegionRequiresBothRegions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// editor on the original region only: queued, parent unchanged
	p := f.principal(t, "u1", [2]string{"r1", "editor"})
	sub, err := f.workflow.Submit(ctx, p, MoveAORegion{AOID: "a1", NewRegionID: "r2"})
	require.NoError(t, err)
	require.Equal(t, StatusPending, sub.Status)

	ao, err := f.store.GetOrg(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, "r1", ao.ParentID)

	rec, err := f.records.Find(ctx, sub.RequestID)
	require.NoError(t, err)
	require.Equal(t, "r2", rec.RegionID, "record scopes to the new region")
	require.Equal(t, "r1", rec.Meta["original_region_id"])

	// editor on both regions: applied
	p2 := f.principal(t, "u2", [2]string{"r1", "editor"}, [2]string{"r2", "editor"})
	sub, err = f.workflow.Submit(ctx, p2, MoveAORegion{AOID: "a1", NewRegionID: "r2"})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, sub.Status)

	ao, err = f.store.GetOrg(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, "r2", ao.ParentID)
}

func TestMoveAORegionStaleDecisionConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.Seed([]directory.Org{
		{ID: "r3", ParentID: "nation", OrgType: directory.OrgTypeRegion, Name: "R3", IsActive: true},
	}, nil, nil)
	az := authz.New(f.store)

	// a1 leaves r1 for r3 after the gate decides but before the handler
	// transaction opens; the principal is never authorized on r3
	st := &reparentBetween{Store: f.store, run: func() {
		err := f.store.WithinTx(ctx, func(tx directory.Tx) error {
			return tx.ReparentOrg(ctx, "a1", "r1", "r3")
		})
		require.NoError(t, err)
	}}
	wf := NewWorkflow(NewGate(f.store, az), NewHandlers(st), f.records, az, LogDiscard{})

	p := f.principal(t, "u1", [2]string{"r1", "editor"}, [2]string{"r2", "editor"})
	_, err := wf.Submit(ctx, p, MoveAORegion{AOID: "a1", NewRegionID: "r2"})
	require.ErrorIs(t, err, directory.ErrConflict)

	ao, err := f.store.GetOrg(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, "r3", ao.ParentID, "the concurrent move must stand")

	recs, _ := f.records.List(ctx, "", 100)
	require.Empty(t, recs, "no record may claim approval for a conflicted move")
}

// reparentBetween commits a move through the live store right before the
// handler transaction opens, simulating a write landing after the gate
// decision.
type reparentBetween struct {
	directory.Store
	run func()
}

func (s *reparentBetween) WithinTx(ctx context.Context, fn func(tx directory.Tx) error) error {
	if s.run != nil {
		s.run()
		s.run = nil
	}
	return s.Store.WithinTx(ctx, fn)
}

func TestDeleteAOCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.principal(t, "u1", [2]string{"nation", "admin"})

	sub, err := f.workflow.Submit(ctx, p, DeleteAO{AOID: "a1"})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, sub.Status)

	ao, _ := f.store.GetOrg(ctx, "a1")
	require.False(t, ao.IsActive)
	e1, _ := f.store.GetEvent(ctx, "e1")
	require.False(t, e1.IsActive, "events under the AO cascade")
	e2, _ := f.store.GetEvent(ctx, "e2")
	require.True(t, e2.IsActive, "events under other AOs are untouched")
}

func TestCreateAOChainsGeneratedIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.principal(t, "u1", [2]string{"r1", "editor"})

	sub, err := f.workflow.Submit(ctx, p, CreateAO{
		RegionID: "r1",
		AO:       AOFields{Name: "The Forge"},
		Location: LocationFields{Name: "Forge Park", Latitude: 35.2, Longitude: -80.8},
		Event:    EventFields{Name: "Beatdown", DayOfWeek: 5, StartTime: "0530", Tags: []string{"bootcamp"}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, sub.Status)

	// the new AO sits under r1 and its event references the new location
	set, err := f.store.Descendants(ctx, []string{"r1"})
	require.NoError(t, err)
	var newAO string
	for _, id := range set {
		if id != "r1" && id != "a1" {
			newAO = id
		}
	}
	require.NotEmpty(t, newAO, "new AO must appear under r1")
	ao, err := f.store.GetOrg(ctx, newAO)
	require.NoError(t, err)
	require.Equal(t, directory.OrgTypeAO, ao.OrgType)
	require.True(t, ao.IsActive)
}

func TestCreateAOFailureLeavesNoRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	az := authz.New(f.store)
	boom := errors.New("simulated failure after AO insert")
	wf := NewWorkflow(
		NewGate(f.store, az),
		NewHandlers(failAfterAOInsert{f.store, boom}),
		f.records,
		az,
		LogDiscard{},
	)
	p := f.principal(t, "u1", [2]string{"r1", "editor"})

	_, err := wf.Submit(ctx, p, CreateAO{
		RegionID: "r1",
		AO:       AOFields{Name: "Doomed"},
		Location: LocationFields{Name: "Nowhere"},
		Event:    EventFields{Name: "Never", DayOfWeek: 1, StartTime: "0530"},
	})
	require.ErrorIs(t, err, boom)

	// nothing new under r1, and no audit record was written
	set, _ := f.store.Descendants(ctx, []string{"r1"})
	require.Len(t, set, 2, "rollback must leave zero new rows")
	recs, _ := f.records.List(ctx, "", 100)
	require.Empty(t, recs, "no record may claim approval for a rolled-back mutation")
}

// failAfterAOInsert wraps the store so the event insert that follows the AO
// insert fails, exercising whole-transaction rollback.
type failAfterAOInsert struct {
	directory.Store
	err error
}

func (s failAfterAOInsert) WithinTx(ctx context.Context, fn func(tx directory.Tx) error) error {
	return s.Store.WithinTx(ctx, func(tx directory.Tx) error {
		return fn(failingTx{tx, s.err})
	})
}

type failingTx struct {
	directory.Tx
	err error
}

func (t failingTx) InsertEvent(ctx context.Context, ev *directory.Event) error { return t.err }

// LogDiscard is a no-op notifier.
type LogDiscard struct{}

func (LogDiscard) NotifyModerators(ctx context.Context, rec *Record) error { return nil }

func TestRejectPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	submitter := f.principal(t, "u1") // no grants anywhere
	sub, err := f.workflow.Submit(ctx, submitter, DeleteEvent{EventID: "e1"})
	require.NoError(t, err)
	require.Equal(t, StatusPending, sub.Status)

	// no authority on r1: authorization error, status unchanged
	outsider := f.principal(t, "u2", [2]string{"r2", "editor"})
	err = f.workflow.Reject(ctx, outsider, sub.RequestID)
	require.ErrorIs(t, err, authz.ErrUnauthorized)
	rec, _ := f.records.Find(ctx, sub.RequestID)
	require.Equal(t, StatusPending, rec.Status)

	// editor on r1 rejects; no entity mutation occurs
	moderator := f.principal(t, "u3", [2]string{"r1", "editor"})
	require.NoError(t, f.workflow.Reject(ctx, moderator, sub.RequestID))
	rec, _ = f.records.Find(ctx, sub.RequestID)
	require.Equal(t, StatusRejected, rec.Status)
	ev, _ := f.store.GetEvent(ctx, "e1")
	require.True(t, ev.IsActive)

	// retrying a rejection is a no-op
	require.NoError(t, f.workflow.Reject(ctx, moderator, sub.RequestID))

	// rejecting an approved record is an invalid transition
	approved, err := f.workflow.Submit(ctx, moderator, DeleteEvent{EventID: "e1"})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	err = f.workflow.Reject(ctx, moderator, approved.RequestID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRejectMissingRequest(t *testing.T) {
	f := newFixture(t)
	p := f.principal(t, "u1", [2]string{"nation", "admin"})
	err := f.workflow.Reject(context.Background(), p, "no-such-request")
	require.ErrorIs(t, err, directory.ErrNotFound)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.principal(t, "u1", [2]string{"nation", "admin"})

	_, err := f.workflow.Submit(ctx, p, DeleteEvent{})
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.workflow.Submit(ctx, p, DeleteEvent{EventID: "ghost"})
	require.ErrorIs(t, err, directory.ErrNotFound)

	_, err = f.workflow.Submit(ctx, authz.Principal{}, DeleteEvent{EventID: "e1"})
	require.ErrorIs(t, err, ErrValidation)

	// no record is written on validation or not-found failures
	recs, _ := f.records.List(ctx, "", 100)
	require.Empty(t, recs)
}

func TestNotifierFailureDoesNotFailSubmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	az := authz.New(f.store)
	wf := NewWorkflow(
		NewGate(f.store, az),
		NewHandlers(f.store),
		f.records,
		az,
		notifierFunc(func(ctx context.Context, rec *Record) error {
			return errors.New("smtp down")
		}),
	)
	p := f.principal(t, "u1") // unauthorized everywhere

	sub, err := wf.Submit(ctx, p, DeleteEvent{EventID: "e1"})
	require.NoError(t, err, "notification failures are swallowed")
	require.Equal(t, StatusPending, sub.Status)
}
