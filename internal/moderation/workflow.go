package moderation

import (
	"context"
	"errors"
	"fmt"

	"orgmap.org/internal/authz"
	"orgmap.org/internal/directory"
	"orgmap.org/internal/obs"
)

// Notifier alerts moderators that a submission is waiting for review. It runs
// after the pending record has committed and is strictly best-effort.
type Notifier interface {
	NotifyModerators(ctx context.Context, rec *Record) error
}

// Submission is the caller-visible outcome of Submit.
type Submission struct {
	RequestID string `json:"request_id"`
	Status    Status `json:"status"`
}

// Workflow orchestrates a submission: gate decision, apply-or-defer, audit
// record, notification.
type Workflow struct {
	gate       *Gate
	handlers   *Handlers
	records    RecordStore
	authorizer *authz.Authorizer
	notifier   Notifier
}

func NewWorkflow(gate *Gate, handlers *Handlers, records RecordStore, authorizer *authz.Authorizer, notifier Notifier) *Workflow {
	return &Workflow{
		gate:       gate,
		handlers:   handlers,
		records:    records,
		authorizer: authorizer,
		notifier:   notifier,
	}
}

// Submit runs one change through the engine. When the principal holds editor
// authority over every implicated org the mutation is applied first and the
// approved record written after — an approved record is a promise the
// mutation already happened. Otherwise no mutation occurs, a pending record
// is written, and moderators are notified best-effort.
func (w *Workflow) Submit(ctx context.Context, p authz.Principal, ch Change) (Submission, error) {
	if p.ID == "" {
		return Submission{}, fmt.Errorf("%w: submitter is required", ErrValidation)
	}
	if err := ch.Validate(); err != nil {
		return Submission{}, err
	}
	scope, err := w.gate.Resolve(ctx, ch)
	if err != nil {
		return Submission{}, err
	}
	allowed, err := w.gate.Decide(ctx, p, scope)
	if err != nil {
		return Submission{}, err
	}

	if allowed {
		if err := w.handlers.Apply(ctx, ch, scope); err != nil {
			// rolled back; no record may claim approval
			return Submission{}, err
		}
		rec := newRecord(ch, scope, p.ID, StatusApproved)
		if err := w.records.Append(ctx, rec); err != nil {
			return Submission{}, err
		}
		obs.ObserveSubmission(string(ch.Kind()), string(StatusApproved))
		return Submission{RequestID: rec.ID, Status: StatusApproved}, nil
	}

	rec := newRecord(ch, scope, p.ID, StatusPending)
	if err := w.records.Append(ctx, rec); err != nil {
		return Submission{}, err
	}
	obs.ObserveSubmission(string(ch.Kind()), string(StatusPending))

	if w.notifier != nil {
		if err := w.notifier.NotifyModerators(ctx, rec); err != nil {
			obs.LogRequest(map[string]any{
				"level":      "warn",
				"msg":        "moderator notification failed",
				"request_id": rec.ID,
				"error":      err.Error(),
			})
		}
	}
	return Submission{RequestID: rec.ID, Status: StatusPending}, nil
}

// Reject moves a pending record to rejected. The principal must hold editor
// authority on the record's region. No entity mutation occurs. Approved
// records are terminal and reject attempts on them are invalid transitions;
// re-rejecting an already-rejected record is a no-op.
func (w *Workflow) Reject(ctx context.Context, p authz.Principal, requestID string) error {
	rec, err := w.records.Find(ctx, requestID)
	if err != nil {
		return err
	}

	ok, err := w.authorizer.HasRoleOnOrgOrAncestor(ctx, p, rec.RegionID, directory.RoleEditor)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: no editor authority on region %s", authz.ErrUnauthorized, rec.RegionID)
	}

	switch rec.Status {
	case StatusRejected:
		return nil // idempotent retry
	case StatusApproved:
		return fmt.Errorf("%w: request %s already approved", ErrInvalidTransition, requestID)
	}

	if err := w.records.Transition(ctx, requestID, StatusPending, StatusRejected); err != nil {
		if errors.Is(err, directory.ErrConflict) {
			// lost a race; re-read to report the terminal state accurately
			cur, ferr := w.records.Find(ctx, requestID)
			if ferr == nil && cur.Status == StatusRejected {
				return nil
			}
			return fmt.Errorf("%w: request %s", ErrInvalidTransition, requestID)
		}
		return err
	}
	obs.ObserveRejection()
	return nil
}

// Record exposes a single audit record for the read side.
func (w *Workflow) Record(ctx context.Context, id string) (*Record, error) {
	return w.records.Find(ctx, id)
}

// Records lists audit records, optionally filtered by status.
func (w *Workflow) Records(ctx context.Context, status Status, limit int) ([]*Record, error) {
	return w.records.List(ctx, status, limit)
}
