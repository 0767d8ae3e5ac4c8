package moderation

import (
	"time"

	"orgmap.org/internal/ids"
)

// Status of an update request. pending may move to rejected; approved and
// rejected are terminal. There is no pending → approved path.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Record is the append-only audit row for one submission. Proposed new values
// are denormalized per entity type; Meta captures the original identifiers a
// reviewer needs to reconstruct what changed from what, even after the live
// entities mutate further.
type Record struct {
	ID          string            `json:"id"`
	Kind        Kind              `json:"request_type"`
	Status      Status            `json:"status"`
	SubmittedBy string            `json:"submitted_by"`
	RegionID    string            `json:"region_id"`
	Meta        map[string]string `json:"meta,omitempty"`
	AO          *AOPatch          `json:"ao,omitempty"`
	Location    *LocationPatch    `json:"location,omitempty"`
	Event       *EventPatch       `json:"event,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// newRecord builds the audit row for a submission in the given terminal or
// pending status.
func newRecord(ch Change, scope Scope, submittedBy string, status Status) *Record {
	rec := &Record{
		ID:          ids.New(),
		Kind:        ch.Kind(),
		Status:      status,
		SubmittedBy: submittedBy,
		RegionID:    scope.RegionID,
		Meta:        scope.Meta,
	}
	switch c := ch.(type) {
	case CreateAO:
		name := c.AO.Name
		rec.AO = &AOPatch{Name: &name}
		rec.Location = c.Location.patch()
		rec.Event = c.Event.patch()
	case CreateEvent:
		rec.Event = c.Event.patch()
	case EditEvent:
		ev := c.Event
		rec.Event = &ev
	case EditAO:
		ao := c.AO
		loc := c.Location
		rec.AO = &ao
		rec.Location = &loc
	case MoveAONewLocation:
		rec.Location = c.Location.patch()
	case MoveEventNewLocation:
		rec.Location = c.Location.patch()
	case MoveAORegion, MoveAOLocation, MoveEventAO, DeleteEvent, DeleteAO:
		// ids only; everything lives in Meta
	}
	return rec
}
