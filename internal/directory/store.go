package directory

import "context"

// Store describes persistence required by the moderation engine. Read methods
// run outside transactions; every mutation happens through WithinTx so a
// multi-entity change either lands whole or not at all.
type Store interface {
	// WithinTx runs fn against a transactional view. If fn returns an error
	// the transaction rolls back and no partial write survives.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	GetOrg(ctx context.Context, id string) (Org, error)
	GetLocation(ctx context.Context, id string) (Location, error)
	GetEvent(ctx context.Context, id string) (Event, error)

	// AncestorChain returns the ids from orgID up through parent links, the
	// org itself first, bounded by MaxAncestorHops. A missing org yields an
	// empty chain, not an error.
	AncestorChain(ctx context.Context, orgID string) ([]string, error)

	// Descendants expands orgIDs downward up to MaxAncestorHops levels and
	// returns the union including the inputs themselves.
	Descendants(ctx context.Context, orgIDs []string) ([]string, error)

	// AssignmentsFor returns every role assignment held by the principal.
	AssignmentsFor(ctx context.Context, principalID string) ([]RoleAssignment, error)
}

// Tx is the transactional mutation surface. Insert methods fill in generated
// ids before returning so dependent rows can reference them in the same
// transaction.
type Tx interface {
	InsertOrg(ctx context.Context, org *Org) error
	UpdateOrg(ctx context.Context, id string, upd OrgUpdate) error
	// ReparentOrg moves org id under newParentID. expectedParentID guards
	// against a concurrent reparent: if the row's current parent differs the
	// call fails with ErrConflict and nothing is written.
	ReparentOrg(ctx context.Context, id, expectedParentID, newParentID string) error
	DeactivateOrg(ctx context.Context, id string) error

	InsertLocation(ctx context.Context, loc *Location) error
	UpdateLocation(ctx context.Context, id string, upd LocationUpdate) error

	InsertEvent(ctx context.Context, ev *Event) error
	UpdateEvent(ctx context.Context, id string, upd EventUpdate) error
	// RepointEvents moves every event owned by orgID to locationID.
	RepointEvents(ctx context.Context, orgID, locationID string) error
	// RepointEvent moves a single event to a different AO/location pair.
	RepointEvent(ctx context.Context, eventID, orgID, locationID string) error
	DeactivateEvent(ctx context.Context, id string) error
	// DeactivateEventsByOrg soft-deletes every event owned by orgID within
	// the transaction snapshot.
	DeactivateEventsByOrg(ctx context.Context, orgID string) error

	GetOrg(ctx context.Context, id string) (Org, error)
	GetLocation(ctx context.Context, id string) (Location, error)
	GetEvent(ctx context.Context, id string) (Event, error)
}

// OrgUpdate applies partial field changes; nil pointers leave the field
// untouched.
type OrgUpdate struct {
	Name     *string
	IsActive *bool
}

// LocationUpdate applies partial field changes.
type LocationUpdate struct {
	Name        *string
	Description *string
	Latitude    *float64
	Longitude   *float64
	Street      *string
	City        *string
	State       *string
	PostalCode  *string
	Country     *string
}

// EventUpdate applies partial field changes.
type EventUpdate struct {
	Name        *string
	Description *string
	DayOfWeek   *int
	StartTime   *string
	EndTime     *string
	StartDate   *string
	IsPrivate   *bool
	Tags        []string
}
