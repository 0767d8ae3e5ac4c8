// Package moderation implements the update-request engine: a submitted change
// to the org tree is either applied immediately, when the submitter holds
// editor authority over every implicated node, or queued as a pending record
// for moderator review.
package moderation

import (
	"errors"
	"fmt"

	"orgmap.org/internal/directory"
)

// Kind names a change variant. Adding a variant requires handling it in the
// gate, the handlers, and the record builder; each dispatch fails loudly on
// an unknown kind.
type Kind string

const (
	KindCreateAO             Kind = "create_ao"
	KindCreateEvent          Kind = "create_event"
	KindEditEvent            Kind = "edit_event"
	KindEditAO               Kind = "edit_ao"
	KindMoveAORegion         Kind = "move_ao_region"
	KindMoveAOLocation       Kind = "move_ao_location"
	KindMoveAONewLocation    Kind = "move_ao_new_location"
	KindMoveEventAO          Kind = "move_event_ao"
	KindMoveEventNewLocation Kind = "move_event_new_location"
	KindDeleteEvent          Kind = "delete_event"
	KindDeleteAO             Kind = "delete_ao"
)

// Kinds lists every supported change variant.
var Kinds = []Kind{
	KindCreateAO, KindCreateEvent, KindEditEvent, KindEditAO,
	KindMoveAORegion, KindMoveAOLocation, KindMoveAONewLocation,
	KindMoveEventAO, KindMoveEventNewLocation,
	KindDeleteEvent, KindDeleteAO,
}

var (
	ErrValidation        = errors.New("moderation: invalid request")
	ErrInvalidTransition = errors.New("moderation: invalid status transition")
	errUnknownKind       = errors.New("moderation: unknown change kind")
)

// Change is the closed set of proposed mutations. Each variant carries its
// own payload; the concrete types below are the only implementations.
type Change interface {
	Kind() Kind
	Validate() error
}

// LocationFields are the full values for a location created by a change.
type LocationFields struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Street      string  `json:"street,omitempty"`
	City        string  `json:"city,omitempty"`
	State       string  `json:"state,omitempty"`
	PostalCode  string  `json:"postal_code,omitempty"`
	Country     string  `json:"country,omitempty"`
}

// EventFields are the full values for an event created by a change.
type EventFields struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	DayOfWeek   int      `json:"day_of_week"`
	StartTime   string   `json:"start_time"`
	EndTime     string   `json:"end_time,omitempty"`
	StartDate   string   `json:"start_date,omitempty"`
	IsPrivate   bool     `json:"is_private"`
	Tags        []string `json:"tags,omitempty"`
}

// AOFields are the full values for an AO org created by a change.
type AOFields struct {
	Name string `json:"name"`
}

// LocationPatch carries partial location edits; nil fields stay unchanged.
type LocationPatch struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Street      *string  `json:"street,omitempty"`
	City        *string  `json:"city,omitempty"`
	State       *string  `json:"state,omitempty"`
	PostalCode  *string  `json:"postal_code,omitempty"`
	Country     *string  `json:"country,omitempty"`
}

// EventPatch carries partial event edits; nil fields stay unchanged.
type EventPatch struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	DayOfWeek   *int     `json:"day_of_week,omitempty"`
	StartTime   *string  `json:"start_time,omitempty"`
	EndTime     *string  `json:"end_time,omitempty"`
	StartDate   *string  `json:"start_date,omitempty"`
	IsPrivate   *bool    `json:"is_private,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// AOPatch carries partial AO edits.
type AOPatch struct {
	Name *string `json:"name,omitempty"`
}

// CreateAO inserts a location, an AO referencing it, and an event referencing
// both, as one unit.
type CreateAO struct {
	RegionID string         `json:"region_id"`
	AO       AOFields       `json:"ao"`
	Location LocationFields `json:"location"`
	Event    EventFields    `json:"event"`
}

func (CreateAO) Kind() Kind { return KindCreateAO }

func (c CreateAO) Validate() error {
	if c.RegionID == "" {
		return fmt.Errorf("%w: region_id is required", ErrValidation)
	}
	if c.AO.Name == "" {
		return fmt.Errorf("%w: ao.name is required", ErrValidation)
	}
	if c.Location.Name == "" {
		return fmt.Errorf("%w: location.name is required", ErrValidation)
	}
	return validateEventFields(c.Event)
}

// CreateEvent inserts an event against an existing AO and location.
type CreateEvent struct {
	AOID       string      `json:"ao_id"`
	LocationID string      `json:"location_id"`
	Event      EventFields `json:"event"`
}

func (CreateEvent) Kind() Kind { return KindCreateEvent }

func (c CreateEvent) Validate() error {
	if c.AOID == "" || c.LocationID == "" {
		return fmt.Errorf("%w: ao_id and location_id are required", ErrValidation)
	}
	return validateEventFields(c.Event)
}

// EditEvent updates mutable event fields by id.
type EditEvent struct {
	EventID string     `json:"event_id"`
	Event   EventPatch `json:"event"`
}

func (EditEvent) Kind() Kind { return KindEditEvent }

func (c EditEvent) Validate() error {
	if c.EventID == "" {
		return fmt.Errorf("%w: event_id is required", ErrValidation)
	}
	if c.Event.DayOfWeek != nil && (*c.Event.DayOfWeek < 0 || *c.Event.DayOfWeek > 6) {
		return fmt.Errorf("%w: day_of_week must be 0..6", ErrValidation)
	}
	return nil
}

// EditAO updates AO and location fields in the same unit.
type EditAO struct {
	AOID       string        `json:"ao_id"`
	LocationID string        `json:"location_id"`
	AO         AOPatch       `json:"ao"`
	Location   LocationPatch `json:"location"`
}

func (EditAO) Kind() Kind { return KindEditAO }

func (c EditAO) Validate() error {
	if c.AOID == "" || c.LocationID == "" {
		return fmt.Errorf("%w: ao_id and location_id are required", ErrValidation)
	}
	return nil
}

// MoveAORegion reparents an AO under a different region.
type MoveAORegion struct {
	AOID        string `json:"ao_id"`
	NewRegionID string `json:"new_region_id"`
}

func (MoveAORegion) Kind() Kind { return KindMoveAORegion }

func (c MoveAORegion) Validate() error {
	if c.AOID == "" || c.NewRegionID == "" {
		return fmt.Errorf("%w: ao_id and new_region_id are required", ErrValidation)
	}
	return nil
}

// MoveAOLocation repoints every event under an AO to an existing location.
type MoveAOLocation struct {
	AOID          string `json:"ao_id"`
	NewLocationID string `json:"new_location_id"`
}

func (MoveAOLocation) Kind() Kind { return KindMoveAOLocation }

func (c MoveAOLocation) Validate() error {
	if c.AOID == "" || c.NewLocationID == "" {
		return fmt.Errorf("%w: ao_id and new_location_id are required", ErrValidation)
	}
	return nil
}

// MoveAONewLocation inserts a location and repoints every event under the AO
// to it.
type MoveAONewLocation struct {
	AOID     string         `json:"ao_id"`
	Location LocationFields `json:"location"`
}

func (MoveAONewLocation) Kind() Kind { return KindMoveAONewLocation }

func (c MoveAONewLocation) Validate() error {
	if c.AOID == "" {
		return fmt.Errorf("%w: ao_id is required", ErrValidation)
	}
	if c.Location.Name == "" {
		return fmt.Errorf("%w: location.name is required", ErrValidation)
	}
	return nil
}

// MoveEventAO repoints one event to a different AO/location pair.
type MoveEventAO struct {
	EventID       string `json:"event_id"`
	NewAOID       string `json:"new_ao_id"`
	NewLocationID string `json:"new_location_id"`
}

func (MoveEventAO) Kind() Kind { return KindMoveEventAO }

func (c MoveEventAO) Validate() error {
	if c.EventID == "" || c.NewAOID == "" || c.NewLocationID == "" {
		return fmt.Errorf("%w: event_id, new_ao_id and new_location_id are required", ErrValidation)
	}
	return nil
}

// MoveEventNewLocation inserts a location and repoints one event to it.
type MoveEventNewLocation struct {
	EventID  string         `json:"event_id"`
	Location LocationFields `json:"location"`
}

func (MoveEventNewLocation) Kind() Kind { return KindMoveEventNewLocation }

func (c MoveEventNewLocation) Validate() error {
	if c.EventID == "" {
		return fmt.Errorf("%w: event_id is required", ErrValidation)
	}
	if c.Location.Name == "" {
		return fmt.Errorf("%w: location.name is required", ErrValidation)
	}
	return nil
}

// DeleteEvent soft-deletes a single event.
type DeleteEvent struct {
	EventID string `json:"event_id"`
}

func (DeleteEvent) Kind() Kind { return KindDeleteEvent }

func (c DeleteEvent) Validate() error {
	if c.EventID == "" {
		return fmt.Errorf("%w: event_id is required", ErrValidation)
	}
	return nil
}

// DeleteAO soft-deletes the AO org and cascades over its events.
type DeleteAO struct {
	AOID string `json:"ao_id"`
}

func (DeleteAO) Kind() Kind { return KindDeleteAO }

func (c DeleteAO) Validate() error {
	if c.AOID == "" {
		return fmt.Errorf("%w: ao_id is required", ErrValidation)
	}
	return nil
}

func validateEventFields(f EventFields) error {
	if f.Name == "" {
		return fmt.Errorf("%w: event.name is required", ErrValidation)
	}
	if f.DayOfWeek < 0 || f.DayOfWeek > 6 {
		return fmt.Errorf("%w: day_of_week must be 0..6", ErrValidation)
	}
	if f.StartTime == "" {
		return fmt.Errorf("%w: event.start_time is required", ErrValidation)
	}
	return nil
}

// toLocation materializes full location values owned by orgID.
func (f LocationFields) toLocation(orgID string) directory.Location {
	return directory.Location{
		OrgID:       orgID,
		Name:        f.Name,
		Description: f.Description,
		Latitude:    f.Latitude,
		Longitude:   f.Longitude,
		Street:      f.Street,
		City:        f.City,
		State:       f.State,
		PostalCode:  f.PostalCode,
		Country:     f.Country,
		IsActive:    true,
	}
}

// toEvent materializes full event values under the given AO and location.
func (f EventFields) toEvent(orgID, locationID string) directory.Event {
	return directory.Event{
		OrgID:       orgID,
		LocationID:  locationID,
		Name:        f.Name,
		Description: f.Description,
		DayOfWeek:   f.DayOfWeek,
		StartTime:   f.StartTime,
		EndTime:     f.EndTime,
		StartDate:   f.StartDate,
		IsActive:    true,
		IsPrivate:   f.IsPrivate,
		Tags:        append([]string(nil), f.Tags...),
	}
}

func (p EventPatch) toUpdate() directory.EventUpdate {
	return directory.EventUpdate{
		Name:        p.Name,
		Description: p.Description,
		DayOfWeek:   p.DayOfWeek,
		StartTime:   p.StartTime,
		EndTime:     p.EndTime,
		StartDate:   p.StartDate,
		IsPrivate:   p.IsPrivate,
		Tags:        p.Tags,
	}
}

func (p LocationPatch) toUpdate() directory.LocationUpdate {
	return directory.LocationUpdate{
		Name:        p.Name,
		Description: p.Description,
		Latitude:    p.Latitude,
		Longitude:   p.Longitude,
		Street:      p.Street,
		City:        p.City,
		State:       p.State,
		PostalCode:  p.PostalCode,
		Country:     p.Country,
	}
}

func (f LocationFields) patch() *LocationPatch {
	return &LocationPatch{
		Name:        &f.Name,
		Description: &f.Description,
		Latitude:    &f.Latitude,
		Longitude:   &f.Longitude,
		Street:      &f.Street,
		City:        &f.City,
		State:       &f.State,
		PostalCode:  &f.PostalCode,
		Country:     &f.Country,
	}
}

func (f EventFields) patch() *EventPatch {
	return &EventPatch{
		Name:        &f.Name,
		Description: &f.Description,
		DayOfWeek:   &f.DayOfWeek,
		StartTime:   &f.StartTime,
		EndTime:     &f.EndTime,
		StartDate:   &f.StartDate,
		IsPrivate:   &f.IsPrivate,
		Tags:        append([]string(nil), f.Tags...),
	}
}
