package directory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"orgmap.org/internal/ids"
)

// InMemory implements Store with in-process concurrency safety. Transactions
// run against a deep copy of the data set; the copy replaces the live set
// only when the whole function succeeds, which gives handler code the same
// all-or-nothing behavior the SQL store provides.
type InMemory struct {
	mu   sync.RWMutex
	data *dataset
}

type dataset struct {
	orgs        map[string]*Org
	locations   map[string]*Location
	events      map[string]*Event
	assignments []RoleAssignment
}

// NewInMemory creates an empty directory store.
func NewInMemory() *InMemory {
	return &InMemory{data: &dataset{
		orgs:      make(map[string]*Org),
		locations: make(map[string]*Location),
		events:    make(map[string]*Event),
	}}
}

func (s *InMemory) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	staged := s.data.clone()
	if err := fn(&memTx{data: staged}); err != nil {
		return err
	}
	s.data = staged
	return nil
}

func (s *InMemory) GetOrg(ctx context.Context, id string) (Org, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.getOrg(id)
}

func (s *InMemory) GetLocation(ctx context.Context, id string) (Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.getLocation(id)
}

func (s *InMemory) GetEvent(ctx context.Context, id string) (Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.getEvent(id)
}

func (s *InMemory) AncestorChain(ctx context.Context, orgID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var chain []string
	current := orgID
	for hop := 0; hop <= MaxAncestorHops; hop++ {
		org, ok := s.data.orgs[current]
		if !ok {
			break
		}
		chain = append(chain, org.ID)
		if org.ParentID == "" {
			break
		}
		current = org.ParentID
	}
	return chain, nil
}

func (s *InMemory) Descendants(ctx context.Context, orgIDs []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{}, len(orgIDs))
	frontier := make([]string, 0, len(orgIDs))
	for _, id := range orgIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		frontier = append(frontier, id)
	}
	for level := 0; level < MaxAncestorHops && len(frontier) > 0; level++ {
		parents := make(map[string]struct{}, len(frontier))
		for _, id := range frontier {
			parents[id] = struct{}{}
		}
		var next []string
		for _, org := range s.data.orgs {
			if _, ok := parents[org.ParentID]; !ok {
				continue
			}
			if _, ok := seen[org.ID]; ok {
				continue
			}
			seen[org.ID] = struct{}{}
			next = append(next, org.ID)
		}
		frontier = next
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out, nil
}

func (s *InMemory) AssignmentsFor(ctx context.Context, principalID string) ([]RoleAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []RoleAssignment
	for _, a := range s.data.assignments {
		if a.PrincipalID == principalID {
			out = append(out, a)
		}
	}
	return out, nil
}

// Grant records a role assignment. Test/seed helper; production grants go
// through admin CRUD outside this engine.
func (s *InMemory) Grant(principalID, orgID string, role Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.assignments = append(s.data.assignments, RoleAssignment{
		PrincipalID: principalID,
		OrgID:       orgID,
		Role:        role,
		CreatedAt:   time.Now().UTC(),
	})
}

// Seed inserts rows directly, bypassing the transactional surface.
func (s *InMemory) Seed(orgs []Org, locs []Location, evs []Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range orgs {
		o := orgs[i]
		s.data.orgs[o.ID] = &o
	}
	for i := range locs {
		l := locs[i]
		s.data.locations[l.ID] = &l
	}
	for i := range evs {
		e := evs[i]
		s.data.events[e.ID] = &e
	}
}

// --- transactional view ---

type memTx struct {
	data *dataset
}

func (t *memTx) InsertOrg(ctx context.Context, org *Org) error {
	if org.ID == "" {
		org.ID = ids.New()
	}
	if _, exists := t.data.orgs[org.ID]; exists {
		return fmt.Errorf("%w: org %s already exists", ErrConflict, org.ID)
	}
	if !org.OrgType.Valid() {
		return fmt.Errorf("%w: unknown org type %q", ErrValidation, org.OrgType)
	}
	if org.ParentID != "" {
		if _, ok := t.data.orgs[org.ParentID]; !ok {
			return fmt.Errorf("%w: parent org %s", ErrNotFound, org.ParentID)
		}
	}
	now := time.Now().UTC()
	org.CreatedAt, org.UpdatedAt = now, now
	cp := *org
	t.data.orgs[org.ID] = &cp
	return nil
}

func (t *memTx) UpdateOrg(ctx context.Context, id string, upd OrgUpdate) error {
	org, ok := t.data.orgs[id]
	if !ok {
		return fmt.Errorf("%w: org %s", ErrNotFound, id)
	}
	if upd.Name != nil {
		org.Name = *upd.Name
	}
	if upd.IsActive != nil {
		org.IsActive = *upd.IsActive
	}
	org.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *memTx) ReparentOrg(ctx context.Context, id, expectedParentID, newParentID string) error {
	org, ok := t.data.orgs[id]
	if !ok {
		return fmt.Errorf("%w: org %s", ErrNotFound, id)
	}
	if org.ParentID != expectedParentID {
		return fmt.Errorf("%w: org %s parent changed concurrently", ErrConflict, id)
	}
	if _, ok := t.data.orgs[newParentID]; !ok {
		return fmt.Errorf("%w: parent org %s", ErrNotFound, newParentID)
	}
	org.ParentID = newParentID
	org.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *memTx) DeactivateOrg(ctx context.Context, id string) error {
	org, ok := t.data.orgs[id]
	if !ok {
		return fmt.Errorf("%w: org %s", ErrNotFound, id)
	}
	org.IsActive = false
	org.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *memTx) InsertLocation(ctx context.Context, loc *Location) error {
	if loc.ID == "" {
		loc.ID = ids.New()
	}
	if _, exists := t.data.locations[loc.ID]; exists {
		return fmt.Errorf("%w: location %s already exists", ErrConflict, loc.ID)
	}
	now := time.Now().UTC()
	loc.CreatedAt, loc.UpdatedAt = now, now
	cp := *loc
	t.data.locations[loc.ID] = &cp
	return nil
}

func (t *memTx) UpdateLocation(ctx context.Context, id string, upd LocationUpdate) error {
	loc, ok := t.data.locations[id]
	if !ok {
		return fmt.Errorf("%w: location %s", ErrNotFound, id)
	}
	if upd.Name != nil {
		loc.Name = *upd.Name
	}
	if upd.Description != nil {
		loc.Description = *upd.Description
	}
	if upd.Latitude != nil {
		loc.Latitude = *upd.Latitude
	}
	if upd.Longitude != nil {
		loc.Longitude = *upd.Longitude
	}
	if upd.Street != nil {
		loc.Street = *upd.Street
	}
	if upd.City != nil {
		loc.City = *upd.City
	}
	if upd.State != nil {
		loc.State = *upd.State
	}
	if upd.PostalCode != nil {
		loc.PostalCode = *upd.PostalCode
	}
	if upd.Country != nil {
		loc.Country = *upd.Country
	}
	loc.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *memTx) InsertEvent(ctx context.Context, ev *Event) error {
	if ev.ID == "" {
		ev.ID = ids.New()
	}
	if _, exists := t.data.events[ev.ID]; exists {
		return fmt.Errorf("%w: event %s already exists", ErrConflict, ev.ID)
	}
	if _, ok := t.data.locations[ev.LocationID]; !ok {
		return fmt.Errorf("%w: location %s", ErrNotFound, ev.LocationID)
	}
	org, ok := t.data.orgs[ev.OrgID]
	if !ok {
		return fmt.Errorf("%w: org %s", ErrNotFound, ev.OrgID)
	}
	if org.OrgType != OrgTypeAO {
		return fmt.Errorf("%w: events attach to AO orgs, got %s", ErrValidation, org.OrgType)
	}
	now := time.Now().UTC()
	ev.CreatedAt, ev.UpdatedAt = now, now
	cp := *ev
	cp.Tags = append([]string(nil), ev.Tags...)
	t.data.events[ev.ID] = &cp
	return nil
}

func (t *memTx) UpdateEvent(ctx context.Context, id string, upd EventUpdate) error {
	ev, ok := t.data.events[id]
	if !ok {
		return fmt.Errorf("%w: event %s", ErrNotFound, id)
	}
	if upd.Name != nil {
		ev.Name = *upd.Name
	}
	if upd.Description != nil {
		ev.Description = *upd.Description
	}
	if upd.DayOfWeek != nil {
		ev.DayOfWeek = *upd.DayOfWeek
	}
	if upd.StartTime != nil {
		ev.StartTime = *upd.StartTime
	}
	if upd.EndTime != nil {
		ev.EndTime = *upd.EndTime
	}
	if upd.StartDate != nil {
		ev.StartDate = *upd.StartDate
	}
	if upd.IsPrivate != nil {
		ev.IsPrivate = *upd.IsPrivate
	}
	if upd.Tags != nil {
		ev.Tags = append([]string(nil), upd.Tags...)
	}
	ev.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *memTx) RepointEvents(ctx context.Context, orgID, locationID string) error {
	if _, ok := t.data.locations[locationID]; !ok {
		return fmt.Errorf("%w: location %s", ErrNotFound, locationID)
	}
	now := time.Now().UTC()
	for _, ev := range t.data.events {
		if ev.OrgID == orgID {
			ev.LocationID = locationID
			ev.UpdatedAt = now
		}
	}
	return nil
}

func (t *memTx) RepointEvent(ctx context.Context, eventID, orgID, locationID string) error {
	ev, ok := t.data.events[eventID]
	if !ok {
		return fmt.Errorf("%w: event %s", ErrNotFound, eventID)
	}
	org, ok := t.data.orgs[orgID]
	if !ok {
		return fmt.Errorf("%w: org %s", ErrNotFound, orgID)
	}
	if org.OrgType != OrgTypeAO {
		return fmt.Errorf("%w: events attach to AO orgs, got %s", ErrValidation, org.OrgType)
	}
	if _, ok := t.data.locations[locationID]; !ok {
		return fmt.Errorf("%w: location %s", ErrNotFound, locationID)
	}
	ev.OrgID = orgID
	ev.LocationID = locationID
	ev.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *memTx) DeactivateEvent(ctx context.Context, id string) error {
	ev, ok := t.data.events[id]
	if !ok {
		return fmt.Errorf("%w: event %s", ErrNotFound, id)
	}
	ev.IsActive = false
	ev.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *memTx) DeactivateEventsByOrg(ctx context.Context, orgID string) error {
	now := time.Now().UTC()
	for _, ev := range t.data.events {
		if ev.OrgID == orgID {
			ev.IsActive = false
			ev.UpdatedAt = now
		}
	}
	return nil
}

func (t *memTx) GetOrg(ctx context.Context, id string) (Org, error) {
	return t.data.getOrg(id)
}

func (t *memTx) GetLocation(ctx context.Context, id string) (Location, error) {
	return t.data.getLocation(id)
}

func (t *memTx) GetEvent(ctx context.Context, id string) (Event, error) {
	return t.data.getEvent(id)
}

// --- dataset helpers ---

func (d *dataset) clone() *dataset {
	cp := &dataset{
		orgs:        make(map[string]*Org, len(d.orgs)),
		locations:   make(map[string]*Location, len(d.locations)),
		events:      make(map[string]*Event, len(d.events)),
		assignments: append([]RoleAssignment(nil), d.assignments...),
	}
	for id, o := range d.orgs {
		v := *o
		cp.orgs[id] = &v
	}
	for id, l := range d.locations {
		v := *l
		cp.locations[id] = &v
	}
	for id, e := range d.events {
		v := *e
		v.Tags = append([]string(nil), e.Tags...)
		cp.events[id] = &v
	}
	return cp
}

func (d *dataset) getOrg(id string) (Org, error) {
	o, ok := d.orgs[id]
	if !ok {
		return Org{}, fmt.Errorf("%w: org %s", ErrNotFound, id)
	}
	return *o, nil
}

func (d *dataset) getLocation(id string) (Location, error) {
	l, ok := d.locations[id]
	if !ok {
		return Location{}, fmt.Errorf("%w: location %s", ErrNotFound, id)
	}
	return *l, nil
}

func (d *dataset) getEvent(id string) (Event, error) {
	e, ok := d.events[id]
	if !ok {
		return Event{}, fmt.Errorf("%w: event %s", ErrNotFound, id)
	}
	cp := *e
	cp.Tags = append([]string(nil), e.Tags...)
	return cp, nil
}
