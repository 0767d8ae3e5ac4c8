package moderation

import (
	"context"
	"fmt"

	"orgmap.org/internal/authz"
	"orgmap.org/internal/directory"
)

// Scope is the authorization footprint of a proposed change: the org nodes
// that must each pass the hierarchical editor check, the region used to file
// the record, and the original identifiers captured for the audit trail.
type Scope struct {
	RegionID   string
	Implicated []string
	Meta       map[string]string
}

// Gate translates a change into its Scope and decides whether a principal may
// apply it. It never mutates state; its result gates whether mutation happens
// at all.
type Gate struct {
	store      directory.Store
	authorizer *authz.Authorizer
}

func NewGate(store directory.Store, authorizer *authz.Authorizer) *Gate {
	return &Gate{store: store, authorizer: authorizer}
}

// Resolve loads the entities a change references and computes its Scope.
// Missing referenced entities surface as directory.ErrNotFound; a change
// whose scoping region cannot be determined is a caller error and surfaces
// as ErrValidation before any authorization runs.
func (g *Gate) Resolve(ctx context.Context, ch Change) (Scope, error) {
	switch c := ch.(type) {
	case CreateAO:
		region, err := g.store.GetOrg(ctx, c.RegionID)
		if err != nil {
			return Scope{}, err
		}
		if err := requireOrgType(region, directory.OrgTypeRegion); err != nil {
			return Scope{}, err
		}
		return Scope{
			RegionID:   region.ID,
			Implicated: []string{region.ID},
			Meta:       map[string]string{"region_id": region.ID},
		}, nil

	case CreateEvent:
		ao, err := g.store.GetOrg(ctx, c.AOID)
		if err != nil {
			return Scope{}, err
		}
		if _, err := g.store.GetLocation(ctx, c.LocationID); err != nil {
			return Scope{}, err
		}
		return g.aoScope(ao, map[string]string{
			"original_ao_id":       ao.ID,
			"original_location_id": c.LocationID,
		})

	case EditEvent:
		ev, err := g.store.GetEvent(ctx, c.EventID)
		if err != nil {
			return Scope{}, err
		}
		ao, err := g.store.GetOrg(ctx, ev.OrgID)
		if err != nil {
			return Scope{}, err
		}
		return g.aoScope(ao, map[string]string{
			"original_event_id":    ev.ID,
			"original_ao_id":       ev.OrgID,
			"original_location_id": ev.LocationID,
		})

	case EditAO:
		ao, err := g.store.GetOrg(ctx, c.AOID)
		if err != nil {
			return Scope{}, err
		}
		if _, err := g.store.GetLocation(ctx, c.LocationID); err != nil {
			return Scope{}, err
		}
		return g.aoScope(ao, map[string]string{
			"original_ao_id":       ao.ID,
			"original_location_id": c.LocationID,
		})

	case MoveAORegion:
		ao, err := g.store.GetOrg(ctx, c.AOID)
		if err != nil {
			return Scope{}, err
		}
		if err := requireOrgType(ao, directory.OrgTypeAO); err != nil {
			return Scope{}, err
		}
		if ao.ParentID == "" {
			return Scope{}, fmt.Errorf("%w: ao %s has no parent region", ErrValidation, ao.ID)
		}
		newRegion, err := g.store.GetOrg(ctx, c.NewRegionID)
		if err != nil {
			return Scope{}, err
		}
		if err := requireOrgType(newRegion, directory.OrgTypeRegion); err != nil {
			return Scope{}, err
		}
		// both sides of the move must authorize
		return Scope{
			RegionID:   newRegion.ID,
			Implicated: []string{ao.ParentID, newRegion.ID},
			Meta: map[string]string{
				"original_ao_id":     ao.ID,
				"original_region_id": ao.ParentID,
				"new_region_id":      newRegion.ID,
			},
		}, nil

	case MoveAOLocation:
		ao, err := g.store.GetOrg(ctx, c.AOID)
		if err != nil {
			return Scope{}, err
		}
		if _, err := g.store.GetLocation(ctx, c.NewLocationID); err != nil {
			return Scope{}, err
		}
		return g.aoScope(ao, map[string]string{
			"original_ao_id":  ao.ID,
			"new_location_id": c.NewLocationID,
		})

	case MoveAONewLocation:
		ao, err := g.store.GetOrg(ctx, c.AOID)
		if err != nil {
			return Scope{}, err
		}
		return g.aoScope(ao, map[string]string{"original_ao_id": ao.ID})

	case MoveEventAO:
		ev, err := g.store.GetEvent(ctx, c.EventID)
		if err != nil {
			return Scope{}, err
		}
		newAO, err := g.store.GetOrg(ctx, c.NewAOID)
		if err != nil {
			return Scope{}, err
		}
		if err := requireOrgType(newAO, directory.OrgTypeAO); err != nil {
			return Scope{}, err
		}
		if _, err := g.store.GetLocation(ctx, c.NewLocationID); err != nil {
			return Scope{}, err
		}
		if newAO.ParentID == "" {
			return Scope{}, fmt.Errorf("%w: ao %s has no parent region", ErrValidation, newAO.ID)
		}
		return Scope{
			RegionID:   newAO.ParentID,
			Implicated: []string{ev.OrgID, newAO.ID},
			Meta: map[string]string{
				"original_event_id":    ev.ID,
				"original_ao_id":       ev.OrgID,
				"original_location_id": ev.LocationID,
				"new_ao_id":            newAO.ID,
				"new_location_id":      c.NewLocationID,
			},
		}, nil

	case MoveEventNewLocation:
		ev, err := g.store.GetEvent(ctx, c.EventID)
		if err != nil {
			return Scope{}, err
		}
		ao, err := g.store.GetOrg(ctx, ev.OrgID)
		if err != nil {
			return Scope{}, err
		}
		return g.aoScope(ao, map[string]string{
			"original_event_id":    ev.ID,
			"original_ao_id":       ev.OrgID,
			"original_location_id": ev.LocationID,
		})

	case DeleteEvent:
		ev, err := g.store.GetEvent(ctx, c.EventID)
		if err != nil {
			return Scope{}, err
		}
		ao, err := g.store.GetOrg(ctx, ev.OrgID)
		if err != nil {
			return Scope{}, err
		}
		return g.aoScope(ao, map[string]string{
			"original_event_id":    ev.ID,
			"original_ao_id":       ev.OrgID,
			"original_location_id": ev.LocationID,
		})

	case DeleteAO:
		ao, err := g.store.GetOrg(ctx, c.AOID)
		if err != nil {
			return Scope{}, err
		}
		return g.aoScope(ao, map[string]string{
			"original_ao_id":     ao.ID,
			"original_region_id": ao.ParentID,
		})

	default:
		return Scope{}, fmt.Errorf("%w: %T", errUnknownKind, ch)
	}
}

// Decide reports whether the principal passes the editor check on every
// implicated node. Failing any single node fails the whole request; nothing
// is ever partially authorized.
func (g *Gate) Decide(ctx context.Context, p authz.Principal, scope Scope) (bool, error) {
	for _, orgID := range scope.Implicated {
		ok, err := g.authorizer.HasRoleOnOrgOrAncestor(ctx, p, orgID, directory.RoleEditor)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// aoScope builds the single-node scope for changes confined to one AO. The
// target must actually be an AO; higher-level nodes cannot be mutated through
// AO-named operations. The record is filed under the AO's parent region.
func (g *Gate) aoScope(ao directory.Org, meta map[string]string) (Scope, error) {
	if err := requireOrgType(ao, directory.OrgTypeAO); err != nil {
		return Scope{}, err
	}
	if ao.ParentID == "" {
		return Scope{}, fmt.Errorf("%w: org %s has no parent region", ErrValidation, ao.ID)
	}
	return Scope{RegionID: ao.ParentID, Implicated: []string{ao.ID}, Meta: meta}, nil
}

func requireOrgType(org directory.Org, want directory.OrgType) error {
	if org.OrgType != want {
		return fmt.Errorf("%w: org %s is a %s, not a %s", ErrValidation, org.ID, org.OrgType, want)
	}
	return nil
}
