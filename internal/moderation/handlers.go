package moderation

import (
	"context"
	"fmt"

	"orgmap.org/internal/directory"
)

// Handlers applies approved changes. Every variant runs inside a single
// transaction: either the whole multi-entity mutation lands, or nothing does.
// Generated ids flow forward in-tx (location → AO → event); handlers never
// re-query by a non-unique field to find a row they just created.
type Handlers struct {
	store directory.Store
}

func NewHandlers(store directory.Store) *Handlers {
	return &Handlers{store: store}
}

// Apply dispatches to the variant's handler. The scope is the one the gate
// decided on; handlers that guard against concurrent edits use its captured
// originals, never a value re-read after the decision. Errors indicate the
// transaction rolled back and the change must not be recorded as approved.
func (h *Handlers) Apply(ctx context.Context, ch Change, scope Scope) error {
	switch c := ch.(type) {
	case CreateAO:
		return h.createAO(ctx, c)
	case CreateEvent:
		return h.createEvent(ctx, c)
	case EditEvent:
		return h.editEvent(ctx, c)
	case EditAO:
		return h.editAO(ctx, c)
	case MoveAORegion:
		return h.moveAORegion(ctx, c, scope)
	case MoveAOLocation:
		return h.moveAOLocation(ctx, c)
	case MoveAONewLocation:
		return h.moveAONewLocation(ctx, c)
	case MoveEventAO:
		return h.moveEventAO(ctx, c)
	case MoveEventNewLocation:
		return h.moveEventNewLocation(ctx, c)
	case DeleteEvent:
		return h.deleteEvent(ctx, c)
	case DeleteAO:
		return h.deleteAO(ctx, c)
	default:
		return fmt.Errorf("%w: %T", errUnknownKind, ch)
	}
}

func (h *Handlers) createAO(ctx context.Context, c CreateAO) error {
	return h.store.WithinTx(ctx, func(tx directory.Tx) error {
		loc := c.Location.toLocation(c.RegionID)
		if err := tx.InsertLocation(ctx, &loc); err != nil {
			return err
		}
		ao := directory.Org{
			ParentID: c.RegionID,
			OrgType:  directory.OrgTypeAO,
			Name:     c.AO.Name,
			IsActive: true,
		}
		if err := tx.InsertOrg(ctx, &ao); err != nil {
			return err
		}
		ev := c.Event.toEvent(ao.ID, loc.ID)
		return tx.InsertEvent(ctx, &ev)
	})
}

func (h *Handlers) createEvent(ctx context.Context, c CreateEvent) error {
	return h.store.WithinTx(ctx, func(tx directory.Tx) error {
		ev := c.Event.toEvent(c.AOID, c.LocationID)
		return tx.InsertEvent(ctx, &ev)
	})
}

func (h *Handlers) editEvent(ctx context.Context, c EditEvent) error {
	return h.store.WithinTx(ctx, func(tx directory.Tx) error {
		return tx.UpdateEvent(ctx, c.EventID, c.Event.toUpdate())
	})
}

func (h *Handlers) editAO(ctx context.Context, c EditAO) error {
	return h.store.WithinTx(ctx, func(tx directory.Tx) error {
		if err := tx.UpdateOrg(ctx, c.AOID, directory.OrgUpdate{Name: c.AO.Name}); err != nil {
			return err
		}
		return tx.UpdateLocation(ctx, c.LocationID, c.Location.toUpdate())
	})
}

// moveAORegion reparents against the parent the gate authorized. If the AO
// moved between the decision and this transaction, the authorization no
// longer covers the actual source region and ReparentOrg reports ErrConflict.
func (h *Handlers) moveAORegion(ctx context.Context, c MoveAORegion, scope Scope) error {
	expectedParent := scope.Meta["original_region_id"]
	if expectedParent == "" {
		return fmt.Errorf("%w: move has no captured source region", ErrValidation)
	}
	return h.store.WithinTx(ctx, func(tx directory.Tx) error {
		return tx.ReparentOrg(ctx, c.AOID, expectedParent, c.NewRegionID)
	})
}

func (h *Handlers) moveAOLocation(ctx context.Context, c MoveAOLocation) error {
	return h.store.WithinTx(ctx, func(tx directory.Tx) error {
		if _, err := tx.GetLocation(ctx, c.NewLocationID); err != nil {
			return err
		}
		return tx.RepointEvents(ctx, c.AOID, c.NewLocationID)
	})
}

func (h *Handlers) moveAONewLocation(ctx context.Context, c MoveAONewLocation) error {
	return h.store.WithinTx(ctx, func(tx directory.Tx) error {
		ao, err := tx.GetOrg(ctx, c.AOID)
		if err != nil {
			return err
		}
		loc := c.Location.toLocation(ao.ParentID)
		if err := tx.InsertLocation(ctx, &loc); err != nil {
			return err
		}
		return tx.RepointEvents(ctx, c.AOID, loc.ID)
	})
}

func (h *Handlers) moveEventAO(ctx context.Context, c MoveEventAO) error {
	return h.store.WithinTx(ctx, func(tx directory.Tx) error {
		return tx.RepointEvent(ctx, c.EventID, c.NewAOID, c.NewLocationID)
	})
}

func (h *Handlers) moveEventNewLocation(ctx context.Context, c MoveEventNewLocation) error {
	return h.store.WithinTx(ctx, func(tx directory.Tx) error {
		ev, err := tx.GetEvent(ctx, c.EventID)
		if err != nil {
			return err
		}
		ao, err := tx.GetOrg(ctx, ev.OrgID)
		if err != nil {
			return err
		}
		loc := c.Location.toLocation(ao.ParentID)
		if err := tx.InsertLocation(ctx, &loc); err != nil {
			return err
		}
		return tx.RepointEvent(ctx, c.EventID, ev.OrgID, loc.ID)
	})
}

func (h *Handlers) deleteEvent(ctx context.Context, c DeleteEvent) error {
	return h.store.WithinTx(ctx, func(tx directory.Tx) error {
		return tx.DeactivateEvent(ctx, c.EventID)
	})
}

// deleteAO cascades inside one transaction snapshot. An event insert that
// commits after this snapshot may leave an active event under the inactive
// AO; that race is accepted.
func (h *Handlers) deleteAO(ctx context.Context, c DeleteAO) error {
	return h.store.WithinTx(ctx, func(tx directory.Tx) error {
		if err := tx.DeactivateOrg(ctx, c.AOID); err != nil {
			return err
		}
		return tx.DeactivateEventsByOrg(ctx, c.AOID)
	})
}
