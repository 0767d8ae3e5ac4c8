package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"orgmap.org/internal/directory"
	"orgmap.org/internal/moderation"
)

var _ moderation.RecordStore = (*Records)(nil)

// Records persists update-request rows. Proposed values and original
// identifiers are jsonb columns; everything a reviewer filters on lives in
// plain columns.
type Records struct {
	db *sql.DB
}

func (s *Store) Records() *Records { return &Records{db: s.db} }

func (r *Records) Append(ctx context.Context, rec *moderation.Record) error {
	meta, err := marshalOrNull(rec.Meta)
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	ao, err := marshalOrNull(rec.AO)
	if err != nil {
		return fmt.Errorf("encode ao: %w", err)
	}
	loc, err := marshalOrNull(rec.Location)
	if err != nil {
		return fmt.Errorf("encode location: %w", err)
	}
	ev, err := marshalOrNull(rec.Event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	err = r.db.QueryRowContext(ctx, `
		insert into update_requests
			(id, request_type, status, submitted_by, region_id, meta, ao, location, event)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		returning created_at, updated_at
	`, rec.ID, rec.Kind, rec.Status, rec.SubmittedBy, rec.RegionID, meta, ao, loc, ev,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return fmt.Errorf("%w: request %s already recorded", directory.ErrConflict, rec.ID)
	}
	return err
}

func (r *Records) Find(ctx context.Context, id string) (*moderation.Record, error) {
	row := r.db.QueryRowContext(ctx, `
		select id, request_type, status, submitted_by, region_id,
			meta, ao, location, event, created_at, updated_at
		from update_requests
		where id = $1
	`, id)
	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: request %s", directory.ErrNotFound, id)
	}
	return rec, err
}

func (r *Records) List(ctx context.Context, status moderation.Status, limit int) ([]*moderation.Record, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		select id, request_type, status, submitted_by, region_id,
			meta, ao, location, event, created_at, updated_at
		from update_requests
		where ($1 = '' or status = $1)
		order by id desc
		limit $2
	`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*moderation.Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Records) Transition(ctx context.Context, id string, from, to moderation.Status) error {
	res, err := r.db.ExecContext(ctx, `
		update update_requests
		set status = $3, updated_at = now()
		where id = $1 and status = $2
	`, id, from, to)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	// distinguish a missing row from a lost status race
	var current moderation.Status
	err = r.db.QueryRowContext(ctx,
		`select status from update_requests where id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: request %s", directory.ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: request %s is %s, not %s", directory.ErrConflict, id, current, from)
}

func scanRecord(scan func(dest ...any) error) (*moderation.Record, error) {
	var (
		rec               moderation.Record
		meta, ao, loc, ev []byte
	)
	if err := scan(&rec.ID, &rec.Kind, &rec.Status, &rec.SubmittedBy, &rec.RegionID,
		&meta, &ao, &loc, &ev, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &rec.Meta); err != nil {
			return nil, fmt.Errorf("decode meta: %w", err)
		}
	}
	if len(ao) > 0 {
		rec.AO = &moderation.AOPatch{}
		if err := json.Unmarshal(ao, rec.AO); err != nil {
			return nil, fmt.Errorf("decode ao: %w", err)
		}
	}
	if len(loc) > 0 {
		rec.Location = &moderation.LocationPatch{}
		if err := json.Unmarshal(loc, rec.Location); err != nil {
			return nil, fmt.Errorf("decode location: %w", err)
		}
	}
	if len(ev) > 0 {
		rec.Event = &moderation.EventPatch{}
		if err := json.Unmarshal(ev, rec.Event); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
	}
	return &rec, nil
}

// marshalOrNull returns nil for empty values so the column stores NULL instead
// of a zero-value document.
func marshalOrNull(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]string:
		if len(val) == 0 {
			return nil, nil
		}
	case *moderation.AOPatch:
		if val == nil {
			return nil, nil
		}
	case *moderation.LocationPatch:
		if val == nil {
			return nil, nil
		}
	case *moderation.EventPatch:
		if val == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
