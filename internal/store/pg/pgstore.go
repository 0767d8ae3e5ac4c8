// Package pg implements the directory and update-request stores on PostgreSQL
// through database/sql with the pgx driver.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"orgmap.org/internal/directory"
	"orgmap.org/internal/ids"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

type Store struct {
	db *sql.DB
}

var _ directory.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection, used by sqlmock tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) WithinTx(ctx context.Context, fn func(tx directory.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&sqlTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetOrg(ctx context.Context, id string) (directory.Org, error) {
	return getOrg(ctx, s.db, id)
}

func (s *Store) GetLocation(ctx context.Context, id string) (directory.Location, error) {
	return getLocation(ctx, s.db, id)
}

func (s *Store) GetEvent(ctx context.Context, id string) (directory.Event, error) {
	return getEvent(ctx, s.db, id)
}

// AncestorChain walks parent links in a single fixed-width self-join; the
// chain length is capped by the schema, so no recursion is needed.
func (s *Store) AncestorChain(ctx context.Context, orgID string) ([]string, error) {
	var hops [directory.MaxAncestorHops + 1]sql.NullString
	err := s.db.QueryRowContext(ctx, `
		select o0.id, o1.id, o2.id, o3.id, o4.id
		from orgs o0
		left join orgs o1 on o1.id = o0.parent_id
		left join orgs o2 on o2.id = o1.parent_id
		left join orgs o3 on o3.id = o2.parent_id
		left join orgs o4 on o4.id = o3.parent_id
		where o0.id = $1
	`, orgID).Scan(&hops[0], &hops[1], &hops[2], &hops[3], &hops[4])
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var chain []string
	for _, h := range hops {
		if !h.Valid {
			break
		}
		chain = append(chain, h.String)
	}
	return chain, nil
}

// Descendants expands the given roots downward with a depth-bounded recursive
// query and returns the union including the roots.
func (s *Store) Descendants(ctx context.Context, orgIDs []string) ([]string, error) {
	if len(orgIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		with recursive sub(id, depth) as (
			select id, 0 from orgs where id = any(string_to_array($1, ','))
			union
			select o.id, s.depth + 1
			from orgs o
			join sub s on o.parent_id = s.id
			where s.depth < $2
		)
		select id from sub
	`, strings.Join(orgIDs, ","), directory.MaxAncestorHops)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) AssignmentsFor(ctx context.Context, principalID string) ([]directory.RoleAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		select principal_id, org_id, role, created_at
		from role_assignments
		where principal_id = $1
	`, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []directory.RoleAssignment
	for rows.Next() {
		var a directory.RoleAssignment
		if err := rows.Scan(&a.PrincipalID, &a.OrgID, &a.Role, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// FindUserByEmail resolves a login principal.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (directory.User, error) {
	var u directory.User
	err := s.db.QueryRowContext(ctx, `
		select id, email, password_hash, status, created_at, updated_at
		from users
		where lower(email) = lower($1)
	`, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.User{}, fmt.Errorf("%w: user %s", directory.ErrNotFound, email)
	}
	if err != nil {
		return directory.User{}, err
	}
	return u, nil
}

// --- transactional surface ---

type sqlTx struct {
	tx *sql.Tx
}

var _ directory.Tx = (*sqlTx)(nil)

func (t *sqlTx) InsertOrg(ctx context.Context, org *directory.Org) error {
	if !org.OrgType.Valid() {
		return fmt.Errorf("%w: unknown org type %q", directory.ErrValidation, org.OrgType)
	}
	if org.ID == "" {
		org.ID = ids.New()
	}
	err := t.tx.QueryRowContext(ctx, `
		insert into orgs (id, parent_id, org_type, name, is_active)
		values ($1, nullif($2,''), $3, $4, $5)
		returning created_at, updated_at
	`, org.ID, org.ParentID, org.OrgType, org.Name, org.IsActive).Scan(&org.CreatedAt, &org.UpdatedAt)
	return mapWriteErr(err, "org", org.ParentID)
}

func (t *sqlTx) UpdateOrg(ctx context.Context, id string, upd directory.OrgUpdate) error {
	res, err := t.tx.ExecContext(ctx, `
		update orgs
		set name = coalesce($2, name),
		    is_active = coalesce($3, is_active),
		    updated_at = now()
		where id = $1
	`, id, upd.Name, upd.IsActive)
	if err != nil {
		return err
	}
	return requireRow(res, "org", id)
}

func (t *sqlTx) ReparentOrg(ctx context.Context, id, expectedParentID, newParentID string) error {
	var current sql.NullString
	err := t.tx.QueryRowContext(ctx,
		`select parent_id from orgs where id = $1 for update`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: org %s", directory.ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	if current.String != expectedParentID {
		return fmt.Errorf("%w: org %s parent changed concurrently", directory.ErrConflict, id)
	}
	_, err = t.tx.ExecContext(ctx,
		`update orgs set parent_id = $2, updated_at = now() where id = $1`, id, newParentID)
	return mapWriteErr(err, "org", newParentID)
}

func (t *sqlTx) DeactivateOrg(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx,
		`update orgs set is_active = false, updated_at = now() where id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res, "org", id)
}

func (t *sqlTx) InsertLocation(ctx context.Context, loc *directory.Location) error {
	if loc.ID == "" {
		loc.ID = ids.New()
	}
	err := t.tx.QueryRowContext(ctx, `
		insert into locations (id, org_id, name, description, latitude, longitude,
			street, city, state, postal_code, country, is_active)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		returning created_at, updated_at
	`, loc.ID, loc.OrgID, loc.Name, loc.Description, loc.Latitude, loc.Longitude,
		loc.Street, loc.City, loc.State, loc.PostalCode, loc.Country, loc.IsActive,
	).Scan(&loc.CreatedAt, &loc.UpdatedAt)
	return mapWriteErr(err, "location", loc.OrgID)
}

func (t *sqlTx) UpdateLocation(ctx context.Context, id string, upd directory.LocationUpdate) error {
	res, err := t.tx.ExecContext(ctx, `
		update locations
		set name = coalesce($2, name),
		    description = coalesce($3, description),
		    latitude = coalesce($4, latitude),
		    longitude = coalesce($5, longitude),
		    street = coalesce($6, street),
		    city = coalesce($7, city),
		    state = coalesce($8, state),
		    postal_code = coalesce($9, postal_code),
		    country = coalesce($10, country),
		    updated_at = now()
		where id = $1
	`, id, upd.Name, upd.Description, upd.Latitude, upd.Longitude,
		upd.Street, upd.City, upd.State, upd.PostalCode, upd.Country)
	if err != nil {
		return err
	}
	return requireRow(res, "location", id)
}

func (t *sqlTx) InsertEvent(ctx context.Context, ev *directory.Event) error {
	var orgType directory.OrgType
	err := t.tx.QueryRowContext(ctx,
		`select org_type from orgs where id = $1`, ev.OrgID).Scan(&orgType)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: org %s", directory.ErrNotFound, ev.OrgID)
	}
	if err != nil {
		return err
	}
	if orgType != directory.OrgTypeAO {
		return fmt.Errorf("%w: events attach to AO orgs, got %s", directory.ErrValidation, orgType)
	}

	if ev.ID == "" {
		ev.ID = ids.New()
	}
	err = t.tx.QueryRowContext(ctx, `
		insert into events (id, org_id, location_id, name, description, day_of_week,
			start_time, end_time, start_date, is_active, is_private)
		values ($1,$2,$3,$4,$5,$6,$7,nullif($8,''),nullif($9,'')::date,$10,$11)
		returning created_at, updated_at
	`, ev.ID, ev.OrgID, ev.LocationID, ev.Name, ev.Description, ev.DayOfWeek,
		ev.StartTime, ev.EndTime, ev.StartDate, ev.IsActive, ev.IsPrivate,
	).Scan(&ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		return mapWriteErr(err, "event", ev.LocationID)
	}
	return t.replaceTags(ctx, ev.ID, ev.Tags)
}

func (t *sqlTx) UpdateEvent(ctx context.Context, id string, upd directory.EventUpdate) error {
	res, err := t.tx.ExecContext(ctx, `
		update events
		set name = coalesce($2, name),
		    description = coalesce($3, description),
		    day_of_week = coalesce($4, day_of_week),
		    start_time = coalesce($5, start_time),
		    end_time = coalesce($6, end_time),
		    start_date = coalesce($7::date, start_date),
		    is_private = coalesce($8, is_private),
		    updated_at = now()
		where id = $1
	`, id, upd.Name, upd.Description, upd.DayOfWeek, upd.StartTime,
		upd.EndTime, upd.StartDate, upd.IsPrivate)
	if err != nil {
		return err
	}
	if err := requireRow(res, "event", id); err != nil {
		return err
	}
	if upd.Tags != nil {
		return t.replaceTags(ctx, id, upd.Tags)
	}
	return nil
}

func (t *sqlTx) RepointEvents(ctx context.Context, orgID, locationID string) error {
	_, err := t.tx.ExecContext(ctx, `
		update events set location_id = $2, updated_at = now() where org_id = $1
	`, orgID, locationID)
	return mapWriteErr(err, "event", locationID)
}

func (t *sqlTx) RepointEvent(ctx context.Context, eventID, orgID, locationID string) error {
	var orgType directory.OrgType
	err := t.tx.QueryRowContext(ctx,
		`select org_type from orgs where id = $1`, orgID).Scan(&orgType)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: org %s", directory.ErrNotFound, orgID)
	}
	if err != nil {
		return err
	}
	if orgType != directory.OrgTypeAO {
		return fmt.Errorf("%w: events attach to AO orgs, got %s", directory.ErrValidation, orgType)
	}

	res, err := t.tx.ExecContext(ctx, `
		update events set org_id = $2, location_id = $3, updated_at = now() where id = $1
	`, eventID, orgID, locationID)
	if err != nil {
		return mapWriteErr(err, "event", locationID)
	}
	return requireRow(res, "event", eventID)
}

func (t *sqlTx) DeactivateEvent(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx,
		`update events set is_active = false, updated_at = now() where id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res, "event", id)
}

func (t *sqlTx) DeactivateEventsByOrg(ctx context.Context, orgID string) error {
	_, err := t.tx.ExecContext(ctx,
		`update events set is_active = false, updated_at = now() where org_id = $1`, orgID)
	return err
}

func (t *sqlTx) GetOrg(ctx context.Context, id string) (directory.Org, error) {
	return getOrg(ctx, t.tx, id)
}

func (t *sqlTx) GetLocation(ctx context.Context, id string) (directory.Location, error) {
	return getLocation(ctx, t.tx, id)
}

func (t *sqlTx) GetEvent(ctx context.Context, id string) (directory.Event, error) {
	return getEvent(ctx, t.tx, id)
}

func (t *sqlTx) replaceTags(ctx context.Context, eventID string, tags []string) error {
	if _, err := t.tx.ExecContext(ctx,
		`delete from event_tags where event_id = $1`, eventID); err != nil {
		return err
	}
	for _, tag := range tags {
		if _, err := t.tx.ExecContext(ctx,
			`insert into event_tags (event_id, tag) values ($1, $2) on conflict do nothing`,
			eventID, tag); err != nil {
			return err
		}
	}
	return nil
}

// --- shared readers ---

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func getOrg(ctx context.Context, q querier, id string) (directory.Org, error) {
	var (
		org    directory.Org
		parent sql.NullString
	)
	err := q.QueryRowContext(ctx, `
		select id, parent_id, org_type, name, is_active, created_at, updated_at
		from orgs
		where id = $1
	`, id).Scan(&org.ID, &parent, &org.OrgType, &org.Name, &org.IsActive, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.Org{}, fmt.Errorf("%w: org %s", directory.ErrNotFound, id)
	}
	if err != nil {
		return directory.Org{}, err
	}
	org.ParentID = parent.String
	return org, nil
}

func getLocation(ctx context.Context, q querier, id string) (directory.Location, error) {
	var loc directory.Location
	err := q.QueryRowContext(ctx, `
		select id, org_id, name, description, latitude, longitude,
			street, city, state, postal_code, country, is_active, created_at, updated_at
		from locations
		where id = $1
	`, id).Scan(&loc.ID, &loc.OrgID, &loc.Name, &loc.Description, &loc.Latitude, &loc.Longitude,
		&loc.Street, &loc.City, &loc.State, &loc.PostalCode, &loc.Country,
		&loc.IsActive, &loc.CreatedAt, &loc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.Location{}, fmt.Errorf("%w: location %s", directory.ErrNotFound, id)
	}
	if err != nil {
		return directory.Location{}, err
	}
	return loc, nil
}

func getEvent(ctx context.Context, q querier, id string) (directory.Event, error) {
	var (
		ev        directory.Event
		endTime   sql.NullString
		startDate sql.NullTime
	)
	err := q.QueryRowContext(ctx, `
		select id, org_id, location_id, name, description, day_of_week,
			start_time, end_time, start_date, is_active, is_private, created_at, updated_at
		from events
		where id = $1
	`, id).Scan(&ev.ID, &ev.OrgID, &ev.LocationID, &ev.Name, &ev.Description, &ev.DayOfWeek,
		&ev.StartTime, &endTime, &startDate, &ev.IsActive, &ev.IsPrivate, &ev.CreatedAt, &ev.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.Event{}, fmt.Errorf("%w: event %s", directory.ErrNotFound, id)
	}
	if err != nil {
		return directory.Event{}, err
	}
	ev.EndTime = endTime.String
	if startDate.Valid {
		ev.StartDate = startDate.Time.Format("2006-01-02")
	}

	rows, err := q.QueryContext(ctx,
		`select tag from event_tags where event_id = $1 order by tag`, id)
	if err != nil {
		return directory.Event{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return directory.Event{}, err
		}
		ev.Tags = append(ev.Tags, tag)
	}
	return ev, rows.Err()
}

// --- helpers ---

func requireRow(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", directory.ErrNotFound, entity, id)
	}
	return nil
}

// mapWriteErr translates constraint violations into the store's sentinels so
// callers never see driver error codes.
func mapWriteErr(err error, entity, ref string) error {
	if err == nil {
		return nil
	}
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return fmt.Errorf("%w: %s already exists", directory.ErrConflict, entity)
		case pgErrForeignKeyViolation:
			return fmt.Errorf("%w: %s reference %s", directory.ErrNotFound, entity, ref)
		}
	}
	return err
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
