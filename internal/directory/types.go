package directory

import (
	"errors"
	"time"
)

// OrgType identifies the level of a node in the organizational hierarchy.
type OrgType string

const (
	OrgTypeNation OrgType = "nation"
	OrgTypeSector OrgType = "sector"
	OrgTypeArea   OrgType = "area"
	OrgTypeRegion OrgType = "region"
	OrgTypeAO     OrgType = "ao"
)

// MaxAncestorHops bounds every tree walk. The hierarchy is at most five
// levels deep (nation → sector → area → region → ao), so a node has at most
// four ancestors. Intermediate levels may be skipped (a region can parent
// directly to nation); the bound is the maximum chain length, not the exact
// depth.
const MaxAncestorHops = 4

// Valid reports whether t is a known org type.
func (t OrgType) Valid() bool {
	switch t {
	case OrgTypeNation, OrgTypeSector, OrgTypeArea, OrgTypeRegion, OrgTypeAO:
		return true
	}
	return false
}

// Org is a node in the hierarchy. ParentID is empty only for the nation root.
// Orgs are never deleted, only deactivated.
type Org struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parent_id,omitempty"`
	OrgType   OrgType   `json:"org_type"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Location is a physical place owned by exactly one org, usually a region.
type Location struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"org_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Street      string    `json:"street,omitempty"`
	City        string    `json:"city,omitempty"`
	State       string    `json:"state,omitempty"`
	PostalCode  string    `json:"postal_code,omitempty"`
	Country     string    `json:"country,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Event is a recurring workout occurrence owned by an AO org and held at a
// location.
type Event struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"org_id"`
	LocationID  string    `json:"location_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	DayOfWeek   int       `json:"day_of_week"` // 0=Sunday .. 6=Saturday
	StartTime   string    `json:"start_time"`  // "HHMM"
	EndTime     string    `json:"end_time"`    // "HHMM"
	StartDate   string    `json:"start_date"`  // "YYYY-MM-DD"
	IsActive    bool      `json:"is_active"`
	IsPrivate   bool      `json:"is_private"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Role names carried by assignments. Admin implies editor.
type Role string

const (
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

// Covers reports whether holding r satisfies a requirement of required.
func (r Role) Covers(required Role) bool {
	if r == required {
		return true
	}
	return r == RoleAdmin && required == RoleEditor
}

// RoleAssignment grants a principal a role on an org node. Authority
// propagates to every descendant of the node; there is no deny.
type RoleAssignment struct {
	PrincipalID string    `json:"principal_id"`
	OrgID       string    `json:"org_id"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

// User is a principal able to authenticate and submit changes.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

var (
	ErrNotFound   = errors.New("directory: not found")
	ErrValidation = errors.New("directory: invalid input")
	ErrConflict   = errors.New("directory: conflict")
)
