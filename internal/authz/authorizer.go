// Package authz answers the two questions the moderation engine asks of the
// org tree: does a principal hold a role on a node or any of its ancestors,
// and which nodes fall under a set of nodes a principal manages. Both walks
// are bounded by directory.MaxAncestorHops and are read-only, so they can run
// inside the same transaction as a subsequent mutation.
package authz

import (
	"context"
	"errors"

	"orgmap.org/internal/directory"
)

var ErrUnauthorized = errors.New("authz: unauthorized")

// Authorizer evaluates hierarchical role checks against directory storage.
type Authorizer struct {
	store directory.Store
}

func New(store directory.Store) *Authorizer {
	return &Authorizer{store: store}
}

// HasRoleOnOrgOrAncestor reports whether the principal holds a role at least
// as strong as required on targetOrgID or any ancestor within the bounded
// chain. A role granted at a node is authoritative for the whole subtree
// beneath it. A missing target org authorizes nothing and reports false
// rather than an error.
func (a *Authorizer) HasRoleOnOrgOrAncestor(ctx context.Context, p Principal, targetOrgID string, required directory.Role) (bool, error) {
	if targetOrgID == "" || len(p.Assignments) == 0 {
		return false, nil
	}
	chain, err := a.store.AncestorChain(ctx, targetOrgID)
	if err != nil {
		return false, err
	}
	held := p.rolesOn()
	for _, orgID := range chain {
		if role, ok := held[orgID]; ok && role.Covers(required) {
			return true, nil
		}
	}
	return false, nil
}

// CanEditOrg is the read-side wrapper used by list filters.
func (a *Authorizer) CanEditOrg(ctx context.Context, p Principal, orgID string) (bool, error) {
	return a.HasRoleOnOrgOrAncestor(ctx, p, orgID, directory.RoleEditor)
}

// ExpandToDescendants returns orgIDs plus every descendant reachable within
// the depth bound. The inputs are always included, so a leaf org expands to
// itself.
func (a *Authorizer) ExpandToDescendants(ctx context.Context, orgIDs []string) (map[string]struct{}, error) {
	if len(orgIDs) == 0 {
		return map[string]struct{}{}, nil
	}
	expanded, err := a.store.Descendants(ctx, orgIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(expanded)+len(orgIDs))
	for _, id := range orgIDs {
		out[id] = struct{}{}
	}
	for _, id := range expanded {
		out[id] = struct{}{}
	}
	return out, nil
}

// ManagedOrgs expands the principal's directly assigned nodes downward,
// scoping "only mine" list views.
func (a *Authorizer) ManagedOrgs(ctx context.Context, p Principal) (map[string]struct{}, error) {
	direct := make([]string, 0, len(p.Assignments))
	seen := make(map[string]struct{}, len(p.Assignments))
	for _, asg := range p.Assignments {
		if _, ok := seen[asg.OrgID]; ok {
			continue
		}
		seen[asg.OrgID] = struct{}{}
		direct = append(direct, asg.OrgID)
	}
	return a.ExpandToDescendants(ctx, direct)
}
