package httpapi

import (
	"net/http"
	"sort"
	"strings"

	"orgmap.org/internal/authz"
)

type canEditResponse struct {
	OrgID   string `json:"org_id"`
	CanEdit bool   `json:"can_edit"`
}

type descendantsResponse struct {
	OrgIDs []string `json:"org_ids"`
}

func (a *API) handleOrgResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/orgs/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if strings.HasSuffix(path, "/can-edit") {
		id := strings.TrimSuffix(strings.TrimSuffix(path, "/can-edit"), "/")
		if id == "" {
			writeError(w, r, http.StatusNotFound, "org not found")
			return
		}
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.canEditOrg(w, r, id)
		return
	}

	writeError(w, r, http.StatusNotFound, "resource not found")
}

// canEditOrg answers whether the caller passes the hierarchical editor check
// on the given org. A missing org answers false rather than erroring, so
// dashboards can probe without tripping alerts.
func (a *API) canEditOrg(w http.ResponseWriter, r *http.Request, orgID string) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	allowed, err := a.authorizer.CanEditOrg(r.Context(), principal, orgID)
	if err != nil {
		handleEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, canEditResponse{OrgID: orgID, CanEdit: allowed})
}

// handleDescendants expands org ids downward. With no ids given it expands the
// caller's own assignments, which is what a moderator dashboard needs to scope
// its queue.
func (a *API) handleDescendants(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var (
		set map[string]struct{}
		err error
	)
	if raw := strings.TrimSpace(r.URL.Query().Get("ids")); raw != "" {
		var ids []string
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		set, err = a.authorizer.ExpandToDescendants(r.Context(), ids)
	} else {
		set, err = a.authorizer.ManagedOrgs(r.Context(), principal)
	}
	if err != nil {
		handleEngineError(w, r, err)
		return
	}

	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	writeJSON(w, http.StatusOK, descendantsResponse{OrgIDs: out})
}
