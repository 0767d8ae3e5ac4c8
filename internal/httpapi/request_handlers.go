package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"orgmap.org/internal/audit"
	"orgmap.org/internal/authz"
	"orgmap.org/internal/directory"
	"orgmap.org/internal/moderation"
)

// submitRequest is the submission envelope: the kind selects the payload
// shape.
type submitRequest struct {
	Kind    moderation.Kind `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

type listRequestsResponse struct {
	Items []*moderation.Record `json:"items"`
	AsOf  time.Time            `json:"as_of"`
}

func (a *API) handleRequestsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.submitRequest(w, r)
	case http.MethodGet:
		a.listRequests(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRequestResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/requests/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if strings.HasSuffix(path, "/reject") {
		id := strings.TrimSuffix(strings.TrimSuffix(path, "/reject"), "/")
		if id == "" {
			writeError(w, r, http.StatusNotFound, "request not found")
			return
		}
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.rejectRequest(w, r, id)
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.getRequest(w, r, path)
	default:
		methodNotAllowed(w, r, http.MethodGet)
	}
}

func (a *API) submitRequest(w http.ResponseWriter, r *http.Request) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	change, err := decodeChange(req.Kind, req.Payload)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	sub, err := a.workflow.Submit(r.Context(), principal, change)
	if err != nil {
		handleEngineError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "moderation.request.submit", map[string]any{
		"request_id":   sub.RequestID,
		"request_type": string(req.Kind),
		"status":       string(sub.Status),
	})

	w.Header().Set("Location", "/v1/requests/"+sub.RequestID)
	code := http.StatusCreated
	if sub.Status == moderation.StatusPending {
		code = http.StatusAccepted
	}
	writeJSON(w, code, sub)
}

func (a *API) rejectRequest(w http.ResponseWriter, r *http.Request, id string) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := a.workflow.Reject(r.Context(), principal, id); err != nil {
		handleEngineError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "moderation.request.reject", map[string]any{
		"request_id": id,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"request_id": id,
		"status":     moderation.StatusRejected,
	})
}

func (a *API) getRequest(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := a.workflow.Record(r.Context(), id)
	if err != nil {
		handleEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) listRequests(w http.ResponseWriter, r *http.Request) {
	status := moderation.Status(strings.TrimSpace(r.URL.Query().Get("status")))
	switch status {
	case "", moderation.StatusPending, moderation.StatusApproved, moderation.StatusRejected:
	default:
		writeError(w, r, http.StatusBadRequest, "unknown status filter")
		return
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	items, err := a.workflow.Records(r.Context(), status, limit)
	if err != nil {
		handleEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listRequestsResponse{
		Items: items,
		AsOf:  time.Now().UTC(),
	})
}

// decodeChange maps the submission kind onto its concrete payload type.
func decodeChange(kind moderation.Kind, payload json.RawMessage) (moderation.Change, error) {
	if len(payload) == 0 {
		return nil, errors.New("payload is required")
	}
	var change moderation.Change
	switch kind {
	case moderation.KindCreateAO:
		change = &moderation.CreateAO{}
	case moderation.KindCreateEvent:
		change = &moderation.CreateEvent{}
	case moderation.KindEditEvent:
		change = &moderation.EditEvent{}
	case moderation.KindEditAO:
		change = &moderation.EditAO{}
	case moderation.KindMoveAORegion:
		change = &moderation.MoveAORegion{}
	case moderation.KindMoveAOLocation:
		change = &moderation.MoveAOLocation{}
	case moderation.KindMoveAONewLocation:
		change = &moderation.MoveAONewLocation{}
	case moderation.KindMoveEventAO:
		change = &moderation.MoveEventAO{}
	case moderation.KindMoveEventNewLocation:
		change = &moderation.MoveEventNewLocation{}
	case moderation.KindDeleteEvent:
		change = &moderation.DeleteEvent{}
	case moderation.KindDeleteAO:
		change = &moderation.DeleteAO{}
	default:
		return nil, fmt.Errorf("unknown kind %q", kind)
	}

	dec := json.NewDecoder(strings.NewReader(string(payload)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(change); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return deref(change), nil
}

// deref unwraps the pointer used for decoding; the engine works with values.
func deref(ch moderation.Change) moderation.Change {
	switch c := ch.(type) {
	case *moderation.CreateAO:
		return *c
	case *moderation.CreateEvent:
		return *c
	case *moderation.EditEvent:
		return *c
	case *moderation.EditAO:
		return *c
	case *moderation.MoveAORegion:
		return *c
	case *moderation.MoveAOLocation:
		return *c
	case *moderation.MoveAONewLocation:
		return *c
	case *moderation.MoveEventAO:
		return *c
	case *moderation.MoveEventNewLocation:
		return *c
	case *moderation.DeleteEvent:
		return *c
	case *moderation.DeleteAO:
		return *c
	}
	return ch
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, fmt.Errorf("limit must be between %d and %d", min, max)
	}
	return val, nil
}

func handleEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, moderation.ErrValidation), errors.Is(err, directory.ErrValidation):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, authz.ErrUnauthorized):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, moderation.ErrInvalidTransition), errors.Is(err, directory.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, directory.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
