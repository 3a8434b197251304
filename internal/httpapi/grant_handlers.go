package httpapi

import (
	"net/http"
	"strings"

	"cantus.org/internal/access"
	"cantus.org/internal/audit"
)

type grantRequest struct {
	UserID   string `json:"user_id"`
	Axis     string `json:"axis"`
	TargetID string `json:"target_id"`
}

// handleGrants serves grant creation and removal. The route guard already
// requires the admin role.
func (a *API) handleGrants(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createGrant(w, r)
	case http.MethodDelete:
		a.deleteGrant(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
	}
}

func (a *API) createGrant(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeGrantRequest(w, r)
	if !ok {
		return
	}
	if err := a.grants.Grant(r.Context(), access.Axis(req.Axis), req.UserID, req.TargetID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "grant.create", map[string]any{
		"subject_user_id": req.UserID,
		"axis":            req.Axis,
		"target_id":       req.TargetID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) deleteGrant(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeGrantRequest(w, r)
	if !ok {
		return
	}
	if err := a.grants.Revoke(r.Context(), access.Axis(req.Axis), req.UserID, req.TargetID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "grant.revoke", map[string]any{
		"subject_user_id": req.UserID,
		"axis":            req.Axis,
		"target_id":       req.TargetID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func decodeGrantRequest(w http.ResponseWriter, r *http.Request) (grantRequest, bool) {
	var req grantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return grantRequest{}, false
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.Axis = strings.TrimSpace(req.Axis)
	req.TargetID = strings.TrimSpace(req.TargetID)
	if req.UserID == "" || req.Axis == "" || req.TargetID == "" {
		writeError(w, r, http.StatusBadRequest, "user_id, axis and target_id are required")
		return grantRequest{}, false
	}
	return req, true
}

// handleUserResource routes /v1/users/{id}/access: the user's direct grants
// per axis, admin-only.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	if !strings.HasSuffix(path, "/access") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	userID := strings.TrimSuffix(strings.TrimSuffix(path, "/access"), "/")
	if userID == "" || strings.Contains(userID, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	networks, churches, activities, err := a.grants.Grants(r.Context(), userID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":    userID,
		"networks":   orEmpty(networks),
		"churches":   orEmpty(churches),
		"activities": orEmpty(activities),
	})
}
