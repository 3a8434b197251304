package httpapi

import (
	"net/http"
	"strings"

	"cantus.org/internal/access"
)

func (a *API) handleNetworks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	out, err := a.directory.ListNetworks(r.Context())
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(out))
}

// handleNetworkResource routes /v1/networks/{id}/churches.
func (a *API) handleNetworkResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/networks/")
	if !strings.HasSuffix(path, "/churches") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	networkID := strings.TrimSuffix(strings.TrimSuffix(path, "/churches"), "/")
	if networkID == "" || strings.Contains(networkID, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	out, err := a.directory.ListChurches(r.Context(), networkID)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(out))
}

func (a *API) handleActivities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	scope, _ := access.ScopeFromContext(r.Context())

	out, err := a.directory.ListActivities(r.Context(), scope.Activities)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(out))
}
