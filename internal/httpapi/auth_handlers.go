package httpapi

import (
	"net/http"
	"strings"

	"cantus.org/internal/audit"
	"cantus.org/internal/auth"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

type revokeRequest struct {
	ChainID string `json:"chain_id,omitempty"`
	All     bool   `json:"all,omitempty"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := a.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{
		"user_id":  user.ID,
		"username": user.Username,
	})
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	pair, identity, err := a.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"user_id": identity.UserID,
	})
	a.setTokenCookies(w, pair)
	writeJSON(w, http.StatusOK, pair)
}

// handleRefresh rotates the presented refresh token. The token comes from
// the body or from the path-scoped refresh cookie.
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	token := refreshTokenFromRequest(w, r)
	if token == "" {
		writeError(w, r, http.StatusBadRequest, "refresh token is required")
		return
	}

	pair, err := a.auth.Rotate(r.Context(), token)
	if err != nil {
		a.clearTokenCookies(w)
		handleAuthError(w, r, err)
		return
	}
	a.setTokenCookies(w, pair)
	writeJSON(w, http.StatusOK, pair)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	if token := refreshTokenFromRequest(w, r); token != "" {
		if err := a.auth.Logout(r.Context(), token); err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
	}
	a.clearTokenCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	identity, _ := auth.IdentityFromContext(r.Context())

	var req revokeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var err error
	switch {
	case req.All:
		err = a.auth.RevokeAll(r.Context(), identity.UserID)
	case req.ChainID != "":
		err = a.auth.Revoke(r.Context(), identity.UserID, req.ChainID)
	default:
		writeError(w, r, http.StatusBadRequest, "chain_id or all is required")
		return
	}
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.revoke", map[string]any{
		"all":      req.All,
		"chain_id": req.ChainID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	identity, _ := auth.IdentityFromContext(r.Context())

	var req passwordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.auth.SetCredential(r.Context(), identity.UserID, req.Password); err != nil {
		handleAuthError(w, r, err)
		return
	}
	// Changing the password invalidates every open session.
	if err := a.auth.RevokeAll(r.Context(), identity.UserID); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.password.changed", nil)
	w.WriteHeader(http.StatusNoContent)
}

func refreshTokenFromRequest(w http.ResponseWriter, r *http.Request) string {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err == nil && req.RefreshToken != "" {
		return req.RefreshToken
	}
	if c, err := r.Cookie(refreshCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return ""
}
