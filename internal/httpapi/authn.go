package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"cantus.org/internal/access"
	"cantus.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "

	accessCookieName  = "cantus_access"
	refreshCookieName = "cantus_refresh"
	refreshCookiePath = "/v1/auth/refresh"
)

// secure wraps a handler in the fixed session pipeline: authenticate the
// token, check the endpoint's minimum role, resolve the caller's scope once
// and attach both to the request context. Handlers never authenticate or
// resolve on their own.
func (a *API) secure(minRole auth.Role, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := requestToken(r)
		if !ok {
			unauthorized(w, r)
			return
		}

		identity, err := a.auth.Authenticate(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrTokenInvalid), errors.Is(err, auth.ErrTokenExpired):
				// Outwardly uniform; the service-level error taxonomy is
				// not exposed to unauthenticated callers.
				unauthorized(w, r)
			default:
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		if !identity.Role.AtLeast(minRole) {
			writeError(w, r, http.StatusForbidden, "insufficient role")
			return
		}

		scope, err := a.resolver.Resolve(r.Context(), identity)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "access resolution failed")
			return
		}

		ctx := auth.ContextWithIdentity(r.Context(), identity)
		ctx = access.ContextWithScope(ctx, scope)
		next(w, r.WithContext(ctx))
	}
}

// requestToken pulls the access token from the Authorization header, falling
// back to the access cookie for browser clients.
func requestToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get(authHeader))
	if header != "" {
		if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
			return "", false
		}
		token := strings.TrimSpace(header[len(bearer):])
		return token, token != ""
	}
	if c, err := r.Cookie(accessCookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	return "", false
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="cantus"`)
	writeError(w, r, http.StatusUnauthorized, "authentication required")
}

// setTokenCookies mirrors the token pair into HttpOnly cookies. The refresh
// cookie is path-scoped so it only travels to the refresh endpoint.
func (a *API) setTokenCookies(w http.ResponseWriter, pair auth.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookieName,
		Value:    pair.AccessToken,
		Path:     "/",
		Expires:  pair.AccessExpiresAt,
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    pair.RefreshToken,
		Path:     refreshCookiePath,
		Expires:  pair.RefreshExpiresAt,
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (a *API) clearTokenCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}
