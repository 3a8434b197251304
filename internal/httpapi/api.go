// Package httpapi is the HTTP surface: session middleware, catalogue and
// analytics endpoints, auth endpoints and the admin grant API.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"cantus.org/internal/access"
	"cantus.org/internal/auth"
	"cantus.org/internal/config"
	"cantus.org/internal/directory"
	"cantus.org/internal/obs"
	"cantus.org/internal/songs"
)

// AuthService is the slice of the token service the HTTP layer needs.
type AuthService interface {
	Register(ctx context.Context, username, password string) (*auth.User, error)
	Login(ctx context.Context, username, password string) (auth.TokenPair, auth.Identity, error)
	Authenticate(ctx context.Context, token string) (auth.Identity, error)
	Rotate(ctx context.Context, refreshToken string) (auth.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	Revoke(ctx context.Context, userID, chainID string) error
	RevokeAll(ctx context.Context, userID string) error
	SetCredential(ctx context.Context, userID, password string) error
}

// ScopeResolver computes the visibility scope for an authenticated identity.
type ScopeResolver interface {
	Resolve(ctx context.Context, identity auth.Identity) (access.Scope, error)
}

// GrantStore mutates and lists direct grants.
type GrantStore interface {
	Grant(ctx context.Context, axis access.Axis, userID, targetID string) error
	Revoke(ctx context.Context, axis access.Axis, userID, targetID string) error
	Grants(ctx context.Context, userID string) (networks, churches, activities []string, err error)
}

// ReadyProbe reports whether the service can take traffic.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	auth      AuthService
	resolver  ScopeResolver
	songs     songs.Service
	directory directory.Service
	grants    GrantStore

	secureCookies bool
	maxBodyBytes  int64
	rateBurst     int
	ratePerSecond int
}

func New(cfg config.Config, rp ReadyProbe, authSvc AuthService, resolver ScopeResolver,
	songSvc songs.Service, dirSvc directory.Service, grants GrantStore, version string) *API {

	a := &API{
		mux:           http.NewServeMux(),
		readyProbe:    rp,
		version:       version,
		auth:          authSvc,
		resolver:      resolver,
		songs:         songSvc,
		directory:     dirSvc,
		grants:        grants,
		secureCookies: cfg.Auth.SecureCookies,
		maxBodyBytes:  cfg.HTTP.MaxBodyBytes,
		rateBurst:     cfg.Rate.Burst,
		ratePerSecond: cfg.Rate.PerSec,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/revoke", a.secure(auth.RoleMember, a.handleRevoke))
	a.mux.HandleFunc("/v1/auth/password", a.secure(auth.RoleMember, a.handlePassword))

	// catalogue and analytics
	a.mux.HandleFunc("/v1/songs", a.secure(auth.RoleMember, a.handleSongsCollection))
	a.mux.HandleFunc("/v1/songs/usages/keys", a.secure(auth.RoleMember, a.handleKeyCounts))
	a.mux.HandleFunc("/v1/songs/usages/types", a.secure(auth.RoleMember, a.handleTypeCounts))
	a.mux.HandleFunc("/v1/songs/usages/summary", a.secure(auth.RoleMember, a.handleUsageSummary))
	a.mux.HandleFunc("/v1/songs/", a.secure(auth.RoleMember, a.handleSongResource))
	a.mux.HandleFunc("/v1/usages/", a.secure(auth.RoleEditor, a.handleUsageResource))

	// directory
	a.mux.HandleFunc("/v1/activities", a.secure(auth.RoleMember, a.handleActivities))
	a.mux.HandleFunc("/v1/activities/usages/summary", a.secure(auth.RoleMember, a.handleActivityTotals))
	a.mux.HandleFunc("/v1/networks", a.secure(auth.RoleMember, a.handleNetworks))
	a.mux.HandleFunc("/v1/networks/", a.secure(auth.RoleMember, a.handleNetworkResource))

	// admin
	a.mux.HandleFunc("/v1/admin/grants", a.secure(auth.RoleAdmin, a.handleGrants))
	a.mux.HandleFunc("/v1/users/", a.secure(auth.RoleAdmin, a.handleUserResource))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler wraps the mux in the full middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = RateLimit(h, a.rateBurst, a.ratePerSecond)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- ops handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "cantus-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "cantus-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
