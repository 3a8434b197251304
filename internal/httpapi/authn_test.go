package httpapi

import (
	"net/http"
	"testing"

	"cantus.org/internal/access"
	"cantus.org/internal/songs"
)

func TestSecureRequiresToken(t *testing.T) {
	env := newTestAPI(t)

	resp := env.client.get("/v1/songs", nil, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Fatalf("expected WWW-Authenticate header")
	}
}

func TestSecureUniform401ForBadTokens(t *testing.T) {
	env := newTestAPI(t)

	garbage := env.client.get("/v1/songs", nil, bearerHeader("garbage"))
	defer garbage.Body.Close()
	noScheme := env.client.get("/v1/songs", nil, map[string]string{"Authorization": "Basic abc"})
	defer noScheme.Body.Close()

	if garbage.StatusCode != http.StatusUnauthorized || noScheme.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected uniform 401, got %d and %d", garbage.StatusCode, noScheme.StatusCode)
	}
}

func TestSecureEnforcesMinimumRole(t *testing.T) {
	env := newTestAPI(t)

	resp := env.client.get("/v1/songs", nil, bearerHeader("unapproved-token"))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("unapproved user must get 403, got %d", resp.StatusCode)
	}

	admin := env.client.get("/v1/admin/grants", nil, bearerHeader("member-token"))
	defer admin.Body.Close()
	if admin.StatusCode != http.StatusForbidden {
		t.Fatalf("member hitting admin route must get 403, got %d", admin.StatusCode)
	}
}

func TestSecureResolvesScopeOncePerRequest(t *testing.T) {
	env := newTestAPI(t)
	env.resolver.scope = access.Scope{
		Networks:   access.IDSet("n1"),
		Churches:   access.IDSet("c1"),
		Activities: access.IDSet("a1"),
	}

	resp := env.client.get("/v1/songs", nil, bearerHeader("member-token"))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if env.resolver.calls != 1 {
		t.Fatalf("expected exactly one scope resolution, got %d", env.resolver.calls)
	}
}

func TestSecureAcceptsAccessCookie(t *testing.T) {
	env := newTestAPI(t)

	resp := env.client.get("/v1/songs", nil, map[string]string{
		"Cookie": accessCookieName + "=member-token",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cookie auth should work, got %d", resp.StatusCode)
	}
}

func TestHandlersReadScopeFromContext(t *testing.T) {
	env := newTestAPI(t)
	env.resolver.scope = access.Scope{Activities: access.IDSet("a1", "a2")}

	var got access.ScopeSet
	env.songs.keyCounts = func(scope access.ScopeSet, _ songs.UsageFilter) ([]songs.KeyCount, error) {
		got = scope
		return nil, nil
	}

	resp := env.client.get("/v1/songs/usages/keys", nil, bearerHeader("member-token"))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got.IsUnrestricted() || !got.Contains("a1") || !got.Contains("a2") || got.Contains("a3") {
		t.Fatalf("handler did not receive the resolved scope: %v", got)
	}
}
