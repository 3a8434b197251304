package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"cantus.org/internal/access"
	"cantus.org/internal/auth"
	"cantus.org/internal/config"
	"cantus.org/internal/directory"
	"cantus.org/internal/songs"
)

// --- stubs ---

type stubAuth struct {
	identities map[string]auth.Identity

	loginPair   auth.TokenPair
	loginErr    error
	rotatePair  auth.TokenPair
	rotateErr   error
	registerErr error

	loggedOut  []string
	revoked    []string
	revokedAll []string
	passwords  map[string]string
}

func newStubAuth() *stubAuth {
	return &stubAuth{
		identities: map[string]auth.Identity{},
		passwords:  map[string]string{},
	}
}

func (s *stubAuth) Register(ctx context.Context, username, password string) (*auth.User, error) {
	if s.registerErr != nil {
		return nil, s.registerErr
	}
	return &auth.User{ID: "u-new", Username: username, Role: auth.RoleUnapproved}, nil
}

func (s *stubAuth) Login(ctx context.Context, username, password string) (auth.TokenPair, auth.Identity, error) {
	if s.loginErr != nil {
		return auth.TokenPair{}, auth.Identity{}, s.loginErr
	}
	return s.loginPair, auth.Identity{UserID: "u1", Role: auth.RoleMember}, nil
}

func (s *stubAuth) Authenticate(ctx context.Context, token string) (auth.Identity, error) {
	if identity, ok := s.identities[token]; ok {
		return identity, nil
	}
	return auth.Identity{}, auth.ErrTokenInvalid
}

func (s *stubAuth) Rotate(ctx context.Context, refreshToken string) (auth.TokenPair, error) {
	if s.rotateErr != nil {
		return auth.TokenPair{}, s.rotateErr
	}
	return s.rotatePair, nil
}

func (s *stubAuth) Logout(ctx context.Context, refreshToken string) error {
	s.loggedOut = append(s.loggedOut, refreshToken)
	return nil
}

func (s *stubAuth) Revoke(ctx context.Context, userID, chainID string) error {
	s.revoked = append(s.revoked, userID+"/"+chainID)
	return nil
}

func (s *stubAuth) RevokeAll(ctx context.Context, userID string) error {
	s.revokedAll = append(s.revokedAll, userID)
	return nil
}

func (s *stubAuth) SetCredential(ctx context.Context, userID, password string) error {
	s.passwords[userID] = password
	return nil
}

type stubResolver struct {
	scope access.Scope
	err   error
	calls int
}

func (s *stubResolver) Resolve(ctx context.Context, identity auth.Identity) (access.Scope, error) {
	s.calls++
	return s.scope, s.err
}

type stubSongs struct {
	listSongs    func(songs.ListFilter) ([]songs.Song, error)
	keyCounts    func(access.ScopeSet, songs.UsageFilter) ([]songs.KeyCount, error)
	usageSummary func(access.ScopeSet, songs.SummaryFilter) ([]songs.Summary, error)
	recordUsage  func(songID, activityID string, usedDate time.Time) (*songs.Usage, error)
	removeUsage  func(usageID string, scope access.ScopeSet) error
}

func (s *stubSongs) ListSongs(ctx context.Context, f songs.ListFilter) ([]songs.Song, error) {
	if s.listSongs != nil {
		return s.listSongs(f)
	}
	return nil, nil
}

func (s *stubSongs) KeyCounts(ctx context.Context, scope access.ScopeSet, f songs.UsageFilter) ([]songs.KeyCount, error) {
	if s.keyCounts != nil {
		return s.keyCounts(scope, f)
	}
	return nil, nil
}

func (s *stubSongs) UsageSummary(ctx context.Context, scope access.ScopeSet, f songs.SummaryFilter) ([]songs.Summary, error) {
	if s.usageSummary != nil {
		return s.usageSummary(scope, f)
	}
	return nil, nil
}

func (s *stubSongs) RecordUsage(ctx context.Context, songID, activityID string, usedDate time.Time) (*songs.Usage, error) {
	if s.recordUsage != nil {
		return s.recordUsage(songID, activityID, usedDate)
	}
	return &songs.Usage{ID: "usage-1", SongID: songID, ActivityID: activityID, UsedDate: usedDate}, nil
}

func (s *stubSongs) RemoveUsage(ctx context.Context, usageID string, scope access.ScopeSet) error {
	if s.removeUsage != nil {
		return s.removeUsage(usageID, scope)
	}
	return nil
}

func (s *stubSongs) GetSong(ctx context.Context, id string) (*songs.Details, error) {
	if id == "missing" {
		return nil, songs.ErrNotFound
	}
	return &songs.Details{Song: songs.Song{ID: id, FirstLine: "Test song"}}, nil
}

func (s *stubSongs) ListUsages(ctx context.Context, songID string, scope access.ScopeSet, f songs.UsageFilter) ([]songs.Usage, error) {
	return nil, nil
}

func (s *stubSongs) TypeCounts(ctx context.Context, scope access.ScopeSet, f songs.UsageFilter) (songs.TypeCounts, error) {
	return songs.TypeCounts{}, nil
}

func (s *stubSongs) ActivityTotals(ctx context.Context, scope access.ScopeSet, f songs.UsageFilter) ([]songs.ActivityTotal, error) {
	return nil, nil
}

var _ songs.Service = (*stubSongs)(nil)

type stubDirectory struct {
	activities func(access.ScopeSet) ([]directory.Activity, error)
}

func (s *stubDirectory) ListNetworks(ctx context.Context) ([]directory.Network, error) {
	return nil, nil
}

func (s *stubDirectory) ListChurches(ctx context.Context, networkID string) ([]directory.Church, error) {
	if networkID == "missing" {
		return nil, directory.ErrNotFound
	}
	return nil, nil
}

func (s *stubDirectory) ListActivities(ctx context.Context, scope access.ScopeSet) ([]directory.Activity, error) {
	if s.activities != nil {
		return s.activities(scope)
	}
	return nil, nil
}

type stubGrants struct {
	granted []string
	revoked []string
	err     error
}

func (s *stubGrants) Grant(ctx context.Context, axis access.Axis, userID, targetID string) error {
	if s.err != nil {
		return s.err
	}
	s.granted = append(s.granted, string(axis)+":"+userID+":"+targetID)
	return nil
}

func (s *stubGrants) Revoke(ctx context.Context, axis access.Axis, userID, targetID string) error {
	if s.err != nil {
		return s.err
	}
	s.revoked = append(s.revoked, string(axis)+":"+userID+":"+targetID)
	return nil
}

func (s *stubGrants) Grants(ctx context.Context, userID string) ([]string, []string, []string, error) {
	return []string{"n1"}, nil, []string{"a1"}, nil
}

// --- harness ---

type testEnv struct {
	auth     *stubAuth
	resolver *stubResolver
	songs    *stubSongs
	dir      *stubDirectory
	grants   *stubGrants
	client   *apiClient
}

func newTestAPI(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		auth:     newStubAuth(),
		resolver: &stubResolver{scope: access.AllUnrestricted()},
		songs:    &stubSongs{},
		dir:      &stubDirectory{},
		grants:   &stubGrants{},
	}
	env.auth.identities["member-token"] = auth.Identity{UserID: "u1", Role: auth.RoleMember}
	env.auth.identities["editor-token"] = auth.Identity{UserID: "u2", Role: auth.RoleEditor}
	env.auth.identities["admin-token"] = auth.Identity{UserID: "u3", Role: auth.RoleAdmin}
	env.auth.identities["unapproved-token"] = auth.Identity{UserID: "u4", Role: auth.RoleUnapproved}

	cfg := config.Config{}
	cfg.HTTP.MaxBodyBytes = 1 << 20
	cfg.Rate.Burst = 1000
	cfg.Rate.PerSec = 1000

	api := New(cfg, ReadyProbe{}, env.auth, env.resolver, env.songs, env.dir, env.grants, "test")
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	env.client = &apiClient{baseURL: srv.URL, client: srv.Client(), t: t}
	return env
}

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	if params != nil {
		path += "?" + params.Encode()
	}
	return c.do(http.MethodGet, path, nil, headers)
}

func bearerHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		t.Fatalf("decode body %q: %v", data, err)
	}
}
