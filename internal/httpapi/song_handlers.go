package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cantus.org/internal/access"
	"cantus.org/internal/audit"
	"cantus.org/internal/auth"
	"cantus.org/internal/songs"
)

const dateLayout = "2006-01-02"

type recordUsageRequest struct {
	ActivityID string `json:"church_activity_id"`
	UsedDate   string `json:"used_date"`
}

func (a *API) handleSongsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	q := r.URL.Query()
	filter := songs.ListFilter{
		Key:   strings.TrimSpace(q.Get("key")),
		Type:  strings.TrimSpace(q.Get("type")),
		Lyric: strings.TrimSpace(q.Get("lyric")),
	}
	if filter.Type != "" && filter.Type != songs.TypeSong && filter.Type != songs.TypeHymn {
		writeError(w, r, http.StatusBadRequest, "type must be song or hymn")
		return
	}

	out, err := a.songs.ListSongs(r.Context(), filter)
	if err != nil {
		handleSongsError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(out))
}

// handleSongResource routes /v1/songs/{id} and /v1/songs/{id}/usages.
func (a *API) handleSongResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/songs/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if strings.HasSuffix(path, "/usages") {
		songID := strings.TrimSuffix(strings.TrimSuffix(path, "/usages"), "/")
		if songID == "" || strings.Contains(songID, "/") {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		switch r.Method {
		case http.MethodGet:
			a.listUsages(w, r, songID)
		case http.MethodPost:
			a.recordUsage(w, r, songID)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	details, err := a.songs.GetSong(r.Context(), path)
	if err != nil {
		handleSongsError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (a *API) listUsages(w http.ResponseWriter, r *http.Request, songID string) {
	filter, err := usageFilterFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	scope, _ := access.ScopeFromContext(r.Context())

	out, err := a.songs.ListUsages(r.Context(), songID, scope.Activities, filter)
	if err != nil {
		handleSongsError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(out))
}

// recordUsage is editor-privileged on top of the member-level route guard.
func (a *API) recordUsage(w http.ResponseWriter, r *http.Request, songID string) {
	if !requireRoleAtLeast(w, r, auth.RoleEditor) {
		return
	}
	var req recordUsageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	usedDate, err := time.Parse(dateLayout, req.UsedDate)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "used_date must be YYYY-MM-DD")
		return
	}
	scope, _ := access.ScopeFromContext(r.Context())
	if !scope.Activities.Contains(req.ActivityID) {
		writeError(w, r, http.StatusForbidden, "activity not in scope")
		return
	}

	usage, err := a.songs.RecordUsage(r.Context(), songID, req.ActivityID, usedDate)
	if err != nil {
		handleSongsError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "usage.record", map[string]any{
		"song_id":     songID,
		"activity_id": req.ActivityID,
		"used_date":   req.UsedDate,
	})
	writeJSON(w, http.StatusCreated, usage)
}

// handleUsageResource routes /v1/usages/{id}.
func (a *API) handleUsageResource(w http.ResponseWriter, r *http.Request) {
	usageID := strings.TrimPrefix(r.URL.Path, "/v1/usages/")
	if usageID == "" || strings.Contains(usageID, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	scope, _ := access.ScopeFromContext(r.Context())

	if err := a.songs.RemoveUsage(r.Context(), usageID, scope.Activities); err != nil {
		handleSongsError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "usage.remove", map[string]any{
		"usage_id": usageID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleKeyCounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	filter, err := usageFilterFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	scope, _ := access.ScopeFromContext(r.Context())

	out, err := a.songs.KeyCounts(r.Context(), scope.Activities, filter)
	if err != nil {
		handleSongsError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(out))
}

func (a *API) handleTypeCounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	filter, err := usageFilterFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	scope, _ := access.ScopeFromContext(r.Context())

	out, err := a.songs.TypeCounts(r.Context(), scope.Activities, filter)
	if err != nil {
		handleSongsError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleUsageSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	usageFilter, err := usageFilterFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	filter := songs.SummaryFilter{
		UsageFilter:      usageFilter,
		Key:              strings.TrimSpace(q.Get("key")),
		Type:             strings.TrimSpace(q.Get("type")),
		Lyric:            strings.TrimSpace(q.Get("lyric")),
		FirstUsedInRange: boolParam(q.Get("first_used_in_range")),
		LastUsedInRange:  boolParam(q.Get("last_used_in_range")),
		UsedInRange:      boolParam(q.Get("used_in_range")),
	}
	scope, _ := access.ScopeFromContext(r.Context())

	out, err := a.songs.UsageSummary(r.Context(), scope.Activities, filter)
	if err != nil {
		handleSongsError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(out))
}

func (a *API) handleActivityTotals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	filter, err := usageFilterFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	scope, _ := access.ScopeFromContext(r.Context())

	out, err := a.songs.ActivityTotals(r.Context(), scope.Activities, filter)
	if err != nil {
		handleSongsError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(out))
}

func usageFilterFromQuery(r *http.Request) (songs.UsageFilter, error) {
	q := r.URL.Query()
	filter := songs.UsageFilter{
		ActivityIDs: q["church_activity_id"],
		Unique:      boolParam(q.Get("unique")),
	}
	if raw := strings.TrimSpace(q.Get("from_date")); raw != "" {
		from, err := time.Parse(dateLayout, raw)
		if err != nil {
			return songs.UsageFilter{}, errInvalidDate("from_date")
		}
		filter.From = from
	}
	if raw := strings.TrimSpace(q.Get("to_date")); raw != "" {
		to, err := time.Parse(dateLayout, raw)
		if err != nil {
			return songs.UsageFilter{}, errInvalidDate("to_date")
		}
		filter.To = to
	}
	return filter, nil
}

func errInvalidDate(field string) error {
	return fmt.Errorf("%s must be YYYY-MM-DD", field)
}

func boolParam(raw string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && v
}

// orEmpty keeps list responses as [] instead of null.
func orEmpty[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
