// Package songs is the catalogue and usage-analytics surface. Every usage
// query takes a resolved activity scope and applies it before aggregation.
package songs

import (
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("songs: not found")
	ErrInvalidInput = errors.New("songs: invalid input")
)

// Open-ended date filters default to a range wide enough to cover anything
// in the catalogue.
var (
	DefaultFromDate = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)
	DefaultToDate   = time.Date(2100, time.January, 1, 0, 0, 0, 0, time.UTC)
)

// Song type filter values. Empty means both.
const (
	TypeSong = "song"
	TypeHymn = "hymn"
)

// Song is a catalogue entry. Key is empty when the song has no fixed key.
type Song struct {
	ID              string `json:"id"`
	FirstLine       string `json:"first_line"`
	Key             string `json:"key,omitempty"`
	IsHymn          bool   `json:"is_hymn"`
	Copyright       string `json:"copyright,omitempty"`
	Author          string `json:"author,omitempty"`
	DurationSeconds int    `json:"duration_seconds"`
}

// Lyrics is the one-to-one full text of a song.
type Lyrics struct {
	SongID  string `json:"-"`
	Content string `json:"content"`
}

// Resources links sheet music and harmony material for a song.
type Resources struct {
	SongID     string `json:"-"`
	SheetMusic string `json:"sheet_music,omitempty"`
	HarmonyVid string `json:"harmony_vid,omitempty"`
	HarmonyPDF string `json:"harmony_pdf,omitempty"`
	HarmonyMS  string `json:"harmony_ms,omitempty"`
}

// Details is a song with its lyrics and resources attached.
type Details struct {
	Song
	Lyrics    *Lyrics    `json:"lyrics,omitempty"`
	Resources *Resources `json:"resources,omitempty"`
}

// Usage is one dated use of a song at a church activity.
type Usage struct {
	ID         string    `json:"id"`
	SongID     string    `json:"song_id"`
	ActivityID string    `json:"church_activity_id"`
	UsedDate   time.Time `json:"used_date"`
}

// ListFilter narrows the public catalogue listing.
type ListFilter struct {
	Key   string
	Type  string
	Lyric string
}

// UsageFilter narrows usage analytics. ActivityIDs intersect with the
// caller's scope and can only narrow it. Zero dates fall back to the wide
// defaults. Unique switches counting from rows to distinct songs.
type UsageFilter struct {
	ActivityIDs []string
	From        time.Time
	To          time.Time
	Unique      bool
}

func (f UsageFilter) dateRange() (time.Time, time.Time) {
	from, to := f.From, f.To
	if from.IsZero() {
		from = DefaultFromDate
	}
	if to.IsZero() {
		to = DefaultToDate
	}
	return from, to
}

// SummaryFilter narrows the per-song usage summary.
type SummaryFilter struct {
	UsageFilter
	Key   string
	Type  string
	Lyric string

	FirstUsedInRange bool
	LastUsedInRange  bool
	UsedInRange      bool
}

// KeyCount is a usage count for one song key.
type KeyCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// TypeCounts splits usage counts between hymns and songs.
type TypeCounts struct {
	Hymn int `json:"hymn"`
	Song int `json:"song"`
}

// ActivityTotal is the usage volume of one activity.
type ActivityTotal struct {
	ActivityID   string `json:"church_activity_id"`
	ActivityName string `json:"church_activity_name"`
	TotalCount   int    `json:"total_count"`
	UniqueCount  int    `json:"unique_count"`
}

// ActivityUsage is per-song usage at one activity. First/LastUsed are nil
// when the song was never used there.
type ActivityUsage struct {
	ActivityID   string     `json:"id"`
	ActivitySlug string     `json:"slug"`
	ActivityName string     `json:"name"`
	UsageCount   int        `json:"usage_count"`
	FirstUsed    *time.Time `json:"first_used"`
	LastUsed     *time.Time `json:"last_used"`
}

// OverallUsage aggregates a song's usage across every visible activity.
type OverallUsage struct {
	UsageCount int        `json:"usage_count"`
	FirstUsed  *time.Time `json:"first_used"`
	LastUsed   *time.Time `json:"last_used"`
}

// Summary is one song's usage picture. Activities always covers every
// activity in scope, zero-filled where the song was never used.
type Summary struct {
	ID         string          `json:"id"`
	FirstLine  string          `json:"first_line"`
	Overall    OverallUsage    `json:"overall"`
	Activities []ActivityUsage `json:"activities"`
}
