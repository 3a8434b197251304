package songs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"cantus.org/internal/access"
	"cantus.org/internal/ids"
)

const pgErrForeignKeyViolation = "23503"

// PGStore implements Service over Postgres.
type PGStore struct {
	db *sql.DB
}

var _ Service = (*PGStore)(nil)

func NewPGStore(db *sql.DB) *PGStore { return &PGStore{db: db} }

func (s *PGStore) ListSongs(ctx context.Context, filter ListFilter) ([]Song, error) {
	var (
		args  []any
		where []string
	)
	appendSongFilters(&where, &args, "s", filter.Key, filter.Type, filter.Lyric)

	query := `
		select s.id, s.first_line, coalesce(s.song_key, ''), s.is_hymn,
		       coalesce(s.copyright, ''), coalesce(s.author, ''), s.duration
		from songs s
	`
	if len(where) > 0 {
		query += " where " + strings.Join(where, " and ")
	}
	query += " order by s.first_line asc"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Song
	for rows.Next() {
		var song Song
		if err := rows.Scan(&song.ID, &song.FirstLine, &song.Key, &song.IsHymn,
			&song.Copyright, &song.Author, &song.DurationSeconds); err != nil {
			return nil, err
		}
		out = append(out, song)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PGStore) GetSong(ctx context.Context, id string) (*Details, error) {
	var details Details
	err := s.db.QueryRowContext(ctx, `
		select s.id, s.first_line, coalesce(s.song_key, ''), s.is_hymn,
		       coalesce(s.copyright, ''), coalesce(s.author, ''), s.duration
		from songs s
		where s.id = $1
	`, id).Scan(&details.ID, &details.FirstLine, &details.Key, &details.IsHymn,
		&details.Copyright, &details.Author, &details.DurationSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var lyrics Lyrics
	err = s.db.QueryRowContext(ctx, `
		select song_id, content from song_lyrics where song_id = $1
	`, id).Scan(&lyrics.SongID, &lyrics.Content)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err == nil {
		details.Lyrics = &lyrics
	}

	var res Resources
	err = s.db.QueryRowContext(ctx, `
		select song_id, coalesce(sheet_music, ''), coalesce(harmony_vid, ''),
		       coalesce(harmony_pdf, ''), coalesce(harmony_ms, '')
		from song_resources
		where song_id = $1
	`, id).Scan(&res.SongID, &res.SheetMusic, &res.HarmonyVid, &res.HarmonyPDF, &res.HarmonyMS)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err == nil {
		details.Resources = &res
	}
	return &details, nil
}

func (s *PGStore) ListUsages(ctx context.Context, songID string, scope access.ScopeSet, filter UsageFilter) ([]Usage, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		select exists (select 1 from songs where id = $1)
	`, songID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}

	effective := effectiveScope(scope, filter.ActivityIDs)
	if effective.IsEmpty() {
		return nil, nil
	}

	from, to := filter.dateRange()
	args := []any{songID, from, to}
	pred := effective.Predicate("su.church_activity_id", &args)
	query := fmt.Sprintf(`
		select su.id, su.song_id, su.church_activity_id, su.used_date
		from song_usage su
		where su.song_id = $1
		  and su.used_date between $2 and $3
		  and %s
		order by su.used_date desc
	`, pred)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Usage
	for rows.Next() {
		var u Usage
		if err := rows.Scan(&u.ID, &u.SongID, &u.ActivityID, &u.UsedDate); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PGStore) KeyCounts(ctx context.Context, scope access.ScopeSet, filter UsageFilter) ([]KeyCount, error) {
	effective := effectiveScope(scope, filter.ActivityIDs)
	if effective.IsEmpty() {
		return nil, nil
	}

	countExpr := "count(su.id)"
	if filter.Unique {
		countExpr = "count(distinct su.song_id)"
	}
	from, to := filter.dateRange()
	args := []any{from, to}
	pred := effective.Predicate("su.church_activity_id", &args)
	query := fmt.Sprintf(`
		select coalesce(s.song_key, ''), %s as cnt
		from song_usage su
		join songs s on s.id = su.song_id
		where su.used_date between $1 and $2
		  and %s
		group by coalesce(s.song_key, '')
		order by cnt desc
	`, countExpr, pred)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []KeyCount
	for rows.Next() {
		var kc KeyCount
		if err := rows.Scan(&kc.Key, &kc.Count); err != nil {
			return nil, err
		}
		out = append(out, kc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PGStore) TypeCounts(ctx context.Context, scope access.ScopeSet, filter UsageFilter) (TypeCounts, error) {
	effective := effectiveScope(scope, filter.ActivityIDs)
	if effective.IsEmpty() {
		return TypeCounts{}, nil
	}

	countExpr := "count(su.id)"
	if filter.Unique {
		countExpr = "count(distinct su.song_id)"
	}
	from, to := filter.dateRange()
	args := []any{from, to}
	pred := effective.Predicate("su.church_activity_id", &args)
	query := fmt.Sprintf(`
		select s.is_hymn, %s as cnt
		from song_usage su
		join songs s on s.id = su.song_id
		where su.used_date between $1 and $2
		  and %s
		group by s.is_hymn
	`, countExpr, pred)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return TypeCounts{}, err
	}
	defer rows.Close()

	var counts TypeCounts
	for rows.Next() {
		var (
			isHymn bool
			count  int
		)
		if err := rows.Scan(&isHymn, &count); err != nil {
			return TypeCounts{}, err
		}
		if isHymn {
			counts.Hymn = count
		} else {
			counts.Song = count
		}
	}
	if err := rows.Err(); err != nil {
		return TypeCounts{}, err
	}
	return counts, nil
}

func (s *PGStore) ActivityTotals(ctx context.Context, scope access.ScopeSet, filter UsageFilter) ([]ActivityTotal, error) {
	effective := effectiveScope(scope, filter.ActivityIDs)
	if effective.IsEmpty() {
		return nil, nil
	}

	from, to := filter.dateRange()
	args := []any{from, to}
	pred := effective.Predicate("su.church_activity_id", &args)
	query := fmt.Sprintf(`
		select ca.id, ca.name, count(su.id), count(distinct su.song_id)
		from song_usage su
		join church_activities ca on ca.id = su.church_activity_id
		where su.used_date between $1 and $2
		  and %s
		group by ca.id, ca.name
		order by ca.name
	`, pred)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ActivityTotal
	for rows.Next() {
		var at ActivityTotal
		if err := rows.Scan(&at.ActivityID, &at.ActivityName, &at.TotalCount, &at.UniqueCount); err != nil {
			return nil, err
		}
		out = append(out, at)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// UsageSummary builds the per-song per-activity usage picture. Songs stay in
// the result even with zero usage: the stats and count tables hang off LEFT
// JOINs, and the scope predicate lives in the join conditions, never in the
// outer where clause.
func (s *PGStore) UsageSummary(ctx context.Context, scope access.ScopeSet, filter SummaryFilter) ([]Summary, error) {
	effective := effectiveScope(scope, filter.ActivityIDs)
	if effective.IsEmpty() {
		return nil, nil
	}

	from, to := filter.dateRange()
	args := []any{from, to}

	usagePred := effective.Predicate("su.church_activity_id", &args)
	statsPred := effective.Predicate("st.church_activity_id", &args)

	var where []string
	appendSongFilters(&where, &args, "s", filter.Key, filter.Type, filter.Lyric)

	if filter.FirstUsedInRange || filter.LastUsedInRange {
		var rangeConds []string
		if filter.FirstUsedInRange {
			rangeConds = append(rangeConds, "st2.first_used between $1 and $2")
		}
		if filter.LastUsedInRange {
			rangeConds = append(rangeConds, "st2.last_used between $1 and $2")
		}
		pred := effective.Predicate("st2.church_activity_id", &args)
		where = append(where, fmt.Sprintf(
			"s.id in (select st2.song_id from song_usage_stats st2 where %s and (%s))",
			pred, strings.Join(rangeConds, " and "),
		))
	}
	if filter.UsedInRange {
		pred := effective.Predicate("su2.church_activity_id", &args)
		where = append(where, fmt.Sprintf(
			"s.id in (select su2.song_id from song_usage su2 where %s and su2.used_date between $1 and $2)",
			pred,
		))
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "where " + strings.Join(where, " and ")
	}

	query := fmt.Sprintf(`
		select s.id, s.first_line,
		       coalesce(ca.id, ''), coalesce(ca.slug, ''), coalesce(ca.name, ''),
		       st.first_used, st.last_used,
		       coalesce(act.usage_count, 0), coalesce(tot.usage_count, 0)
		from songs s
		left join song_usage_stats st on st.song_id = s.id and %s
		left join church_activities ca on ca.id = st.church_activity_id
		left join (
			select su.song_id, su.church_activity_id, count(su.id) as usage_count
			from song_usage su
			where su.used_date between $1 and $2 and %s
			group by su.song_id, su.church_activity_id
		) act on act.song_id = s.id and act.church_activity_id = ca.id
		left join (
			select su.song_id, count(su.id) as usage_count
			from song_usage su
			where su.used_date between $1 and $2 and %s
			group by su.song_id
		) tot on tot.song_id = s.id
		%s
		order by s.first_line asc
	`, statsPred, usagePred, usagePred, whereClause)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := map[string]*Summary{}
	var order []string
	for rows.Next() {
		var (
			songID, firstLine               string
			activityID, activitySlug, aName string
			firstUsed, lastUsed             *time.Time
			activityCount, totalCount       int
		)
		if err := rows.Scan(&songID, &firstLine, &activityID, &activitySlug, &aName,
			&firstUsed, &lastUsed, &activityCount, &totalCount); err != nil {
			return nil, err
		}

		summary, ok := byID[songID]
		if !ok {
			summary = &Summary{
				ID:        songID,
				FirstLine: firstLine,
				Overall:   OverallUsage{UsageCount: totalCount},
			}
			byID[songID] = summary
			order = append(order, songID)
		}
		if activityID == "" {
			continue
		}
		summary.Activities = append(summary.Activities, ActivityUsage{
			ActivityID:   activityID,
			ActivitySlug: activitySlug,
			ActivityName: aName,
			UsageCount:   activityCount,
			FirstUsed:    firstUsed,
			LastUsed:     lastUsed,
		})
		if firstUsed != nil && (summary.Overall.FirstUsed == nil || firstUsed.Before(*summary.Overall.FirstUsed)) {
			summary.Overall.FirstUsed = firstUsed
		}
		if lastUsed != nil && (summary.Overall.LastUsed == nil || lastUsed.After(*summary.Overall.LastUsed)) {
			summary.Overall.LastUsed = lastUsed
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	visible, err := s.visibleActivities(ctx, effective)
	if err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(order))
	for _, songID := range order {
		summary := byID[songID]
		seen := map[string]bool{}
		for _, a := range summary.Activities {
			seen[a.ActivityID] = true
		}
		for _, a := range visible {
			if !seen[a.ActivityID] {
				summary.Activities = append(summary.Activities, ActivityUsage{
					ActivityID:   a.ActivityID,
					ActivitySlug: a.ActivitySlug,
					ActivityName: a.ActivityName,
				})
			}
		}
		sort.Slice(summary.Activities, func(i, j int) bool {
			return summary.Activities[i].ActivitySlug < summary.Activities[j].ActivitySlug
		})
		out = append(out, *summary)
	}
	return out, nil
}

func (s *PGStore) visibleActivities(ctx context.Context, scope access.ScopeSet) ([]ActivityUsage, error) {
	var args []any
	pred := scope.Predicate("ca.id", &args)
	query := fmt.Sprintf(`
		select ca.id, ca.slug, ca.name
		from church_activities ca
		where %s
		order by ca.slug
	`, pred)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ActivityUsage
	for rows.Next() {
		var a ActivityUsage
		if err := rows.Scan(&a.ActivityID, &a.ActivitySlug, &a.ActivityName); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// RecordUsage inserts a usage row and folds it into song_usage_stats in the
// same transaction, so stats never lag the usage table.
func (s *PGStore) RecordUsage(ctx context.Context, songID, activityID string, usedDate time.Time) (*Usage, error) {
	if songID == "" || activityID == "" || usedDate.IsZero() {
		return nil, fmt.Errorf("%w: song, activity and date are required", ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	usage := &Usage{
		ID:         ids.New(),
		SongID:     songID,
		ActivityID: activityID,
		UsedDate:   usedDate,
	}
	if _, err := tx.ExecContext(ctx, `
		insert into song_usage (id, song_id, church_activity_id, used_date)
		values ($1, $2, $3, $4)
	`, usage.ID, songID, activityID, usedDate); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		insert into song_usage_stats (id, song_id, church_activity_id, first_used, last_used)
		values ($1, $2, $3, $4, $4)
		on conflict (song_id, church_activity_id)
		do update set first_used = least(song_usage_stats.first_used, excluded.first_used),
		              last_used = greatest(song_usage_stats.last_used, excluded.last_used)
	`, ids.New(), songID, activityID, usedDate); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return usage, nil
}

// RemoveUsage deletes a usage row and recomputes or deletes the matching
// stats row inside one transaction. Usages at activities outside the scope
// answer ErrNotFound, indistinguishable from a usage that does not exist.
func (s *PGStore) RemoveUsage(ctx context.Context, usageID string, scope access.ScopeSet) error {
	if scope.IsEmpty() {
		return ErrNotFound
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var songID, activityID string
	err = tx.QueryRowContext(ctx, `
		select song_id, church_activity_id from song_usage where id = $1
	`, usageID).Scan(&songID, &activityID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if !scope.Contains(activityID) {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		delete from song_usage where id = $1
	`, usageID); err != nil {
		return err
	}

	var first, last sql.NullTime
	err = tx.QueryRowContext(ctx, `
		select min(used_date), max(used_date)
		from song_usage
		where song_id = $1 and church_activity_id = $2
	`, songID, activityID).Scan(&first, &last)
	if err != nil {
		return err
	}

	if !first.Valid {
		if _, err := tx.ExecContext(ctx, `
			delete from song_usage_stats where song_id = $1 and church_activity_id = $2
		`, songID, activityID); err != nil {
			return err
		}
	} else {
		if _, err := tx.ExecContext(ctx, `
			update song_usage_stats
			set first_used = $3, last_used = $4
			where song_id = $1 and church_activity_id = $2
		`, songID, activityID, first.Time, last.Time); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func appendSongFilters(where *[]string, args *[]any, alias, key, songType, lyric string) {
	if key != "" {
		*args = append(*args, key)
		*where = append(*where, fmt.Sprintf("%s.song_key = $%d", alias, len(*args)))
	}
	switch songType {
	case TypeSong:
		*where = append(*where, fmt.Sprintf("%s.is_hymn = false", alias))
	case TypeHymn:
		*where = append(*where, fmt.Sprintf("%s.is_hymn = true", alias))
	}
	if lyric != "" {
		*args = append(*args, "%"+lyric+"%")
		*where = append(*where, fmt.Sprintf(
			"exists (select 1 from song_lyrics sl where sl.song_id = %s.id and sl.content ilike $%d)",
			alias, len(*args),
		))
	}
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
