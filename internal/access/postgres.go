package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"cantus.org/internal/auth"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// PGStore reads grants and hierarchy edges and applies grant mutations.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

func NewPGStore(db *sql.DB) *PGStore { return &PGStore{db: db} }

func (s *PGStore) UserAffiliation(ctx context.Context, userID string) (Affiliation, error) {
	var aff Affiliation
	err := s.db.QueryRowContext(ctx, `
		select coalesce(network_id, ''), coalesce(church_id, '')
		from users
		where id = $1
	`, userID).Scan(&aff.NetworkID, &aff.ChurchID)
	if errors.Is(err, sql.ErrNoRows) {
		return Affiliation{}, auth.ErrNotFound
	}
	if err != nil {
		return Affiliation{}, err
	}
	return aff, nil
}

func (s *PGStore) NetworkGrants(ctx context.Context, userID string) ([]string, error) {
	return s.grantIDs(ctx, `select network_id from user_network_access where user_id = $1`, userID)
}

func (s *PGStore) ChurchGrants(ctx context.Context, userID string) ([]string, error) {
	return s.grantIDs(ctx, `select church_id from user_church_access where user_id = $1`, userID)
}

func (s *PGStore) ActivityGrants(ctx context.Context, userID string) ([]string, error) {
	return s.grantIDs(ctx, `select activity_id from user_church_activity_access where user_id = $1`, userID)
}

func (s *PGStore) grantIDs(ctx context.Context, query, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

func (s *PGStore) ChurchesByNetworks(ctx context.Context, networkIDs []string) ([]string, error) {
	if len(networkIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`select id from churches where network_id in (%s)`, placeholders(len(networkIDs)))
	rows, err := s.db.QueryContext(ctx, query, toAnySlice(networkIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

func (s *PGStore) ActivitiesByChurches(ctx context.Context, churchIDs []string) ([]string, error) {
	if len(churchIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`select id from church_activities where church_id in (%s)`, placeholders(len(churchIDs)))
	rows, err := s.db.QueryContext(ctx, query, toAnySlice(churchIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

// Axis names a grant table. Grant mutations are admin-only; the HTTP layer
// enforces the role before calling these.
type Axis string

const (
	AxisNetwork  Axis = "network"
	AxisChurch   Axis = "church"
	AxisActivity Axis = "activity"
)

func grantTable(axis Axis) (table, column string, err error) {
	switch axis {
	case AxisNetwork:
		return "user_network_access", "network_id", nil
	case AxisChurch:
		return "user_church_access", "church_id", nil
	case AxisActivity:
		return "user_church_activity_access", "activity_id", nil
	default:
		return "", "", fmt.Errorf("%w: unknown grant axis %q", auth.ErrInvalidInput, axis)
	}
}

// Grant records a direct grant. A grant that already exists is a conflict,
// and a target that does not exist is not found.
func (s *PGStore) Grant(ctx context.Context, axis Axis, userID, targetID string) error {
	table, column, err := grantTable(axis)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`insert into %s (user_id, %s) values ($1, $2)`, table, column)
	if _, err := s.db.ExecContext(ctx, query, userID, targetID); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return auth.ErrConflict
			case pgErrForeignKeyViolation:
				return auth.ErrNotFound
			}
		}
		return err
	}
	return nil
}

// Revoke removes a direct grant. Implied visibility through an ancestor
// grant is untouched; only the named edge goes away.
func (s *PGStore) Revoke(ctx context.Context, axis Axis, userID, targetID string) error {
	table, column, err := grantTable(axis)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`delete from %s where user_id = $1 and %s = $2`, table, column)
	res, err := s.db.ExecContext(ctx, query, userID, targetID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// Grants lists a user's direct grants per axis, without hierarchy expansion.
func (s *PGStore) Grants(ctx context.Context, userID string) (networks, churches, activities []string, err error) {
	if networks, err = s.NetworkGrants(ctx, userID); err != nil {
		return nil, nil, nil, err
	}
	if churches, err = s.ChurchGrants(ctx, userID); err != nil {
		return nil, nil, nil, err
	}
	if activities, err = s.ActivityGrants(ctx, userID); err != nil {
		return nil, nil, nil, err
	}
	return networks, churches, activities, nil
}

func collectIDs(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(parts, ", ")
}

func toAnySlice(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
