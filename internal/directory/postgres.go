package directory

import (
	"context"
	"database/sql"
	"fmt"

	"cantus.org/internal/access"
)

// PGStore implements Service over Postgres.
type PGStore struct {
	db *sql.DB
}

var _ Service = (*PGStore)(nil)

func NewPGStore(db *sql.DB) *PGStore { return &PGStore{db: db} }

func (s *PGStore) ListNetworks(ctx context.Context) ([]Network, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, created_at
		from networks
		order by name asc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Network
	for rows.Next() {
		var n Network
		if err := rows.Scan(&n.ID, &n.Name, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PGStore) ListChurches(ctx context.Context, networkID string) ([]Church, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		select exists (select 1 from networks where id = $1)
	`, networkID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		select id, network_id, name, slug, created_at
		from churches
		where network_id = $1
		order by name asc
	`, networkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Church
	for rows.Next() {
		var c Church
		if err := rows.Scan(&c.ID, &c.NetworkID, &c.Name, &c.Slug, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PGStore) ListActivities(ctx context.Context, scope access.ScopeSet) ([]Activity, error) {
	if scope.IsEmpty() {
		return nil, nil
	}
	var args []any
	pred := scope.Predicate("ca.id", &args)
	query := fmt.Sprintf(`
		select ca.id, ca.church_id, ca.name, ca.slug, ca.type
		from church_activities ca
		where %s
		order by ca.name asc
	`, pred)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Activity
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.ChurchID, &a.Name, &a.Slug, &a.Type); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
