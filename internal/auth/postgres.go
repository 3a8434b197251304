package auth

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// PGStore implements Store over a *sql.DB opened with the pgx stdlib driver.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

func NewPGStore(db *sql.DB) *PGStore { return &PGStore{db: db} }

func (s *PGStore) Users(ctx context.Context) UserStore {
	return &pgUserStore{db: s.db}
}

func (s *PGStore) RefreshTokens(ctx context.Context) RefreshTokenStore {
	return &pgRefreshTokenStore{db: s.db}
}

type pgUserStore struct {
	db *sql.DB
}

func (s *pgUserStore) Create(ctx context.Context, u *User) error {
	err := s.db.QueryRowContext(ctx, `
		insert into users (id, username, password_hash, role, network_id, church_id)
		values ($1, $2, $3, $4, nullif($5, ''), nullif($6, ''))
		returning created_at
	`, u.ID, u.Username, u.PasswordHash, int(u.Role), u.NetworkID, u.ChurchID).Scan(&u.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return ErrConflict
			case pgErrForeignKeyViolation:
				return ErrNotFound
			}
		}
		return err
	}
	return nil
}

const userColumns = `id, username, password_hash, role, coalesce(network_id, ''), coalesce(church_id, ''), created_at`

func (s *pgUserStore) Find(ctx context.Context, id string) (*User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where id = $1
	`, id))
}

func (s *pgUserStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where username = $1
	`, username))
}

func (s *pgUserStore) scanOne(row *sql.Row) (*User, error) {
	var (
		u    User
		role int
	)
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.NetworkID, &u.ChurchID, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = Role(role)
	return &u, nil
}

func (s *pgUserStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `
		update users set password_hash = $2 where id = $1
	`, userID, passwordHash)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return ErrNotFound
	}
	return nil
}

type pgRefreshTokenStore struct {
	db *sql.DB
}

func (s *pgRefreshTokenStore) Create(ctx context.Context, tok *RefreshToken) error {
	err := s.db.QueryRowContext(ctx, `
		insert into refresh_tokens (id, user_id, chain_id, parent_id, token_hash, status, expires_at)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning created_at
	`, tok.ID, tok.UserID, tok.ChainID, tok.ParentID, tok.TokenHash, tok.Status, tok.ExpiresAt).Scan(&tok.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *pgRefreshTokenStore) Find(ctx context.Context, id string) (*RefreshToken, error) {
	var tok RefreshToken
	err := s.db.QueryRowContext(ctx, `
		select id, user_id, chain_id, parent_id, token_hash, status, expires_at, created_at
		from refresh_tokens
		where id = $1
	`, id).Scan(&tok.ID, &tok.UserID, &tok.ChainID, &tok.ParentID, &tok.TokenHash, &tok.Status, &tok.ExpiresAt, &tok.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

// MarkRotated is a compare-and-set on the status column. Concurrent callers
// racing over the same token resolve at the database: only one update
// matches the where clause.
func (s *pgRefreshTokenStore) MarkRotated(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		update refresh_tokens
		set status = 'rotated'
		where id = $1 and status = 'active'
	`, id)
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff == 1, nil
}

func (s *pgRefreshTokenStore) MarkExpired(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		update refresh_tokens
		set status = 'expired'
		where id = $1 and status = 'active'
	`, id)
	return err
}

func (s *pgRefreshTokenStore) ChainOwner(ctx context.Context, chainID string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		select user_id from refresh_tokens where chain_id = $1 limit 1
	`, chainID).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *pgRefreshTokenStore) RevokeChain(ctx context.Context, chainID string) error {
	_, err := s.db.ExecContext(ctx, `
		update refresh_tokens
		set status = 'revoked'
		where chain_id = $1 and status in ('active', 'rotated')
	`, chainID)
	return err
}

func (s *pgRefreshTokenStore) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		update refresh_tokens
		set status = 'revoked'
		where user_id = $1 and status in ('active', 'rotated')
	`, userID)
	return err
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
