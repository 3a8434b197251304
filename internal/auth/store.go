package auth

import "context"

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Users(ctx context.Context) UserStore
	RefreshTokens(ctx context.Context) RefreshTokenStore
}

// UserStore manages user accounts and credentials.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

// RefreshTokenStore manages the refresh-token lifecycle.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	Find(ctx context.Context, id string) (*RefreshToken, error)

	// MarkRotated flips the token from active to rotated and reports
	// whether this call won. Exactly one of any concurrent callers gets
	// true; the rest must treat the token as already rotated.
	MarkRotated(ctx context.Context, id string) (bool, error)

	MarkExpired(ctx context.Context, id string) error

	// ChainOwner returns the user a chain belongs to, ErrNotFound when the
	// chain has no tokens.
	ChainOwner(ctx context.Context, chainID string) (string, error)

	RevokeChain(ctx context.Context, chainID string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}
