package auth

import "time"

// Role orders user privileges. Higher values include everything below.
type Role int

const (
	RoleUnapproved Role = iota
	RoleMember
	RoleEditor
	RoleAdmin
)

// AtLeast reports whether the role meets the given minimum.
func (r Role) AtLeast(min Role) bool { return r >= min }

func (r Role) String() string {
	switch r {
	case RoleUnapproved:
		return "unapproved"
	case RoleMember:
		return "member"
	case RoleEditor:
		return "editor"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// User is an account row. Role and the primary affiliations change only
// through privileged mutation.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	NetworkID    string    `json:"network_id,omitempty"`
	ChurchID     string    `json:"church_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is the authenticated principal attached to each request.
type Identity struct {
	UserID string
	Role   Role
}

// Refresh token lifecycle states. Active is the only state a token can be
// rotated from; every other state is terminal.
const (
	TokenStatusActive  = "active"
	TokenStatusRotated = "rotated"
	TokenStatusRevoked = "revoked"
	TokenStatusExpired = "expired"
)

// RefreshToken is the persisted half of an opaque refresh token. Only the
// sha256 of the secret is stored; the raw value is returned to the client
// once and never recoverable. Tokens produced by rotation share a ChainID
// and link back via ParentID.
type RefreshToken struct {
	ID        string
	UserID    string
	ChainID   string
	ParentID  *string
	TokenHash string
	Status    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// TokenPair bundles a freshly minted access token with its refresh token.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}
