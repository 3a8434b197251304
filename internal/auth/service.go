package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"cantus.org/internal/ids"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 24 * time.Hour * 7
)

// Service owns credentials and both token kinds: stateless signed access
// tokens and server-tracked rotating refresh tokens.
type Service struct {
	store  Store
	now    func() time.Time
	secret []byte

	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// Option configures Service behavior.
type Option func(*Service) error

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) Option {
	return func(s *Service) error {
		if v := strings.TrimSpace(issuer); v != "" {
			s.issuer = v
		}
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs Service. The signing secret comes from the startup
// configuration; there is no ambient fallback.
func NewService(store Store, secret []byte, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if len(secret) == 0 {
		return nil, errors.New("auth: signing secret is required")
	}
	svc := &Service{
		store:      store,
		now:        time.Now,
		secret:     secret,
		issuer:     "cantus",
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Register creates an account in the unapproved role. An administrator must
// raise the role before the account can see anything.
func (s *Service) Register(ctx context.Context, username, password string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &User{
		ID:           ids.New(),
		Username:     username,
		PasswordHash: hash,
		Role:         RoleUnapproved,
	}
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// VerifyCredentials checks a username/password pair. Unknown usernames and
// wrong passwords produce the same error after the same amount of work.
func (s *Service) VerifyCredentials(ctx context.Context, username, password string) (Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Identity{}, ErrInvalidCredentials
	}
	user, err := s.store.Users(ctx).FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = VerifyPassword(dummyHash, password)
			return Identity{}, ErrInvalidCredentials
		}
		return Identity{}, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return Identity{}, ErrInvalidCredentials
	}
	return Identity{UserID: user.ID, Role: user.Role}, nil
}

// SetCredential hashes and stores a new password. Overwrite semantics; no
// history is kept.
func (s *Service) SetCredential(ctx context.Context, userID, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	return s.store.Users(ctx).UpdatePassword(ctx, userID, hash)
}

// Login authenticates credentials and opens a fresh refresh-token chain.
func (s *Service) Login(ctx context.Context, username, password string) (TokenPair, Identity, error) {
	identity, err := s.VerifyCredentials(ctx, username, password)
	if err != nil {
		return TokenPair{}, Identity{}, err
	}
	user, err := s.store.Users(ctx).Find(ctx, identity.UserID)
	if err != nil {
		return TokenPair{}, Identity{}, err
	}
	pair, err := s.mintTokens(ctx, user, ids.New(), nil)
	if err != nil {
		return TokenPair{}, Identity{}, err
	}
	return pair, identity, nil
}

// Authenticate validates an access token without touching the store.
func (s *Service) Authenticate(ctx context.Context, token string) (Identity, error) {
	claims, err := s.verifyAccessToken(token)
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: claims.Subject, Role: Role(claims.Role)}, nil
}

// Rotate exchanges a refresh token for a new pair on the same chain.
//
// State machine per chain link: active -> rotated (normal path) or
// active -> revoked/expired (terminal). Presenting a link that is already
// rotated is treated as replay of a stolen token: the whole chain is revoked
// before the caller sees ErrTokenReuse. That side effect is mandatory and
// happens even when minting the replacement would have failed.
func (s *Service) Rotate(ctx context.Context, presented string) (TokenPair, error) {
	tokenID, secret, err := splitRefreshToken(presented)
	if err != nil {
		return TokenPair{}, ErrTokenInvalid
	}
	tokens := s.store.RefreshTokens(ctx)
	record, err := tokens.Find(ctx, tokenID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrTokenInvalid
		}
		return TokenPair{}, err
	}
	if !secureCompareHash(record.TokenHash, secret) {
		return TokenPair{}, ErrTokenInvalid
	}

	switch record.Status {
	case TokenStatusRotated:
		if err := tokens.RevokeChain(ctx, record.ChainID); err != nil {
			return TokenPair{}, err
		}
		return TokenPair{}, ErrTokenReuse
	case TokenStatusRevoked, TokenStatusExpired:
		return TokenPair{}, ErrTokenInvalid
	}

	if s.now().After(record.ExpiresAt) {
		_ = tokens.MarkExpired(ctx, record.ID)
		return TokenPair{}, ErrTokenExpired
	}

	// Single conditional update; the loser of a concurrent rotation race
	// sees won=false and lands on the reuse path.
	won, err := tokens.MarkRotated(ctx, record.ID)
	if err != nil {
		return TokenPair{}, err
	}
	if !won {
		if err := tokens.RevokeChain(ctx, record.ChainID); err != nil {
			return TokenPair{}, err
		}
		return TokenPair{}, ErrTokenReuse
	}

	user, err := s.store.Users(ctx).Find(ctx, record.UserID)
	if err != nil {
		return TokenPair{}, err
	}
	return s.mintTokens(ctx, user, record.ChainID, &record.ID)
}

// Logout revokes the chain of the presented refresh token. Unknown tokens
// are ignored; logout is idempotent.
func (s *Service) Logout(ctx context.Context, presented string) error {
	tokenID, secret, err := splitRefreshToken(presented)
	if err != nil {
		return nil
	}
	tokens := s.store.RefreshTokens(ctx)
	record, err := tokens.Find(ctx, tokenID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if !secureCompareHash(record.TokenHash, secret) {
		return nil
	}
	return tokens.RevokeChain(ctx, record.ChainID)
}

// Revoke revokes one refresh chain after checking it belongs to the user.
func (s *Service) Revoke(ctx context.Context, userID, chainID string) error {
	tokens := s.store.RefreshTokens(ctx)
	owner, err := tokens.ChainOwner(ctx, chainID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if owner != userID {
		return ErrNotFound
	}
	return tokens.RevokeChain(ctx, chainID)
}

// RevokeAll revokes every active refresh chain belonging to the user.
func (s *Service) RevokeAll(ctx context.Context, userID string) error {
	return s.store.RefreshTokens(ctx).RevokeAllForUser(ctx, userID)
}

func (s *Service) mintTokens(ctx context.Context, user *User, chainID string, parentID *string) (TokenPair, error) {
	now := s.now()
	accessToken, accessExp, err := s.signAccessToken(user, now)
	if err != nil {
		return TokenPair{}, err
	}
	refreshValue, record, err := s.generateRefreshToken(user.ID, chainID, parentID, now)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.RefreshTokens(ctx).Create(ctx, record); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshValue,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: record.ExpiresAt,
	}, nil
}

func (s *Service) generateRefreshToken(userID, chainID string, parentID *string, now time.Time) (string, *RefreshToken, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", nil, err
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)
	tokenID := ids.New()
	sum := sha256.Sum256([]byte(secret))
	record := &RefreshToken{
		ID:        tokenID,
		UserID:    userID,
		ChainID:   chainID,
		ParentID:  parentID,
		TokenHash: hex.EncodeToString(sum[:]),
		Status:    TokenStatusActive,
		ExpiresAt: now.Add(s.refreshTTL),
	}
	return tokenID + "." + secret, record, nil
}

func splitRefreshToken(raw string) (id, secret string, err error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid refresh token format")
	}
	return parts[0], parts[1], nil
}

func secureCompareHash(expectedHash, secret string) bool {
	sum := sha256.Sum256([]byte(secret))
	actual := hex.EncodeToString(sum[:])
	if len(expectedHash) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expectedHash), []byte(actual)) == 1
}
