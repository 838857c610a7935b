package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind distinguishes access tokens from refresh tokens. Each kind is signed
// with its own secret, so a token of one kind never verifies as the other.
type Kind string

const (
	KindAccess  Kind = "ACCESS"
	KindRefresh Kind = "REFRESH"
)

// IssuedAtPrecision is the resolution of the iat claim. Global invalidation compares against it.
const IssuedAtPrecision = time.Millisecond

func init() {
	// Serialise NumericDate at microseconds so a millisecond iat survives the float64 round trip
	// in jwt parsing; IssuedAtTime rounds back to IssuedAtPrecision.
	jwt.TimePrecision = time.Microsecond
}

// ErrInvalidToken is returned when a token is malformed, has a bad signature, or is expired.
// The cause is deliberately not distinguished.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims holds the JWT claims shared by access and refresh tokens.
// Subject is the principal id; SessionID is shared by both tokens of a pair.
type Claims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

// PrincipalID returns the subject claim.
func (c *Claims) PrincipalID() string { return c.Subject }

// IssuedAtTime returns iat at IssuedAtPrecision, or the zero time when absent.
func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time.Round(IssuedAtPrecision)
}

// Complete reports whether the claims carry principal id, session id and iat.
func (c *Claims) Complete() bool {
	return c.Subject != "" && c.SessionID != "" && c.IssuedAt != nil
}

// TokenPair is the result of a successful login: an access and a refresh token
// bound to the same session id and issue time.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	Level            Level
	SessionID        string
	IssuedAt         time.Time
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// TokenProvider signs and parses HS256 tokens with the secrets of a SignatureAuthority.
type TokenProvider struct {
	authority  *SignatureAuthority
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenProvider returns a TokenProvider. issuer is set on every token and required on parse.
func NewTokenProvider(authority *SignatureAuthority, issuer string, accessTTL, refreshTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		authority:  authority,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// WithClock returns a copy of p that reads the current time from now. Issue times and
// expiry checks both use it.
func (p *TokenProvider) WithClock(now func() time.Time) *TokenProvider {
	cp := *p
	cp.now = now
	return &cp
}

// AccessTTL returns the configured access token lifetime.
func (p *TokenProvider) AccessTTL() time.Duration { return p.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (p *TokenProvider) RefreshTTL() time.Duration { return p.refreshTTL }

// IssuePair signs an access and a refresh token for principalID at the given level.
// Both tokens carry the same sid and iat; iat has millisecond precision.
func (p *TokenProvider) IssuePair(principalID string, level Level, sessionID string) (*TokenPair, error) {
	secrets, err := p.authority.SecretsFor(level)
	if err != nil {
		return nil, err
	}
	now := p.now().UTC().Truncate(IssuedAtPrecision)
	pair := &TokenPair{
		Level:            level,
		SessionID:        sessionID,
		IssuedAt:         now,
		AccessExpiresAt:  now.Add(p.accessTTL),
		RefreshExpiresAt: now.Add(p.refreshTTL),
	}
	pair.AccessToken, err = p.sign(secrets.Access, principalID, sessionID, now, pair.AccessExpiresAt)
	if err != nil {
		return nil, err
	}
	pair.RefreshToken, err = p.sign(secrets.Refresh, principalID, sessionID, now, pair.RefreshExpiresAt)
	if err != nil {
		return nil, err
	}
	return pair, nil
}

func (p *TokenProvider) sign(key []byte, principalID, sessionID string, iat, exp time.Time) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   principalID,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		SessionID: sessionID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// Parse verifies signature, expiry and issuer of tokenString using the secret for level and kind.
// Returns ErrUnknownSignatureLevel for an unconfigured level and ErrInvalidToken for every other failure.
// Claim completeness is left to the caller (see Claims.Complete).
func (p *TokenProvider) Parse(tokenString string, level Level, kind Kind) (*Claims, error) {
	secrets, err := p.authority.SecretsFor(level)
	if err != nil {
		return nil, err
	}
	key := secrets.For(kind)
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(p.issuer),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
