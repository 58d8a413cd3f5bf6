package utils

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Bearer token verification failures.  They are kept apart so callers can
// tell the client whether to log in again or to fix the token it sent.
var (
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenMalformed        = errors.New("token malformed")
	ErrTokenSignatureInvalid = errors.New("token signature invalid")
)

// Identity is the set of facts a bearer token vouches for.
type Identity struct {
	UserID        uint64
	Email         string
	Username      string
	EmailVerified bool
}

// Claims is the JWT payload.  sub carries the user id as a string as well, for
// clients that only look at registered claims.
type Claims struct {
	UserID        uint64 `json:"userId"`
	Email         string `json:"email"`
	Username      string `json:"usuario"`
	EmailVerified bool   `json:"emailVerificado"`
	jwt.RegisteredClaims
}

func (c *Claims) Identity() Identity {
	return Identity{UserID: c.UserID, Email: c.Email, Username: c.Username, EmailVerified: c.EmailVerified}
}

// IssuedToken is a signed bearer token with its validity window.
type IssuedToken struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenIssuer signs and verifies HS256 bearer tokens with one process-wide
// secret.  There is no revocation: a token stays valid until it expires.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL is the default lifetime used by IssueDefault.
func (i *TokenIssuer) TTL() time.Duration { return i.ttl }

// IssueDefault issues a token with the configured lifetime.
func (i *TokenIssuer) IssueDefault(id Identity) (IssuedToken, error) {
	return i.Issue(id, i.ttl)
}

// Issue signs a token for id that expires ttl from now.  Every token gets a
// random jti so two tokens issued in the same second still differ.
func (i *TokenIssuer) Issue(id Identity, ttl time.Duration) (IssuedToken, error) {
	now := i.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		UserID:        id.UserID,
		Email:         id.Email,
		Username:      id.Username,
		EmailVerified: id.EmailVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatUint(id.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{Token: signed, IssuedAt: now, ExpiresAt: exp}, nil
}

// Verify parses raw and returns its claims, or one of ErrTokenExpired,
// ErrTokenMalformed or ErrTokenSignatureInvalid.
func (i *TokenIssuer) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenSignatureInvalid
		default:
			return nil, ErrTokenMalformed
		}
	}
	if !tok.Valid || claims.UserID == 0 {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}
