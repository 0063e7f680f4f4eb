package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/taskdeck/apiserver/types"
)

// Identity is the per-request identity resolved from a validated token.
// It lives only for the duration of the request.
type Identity struct {
	Username string
	UserID   int
	Role     types.Role
}

// Claims is the fixed claim set embedded in every token.
type Claims struct {
	UserID int        `json:"id"`
	Role   types.Role `json:"role"`
	jwt.RegisteredClaims
}

// Codec signs and verifies tokens with a single process-wide HMAC secret.
// Tokens are stateless: the identity and role travel by value, so changes
// to the user record do not invalidate outstanding tokens before expiry.
type Codec struct {
	secret []byte
	ttl    time.Duration
}

// NewCodec constructs a Codec for the given symmetric secret and token TTL.
func NewCodec(secret string, ttl time.Duration) *Codec {
	return &Codec{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// TTL returns the configured token lifetime.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Encode issues a signed HS256 token for the identity, expiring after the
// configured TTL.
func (c *Codec) Encode(identity Identity) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: identity.UserID,
		Role:   identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Decode verifies the token signature and claims and returns the embedded
// identity. It fails with ErrTokenExpired when the expiry claim is in the
// past and ErrInvalidToken for every other defect. Expiry is checked
// explicitly against the clock: a valid signature alone does not imply
// freshness.
func (c *Codec) Decode(tokenString string) (Identity, error) {
	claims := Claims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, ErrInvalidToken
	}
	if !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	if claims.ExpiresAt == nil {
		return Identity{}, ErrInvalidToken
	}
	if !time.Now().Before(claims.ExpiresAt.Time) {
		return Identity{}, ErrTokenExpired
	}

	username := strings.TrimSpace(claims.Subject)
	if username == "" || claims.UserID < 1 {
		return Identity{}, ErrInvalidToken
	}
	role, err := types.ParseRole(string(claims.Role))
	if err != nil {
		return Identity{}, ErrInvalidToken
	}

	return Identity{
		Username: username,
		UserID:   claims.UserID,
		Role:     role,
	}, nil
}
