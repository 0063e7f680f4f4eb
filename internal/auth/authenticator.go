package auth

import (
	"context"
	"errors"

	"github.com/taskdeck/apiserver/internal/store"
	"github.com/taskdeck/apiserver/types"
)

// UserSource is the slice of the user repository the authenticator needs.
type UserSource interface {
	GetByUsername(ctx context.Context, username string) (types.User, error)
}

// Authenticator verifies credentials against the credential store and
// issues tokens for authenticated users.
type Authenticator struct {
	users UserSource
	codec *Codec
}

// NewAuthenticator constructs an Authenticator over the given user source
// and token codec.
func NewAuthenticator(users UserSource, codec *Codec) *Authenticator {
	return &Authenticator{
		users: users,
		codec: codec,
	}
}

// Authenticate looks up the user by exact username and verifies the
// password against the stored hash. A missing user and a wrong password
// both fail with ErrInvalidCredentials so callers cannot enumerate
// usernames.
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (types.User, error) {
	user, err := a.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, err
	}
	if !VerifyPassword(password, user.PasswordHash) {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// IssueToken creates a token carrying the user's identity and role as
// stored at issuance time. Role changes after issuance do not affect
// outstanding tokens; the staleness window is bounded by the token TTL.
func (a *Authenticator) IssueToken(user types.User) (string, error) {
	return a.codec.Encode(Identity{
		Username: user.Username,
		UserID:   user.ID,
		Role:     user.Role,
	})
}
