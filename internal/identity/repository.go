package identity

import (
	"context"
	"errors"

	"github.com/go-webauthn/webauthn/webauthn"
)

var (
	// ErrNotFound indicates the requested user does not exist.
	ErrNotFound = errors.New("user not found")

	// ErrUserExists indicates the username is already taken.
	ErrUserExists = errors.New("user exists")

	// ErrCredentialExists indicates a credential with the same identifier is
	// already registered for the user. Credential ids are generated by the
	// authenticator; a collision within one user's list is rejected rather
	// than silently duplicated.
	ErrCredentialExists = errors.New("credential exists")
)

// Repository persists users and their registered passkey credentials.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByUsername(ctx context.Context, username string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	// AddCredential appends a verified credential to the user's list.
	AddCredential(ctx context.Context, userID string, credential webauthn.Credential) error
	// UpdateCredential replaces the stored credential matching the given
	// credential's id, persisting the post-authentication signature counter.
	UpdateCredential(ctx context.Context, userID string, credential webauthn.Credential) error
	SetEthAddress(ctx context.Context, username, ethAddress string) error
}
