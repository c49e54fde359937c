package identity

import (
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// User represents a passkey-registered identity and its linked wallet address.
type User struct {
	ID          string
	Username    string
	EthAddress  string
	Credentials []webauthn.Credential
	CreatedAt   time.Time
}

// HasCredentials reports whether at least one passkey finished registration.
func (u User) HasCredentials() bool {
	return len(u.Credentials) > 0
}
