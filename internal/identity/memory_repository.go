package identity

import (
	"bytes"
	"context"
	"sync"

	"github.com/go-webauthn/webauthn/webauthn"
)

type memoryRepository struct {
	mu    sync.RWMutex
	users map[string]*User // keyed by username
	byID  map[string]string
}

// NewMemoryRepository builds a mutex-guarded in-memory user store. It is the
// default backend when no DATABASE_URL is configured; state is lost on
// process restart.
func NewMemoryRepository() Repository {
	return &memoryRepository{users: make(map[string]*User), byID: make(map[string]string)}
}

func (r *memoryRepository) Create(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.users[user.Username]; exists {
		return ErrUserExists
	}
	u := user
	r.users[user.Username] = &u
	r.byID[user.ID] = user.Username
	return nil
}

func (r *memoryRepository) FindByUsername(_ context.Context, username string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[username]
	if !ok {
		return User{}, ErrNotFound
	}
	return cloneUser(u), nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	username, ok := r.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return cloneUser(r.users[username]), nil
}

func (r *memoryRepository) AddCredential(_ context.Context, userID string, credential webauthn.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.lookupByID(userID)
	if err != nil {
		return err
	}
	for _, existing := range u.Credentials {
		if bytes.Equal(existing.ID, credential.ID) {
			return ErrCredentialExists
		}
	}
	u.Credentials = append(u.Credentials, credential)
	return nil
}

func (r *memoryRepository) UpdateCredential(_ context.Context, userID string, credential webauthn.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.lookupByID(userID)
	if err != nil {
		return err
	}
	for i, existing := range u.Credentials {
		if bytes.Equal(existing.ID, credential.ID) {
			u.Credentials[i] = credential
			return nil
		}
	}
	return ErrNotFound
}

func (r *memoryRepository) SetEthAddress(_ context.Context, username, ethAddress string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[username]
	if !ok {
		return ErrNotFound
	}
	u.EthAddress = ethAddress
	return nil
}

func (r *memoryRepository) lookupByID(id string) (*User, error) {
	username, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.users[username], nil
}

func cloneUser(u *User) User {
	out := *u
	out.Credentials = make([]webauthn.Credential, len(u.Credentials))
	copy(out.Credentials, u.Credentials)
	return out
}
