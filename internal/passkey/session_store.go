package passkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/redis/go-redis/v9"
)

// SessionKind distinguishes registration ceremonies from authentication ones.
type SessionKind string

const (
	SessionKindRegistration SessionKind = "registration"
	SessionKindLogin        SessionKind = "login"
)

// Session holds the server-side ceremony state between the options and verify
// phases. At most one session exists per username; issuing a new challenge
// overwrites any prior unconsumed one.
type Session struct {
	Kind      SessionKind          `json:"kind"`
	UserID    string               `json:"user_id"`
	Data      webauthn.SessionData `json:"data"`
	ExpiresAt time.Time            `json:"expires_at"`
}

// ErrNoChallenge indicates no outstanding ceremony session exists for the user.
var ErrNoChallenge = errors.New("no outstanding challenge")

// SessionStore persists ceremony sessions keyed by username.
type SessionStore interface {
	Put(ctx context.Context, username string, session Session) error
	Get(ctx context.Context, username string) (Session, error)
	Delete(ctx context.Context, username string) error
}

type memorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	now      func() time.Time
}

// NewMemorySessionStore builds the default in-process session store.
func NewMemorySessionStore() SessionStore {
	return &memorySessionStore{sessions: make(map[string]Session), now: time.Now}
}

func (s *memorySessionStore) Put(_ context.Context, username string, session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[username] = session
	return nil
}

func (s *memorySessionStore) Get(_ context.Context, username string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[username]
	if !ok {
		return Session{}, ErrNoChallenge
	}
	if session.ExpiresAt.Before(s.now()) {
		delete(s.sessions, username)
		return Session{}, ErrNoChallenge
	}
	return session, nil
}

func (s *memorySessionStore) Delete(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, username)
	return nil
}

const redisSessionPrefix = "passkey:session:v1:"

type redisSessionStore struct {
	client *redis.Client
}

// NewRedisSessionStore stores ceremony sessions in Redis so challenges survive
// process restarts and are shared across replicas.
func NewRedisSessionStore(client *redis.Client) SessionStore {
	return &redisSessionStore{client: client}
}

func (s *redisSessionStore) Put(ctx context.Context, username string, session Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired")
	}
	return s.client.Set(ctx, redisSessionPrefix+username, payload, ttl).Err()
}

func (s *redisSessionStore) Get(ctx context.Context, username string) (Session, error) {
	raw, err := s.client.Get(ctx, redisSessionPrefix+username).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrNoChallenge
		}
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	return session, nil
}

func (s *redisSessionStore) Delete(ctx context.Context, username string) error {
	return s.client.Del(ctx, redisSessionPrefix+username).Err()
}
