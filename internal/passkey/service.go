package passkey

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/passwallet/passwallet/internal/identity"
)

var (
	// ErrVerificationFailed indicates the ceremony response did not verify
	// against the stored challenge. The session is left in place so the
	// client may retry within the same ceremony.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrCredentialNotFound indicates the responding credential id is not in
	// the user's registered list.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrClonedAuthenticator indicates the authenticator reported a
	// non-increasing signature counter, the standard clone-detection signal.
	ErrClonedAuthenticator = errors.New("cloned authenticator detected")
)

// Config carries the relying-party identity and ceremony policy.
type Config struct {
	RPID         string
	RPName       string
	RPOrigin     string
	ChallengeTTL time.Duration
}

// Service mediates the two-phase registration and authentication flows
// between the user store, the session store and the webauthn library.
type Service struct {
	cfg      Config
	users    identity.Repository
	sessions SessionStore
	provider Provider
	parser   Parser
	initErr  error
	now      func() time.Time
}

// NewService builds the ceremony orchestrator. A library initialization
// failure is retained and surfaced on first use rather than panicking.
func NewService(cfg Config, users identity.Repository, sessions SessionStore) *Service {
	provider, err := webauthn.New(&webauthn.Config{
		RPDisplayName:         cfg.RPName,
		RPID:                  cfg.RPID,
		RPOrigins:             []string{cfg.RPOrigin},
		AttestationPreference: protocol.PreferNoAttestation,
	})
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = 5 * time.Minute
	}
	return &Service{
		cfg:      cfg,
		users:    users,
		sessions: sessions,
		provider: provider,
		parser:   defaultParser{},
		initErr:  err,
		now:      time.Now,
	}
}

type webauthnUser struct {
	user identity.User
}

func (u webauthnUser) WebAuthnID() []byte                         { return []byte(u.user.ID) }
func (u webauthnUser) WebAuthnName() string                       { return u.user.Username }
func (u webauthnUser) WebAuthnDisplayName() string                { return u.user.Username }
func (u webauthnUser) WebAuthnIcon() string                       { return "" }
func (u webauthnUser) WebAuthnCredentials() []webauthn.Credential { return u.user.Credentials }

// BeginRegistration creates the user on first sight and issues a fresh
// registration challenge, replacing any prior outstanding session.
func (s *Service) BeginRegistration(ctx context.Context, username string) (*protocol.CredentialCreation, error) {
	if s.initErr != nil {
		return nil, fmt.Errorf("passkey configuration: %w", s.initErr)
	}

	user, err := s.users.FindByUsername(ctx, username)
	if errors.Is(err, identity.ErrNotFound) {
		user = identity.User{ID: uuid.NewString(), Username: username, CreatedAt: s.now().UTC()}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
	} else if err != nil {
		return nil, err
	}

	opts := []webauthn.RegistrationOption{
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
	}
	if len(user.Credentials) > 0 {
		exclusions := make([]protocol.CredentialDescriptor, 0, len(user.Credentials))
		for _, cred := range user.Credentials {
			exclusions = append(exclusions, cred.Descriptor())
		}
		opts = append(opts, webauthn.WithExclusions(exclusions))
	}

	creation, data, err := s.provider.BeginRegistration(webauthnUser{user: user}, opts...)
	if err != nil {
		return nil, fmt.Errorf("begin registration: %w", err)
	}

	session := Session{
		Kind:      SessionKindRegistration,
		UserID:    user.ID,
		Data:      *data,
		ExpiresAt: s.now().Add(s.cfg.ChallengeTTL),
	}
	if err := s.sessions.Put(ctx, username, session); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return creation, nil
}

// FinishRegistration verifies the browser's attestation response against the
// stored challenge and, on success, appends the new credential and consumes
// the session.
func (s *Service) FinishRegistration(ctx context.Context, username string, response []byte) error {
	if s.initErr != nil {
		return fmt.Errorf("passkey configuration: %w", s.initErr)
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return err
	}
	session, err := s.loadSession(ctx, username, SessionKindRegistration)
	if err != nil {
		return err
	}

	parsed, err := s.parser.ParseCredentialCreationResponseBytes(response)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	credential, err := s.provider.CreateCredential(webauthnUser{user: user}, session.Data, parsed)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	if err := s.users.AddCredential(ctx, user.ID, *credential); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	return s.sessions.Delete(ctx, username)
}

// BeginLogin issues an authentication challenge restricted to the user's
// registered credential ids.
func (s *Service) BeginLogin(ctx context.Context, username string) (*protocol.CredentialAssertion, error) {
	if s.initErr != nil {
		return nil, fmt.Errorf("passkey configuration: %w", s.initErr)
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	assertion, data, err := s.provider.BeginLogin(webauthnUser{user: user})
	if err != nil {
		return nil, fmt.Errorf("begin login: %w", err)
	}

	session := Session{
		Kind:      SessionKindLogin,
		UserID:    user.ID,
		Data:      *data,
		ExpiresAt: s.now().Add(s.cfg.ChallengeTTL),
	}
	if err := s.sessions.Put(ctx, username, session); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return assertion, nil
}

// FinishLogin verifies the assertion response, rejects clone-detection
// signals, persists the updated signature counter and consumes the session.
func (s *Service) FinishLogin(ctx context.Context, username string, response []byte) (identity.User, error) {
	if s.initErr != nil {
		return identity.User{}, fmt.Errorf("passkey configuration: %w", s.initErr)
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return identity.User{}, err
	}
	session, err := s.loadSession(ctx, username, SessionKindLogin)
	if err != nil {
		return identity.User{}, err
	}

	parsed, err := s.parser.ParseCredentialRequestResponseBytes(response)
	if err != nil {
		return identity.User{}, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	if !knownCredential(user, parsed.RawID) {
		return identity.User{}, ErrCredentialNotFound
	}

	credential, err := s.provider.ValidateLogin(webauthnUser{user: user}, session.Data, parsed)
	if err != nil {
		return identity.User{}, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	if credential.Authenticator.CloneWarning {
		// A rolled-back counter means a second authenticator holds the same
		// key material. Consume the session so a fresh ceremony is required.
		_ = s.sessions.Delete(ctx, username)
		return identity.User{}, ErrClonedAuthenticator
	}

	if err := s.users.UpdateCredential(ctx, user.ID, *credential); err != nil {
		return identity.User{}, fmt.Errorf("update credential: %w", err)
	}
	if err := s.sessions.Delete(ctx, username); err != nil {
		return identity.User{}, err
	}
	return s.users.FindByUsername(ctx, username)
}

// UserInfo returns the stored user record.
func (s *Service) UserInfo(ctx context.Context, username string) (identity.User, error) {
	return s.users.FindByUsername(ctx, username)
}

// SetEthAddress links a wallet address to the user.
func (s *Service) SetEthAddress(ctx context.Context, username, ethAddress string) error {
	return s.users.SetEthAddress(ctx, username, ethAddress)
}

func (s *Service) loadSession(ctx context.Context, username string, kind SessionKind) (Session, error) {
	session, err := s.sessions.Get(ctx, username)
	if err != nil {
		return Session{}, err
	}
	if session.Kind != kind {
		return Session{}, ErrNoChallenge
	}
	if session.ExpiresAt.Before(s.now()) {
		_ = s.sessions.Delete(ctx, username)
		return Session{}, ErrNoChallenge
	}
	return session, nil
}

func knownCredential(user identity.User, rawID []byte) bool {
	for _, credential := range user.Credentials {
		if bytes.Equal(credential.ID, rawID) {
			return true
		}
	}
	return false
}
