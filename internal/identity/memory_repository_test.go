package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/go-webauthn/webauthn/webauthn"
)

func TestMemoryRepositoryCreateAndFind(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	user := User{ID: "user-1", Username: "alice"}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, User{ID: "user-2", Username: "alice"}); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}

	found, err := repo.FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("find by username: %v", err)
	}
	if found.ID != "user-1" {
		t.Fatalf("expected user-1, got %s", found.ID)
	}

	byID, err := repo.FindByID(ctx, "user-1")
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if byID.Username != "alice" {
		t.Fatalf("expected alice, got %s", byID.Username)
	}

	if _, err := repo.FindByUsername(ctx, "bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepositoryCredentials(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	if err := repo.Create(ctx, User{ID: "user-1", Username: "alice"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	credential := webauthn.Credential{ID: []byte("cred-1"), PublicKey: []byte("pk")}
	if err := repo.AddCredential(ctx, "user-1", credential); err != nil {
		t.Fatalf("add credential: %v", err)
	}
	if err := repo.AddCredential(ctx, "user-1", credential); !errors.Is(err, ErrCredentialExists) {
		t.Fatalf("expected ErrCredentialExists, got %v", err)
	}

	credential.Authenticator.SignCount = 7
	if err := repo.UpdateCredential(ctx, "user-1", credential); err != nil {
		t.Fatalf("update credential: %v", err)
	}

	user, err := repo.FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(user.Credentials) != 1 {
		t.Fatalf("expected 1 credential, got %d", len(user.Credentials))
	}
	if user.Credentials[0].Authenticator.SignCount != 7 {
		t.Fatalf("expected updated sign count, got %d", user.Credentials[0].Authenticator.SignCount)
	}

	unknown := webauthn.Credential{ID: []byte("cred-9")}
	if err := repo.UpdateCredential(ctx, "user-1", unknown); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepositoryCloneIsolation(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	if err := repo.Create(ctx, User{ID: "user-1", Username: "alice"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.AddCredential(ctx, "user-1", webauthn.Credential{ID: []byte("cred-1")}); err != nil {
		t.Fatalf("add credential: %v", err)
	}

	user, _ := repo.FindByUsername(ctx, "alice")
	user.Credentials[0].ID = []byte("mutated")

	again, _ := repo.FindByUsername(ctx, "alice")
	if string(again.Credentials[0].ID) != "cred-1" {
		t.Fatalf("stored credential mutated through returned copy")
	}
}

func TestMemoryRepositorySetEthAddress(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	if err := repo.Create(ctx, User{ID: "user-1", Username: "alice"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.SetEthAddress(ctx, "alice", "0x1111111111111111111111111111111111111111"); err != nil {
		t.Fatalf("set eth address: %v", err)
	}
	if err := repo.SetEthAddress(ctx, "bob", "0x1111111111111111111111111111111111111111"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	user, _ := repo.FindByUsername(ctx, "alice")
	if user.EthAddress == "" {
		t.Fatalf("expected eth address to be set")
	}
}
