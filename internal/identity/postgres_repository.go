package identity

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository using PostgreSQL. Credentials are
// stored as JSON documents keyed by their base64url credential id, matching
// the shape the webauthn library marshals.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new user.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	_, err := r.db.Exec(ctx, `INSERT INTO users (id, username, eth_address, created_at)
        VALUES ($1, $2, $3, $4)`, user.ID, user.Username, user.EthAddress, user.CreatedAt.UTC())
	return err
}

// FindByUsername fetches a user and their credentials by username.
func (r *PostgresRepository) FindByUsername(ctx context.Context, username string) (User, error) {
	return r.find(ctx, `SELECT id, username, eth_address, created_at FROM users WHERE username = $1`, username)
}

// FindByID fetches a user and their credentials by id.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	return r.find(ctx, `SELECT id, username, eth_address, created_at FROM users WHERE id = $1`, id)
}

func (r *PostgresRepository) find(ctx context.Context, query, arg string) (User, error) {
	row := r.db.QueryRow(ctx, query, arg)
	var (
		user      User
		createdAt time.Time
	)
	if err := row.Scan(&user.ID, &user.Username, &user.EthAddress, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	user.CreatedAt = createdAt.UTC()

	rows, err := r.db.Query(ctx, `SELECT credential_json FROM credentials WHERE user_id = $1 ORDER BY created_at`, user.ID)
	if err != nil {
		return User{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return User{}, err
		}
		var credential webauthn.Credential
		if err := json.Unmarshal(raw, &credential); err != nil {
			return User{}, fmt.Errorf("decode credential: %w", err)
		}
		user.Credentials = append(user.Credentials, credential)
	}
	return user, rows.Err()
}

// AddCredential appends a verified credential for the user.
func (r *PostgresRepository) AddCredential(ctx context.Context, userID string, credential webauthn.Credential) error {
	raw, err := json.Marshal(credential)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `INSERT INTO credentials (id, user_id, credential_json, created_at)
        VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO NOTHING`,
		credentialKey(credential), userID, raw, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCredentialExists
	}
	return nil
}

// UpdateCredential persists the post-authentication credential state.
func (r *PostgresRepository) UpdateCredential(ctx context.Context, userID string, credential webauthn.Credential) error {
	raw, err := json.Marshal(credential)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `UPDATE credentials SET credential_json = $1, updated_at = $2
        WHERE id = $3 AND user_id = $4`, raw, time.Now().UTC(), credentialKey(credential), userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetEthAddress links a wallet address to the user.
func (r *PostgresRepository) SetEthAddress(ctx context.Context, username, ethAddress string) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET eth_address = $1 WHERE username = $2`, ethAddress, username)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func credentialKey(credential webauthn.Credential) string {
	return base64.RawURLEncoding.EncodeToString(credential.ID)
}
