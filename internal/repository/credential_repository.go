package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const ProviderPostBridge = "postbridge"

// CredentialRepository reads per-user API keys for external services.
type CredentialRepository interface {
	ActiveKey(ctx context.Context, userID, provider string) (string, error)
	Save(ctx context.Context, userID, provider, apiKey string) error
}

type SQLCredentialRepo struct {
	db *sql.DB
}

func NewSQLCredentialRepo(db *sql.DB) *SQLCredentialRepo {
	return &SQLCredentialRepo{db: db}
}

// ActiveKey returns the newest active key for the provider.
func (r *SQLCredentialRepo) ActiveKey(ctx context.Context, userID, provider string) (string, error) {
	var key string
	err := r.db.QueryRowContext(ctx, `
		SELECT api_key FROM api_credentials
		WHERE user_id = $1 AND provider = $2 AND is_active = $3
		ORDER BY created_at DESC
		LIMIT 1`, userID, provider, true,
	).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get credential: %w", err)
	}
	return key, nil
}

func (r *SQLCredentialRepo) Save(ctx context.Context, userID, provider, apiKey string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO api_credentials (id, user_id, provider, api_key, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New().String(), userID, provider, apiKey, true, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}
