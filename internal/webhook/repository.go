// Package webhook captures inbound website form submissions as leads. Each
// tenant authenticates its forms with API keys that may be restricted to a
// set of origin domains.
package webhook

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrAPIKeyNotFound = errors.New("webhook API key not found")

// APIKey is a stored webhook API key. Only the hash of the key is kept.
type APIKey struct {
	ID             uuid.UUID
	CompanyID      uuid.UUID
	Name           string
	KeyHash        string
	KeyPrefix      string
	AllowedDomains []string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// KeyStore persists API keys and answers the duplicate-lead question.
type KeyStore interface {
	Create(ctx context.Context, companyID uuid.UUID, name, keyHash, keyPrefix string, allowedDomains []string) (APIKey, error)
	GetByHash(ctx context.Context, keyHash string) (APIKey, error)
	ListByCompany(ctx context.Context, companyID uuid.UUID) ([]APIKey, error)
	Revoke(ctx context.Context, keyID, companyID uuid.UUID) error
	FindRecentDuplicateLead(ctx context.Context, companyID uuid.UUID, email, phone string, window time.Duration) (*uuid.UUID, error)
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GenerateAPIKey creates a random key and returns the plaintext, its hash and
// a display prefix. The plaintext is shown once and never stored.
func GenerateAPIKey() (plaintext, hash, prefix string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", "", err
	}
	plaintext = "whk_" + hex.EncodeToString(raw)
	return plaintext, HashKey(plaintext), plaintext[:12], nil
}

// HashKey hashes a plaintext API key for lookup.
func HashKey(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}

const apiKeyColumns = `id, company_id, name, key_hash, key_prefix, allowed_domains, is_active, created_at, updated_at`

func scanAPIKey(row pgx.Row) (APIKey, error) {
	var key APIKey
	err := row.Scan(
		&key.ID, &key.CompanyID, &key.Name, &key.KeyHash, &key.KeyPrefix,
		&key.AllowedDomains, &key.IsActive, &key.CreatedAt, &key.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return APIKey{}, ErrAPIKeyNotFound
	}
	return key, err
}

func (r *Repository) Create(ctx context.Context, companyID uuid.UUID, name, keyHash, keyPrefix string, allowedDomains []string) (APIKey, error) {
	return scanAPIKey(r.pool.QueryRow(ctx, `
		INSERT INTO webhook_api_keys (company_id, name, key_hash, key_prefix, allowed_domains)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+apiKeyColumns,
		companyID, name, keyHash, keyPrefix, allowedDomains))
}

// GetByHash returns an active key by hash.
func (r *Repository) GetByHash(ctx context.Context, keyHash string) (APIKey, error) {
	return scanAPIKey(r.pool.QueryRow(ctx, `
		SELECT `+apiKeyColumns+`
		FROM webhook_api_keys
		WHERE key_hash = $1 AND is_active = true
	`, keyHash))
}

func (r *Repository) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]APIKey, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+apiKeyColumns+`
		FROM webhook_api_keys
		WHERE company_id = $1
		ORDER BY created_at DESC
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]APIKey, 0)
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (r *Repository) Revoke(ctx context.Context, keyID, companyID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE webhook_api_keys SET is_active = false, updated_at = now()
		WHERE id = $1 AND company_id = $2
	`, keyID, companyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}

// FindRecentDuplicateLead returns the newest lead in the tenant created within
// window that shares the email or phone, or nil.
func (r *Repository) FindRecentDuplicateLead(ctx context.Context, companyID uuid.UUID, email, phone string, window time.Duration) (*uuid.UUID, error) {
	if email == "" && phone == "" {
		return nil, nil
	}

	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		SELECT id FROM leads
		WHERE company_id = $1
		  AND created_at > now() - make_interval(secs => $4)
		  AND ((NULLIF($2, '') IS NOT NULL AND lower(email) = lower($2))
		    OR (NULLIF($3, '') IS NOT NULL AND phone = $3))
		ORDER BY created_at DESC
		LIMIT 1
	`, companyID, email, phone, window.Seconds()).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

var _ KeyStore = (*Repository)(nil)
