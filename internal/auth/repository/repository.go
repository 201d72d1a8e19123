package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile is a user's profile row. Permissions is the raw JSONB column, which
// holds either an object or a JSON string with a serialized object.
type Profile struct {
	UserID          uuid.UUID
	CompanyID       uuid.UUID
	Email           string
	Role            string
	DisplayName     string
	Permissions     []byte
	ManagingAdminID *uuid.UUID
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const profileColumns = `p.user_id, p.company_id, u.email, p.role, p.display_name, p.permissions,
	p.managing_admin_id, p.created_at, p.updated_at`

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users WHERE lower(email) = lower($1)
	`, strings.TrimSpace(email)).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return user, err
}

func (r *Repository) GetUserByID(ctx context.Context, userID uuid.UUID) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users WHERE id = $1
	`, userID).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return user, err
}

func (r *Repository) GetProfile(ctx context.Context, userID uuid.UUID) (Profile, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+profileColumns+`
		FROM profiles p
		JOIN users u ON u.id = p.user_id
		WHERE p.user_id = $1
	`, userID)
	return scanProfile(row)
}

func (r *Repository) GetProfileInCompany(ctx context.Context, companyID, userID uuid.UUID) (Profile, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+profileColumns+`
		FROM profiles p
		JOIN users u ON u.id = p.user_id
		WHERE p.user_id = $1 AND p.company_id = $2
	`, userID, companyID)
	return scanProfile(row)
}

func (r *Repository) ListProfiles(ctx context.Context, companyID uuid.UUID) ([]Profile, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+profileColumns+`
		FROM profiles p
		JOIN users u ON u.id = p.user_id
		WHERE p.company_id = $1
		ORDER BY u.email
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profiles := make([]Profile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (r *Repository) UpdateDisplayName(ctx context.Context, companyID, userID uuid.UUID, displayName string) (Profile, error) {
	return r.updateProfile(ctx, `display_name = $3`, companyID, userID, displayName)
}

func (r *Repository) SetPermissions(ctx context.Context, companyID, userID uuid.UUID, permissions []byte) (Profile, error) {
	return r.updateProfile(ctx, `permissions = $3::jsonb`, companyID, userID, string(permissions))
}

func (r *Repository) updateProfile(ctx context.Context, set string, companyID, userID uuid.UUID, value any) (Profile, error) {
	row := r.pool.QueryRow(ctx, `
		WITH updated AS (
			UPDATE profiles SET `+set+`, updated_at = now()
			WHERE user_id = $1 AND company_id = $2
			RETURNING *
		)
		SELECT `+profileColumns+`
		FROM updated p
		JOIN users u ON u.id = p.user_id
	`, userID, companyID, value)
	return scanProfile(row)
}

func scanProfile(row pgx.Row) (Profile, error) {
	var p Profile
	err := row.Scan(
		&p.UserID,
		&p.CompanyID,
		&p.Email,
		&p.Role,
		&p.DisplayName,
		&p.Permissions,
		&p.ManagingAdminID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	return p, err
}
