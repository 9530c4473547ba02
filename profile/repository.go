package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound signals that the profile does not exist.
	ErrNotFound = errors.New("profile: not found")
	// ErrDuplicateEmail signals that the email is already registered.
	ErrDuplicateEmail = errors.New("profile: email already exists")
)

// Repository handles data access for profiles.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (Profile, error)
	GetByEmail(ctx context.Context, email string) (Profile, error)
	GetByID(ctx context.Context, profileID string) (Profile, error)
}

// CreateParams contains write parameters for provisioning profiles.
type CreateParams struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	Profession   string
	PasswordHash string
	Type         Role
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed profile repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Create inserts a new profile with a zero balance.
func (r *PGRepository) Create(ctx context.Context, params CreateParams) (Profile, error) {
	const insertSQL = `
		INSERT INTO profiles (id, email, first_name, last_name, profession, password_hash, type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, email, first_name, last_name, profession, password_hash, type::text, balance::text, created_at, updated_at
	`

	p, err := scanProfile(r.pool.QueryRow(ctx, insertSQL,
		params.ID,
		params.Email,
		params.FirstName,
		params.LastName,
		params.Profession,
		params.PasswordHash,
		params.Type,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Profile{}, ErrDuplicateEmail
		}
		return Profile{}, fmt.Errorf("profile: create: %w", err)
	}

	return p, nil
}

// GetByEmail retrieves a profile by email address.
func (r *PGRepository) GetByEmail(ctx context.Context, email string) (Profile, error) {
	const selectSQL = `
		SELECT id, email, first_name, last_name, profession, password_hash, type::text, balance::text, created_at, updated_at
		FROM profiles
		WHERE email = $1
	`

	p, err := scanProfile(r.pool.QueryRow(ctx, selectSQL, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("profile: get by email: %w", err)
	}

	return p, nil
}

// GetByID retrieves a profile by ID, including its current balance.
func (r *PGRepository) GetByID(ctx context.Context, profileID string) (Profile, error) {
	const selectSQL = `
		SELECT id, email, first_name, last_name, profession, password_hash, type::text, balance::text, created_at, updated_at
		FROM profiles
		WHERE id = $1
	`

	p, err := scanProfile(r.pool.QueryRow(ctx, selectSQL, profileID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("profile: get by id: %w", err)
	}

	return p, nil
}

func scanProfile(row pgx.Row) (Profile, error) {
	var (
		p       Profile
		balance string
	)
	err := row.Scan(
		&p.ID,
		&p.Email,
		&p.FirstName,
		&p.LastName,
		&p.Profession,
		&p.PasswordHash,
		&p.Type,
		&balance,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return Profile{}, err
	}

	p.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return Profile{}, fmt.Errorf("profile: parse balance %q: %w", balance, err)
	}
	return p, nil
}
