package contract

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the contract does not exist or does not belong to the
// requesting profile. The two cases are deliberately indistinguishable so a
// caller cannot probe for other parties' contract ids.
var ErrNotFound = errors.New("contract: not found")

// Repository provides ownership-scoped read access to contracts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetForProfile fetches a contract only if the profile is its client or
// contractor.
func (r *Repository) GetForProfile(ctx context.Context, contractID, profileID string) (Contract, error) {
	// ids arrive from the URL path; a malformed one can never match
	if _, err := uuid.Parse(contractID); err != nil {
		return Contract{}, ErrNotFound
	}

	const query = `
		SELECT id, client_id, contractor_id, terms, status::text, created_at, updated_at
		FROM contracts
		WHERE id = $1 AND (client_id = $2 OR contractor_id = $2)
	`

	var c Contract
	err := r.pool.QueryRow(ctx, query, contractID, profileID).Scan(
		&c.ID,
		&c.ClientID,
		&c.ContractorID,
		&c.Terms,
		&c.Status,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contract{}, ErrNotFound
		}
		return Contract{}, fmt.Errorf("contract: query by id: %w", err)
	}

	return c, nil
}

// ListForProfile fetches the non-terminated contracts where the profile is
// either party, newest first.
func (r *Repository) ListForProfile(ctx context.Context, profileID string) ([]Contract, error) {
	const query = `
		SELECT id, client_id, contractor_id, terms, status::text, created_at, updated_at
		FROM contracts
		WHERE (client_id = $1 OR contractor_id = $1) AND status <> 'terminated'
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, profileID)
	if err != nil {
		return nil, fmt.Errorf("contract: list: %w", err)
	}
	defer rows.Close()

	contracts := make([]Contract, 0, 8)
	for rows.Next() {
		var c Contract
		if err := rows.Scan(&c.ID, &c.ClientID, &c.ContractorID, &c.Terms, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("contract: scan: %w", err)
		}
		contracts = append(contracts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("contract: iterate: %w", err)
	}

	return contracts, nil
}
