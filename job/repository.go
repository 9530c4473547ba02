package job

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrNotFound signals the requested job does not exist.
var ErrNotFound = errors.New("job: not found")

// Repository provides read access to jobs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListUnpaidForProfile fetches unpaid jobs on non-terminated contracts where
// the profile is either party.
func (r *Repository) ListUnpaidForProfile(ctx context.Context, profileID string) ([]Job, error) {
	const query = `
		SELECT j.id, j.contract_id, j.description, j.price::text, j.paid, j.paid_at, j.created_at
		FROM jobs j
		JOIN contracts c ON c.id = j.contract_id
		WHERE j.paid = false
		  AND c.status <> 'terminated'
		  AND (c.client_id = $1 OR c.contractor_id = $1)
		ORDER BY j.created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, profileID)
	if err != nil {
		return nil, fmt.Errorf("job: list unpaid: %w", err)
	}
	defer rows.Close()

	jobs := make([]Job, 0, 8)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("job: scan unpaid: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("job: iterate unpaid: %w", err)
	}

	return jobs, nil
}

// GetForPayment gathers the settlement parameters for a job in one read:
// price, paid flag, contract linkage and status, and the client's balance.
// This is a plain read, not a lock; callers must treat it as advisory.
func (r *Repository) GetForPayment(ctx context.Context, jobID string) (PaymentContext, error) {
	// ids arrive from the URL path; a malformed one can never match
	if _, err := uuid.Parse(jobID); err != nil {
		return PaymentContext{}, ErrNotFound
	}

	const query = `
		SELECT j.id, j.price::text, j.paid,
		       c.id, c.status::text, c.client_id, c.contractor_id,
		       p.balance::text
		FROM jobs j
		JOIN contracts c ON c.id = j.contract_id
		JOIN profiles p ON p.id = c.client_id
		WHERE j.id = $1
	`

	var (
		pc      PaymentContext
		price   string
		balance string
	)
	err := r.pool.QueryRow(ctx, query, jobID).Scan(
		&pc.JobID,
		&price,
		&pc.Paid,
		&pc.ContractID,
		&pc.ContractStatus,
		&pc.ClientID,
		&pc.ContractorID,
		&balance,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PaymentContext{}, ErrNotFound
		}
		return PaymentContext{}, fmt.Errorf("job: get for payment: %w", err)
	}

	if pc.Price, err = decimal.NewFromString(price); err != nil {
		return PaymentContext{}, fmt.Errorf("job: parse price %q: %w", price, err)
	}
	if pc.ClientBalance, err = decimal.NewFromString(balance); err != nil {
		return PaymentContext{}, fmt.Errorf("job: parse client balance %q: %w", balance, err)
	}

	return pc, nil
}

func scanJob(row pgx.Row) (Job, error) {
	var (
		j     Job
		price string
	)
	if err := row.Scan(&j.ID, &j.ContractID, &j.Description, &price, &j.Paid, &j.PaidAt, &j.CreatedAt); err != nil {
		return Job{}, err
	}

	var err error
	if j.Price, err = decimal.NewFromString(price); err != nil {
		return Job{}, fmt.Errorf("job: parse price %q: %w", price, err)
	}
	return j, nil
}
