package report

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ClientTotal is one row of the best-clients report.
type ClientTotal struct {
	ClientID string
	FullName string
	Paid     decimal.Decimal
}

// DefaultBestClientsLimit applies when the caller does not specify one.
const DefaultBestClientsLimit = 2

// Repository provides read-only aggregations over settled jobs.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// BestClients returns the clients that paid the most for jobs settled inside
// [start, end], descending by total.
func (r *Repository) BestClients(ctx context.Context, start, end time.Time, limit int) ([]ClientTotal, error) {
	if limit <= 0 {
		limit = DefaultBestClientsLimit
	}

	const query = `
		SELECT p.id, p.first_name || ' ' || p.last_name, SUM(j.price)::text
		FROM jobs j
		JOIN contracts c ON c.id = j.contract_id
		JOIN profiles p ON p.id = c.client_id
		WHERE j.paid = true AND j.paid_at >= $1 AND j.paid_at <= $2
		GROUP BY p.id, p.first_name, p.last_name
		ORDER BY SUM(j.price) DESC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("report: best clients: %w", err)
	}
	defer rows.Close()

	out := make([]ClientTotal, 0, limit)
	for rows.Next() {
		var (
			ct   ClientTotal
			paid string
		)
		if err := rows.Scan(&ct.ClientID, &ct.FullName, &paid); err != nil {
			return nil, fmt.Errorf("report: scan client total: %w", err)
		}
		if ct.Paid, err = decimal.NewFromString(paid); err != nil {
			return nil, fmt.Errorf("report: parse total %q: %w", paid, err)
		}
		out = append(out, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("report: iterate client totals: %w", err)
	}

	return out, nil
}
