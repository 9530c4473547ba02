package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
	Args []any
}

// All returns the invariant checks run against live state while the actors
// race. expectedTotal is the SUM of all profile balances captured at seed
// time; settlement moves money between profiles and never mints or burns it.
func All(expectedTotal string) []Oracle {
	return []Oracle{
		{
			Name: "O1_no_negative_balance",
			SQL:  `SELECT id, balance::text FROM profiles WHERE balance < 0`,
		},
		{
			Name: "O2_paid_implies_timestamp",
			SQL:  `SELECT id FROM jobs WHERE paid = true AND paid_at IS NULL`,
		},
		{
			Name: "O3_unpaid_has_no_timestamp",
			SQL:  `SELECT id FROM jobs WHERE paid = false AND paid_at IS NOT NULL`,
		},
		{
			Name: "O4_money_conserved",
			SQL: `SELECT SUM(balance)::text FROM profiles
                  HAVING SUM(balance) <> $1::numeric`,
			Args: []any{expectedTotal},
		},
		{
			Name: "O5_ledger_consistent",
			SQL: `WITH settled AS (
                      SELECT c.client_id, c.contractor_id, j.price
                      FROM jobs j
                      JOIN contracts c ON c.id = j.contract_id
                      WHERE j.paid = true
                  ),
                  debits AS (
                      SELECT client_id AS profile_id, SUM(price) AS amt
                      FROM settled GROUP BY client_id
                  ),
                  credits AS (
                      SELECT contractor_id AS profile_id, SUM(price) AS amt
                      FROM settled GROUP BY contractor_id
                  )
                  SELECT p.id, p.balance::text
                  FROM profiles p
                  JOIN stress_baseline b ON b.profile_id = p.id
                  WHERE p.balance <> b.balance
                        - COALESCE((SELECT amt FROM debits WHERE profile_id = p.id), 0)
                        + COALESCE((SELECT amt FROM credits WHERE profile_id = p.id), 0)`,
		},
	}
}

// Run executes all oracles inside one snapshot and returns the first failure
// (name and sample row) or an empty name if all pass. A single transaction
// matters: each oracle must see the same consistent state, and settlements
// commit atomically, so any snapshot satisfies every invariant.
func Run(ctx context.Context, pool *pgxpool.Pool, expectedTotal string) (string, string, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return "", "", fmt.Errorf("oracle snapshot: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, o := range All(expectedTotal) {
		rows, err := tx.Query(ctx, o.SQL, o.Args...)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if rows.Next() {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
	}
	return "", "", nil
}
