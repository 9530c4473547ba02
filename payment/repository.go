package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// ErrTransferConflict signals the guard predicate failed inside the atomic
// scope: the job was paid, the contract terminated, or the balance drained
// between the caller's advisory read and the locked re-check. The caller is
// expected to re-read current state and re-evaluate before retrying once.
var ErrTransferConflict = errors.New("payment: transfer conflict")

// Repository implements the ledger store's atomic transfer primitive.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Transfer executes the settlement triple-write inside the caller's
// transaction: debit client, credit contractor, mark the job paid. The job
// row is locked first, then both profile rows in id order, so concurrent
// settlements serialize per job and cannot deadlock across jobs. All guard
// conditions are re-validated under those locks; any violation returns
// ErrTransferConflict and the caller's rollback discards every effect.
func (r *Repository) Transfer(ctx context.Context, tx pgx.Tx, params TransferParams) (TransferOutcome, error) {
	if params.JobID == "" || params.ClientID == "" || params.ContractorID == "" {
		return TransferOutcome{}, fmt.Errorf("payment: transfer params incomplete")
	}
	if !params.Amount.IsPositive() {
		return TransferOutcome{}, fmt.Errorf("payment: transfer amount %s not positive", params.Amount)
	}

	if err := r.lockAndGuardJob(ctx, tx, params); err != nil {
		return TransferOutcome{}, err
	}

	if err := r.lockProfilesAndGuardBalance(ctx, tx, params); err != nil {
		return TransferOutcome{}, err
	}

	var outcome TransferOutcome
	var err error

	// Debit keeps the balance >= amount predicate in the statement as a
	// compare-and-swap belt under the row lock.
	const debitSQL = `
		UPDATE profiles
		SET balance = balance - $2::numeric, updated_at = now()
		WHERE id = $1 AND balance >= $2::numeric
		RETURNING balance::text
	`
	var debited string
	if err := tx.QueryRow(ctx, debitSQL, params.ClientID, params.Amount.String()).Scan(&debited); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TransferOutcome{}, fmt.Errorf("%w: client balance below amount", ErrTransferConflict)
		}
		return TransferOutcome{}, fmt.Errorf("payment: debit client: %w", err)
	}
	if outcome.ClientBalance, err = decimal.NewFromString(debited); err != nil {
		return TransferOutcome{}, fmt.Errorf("payment: parse debited balance %q: %w", debited, err)
	}

	const creditSQL = `
		UPDATE profiles
		SET balance = balance + $2::numeric, updated_at = now()
		WHERE id = $1
		RETURNING balance::text
	`
	var credited string
	if err := tx.QueryRow(ctx, creditSQL, params.ContractorID, params.Amount.String()).Scan(&credited); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TransferOutcome{}, fmt.Errorf("payment: contractor %s missing", params.ContractorID)
		}
		return TransferOutcome{}, fmt.Errorf("payment: credit contractor: %w", err)
	}
	if outcome.ContractorBalance, err = decimal.NewFromString(credited); err != nil {
		return TransferOutcome{}, fmt.Errorf("payment: parse credited balance %q: %w", credited, err)
	}

	// The paid flag is the commit gate: exactly one transaction can flip it.
	const markPaidSQL = `
		UPDATE jobs
		SET paid = true, paid_at = now()
		WHERE id = $1 AND paid = false
		RETURNING paid_at
	`
	if err := tx.QueryRow(ctx, markPaidSQL, params.JobID).Scan(&outcome.PaidAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TransferOutcome{}, fmt.Errorf("%w: job already paid", ErrTransferConflict)
		}
		return TransferOutcome{}, fmt.Errorf("payment: mark job paid: %w", err)
	}

	return outcome, nil
}

// lockAndGuardJob takes the per-job lock and re-validates the paid flag,
// contract status, and party linkage under it.
func (r *Repository) lockAndGuardJob(ctx context.Context, tx pgx.Tx, params TransferParams) error {
	const lockSQL = `
		SELECT j.paid, c.status::text, c.client_id, c.contractor_id
		FROM jobs j
		JOIN contracts c ON c.id = j.contract_id
		WHERE j.id = $1
		FOR UPDATE OF j
	`

	var (
		paid         bool
		status       string
		clientID     string
		contractorID string
	)
	if err := tx.QueryRow(ctx, lockSQL, params.JobID).Scan(&paid, &status, &clientID, &contractorID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: job missing", ErrTransferConflict)
		}
		return fmt.Errorf("payment: lock job: %w", err)
	}

	if paid {
		return fmt.Errorf("%w: job already paid", ErrTransferConflict)
	}
	if status == "terminated" {
		return fmt.Errorf("%w: contract terminated", ErrTransferConflict)
	}
	if clientID != params.ClientID || contractorID != params.ContractorID {
		return fmt.Errorf("payment: transfer parties do not match contract")
	}

	return nil
}

// lockProfilesAndGuardBalance locks both balance rows in id order and
// re-checks sufficiency under the lock.
func (r *Repository) lockProfilesAndGuardBalance(ctx context.Context, tx pgx.Tx, params TransferParams) error {
	const lockSQL = `
		SELECT id, balance::text
		FROM profiles
		WHERE id = $1 OR id = $2
		ORDER BY id
		FOR UPDATE
	`

	rows, err := tx.Query(ctx, lockSQL, params.ClientID, params.ContractorID)
	if err != nil {
		return fmt.Errorf("payment: lock profiles: %w", err)
	}
	defer rows.Close()

	var (
		locked        int
		clientBalance decimal.Decimal
		haveClient    bool
	)
	for rows.Next() {
		var (
			id      string
			balance string
		)
		if err := rows.Scan(&id, &balance); err != nil {
			return fmt.Errorf("payment: scan locked profile: %w", err)
		}
		locked++
		if id == params.ClientID {
			if clientBalance, err = decimal.NewFromString(balance); err != nil {
				return fmt.Errorf("payment: parse locked balance %q: %w", balance, err)
			}
			haveClient = true
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("payment: iterate locked profiles: %w", err)
	}
	if locked != 2 || !haveClient {
		return fmt.Errorf("payment: settlement parties missing (locked %d rows)", locked)
	}

	if clientBalance.LessThan(params.Amount) {
		return fmt.Errorf("%w: client balance %s below amount %s", ErrTransferConflict, clientBalance, params.Amount)
	}

	return nil
}

// transientPGCode reports whether a Postgres error code indicates contention
// or timeout that is safe to retry.
func transientPGCode(code string) bool {
	switch code {
	case "40001", // serialization_failure
		"40P01", // deadlock_detected
		"55P03", // lock_not_available
		"57014", // query_canceled (statement timeout)
		"57P03": // cannot_connect_now
		return true
	default:
		return false
	}
}

// isTransientStoreErr reports whether the error is a retryable store failure
// rather than definite corruption.
func isTransientStoreErr(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return transientPGCode(pgErr.Code)
	}
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}
