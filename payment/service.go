package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"gigflow/contract"
	"gigflow/job"
	"gigflow/profile"
)

var (
	// ErrJobNotFound signals the job does not exist or its contract is
	// terminated and therefore no longer payable.
	ErrJobNotFound = errors.New("payment: job not found")
	// ErrNotAuthorized signals the requesting profile is not the paying
	// client of the job's contract.
	ErrNotAuthorized = errors.New("payment: profile not authorized to pay this job")
	// ErrAlreadyPaid signals the job has been settled before. Benign: no
	// funds move on replay.
	ErrAlreadyPaid = errors.New("payment: job already paid")
	// ErrInsufficientFunds signals the client balance does not cover the
	// job price.
	ErrInsufficientFunds = errors.New("payment: insufficient funds")
	// ErrTransient signals lock contention, timeout, or store
	// unavailability; the whole PayJob call is safe to retry with backoff.
	ErrTransient = errors.New("payment: transient settlement failure")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ContextReader supplies the advisory pre-settlement read.
type ContextReader interface {
	GetForPayment(ctx context.Context, jobID string) (job.PaymentContext, error)
}

// TransferRepository executes the guarded triple-write inside a transaction.
type TransferRepository interface {
	Transfer(ctx context.Context, tx pgx.Tx, params TransferParams) (TransferOutcome, error)
}

// Service is the settlement engine. All balance mutation in the system goes
// through PayJob; nothing else reads-then-writes balances.
type Service struct {
	pool   TxBeginner
	reader ContextReader
	repo   TransferRepository
}

func NewService(pool TxBeginner, reader ContextReader, repo TransferRepository) *Service {
	if repo == nil {
		repo = NewRepository()
	}
	return &Service{
		pool:   pool,
		reader: reader,
		repo:   repo,
	}
}

// PayJob moves a job's price from the client's balance to the contractor's
// balance and marks the job paid, atomically. Preconditions are evaluated
// from a plain read before any lock is taken; the transfer re-validates them
// under row locks. On a guard conflict the engine re-reads current state,
// re-evaluates the preconditions (which yields the definitive error when a
// racing settlement won), and retries the transfer exactly once. A second
// conflict surfaces as ErrTransient.
func (s *Service) PayJob(ctx context.Context, requester profile.Profile, jobID string) (SettlementResult, error) {
	if jobID == "" {
		return SettlementResult{}, fmt.Errorf("payment: missing job id")
	}

	pc, err := s.checkPreconditions(ctx, requester, jobID)
	if err != nil {
		return SettlementResult{}, err
	}

	outcome, err := s.transfer(ctx, pc)
	if errors.Is(err, ErrTransferConflict) {
		pc, err = s.checkPreconditions(ctx, requester, jobID)
		if err != nil {
			return SettlementResult{}, err
		}
		outcome, err = s.transfer(ctx, pc)
		if errors.Is(err, ErrTransferConflict) {
			return SettlementResult{}, fmt.Errorf("%w: settlement contention on job %s", ErrTransient, jobID)
		}
	}
	if err != nil {
		return SettlementResult{}, err
	}

	return SettlementResult{
		JobID:             pc.JobID,
		Amount:            pc.Price,
		ClientID:          pc.ClientID,
		ContractorID:      pc.ContractorID,
		ClientBalance:     outcome.ClientBalance,
		ContractorBalance: outcome.ContractorBalance,
		PaidAt:            outcome.PaidAt,
	}, nil
}

// checkPreconditions runs the ordered validation chain over a fresh advisory
// read. Each violated condition maps to a distinct failure kind.
func (s *Service) checkPreconditions(ctx context.Context, requester profile.Profile, jobID string) (job.PaymentContext, error) {
	pc, err := s.reader.GetForPayment(ctx, jobID)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			return job.PaymentContext{}, ErrJobNotFound
		}
		return job.PaymentContext{}, classifyStoreErr(err)
	}

	if pc.ContractStatus == contract.StatusTerminated {
		return job.PaymentContext{}, ErrJobNotFound
	}
	if requester.Type != profile.RoleClient || requester.ID != pc.ClientID {
		return job.PaymentContext{}, ErrNotAuthorized
	}
	if pc.Paid {
		return job.PaymentContext{}, ErrAlreadyPaid
	}
	if pc.ClientBalance.LessThan(pc.Price) {
		return job.PaymentContext{}, ErrInsufficientFunds
	}

	return pc, nil
}

// transfer runs one guarded settlement attempt in its own transaction. The
// commit is the durability boundary; rollback on any earlier exit leaves no
// partial effect.
func (s *Service) transfer(ctx context.Context, pc job.PaymentContext) (TransferOutcome, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return TransferOutcome{}, classifyStoreErr(fmt.Errorf("payment: begin settlement tx: %w", err))
	}
	defer tx.Rollback(ctx)

	outcome, err := s.repo.Transfer(ctx, tx, TransferParams{
		JobID:        pc.JobID,
		ClientID:     pc.ClientID,
		ContractorID: pc.ContractorID,
		Amount:       pc.Price,
	})
	if err != nil {
		if errors.Is(err, ErrTransferConflict) {
			return TransferOutcome{}, err
		}
		return TransferOutcome{}, classifyStoreErr(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return TransferOutcome{}, classifyStoreErr(fmt.Errorf("payment: commit settlement: %w", err))
	}

	return outcome, nil
}

// classifyStoreErr wraps retryable store failures as ErrTransient. Anything
// else (constraint violations, corruption) surfaces as-is rather than being
// silently retried.
func classifyStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s", ErrTransient, err)
	}
	if isTransientStoreErr(err) {
		return fmt.Errorf("%w: %s", ErrTransient, err)
	}
	return err
}
