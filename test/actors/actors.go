package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"gigflow/job"
	"gigflow/payment"
	"gigflow/profile"
	"gigflow/report"
)

// Payer races settlements against the other payers: it lists the client's
// unpaid jobs, picks one at random, and tries to pay it. Every outcome except
// an authorization failure is expected under contention; the requester is
// always the contract's own client, so ErrNotAuthorized means a logic bug.
func Payer(ctx context.Context, svc *payment.Service, jobs *job.Repository, requester profile.Profile, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		unpaid, err := jobs.ListUnpaidForProfile(ctx, requester.ID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// chaos may have killed our backend; back off and retry
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if len(unpaid) == 0 {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		target := unpaid[rand.Intn(len(unpaid))]
		_, err = svc.PayJob(ctx, requester, target.ID)
		switch {
		case err == nil:
		case errors.Is(err, payment.ErrAlreadyPaid),
			errors.Is(err, payment.ErrInsufficientFunds),
			errors.Is(err, payment.ErrTransient),
			errors.Is(err, payment.ErrJobNotFound):
			// expected when another payer wins the race
		case errors.Is(err, payment.ErrNotAuthorized):
			return fmt.Errorf("payer: client %s rejected on own job %s: %w", requester.ID, target.ID, err)
		default:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// connection-level failure from chaos; the oracles arbitrate state
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// JobCreator keeps fresh unpaid work flowing onto a contract so the payers
// never drain the queue.
func JobCreator(ctx context.Context, pool *pgxpool.Pool, contractID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		price := fmt.Sprintf("%d.%02d", 5+rand.Intn(45), rand.Intn(100))
		_, err := pool.Exec(ctx, `INSERT INTO jobs (contract_id, description, price)
                                  VALUES ($1, 'stress work', $2::numeric)`, contractID, price)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		time.Sleep(time.Duration(40+rand.Intn(60)) * time.Millisecond)
	}
}

// Lister polls the unpaid-jobs view from the contractor side and fails if a
// settled job ever leaks into it.
func Lister(ctx context.Context, jobs *job.Repository, profileID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		unpaid, err := jobs.ListUnpaidForProfile(ctx, profileID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			time.Sleep(50 * time.Millisecond)
			continue
		}
		for _, j := range unpaid {
			if j.Paid {
				return fmt.Errorf("lister: paid job %s listed as unpaid", j.ID)
			}
		}
		time.Sleep(time.Duration(30+rand.Intn(50)) * time.Millisecond)
	}
}

// Reporter runs the best-clients aggregation concurrently with settlements
// and checks the ordering contract on whatever snapshot it observes.
func Reporter(ctx context.Context, reports *report.Repository, stop <-chan struct{}) error {
	start := time.Now().Add(-time.Hour)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		totals, err := reports.BestClients(ctx, start, time.Now().Add(time.Hour), 5)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			time.Sleep(50 * time.Millisecond)
			continue
		}
		for i := 1; i < len(totals); i++ {
			if totals[i].Paid.GreaterThan(totals[i-1].Paid) {
				return fmt.Errorf("reporter: totals not descending: %s before %s", totals[i-1].Paid, totals[i].Paid)
			}
		}
		time.Sleep(time.Duration(100+rand.Intn(100)) * time.Millisecond)
	}
}
