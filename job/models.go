package job

import (
	"time"

	"github.com/shopspring/decimal"

	"gigflow/contract"
)

// Job mirrors the jobs table. A job is created unpaid; the only legal
// transition is unpaid -> paid, exactly once, never reversed.
type Job struct {
	ID          string
	ContractID  string
	Description string
	Price       decimal.Decimal
	Paid        bool
	PaidAt      *time.Time
	CreatedAt   time.Time
}

// PaymentContext is the advisory read gathered before settlement: the job,
// its contract linkage, and the paying client's balance at read time. It can
// be stale by the time the transfer runs; the authoritative re-check happens
// inside the transfer's locked guard.
type PaymentContext struct {
	JobID          string
	Price          decimal.Decimal
	Paid           bool
	ContractID     string
	ContractStatus contract.Status
	ClientID       string
	ContractorID   string
	ClientBalance  decimal.Decimal
}
