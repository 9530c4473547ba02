package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementResult reports a completed job payment: the amount moved and the
// balances both parties ended up with.
type SettlementResult struct {
	JobID             string
	Amount            decimal.Decimal
	ClientID          string
	ContractorID      string
	ClientBalance     decimal.Decimal
	ContractorBalance decimal.Decimal
	PaidAt            time.Time
}

// TransferParams enumerates the writes executed inside a single settlement
// transaction: debit the client, credit the contractor, mark the job paid.
type TransferParams struct {
	JobID        string
	ClientID     string
	ContractorID string
	Amount       decimal.Decimal
}

// TransferOutcome carries the post-commit balances and the settlement
// timestamp assigned by the store.
type TransferOutcome struct {
	ClientBalance     decimal.Decimal
	ContractorBalance decimal.Decimal
	PaidAt            time.Time
}
