package contract

import "time"

// Status represents the lifecycle of a contract. A terminated contract is
// immutable: no further jobs under it are payable.
type Status string

const (
	StatusNew        Status = "new"
	StatusInProgress Status = "in_progress"
	StatusTerminated Status = "terminated"
)

// Contract mirrors the contracts table.
type Contract struct {
	ID           string
	ClientID     string
	ContractorID string
	Terms        string
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
