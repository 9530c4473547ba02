package contract

import "context"

// Reader abstracts repository operations for the service.
type Reader interface {
	GetForProfile(ctx context.Context, contractID, profileID string) (Contract, error)
	ListForProfile(ctx context.Context, profileID string) ([]Contract, error)
}

// Service exposes business-level contract reads.
type Service struct {
	repo Reader
}

// NewService builds a Service using the provided repository.
func NewService(repo Reader) *Service {
	return &Service{repo: repo}
}

// GetForProfile returns the contract if it belongs to the profile.
func (s *Service) GetForProfile(ctx context.Context, contractID, profileID string) (Contract, error) {
	return s.repo.GetForProfile(ctx, contractID, profileID)
}

// ListForProfile returns the profile's non-terminated contracts.
func (s *Service) ListForProfile(ctx context.Context, profileID string) ([]Contract, error) {
	return s.repo.ListForProfile(ctx, profileID)
}
