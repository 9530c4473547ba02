package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"gigflow/contract"
	"gigflow/job"
	"gigflow/payment"
	"gigflow/profile"
	"gigflow/report"
)

type stubProfileService struct {
	registered  *profile.Profile
	registerErr error
	loginResult profile.LoginResult
	loginErr    error
	verifyID    string
	verifyRole  profile.Role
	verifyErr   error
	byID        *profile.Profile
	byIDErr     error
}

func (s *stubProfileService) Register(_ context.Context, _ profile.RegisterRequest) (*profile.Profile, error) {
	return s.registered, s.registerErr
}

func (s *stubProfileService) Login(_ context.Context, _ profile.LoginRequest) (profile.LoginResult, error) {
	return s.loginResult, s.loginErr
}

func (s *stubProfileService) VerifyToken(_ string) (string, profile.Role, error) {
	return s.verifyID, s.verifyRole, s.verifyErr
}

func (s *stubProfileService) GetByID(_ context.Context, _ string) (*profile.Profile, error) {
	return s.byID, s.byIDErr
}

type stubContractService struct {
	single  contract.Contract
	getErr  error
	list    []contract.Contract
	listErr error
}

func (s *stubContractService) GetForProfile(_ context.Context, _, _ string) (contract.Contract, error) {
	return s.single, s.getErr
}

func (s *stubContractService) ListForProfile(_ context.Context, _ string) ([]contract.Contract, error) {
	return s.list, s.listErr
}

type stubJobService struct {
	jobs []job.Job
	err  error
}

func (s *stubJobService) ListUnpaidForProfile(_ context.Context, _ string) ([]job.Job, error) {
	return s.jobs, s.err
}

type stubSettlementService struct {
	result    payment.SettlementResult
	err       error
	requester profile.Profile
	jobID     string
}

func (s *stubSettlementService) PayJob(_ context.Context, requester profile.Profile, jobID string) (payment.SettlementResult, error) {
	s.requester = requester
	s.jobID = jobID
	return s.result, s.err
}

type stubReportService struct {
	totals []report.ClientTotal
	err    error
	limit  int
}

func (s *stubReportService) BestClients(_ context.Context, _, _ time.Time, limit int) ([]report.ClientTotal, error) {
	s.limit = limit
	return s.totals, s.err
}

func withProfile(req *http.Request, p profile.Profile) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), ctxKeyProfile, p))
}

func TestHandlePayJob_Success(t *testing.T) {
	paidAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	settlements := &stubSettlementService{
		result: payment.SettlementResult{
			JobID:             "job-1",
			Amount:            decimal.RequireFromString("40.00"),
			ClientBalance:     decimal.RequireFromString("60.00"),
			ContractorBalance: decimal.RequireFromString("40.00"),
			PaidAt:            paidAt,
		},
	}
	server := &Server{settlementService: settlements}

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/job-1/pay", nil)
	req = withProfile(req, profile.Profile{ID: "client-1", Type: profile.RoleClient})
	rec := httptest.NewRecorder()

	server.handleJobDetail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp settlementResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.JobID != "job-1" || resp.Amount != "40" || resp.ClientBalance != "60" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
	if resp.PaidAt != paidAt.Format(time.RFC3339) {
		t.Fatalf("expected paidAt %s, got %s", paidAt.Format(time.RFC3339), resp.PaidAt)
	}
	if settlements.jobID != "job-1" || settlements.requester.ID != "client-1" {
		t.Fatalf("settlement called with wrong arguments: job=%s requester=%s", settlements.jobID, settlements.requester.ID)
	}
}

func TestHandlePayJob_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", payment.ErrJobNotFound, http.StatusNotFound},
		{"not authorized", payment.ErrNotAuthorized, http.StatusForbidden},
		{"already paid", payment.ErrAlreadyPaid, http.StatusConflict},
		{"insufficient funds", payment.ErrInsufficientFunds, http.StatusPaymentRequired},
		{"transient", payment.ErrTransient, http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := &Server{settlementService: &stubSettlementService{err: tc.err}}

			req := httptest.NewRequest(http.MethodPost, "/api/jobs/job-1/pay", nil)
			req = withProfile(req, profile.Profile{ID: "client-1", Type: profile.RoleClient})
			rec := httptest.NewRecorder()

			server.handleJobDetail(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
		})
	}
}

func TestHandlePayJob_WrongMethod(t *testing.T) {
	server := &Server{settlementService: &stubSettlementService{}}

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/job-1/pay", nil)
	req = withProfile(req, profile.Profile{ID: "client-1", Type: profile.RoleClient})
	rec := httptest.NewRecorder()

	server.handleJobDetail(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHandlePayJob_UnknownAction(t *testing.T) {
	server := &Server{settlementService: &stubSettlementService{}}

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/job-1/refund", nil)
	req = withProfile(req, profile.Profile{ID: "client-1", Type: profile.RoleClient})
	rec := httptest.NewRecorder()

	server.handleJobDetail(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleContractDetail(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	server := &Server{
		contractService: &stubContractService{
			single: contract.Contract{
				ID:           "c1",
				ClientID:     "client-1",
				ContractorID: "contractor-1",
				Status:       contract.StatusInProgress,
				CreatedAt:    now,
			},
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/contracts/c1", nil)
	req = withProfile(req, profile.Profile{ID: "client-1", Type: profile.RoleClient})
	rec := httptest.NewRecorder()

	server.handleContractDetail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp contractResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "c1" || resp.Status != "in_progress" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestHandleContractDetail_NotFound(t *testing.T) {
	server := &Server{
		contractService: &stubContractService{getErr: contract.ErrNotFound},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/contracts/other", nil)
	req = withProfile(req, profile.Profile{ID: "client-1", Type: profile.RoleClient})
	rec := httptest.NewRecorder()

	server.handleContractDetail(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleUnpaidJobs(t *testing.T) {
	server := &Server{
		jobService: &stubJobService{
			jobs: []job.Job{
				{ID: "j1", ContractID: "c1", Price: decimal.RequireFromString("200.00")},
			},
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/unpaid", nil)
	req = withProfile(req, profile.Profile{ID: "contractor-1", Type: profile.RoleContractor})
	rec := httptest.NewRecorder()

	server.handleUnpaidJobs(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload listResponse[jobResponse]
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Items) != 1 || payload.Items[0].ID != "j1" || payload.Items[0].Paid {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestHandleBestClients_DefaultLimit(t *testing.T) {
	reports := &stubReportService{
		totals: []report.ClientTotal{
			{ClientID: "client-1", FullName: "Harry Potter", Paid: decimal.RequireFromString("442.00")},
		},
	}
	server := &Server{reportService: reports}

	req := httptest.NewRequest(http.MethodGet, "/api/admin/best-clients?start=2025-01-01&end=2025-12-31", nil)
	req = withProfile(req, profile.Profile{ID: "client-1", Type: profile.RoleClient})
	rec := httptest.NewRecorder()

	server.handleBestClients(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if reports.limit != report.DefaultBestClientsLimit {
		t.Fatalf("expected default limit %d, got %d", report.DefaultBestClientsLimit, reports.limit)
	}

	var payload listResponse[clientTotalResponse]
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Items) != 1 || payload.Items[0].Paid != "442" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestHandleBestClients_InvalidLimit(t *testing.T) {
	server := &Server{reportService: &stubReportService{}}

	req := httptest.NewRequest(http.MethodGet, "/api/admin/best-clients?limit=zero", nil)
	req = withProfile(req, profile.Profile{ID: "client-1", Type: profile.RoleClient})
	rec := httptest.NewRecorder()

	server.handleBestClients(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleRegister_DuplicateEmail(t *testing.T) {
	server := &Server{
		profileService: &stubProfileService{registerErr: profile.ErrDuplicateEmail},
	}

	body := strings.NewReader(`{"email":"harry@example.com","password":"strongpassword","first_name":"Harry","last_name":"Potter"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/register", body)
	rec := httptest.NewRecorder()

	server.handleRegister(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestRequireProfile_MissingToken(t *testing.T) {
	server := &Server{profileService: &stubProfileService{}}
	handler := server.requireProfile(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a token")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/contracts", nil)
	rec := httptest.NewRecorder()

	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireProfile_ResolvesFreshProfile(t *testing.T) {
	stored := profile.Profile{
		ID:      "client-1",
		Type:    profile.RoleClient,
		Balance: decimal.RequireFromString("1150.00"),
	}
	server := &Server{profileService: &stubProfileService{
		verifyID:   "client-1",
		verifyRole: profile.RoleClient,
		byID:       &stored,
	}}

	var seen profile.Profile
	handler := server.requireProfile(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = profileFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/contracts", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	rec := httptest.NewRecorder()

	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if seen.ID != "client-1" || !seen.Balance.Equal(stored.Balance) {
		t.Fatalf("expected resolved profile in context, got %+v", seen)
	}
}
