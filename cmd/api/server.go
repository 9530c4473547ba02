package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gigflow/contract"
	"gigflow/job"
	"gigflow/payment"
	"gigflow/profile"
	"gigflow/report"
)

type ctxKey string

const ctxKeyProfile ctxKey = "profile"

type profileService interface {
	Register(ctx context.Context, req profile.RegisterRequest) (*profile.Profile, error)
	Login(ctx context.Context, req profile.LoginRequest) (profile.LoginResult, error)
	VerifyToken(token string) (string, profile.Role, error)
	GetByID(ctx context.Context, profileID string) (*profile.Profile, error)
}

type contractService interface {
	GetForProfile(ctx context.Context, contractID, profileID string) (contract.Contract, error)
	ListForProfile(ctx context.Context, profileID string) ([]contract.Contract, error)
}

type jobService interface {
	ListUnpaidForProfile(ctx context.Context, profileID string) ([]job.Job, error)
}

type settlementService interface {
	PayJob(ctx context.Context, requester profile.Profile, jobID string) (payment.SettlementResult, error)
}

type reportService interface {
	BestClients(ctx context.Context, start, end time.Time, limit int) ([]report.ClientTotal, error)
}

// Server routes HTTP requests to the domain services and maps their typed
// errors onto status codes.
type Server struct {
	profileService    profileService
	contractService   contractService
	jobService        jobService
	settlementService settlementService
	reportService     reportService
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/register", s.handleRegister)
	mux.HandleFunc("/api/login", s.handleLogin)
	mux.HandleFunc("/api/contracts", s.requireProfile(s.handleContracts))
	mux.HandleFunc("/api/contracts/", s.requireProfile(s.handleContractDetail))
	mux.HandleFunc("/api/jobs/unpaid", s.requireProfile(s.handleUnpaidJobs))
	mux.HandleFunc("/api/jobs/", s.requireProfile(s.handleJobDetail))
	mux.HandleFunc("/api/admin/best-clients", s.requireProfile(s.handleBestClients))
	return mux
}

// requireProfile resolves the calling profile from the bearer token and loads
// its current state, so handlers always see a fresh balance.
func (s *Server) requireProfile(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		profileID, _, err := s.profileService.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		p, err := s.profileService.GetByID(r.Context(), profileID)
		if err != nil {
			if errors.Is(err, profile.ErrNotFound) {
				writeError(w, http.StatusUnauthorized, "unknown profile")
				return
			}
			writeError(w, http.StatusInternalServerError, "profile lookup failed")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyProfile, *p)
		next(w, r.WithContext(ctx))
	}
}

func profileFromContext(ctx context.Context) (profile.Profile, bool) {
	p, ok := ctx.Value(ctxKeyProfile).(profile.Profile)
	return p, ok
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req profile.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	p, err := s.profileService.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, profile.ErrDuplicateEmail):
			writeError(w, http.StatusConflict, "email already registered")
		case errors.Is(err, profile.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, toProfileResponse(*p))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req profile.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	res, err := s.profileService.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, profile.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:   res.Token,
		Profile: toProfileResponse(res.Profile),
	})
}

func (s *Server) handleContracts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	p, ok := profileFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing profile")
		return
	}

	contracts, err := s.contractService.ListForProfile(r.Context(), p.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list contracts failed")
		return
	}

	items := make([]contractResponse, 0, len(contracts))
	for _, c := range contracts {
		items = append(items, toContractResponse(c))
	}
	writeJSON(w, http.StatusOK, listResponse[contractResponse]{Items: items, Total: len(items)})
}

func (s *Server) handleContractDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	p, ok := profileFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing profile")
		return
	}

	contractID := strings.TrimPrefix(r.URL.Path, "/api/contracts/")
	if contractID == "" || strings.Contains(contractID, "/") {
		writeError(w, http.StatusBadRequest, "invalid contract id")
		return
	}

	c, err := s.contractService.GetForProfile(r.Context(), contractID, p.ID)
	if err != nil {
		if errors.Is(err, contract.ErrNotFound) {
			writeError(w, http.StatusNotFound, "contract not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get contract failed")
		return
	}

	writeJSON(w, http.StatusOK, toContractResponse(c))
}

func (s *Server) handleUnpaidJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	p, ok := profileFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing profile")
		return
	}

	jobs, err := s.jobService.ListUnpaidForProfile(r.Context(), p.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list unpaid jobs failed")
		return
	}

	items := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		items = append(items, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, listResponse[jobResponse]{Items: items, Total: len(items)})
}

// handleJobDetail dispatches /api/jobs/{id}/pay.
func (s *Server) handleJobDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	jobID, action, found := strings.Cut(rest, "/")
	if !found || action != "pay" || jobID == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	p, ok := profileFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing profile")
		return
	}

	res, err := s.settlementService.PayJob(r.Context(), p, jobID)
	if err != nil {
		s.writeSettlementError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, settlementResponse{
		JobID:             res.JobID,
		Amount:            res.Amount.String(),
		ClientBalance:     res.ClientBalance.String(),
		ContractorBalance: res.ContractorBalance.String(),
		PaidAt:            res.PaidAt.UTC().Format(time.RFC3339),
	})
}

// writeSettlementError maps the engine's failure kinds onto stable statuses
// so clients never have to parse message text.
func (s *Server) writeSettlementError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, payment.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, payment.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, "only the contract's client may pay")
	case errors.Is(err, payment.ErrAlreadyPaid):
		writeError(w, http.StatusConflict, "job already paid")
	case errors.Is(err, payment.ErrInsufficientFunds):
		writeError(w, http.StatusPaymentRequired, "insufficient balance")
	case errors.Is(err, payment.ErrTransient):
		writeError(w, http.StatusServiceUnavailable, "settlement busy, retry")
	default:
		writeError(w, http.StatusInternalServerError, "settlement failed")
	}
}

func (s *Server) handleBestClients(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	start, err := parseDateParam(q.Get("start"), time.Time{})
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start date")
		return
	}
	end, err := parseDateParam(q.Get("end"), time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end date")
		return
	}
	limit := report.DefaultBestClientsLimit
	if raw := q.Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	totals, err := s.reportService.BestClients(r.Context(), start, end, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "report failed")
		return
	}

	items := make([]clientTotalResponse, 0, len(totals))
	for _, ct := range totals {
		items = append(items, clientTotalResponse{
			ID:       ct.ClientID,
			FullName: ct.FullName,
			Paid:     ct.Paid.String(),
		})
	}
	writeJSON(w, http.StatusOK, listResponse[clientTotalResponse]{Items: items, Total: len(items)})
}

func parseDateParam(raw string, fallback time.Time) (time.Time, error) {
	if raw == "" {
		return fallback, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

type profileResponse struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Profession string `json:"profession,omitempty"`
	Type       string `json:"type"`
	Balance    string `json:"balance"`
	CreatedAt  string `json:"createdAt"`
}

type loginResponse struct {
	Token   string          `json:"token"`
	Profile profileResponse `json:"profile"`
}

type contractResponse struct {
	ID           string `json:"id"`
	ClientID     string `json:"clientId"`
	ContractorID string `json:"contractorId"`
	Terms        string `json:"terms"`
	Status       string `json:"status"`
	CreatedAt    string `json:"createdAt"`
}

type jobResponse struct {
	ID          string  `json:"id"`
	ContractID  string  `json:"contractId"`
	Description string  `json:"description"`
	Price       string  `json:"price"`
	Paid        bool    `json:"paid"`
	PaidAt      *string `json:"paidAt,omitempty"`
}

type settlementResponse struct {
	JobID             string `json:"jobId"`
	Amount            string `json:"amount"`
	ClientBalance     string `json:"clientBalance"`
	ContractorBalance string `json:"contractorBalance"`
	PaidAt            string `json:"paidAt"`
}

type clientTotalResponse struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Paid     string `json:"paid"`
}

func toProfileResponse(p profile.Profile) profileResponse {
	return profileResponse{
		ID:         p.ID,
		Email:      p.Email,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		Profession: p.Profession,
		Type:       string(p.Type),
		Balance:    p.Balance.String(),
		CreatedAt:  p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toContractResponse(c contract.Contract) contractResponse {
	return contractResponse{
		ID:           c.ID,
		ClientID:     c.ClientID,
		ContractorID: c.ContractorID,
		Terms:        c.Terms,
		Status:       string(c.Status),
		CreatedAt:    c.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toJobResponse(j job.Job) jobResponse {
	resp := jobResponse{
		ID:          j.ID,
		ContractID:  j.ContractID,
		Description: j.Description,
		Price:       j.Price.String(),
		Paid:        j.Paid,
	}
	if j.PaidAt != nil {
		s := j.PaidAt.UTC().Format(time.RFC3339)
		resp.PaidAt = &s
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
