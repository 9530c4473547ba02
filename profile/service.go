package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials signals wrong email or password.
	ErrInvalidCredentials = errors.New("profile: invalid credentials")
	// ErrWeakPassword signals password doesn't meet requirements.
	ErrWeakPassword = errors.New("profile: password must be at least 8 characters")
)

// Service handles registration, login, and token verification for profiles.
type Service struct {
	repo        Repository
	jwtSecret   []byte
	idGenerator func() string
}

// LoginResult bundles the token and profile returned after a successful login.
type LoginResult struct {
	Token   string
	Profile Profile
}

// NewService creates a new profile service.
func NewService(repo Repository, jwtSecret string) *Service {
	return &Service{
		repo:        repo,
		jwtSecret:   []byte(jwtSecret),
		idGenerator: func() string { return uuid.NewString() },
	}
}

// WithIDGenerator overrides profile id generation, for tests.
func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

// Register provisions a new profile with a zero balance.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Profile, error) {
	if len(req.Password) < 8 {
		return nil, ErrWeakPassword
	}
	if req.Email == "" || req.FirstName == "" || req.LastName == "" {
		return nil, fmt.Errorf("profile: email, first_name and last_name are required")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("profile: hash password: %w", err)
	}

	role := Role(strings.TrimSpace(string(req.Type)))
	if role == "" {
		role = RoleClient
	}
	if !isValidRole(role) {
		return nil, fmt.Errorf("profile: invalid type %q", role)
	}

	p, err := s.repo.Create(ctx, CreateParams{
		ID:           s.idGenerator(),
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Profession:   req.Profession,
		PasswordHash: string(passwordHash),
		Type:         role,
	})
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// Login authenticates a profile and returns a JWT token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	p, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(req.Password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.generateToken(p.ID, p.Type)
	if err != nil {
		return LoginResult{}, fmt.Errorf("profile: generate token: %w", err)
	}

	return LoginResult{
		Token:   token,
		Profile: p,
	}, nil
}

// GetByID retrieves a profile by ID, including the current balance.
func (s *Service) GetByID(ctx context.Context, profileID string) (*Profile, error) {
	p, err := s.repo.GetByID(ctx, profileID)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// VerifyToken validates a JWT token and returns the profile ID and role.
func (s *Service) VerifyToken(tokenString string) (string, Role, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return "", "", fmt.Errorf("profile: parse token: %w", err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		profileID, ok := claims["profile_id"].(string)
		if !ok {
			return "", "", fmt.Errorf("profile: invalid profile_id in token")
		}
		roleStr, ok := claims["type"].(string)
		if !ok {
			return "", "", fmt.Errorf("profile: invalid type in token")
		}
		role := Role(roleStr)
		if !isValidRole(role) {
			return "", "", fmt.Errorf("profile: invalid type %q in token", roleStr)
		}
		return profileID, role, nil
	}

	return "", "", fmt.Errorf("profile: invalid token")
}

// generateToken creates a JWT token for the profile.
func (s *Service) generateToken(profileID string, role Role) (string, error) {
	claims := jwt.MapClaims{
		"profile_id": profileID,
		"type":       role,
		"exp":        time.Now().Add(24 * time.Hour).Unix(),
		"iat":        time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func isValidRole(role Role) bool {
	switch role {
	case RoleClient, RoleContractor:
		return true
	default:
		return false
	}
}
