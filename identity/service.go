package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials signals a wrong login identifier or secret.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	// ErrWeakSecret signals the secret doesn't meet requirements.
	ErrWeakSecret = errors.New("identity: secret must be at least 8 characters")
)

// Service handles credential lifecycle and authentication logic.
type Service struct {
	store     Store
	jwtSecret []byte
}

// LoginResult bundles the token and credential returned after a successful login.
type LoginResult struct {
	Token      string
	Credential Credential
}

// NewService creates a new identity service.
func NewService(store Store, jwtSecret string) *Service {
	return &Service{
		store:     store,
		jwtSecret: []byte(jwtSecret),
	}
}

// CreateCredential hashes the secret and records a new credential for the
// login identifier.
func (s *Service) CreateCredential(ctx context.Context, loginID, secret string) (Credential, error) {
	loginID = strings.TrimSpace(loginID)
	if loginID == "" {
		return Credential{}, fmt.Errorf("identity: login identifier is required")
	}
	if len(secret) < 8 {
		return Credential{}, ErrWeakSecret
	}

	secretHash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return Credential{}, fmt.Errorf("identity: hash secret: %w", err)
	}

	return s.store.CreateCredential(ctx, loginID, string(secretHash))
}

// AssignRole sets the role on an existing credential.
func (s *Service) AssignRole(ctx context.Context, credentialID string, role Role) error {
	if !isValidRole(role) {
		return fmt.Errorf("identity: invalid role %q", role)
	}
	return s.store.AssignRole(ctx, credentialID, role)
}

// DeleteCredential removes a credential by id.
func (s *Service) DeleteCredential(ctx context.Context, credentialID string) error {
	return s.store.DeleteCredential(ctx, credentialID)
}

// FindByLoginID retrieves a credential by login identifier.
func (s *Service) FindByLoginID(ctx context.Context, loginID string) (Credential, error) {
	return s.store.FindByLoginID(ctx, strings.TrimSpace(loginID))
}

// GetByID retrieves a credential by id.
func (s *Service) GetByID(ctx context.Context, credentialID string) (Credential, error) {
	return s.store.GetByID(ctx, credentialID)
}

// Login authenticates a credential and returns a signed JWT token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	cred, err := s.store.FindByLoginID(ctx, req.LoginID)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cred.SecretHash), []byte(req.Secret)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.generateToken(cred.ID, cred.Role)
	if err != nil {
		return LoginResult{}, fmt.Errorf("identity: generate token: %w", err)
	}

	return LoginResult{Token: token, Credential: cred}, nil
}

// VerifyToken validates a JWT token and returns the credential id and role.
func (s *Service) VerifyToken(tokenString string) (string, Role, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return "", "", fmt.Errorf("identity: parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", "", fmt.Errorf("identity: invalid token")
	}

	credentialID, ok := claims["credential_id"].(string)
	if !ok {
		return "", "", fmt.Errorf("identity: invalid credential_id in token")
	}
	roleStr, ok := claims["role"].(string)
	if !ok {
		return "", "", fmt.Errorf("identity: invalid role in token")
	}
	role := Role(roleStr)
	if !isValidRole(role) {
		return "", "", fmt.Errorf("identity: invalid role %q in token", roleStr)
	}

	return credentialID, role, nil
}

func (s *Service) generateToken(credentialID string, role Role) (string, error) {
	claims := jwt.MapClaims{
		"credential_id": credentialID,
		"role":          role,
		"exp":           time.Now().Add(24 * time.Hour).Unix(),
		"iat":           time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func isValidRole(role Role) bool {
	switch role {
	case RoleDoctor, RolePatient, RoleHospital, RoleAdmin:
		return true
	default:
		return false
	}
}
