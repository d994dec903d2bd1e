package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestService_CreateCredentialAndLogin(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, "test-secret")

	ctx := context.Background()
	cred, err := svc.CreateCredential(ctx, "dr.house@clinic.example", "vicodin-2004")
	if err != nil {
		t.Fatalf("create credential: unexpected error: %v", err)
	}
	if cred.LoginID != "dr.house@clinic.example" {
		t.Fatalf("expected login id preserved, got %q", cred.LoginID)
	}
	if cred.SecretHash == "vicodin-2004" {
		t.Fatal("expected secret to be hashed, got plaintext")
	}

	if err := svc.AssignRole(ctx, cred.ID, RoleDoctor); err != nil {
		t.Fatalf("assign role: %v", err)
	}

	res, err := svc.Login(ctx, LoginRequest{LoginID: cred.LoginID, Secret: "vicodin-2004"})
	if err != nil {
		t.Fatalf("login: unexpected error: %v", err)
	}
	if res.Token == "" {
		t.Fatal("login: expected token, got empty string")
	}

	tokenCredID, tokenRole, err := svc.VerifyToken(res.Token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if tokenCredID != cred.ID {
		t.Fatalf("verify token: expected %q got %q", cred.ID, tokenCredID)
	}
	if tokenRole != RoleDoctor {
		t.Fatalf("verify token: expected role %s got %s", RoleDoctor, tokenRole)
	}
}

func TestService_CreateCredentialValidation(t *testing.T) {
	svc := NewService(newFakeStore(), "test-secret")

	if _, err := svc.CreateCredential(context.Background(), "a@x.com", "short"); !errors.Is(err, ErrWeakSecret) {
		t.Fatalf("expected ErrWeakSecret, got %v", err)
	}
	if _, err := svc.CreateCredential(context.Background(), "  ", "longenough"); err == nil {
		t.Fatal("expected validation error for blank login identifier")
	}
}

func TestService_DuplicateLogin(t *testing.T) {
	svc := NewService(newFakeStore(), "test-secret")

	if _, err := svc.CreateCredential(context.Background(), "a@x.com", "longenough"); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if _, err := svc.CreateCredential(context.Background(), "a@x.com", "longenough"); !errors.Is(err, ErrDuplicateLogin) {
		t.Fatalf("expected ErrDuplicateLogin, got %v", err)
	}
}

func TestService_LoginInvalidCredentials(t *testing.T) {
	svc := NewService(newFakeStore(), "test-secret")

	_, err := svc.Login(context.Background(), LoginRequest{LoginID: "unknown@x.com", Secret: "irrelevant"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestService_AssignRoleRejectsUnknownRole(t *testing.T) {
	svc := NewService(newFakeStore(), "test-secret")

	if err := svc.AssignRole(context.Background(), "cred-1", Role("janitor")); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

type fakeStore struct {
	byLogin map[string]Credential
	byID    map[string]Credential
	nextID  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byLogin: make(map[string]Credential),
		byID:    make(map[string]Credential),
		nextID:  1,
	}
}

func (f *fakeStore) CreateCredential(ctx context.Context, loginID, secretHash string) (Credential, error) {
	if _, exists := f.byLogin[strings.ToLower(loginID)]; exists {
		return Credential{}, ErrDuplicateLogin
	}

	cred := Credential{
		ID:         fmt.Sprintf("cred-%d", f.nextID),
		LoginID:    loginID,
		SecretHash: secretHash,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	f.nextID++
	f.byLogin[strings.ToLower(loginID)] = cred
	f.byID[cred.ID] = cred
	return cred, nil
}

func (f *fakeStore) AssignRole(ctx context.Context, credentialID string, role Role) error {
	cred, ok := f.byID[credentialID]
	if !ok {
		return ErrCredentialNotFound
	}
	cred.Role = role
	f.byID[credentialID] = cred
	f.byLogin[strings.ToLower(cred.LoginID)] = cred
	return nil
}

func (f *fakeStore) DeleteCredential(ctx context.Context, credentialID string) error {
	cred, ok := f.byID[credentialID]
	if !ok {
		return ErrCredentialNotFound
	}
	delete(f.byID, credentialID)
	delete(f.byLogin, strings.ToLower(cred.LoginID))
	return nil
}

func (f *fakeStore) FindByLoginID(ctx context.Context, loginID string) (Credential, error) {
	cred, ok := f.byLogin[strings.ToLower(loginID)]
	if !ok {
		return Credential{}, ErrCredentialNotFound
	}
	return cred, nil
}

func (f *fakeStore) GetByID(ctx context.Context, credentialID string) (Credential, error) {
	cred, ok := f.byID[credentialID]
	if !ok {
		return Credential{}, ErrCredentialNotFound
	}
	return cred, nil
}
