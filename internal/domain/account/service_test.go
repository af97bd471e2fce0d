package account

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/sympto/sympto/internal/platform/apperr"
	"github.com/sympto/sympto/internal/platform/auth"
)

func newTestService() (*Service, *MemoryRepo, *auth.TokenManager) {
	repo := NewMemoryRepo()
	tokens := auth.NewTokenManager([]byte("account-test-secret-account-test"), time.Hour)
	return newService(repo, tokens, bcrypt.MinCost), repo, tokens
}

func mustSignup(t *testing.T, svc *Service, email, password string) *Session {
	t.Helper()
	sess, err := svc.Signup(context.Background(), SignupInput{FullName: "Ada Lovelace", Email: email, Password: password})
	if err != nil {
		t.Fatalf("Signup(%s): %v", email, err)
	}
	return sess
}

func TestSignup(t *testing.T) {
	svc, repo, tokens := newTestService()

	sess := mustSignup(t, svc, "  Ada@Example.COM ", "secret1")
	if sess.User.Email != "ada@example.com" {
		t.Errorf("expected normalized email, got %q", sess.User.Email)
	}
	if sess.User.PasswordHash == "secret1" || sess.User.PasswordHash == "" {
		t.Error("expected password to be hashed")
	}

	claims, err := tokens.Parse(sess.Token)
	if err != nil {
		t.Fatalf("issued token does not parse: %v", err)
	}
	if claims.UserID() != sess.User.ID {
		t.Errorf("token subject %s != user %s", claims.UserID(), sess.User.ID)
	}

	stored, err := repo.GetByEmail(context.Background(), "ada@example.com")
	if err != nil {
		t.Fatalf("user not stored: %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("secret1")) != nil {
		t.Error("stored hash does not match password")
	}
}

func TestSignup_Validation(t *testing.T) {
	svc, _, _ := newTestService()
	tests := []struct {
		name string
		in   SignupInput
	}{
		{"missing name", SignupInput{Email: "a@b.co", Password: "secret1"}},
		{"missing email", SignupInput{FullName: "A", Password: "secret1"}},
		{"missing password", SignupInput{FullName: "A", Email: "a@b.co"}},
		{"bad email", SignupInput{FullName: "A", Email: "not-an-email", Password: "secret1"}},
		{"short password", SignupInput{FullName: "A", Email: "a@b.co", Password: "12345"}},
		{"blank password", SignupInput{FullName: "A", Email: "a@b.co", Password: "       "}},
		{"control-only name", SignupInput{FullName: "\x00\x01", Email: "a@b.co", Password: "secret1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Signup(context.Background(), tt.in)
			if !apperr.Is(err, apperr.KindValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestSignup_DuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService()
	mustSignup(t, svc, "ada@example.com", "secret1")

	_, err := svc.Signup(context.Background(), SignupInput{FullName: "Other", Email: "ADA@example.com", Password: "secret2"})
	if !apperr.Is(err, apperr.KindDuplicate) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	svc, _, _ := newTestService()
	created := mustSignup(t, svc, "ada@example.com", "secret1")

	sess, err := svc.Login(context.Background(), "ADA@example.com", "secret1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.User.ID != created.User.ID || sess.Token == "" {
		t.Errorf("unexpected session: %+v", sess)
	}
}

func TestLogin_FailuresLookTheSame(t *testing.T) {
	svc, _, _ := newTestService()
	mustSignup(t, svc, "ada@example.com", "secret1")

	_, wrongPw := svc.Login(context.Background(), "ada@example.com", "nope123")
	_, unknown := svc.Login(context.Background(), "ghost@example.com", "secret1")

	for _, err := range []error{wrongPw, unknown} {
		var ae *apperr.Error
		if !errors.As(err, &ae) || ae.Kind != apperr.KindAuthentication {
			t.Fatalf("expected authentication error, got %v", err)
		}
		if ae.Message != msgInvalidCredentials {
			t.Errorf("expected %q, got %q", msgInvalidCredentials, ae.Message)
		}
	}
}

func TestLogin_MissingFields(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.Login(context.Background(), "", "x"); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	svc, _, _ := newTestService()
	sess := mustSignup(t, svc, "ada@example.com", "secret1")

	u, err := svc.UpdateProfile(context.Background(), sess.User.ID, "  Augusta Ada King ")
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if u.FullName != "Augusta Ada King" {
		t.Errorf("unexpected name %q", u.FullName)
	}

	if _, err := svc.UpdateProfile(context.Background(), sess.User.ID, " "); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error for blank name, got %v", err)
	}
	if _, err := svc.UpdateProfile(context.Background(), uuid.New(), "X"); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found for unknown user, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc, _, _ := newTestService()
	sess := mustSignup(t, svc, "ada@example.com", "secret1")
	ctx := context.Background()

	if err := svc.ChangePassword(ctx, sess.User.ID, "wrong1", "newsecret"); !apperr.Is(err, apperr.KindAuthentication) {
		t.Fatalf("expected authentication error for wrong current password, got %v", err)
	}
	if err := svc.ChangePassword(ctx, sess.User.ID, "secret1", "123"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for short password, got %v", err)
	}
	if err := svc.ChangePassword(ctx, sess.User.ID, "secret1", "newsecret"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	if _, err := svc.Login(ctx, "ada@example.com", "secret1"); err == nil {
		t.Error("old password must stop working")
	}
	if _, err := svc.Login(ctx, "ada@example.com", "newsecret"); err != nil {
		t.Errorf("new password should work: %v", err)
	}
}

func TestLoadPrincipal(t *testing.T) {
	svc, repo, _ := newTestService()
	sess := mustSignup(t, svc, "ada@example.com", "secret1")

	p, err := svc.LoadPrincipal(context.Background(), sess.User.ID)
	if err != nil {
		t.Fatalf("LoadPrincipal: %v", err)
	}
	if p.UserID != sess.User.ID || p.Email != "ada@example.com" {
		t.Errorf("unexpected principal %+v", p)
	}

	repo.Delete(sess.User.ID)
	if _, err := svc.LoadPrincipal(context.Background(), sess.User.ID); !errors.Is(err, auth.ErrUnknownUser) {
		t.Errorf("expected ErrUnknownUser for deleted user, got %v", err)
	}
}

type brokenRepo struct{ UserRepository }

func (brokenRepo) GetByEmail(context.Context, string) (*User, error) {
	return nil, errors.New("connection reset")
}

func TestLogin_RepositoryFailureIsInternal(t *testing.T) {
	tokens := auth.NewTokenManager([]byte("account-test-secret-account-test"), time.Hour)
	svc := newService(brokenRepo{}, tokens, bcrypt.MinCost)

	_, err := svc.Login(context.Background(), "ada@example.com", "secret1")
	if apperr.KindOf(err) != apperr.KindUnknown {
		t.Fatalf("expected internal error, got %v", err)
	}
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.HTTPStatus() != 500 {
		t.Errorf("expected 500, got %d", ae.HTTPStatus())
	}
}
