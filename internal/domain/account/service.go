package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/sympto/sympto/internal/platform/apperr"
	"github.com/sympto/sympto/internal/platform/auth"
	"github.com/sympto/sympto/internal/platform/middleware"
)

const msgInvalidCredentials = "invalid email or password"

// Session is what signup and login hand back to the client.
type Session struct {
	Token string
	User  *User
}

type Service struct {
	repo     UserRepository
	tokens   *auth.TokenManager
	hashCost int
	// dummyHash is compared against when the email is unknown so both login
	// failure paths cost one bcrypt comparison.
	dummyHash []byte
}

func NewService(repo UserRepository, tokens *auth.TokenManager) *Service {
	return newService(repo, tokens, bcrypt.DefaultCost)
}

func newService(repo UserRepository, tokens *auth.TokenManager, cost int) *Service {
	dummy, _ := bcrypt.GenerateFromPassword([]byte("sympto-unknown-user"), cost)
	return &Service{repo: repo, tokens: tokens, hashCost: cost, dummyHash: dummy}
}

type SignupInput struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Service) Signup(ctx context.Context, in SignupInput) (*Session, error) {
	name := middleware.SanitizeString(in.FullName)
	email := NormalizeEmail(in.Email)

	switch {
	case name == "" || email == "" || in.Password == "":
		return nil, apperr.Validation("please provide all required fields")
	case len(name) > MaxNameLength:
		return nil, apperr.Validation("full name must be at most %d characters", MaxNameLength)
	case !validEmail(email):
		return nil, apperr.Validation("please provide a valid email")
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, apperr.Internal("failed to create account", fmt.Errorf("hash password: %w", err))
	}

	u := &User{FullName: name, Email: email, PasswordHash: string(hash)}
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, apperr.Duplicate("user already exists with this email")
		}
		return nil, apperr.Internal("failed to create account", err)
	}

	return s.session(u)
}

func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperr.Validation("please provide email and password")
	}

	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, apperr.Unauthorized(msgInvalidCredentials)
		}
		return nil, apperr.Internal("login failed", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, apperr.Unauthorized(msgInvalidCredentials)
	}

	return s.session(u)
}

func (s *Service) Me(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Internal("failed to load user", err)
	}
	return u, nil
}

func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, fullName string) (*User, error) {
	name := middleware.SanitizeString(fullName)
	if name == "" {
		return nil, apperr.Validation("full name is required")
	}
	if len(name) > MaxNameLength {
		return nil, apperr.Validation("full name must be at most %d characters", MaxNameLength)
	}

	u, err := s.repo.UpdateName(ctx, id, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Internal("failed to update profile", err)
	}
	return u, nil
}

func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, current, next string) error {
	if current == "" || next == "" {
		return apperr.Validation("please provide current and new password")
	}
	if err := validatePassword(next); err != nil {
		return err
	}

	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.NotFound("user not found")
		}
		return apperr.Internal("failed to change password", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)) != nil {
		return apperr.Unauthorized("current password is incorrect")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.hashCost)
	if err != nil {
		return apperr.Internal("failed to change password", fmt.Errorf("hash password: %w", err))
	}
	if err := s.repo.UpdatePassword(ctx, id, string(hash)); err != nil {
		return apperr.Internal("failed to change password", err)
	}
	return nil
}

// LoadPrincipal implements auth.UserLoader.
func (s *Service) LoadPrincipal(ctx context.Context, id uuid.UUID) (*auth.Principal, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, auth.ErrUnknownUser
		}
		return nil, err
	}
	return &auth.Principal{UserID: u.ID, Email: u.Email}, nil
}

func (s *Service) session(u *User) (*Session, error) {
	token, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return nil, apperr.Internal("failed to issue token", err)
	}
	return &Session{Token: token, User: u}, nil
}

func validatePassword(pw string) error {
	if len(pw) < MinPasswordLength {
		return apperr.Validation("password must be at least %d characters", MinPasswordLength)
	}
	if len(pw) > MaxPasswordLength {
		return apperr.Validation("password must be at most %d characters", MaxPasswordLength)
	}
	if strings.TrimSpace(pw) == "" {
		return apperr.Validation("password must not be blank")
	}
	return nil
}
