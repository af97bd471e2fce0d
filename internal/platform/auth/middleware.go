package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/sympto/sympto/internal/platform/apperr"
)

type contextKey string

const principalKey contextKey = "principal"

// ErrUnknownUser is returned by a UserLoader when the token's subject no
// longer exists.
var ErrUnknownUser = errors.New("user not found")

// Principal is the authenticated caller attached to a request.
type Principal struct {
	UserID uuid.UUID
	Email  string
}

// UserLoader resolves a token subject to a live user.
type UserLoader interface {
	LoadPrincipal(ctx context.Context, userID uuid.UUID) (*Principal, error)
}

// authenticate runs the full bearer check: header format, signature, expiry
// and user lookup.
func authenticate(c echo.Context, tokens *TokenManager, users UserLoader) (*Principal, error) {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader == "" {
		return nil, apperr.Unauthorized("not authorized, no token")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return nil, apperr.Unauthorized("invalid authorization format")
	}

	claims, err := tokens.Parse(strings.TrimSpace(parts[1]))
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil, apperr.Unauthorized("token has expired")
		}
		return nil, apperr.Unauthorized("not authorized, token failed")
	}

	p, err := users.LoadPrincipal(c.Request().Context(), claims.UserID())
	if err != nil {
		if errors.Is(err, ErrUnknownUser) {
			return nil, apperr.Unauthorized("user no longer exists")
		}
		return nil, apperr.Internal("failed to load user", err)
	}
	return p, nil
}

func attach(c echo.Context, p *Principal) {
	c.Set("user_id", p.UserID.String())
	c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), p)))
}

// Protect rejects requests without a valid bearer token for an existing user.
func Protect(tokens *TokenManager, users UserLoader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, err := authenticate(c, tokens, users)
			if err != nil {
				return err
			}
			attach(c, p)
			return next(c)
		}
	}
}

// OptionalAuth attaches a principal when the request carries a valid token
// and otherwise lets the request through anonymously.
func OptionalAuth(tokens *TokenManager, users UserLoader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if p, err := authenticate(c, tokens, users); err == nil {
				attach(c, p)
			}
			return next(c)
		}
	}
}

// PrincipalFromContext returns the authenticated caller, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey).(*Principal)
	return p
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}
