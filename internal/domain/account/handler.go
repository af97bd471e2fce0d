package account

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sympto/sympto/internal/platform/apperr"
	"github.com/sympto/sympto/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the /api/auth endpoints. limit guards the credential
// endpoints; protect guards the rest.
func (h *Handler) RegisterRoutes(g *echo.Group, protect, limit echo.MiddlewareFunc) {
	g.POST("/signup", h.Signup, limit)
	g.POST("/login", h.Login, limit)
	g.GET("/me", h.Me, protect)
	g.PUT("/update-profile", h.UpdateProfile, protect)
	g.PUT("/change-password", h.ChangePassword, protect)
}

type sessionResponse struct {
	Success bool       `json:"success"`
	Token   string     `json:"token"`
	User    PublicUser `json:"user"`
}

type userResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	User    PublicUser `json:"user"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *Handler) Signup(c echo.Context) error {
	var in SignupInput
	if err := apperr.Bind(c, &in); err != nil {
		return err
	}
	sess, err := h.svc.Signup(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, sessionResponse{Success: true, Token: sess.Token, User: sess.User.Public()})
}

func (h *Handler) Login(c echo.Context) error {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := apperr.Bind(c, &in); err != nil {
		return err
	}
	sess, err := h.svc.Login(c.Request().Context(), in.Email, in.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sessionResponse{Success: true, Token: sess.Token, User: sess.User.Public()})
}

func (h *Handler) Me(c echo.Context) error {
	p := auth.PrincipalFromContext(c.Request().Context())
	if p == nil {
		return apperr.Unauthorized("not authorized")
	}
	u, err := h.svc.Me(c.Request().Context(), p.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userResponse{Success: true, User: u.Public()})
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	p := auth.PrincipalFromContext(c.Request().Context())
	if p == nil {
		return apperr.Unauthorized("not authorized")
	}
	var in struct {
		FullName string `json:"fullName"`
	}
	if err := apperr.Bind(c, &in); err != nil {
		return err
	}
	u, err := h.svc.UpdateProfile(c.Request().Context(), p.UserID, in.FullName)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userResponse{Success: true, Message: "profile updated successfully", User: u.Public()})
}

func (h *Handler) ChangePassword(c echo.Context) error {
	p := auth.PrincipalFromContext(c.Request().Context())
	if p == nil {
		return apperr.Unauthorized("not authorized")
	}
	var in struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := apperr.Bind(c, &in); err != nil {
		return err
	}
	if err := h.svc.ChangePassword(c.Request().Context(), p.UserID, in.CurrentPassword, in.NewPassword); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Success: true, Message: "password changed successfully"})
}
