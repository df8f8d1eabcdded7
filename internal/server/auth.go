package server

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/mohammad-safakhou/webscout/internal/archive"
	"github.com/mohammad-safakhou/webscout/internal/runtime"
)

// AuthHandler serves signup/login/logout backed by the archive database.
type AuthHandler struct {
	arch   *archive.Store
	secret []byte
	ttl    time.Duration
	logger *log.Logger
}

// NewAuthHandler wires the auth endpoints.
func NewAuthHandler(arch *archive.Store, secret []byte) *AuthHandler {
	return &AuthHandler{
		arch:   arch,
		secret: secret,
		ttl:    72 * time.Hour,
		logger: log.New(log.Writer(), "[AUTH] ", log.LstdFlags),
	}
}

// Register mounts the auth routes on the given group.
func (h *AuthHandler) Register(g *echo.Group) {
	g.POST("/signup", h.signup)
	g.POST("/login", h.login)
	g.POST("/logout", h.logout)
}

func (h *AuthHandler) signup(c echo.Context) error {
	var req AuthSignupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || len(req.Password) < 8 {
		return echo.NewHTTPError(http.StatusBadRequest, "email and a password of at least 8 characters are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "hash password")
	}
	if err := h.arch.CreateUser(c.Request().Context(), email, string(hash)); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return echo.NewHTTPError(http.StatusConflict, "email already registered")
		}
		h.logger.Printf("signup %s: %v", email, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "create user")
	}
	return c.NoContent(http.StatusCreated)
}

func (h *AuthHandler) login(c echo.Context) error {
	var req AuthLoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	id, hash, err := h.arch.GetUserByEmail(c.Request().Context(), email)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	token, err := runtime.SignJWT(id, h.secret, h.ttl)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "sign token")
	}
	c.SetCookie(&http.Cookie{
		Name:     "auth",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(h.ttl),
	})
	return c.JSON(http.StatusOK, TokenResponse{Token: token})
}

func (h *AuthHandler) logout(c echo.Context) error {
	c.SetCookie(&http.Cookie{
		Name:     "auth",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	return c.NoContent(http.StatusNoContent)
}
