package middleware

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/session"

	"consultacnpj/internal/config"
	"consultacnpj/internal/models"
)

// DevUserSub is the subject of the local user used when OIDC is disabled in
// development.
const DevUserSub = "dev-local-user"

// UserStore loads and records authenticated users.
type UserStore interface {
	GetUserBySub(ctx context.Context, sub string) (*models.User, error)
	UpsertUser(ctx context.Context, user *models.User) error
}

// AuthMiddleware handles user authentication via sessions.
type AuthMiddleware struct {
	users UserStore
	cfg   *config.Config

	devOnce sync.Once
	devUser *models.User
	devErr  error
}

// NewAuthMiddleware creates a new auth middleware instance.
func NewAuthMiddleware(users UserStore, cfg *config.Config) *AuthMiddleware {
	return &AuthMiddleware{users: users, cfg: cfg}
}

// RequireAuth ensures the user is authenticated, redirecting to /login if not.
func (m *AuthMiddleware) RequireAuth(c fiber.Ctx) error {
	user := m.resolve(c)
	if user == nil {
		if sess := session.FromContext(c); sess != nil {
			sess.Set("redirect_after_login", c.OriginalURL())
		}
		return c.Redirect().To("/login")
	}

	c.Locals("user", user)
	return c.Next()
}

// RequireAPIAuth ensures the user is authenticated, answering 401 if not.
func (m *AuthMiddleware) RequireAPIAuth(c fiber.Ctx) error {
	user := m.resolve(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"status": "error",
			"error":  "unauthorized",
		})
	}

	c.Locals("user", user)
	return c.Next()
}

func (m *AuthMiddleware) resolve(c fiber.Ctx) *models.User {
	if m.devMode() {
		user, err := m.localUser(c.Context())
		if err != nil {
			slog.Error("failed to load development user", "error", err)
			return nil
		}
		return user
	}

	sess := session.FromContext(c)
	if sess == nil {
		return nil
	}

	userSub, ok := sess.Get("user_sub").(string)
	if !ok || strings.TrimSpace(userSub) == "" {
		return nil
	}

	user, err := m.users.GetUserBySub(c.Context(), userSub)
	if err != nil {
		sess.Destroy()
		return nil
	}
	return user
}

// devMode is true when OIDC is not configured in a development environment.
func (m *AuthMiddleware) devMode() bool {
	return !m.cfg.OIDCEnabled() && m.cfg.IsDev()
}

func (m *AuthMiddleware) localUser(ctx context.Context) (*models.User, error) {
	m.devOnce.Do(func() {
		user := &models.User{
			Sub:   DevUserSub,
			Email: "dev@localhost",
			Name:  "Local Developer",
		}
		if m.devErr = m.users.UpsertUser(ctx, user); m.devErr == nil {
			m.devUser = user
		}
	})
	return m.devUser, m.devErr
}

// CurrentUser returns the user stored by RequireAuth or RequireAPIAuth.
func CurrentUser(c fiber.Ctx) (*models.User, bool) {
	user, ok := c.Locals("user").(*models.User)
	return user, ok && user != nil
}
