package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/chaluvadis/schemasync/pkg/models"
)

// ContextKey represents keys for context values
type ContextKey string

// UserContextKey is where RequireAuth stores the authenticated user.
const UserContextKey ContextKey = "user"

// Validator validates a bearer token and returns the authenticated user.
// TokenService satisfies this; tests can substitute a stub.
type Validator interface {
	ValidateAccessToken(token string) (*models.User, error)
}

// RequireAuth returns echo middleware that rejects requests without a valid
// Bearer token and stores the resolved user in the request context.
func RequireAuth(validator Validator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authorization header required")
			}

			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
			}

			user, err := validator.ValidateAccessToken(tokenParts[1])
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
			}

			c.Set(string(UserContextKey), user)
			return next(c)
		}
	}
}

// GetUser extracts the authenticated user from echo context
func GetUser(c echo.Context) *models.User {
	userInterface := c.Get(string(UserContextKey))
	if userInterface == nil {
		return nil
	}
	user, ok := userInterface.(*models.User)
	if !ok {
		return nil
	}
	return user
}
