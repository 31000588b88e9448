// Package auth provides HTTP Basic authentication middleware for the OPDS
// surface.
package auth

import (
	"net/http"

	"github.com/dshein-alt/ropds/pkg/models"
	"github.com/dshein-alt/ropds/pkg/users"
	"github.com/labstack/echo/v4"
)

const (
	userContextKey = "auth.user"
	realm          = `Basic realm="OPDS"`
)

// Required rejects requests without valid Basic credentials.
func Required(svc *users.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, ok := authenticate(c, svc)
			if !ok {
				c.Response().Header().Set(echo.HeaderWWWAuthenticate, realm)
				return echo.NewHTTPError(http.StatusUnauthorized)
			}
			c.Set(userContextKey, user)
			return next(c)
		}
	}
}

// Optional attaches the user when valid credentials are present and lets the
// request through anonymously otherwise. Per-user surfaces check UserFrom
// themselves.
func Optional(svc *users.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if user, ok := authenticate(c, svc); ok {
				c.Set(userContextKey, user)
			}
			return next(c)
		}
	}
}

// UserFrom returns the authenticated user, or nil for anonymous requests.
func UserFrom(c echo.Context) *models.User {
	user, _ := c.Get(userContextKey).(*models.User)
	return user
}

func authenticate(c echo.Context, svc *users.Service) (*models.User, bool) {
	username, password, ok := c.Request().BasicAuth()
	if !ok {
		return nil, false
	}
	user, err := svc.Authenticate(c.Request().Context(), username, password)
	if err != nil {
		return nil, false
	}
	return user, true
}
