// Package authn adapts the broker core to an external authentication and
// authorization service: the core never mints or verifies tokens itself, it
// only consumes an opaque bearer-token verifier returning
// {user_id, roles, client_id}. Handles Bearer-token extraction,
// request-context plumbing, and an echo.MiddlewareFunc adapter; JWT
// validation, session cookies, and API keys are out of scope here — those
// belong to the auth service, not the routing core.
package authn

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sylvia-iot/broker-core/internal/errors"
)

// Identity is the result of a successful bearer-token verification.
type Identity struct {
	UserID   string
	Roles    []string
	ClientID string
}

// HasRole reports whether the identity carries role.
func (id Identity) HasRole(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Verifier is the opaque external collaborator: given a bearer token, it
// returns the identity it names or an error if the token is invalid,
// expired, or revoked. The broker core never implements this itself.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

type contextKey string

const identityContextKey contextKey = "authn_identity"

// Middleware returns an echo middleware that extracts the Authorization:
// Bearer header, verifies it through v, and rejects the request with 401 if
// absent or invalid. skipper, if set, lets specific routes (health checks)
// bypass verification.
func Middleware(v Verifier, skipper func(c echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				return next(c)
			}

			token := extractBearerToken(c)
			if token == "" {
				return unauthorized()
			}

			id, err := v.Verify(c.Request().Context(), token)
			if err != nil {
				return unauthorized()
			}

			ctx := context.WithValue(c.Request().Context(), identityContextKey, id)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// RequireScopes returns a middleware that rejects the request with 403
// unless the verified identity holds every role in scopes. Scopes for a
// given API are looked up from config.Settings.APIScopes by callers before
// wiring this middleware onto a route.
func RequireScopes(scopes []string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := FromContext(c.Request().Context())
			if !ok {
				return unauthorized()
			}
			for _, scope := range scopes {
				if !id.HasRole(scope) {
					return echo.NewHTTPError(http.StatusForbidden, map[string]string{
						"code":    errors.CodeForbidden,
						"message": "insufficient scope for this operation",
					})
				}
			}
			return next(c)
		}
	}
}

// FromContext extracts the verified Identity set by Middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(Identity)
	return id, ok
}

func extractBearerToken(c echo.Context) string {
	header := c.Request().Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}

func unauthorized() error {
	return echo.NewHTTPError(http.StatusUnauthorized, map[string]string{
		"code":    errors.CodeUnauthorized,
		"message": "authentication required",
	})
}
