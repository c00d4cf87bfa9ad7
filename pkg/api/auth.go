package api

import (
	echo "github.com/labstack/echo/v5"
)

// identityHeaders in priority order: oauth2-proxy sets the first two,
// kube-rbac-proxy the third.
var identityHeaders = [...]string{
	"X-Forwarded-User",
	"X-Forwarded-Email",
	"X-Remote-User",
}

// extractUser resolves the requesting user from auth-proxy headers, falling
// back to a generic identity for direct API access.
func extractUser(c *echo.Context) string {
	for _, h := range identityHeaders {
		if user := c.Request().Header.Get(h); user != "" {
			return user
		}
	}
	return "api-client"
}
