package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
)

// APITokenMiddleware authenticates requests with a shared static token in
// the X-API-Token header. An empty configured token disables the check
// (dev mode).
func APITokenMiddleware(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token == "" {
				return next(c)
			}
			got := strings.TrimSpace(c.Request().Header.Get("X-API-Token"))
			if got == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing api token"})
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid api token"})
			}
			return next(c)
		}
	}
}
