package middleware

// identity.go defines helpers shared across middleware files and
// handlers.  JWTAuth stores the raw "sub" claim under the context key
// "user_id"; depending on how the token was decoded that value may be a
// float64 (JSON number), a string, or already a uint64.  The helpers
// here normalize it.

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// UserID returns the authenticated user's numeric ID from the Echo
// context, or 0 when no user is authenticated.
func UserID(c echo.Context) uint64 {
	switch v := c.Get("user_id").(type) {
	case float64:
		return uint64(v)
	case uint64:
		return v
	case int64:
		return uint64(v)
	case string:
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

// userID returns a string identity for rate-limit keying.  Anonymous
// requests share the "guest" identity and are keyed by IP instead.
func userID(c echo.Context) string {
	if id := UserID(c); id != 0 {
		return strconv.FormatUint(id, 10)
	}
	return "guest"
}
