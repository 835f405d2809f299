package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/rental-hold-engine/internal/utils"
)

// CronSecretHeader carries the shared secret of external schedulers.
const CronSecretHeader = "X-Cron-Secret"

// CronSecret admits requests whose X-Cron-Secret matches the bcrypt hash.
// With an empty hash every request is rejected, so the route is closed until
// CRON_SECRET_HASH is configured.
func CronSecret(hash string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			got := c.Request().Header.Get(CronSecretHeader)
			if hash == "" || got == "" || !utils.VerifySecret(hash, got) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			return next(c)
		}
	}
}
