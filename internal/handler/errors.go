package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/rental-hold-engine/internal/booking"
)

// writeError maps booking errors onto HTTP statuses and a stable error code.
// Unknown errors become 500 without leaking details.
func writeError(c echo.Context, err error) error {
	var ce *booking.ConflictError
	switch {
	case errors.As(err, &ce):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":    "date_conflict",
			"message":  "unit is not available for the requested dates",
			"conflict": ce.Conflict,
		})
	case errors.Is(err, booking.ErrInvalidDateRange):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_date_range", "message": err.Error()})
	case errors.Is(err, booking.ErrInvalidTTL):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_ttl", "message": err.Error()})
	case errors.Is(err, booking.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_input", "message": err.Error()})
	case errors.Is(err, booking.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found", "message": "reservation not found"})
	case errors.Is(err, booking.ErrNotCancellable):
		return c.JSON(http.StatusConflict, echo.Map{"error": "not_cancellable", "message": err.Error()})
	case errors.Is(err, booking.ErrHoldExpired):
		return c.JSON(http.StatusGone, echo.Map{"error": "hold_expired", "message": "hold expired before payment was confirmed"})
	case errors.Is(err, booking.ErrHoldCancelled):
		return c.JSON(http.StatusConflict, echo.Map{"error": "hold_cancelled", "message": "hold was cancelled"})
	case errors.Is(err, booking.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, echo.Map{"error": "invalid_transition", "message": err.Error()})
	}
	slog.Error("handler: unmapped error", "method", c.Request().Method, "path", c.Path(), "err", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
}

// outcomeCode names a confirmation outcome for webhook acknowledgements.
func outcomeCode(err error) (string, bool) {
	switch {
	case errors.Is(err, booking.ErrHoldExpired):
		return "hold_expired", true
	case errors.Is(err, booking.ErrHoldCancelled):
		return "hold_cancelled", true
	case errors.Is(err, booking.ErrNotFound):
		return "not_found", true
	case errors.Is(err, booking.ErrInvalidTransition):
		return "invalid_transition", true
	case errors.Is(err, booking.ErrInvalidInput):
		return "invalid_input", true
	}
	return "", false
}
