package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/rental-hold-engine/internal/booking"
)

// OpsHandler exposes operator actions and the cron hook.
type OpsHandler struct {
	Coordinator *booking.Coordinator
	Sync        *booking.SyncAgent
	Sweeper     *booking.Sweeper
	Notifier    ConfirmNotifier
	Log         *slog.Logger
}

var errNoSweeper = errors.New("sweeper not configured")

// NewOpsHandler wires an OpsHandler.  notifier may be nil.
func NewOpsHandler(coord *booking.Coordinator, sync *booking.SyncAgent, sweeper *booking.Sweeper, notifier ConfirmNotifier, logger *slog.Logger) *OpsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpsHandler{Coordinator: coord, Sync: sync, Sweeper: sweeper, Notifier: notifier, Log: logger}
}

type confirmRequest struct {
	SessionRef     string `json:"sessionRef" validate:"max=255"`
	TransactionRef string `json:"transactionRef" validate:"max=255"`
	EventRef       string `json:"eventRef" validate:"max=255"`
}

// Confirm handles POST /v1/ops/holds/:id/confirm.
func (h *OpsHandler) Confirm(c echo.Context) error {
	var req confirmRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_body", "message": "invalid JSON body"})
		}
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, validationError(err))
	}
	ctx := c.Request().Context()
	result, err := h.Coordinator.Confirm(ctx, booking.ConfirmInput{
		HoldID:         c.Param("id"),
		SessionRef:     req.SessionRef,
		TransactionRef: req.TransactionRef,
		EventRef:       req.EventRef,
	})
	if err != nil {
		return writeError(c, err)
	}
	h.Log.Info("ops: hold confirmed", "hold_id", result.Reservation.ID, "operator", c.Get("user_id"), "replayed", result.Replayed)
	announce(ctx, h.Notifier, h.Log, result.Reservation)
	return c.JSON(http.StatusOK, echo.Map{"reservation": result.Reservation, "replayed": result.Replayed})
}

// SyncReservation handles POST /v1/ops/reservations/:id/sync.  Failed
// outcomes map to 422 for data problems and 502 for upstream trouble.
func (h *OpsHandler) SyncReservation(c echo.Context) error {
	result, err := h.Sync.Sync(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	status := http.StatusOK
	if result.Outcome == booking.OutcomeFailed {
		status = http.StatusBadGateway
		if result.Reason == booking.ReasonValidation {
			status = http.StatusUnprocessableEntity
		}
	}
	return c.JSON(status, echo.Map{"result": result, "retryable": result.Retryable()})
}

// Expire handles POST /v1/ops/expire and GET /v1/cron/expire.
func (h *OpsHandler) Expire(c echo.Context) error {
	if h.Sweeper == nil {
		return writeError(c, errNoSweeper)
	}
	n, err := h.Sweeper.Sweep(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"expiredCount": n})
}
