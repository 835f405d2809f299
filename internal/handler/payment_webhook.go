package handler

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/rental-hold-engine/internal/booking"
	"github.com/iliyamo/rental-hold-engine/internal/clock"
	"github.com/iliyamo/rental-hold-engine/internal/payment"
)

const signatureHeader = "Stripe-Signature"

// PaymentHandler turns verified payment events into hold confirmations.
type PaymentHandler struct {
	Coordinator *booking.Coordinator
	Notifier    ConfirmNotifier
	Secret      string
	Tolerance   time.Duration
	Clock       clock.Clock
	Log         *slog.Logger
}

// NewPaymentHandler wires a PaymentHandler.  notifier may be nil.
func NewPaymentHandler(coord *booking.Coordinator, notifier ConfirmNotifier, secret string, tolerance time.Duration, clk clock.Clock, logger *slog.Logger) *PaymentHandler {
	if coord == nil {
		panic("nil coordinator passed to NewPaymentHandler")
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentHandler{Coordinator: coord, Notifier: notifier, Secret: secret, Tolerance: tolerance, Clock: clk, Log: logger}
}

// Webhook handles POST /v1/payments/webhook.
//
// Outcomes that a redelivery cannot change are acknowledged with 200 so the
// provider stops retrying; store failures return 500.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	if h.Secret == "" {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "webhook_not_configured"})
	}
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_body"})
	}
	if err := payment.VerifySignature(payload, c.Request().Header.Get(signatureHeader), h.Secret, h.Tolerance, h.Clock.Now()); err != nil {
		h.Log.Warn("webhook: signature rejected", "err", err)
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_signature", "message": err.Error()})
	}

	ev, err := payment.ParseEvent(payload)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_event", "message": err.Error()})
	}
	if ev.Type != payment.EventCheckoutCompleted {
		return c.JSON(http.StatusOK, echo.Map{"received": true, "ignored": ev.Type})
	}
	session, err := ev.CheckoutSession()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_event", "message": err.Error()})
	}
	holdID := session.HoldID()
	if holdID == "" {
		h.Log.Info("webhook: checkout session without hold id", "event_id", ev.ID, "session_id", session.ID)
		return c.JSON(http.StatusOK, echo.Map{"received": true, "ignored": "missing_hold_id"})
	}

	ctx := c.Request().Context()
	result, err := h.Coordinator.Confirm(ctx, booking.ConfirmInput{
		HoldID:         holdID,
		SessionRef:     session.ID,
		TransactionRef: session.PaymentIntentID(),
		EventRef:       ev.ID,
	})
	if err != nil {
		if code, final := outcomeCode(err); final {
			h.Log.Warn("webhook: hold not confirmed", "hold_id", holdID, "event_id", ev.ID, "outcome", code)
			return c.JSON(http.StatusOK, echo.Map{"received": true, "outcome": code})
		}
		h.Log.Error("webhook: confirm failed", "hold_id", holdID, "event_id", ev.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
	}

	announce(ctx, h.Notifier, h.Log, result.Reservation)
	outcome := "confirmed"
	if result.Replayed {
		outcome = "already_confirmed"
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true, "outcome": outcome, "reservation": result.Reservation})
}
