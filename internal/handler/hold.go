package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/rental-hold-engine/internal/booking"
)

const maxBodyBytes = 1 << 20

// HoldHandler serves the public hold endpoints.
type HoldHandler struct {
	Holds *booking.HoldManager
}

// NewHoldHandler panics when holds is nil.
func NewHoldHandler(holds *booking.HoldManager) *HoldHandler {
	if holds == nil {
		panic("nil hold manager passed to NewHoldHandler")
	}
	return &HoldHandler{Holds: holds}
}

// Create handles POST /v1/holds.
func (h *HoldHandler) Create(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_body", "message": "could not read body"})
	}
	req, err := DecodeHoldRequest(body)
	if err != nil {
		var re *RequestError
		if errors.As(err, &re) {
			return c.JSON(http.StatusBadRequest, re)
		}
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_body", "message": err.Error()})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, validationError(err))
	}

	res, err := h.Holds.CreateHold(c.Request().Context(), booking.HoldInput{
		UnitID:       req.UnitID,
		CheckIn:      req.CheckIn,
		CheckOut:     req.CheckOut,
		TTLMinutes:   req.TTLMinutes,
		GuestCount:   req.GuestCount,
		ContactEmail: req.ContactEmail,
		ContactName:  req.ContactName,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// Get handles GET /v1/holds/:id.
func (h *HoldHandler) Get(c echo.Context) error {
	res, err := h.Holds.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Release handles POST /v1/holds/:id/release and DELETE /v1/holds/:id.
func (h *HoldHandler) Release(c echo.Context) error {
	res, err := h.Holds.ReleaseHold(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// ListActive handles GET /v1/holds/active?unitId=.
func (h *HoldHandler) ListActive(c echo.Context) error {
	unitID := strings.TrimSpace(c.QueryParam("unitId"))
	if unitID == "" {
		unitID = strings.TrimSpace(c.QueryParam("propertyId"))
	}
	items, err := h.Holds.ListActive(c.Request().Context(), unitID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"unitId": unitID, "items": items, "count": len(items)})
}

// Availability handles GET /v1/units/:unitId/availability?from=&to=.
func (h *HoldHandler) Availability(c echo.Context) error {
	from := firstQuery(c, "from", "checkIn")
	to := firstQuery(c, "to", "checkOut")
	conflict, err := h.Holds.CheckAvailability(c.Request().Context(), c.Param("unitId"), from, to)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"unitId":    c.Param("unitId"),
		"checkIn":   from,
		"checkOut":  to,
		"available": conflict == nil,
		"conflict":  conflict,
	})
}

func firstQuery(c echo.Context, names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(c.QueryParam(n)); v != "" {
			return v
		}
	}
	return ""
}
