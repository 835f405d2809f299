package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// Validator adapts go-playground/validator to echo's Validator interface.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	return &Validator{v: v}
}

func (cv *Validator) Validate(i interface{}) error {
	return cv.v.Struct(i)
}

const minutesPerDay = 24 * 60

// HoldRequest is the canonical body of POST /v1/holds.  Dates are left to
// booking.ParseRange so every bad date reports invalid_date_range.
type HoldRequest struct {
	UnitID       string `json:"unitId" validate:"required,max=64"`
	CheckIn      string `json:"checkIn"`
	CheckOut     string `json:"checkOut"`
	GuestCount   int    `json:"guestCount" validate:"gte=0,lte=50"`
	ContactEmail string `json:"contactEmail" validate:"omitempty,email,max=255"`
	ContactName  string `json:"contactName" validate:"max=255"`
	TTLMinutes   int    `json:"ttlMinutes" validate:"gte=0"`
}

// holdAliases maps every accepted key to its canonical field.  Keys not
// listed here are rejected.
var holdAliases = map[string]string{
	"unitId":        "unitId",
	"propertyId":    "unitId",
	"apartmentId":   "unitId",
	"checkIn":       "checkIn",
	"checkin":       "checkIn",
	"from":          "checkIn",
	"arrival":       "checkIn",
	"checkOut":      "checkOut",
	"checkout":      "checkOut",
	"to":            "checkOut",
	"departure":     "checkOut",
	"guestCount":    "guestCount",
	"guests":        "guestCount",
	"contactEmail":  "contactEmail",
	"customerEmail": "contactEmail",
	"guestEmail":    "contactEmail",
	"contactName":   "contactName",
	"customerName":  "contactName",
	"guestName":     "contactName",
	"ttlMinutes":    "ttlMinutes",
	"expiresInDays": "expiresInDays",
}

// RequestError is a 400 with a machine-readable code.
type RequestError struct {
	Code    string   `json:"error"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

func (e *RequestError) Error() string { return e.Code + ": " + e.Message }

// DecodeHoldRequest normalizes the accepted aliases into a HoldRequest.
// Unknown keys and keys naming the same field twice are errors.
func DecodeHoldRequest(body []byte) (HoldRequest, error) {
	var req HoldRequest
	var raw map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil || raw == nil {
		return req, &RequestError{Code: "invalid_body", Message: "body must be a JSON object"}
	}

	var unknown []string
	seen := map[string]string{}
	for key, val := range raw {
		canonical, ok := holdAliases[key]
		if !ok {
			unknown = append(unknown, key)
			continue
		}
		if prev, dup := seen[canonical]; dup {
			fields := []string{prev, key}
			sort.Strings(fields)
			return req, &RequestError{Code: "duplicate_fields", Message: fmt.Sprintf("%s and %s name the same field", fields[0], fields[1]), Fields: fields}
		}
		seen[canonical] = key

		var err error
		switch canonical {
		case "unitId":
			req.UnitID, err = stringOrNumber(val)
		case "checkIn":
			req.CheckIn, err = stringOrNumber(val)
		case "checkOut":
			req.CheckOut, err = stringOrNumber(val)
		case "contactEmail":
			req.ContactEmail, err = stringOrNumber(val)
		case "contactName":
			req.ContactName, err = stringOrNumber(val)
		case "guestCount":
			req.GuestCount, err = integer(val)
		case "ttlMinutes":
			req.TTLMinutes, err = integer(val)
		case "expiresInDays":
			var days int
			if days, err = integer(val); err == nil {
				req.TTLMinutes = daysToMinutes(days)
			}
		}
		if err != nil {
			return req, &RequestError{Code: "invalid_field", Message: fmt.Sprintf("%s: %v", key, err), Fields: []string{key}}
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return req, &RequestError{Code: "unknown_fields", Message: "unrecognized fields: " + strings.Join(unknown, ", "), Fields: unknown}
	}
	if _, both := seen["ttlMinutes"]; both {
		if _, days := seen["expiresInDays"]; days {
			return req, &RequestError{Code: "duplicate_fields", Message: "ttlMinutes and expiresInDays name the same field", Fields: []string{"expiresInDays", "ttlMinutes"}}
		}
	}
	return req, nil
}

// validationError turns validator output into a RequestError.
func validationError(err error) *RequestError {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return &RequestError{Code: "invalid_input", Message: err.Error()}
	}
	fields := make([]string, 0, len(verrs))
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return &RequestError{Code: "invalid_input", Message: strings.Join(msgs, "; "), Fields: fields}
}

// daysToMinutes floors at one day and saturates instead of overflowing; the
// hold manager rejects anything above its ceiling.
func daysToMinutes(days int) int {
	switch {
	case days < 1:
		return minutesPerDay
	case days > math.MaxInt/minutesPerDay:
		return math.MaxInt
	}
	return days * minutesPerDay
}

func stringOrNumber(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("want string")
}

func integer(raw json.RawMessage) (int, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("want integer")
	}
	return n, nil
}

var _ echo.Validator = (*Validator)(nil)
