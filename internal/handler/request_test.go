package handler

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestDecodeHoldRequestAliases(t *testing.T) {
	tests := []struct {
		name string
		body string
		want HoldRequest
	}{
		{
			name: "canonical",
			body: `{"unitId":"u1","checkIn":"2026-06-10","checkOut":"2026-06-12","guestCount":2,"contactEmail":"a@b.io","contactName":"Ada","ttlMinutes":45}`,
			want: HoldRequest{UnitID: "u1", CheckIn: "2026-06-10", CheckOut: "2026-06-12", GuestCount: 2, ContactEmail: "a@b.io", ContactName: "Ada", TTLMinutes: 45},
		},
		{
			name: "property and stay aliases",
			body: `{"propertyId":42,"from":"2026-06-10","to":"2026-06-12","guests":3,"customerEmail":"a@b.io","customerName":"Ada"}`,
			want: HoldRequest{UnitID: "42", CheckIn: "2026-06-10", CheckOut: "2026-06-12", GuestCount: 3, ContactEmail: "a@b.io", ContactName: "Ada"},
		},
		{
			name: "apartment and arrival aliases",
			body: `{"apartmentId":"apt-7","arrival":"2026-06-10","departure":"2026-06-11","guestEmail":"g@b.io","guestName":"Grace"}`,
			want: HoldRequest{UnitID: "apt-7", CheckIn: "2026-06-10", CheckOut: "2026-06-11", ContactEmail: "g@b.io", ContactName: "Grace"},
		},
		{
			name: "lowercase dates and days ttl",
			body: `{"unitId":"u1","checkin":"2026-06-10","checkout":"2026-06-11","expiresInDays":2}`,
			want: HoldRequest{UnitID: "u1", CheckIn: "2026-06-10", CheckOut: "2026-06-11", TTLMinutes: 2 * 1440},
		},
		{
			name: "days ttl floors at one day",
			body: `{"unitId":"u1","checkIn":"2026-06-10","checkOut":"2026-06-11","expiresInDays":0}`,
			want: HoldRequest{UnitID: "u1", CheckIn: "2026-06-10", CheckOut: "2026-06-11", TTLMinutes: 1440},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeHoldRequest([]byte(tt.body))
			if err != nil {
				t.Fatalf("DecodeHoldRequest: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeHoldRequestRejects(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		code   string
		fields []string
	}{
		{"not an object", `[1,2]`, "invalid_body", nil},
		{"null", `null`, "invalid_body", nil},
		{"unknown keys", `{"unitId":"u1","nights":3,"coupon":"x"}`, "unknown_fields", []string{"coupon", "nights"}},
		{"duplicate alias", `{"unitId":"u1","propertyId":"u2"}`, "duplicate_fields", []string{"propertyId", "unitId"}},
		{"ttl given twice", `{"ttlMinutes":30,"expiresInDays":1}`, "duplicate_fields", []string{"expiresInDays", "ttlMinutes"}},
		{"non-integer guests", `{"guests":"two"}`, "invalid_field", []string{"guests"}},
		{"object unit", `{"unitId":{"id":1}}`, "invalid_field", []string{"unitId"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeHoldRequest([]byte(tt.body))
			var re *RequestError
			if !errors.As(err, &re) {
				t.Fatalf("err = %v, want *RequestError", err)
			}
			if re.Code != tt.code {
				t.Fatalf("code = %q, want %q", re.Code, tt.code)
			}
			if tt.fields != nil && !reflect.DeepEqual(re.Fields, tt.fields) {
				t.Fatalf("fields = %v, want %v", re.Fields, tt.fields)
			}
		})
	}
}

func TestValidatorUsesJSONNames(t *testing.T) {
	v := NewValidator()
	err := v.Validate(&HoldRequest{CheckIn: "2026-06-10", CheckOut: "10/06/2026", GuestCount: 51, ContactEmail: "nope"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	re := validationError(err)
	want := map[string]bool{"unitId": true, "guestCount": true, "contactEmail": true}
	if len(re.Fields) != len(want) {
		t.Fatalf("fields = %v", re.Fields)
	}
	for _, f := range re.Fields {
		if !want[f] {
			t.Fatalf("unexpected field %q in %v", f, re.Fields)
		}
	}
}

func TestDaysToMinutesSaturates(t *testing.T) {
	tests := []struct {
		days, want int
	}{
		{-3, 1440},
		{0, 1440},
		{2, 2880},
		{math.MaxInt / minutesPerDay, (math.MaxInt / minutesPerDay) * minutesPerDay},
		{math.MaxInt/minutesPerDay + 1, math.MaxInt},
		{math.MaxInt, math.MaxInt},
	}
	for _, tt := range tests {
		if got := daysToMinutes(tt.days); got != tt.want {
			t.Errorf("daysToMinutes(%d) = %d, want %d", tt.days, got, tt.want)
		}
	}
}
