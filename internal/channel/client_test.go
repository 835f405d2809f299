package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCreateReservation(t *testing.T) {
	var got ReservationRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/reservations" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if k := r.Header.Get("Api-Key"); k != "secret" {
			t.Errorf("Api-Key = %q", k)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 4711}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/", APIKey: "secret", ChannelID: 70})
	id, err := c.CreateReservation(context.Background(), ReservationRequest{
		ArrivalDate: "2026-07-01", DepartureDate: "2026-07-05", ApartmentID: 101, ChannelID: 70,
	})
	if err != nil {
		t.Fatalf("CreateReservation: %v", err)
	}
	if id != "4711" {
		t.Fatalf("id = %q, want 4711", id)
	}
	if got.ApartmentID != 101 || got.ArrivalDate != "2026-07-01" || got.ChannelID != 70 {
		t.Fatalf("payload = %+v", got)
	}
}

func TestCreateReservationStringID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"abc-1"}`))
	}))
	defer srv.Close()

	id, err := NewClient(Config{BaseURL: srv.URL, APIKey: "k"}).CreateReservation(context.Background(), ReservationRequest{})
	if err != nil || id != "abc-1" {
		t.Fatalf("CreateReservation = %q, %v", id, err)
	}
}

func TestCreateReservationRejected(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"detail":"boom"}`},
		{"validation", http.StatusUnprocessableEntity, `{"detail":"apartment not found"}`},
		{"missing id", http.StatusOK, `{"ok":true}`},
		{"null id", http.StatusCreated, `{"id":null}`},
		{"not json", http.StatusOK, `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(Config{BaseURL: srv.URL, APIKey: "k"}).CreateReservation(context.Background(), ReservationRequest{})
			var up *UpstreamError
			if !errors.As(err, &up) {
				t.Fatalf("err = %v, want *UpstreamError", err)
			}
			if up.StatusCode != tt.status {
				t.Fatalf("StatusCode = %d, want %d", up.StatusCode, tt.status)
			}
		})
	}
}

func TestCreateReservationTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k", Timeout: 50 * time.Millisecond})
	_, err := c.CreateReservation(context.Background(), ReservationRequest{})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
}

func TestConfigured(t *testing.T) {
	if (Config{BaseURL: "http://x"}).Configured() {
		t.Fatal("config without API key reported configured")
	}
	if !(Config{BaseURL: "http://x", APIKey: "k"}).Configured() {
		t.Fatal("complete config reported unconfigured")
	}
}
