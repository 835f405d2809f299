// Package channel talks to the external channel-manager (a Smoobu-compatible
// reservations API) that mirrors confirmed stays to the listing platforms.
package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrTransport wraps failures where no HTTP response was obtained: dial
// errors, resets, and timeouts.
var ErrTransport = errors.New("channel-manager request failed")

// UpstreamError is returned when the channel-manager answered but did not
// accept the reservation.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// Config holds the channel-manager connection settings.
type Config struct {
	BaseURL   string
	APIKey    string
	ChannelID int
	Timeout   time.Duration
}

// Configured reports whether the client can make calls at all.
func (c Config) Configured() bool {
	return c.BaseURL != "" && c.APIKey != ""
}

// Client is a client for the channel-manager reservations API.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a new channel-manager API client.
func NewClient(config Config) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// ReservationRequest is the payload of POST /api/reservations.
type ReservationRequest struct {
	ArrivalDate   string `json:"arrivalDate"`
	DepartureDate string `json:"departureDate"`
	ApartmentID   int    `json:"apartmentId"`
	ChannelID     int    `json:"channelId"`
	FirstName     string `json:"firstName,omitempty"`
	LastName      string `json:"lastName,omitempty"`
	Email         string `json:"email,omitempty"`
	Adults        int    `json:"adults,omitempty"`
}

type reservationResponse struct {
	ID json.RawMessage `json:"id"`
}

// CreateReservation submits one reservation and returns the id assigned by
// the channel-manager.  Exactly one HTTP request is made; the caller decides
// whether to retry.
func (c *Client) CreateReservation(ctx context.Context, r ReservationRequest) (string, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/reservations", bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %v", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &UpstreamError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 512)}
	}

	var out reservationResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &UpstreamError{StatusCode: resp.StatusCode, Body: "invalid JSON in response"}
	}
	id := parseID(out.ID)
	if id == "" {
		return "", &UpstreamError{StatusCode: resp.StatusCode, Body: "response has no reservation id"}
	}
	return id, nil
}

// parseID accepts the id as a JSON number or string.
func parseID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// newRequest creates a new HTTP request with authentication.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Api-Key", c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
