package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/rental-hold-engine/internal/config"
	"github.com/iliyamo/rental-hold-engine/internal/utils"
)

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuthAndRole(t *testing.T) {
	e := echo.New()
	g := e.Group("/ops", JWTAuth("secret"), RequireRole(RoleOperator))
	g.GET("/ping", okHandler)

	op, err := utils.NewOperatorToken("secret", "alice", RoleOperator, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	guest, _ := utils.NewOperatorToken("secret", "bob", "GUEST", time.Hour)
	forged, _ := utils.NewOperatorToken("other", "mallory", RoleOperator, time.Hour)
	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x", "role": RoleOperator}).SignedString([]byte("secret"))

	tests := []struct {
		name string
		auth string
		want int
	}{
		{"operator", "Bearer " + op.Token, http.StatusOK},
		{"wrong role", "Bearer " + guest.Token, http.StatusForbidden},
		{"bad signature", "Bearer " + forged.Token, http.StatusUnauthorized},
		{"no expiry", "Bearer " + noExp, http.StatusUnauthorized},
		{"missing", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ops/ping", nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			if rec := serve(e, req); rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestCronSecret(t *testing.T) {
	hash, err := utils.HashSecret("tick-tock", 4)
	if err != nil {
		t.Fatal(err)
	}
	e := echo.New()
	e.GET("/cron", okHandler, CronSecret(hash))
	e.GET("/closed", okHandler, CronSecret(""))

	for _, tt := range []struct {
		path, secret string
		want         int
	}{
		{"/cron", "tick-tock", http.StatusOK},
		{"/cron", "wrong", http.StatusUnauthorized},
		{"/cron", "", http.StatusUnauthorized},
		{"/closed", "tick-tock", http.StatusUnauthorized},
	} {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		if tt.secret != "" {
			req.Header.Set(CronSecretHeader, tt.secret)
		}
		if rec := serve(e, req); rec.Code != tt.want {
			t.Errorf("%s with %q: status = %d, want %d", tt.path, tt.secret, rec.Code, tt.want)
		}
	}
}

func TestTokenBucketDisabledPassesThrough(t *testing.T) {
	e := echo.New()
	e.POST("/v1/holds", okHandler, NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil, nil))
	for i := 0; i < 5; i++ {
		if rec := serve(e, httptest.NewRequest(http.MethodPost, "/v1/holds", nil)); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, rec.Code)
		}
	}
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/holds", nil)
	req.Header.Set("X-Real-IP", "10.0.0.7")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/holds")

	tests := map[string]string{
		"ip":            "rl:ip:10.0.0.7",
		"route":         "rl:route:POST /v1/holds",
		"ip_route":      "rl:ip:10.0.0.7:route:POST /v1/holds",
		"user":          "rl:user:anon",
		"ip_user_route": "rl:ip:10.0.0.7:user:anon:route:POST /v1/holds",
	}
	for strategy, want := range tests {
		got := buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: strategy}, c)
		if got != want {
			t.Errorf("%s: key = %q, want %q", strategy, got, want)
		}
	}
}
