package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestNewOperatorToken(t *testing.T) {
	tok, err := NewOperatorToken("secret", "alice", "OPERATOR", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(tok.Token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if sub, _ := claims.GetSubject(); sub != "alice" || claims["role"] != "OPERATOR" {
		t.Fatalf("claims = %v", claims)
	}
	if d := time.Until(tok.Exp); d < 59*time.Minute || d > time.Hour {
		t.Fatalf("expiry in %v, want ~1h", d)
	}

	if _, err := NewOperatorToken("", "a", "OPERATOR", time.Hour); err == nil {
		t.Fatal("empty secret accepted")
	}
	if _, err := NewOperatorToken("s", "a", "OPERATOR", 0); err == nil {
		t.Fatal("zero ttl accepted")
	}
}

func TestHashSecret(t *testing.T) {
	h, err := HashSecret("cron-pass", 4)
	if err != nil {
		t.Fatal(err)
	}
	if !VerifySecret(h, "cron-pass") {
		t.Fatal("matching secret rejected")
	}
	if VerifySecret(h, "cron-pass ") {
		t.Fatal("different secret accepted")
	}
}
