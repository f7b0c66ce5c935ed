package auth

import (
	"errors"
	"testing"
	"time"
)

func TestLineTokenRoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	tok, err := MintLineToken(secret, "p1", "l1", time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	projectID, lineID, err := ParseLineToken(secret, tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if projectID != "p1" || lineID != "l1" {
		t.Fatalf("got project=%q line=%q", projectID, lineID)
	}
}

func TestLineTokenWrongSecret(t *testing.T) {
	tok, err := MintLineToken([]byte("secret-a"), "p1", "l1", time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, _, err := ParseLineToken([]byte("secret-b"), tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken got %v", err)
	}
}

func TestLineTokenExpired(t *testing.T) {
	secret := []byte("test-secret")
	tok, err := MintLineToken(secret, "p1", "l1", -time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, _, err := ParseLineToken(secret, tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken got %v", err)
	}
}

func TestLineTokenGarbage(t *testing.T) {
	if _, _, err := ParseLineToken([]byte("s"), "not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken got %v", err)
	}
}
