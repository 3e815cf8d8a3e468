package security

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSessionSecret = "abcdefghijklmnopqrstuvwxyz123456"

func TestSessionSignerRoundTrip(t *testing.T) {
	s := NewSessionSigner(testSessionSecret)
	tok, err := s.Sign("sess-1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	id, err := s.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id != "sess-1" {
		t.Fatalf("unexpected session id %q", id)
	}
}

func TestSessionSignerRejectsExpiredAndForeignTokens(t *testing.T) {
	s := NewSessionSigner(testSessionSecret)
	expired, err := s.Sign("sess-1", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := s.Parse(expired); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected expired token rejection, got %v", err)
	}

	other := NewSessionSigner("zyxwvutsrqponmlkjihgfedcba654321")
	foreign, err := other.Sign("sess-1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := s.Parse(foreign); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected signature rejection, got %v", err)
	}
	if _, err := s.Parse(""); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected empty token rejection, got %v", err)
	}
}

func TestSessionSignerRejectsOtherAlgorithms(t *testing.T) {
	claims := SessionClaims{RegisteredClaims: jwt.RegisteredClaims{
		ID:        "sess-1",
		Issuer:    sessionTokenIssuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSessionSecret))
	if err != nil {
		t.Fatalf("sign hs512: %v", err)
	}
	if _, err := NewSessionSigner(testSessionSecret).Parse(tok); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected algorithm rejection, got %v", err)
	}
}

func TestSessionSignerRequiresSessionID(t *testing.T) {
	if _, err := NewSessionSigner(testSessionSecret).Sign(" ", time.Now().Add(time.Hour)); err == nil {
		t.Fatal("expected empty session id error")
	}
}
