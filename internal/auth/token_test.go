package auth

import (
	"errors"
	"testing"
	"time"
)

func TestResolveRoundTrip(t *testing.T) {
	r := NewResolver("secret")
	token, err := r.Sign("alice", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	pid, err := r.Resolve(token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if pid != "alice" {
		t.Fatalf("expected alice, got %q", pid)
	}
}

func TestResolveRejectsExpired(t *testing.T) {
	r := NewResolver("secret")
	token, err := r.Sign("alice", -time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := r.Resolve(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestResolveRejectsWrongSecret(t *testing.T) {
	token, err := NewResolver("secret-a").Sign("alice", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewResolver("secret-b").Resolve(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestResolveRejectsGarbage(t *testing.T) {
	if _, err := NewResolver("secret").Resolve("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
