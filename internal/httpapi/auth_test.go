package httpapi

import (
	"context"
	"errors"
	"testing"
	"time"

	"shopapp/backend/internal/domain"
	"shopapp/backend/internal/store"
	"shopapp/backend/internal/store/memory"
)

func loginReq(email string, password string) domain.LoginRequest {
	return domain.LoginRequest{Email: email, Password: password}
}

func registerReq(email string, password string) domain.RegisterRequest {
	return domain.RegisterRequest{Name: "Test User", Email: email, Password: password}
}

func TestTokenRoundTrip(t *testing.T) {
	auth := NewAuthManager("round-trip-secret", time.Hour, memory.NewSeeded())

	resp, err := auth.Login(context.Background(), loginReq("customer@example.com", "customer123"))
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	actor, err := auth.ParseToken(resp.Token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.UserID != resp.User.ID {
		t.Fatalf("subject mismatch: %q vs %q", actor.UserID, resp.User.ID)
	}
	if actor.Email != "customer@example.com" || actor.IsAdmin {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestAdminFlagSurvivesToken(t *testing.T) {
	auth := NewAuthManager("round-trip-secret", time.Hour, memory.NewSeeded())

	resp, err := auth.Login(context.Background(), loginReq("admin@example.com", "admin123"))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	actor, err := auth.ParseToken(resp.Token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if !actor.IsAdmin {
		t.Fatal("expected admin claim")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	auth := NewAuthManager("secret-one", time.Hour, memory.NewSeeded())

	for _, tok := range []string{"", "not-a-jwt", "aaa.bbb.ccc"} {
		if _, err := auth.ParseToken(tok); err == nil {
			t.Fatalf("expected error for token %q", tok)
		}
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	repo := memory.NewSeeded()
	issuer := NewAuthManager("secret-one", time.Hour, repo)
	verifier := NewAuthManager("secret-two", time.Hour, repo)

	resp, err := issuer.Login(context.Background(), loginReq("customer@example.com", "customer123"))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := verifier.ParseToken(resp.Token); err == nil {
		t.Fatal("expected signature validation to fail")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	auth := NewAuthManager("secret-one", time.Hour, memory.NewSeeded())

	token, err := auth.sign(domain.UserAccount{
		ID:    "user-customer",
		Email: "customer@example.com",
	}, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	auth := NewAuthManager("secret-one", time.Hour, memory.NewSeeded())

	if _, err := auth.Login(context.Background(), loginReq("customer@example.com", "nope-nope")); err == nil {
		t.Fatal("expected login failure")
	}
	if _, err := auth.Login(context.Background(), loginReq("ghost@example.com", "whatever1")); err == nil {
		t.Fatal("expected login failure for unknown email")
	}
}

func TestRegisterDuplicateSurfacesSentinel(t *testing.T) {
	auth := NewAuthManager("secret-one", time.Hour, memory.NewSeeded())

	_, err := auth.Register(context.Background(), registerReq("customer@example.com", "longenough"))
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for a seeded email, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	auth := NewAuthManager("secret-one", time.Hour, memory.NewSeeded())
	ctx := context.Background()

	if _, err := auth.Register(ctx, registerReq("no-at-sign", "longenough")); err == nil {
		t.Fatal("expected invalid email to be rejected")
	}
	if _, err := auth.Register(ctx, registerReq("short@example.com", "tiny")); err == nil {
		t.Fatal("expected short password to be rejected")
	}
}
