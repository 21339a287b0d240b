package httpapi

import (
	"context"
	"errors"
	"testing"
	"time"

	"tokosync/backend/internal/domain"
	"tokosync/backend/internal/store"
	"tokosync/backend/internal/store/memory"
)

func TestAuthenticateUnknownToken(t *testing.T) {
	auth := NewAuthManager(memory.New(), nil, time.Minute)

	_, err := auth.Authenticate(context.Background(), "no-such-token")
	if !errors.Is(err, store.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	_, err = auth.Authenticate(context.Background(), "")
	if !errors.Is(err, store.ErrUnauthorized) {
		t.Fatalf("empty token err = %v, want ErrUnauthorized", err)
	}
}

func TestAuthenticateRefreshesLastUsed(t *testing.T) {
	repo := memory.New()
	auth := NewAuthManager(repo, nil, time.Minute)
	ctx := context.Background()

	resp, err := auth.Login(ctx, domain.LoginRequest{Username: "shop-a", Password: "secret123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	before, err := repo.GetToken(ctx, resp.Token)
	if err != nil {
		t.Fatalf("get token: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	accountID, err := auth.Authenticate(ctx, resp.Token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if accountID != resp.UserID {
		t.Fatalf("accountID = %q, want %q", accountID, resp.UserID)
	}

	after, err := repo.GetToken(ctx, resp.Token)
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	if !after.LastUsedAt.After(before.LastUsedAt) {
		t.Fatalf("lastUsedAt not refreshed: before=%v after=%v", before.LastUsedAt, after.LastUsedAt)
	}
}

func TestLoginNormalizesUsername(t *testing.T) {
	auth := NewAuthManager(memory.New(), nil, time.Minute)
	ctx := context.Background()

	first, err := auth.Login(ctx, domain.LoginRequest{Username: "  Shop-A ", Password: "secret123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	second, err := auth.Login(ctx, domain.LoginRequest{Username: "shop-a", Password: "secret123"})
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if first.UserID != second.UserID {
		t.Fatal("username normalization produced two accounts")
	}
}
