package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tokosync/backend/internal/domain"
)

func TestLoginStoresToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/sync/login" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req domain.LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(domain.LoginResponse{Token: "tok-abc", UserID: "user-1", Username: req.Username})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	resp, err := c.Login(context.Background(), "shop-a", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.Token != "tok-abc" {
		t.Fatalf("token = %q", resp.Token)
	}
	if c.token != "tok-abc" {
		t.Fatal("token not installed on client")
	}
}

func TestPullSendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-abc" {
			t.Errorf("authorization header = %q", got)
		}
		_ = json.NewEncoder(w).Encode(domain.PullResponse{Data: domain.Snapshot{
			Products: []domain.Product{{ID: "p-1", Name: "Coffee"}},
		}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	c.SetToken("tok-abc")
	snap, err := c.Pull(context.Background())
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if len(snap.Products) != 1 || snap.Products[0].ID != "p-1" {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestUnauthorizedMapsToSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	c.SetToken("expired")

	if _, err := c.Pull(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("pull err = %v, want ErrUnauthorized", err)
	}
	if err := c.Push(context.Background(), domain.PushRequest{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("push err = %v, want ErrUnauthorized", err)
	}
	if _, err := c.Login(context.Background(), "shop-a", "bad"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("login err = %v, want ErrUnauthorized", err)
	}
}

func TestNetworkErrorIsNotUnauthorized(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 200*time.Millisecond)
	c.SetToken("tok")

	_, err := c.Pull(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Fatalf("network failure misreported as unauthorized: %v", err)
	}
}

func TestPushSendsFullState(t *testing.T) {
	var got domain.PushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	c.SetToken("tok")

	req := domain.PushRequest{
		Data: domain.Snapshot{
			Products: []domain.Product{{ID: "p-1", Name: "Coffee"}},
		},
		Deletions: map[string][]string{domain.CollectionCoupons: {"c-1"}},
	}
	if err := c.Push(context.Background(), req); err != nil {
		t.Fatalf("push: %v", err)
	}
	if len(got.Data.Products) != 1 {
		t.Fatalf("server saw products = %+v", got.Data.Products)
	}
	if ids := got.Deletions[domain.CollectionCoupons]; len(ids) != 1 || ids[0] != "c-1" {
		t.Fatalf("server saw deletions = %+v", got.Deletions)
	}
}
