package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tokosync/backend/internal/domain"
	"tokosync/backend/internal/service"
	"tokosync/backend/internal/store/memory"
)

func newTestAPI() *API {
	repo := memory.New()
	svc := service.New(repo)
	auth := NewAuthManager(repo, nil, time.Minute)
	return New(svc, auth, "http://127.0.0.1:3000")
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, handler http.Handler, username, password string) domain.LoginResponse {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sync/login", "", domain.LoginRequest{
		Username: username,
		Password: password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp
}

func TestLoginCreatesAccountOnFirstUse(t *testing.T) {
	handler := newTestAPI().Handler()

	resp := login(t, handler, "shop-a", "secret123")
	if resp.Token == "" || resp.UserID == "" {
		t.Fatalf("incomplete login response: %+v", resp)
	}
	if resp.Username != "shop-a" {
		t.Fatalf("username = %q", resp.Username)
	}

	// Same credentials verify against the existing account.
	again := login(t, handler, "shop-a", "secret123")
	if again.UserID != resp.UserID {
		t.Fatalf("second login resolved a different account: %q vs %q", again.UserID, resp.UserID)
	}
	if again.Token == resp.Token {
		t.Fatal("expected a fresh token per login")
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	handler := newTestAPI().Handler()

	login(t, handler, "shop-a", "secret123")
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sync/login", "", domain.LoginRequest{
		Username: "shop-a",
		Password: "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestLoginRejectsMissingFields(t *testing.T) {
	handler := newTestAPI().Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sync/login", "", domain.LoginRequest{Username: "only-name"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSyncEndpointsRequireBearerToken(t *testing.T) {
	handler := newTestAPI().Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/sync/pull", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("pull without token: status = %d, want 401", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sync/push", "bogus-token", domain.PushRequest{})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("push with bogus token: status = %d, want 401", rec.Code)
	}
}

func TestPushThenPullRoundtrip(t *testing.T) {
	handler := newTestAPI().Handler()
	token := login(t, handler, "shop-a", "secret123").Token

	now := time.Now().UTC().Truncate(time.Second)
	push := domain.PushRequest{Data: domain.Snapshot{
		Products: []domain.Product{{ID: "p-1", Name: "Coffee", PriceCents: 1500, Stock: 10, UpdatedAt: now}},
		Coupons:  []domain.Coupon{{ID: "c-1", Name: "Welcome", Scope: domain.DiscountScopeAll, AmountCents: 500, Enabled: true, UpdatedAt: now}},
	}}
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sync/push", token, push)
	if rec.Code != http.StatusOK {
		t.Fatalf("push status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var ack map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &ack); err != nil || !ack["ok"] {
		t.Fatalf("push ack = %s", rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sync/pull", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pull status = %d", rec.Code)
	}
	var pull domain.PullResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &pull); err != nil {
		t.Fatalf("decode pull: %v", err)
	}
	if len(pull.Data.Products) != 1 || pull.Data.Products[0].Name != "Coffee" {
		t.Fatalf("pulled products = %+v", pull.Data.Products)
	}
	if len(pull.Data.Coupons) != 1 {
		t.Fatalf("pulled coupons = %+v", pull.Data.Coupons)
	}
}

func TestPushDeletionsShowUpInPull(t *testing.T) {
	handler := newTestAPI().Handler()
	token := login(t, handler, "shop-a", "secret123").Token

	now := time.Now().UTC()
	push := domain.PushRequest{Data: domain.Snapshot{
		Products: []domain.Product{{ID: "p-1", Name: "Coffee", UpdatedAt: now}},
	}}
	if rec := doJSON(t, handler, http.MethodPost, "/api/v1/sync/push", token, push); rec.Code != http.StatusOK {
		t.Fatalf("push status = %d", rec.Code)
	}

	del := domain.PushRequest{Deletions: map[string][]string{
		domain.CollectionProducts: {"p-1"},
	}}
	if rec := doJSON(t, handler, http.MethodPost, "/api/v1/sync/push", token, del); rec.Code != http.StatusOK {
		t.Fatalf("push deletions status = %d", rec.Code)
	}

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/sync/pull", token, nil)
	var pull domain.PullResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &pull); err != nil {
		t.Fatalf("decode pull: %v", err)
	}
	if len(pull.Data.Products) != 0 {
		t.Fatalf("deleted product still in pull: %+v", pull.Data.Products)
	}
	if len(pull.Data.Deletions) != 1 || pull.Data.Deletions[0].RecordID != "p-1" {
		t.Fatalf("deletions = %+v", pull.Data.Deletions)
	}
}

func TestAccountsAreIsolated(t *testing.T) {
	handler := newTestAPI().Handler()
	tokenA := login(t, handler, "shop-a", "secret123").Token
	tokenB := login(t, handler, "shop-b", "secret456").Token

	now := time.Now().UTC()
	push := domain.PushRequest{Data: domain.Snapshot{
		Products: []domain.Product{{ID: "p-1", Name: "Coffee", UpdatedAt: now}},
	}}
	if rec := doJSON(t, handler, http.MethodPost, "/api/v1/sync/push", tokenA, push); rec.Code != http.StatusOK {
		t.Fatalf("push status = %d", rec.Code)
	}

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/sync/pull", tokenB, nil)
	var pull domain.PullResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &pull); err != nil {
		t.Fatalf("decode pull: %v", err)
	}
	if len(pull.Data.Products) != 0 {
		t.Fatalf("account B sees account A's products: %+v", pull.Data.Products)
	}
}

func TestPushTolerantOfUnknownFields(t *testing.T) {
	handler := newTestAPI().Handler()
	token := login(t, handler, "shop-a", "secret123").Token

	raw := []byte(`{"data":{"products":[{"id":"p-1","name":"Coffee","updatedAt":"2026-01-02T03:04:05Z","futureField":true}],"someNewCollection":[{"id":"x"}]}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/push", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("push with unknown fields: status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestMalformedPushBodyIsBadRequest(t *testing.T) {
	handler := newTestAPI().Handler()
	token := login(t, handler, "shop-a", "secret123").Token

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/push", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestLoginRateLimited(t *testing.T) {
	handler := newTestAPI().Handler()

	var last int
	for i := 0; i < 7; i++ {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/sync/login", "", domain.LoginRequest{
			Username: "shop-a",
			Password: "wrong",
		})
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("status after burst = %d, want 429", last)
	}
}
