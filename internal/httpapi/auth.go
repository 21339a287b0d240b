package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tokosync/backend/internal/cache"
	"tokosync/backend/internal/domain"
	"tokosync/backend/internal/store"
	"tokosync/backend/internal/xid"
)

// AuthManager implements the create-or-verify login flow and the opaque
// bearer-token gate in front of pull and push. Tokens are random strings
// mapped to accounts in the store; a cache sits in front of the lookup so
// the hot path stays off the database.
type AuthManager struct {
	repo       store.Repository
	tokenCache cache.TokenCache
	cacheTTL   time.Duration
}

func NewAuthManager(repo store.Repository, tokenCache cache.TokenCache, cacheTTL time.Duration) *AuthManager {
	if tokenCache == nil {
		tokenCache = cache.NoopTokenCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &AuthManager{repo: repo, tokenCache: tokenCache, cacheTTL: cacheTTL}
}

// Login verifies the credentials, creating the account on first use. Every
// successful login issues a fresh token; old tokens stay valid.
func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" || strings.TrimSpace(req.Password) == "" {
		return domain.LoginResponse{}, fmt.Errorf("%w: username and password are required", store.ErrInvalidRecord)
	}

	account, err := a.repo.GetAccountByUsername(ctx, username)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.LoginResponse{}, fmt.Errorf("look up account: %w", err)
	}

	now := time.Now().UTC()
	if account == nil {
		hash, err := hashPassword(req.Password)
		if err != nil {
			return domain.LoginResponse{}, fmt.Errorf("hash password: %w", err)
		}
		account = &domain.Account{
			ID:           xid.New("user"),
			Username:     username,
			PasswordHash: hash,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := a.repo.CreateAccount(ctx, *account); err != nil {
			return domain.LoginResponse{}, fmt.Errorf("create account: %w", err)
		}
	} else if !verifyPassword(account.PasswordHash, req.Password) {
		return domain.LoginResponse{}, store.ErrUnauthorized
	}

	token := domain.SyncToken{
		ID:         xid.New("tok"),
		Token:      xid.Token(),
		AccountID:  account.ID,
		CreatedAt:  now,
		LastUsedAt: now,
	}
	if err := a.repo.CreateToken(ctx, token); err != nil {
		return domain.LoginResponse{}, fmt.Errorf("create token: %w", err)
	}

	return domain.LoginResponse{
		Token:    token.Token,
		UserID:   account.ID,
		Username: account.Username,
	}, nil
}

// Authenticate resolves a bearer token to its account id and refreshes the
// token's last-used timestamp. Unknown tokens map to store.ErrUnauthorized.
func (a *AuthManager) Authenticate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", store.ErrUnauthorized
	}

	if accountID, ok, err := a.tokenCache.Get(ctx, token); err == nil && ok {
		if err := a.repo.TouchToken(ctx, token, time.Now().UTC()); err != nil {
			return "", store.ErrUnauthorized
		}
		return accountID, nil
	}

	record, err := a.repo.GetToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", store.ErrUnauthorized
		}
		return "", fmt.Errorf("look up token: %w", err)
	}
	if err := a.repo.TouchToken(ctx, token, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("touch token: %w", err)
	}
	_ = a.tokenCache.Set(ctx, token, record.AccountID, a.cacheTTL)
	return record.AccountID, nil
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}
