package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/carlmjohnson/requests"
	gocache "github.com/patrickmn/go-cache"

	apperrors "github.com/LingByte/LingBridge/pkg/errors"
)

const currentUserCacheKey = "auth:current_user"

// Identity is the signed-in account as the rest of the client sees it.
type Identity struct {
	ID          string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

type sessionResponse struct {
	Token string   `json:"token"`
	User  Identity `json:"user"`
}

// AuthClient talks to the account service and keeps the bearer token for
// subsequent requests. A zero token means signed out.
type AuthClient struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string

	cache *gocache.Cache
}

func NewAuthClient(baseURL string) *AuthClient {
	return &AuthClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		cache:   gocache.New(5*time.Minute, 10*time.Minute),
	}
}

// Login exchanges credentials for a session token.
func (a *AuthClient) Login(ctx context.Context, email, password string) (*Identity, error) {
	body := map[string]string{"email": email, "password": password}
	var resp sessionResponse
	err := requests.URL(a.baseURL + "/auth/login").
		Client(a.http).
		BodyJSON(&body).
		ToJSON(&resp).
		Fetch(ctx)
	if err != nil {
		if requests.HasStatusErr(err, http.StatusUnauthorized) {
			return nil, apperrors.NewAppError(apperrors.ErrCodeUnauthorized, "invalid email or password")
		}
		return nil, apperrors.WrapError(apperrors.ErrCodeNetworkError, err)
	}
	a.setSession(resp)
	return &resp.User, nil
}

// Signup registers a new account and signs it in.
func (a *AuthClient) Signup(ctx context.Context, email, password, displayName string) (*Identity, error) {
	body := map[string]string{
		"email":        email,
		"password":     password,
		"display_name": displayName,
	}
	var resp sessionResponse
	err := requests.URL(a.baseURL + "/auth/signup").
		Client(a.http).
		BodyJSON(&body).
		ToJSON(&resp).
		Fetch(ctx)
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrCodeNetworkError, err)
	}
	a.setSession(resp)
	return &resp.User, nil
}

// Logout drops the session on the server and locally. Local state is cleared
// even when the server call fails.
func (a *AuthClient) Logout(ctx context.Context) error {
	token := a.Token()
	a.mu.Lock()
	a.token = ""
	a.mu.Unlock()
	a.cache.Delete(currentUserCacheKey)
	if token == "" {
		return nil
	}
	err := requests.URL(a.baseURL + "/auth/logout").
		Client(a.http).
		Bearer(token).
		Method(http.MethodPost).
		Fetch(ctx)
	if err != nil {
		return apperrors.WrapError(apperrors.ErrCodeNetworkError, err)
	}
	return nil
}

// CurrentUser returns the signed-in identity, cached briefly to avoid a
// round trip on every screen.
func (a *AuthClient) CurrentUser(ctx context.Context) (*Identity, error) {
	token := a.Token()
	if token == "" {
		return nil, apperrors.NewAppError(apperrors.ErrCodeUnauthorized, "not signed in")
	}
	if cached, ok := a.cache.Get(currentUserCacheKey); ok {
		id := cached.(Identity)
		return &id, nil
	}
	var user Identity
	err := requests.URL(a.baseURL + "/auth/me").
		Client(a.http).
		Bearer(token).
		ToJSON(&user).
		Fetch(ctx)
	if err != nil {
		if requests.HasStatusErr(err, http.StatusUnauthorized) {
			return nil, apperrors.NewAppError(apperrors.ErrCodeUnauthorized, "session expired")
		}
		return nil, apperrors.WrapError(apperrors.ErrCodeNetworkError, err)
	}
	a.cache.Set(currentUserCacheKey, user, gocache.DefaultExpiration)
	return &user, nil
}

// Token returns the current bearer token, empty when signed out.
func (a *AuthClient) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

func (a *AuthClient) setSession(resp sessionResponse) {
	a.mu.Lock()
	a.token = resp.Token
	a.mu.Unlock()
	a.cache.Set(currentUserCacheKey, resp.User, gocache.DefaultExpiration)
}
