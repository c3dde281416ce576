package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/LingByte/LingBridge/pkg/errors"
)

func TestHistoryClientList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/call/history", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"calls": []Call{
				{ID: "c1", RoomID: "AB12CD34", Type: "video", StartedAt: time.Now(), Duration: 42},
			},
		})
	}))
	defer srv.Close()

	calls, err := NewHistoryClient(srv.URL).List(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "c1", calls[0].ID)
	assert.Equal(t, 42, calls[0].Duration)
}

func TestHistoryClientDelete(t *testing.T) {
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		json.NewEncoder(w).Encode(map[string]string{"message": "call deleted"})
	}))
	defer srv.Close()

	require.NoError(t, NewHistoryClient(srv.URL).Delete(context.Background(), "c1"))
	assert.Equal(t, http.MethodDelete, method)
	assert.Equal(t, "/call/c1", path)
}

func TestHistoryClientDeleteNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewHistoryClient(srv.URL).Delete(context.Background(), "ghost")
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeNotFound, appErr.Code)
}

func TestAuthLoginAndCurrentUser(t *testing.T) {
	var meCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			var creds map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
			assert.Equal(t, "alice@example.com", creds["email"])
			json.NewEncoder(w).Encode(sessionResponse{
				Token: "tok-1",
				User:  Identity{ID: "u1", Email: "alice@example.com", DisplayName: "Alice"},
			})
		case "/auth/me":
			atomic.AddInt32(&meCalls, 1)
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(Identity{ID: "u1", DisplayName: "Alice"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	a := NewAuthClient(srv.URL)
	user, err := a.Login(context.Background(), "alice@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.DisplayName)
	assert.Equal(t, "tok-1", a.Token())

	// Login primed the cache; CurrentUser must not hit the network.
	got, err := a.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)
	assert.Zero(t, atomic.LoadInt32(&meCalls))
}

func TestAuthLoginRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := NewAuthClient(srv.URL)
	_, err := a.Login(context.Background(), "alice@example.com", "wrong")
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeUnauthorized, appErr.Code)
	assert.Empty(t, a.Token())
}

func TestCurrentUserSignedOut(t *testing.T) {
	a := NewAuthClient("http://localhost:0")
	_, err := a.CurrentUser(context.Background())
	require.Error(t, err)
}

func TestLogoutClearsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			json.NewEncoder(w).Encode(sessionResponse{Token: "tok-1", User: Identity{ID: "u1"}})
		case "/auth/logout":
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	a := NewAuthClient(srv.URL)
	_, err := a.Login(context.Background(), "a@example.com", "pw")
	require.NoError(t, err)

	require.NoError(t, a.Logout(context.Background()))
	assert.Empty(t, a.Token())

	_, err = a.CurrentUser(context.Background())
	assert.Error(t, err)
}
