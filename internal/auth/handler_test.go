package auth_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auth-api/internal/auth"
)

type testServer struct {
	store *fakeStore
	mux   *http.ServeMux
}

func newTestServer() *testServer {
	store := newFakeStore()
	codec := auth.NewTokenCodec([]byte("test-secret"), 30*time.Minute)
	service := auth.NewService(store, auth.NewArgon2Hasher(), codec, auth.NewMemoryRegistry())
	handler := auth.NewHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", handler.Index)
	mux.HandleFunc("POST /auth/register", handler.Register)
	mux.HandleFunc("POST /auth/login", handler.Login)
	mux.HandleFunc("POST /auth/logout", handler.Logout)
	mux.Handle("GET /me", auth.RequireAuth(service, http.HandlerFunc(handler.Me)))

	return &testServer{store: store, mux: mux}
}

func (ts *testServer) postJSON(t *testing.T, path string, body map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)

	return rec
}

func (ts *testServer) request(method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)

	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestIndexGreeting(t *testing.T) {
	ts := newTestServer()

	rec := ts.request(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to home page.", rec.Body.String())
}

func TestRegisterEndpoint(t *testing.T) {
	t.Run("returns token and user info", func(t *testing.T) {
		ts := newTestServer()

		rec := ts.postJSON(t, "/auth/register", map[string]string{"username": "alice", "password": "secret1"})
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody(t, rec)
		assert.NotEmpty(t, body["token"])
		user, ok := body["user"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "alice", user["username"])
		assert.EqualValues(t, 1, user["id"])
		assert.NotContains(t, user, "password_hash")
	})

	t.Run("duplicate username is a 400", func(t *testing.T) {
		ts := newTestServer()

		rec := ts.postJSON(t, "/auth/register", map[string]string{"username": "alice", "password": "secret1"})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = ts.postJSON(t, "/auth/register", map[string]string{"username": "alice", "password": "anything"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Username already exists.", decodeBody(t, rec)["error"])
	})

	t.Run("missing fields are a 400", func(t *testing.T) {
		ts := newTestServer()

		rec := ts.postJSON(t, "/auth/register", map[string]string{"username": "alice"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("insert conflict behind a stale lookup is still a 400", func(t *testing.T) {
		store := newFakeStore()
		_, err := store.CreateUser(t.Context(), "alice", "existing-hash")
		require.NoError(t, err)

		codec := auth.NewTokenCodec([]byte("test-secret"), 30*time.Minute)
		service := auth.NewService(&staleLookupStore{fakeStore: store}, auth.NewArgon2Hasher(), codec, auth.NewMemoryRegistry())

		mux := http.NewServeMux()
		mux.HandleFunc("POST /auth/register", auth.NewHandler(service).Register)
		ts := &testServer{store: store, mux: mux}

		rec := ts.postJSON(t, "/auth/register", map[string]string{"username": "alice", "password": "secret1"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Username already exists.", decodeBody(t, rec)["error"])
	})
}

func TestLoginEndpoint(t *testing.T) {
	ts := newTestServer()
	rec := ts.postJSON(t, "/auth/register", map[string]string{"username": "alice", "password": "secret1"})
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("valid credentials return a token", func(t *testing.T) {
		rec := ts.postJSON(t, "/auth/login", map[string]string{"username": "alice", "password": "secret1"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, decodeBody(t, rec)["token"])
	})

	t.Run("wrong password and unknown user get identical responses", func(t *testing.T) {
		wrong := ts.postJSON(t, "/auth/login", map[string]string{"username": "alice", "password": "wrong"})
		ghost := ts.postJSON(t, "/auth/login", map[string]string{"username": "ghost", "password": "x"})

		assert.Equal(t, http.StatusUnauthorized, wrong.Code)
		assert.Equal(t, http.StatusUnauthorized, ghost.Code)
		assert.Equal(t, wrong.Body.String(), ghost.Body.String())
	})
}

func TestMeEndpoint(t *testing.T) {
	ts := newTestServer()
	rec := ts.postJSON(t, "/auth/register", map[string]string{"username": "alice", "password": "secret1"})
	require.Equal(t, http.StatusOK, rec.Code)
	token, _ := decodeBody(t, rec)["token"].(string)
	require.NotEmpty(t, token)

	t.Run("fresh token returns the profile", func(t *testing.T) {
		rec := ts.request(http.MethodGet, "/me", token)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody(t, rec)
		assert.EqualValues(t, 1, body["id"])
		assert.Equal(t, "alice", body["username"])
	})

	t.Run("missing header is a 401", func(t *testing.T) {
		rec := ts.request(http.MethodGet, "/me", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token is a 401", func(t *testing.T) {
		rec := ts.request(http.MethodGet, "/me", "garbage")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("deleted user is a 404, not a 401", func(t *testing.T) {
		ts.store.deleteUser("alice")

		rec := ts.request(http.MethodGet, "/me", token)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "User not found", decodeBody(t, rec)["error"])
	})
}

func TestLogoutEndpoint(t *testing.T) {
	ts := newTestServer()
	rec := ts.postJSON(t, "/auth/register", map[string]string{"username": "alice", "password": "secret1"})
	require.Equal(t, http.StatusOK, rec.Code)
	token, _ := decodeBody(t, rec)["token"].(string)
	require.NotEmpty(t, token)

	t.Run("missing header is a 400", func(t *testing.T) {
		rec := ts.request(http.MethodPost, "/auth/logout", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Missing Authorization header", decodeBody(t, rec)["error"])
	})

	t.Run("revokes the token and rejects further use", func(t *testing.T) {
		rec := ts.request(http.MethodGet, "/me", token)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = ts.request(http.MethodPost, "/auth/logout", token)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = ts.request(http.MethodGet, "/me", token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("second logout with the same token is a 400", func(t *testing.T) {
		rec := ts.request(http.MethodPost, "/auth/logout", token)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Token already revoked", decodeBody(t, rec)["error"])
	})
}
