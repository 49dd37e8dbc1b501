package auth

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "correct horse battery staple"

func testGate(t *testing.T) *Gate {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	return NewGate(string(hash), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestLogin_CorrectPassword(t *testing.T) {
	g := testGate(t)

	token, ok := g.Login(testPassword)

	require.True(t, ok)
	assert.Len(t, token, 64, "32 random bytes hex-encoded")
	assert.True(t, g.Valid(token))
}

func TestLogin_WrongPassword(t *testing.T) {
	g := testGate(t)

	token, ok := g.Login("wrong")

	assert.False(t, ok)
	assert.Empty(t, token)
}

func TestValid_UnknownToken(t *testing.T) {
	g := testGate(t)

	assert.False(t, g.Valid("deadbeef"))
	assert.False(t, g.Valid(""))
}

func TestValid_ExpiredToken(t *testing.T) {
	g := testGate(t)

	now := time.Now()
	g.now = func() time.Time { return now }

	token, ok := g.Login(testPassword)
	require.True(t, ok)

	g.now = func() time.Time { return now.Add(tokenExpiry + time.Minute) }

	assert.False(t, g.Valid(token))
	assert.False(t, g.Valid(token), "expired token stays invalid after eviction")
}

func TestMiddleware(t *testing.T) {
	g := testGate(t)

	token, ok := g.Login(testPassword)
	require.True(t, ok)

	handler := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"unknown token", "Bearer deadbeef", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/document", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestRandomHex(t *testing.T) {
	a := RandomHex(16)
	b := RandomHex(16)

	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
