// Package auth implements the shared-secret gate for the admin API:
// one bcrypt-hashed password, exchanged on login for a random bearer
// token held in memory. A restart logs everyone out, which is the
// right failure mode for a single-editor tool.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const tokenExpiry = 24 * time.Hour

// Gate validates logins and issued tokens.
type Gate struct {
	passwordHash []byte
	logger       *slog.Logger

	mu     sync.Mutex
	tokens map[string]time.Time
	now    func() time.Time
}

// NewGate creates a gate around a bcrypt password hash.
func NewGate(passwordHash string, logger *slog.Logger) *Gate {
	return &Gate{
		passwordHash: []byte(passwordHash),
		logger:       logger,
		tokens:       make(map[string]time.Time),
		now:          time.Now,
	}
}

// Login checks the password and issues a bearer token on success.
// bcrypt's comparison is constant-time, so timing leaks nothing.
func (g *Gate) Login(password string) (string, bool) {
	if err := bcrypt.CompareHashAndPassword(g.passwordHash, []byte(password)); err != nil {
		g.logger.Warn("login rejected")

		return "", false
	}

	token := RandomHex(32)

	g.mu.Lock()
	g.tokens[token] = g.now().Add(tokenExpiry)
	g.mu.Unlock()

	g.logger.Info("login accepted")

	return token, true
}

// Valid reports whether a token is known and unexpired. Expired tokens
// are dropped on sight.
func (g *Gate) Valid(token string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	expiry, ok := g.tokens[token]
	if !ok {
		return false
	}

	if g.now().After(expiry) {
		delete(g.tokens, token)

		return false
	}

	return true
}

// Middleware returns HTTP middleware that rejects requests without a
// valid bearer token.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)

			return
		}

		if !g.Valid(strings.TrimPrefix(header, "Bearer ")) {
			g.logger.Debug("rejected token", slog.String("path", r.URL.Path))
			w.WriteHeader(http.StatusUnauthorized)

			return
		}

		next.ServeHTTP(w, r)
	})
}

// RandomHex returns byteLen cryptographically random bytes hex-encoded.
func RandomHex(byteLen int) string {
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}

	return hex.EncodeToString(b)
}
