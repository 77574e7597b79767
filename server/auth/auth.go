// server/auth/auth.go
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"

	"tetris/server/metrics"
	"tetris/shared/protocol"
	"tetris/shared/tokenhash"
)

var (
	ErrMissingToken   = errors.New("missing token")
	ErrMalformedToken = errors.New("malformed token")
	ErrTokenMismatch  = errors.New("token mismatch")
	ErrInvalidToken   = errors.New("invalid token")
)

const keyFile = "jwt.key"

// Auth checks the derived tokens sent by game clients and issues the
// signed tokens that guard admin endpoints.
type Auth struct {
	jwtKey []byte
	issuer string
}

// NewAuth loads the signing key from dataDir, creating it on first start.
func NewAuth(dataDir string) (*Auth, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	keyPath := filepath.Join(dataDir, keyFile)
	key, err := os.ReadFile(keyPath)
	if err != nil || len(key) < 32 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate jwt key: %w", err)
		}
		if err := os.WriteFile(keyPath, key, 0o600); err != nil {
			return nil, fmt.Errorf("write jwt key: %w", err)
		}
		log.WithField("path", keyPath).Info("generated new jwt key")
	}
	return &Auth{jwtKey: key, issuer: "tetris"}, nil
}

func check(kind, id, token string) error {
	err := verify(id, token)
	result := "ok"
	switch {
	case errors.Is(err, ErrMissingToken):
		result = "missing"
	case errors.Is(err, ErrMalformedToken):
		result = "malformed"
	case errors.Is(err, ErrTokenMismatch):
		result = "mismatch"
	}
	metrics.TokenChecks.WithLabelValues(kind, result).Inc()
	return err
}

func verify(id, token string) error {
	if token == "" {
		return ErrMissingToken
	}
	if !tokenhash.Valid(token) {
		return ErrMalformedToken
	}
	if !tokenhash.Equal(token, tokenhash.Token(id)) {
		return ErrTokenMismatch
	}
	return nil
}

// VerifyHighscore recomputes the token the client derived from the score
// and the player name.
func (a *Auth) VerifyHighscore(req protocol.HighscoreReq) error {
	return check("highscore", tokenhash.HighscoreSeed(req.Score, req.Name), req.Auth)
}

// VerifyConnect checks the token sent with a connect request for the given
// player slot.
func (a *Auth) VerifyConnect(playerID, token string) error {
	return check("connect", playerID, token)
}

// IssueAdminToken signs a token for the admin endpoints.
func (a *Auth) IssueAdminToken(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.jwtKey)
}

// ParseToken validates an admin token and returns its subject.
func (a *Auth) ParseToken(tok string) (string, error) {
	if tok == "" {
		return "", ErrMissingToken
	}
	var claims jwt.RegisteredClaims
	t, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (interface{}, error) {
		return a.jwtKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(a.issuer))
	if err != nil || !t.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// RequireAuth guards admin endpoints. The token comes from a bearer header
// or the "token" query parameter.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var tok string
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			tok = strings.TrimPrefix(h, "Bearer ")
		} else {
			tok = r.URL.Query().Get("token")
		}
		user, err := a.ParseToken(tok)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		log.WithFields(log.Fields{"sub": user, "path": r.URL.Path}).Info("admin request")
		next.ServeHTTP(w, r)
	})
}
