// Package auth gates publishing with a stream-key allow-list and protects
// the key-provisioning endpoints with JWT admin tokens.
package auth

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"gamestream/pkg/config"
	"gamestream/pkg/streamerr"
)

// Gate validates stream keys. With the gate disabled every key is valid;
// enabled, only keys on the allow-list pass. Key changes take effect for
// later validations only; publishes already in flight are not revoked.
type Gate struct {
	enabled   bool
	jwtSecret []byte

	mu   sync.RWMutex
	keys map[string]struct{}
}

// New builds a gate from the auth configuration.
func New(cfg config.AuthConfig) *Gate {
	g := &Gate{
		enabled: cfg.Enabled,
		keys:    make(map[string]struct{}, len(cfg.ValidStreamKeys)),
	}
	if cfg.JWTSecret != "" {
		g.jwtSecret = []byte(cfg.JWTSecret)
	}
	for _, k := range cfg.ValidStreamKeys {
		g.keys[k] = struct{}{}
	}
	return g
}

// Validate checks a stream key against the allow-list.
func (g *Gate) Validate(key string) error {
	if !g.enabled {
		return nil
	}
	g.mu.RLock()
	_, ok := g.keys[key]
	g.mu.RUnlock()
	if !ok {
		return streamerr.New(streamerr.KindInvalidStreamKey, "stream key %q not authorized", key)
	}
	return nil
}

// AddStreamKey puts key on the allow-list.
func (g *Gate) AddStreamKey(key string) {
	g.mu.Lock()
	g.keys[key] = struct{}{}
	g.mu.Unlock()
}

// RemoveStreamKey drops key from the allow-list. In-flight publishes with
// the key keep running.
func (g *Gate) RemoveStreamKey(key string) {
	g.mu.Lock()
	delete(g.keys, key)
	g.mu.Unlock()
}

// Keys snapshots the allow-list.
func (g *Gate) Keys() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.keys))
	for k := range g.keys {
		out = append(out, k)
	}
	return out
}

// AdminEnabled reports whether admin tokens can be validated at all.
func (g *Gate) AdminEnabled() bool { return len(g.jwtSecret) > 0 }

// AdminClaims are the claims carried by an admin provisioning token.
type AdminClaims struct {
	Subject string `json:"sub_name,omitempty"`
	jwt.RegisteredClaims
}

// IssueAdminToken signs a short-lived admin token.
func (g *Gate) IssueAdminToken(subject string, ttl time.Duration) (string, error) {
	if !g.AdminEnabled() {
		return "", streamerr.New(streamerr.KindAuth, "admin tokens not configured")
	}
	claims := &AdminClaims{
		Subject: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(g.jwtSecret)
	if err != nil {
		return "", streamerr.Wrap(streamerr.KindAuth, err, "signing admin token")
	}
	return signed, nil
}

// ValidateAdminToken checks an admin token's signature and expiry.
func (g *Gate) ValidateAdminToken(tokenString string) (*AdminClaims, error) {
	if !g.AdminEnabled() {
		return nil, streamerr.New(streamerr.KindAuth, "admin tokens not configured")
	}
	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify the signing method to prevent algorithm confusion attacks
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return g.jwtSecret, nil
	})
	if err != nil {
		return nil, streamerr.Wrap(streamerr.KindAuth, err, "validating admin token")
	}
	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid {
		return nil, streamerr.New(streamerr.KindAuth, "invalid admin token")
	}
	return claims, nil
}
