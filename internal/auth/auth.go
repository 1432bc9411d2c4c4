// Package auth resolves the caller of a request from its bearer token.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/crypto/bcrypt"

	"github.com/kanbang/xdesktop/internal/domain/vfs"
)

const bearerPrefix = "Bearer "

// verifiedTTL is how long a token that matched a bcrypt entry skips
// re-hashing.
const verifiedTTL = 5 * time.Minute

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrNoTokens     = errors.New("no tokens configured")
)

// Authenticator maps a request onto the calling principal. Requests without
// credentials resolve to vfs.Anonymous; requests with bad credentials fail.
type Authenticator interface {
	Authenticate(r *http.Request) (vfs.Principal, error)
}

// AnonymousOnly treats every caller as anonymous.
type AnonymousOnly struct{}

func (AnonymousOnly) Authenticate(*http.Request) (vfs.Principal, error) {
	return vfs.Anonymous, nil
}

type tokenEntry struct {
	token     []byte
	hashed    bool
	principal vfs.Principal
}

// StaticTokens authenticates against a fixed token table. A table entry may
// be a bcrypt hash of the token instead of the token itself.
type StaticTokens struct {
	entries  []tokenEntry
	hashed   bool
	verified *ttlcache.Cache[string, vfs.Principal]
}

// NewStaticTokens creates an authenticator from token to principal pairs.
func NewStaticTokens(tokens map[string]vfs.Principal) (*StaticTokens, error) {
	if len(tokens) == 0 {
		return nil, ErrNoTokens
	}
	s := &StaticTokens{
		entries: make([]tokenEntry, 0, len(tokens)),
		verified: ttlcache.New[string, vfs.Principal](
			ttlcache.WithTTL[string, vfs.Principal](verifiedTTL),
			ttlcache.WithCapacity[string, vfs.Principal](1024),
		),
	}
	for token, p := range tokens {
		if token == "" {
			return nil, fmt.Errorf("empty token for %s", p)
		}
		if err := vfs.ValidatePrincipal(p); err != nil {
			return nil, fmt.Errorf("token principal %q: %w", string(p), err)
		}
		hashed := IsHashed(token)
		s.hashed = s.hashed || hashed
		s.entries = append(s.entries, tokenEntry{token: []byte(token), hashed: hashed, principal: p})
	}
	return s, nil
}

// IsHashed reports whether token is a bcrypt hash.
func IsHashed(token string) bool {
	_, err := bcrypt.Cost([]byte(token))
	return err == nil
}

// Authenticate resolves the bearer token of r. Every plain entry is compared
// so timing does not depend on which token matched.
func (s *StaticTokens) Authenticate(r *http.Request) (vfs.Principal, error) {
	token := BearerToken(r)
	if token == "" {
		return vfs.Anonymous, nil
	}

	found := vfs.Anonymous
	for _, e := range s.entries {
		if !e.hashed && subtle.ConstantTimeCompare([]byte(token), e.token) == 1 {
			found = e.principal
		}
	}
	if found.IsAnonymous() && s.hashed {
		found = s.verifyHashed(token)
	}
	if found.IsAnonymous() {
		return vfs.Anonymous, ErrInvalidToken
	}
	return found, nil
}

func (s *StaticTokens) verifyHashed(token string) vfs.Principal {
	sum := sha256.Sum256([]byte(token))
	key := hex.EncodeToString(sum[:])
	if item := s.verified.Get(key); item != nil {
		return item.Value()
	}
	for _, e := range s.entries {
		if e.hashed && bcrypt.CompareHashAndPassword(e.token, []byte(token)) == nil {
			s.verified.Set(key, e.principal, ttlcache.DefaultTTL)
			return e.principal
		}
	}
	return vfs.Anonymous
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}

// ParseTokens parses "token:principal" pairs separated by commas.
func ParseTokens(spec string) (map[string]vfs.Principal, error) {
	tokens := make(map[string]vfs.Principal)
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, principal, ok := strings.Cut(pair, ":")
		if !ok || token == "" || principal == "" {
			return nil, fmt.Errorf("malformed token entry %q, expected token:principal", pair)
		}
		if _, dup := tokens[token]; dup {
			return nil, fmt.Errorf("duplicate token for %s", principal)
		}
		tokens[token] = vfs.Principal(principal)
	}
	return tokens, nil
}
