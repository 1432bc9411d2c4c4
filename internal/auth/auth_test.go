package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kanbang/xdesktop/internal/domain/vfs"
)

func request(header string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/cloud/alice", nil)
	if header != "" {
		r.Header.Set("Authorization", header)
	}
	return r
}

func TestStaticTokens(t *testing.T) {
	a, err := NewStaticTokens(map[string]vfs.Principal{
		"alice-secret": "alice",
		"bob-secret":   "bob",
	})
	require.NoError(t, err)

	p, err := a.Authenticate(request("Bearer alice-secret"))
	require.NoError(t, err)
	assert.Equal(t, vfs.Principal("alice"), p)

	p, err = a.Authenticate(request("bearer bob-secret"))
	require.NoError(t, err)
	assert.Equal(t, vfs.Principal("bob"), p)

	p, err = a.Authenticate(request(""))
	require.NoError(t, err)
	assert.True(t, p.IsAnonymous())

	_, err = a.Authenticate(request("Bearer wrong"))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewStaticTokensValidation(t *testing.T) {
	_, err := NewStaticTokens(nil)
	assert.ErrorIs(t, err, ErrNoTokens)

	_, err = NewStaticTokens(map[string]vfs.Principal{"t": "../etc"})
	assert.Error(t, err)

	_, err = NewStaticTokens(map[string]vfs.Principal{"": "alice"})
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"BEARER  abc ", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BearerToken(request(tt.header)), tt.header)
	}
}

func TestParseTokens(t *testing.T) {
	tokens, err := ParseTokens("a1:alice, b2:bob,")
	require.NoError(t, err)
	assert.Equal(t, map[string]vfs.Principal{"a1": "alice", "b2": "bob"}, tokens)

	tokens, err = ParseTokens("")
	require.NoError(t, err)
	assert.Empty(t, tokens)

	for _, bad := range []string{"nocolon", ":alice", "tok:", "x:alice,x:bob"} {
		_, err := ParseTokens(bad)
		assert.Error(t, err, bad)
	}
}

func TestAnonymousOnly(t *testing.T) {
	p, err := AnonymousOnly{}.Authenticate(request("Bearer anything"))
	require.NoError(t, err)
	assert.True(t, p.IsAnonymous())
}

func TestHashedTokens(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("carol-secret"), bcrypt.MinCost)
	require.NoError(t, err)
	require.True(t, IsHashed(string(hash)))
	assert.False(t, IsHashed("carol-secret"))

	tokens, err := ParseTokens(string(hash) + ":carol,plain:dave")
	require.NoError(t, err)
	a, err := NewStaticTokens(tokens)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		p, err := a.Authenticate(request("Bearer carol-secret"))
		require.NoError(t, err)
		assert.Equal(t, vfs.Principal("carol"), p)
	}
	assert.Equal(t, 1, a.verified.Len(), "verified token is cached")

	_, err = a.Authenticate(request("Bearer " + string(hash)))
	assert.ErrorIs(t, err, ErrInvalidToken, "the hash itself is not a credential")

	p, err := a.Authenticate(request("Bearer plain"))
	require.NoError(t, err)
	assert.Equal(t, vfs.Principal("dave"), p)
}
