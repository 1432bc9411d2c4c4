package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanbang/xdesktop/internal/infrastructure/config"
	"github.com/kanbang/xdesktop/internal/infrastructure/logging"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Root = t.TempDir()
	cfg.Auth.Tokens = "tok:alice"
	cfg.Logging.Development = true
	return cfg
}

func get(t *testing.T, h http.Handler, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestServerRoutes(t *testing.T) {
	srv, err := newServer(testConfig(t), logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	h := srv.Handler()

	w := get(t, h, "/cloud/alice?q=index", "tok")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	assert.Equal(t, http.StatusOK, get(t, h, "/health", "").Code)

	w = get(t, h, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `vfs_operation_calls_total{operation="index",status="success"} 1`)
	assert.Contains(t, w.Body.String(), "vfs_principals_cached 1")

	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/cloud/alice?q=index", "").Code)
}

func TestNewServerServesCloudRoute(t *testing.T) {
	cfg := testConfig(t)
	cfg.Logging.Level = "error"

	var srv *Server
	require.NotPanics(t, func() {
		var err error
		srv, err = NewServer(cfg)
		require.NoError(t, err)
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/cloud/alice", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/cloud/alice?q=newfolder", strings.NewReader(`{"name":"docs"}`))
	req.Header.Set("Authorization", "Bearer tok")
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.DirExists(t, filepath.Join(cfg.Storage.Root, "alice", "document", "docs"))
}

func TestServerCreatesAdapterDirectories(t *testing.T) {
	cfg := testConfig(t)
	srv, err := newServer(cfg, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	get(t, srv.Handler(), "/cloud/alice?q=index", "tok")
	for _, key := range cfg.Storage.Adapters {
		info, err := os.Stat(filepath.Join(cfg.Storage.Root, "alice", key))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestAuthorizationCanBeDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Tokens = ""
	cfg.Auth.Required = false
	srv, err := newServer(cfg, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	assert.Equal(t, http.StatusOK, get(t, srv.Handler(), "/cloud/bob?q=index", "").Code)
}

func TestServerRejectsBadTokens(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Tokens = "missing-principal"
	_, err := newServer(cfg, logging.NewNop())
	assert.Error(t, err)

	cfg.Auth.Tokens = "tok:bad principal"
	_, err = newServer(cfg, logging.NewNop())
	assert.Error(t, err)
}

func TestReloadChangesLogLevel(t *testing.T) {
	cfg := testConfig(t)
	logger, err := logging.New(logging.Config{
		Level:       "info",
		OutputPaths: []string{filepath.Join(t.TempDir(), "server.log")},
	})
	require.NoError(t, err)
	srv, err := newServer(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	next := *cfg
	next.Logging.Level = "error"
	require.NoError(t, srv.Reload(&next))
	assert.Equal(t, "error", logger.Level())
	assert.Equal(t, "error", srv.config.Logging.Level)

	next.Logging.Level = "loud"
	assert.Error(t, srv.Reload(&next))
	assert.Equal(t, "error", logger.Level())
	assert.Equal(t, "error", srv.config.Logging.Level)
}

func TestGlobalRateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit.RequestsPerSecond = 1000
	cfg.RateLimit.Burst = 1000
	cfg.RateLimit.GlobalRequestsPerSecond = 1
	cfg.RateLimit.GlobalBurst = 1
	srv, err := newServer(cfg, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	assert.Equal(t, http.StatusOK, get(t, srv.Handler(), "/health", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(t, srv.Handler(), "/health", "").Code)
}

func TestGlobalRateLimitOffByDefault(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit.RequestsPerSecond = 1000
	cfg.RateLimit.Burst = 1000
	srv, err := newServer(cfg, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	for i := 0; i < 20; i++ {
		require.Equal(t, http.StatusOK, get(t, srv.Handler(), "/health", "").Code)
	}
}
