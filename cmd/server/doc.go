// Package main is the entry point for the virtual file service.
//
// The server exposes each principal's storage roots (adapters) through a
// single endpoint, /cloud/:username?q=<operation>, plus /health and
// /metrics.
//
// Configuration:
//   - Environment variables (12-factor), see internal/infrastructure/config
//   - CLI flags (override env vars)
//
// Usage:
//
//	STORAGE_ROOT=/srv/cloud AUTH_TOKENS=s3cret:alice ./server -port 8005
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
