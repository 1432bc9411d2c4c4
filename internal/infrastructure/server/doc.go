// Package server assembles the gin engine: middleware, the cloud endpoint,
// health and Prometheus routes, and the HTTP server lifecycle.
package server
