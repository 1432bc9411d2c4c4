package middleware

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSConfig defines which browser origins may call the cloud endpoint.
type CORSConfig struct {
	AllowOrigins  []string
	AllowMethods  []string
	AllowHeaders  []string
	ExposeHeaders []string
	MaxAge        time.Duration
}

// DefaultCORSConfig returns the CORS configuration used by the file widget,
// which runs on a different origin than the service.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders: []string{
			"Authorization",
			"Content-Type",
			"Content-Length",
			"Accept",
			"Origin",
			"X-Requested-With",
			"X-Request-ID",
		},
		// Downloads name their file in Content-Disposition.
		ExposeHeaders: []string{
			"Content-Disposition",
			"Content-Length",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}
}

// WithOrigins returns cfg restricted to origins. An empty list keeps the
// current origins.
func (cfg CORSConfig) WithOrigins(origins []string) CORSConfig {
	if len(origins) > 0 {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// AnyOrigin reports whether cfg accepts every origin.
func (cfg CORSConfig) AnyOrigin() bool {
	return slices.Contains(cfg.AllowOrigins, "*")
}

// CORS creates a CORS middleware with the provided configuration.
// Credentials are only allowed for listed origins.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:     cfg.AllowMethods,
		AllowHeaders:     cfg.AllowHeaders,
		ExposeHeaders:    cfg.ExposeHeaders,
		AllowCredentials: !cfg.AnyOrigin(),
		MaxAge:           cfg.MaxAge,
	}
	if cfg.AnyOrigin() {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.AllowOrigins
	}
	return cors.New(c)
}
