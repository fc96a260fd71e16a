package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"mentorsync/internal/config"
)

var defaultCORSMethods = []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions}

// CORS builds the cors middleware from config. The headers the sync endpoints
// authenticate with (Authorization and any extra ones, such as the webhook
// signature header) are always allowed.
func CORS(cfg config.CORS, requiredHeaders ...string) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	methods := cfg.AllowMethods
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}

	corsConfig := cors.Config{
		AllowMethods:     methods,
		AllowHeaders:     mergeHeaders(cfg.AllowHeaders, append([]string{"Authorization", "Content-Type"}, requiredHeaders...)),
		ExposeHeaders:    cfg.ExposeHeaders,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	}

	if cfg.AllowAllOrigins {
		corsConfig.AllowOriginFunc = func(string) bool { return true }
	} else {
		corsConfig.AllowOrigins = cfg.AllowOrigins
	}

	return cors.New(corsConfig)
}

// mergeHeaders appends required to configured, skipping case-insensitive
// duplicates and blanks.
func mergeHeaders(configured, required []string) []string {
	seen := make(map[string]struct{}, len(configured)+len(required))
	out := make([]string, 0, len(configured)+len(required))

	for _, h := range append(append([]string{}, configured...), required...) {
		h = strings.TrimSpace(h)
		key := strings.ToLower(h)

		if _, ok := seen[key]; ok || h == "" {
			continue
		}

		seen[key] = struct{}{}
		out = append(out, h)
	}

	return out
}
