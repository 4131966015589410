package middleware

import (
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/SAOSTAR1501/sso-backend/internal/services"

	"github.com/gin-gonic/gin"
)

const corsVerdictTTL = time.Minute

type corsVerdict struct {
	allowed bool
	expires time.Time
}

// CORS answers cross-origin requests for the statically configured origins
// and for any origin a registered client application allows. Registry
// verdicts are cached briefly so preflights do not hit the database on
// every request.
func CORS(staticOrigins []string, clients *services.ClientAppService) gin.HandlerFunc {
	static := make(map[string]bool, len(staticOrigins))
	for _, origin := range staticOrigins {
		static[strings.ToLower(strings.TrimSuffix(origin, "/"))] = true
	}

	var mu sync.Mutex
	verdicts := make(map[string]corsVerdict)

	originAllowed := func(c *gin.Context, origin string) bool {
		if static[strings.ToLower(strings.TrimSuffix(origin, "/"))] {
			return true
		}
		if clients == nil {
			return false
		}

		mu.Lock()
		cached, ok := verdicts[origin]
		mu.Unlock()
		if ok && time.Now().Before(cached.expires) {
			return cached.allowed
		}

		allowed, err := clients.AnyClientAllowsOrigin(c.Request.Context(), origin)
		if err != nil {
			log.Printf("[CORS] origin lookup failed for %s: %v", origin, err)
			return false
		}

		mu.Lock()
		verdicts[origin] = corsVerdict{allowed: allowed, expires: time.Now().Add(corsVerdictTTL)}
		mu.Unlock()
		return allowed
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}

		if originAllowed(c, origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
			c.Header("Access-Control-Max-Age", "600")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
