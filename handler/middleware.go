package handler

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"nfcunha/vigil/core/models"
	"nfcunha/vigil/core/service"

	"github.com/gin-gonic/gin"
)

const sessionKey = "vigil.session"

// SessionFrom returns the session attached by SessionGateway, or nil.
func SessionFrom(c *gin.Context) *models.Session {
	if v, ok := c.Get(sessionKey); ok {
		if s, ok := v.(*models.Session); ok {
			return s
		}
	}
	return nil
}

// SessionGateway rejects requests without a valid session. Paths under
// basePath get a 401 JSON error; any other path is redirected to /login.
func SessionGateway(auth *service.AuthService, cookieName, basePath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := c.Cookie(cookieName)
		session, err := auth.Authenticate(c.Request.Context(), id)
		if err != nil {
			if isAPIPath(c.Request.URL.Path, basePath) {
				respondError(c, http.StatusUnauthorized, codeUnauthenticated, "Authentication required", nil)
				return
			}
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}
		c.Set(sessionKey, session)
		c.Next()
	}
}

func isAPIPath(path, basePath string) bool {
	return path == basePath || strings.HasPrefix(path, strings.TrimSuffix(basePath, "/")+"/")
}

// IdentityFunc derives the rate limit identity of a request.
type IdentityFunc func(c *gin.Context) string

// ClientIP keys on the client address.
func ClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// SessionOrIP keys on the authenticated session, falling back to the client address.
func SessionOrIP(c *gin.Context) string {
	if s := SessionFrom(c); s != nil {
		return "session:" + s.ID
	}
	return "ip:" + c.ClientIP()
}

// RateLimit enforces a fixed-window bucket and reports it in X-RateLimit-* headers.
func RateLimit(limiter *service.RateLimiter, bucket service.Bucket, identity IdentityFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := limiter.Check(identity(c), bucket)
		if d.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			c.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
		}
		if d.Allowed {
			c.Next()
			return
		}

		retry := int(math.Ceil(d.RetryAfter.Seconds()))
		if retry < 1 {
			retry = 1
		}
		c.Header("Retry-After", strconv.Itoa(retry))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":       "Too many requests",
			"code":        codeRateLimited,
			"retry_after": retry,
		})
	}
}

// RequireFeature answers 404 with message when enabled is false.
func RequireFeature(enabled bool, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			respondError(c, http.StatusNotFound, codeFeatureDisabled, message, nil)
			return
		}
		c.Next()
	}
}
