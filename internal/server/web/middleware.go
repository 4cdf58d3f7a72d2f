package web

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/educhain/internal/common"
	"github.com/dmitrijs2005/educhain/internal/server/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"

	signinPath = "/auth/signin"

	roleIssuer  = common.RoleIssuer
	roleStudent = common.RoleStudent
)

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Info(c.Request.Context(), "http request",
			"request_id", c.GetString(requestIDKey),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// recovery turns a handler panic into a logged 500.
func (s *Server) recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, rec any) {
		s.logger.Error(c.Request.Context(), "panic recovered",
			"request_id", c.GetString(requestIDKey),
			"path", c.Request.URL.Path,
			"panic", rec,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": msgInternal})
	})
}

func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m := s.deps.Metrics
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// sessionAuth resolves the session cookie for every path not covered by an
// exclusion rule. Requests without a live session go to the sign-in page.
func (s *Server) sessionAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.exclusions.Match(c.Request.URL.Path) {
			c.Next()
			return
		}

		ident, ok := s.resolveIdentity(c)
		if !ok {
			c.Redirect(http.StatusFound, signinPath)
			c.Abort()
			return
		}

		c.Set(ginIdentityKey, ident)
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), ident))
		c.Next()
	}
}

func (s *Server) resolveIdentity(c *gin.Context) (*models.Identity, bool) {
	token, ok := s.sessionToken(c)
	if !ok {
		return nil, false
	}

	ident, err := s.deps.Users.ResolveSession(c.Request.Context(), token)
	if err != nil {
		if !errors.Is(err, common.ErrorUnauthorized) {
			s.logger.Warn(c.Request.Context(), "session lookup failed", "error", err)
		}
		return nil, false
	}
	return ident, true
}

// sessionToken returns the raw token from a correctly signed cookie.
func (s *Server) sessionToken(c *gin.Context) (string, bool) {
	raw, err := c.Cookie(common.SessionCookieName)
	if err != nil || raw == "" {
		return "", false
	}
	token, err := s.deps.Cookies.Decode(raw)
	if err != nil {
		return "", false
	}
	return token, true
}

func (s *Server) requireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident := identity(c)
		if ident == nil {
			s.fail(c, http.StatusUnauthorized, msgUnauthorized)
			return
		}
		if ident.Role != role {
			s.fail(c, http.StatusForbidden, msgForbidden)
			return
		}
		c.Next()
	}
}

func (s *Server) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(common.SessionCookieName, value, maxAge, "/", "", s.opts.CookieSecure, true)
}
