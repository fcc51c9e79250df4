package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/agentdesk/internal/observability/context"
	"github.com/smallbiznis/agentdesk/internal/orgcontext"
	"github.com/smallbiznis/agentdesk/internal/tenancy"
	"go.uber.org/zap"
)

const HeaderActorRole = "X-Actor-Role"

// ActorScope resolves the caller role into the tenant filter scope used by
// every repository query of the request.
func (s *Server) ActorScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := strings.TrimSpace(c.GetHeader(HeaderActorRole))

		ctx := c.Request.Context()
		ctx = orgcontext.WithActorRole(ctx, role)
		if role != "" {
			ctx = obscontext.WithActorRole(ctx, strings.ToLower(role))
		}
		if orgRef := strings.TrimSpace(c.Param("org")); orgRef != "" {
			ctx = obscontext.WithOrgID(ctx, orgRef)
		}

		scope, err := s.authzSvc.ScopeFor(ctx)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Request = c.Request.WithContext(tenancy.WithScope(ctx, scope))
		c.Next()
	}
}

// OrgRateLimit applies the per-organization mutation budget. Limiter errors
// fail open so a Redis outage does not stop calls from being admitted.
func (s *Server) OrgRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		orgRef := strings.TrimSpace(c.Param("org"))
		res, err := s.limiter.Allow(c.Request.Context(), orgRef)
		if err != nil {
			s.log.Warn("rate limiter unavailable", zap.String("org_ref", orgRef), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			retry := int(math.Ceil(res.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
