package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/latticedb/lattice/pkg/auth"
)

const sessionContextKey = "lattice-session"

// NewSession resolves the auth.Session for each request and stores it in the
// request context.
//
// When a verifier is configured, a bearer token classifies the session:
// invalid tokens are rejected, a missing token yields an unauthenticated
// session (the clock decides per component what an unauthenticated caller
// may see). When no verifier is configured every caller is trusted.
func NewSession(verifier auth.Verifier, conf *auth.LoadedConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		localhostBypass := false
		if conf != nil && conf.LocalhostBypass {
			if ip := net.ParseIP(c.ClientIP()); ip != nil && ip.IsLoopback() {
				localhostBypass = true
			}
		}

		if verifier == nil {
			// Authentication is disabled cluster-wide so every caller may
			// advance the clock.
			c.Set(sessionContextKey, &auth.ClientSession{
				AdvanceClusterTime: true,
				LocalhostBypass:    localhostBypass,
			})
			c.Next()
			return
		}

		tokenString, ok := bearerToken(c.Request)
		if !ok {
			c.Set(sessionContextKey, &auth.ClientSession{
				LocalhostBypass: localhostBypass,
			})
			c.Next()
			return
		}

		token, err := verifier.Verify(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(
				http.StatusUnauthorized,
				gin.H{"error": err.Error()},
			)
			return
		}

		var tags auth.Tags
		if token.Internal {
			tags |= auth.TagInternalClient
		}
		c.Set(sessionContextKey, &auth.ClientSession{
			SessionTags:        tags,
			Authenticated:      true,
			LocalhostBypass:    localhostBypass,
			AdvanceClusterTime: token.Internal || token.AdvanceClusterTime,
		})
		c.Next()
	}
}

// Session returns the session resolved for the request, or nil if none.
func Session(c *gin.Context) auth.Session {
	v, ok := c.Get(sessionContextKey)
	if !ok {
		return nil
	}
	sess, ok := v.(auth.Session)
	if !ok {
		return nil
	}
	return sess
}

func bearerToken(r *http.Request) (string, bool) {
	authorization := r.Header.Get("Authorization")
	if authorization == "" {
		return "", false
	}
	token, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok {
		return "", false
	}
	return token, true
}
