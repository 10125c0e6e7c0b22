package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stwalsh4118/landflow/internal/models"
)

const (
	// ActorIDHeader carries the authenticated user id set by the gateway.
	ActorIDHeader = "X-Actor-ID"
	// ActorRoleHeader carries that user's role.
	ActorRoleHeader = "X-Actor-Role"

	actorKey = "actor"
)

// Actor reads the identity headers supplied by the upstream gateway. A
// request without them passes through anonymously; a request with an
// incomplete or unknown identity is refused.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(ActorIDHeader))
		role := models.Role(strings.TrimSpace(c.GetHeader(ActorRoleHeader)))
		if id == "" && role == "" {
			c.Next()
			return
		}
		if id == "" || !role.Valid() {
			if log := GetLogger(c); log != nil {
				log.Warn("Rejected malformed actor identity", map[string]interface{}{
					"actor_id":   id,
					"actor_role": role,
				})
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":       "UNAUTHORIZED",
					"message":    "X-Actor-ID and a known X-Actor-Role are required together",
					"request_id": GetRequestID(c),
				},
			})
			return
		}
		c.Set(actorKey, models.Actor{ID: id, Role: role})
		c.Next()
	}
}

// RequireActor refuses requests that reached it without an identity.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := GetActor(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":       "UNAUTHORIZED",
					"message":    "this operation requires an actor identity",
					"request_id": GetRequestID(c),
				},
			})
			return
		}
		c.Next()
	}
}

// GetActor returns the identity set by Actor.
func GetActor(c *gin.Context) (models.Actor, bool) {
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(models.Actor); ok {
			return a, true
		}
	}
	return models.Actor{}, false
}
