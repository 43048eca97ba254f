package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/osdentaire/agenda-api/internal/model"
	"github.com/osdentaire/agenda-api/pkg/errors"
	"github.com/osdentaire/agenda-api/pkg/httputil"
)

const (
	HeaderActorID   = "X-Actor-Id"
	HeaderActorRole = "X-Actor-Role"

	contextActorKey = "actor"
)

// RequireActor expects the gateway to have resolved the caller's identity
// into the actor headers and rejects mutating calls without them. Identity
// provisioning itself happens upstream; the engine only attributes changes.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderActorID)
		role := c.GetHeader(HeaderActorRole)
		if id == "" || role == "" {
			httputil.RespondWithError(c, errors.Unauthorized("caller identity not resolved"))
			c.Abort()
			return
		}
		c.Set(contextActorKey, model.Actor{ID: id, Role: role})
		c.Next()
	}
}

// ActorFromContext returns the actor stored by RequireActor, or a zero actor
// when the route did not require one.
func ActorFromContext(c *gin.Context) model.Actor {
	if value, ok := c.Get(contextActorKey); ok {
		if actor, ok := value.(model.Actor); ok {
			return actor
		}
	}
	return model.Actor{}
}
