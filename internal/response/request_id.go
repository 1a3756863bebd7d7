package response

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// ContextKeyRequestID is the Gin context key for the request ID.
	ContextKeyRequestID = "request_id"
	HeaderRequestID     = "X-Request-ID"
)

// RequestIDMiddleware keeps a caller's X-Request-ID when it is a UUID and
// mints one otherwise. The id is echoed back and a logger carrying it is
// attached to the request context for zerolog.Ctx.
func RequestIDMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.GetHeader(HeaderRequestID))
		if err != nil {
			id = uuid.New()
		}
		reqID := id.String()

		c.Set(ContextKeyRequestID, reqID)
		c.Header(HeaderRequestID, reqID)

		ctx := log.With().Str("request_id", reqID).Logger().WithContext(c.Request.Context())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
