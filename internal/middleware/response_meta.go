package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const responseMetaKey = "response_meta"

// ResponseMeta is the "meta" object handlers attach to the response envelope.
type ResponseMeta map[string]interface{}

// WithResponseMeta gives every request an empty ResponseMeta and stamps
// processing_time_ms unless the handler already did.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		meta := ResponseMeta{}
		c.Set(responseMetaKey, meta)
		c.Next()
		if _, set := meta["processing_time_ms"]; !set {
			meta["processing_time_ms"] = time.Since(started).Milliseconds()
		}
	}
}

// SetCacheHit tells the client whether analytics came from the cache.
func SetCacheHit(c *gin.Context, hit bool) {
	metaOf(c)["cache_hit"] = hit
}

// ExtractMeta returns the request's meta map, or nil outside WithResponseMeta.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	value, exists := c.Get(responseMetaKey)
	if !exists {
		return nil
	}
	meta, _ := value.(ResponseMeta)
	return meta
}

func metaOf(c *gin.Context) ResponseMeta {
	if meta := ExtractMeta(c); meta != nil {
		return meta
	}
	meta := ResponseMeta{}
	if c != nil {
		c.Set(responseMetaKey, meta)
	}
	return meta
}
