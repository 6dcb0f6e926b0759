package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const (
	responseMetaKey  = "response_meta"
	requestStartKey  = "request_start"
	cacheHitKey      = "cache_hit"
	connectionKey    = "connection_status"
	processingTimeMS = "processing_time_ms"
)

// WithResponseMeta gives every request a metadata map that handlers fill in and
// the response envelope carries under "meta".
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(requestStartKey, time.Now())
		c.Set(responseMetaKey, map[string]interface{}{})
		c.Next()
	}
}

// SetMeta stores a single metadata entry for the current response.
func SetMeta(c *gin.Context, key string, value interface{}) {
	metaFor(c)[key] = value
}

// SetCacheHit records whether the response body was served from cache.
func SetCacheHit(c *gin.Context, hit bool) {
	SetMeta(c, cacheHitKey, hit)
}

// SetConnectionStatus records the table cache link state behind a queue view,
// letting clients tell a stale snapshot from a live one.
func SetConnectionStatus(c *gin.Context, status string) {
	SetMeta(c, connectionKey, status)
}

// ExtractMeta returns the metadata for the current response, stamped with the
// time spent so far. Nil when the middleware is not installed and nothing was set.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	raw, ok := c.Get(responseMetaKey)
	if !ok {
		return nil
	}
	meta, ok := raw.(map[string]interface{})
	if !ok {
		return nil
	}
	if start, ok := c.Get(requestStartKey); ok {
		if t, ok := start.(time.Time); ok {
			meta[processingTimeMS] = time.Since(t).Milliseconds()
		}
	}
	return meta
}

func metaFor(c *gin.Context) map[string]interface{} {
	if raw, ok := c.Get(responseMetaKey); ok {
		if meta, ok := raw.(map[string]interface{}); ok {
			return meta
		}
	}
	meta := map[string]interface{}{}
	c.Set(responseMetaKey, meta)
	return meta
}
