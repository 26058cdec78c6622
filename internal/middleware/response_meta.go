package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const (
	responseMetaKey = "response_meta"
	requestStartKey = "request_start"
	cacheHitKey     = "cache_hit"
)

// WithResponseMeta stamps the request start time and prepares the metadata
// map that read endpoints attach to their envelope.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(requestStartKey, time.Now())
		c.Set(responseMetaKey, map[string]interface{}{})
		c.Next()
	}
}

// SetCacheHit records whether the response was served from the progress
// cache, both in the envelope meta and the X-Cache header.
func SetCacheHit(c *gin.Context, hit bool) {
	if c == nil {
		return
	}
	meta(c)[cacheHitKey] = hit
	if hit {
		c.Header("X-Cache", "HIT")
		return
	}
	c.Header("X-Cache", "MISS")
}

// ResponseMeta returns the metadata collected for the current request with
// processing_time_ms filled in when the start time was stamped.
func ResponseMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return map[string]interface{}{}
	}
	m := meta(c)
	if raw, ok := c.Get(requestStartKey); ok {
		if start, ok := raw.(time.Time); ok {
			m["processing_time_ms"] = time.Since(start).Milliseconds()
		}
	}
	return m
}

func meta(c *gin.Context) map[string]interface{} {
	if raw, ok := c.Get(responseMetaKey); ok {
		if typed, ok := raw.(map[string]interface{}); ok {
			return typed
		}
	}
	fresh := make(map[string]interface{})
	c.Set(responseMetaKey, fresh)
	return fresh
}
