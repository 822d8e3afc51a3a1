package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/Krish-Depani/customer-auth-service/registry"
)

const identityCacheKey = "identity_cache"

// IdentityCache gives every request its own customer cache and empties it
// when the request ends.
func IdentityCache(loader registry.Loader) gin.HandlerFunc {
	return func(c *gin.Context) {
		cache := registry.New(loader)
		c.Set(identityCacheKey, cache)
		defer cache.ResetAll()

		c.Next()
	}
}

// Cache returns the request's identity cache. Outside IdentityCache it
// returns a fresh cache that lives as long as the caller keeps it.
func Cache(c *gin.Context, loader registry.Loader) *registry.Registry {
	if v, ok := c.Get(identityCacheKey); ok {
		if cache, ok := v.(*registry.Registry); ok {
			return cache
		}
	}
	cache := registry.New(loader)
	c.Set(identityCacheKey, cache)
	return cache
}
