package config

const (
	cachePathEnvVar = "CACHE_PATH"
	cacheKeyEnvVar  = "CACHE_KEY"
)

// CacheConfig selects where the provider keeps accounts, tokens and pending flows
type CacheConfig interface {
	GetCachePath() string
	GetCacheKey() string
}

type Cache struct{}

var _ CacheConfig = Cache{}

// GetCachePath returns the sqlite file for the persistent cache, empty for in-memory
func (Cache) GetCachePath() string {
	return GetEnv(cachePathEnvVar, "")
}

func (Cache) GetCacheKey() string {
	return GetEnv(cacheKeyEnvVar, "")
}
