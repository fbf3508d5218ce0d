package config

type Config interface {
	EnvConfig
	IdentityConfig
	CacheConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetAPIBaseURL() string
}

type mainConfig struct {
	EnvVars
	Identity
	Cache
}

func New() Config {
	return mainConfig{}
}
