package config

import "time"

type Config interface {
	EnvConfig
	OIDCConfig
}

type EnvConfig interface {
	GetAppName() string
	GetAuthBaseURL() string
	GetCredentialFile() string
	GetBootstrapTimeout() time.Duration
	GetLogLevel() string
	GetDemoEmail() string
	GetDemoPassword() string
	GetDemoFullName() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	OIDC
}

func New() Config {
	return mainConfig{}
}
