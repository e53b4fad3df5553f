package config

import (
	"os"
	"time"
)

const (
	appNameVar          = "APP_NAME"
	authBaseURLVar      = "AUTH_BASE_URL"
	credentialFileVar   = "CREDENTIAL_FILE"
	bootstrapTimeoutVar = "BOOTSTRAP_TIMEOUT"
	logLevelVar         = "LOG_LEVEL"
	demoEmailVar        = "DEMO_EMAIL"
	demoPasswordVar     = "DEMO_PASSWORD"
	demoFullNameVar     = "DEMO_FULL_NAME"

	defaultBootstrapTimeout = 5 * time.Second
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Support Desk")
}

// GetAuthBaseURL returns the auth service to talk to. Empty means the demo
// runs its own in-process backend.
func (EnvVars) GetAuthBaseURL() string {
	return GetEnv(authBaseURLVar, "")
}

// GetCredentialFile returns the credential file location, empty for the
// conventional one in the user's home directory.
func (EnvVars) GetCredentialFile() string {
	return GetEnv(credentialFileVar, "")
}

func (EnvVars) GetBootstrapTimeout() time.Duration {
	timeout, err := time.ParseDuration(GetEnv(bootstrapTimeoutVar, "5s"))
	if err != nil {
		return defaultBootstrapTimeout
	}
	return timeout
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

func (EnvVars) GetDemoEmail() string {
	return GetEnv(demoEmailVar, "demo@supportdesk.local")
}

func (EnvVars) GetDemoPassword() string {
	return GetEnv(demoPasswordVar, "Sup3rSecretPass")
}

func (EnvVars) GetDemoFullName() string {
	return GetEnv(demoFullNameVar, "Demo Agent")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
