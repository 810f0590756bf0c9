package config

import "strings"

const (
	appNameVar   = "APP_NAME"
	envVar       = "ENV"
	baseURLVar   = "BASE_URL"
	folderEnvVar = "DATA_FOLDER"
	debugVar     = "DEBUG"
	logLevelVar  = "LOG_LEVEL"
)

type EnvVars struct {
	src *source
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.src.value(appNameVar, "Agent Client")
}

func (e EnvVars) GetEnv() string {
	return strings.ToUpper(e.src.value(envVar, "DEV"))
}

// GetBaseURL returns the API root every request path is resolved against
// (e.g. "https://dashboard.example.com/api").
func (e EnvVars) GetBaseURL() string {
	return strings.TrimRight(e.src.value(baseURLVar, "http://localhost:8080/api"), "/")
}

func (e EnvVars) GetDataFolder() string {
	return e.src.value(folderEnvVar, "./data")
}

// GetDebug enables request/response logging in the dispatcher.
func (e EnvVars) GetDebug() bool {
	return e.src.boolean(debugVar, false)
}

func (e EnvVars) GetLogLevel() string {
	return e.src.value(logLevelVar, "info")
}
