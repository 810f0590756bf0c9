package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ConfigFileEnvVar names a YAML file whose keys overlay the built-in defaults.
const ConfigFileEnvVar = "AGENT_CLIENT_CONFIG"

type Config interface {
	EnvConfig
	ClientConfig
	QueueConfig
	StorageConfig
	ServerConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetBaseURL() string
	GetDataFolder() string
	GetDebug() bool
	GetLogLevel() string
}

type mainConfig struct {
	EnvVars
	Client
	Queue
	Storage
	Server
}

// New returns a Config backed by environment variables. When AGENT_CLIENT_CONFIG
// is set the named YAML file is loaded as a fallback layer beneath the environment.
func New() Config {
	if path := os.Getenv(ConfigFileEnvVar); path != "" {
		if c, err := Load(path); err == nil {
			return c
		}
	}
	return newMainConfig(&source{})
}

// Load reads a flat YAML file of KEY: value pairs. Keys use the same names as the
// environment variables; the environment still wins when both are set.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load read %s: %w", path, err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config.Load parse %s: %w", path, err)
	}
	file := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		file[k] = fmt.Sprint(v)
	}
	return newMainConfig(&source{file: file}), nil
}

func newMainConfig(src *source) mainConfig {
	return mainConfig{
		EnvVars: EnvVars{src: src},
		Client:  Client{src: src},
		Queue:   Queue{src: src},
		Storage: Storage{src: src},
		Server:  Server{src: src},
	}
}
