package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// source resolves a setting from the environment, then the optional config
// file, then the supplied default.
type source struct {
	file map[string]string
}

func (s *source) value(name, defaultValue string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	if s != nil {
		if v, ok := s.file[name]; ok && v != "" {
			return v
		}
	}
	return defaultValue
}

func (s *source) duration(name string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(s.value(name, ""))
	if err != nil || d < 0 {
		return defaultValue
	}
	return d
}

func (s *source) integer(name string, defaultValue int) int {
	i, err := strconv.Atoi(s.value(name, ""))
	if err != nil {
		return defaultValue
	}
	return i
}

func (s *source) boolean(name string, defaultValue bool) bool {
	b, err := strconv.ParseBool(s.value(name, ""))
	if err != nil {
		return defaultValue
	}
	return b
}

func (s *source) durations(name string, defaultValue []time.Duration) []time.Duration {
	raw := s.value(name, "")
	if raw == "" {
		return defaultValue
	}
	var out []time.Duration
	for _, part := range strings.Split(raw, ",") {
		d, err := time.ParseDuration(strings.TrimSpace(part))
		if err != nil || d < 0 {
			return defaultValue
		}
		out = append(out, d)
	}
	return out
}

// GetEnv returns the environment variable or the default value when unset.
func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
