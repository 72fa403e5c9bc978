package config

import "time"

// BackendConfig describes how the console reaches the device registration API
type BackendConfig interface {
	GetAPIBaseURL() string
	GetAPITimeout() time.Duration
}

type Backend struct{}

var _ BackendConfig = Backend{}

func (Backend) GetAPIBaseURL() string {
	return GetEnv("API_BASE_URL", "http://localhost:8000/api")
}

// GetAPITimeout bounds every backend call, including the renewal call
func (Backend) GetAPITimeout() time.Duration {
	return GetEnvDuration("API_TIMEOUT", 30*time.Second)
}
