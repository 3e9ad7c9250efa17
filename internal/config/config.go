// Package config loads TrailTag's runtime configuration from the environment.
package config

import (
	"os"
	"strconv"
)

// Config is the immutable runtime configuration for the service.
type Config struct {
	// StorageDir is the filesystem root for the storage snapshots (C1).
	StorageDir string
	// OpenAIAPIKey and GoogleAPIKey are loaded for the external
	// agent-pipeline/geocoding collaborators; the stub collaborators wired in
	// this module do not read them. Never logged.
	OpenAIAPIKey string
	GoogleAPIKey string
	// Host and Port bind the HTTP surface (C8).
	Host string
	Port int
	// MaxConcurrentJobs bounds the executor's worker pool (C5).
	MaxConcurrentJobs int
	// JobTTLSeconds is loaded from JOB_TTL_SECONDS but not read by any
	// component: the job registry applies its own fixed 60-second TTL to
	// terminal jobs.
	JobTTLSeconds int
	// StorageBackend selects the C1 implementation: "file" (default) or "redis".
	StorageBackend string
	// RedisAddr is used only when StorageBackend == "redis".
	RedisAddr string
}

// Load builds a Config from the process environment, applying defaults.
func Load() Config {
	return Config{
		StorageDir:        getString("CREWAI_STORAGE_DIR", "./crewai_storage"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		GoogleAPIKey:      os.Getenv("GOOGLE_API_KEY"),
		Host:              getString("API_HOST", "0.0.0.0"),
		Port:              getInt("API_PORT", 8000),
		MaxConcurrentJobs: getInt("MAX_CONCURRENT_JOBS", 5),
		JobTTLSeconds:     getInt("JOB_TTL_SECONDS", 60),
		StorageBackend:    getString("STORAGE_BACKEND", "file"),
		RedisAddr:         getString("REDIS_ADDR", "localhost:6379"),
	}
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
