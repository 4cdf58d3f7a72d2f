package config

import (
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is prepended to every environment variable name, e.g.
// EDUCHAIN_DATABASE_DSN.
const EnvPrefix = "EDUCHAIN"

// dotEnvFiles is a seam for tests.
var dotEnvFiles = []string{".env"}

// loadDotEnv copies variables from .env into the process environment without
// overriding variables that are already set. A missing file is not an error.
func loadDotEnv() {
	_ = godotenv.Load(dotEnvFiles...)
}

// parseEnv overlays EDUCHAIN_* variables onto config. Unset variables keep
// the value already present in config. Malformed values panic, matching the
// other configuration layers.
func parseEnv(config *Config) {
	if err := envconfig.Process(EnvPrefix, config); err != nil {
		panic(err)
	}
}
