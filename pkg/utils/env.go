package utils

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// LoadEnv loads the .env file for the given mode (".env.development",
// ".env.production", ...), falling back to plain ".env".
func LoadEnv(mode string) error {
	if mode != "" {
		name := fmt.Sprintf(".env.%s", mode)
		if _, err := os.Stat(name); err == nil {
			return godotenv.Load(name)
		}
	}
	return godotenv.Load()
}

// GetEnv returns the raw value of the environment variable.
func GetEnv(key string) string {
	return os.Getenv(key)
}

// GetStringOrDefault returns the environment variable or def when unset.
func GetStringOrDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// GetIntOrDefault returns the environment variable as int or def when unset
// or unparsable.
func GetIntOrDefault(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return n
}

// GetBoolOrDefault returns the environment variable as bool or def when unset
// or unparsable.
func GetBoolOrDefault(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}
