package utils

import (
	"os"
	"strconv"
	"time"
)

// envValue parses the variable named key, falling back to defaultVal when it is
// unset or does not parse.
func envValue[T any](key string, defaultVal T, parse func(string) (T, error)) T {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultVal
	}
	result, err := parse(value)
	if err != nil {
		return defaultVal
	}
	return result
}

func GetEnvAsString(key string, defaultVal string) string {
	return envValue(key, defaultVal, func(s string) (string, error) { return s, nil })
}

func GetEnvAsInt(key string, defaultVal int) int {
	return envValue(key, defaultVal, strconv.Atoi)
}

func GetEnvAsUint64(key string, defaultVal uint64) uint64 {
	return envValue(key, defaultVal, func(s string) (uint64, error) {
		return strconv.ParseUint(s, 10, 64)
	})
}

func GetEnvAsBool(key string, defaultVal bool) bool {
	return envValue(key, defaultVal, strconv.ParseBool)
}

// GetEnvAsDuration accepts Go duration syntax ("90s", "30m") or a bare number
// of seconds.
func GetEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	return envValue(key, defaultVal, func(s string) (time.Duration, error) {
		if seconds, err := strconv.Atoi(s); err == nil {
			return time.Duration(seconds) * time.Second, nil
		}
		return time.ParseDuration(s)
	})
}
