package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

var defaultValues = map[string]interface{}{
	// Server
	"MONITOR_LISTEN_ADDR":      ":5000", // HTTP listen address
	"MONITOR_READ_TIMEOUT":     "15s",   // http.Server ReadTimeout
	"MONITOR_WRITE_TIMEOUT":    "15s",   // http.Server WriteTimeout
	"MONITOR_SHUTDOWN_TIMEOUT": "10s",   // Graceful shutdown deadline
	"MONITOR_WEB_ROOT":         "",      // Directory holding index.html, empty disables
	"MONITOR_FIRMWARE_PATH":    "./firmware/firmware.bin",
	"MONITOR_DEBUG":            false, // Enable debug logging

	// Metrics
	"MONITOR_SAMPLE_INTERVAL": "30s", // How often fleet gauges are refreshed
	"MONITOR_ROLLING_WINDOW":  50,    // Readings in the rolling cpu average

	// Storage
	"MONITOR_STORAGE_BACKEND":       "sqlite",                   // sqlite or memory
	"MONITOR_DB_PATH":               "./data/health_monitor.db", // SQLite database path
	"MONITOR_BACKUP_ENABLED":        false,                      // Enable scheduled backups
	"MONITOR_BACKUP_DIR":            "./backups",                // Directory for backup files
	"MONITOR_BACKUP_RETENTION_DAYS": 30,                         // Days to retain backup files
	"MONITOR_BACKUP_INTERVAL":       "24h",                      // How often to create backups

	// Publishers, empty address disables
	"MONITOR_REDIS_ADDR":       "",
	"MONITOR_REDIS_PASSWORD":   "",
	"MONITOR_REDIS_DB":         0,
	"MONITOR_REDIS_CHANNEL":    "health:readings",
	"MONITOR_AMQP_URL":         "",
	"MONITOR_AMQP_EXCHANGE":    "health-readings",
	"MONITOR_AMQP_ROUTING_KEY": "",
}

// fileValues holds values read by LoadFile. They sit between the
// environment and the defaults.
var (
	fileMu     sync.RWMutex
	fileValues = map[string]string{}
)

// LoadFile reads a flat YAML mapping of config keys to values, e.g.
//
//	MONITOR_DB_PATH: /var/lib/monitor/health.db
//	MONITOR_BACKUP_ENABLED: true
//
// Unknown keys are rejected so typos do not go unnoticed.
func LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	values := make(map[string]string, len(raw))
	for key, value := range raw {
		if _, ok := defaultValues[key]; !ok {
			return fmt.Errorf("unknown config key %q in %s", key, path)
		}
		values[key] = fmt.Sprint(value)
	}

	fileMu.Lock()
	fileValues = values
	fileMu.Unlock()
	return nil
}

// ResetFile drops values loaded by LoadFile.
func ResetFile() {
	fileMu.Lock()
	fileValues = map[string]string{}
	fileMu.Unlock()
}

func StringValue(key string) string {
	if defaultValue, ok := defaultValues[key]; ok {
		return getEnvVar(key, defaultValue.(string)).(string)
	}
	return ""
}

// IntValue gets an int value from the env, config file or default
func IntValue(key string) int {

	if defaultValue, ok := defaultValues[key]; ok {
		return getEnvVar(key, defaultValue.(int)).(int)
	}
	return 0
}

// BoolValue gets a bool value from the env, config file or default
func BoolValue(key string) bool {

	if defaultValue, ok := defaultValues[key]; ok {
		return getEnvVar(key, defaultValue.(bool)).(bool)
	}
	return false
}

// DurationValue parses a duration string value. An unparsable override
// falls back to the default.
func DurationValue(key string) time.Duration {
	defaultValue, ok := defaultValues[key]
	if !ok {
		return 0
	}
	fallback, _ := time.ParseDuration(defaultValue.(string))

	d, err := time.ParseDuration(StringValue(key))
	if err != nil {
		return fallback
	}
	return d
}

func lookupValue(key string) (string, bool) {
	if value, exists := os.LookupEnv(key); exists {
		return value, true
	}

	fileMu.RLock()
	defer fileMu.RUnlock()
	value, exists := fileValues[key]
	return value, exists
}

func getEnvVar(key string, fallback interface{}) interface{} {

	value, exists := lookupValue(key)
	if !exists {
		return fallback
	}

	switch fallback.(type) {
	case string:
		return value
	case bool:
		valueAsBool, err := strconv.ParseBool(value)
		if err != nil {
			return fallback
		}
		return valueAsBool
	case int:
		valueAsInt, err := strconv.Atoi(value)
		if err != nil {
			return fallback
		}
		return valueAsInt
	}
	return fallback
}
