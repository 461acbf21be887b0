package concurrency

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// IteratorMode selects the default execution policy for iteration runs
type IteratorMode string

const (
	IteratorModeSerial    IteratorMode = "serial"
	IteratorModeBounded   IteratorMode = "bounded"
	IteratorModeUnbounded IteratorMode = "unbounded"
)

// ConfigSource indicates where the configuration came from
type ConfigSource string

const (
	ConfigSourceEnvVar     ConfigSource = "environment_variable"
	ConfigSourceAutoDetect ConfigSource = "auto_detect"
	ConfigSourceDefault    ConfigSource = "default"
)

// Config holds concurrency configuration parameters
type Config struct {
	MaxConcurrent int
	IteratorMode  IteratorMode
	Source        ConfigSource
	IsKubernetes  bool
	EffectiveCPUs int
}

// LoadConfig loads concurrency configuration with priority: env vars >
// auto-detection > defaults
func LoadConfig() *Config {
	config := &Config{}

	// Detect if running in Kubernetes
	config.IsKubernetes = isKubernetes()

	// Get effective CPUs (respects cgroup limits)
	config.EffectiveCPUs = runtime.GOMAXPROCS(0)

	// Load MaxConcurrent with priority
	if maxConcurrent := getEnvInt("DAEDALUS_MAX_CONCURRENT", 0); maxConcurrent > 0 {
		config.MaxConcurrent = maxConcurrent
		config.Source = ConfigSourceEnvVar
	} else if multiplier := getEnvInt("DAEDALUS_CONCURRENCY_MULTIPLIER", 0); multiplier > 0 {
		config.MaxConcurrent = config.EffectiveCPUs * multiplier
		config.Source = ConfigSourceEnvVar
	} else {
		config.MaxConcurrent = getDefaultMaxConcurrent(config.IsKubernetes, config.EffectiveCPUs)
		config.Source = ConfigSourceAutoDetect
	}

	// Ensure minimum value
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = 1
	}

	// Load IteratorMode
	if mode := getEnv("DAEDALUS_ITERATOR_MODE", ""); mode != "" {
		config.IteratorMode = IteratorMode(strings.ToLower(mode))
	} else {
		config.IteratorMode = IteratorModeBounded
	}

	// Validate IteratorMode
	switch config.IteratorMode {
	case IteratorModeSerial, IteratorModeBounded, IteratorModeUnbounded:
	default:
		config.IteratorMode = IteratorModeBounded
	}

	return config
}

// Concurrency maps the configured mode onto the engine's concurrency
// sentinel: 0 for unbounded, 1 for serial, MaxConcurrent otherwise.
func (c *Config) Concurrency() int {
	switch c.IteratorMode {
	case IteratorModeUnbounded:
		return 0
	case IteratorModeSerial:
		return 1
	default:
		return c.MaxConcurrent
	}
}

// isKubernetes detects if the application is running in Kubernetes
func isKubernetes() bool {
	// Kubernetes sets this environment variable in all containers
	return os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}

// getDefaultMaxConcurrent returns sensible defaults based on environment
func getDefaultMaxConcurrent(isK8s bool, cpus int) int {
	if isK8s {
		// Conservative for Kubernetes to prevent resource exhaustion
		return cpus * 2
	}
	// More aggressive for bare metal
	return cpus * 4
}

// getEnvInt retrieves an integer from environment variable with default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnv retrieves a string from environment variable with default fallback
func getEnv(key string, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// String returns a formatted string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{MaxConcurrent: %d, IteratorMode: %s, IsK8s: %t, CPUs: %d, Source: %s}",
		c.MaxConcurrent,
		c.IteratorMode,
		c.IsKubernetes,
		c.EffectiveCPUs,
		c.Source,
	)
}

// GetOptimalConcurrency calculates optimal concurrency for a given multiplier
func GetOptimalConcurrency(multiplier int) int {
	cpus := runtime.GOMAXPROCS(0)
	if multiplier <= 0 {
		multiplier = 2
	}
	return cpus * multiplier
}
