// Package config is the viper-backed configuration singleton. Flags
// override environment variables, which override defaults; there is no
// config file because everything project-scoped lives in the project
// manifest.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

var v *viper.Viper

// Initialize sets up the configuration singleton. Call once at startup.
func Initialize() {
	v = viper.New()

	// Automatic environment variable binding: LOOM_PORT, LOOM_ADDRESS,
	// LOOM_LOG_FILE, LOOM_VERBOSE. Hyphens and dots map to underscores so
	// LOOM_LOG_FILE reaches the "log-file" key.
	v.SetEnvPrefix("LOOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", 0)
	v.SetDefault("address", "")
	v.SetDefault("log-file", "")
	v.SetDefault("verbose", false)
}

func ensure() *viper.Viper {
	if v == nil {
		Initialize()
	}
	return v
}

// Set overrides a key programmatically (flags use this after parsing).
func Set(key string, value any) {
	ensure().Set(key, value)
}

// GetString returns a string config value.
func GetString(key string) string {
	return ensure().GetString(key)
}

// GetBool returns a boolean config value.
func GetBool(key string) bool {
	return ensure().GetBool(key)
}

// GetUint16 returns a port-sized config value.
func GetUint16(key string) uint16 {
	return uint16(ensure().GetUint32(key))
}
