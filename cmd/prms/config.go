package main

import (
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

const (
	defaultConfigDir = "~/.config/prms"
	defaultDBPath    = "~/.config/prms/console.db"
)

var envKeyReplacer = strings.NewReplacer(".", "_", "-", "_")

// GetConfigString retrieves a string config value with proper precedence:
// 1. Command-line flag (if set)
// 2. Environment variable (PRMS_*)
// 3. Config file
// 4. Default value
func GetConfigString(key string, defaultValue string) string {
	val := viper.GetString(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// GetConfigInt retrieves an int config value with proper precedence
func GetConfigInt(key string, defaultValue int) int {
	val := viper.GetInt(key)
	if val == 0 {
		return defaultValue
	}
	return val
}

// GetConfigPath retrieves a path config value with ~ expanded
func GetConfigPath(key string, defaultValue string) (string, error) {
	return expandPath(GetConfigString(key, defaultValue))
}

func expandPath(p string) (string, error) {
	if p == "" || p == ":memory:" {
		return p, nil
	}
	return homedir.Expand(p)
}
