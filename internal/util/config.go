package util

import (
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultBaseURL is the backend address used when api.base_url is unset
	DefaultBaseURL = "http://127.0.0.1:8000"

	// MinRequestTimeout is the floor for api.timeout
	MinRequestTimeout = 30 * time.Second

	// DefaultPageSize is the master-data pager batch size
	DefaultPageSize = 1000

	// MinSearchDebounce is the floor for search_debounce
	MinSearchDebounce = 250 * time.Millisecond
)

// GetBaseURL returns the backend base URL
func GetBaseURL() string {
	if v := viper.GetString("api.base_url"); v != "" {
		return v
	}
	return DefaultBaseURL
}

// GetRequestTimeout returns the per-request timeout, never below 30s
func GetRequestTimeout() time.Duration {
	return atLeast(viper.GetDuration("api.timeout"), MinRequestTimeout)
}

// GetRetryMax returns how many times an idempotent read is retried
func GetRetryMax() int {
	if !viper.IsSet("api.retry_max") {
		return DefaultRetryConfig().MaxAttempts
	}
	if n := viper.GetInt("api.retry_max"); n > 0 {
		return n
	}
	return 0
}

// GetPageSize returns the master-data batch size
func GetPageSize() int {
	if n := viper.GetInt("page_size"); n > 0 {
		return n
	}
	return DefaultPageSize
}

// GetSearchDebounce returns the master-pharmacy search debounce, never below 250ms
func GetSearchDebounce() time.Duration {
	return atLeast(viper.GetDuration("search_debounce"), MinSearchDebounce)
}

func atLeast(d, floor time.Duration) time.Duration {
	if d < floor {
		return floor
	}
	return d
}
