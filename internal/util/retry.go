package util

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"syscall"
	"time"
)

// RetryConfig holds retry configuration for idempotent backend reads
type RetryConfig struct {
	MaxAttempts int           // Maximum number of retry attempts after the first try
	InitialWait time.Duration // Initial wait duration (doubled each retry)
	MaxWait     time.Duration // Maximum wait duration between retries
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 2,
		InitialWait: 200 * time.Millisecond,
		MaxWait:     2 * time.Second,
	}
}

// NoRetryConfig is used for mutations: a retried POST could double-apply
func NoRetryConfig() *RetryConfig {
	return &RetryConfig{MaxAttempts: 0}
}

// IsRetryableError checks if an error is worth retrying
// Returns true for transient network errors
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var syscallError syscall.Errno
	if errors.As(err, &syscallError) {
		switch syscallError {
		case syscall.EAGAIN,
			syscall.ETIMEDOUT,
			syscall.ECONNRESET,
			syscall.ECONNABORTED,
			syscall.ECONNREFUSED,
			syscall.ENETDOWN,
			syscall.ENETUNREACH,
			syscall.EHOSTDOWN,
			syscall.EHOSTUNREACH:
			return true
		}
	}

	// Check error messages for common transient patterns
	errMsg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"timed out",
		"connection reset",
		"connection refused",
		"connection aborted",
		"broken pipe",
		"no route to host",
		"network is unreachable",
		"network is down",
		"host is down",
		"temporary failure",
		"eof",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}

	return false
}

// IsRetryableStatus reports whether an HTTP status is worth retrying.
// 401 and other 4xx never are.
func IsRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout
}

// CheckRetry is a go-retryablehttp retry policy built on the checks above.
// It never returns an error so the caller always sees the last response.
func CheckRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, nil
	}
	if err != nil {
		retry := IsRetryableError(err)
		if retry {
			DebugLog("Retry: transient transport error: %v", err)
		}
		return retry, nil
	}
	if resp != nil && IsRetryableStatus(resp.StatusCode) {
		DebugLog("Retry: %s %s returned %d", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode)
		return true, nil
	}
	return false, nil
}
