package http_utils

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// RequestExecutionResult contains the complete result of an HTTP request execution
type RequestExecutionResult struct {
	Response *http.Response
	Body     []byte
	Duration time.Duration
	Err      error
	TimedOut bool
}

// RequestExecutionOptions contains options for executing HTTP requests
type RequestExecutionOptions struct {
	Client          *http.Client
	Timeout         time.Duration
	MaxResponseBody int64
}

// ExecuteRequest sends req and reads the whole response body, bounded by
// MaxResponseBody when set. The response body is always closed.
func ExecuteRequest(req *http.Request, options RequestExecutionOptions) RequestExecutionResult {
	startTime := time.Now()

	client := options.Client
	if client == nil {
		client = CreateHttpClient(TransportOptions{})
	}

	if options.Timeout > 0 {
		ctx, cancel := context.WithTimeout(req.Context(), options.Timeout)
		defer cancel()
		req = req.WithContext(ctx)
	}

	result := RequestExecutionResult{}

	response, err := client.Do(req)
	if err != nil {
		result.Duration = time.Since(startTime)
		result.Err = err
		result.TimedOut = IsTimeoutError(err)
		return result
	}
	defer response.Body.Close()

	var reader io.Reader = response.Body
	if options.MaxResponseBody > 0 {
		reader = io.LimitReader(response.Body, options.MaxResponseBody)
	}
	body, err := io.ReadAll(reader)
	result.Duration = time.Since(startTime)
	if err != nil {
		result.Err = err
		result.TimedOut = IsTimeoutError(err)
		return result
	}
	response.Body = http.NoBody

	result.Response = response
	result.Body = body
	return result
}

// IsTimeoutError checks if an error is due to timeout
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	errorStr := err.Error()
	return strings.Contains(errorStr, "timeout") ||
		strings.Contains(errorStr, "deadline exceeded") ||
		strings.Contains(errorStr, "operation timed out")
}
