package llm

import (
	"fmt"
	"net/url"
	"time"
)

// Sampling temperature accepted by every provider. Anthropic narrows the
// upper bound to 1.
const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
)

// Provider request timeouts outside this window are clamped.
const (
	MinTimeout = time.Second
	MaxTimeout = 10 * time.Minute
)

// IsValidTemperature reports whether val lies in [MinTemperature, MaxTemperature].
func IsValidTemperature(val float64) bool {
	return val >= MinTemperature && val <= MaxTemperature
}

// ClampFloat64 limits val to [lo, hi].
func ClampFloat64(val, lo, hi float64) float64 {
	return min(max(val, lo), hi)
}

// ValidateBaseURL checks that a provider endpoint override is an absolute
// http(s) URL. The empty string selects the provider default and passes.
func ValidateBaseURL(baseURL string) (string, error) {
	if baseURL == "" {
		return "", nil
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}
	switch {
	case u.Scheme == "":
		return "", fmt.Errorf("URL must include a scheme (e.g., http:// or https://)")
	case u.Scheme != "http" && u.Scheme != "https":
		return "", fmt.Errorf("URL scheme must be http or https, but got: %s", u.Scheme)
	case u.Host == "":
		return "", fmt.Errorf("URL must include a host")
	}
	return u.String(), nil
}

// ValidateTimeout clamps timeout to [MinTimeout, MaxTimeout]. Zero or
// negative values return zero, meaning the client default.
func ValidateTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 0
	}
	return min(max(timeout, MinTimeout), MaxTimeout)
}
