// Package validation checks operator-supplied URLs before the server
// starts using them.
package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// URLValidationError represents a URL validation failure
type URLValidationError struct {
	Field   string
	Message string
	URL     string
}

func (e URLValidationError) Error() string {
	return fmt.Sprintf("%s: %s (url: %s)", e.Field, e.Message, e.URL)
}

// Origin validates a browser origin as sent in the Origin header: an http
// or https scheme and a host, with nothing after it.
func Origin(value, field string, requireHTTPS bool) error {
	fail := func(msg string) error {
		return URLValidationError{Field: field, Message: msg, URL: value}
	}

	parsed, err := url.Parse(value)
	if err != nil {
		return fail("invalid URL format")
	}
	switch strings.ToLower(parsed.Scheme) {
	case "https":
	case "http":
		if requireHTTPS {
			return fail("origin must use HTTPS in production")
		}
	case "":
		return fail("origin must include a scheme (http:// or https://)")
	default:
		return fail("origin scheme must be http or https")
	}
	if parsed.Host == "" {
		return fail("origin must include a host")
	}
	if (parsed.Path != "" && parsed.Path != "/") || parsed.RawQuery != "" || parsed.Fragment != "" {
		return fail("origin must not contain a path, query, or fragment")
	}
	return nil
}

// Endpoint validates a host:port or URL endpoint such as an OTLP collector.
// Empty is allowed; the caller decides whether the field is required.
func Endpoint(value, field string) error {
	if value == "" {
		return nil
	}
	if !strings.Contains(value, "://") {
		value = "grpc://" + value
	}
	parsed, err := url.Parse(value)
	if err != nil || parsed.Host == "" {
		return URLValidationError{Field: field, Message: "endpoint must be host:port or a URL", URL: value}
	}
	return nil
}
