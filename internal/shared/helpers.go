// Package shared provides small helpers used by more than one layer of
// repoforge.
package shared

import (
	"fmt"
	"strings"
)

// HTTPStatusError creates a formatted error for non-2xx HTTP responses.
func HTTPStatusError(status int, url string) error {
	return fmt.Errorf("status=%d url=%s", status, url)
}

// HTTPStatusErrorWithBody creates a formatted error that includes the
// response body for non-2xx HTTP responses.
func HTTPStatusErrorWithBody(status int, url string, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return HTTPStatusError(status, url)
	}
	return fmt.Errorf("status=%d url=%s response=%s", status, url, body)
}

// CommandError wraps a command execution error with its trimmed output
// for cleaner error messages.
func CommandError(output []byte, err error) error {
	trimmed := strings.TrimSpace(string(output))
	if trimmed == "" {
		return err
	}
	return fmt.Errorf("%s: %w", trimmed, err)
}

// JoinURL appends path segments to base with exactly one slash between
// them and a trailing slash.
func JoinURL(base string, segments ...string) string {
	parts := []string{strings.TrimRight(strings.TrimSpace(base), "/")}
	for _, segment := range segments {
		segment = strings.Trim(segment, "/")
		if segment != "" {
			parts = append(parts, segment)
		}
	}
	return strings.Join(parts, "/") + "/"
}
