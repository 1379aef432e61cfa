// Package validate provides checks for names, paths and environment keys
// taken from descriptors, and redaction of sensitive values for logging.
package validate

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// MaxEnvKeyLen is the longest accepted environment variable key.
const MaxEnvKeyLen = 256

// sensitiveKeywords identifies potentially sensitive keys.
var sensitiveKeywords = []string{
	"password", "pass", "secret", "key", "token", "auth", "credential",
	"private", "cert", "ssl", "tls",
}

var validServiceName = regexp.MustCompile(`^[a-zA-Z0-9._@:-]+$`)

// EnvKey checks that key is a POSIX environment variable name.
func EnvKey(key string) error {
	if key == "" {
		return fmt.Errorf("environment variable key cannot be empty")
	}
	if len(key) > MaxEnvKeyLen {
		return fmt.Errorf("environment variable key too long: %d > %d", len(key), MaxEnvKeyLen)
	}

	for i, r := range key {
		if i == 0 {
			if unicode.IsDigit(r) {
				return fmt.Errorf("environment variable key cannot start with digit: %s", key)
			}
			if !unicode.IsLetter(r) && r != '_' {
				return fmt.Errorf("environment variable key must start with letter or underscore: %s", key)
			}
		} else if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return fmt.Errorf("environment variable key contains invalid character '%c': %s", r, key)
		}
	}
	return nil
}

// ServiceName checks that a service or unit name is safe to pass to
// systemd tools and pebble.
func ServiceName(name string) error {
	if name == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	if !validServiceName.MatchString(name) {
		return fmt.Errorf("invalid service name %q: contains unsafe characters", name)
	}
	if len(name) > 256 {
		return fmt.Errorf("service name too long")
	}
	return nil
}

// Path checks that path contains no traversal sequences.
func Path(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	cleanPath := filepath.Clean(path)
	if cleanPath != path && strings.Contains(path, "..") {
		return fmt.Errorf("path contains path traversal sequence")
	}
	if !filepath.IsAbs(cleanPath) && strings.HasPrefix(cleanPath, "..") {
		return fmt.Errorf("path attempts to traverse above working directory")
	}
	return nil
}

// PathWithinBase resolves path below basePath and fails if the result
// escapes it. Absolute paths are taken relative to basePath.
func PathWithinBase(path, basePath string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if basePath == "" {
		return "", fmt.Errorf("base path cannot be empty")
	}

	absBase, err := filepath.Abs(filepath.Clean(basePath))
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}

	prefix := absBase
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	absPath := filepath.Clean(filepath.Join(absBase, path))
	if absPath != absBase && !strings.HasPrefix(absPath, prefix) {
		return "", fmt.Errorf("path %q escapes base directory", path)
	}
	return absPath, nil
}

// IsSensitiveKey reports whether key names sensitive data.
func IsSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lowerKey, keyword) {
			return true
		}
	}
	return false
}

// Redact masks the value of a sensitive key for logging.
func Redact(key, value string) string {
	if !IsSensitiveKey(key) {
		return value
	}
	if len(value) <= 4 {
		return "[REDACTED]"
	}
	return value[:2] + strings.Repeat("*", len(value)-4) + value[len(value)-2:]
}

// RedactMap renders data as sorted key=value pairs with sensitive values
// masked.
func RedactMap(data map[string]string) []string {
	out := make([]string, 0, len(data))
	for k, v := range data {
		out = append(out, k+"="+Redact(k, v))
	}
	sort.Strings(out)
	return out
}
