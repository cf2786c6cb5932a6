// Package validation checks untrusted input: template names taken from
// URLs and command lines, websocket origins and configured extensions.
package validation

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// CleanName maps a template name onto a clean slash-separated path that
// stays inside the template root.
func CleanName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("name cannot be empty")
	}
	if strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("name contains a NUL byte")
	}

	name = filepath.ToSlash(name)
	if path.IsAbs(name) || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", fmt.Errorf("absolute path not allowed: %s", name)
	}

	clean := path.Clean(name)
	if clean == "." {
		return "", fmt.Errorf("name %q does not name a file", name)
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("path traversal detected: %s", name)
	}
	return clean, nil
}

// ValidateOrigin parses a browser Origin header value. Only http and https
// origins with a host are accepted.
func ValidateOrigin(origin string) (*url.URL, error) {
	if origin == "" {
		return nil, fmt.Errorf("origin header is required")
	}

	// Serialized origins never contain these.
	if strings.ContainsAny(origin, " \"'<>\\`\r\n") {
		return nil, fmt.Errorf("origin contains invalid characters: %q", origin)
	}

	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("invalid origin format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid origin scheme '%s': only http and https are allowed", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("origin must have a host")
	}
	if u.User != nil {
		return nil, fmt.Errorf("origin must not carry credentials")
	}
	return u, nil
}

// ValidateExtension checks a file extension such as ".html".
func ValidateExtension(ext string) error {
	if len(ext) < 2 || ext[0] != '.' {
		return fmt.Errorf("extension %q must start with a dot", ext)
	}
	if strings.ContainsAny(ext, "/\\\x00") {
		return fmt.Errorf("extension %q contains a path separator", ext)
	}
	if strings.HasSuffix(ext, ".") {
		return fmt.Errorf("extension %q ends with a dot", ext)
	}
	return nil
}
