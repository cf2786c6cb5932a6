package config

import (
	"fmt"
	"net"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/conneroisu/tdi/internal/validation"
	"github.com/conneroisu/tdi/pkg/codec"
	"github.com/conneroisu/tdi/pkg/directive"
	"github.com/conneroisu/tdi/pkg/markup"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	if len(vr.Errors) > 0 {
		builder.WriteString("Validation errors:\n")
		for _, err := range vr.Errors {
			fmt.Fprintf(&builder, "  - %s: %s\n", err.Field, err.Message)
			for _, suggestion := range err.Suggestions {
				fmt.Fprintf(&builder, "      hint: %s\n", suggestion)
			}
		}
	}

	if len(vr.Warnings) > 0 {
		builder.WriteString("Validation warnings:\n")
		for _, warning := range vr.Warnings {
			fmt.Fprintf(&builder, "  - %s: %s\n", warning.Field, warning.Message)
			for _, suggestion := range warning.Suggestions {
				fmt.Fprintf(&builder, "      hint: %s\n", suggestion)
			}
		}
	}

	return builder.String()
}

func (vr *ValidationResult) fail(field string, value interface{}, message string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: message, Suggestions: suggestions})
}

func (vr *ValidationResult) warn(field string, value interface{}, message string, suggestions ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: message, Suggestions: suggestions})
}

// ValidateConfigWithDetails performs comprehensive validation with detailed feedback
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{}

	validateParserConfigDetails(&config.Parser, result)
	validateRenderConfigDetails(&config.Render, result)
	validateLoaderConfigDetails(&config.Loader, result)
	validateServerConfigDetails(&config.Server, result)
	validateLogConfigDetails(&config.Log, result)

	result.Valid = !result.HasErrors()
	return result
}

func validateParserConfigDetails(config *ParserConfig, result *ValidationResult) {
	if _, err := markup.ParseDialect(config.Dialect); err != nil {
		result.fail("parser.dialect", config.Dialect, err.Error(),
			"Use 'html' for angle-bracket markup",
			"Use 'text' for the bracketed text dialect")
	}

	if config.Prefix == "" {
		result.fail("parser.prefix", config.Prefix, "directive prefix cannot be empty",
			"The default prefix is '"+directive.DefaultPrefix+"'")
		return
	}
	for _, r := range config.Prefix {
		if !(r == '-' || r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			result.fail("parser.prefix", config.Prefix, fmt.Sprintf("prefix contains invalid character %q", r),
				"Use letters, digits, '-' or '_'")
			return
		}
	}
}

func validateRenderConfigDetails(config *RenderConfig, result *ValidationResult) {
	if _, err := codec.ParsePolicy(config.DecodePolicy); err != nil {
		result.fail("render.decode_policy", config.DecodePolicy, err.Error(),
			"Available policies: strict, ignore, replace")
	}
	if _, err := codec.New(config.Encoding); err != nil {
		result.fail("render.encoding", config.Encoding, "unknown encoding",
			"Use a WHATWG encoding label such as utf-8 or windows-1252")
	}
}

func validateLoaderConfigDetails(config *LoaderConfig, result *ValidationResult) {
	if config.Root == "" {
		result.fail("loader.root", config.Root, "template root cannot be empty",
			"Use '.' for the working directory")
	} else if strings.ContainsRune(config.Root, 0) {
		result.fail("loader.root", config.Root, "template root contains a NUL byte")
	}

	if len(config.Extensions) == 0 {
		result.fail("loader.extensions", config.Extensions, "at least one template extension is required",
			"The defaults are .html, .htm, .xhtml and .tdi")
	}
	for _, ext := range config.Extensions {
		if err := validation.ValidateExtension(ext); err != nil {
			result.fail("loader.extensions", ext, err.Error(),
				"Extensions start with a dot, for example '.html'")
		}
		if slices.Contains([]string{".yaml", ".yml", ".json"}, strings.ToLower(ext)) {
			result.warn("loader.extensions", ext, "model file extension used for templates")
		}
	}

	if config.Debounce < 0 {
		result.fail("loader.debounce", config.Debounce, "debounce cannot be negative")
	} else if config.AutoReload && config.Debounce < 10*time.Millisecond {
		result.warn("loader.debounce", config.Debounce, "very short debounce reloads on every partial write",
			"Editors usually need 50ms or more")
	}

	if filepath.IsAbs(config.Root) {
		return
	}
	if clean := filepath.Clean(config.Root); clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		result.warn("loader.root", config.Root, "template root is outside the working directory")
	}
}

func validateServerConfigDetails(config *ServerConfig, result *ValidationResult) {
	if config.Port < 0 || config.Port > 65535 {
		result.fail("server.port", config.Port, fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			"Common development ports: 3000, 8080, 8000",
			"Port 0 allows system to assign an available port")
	} else if config.Port > 0 && config.Port < 1024 {
		result.warn("server.port", config.Port, "port below 1024 requires elevated privileges",
			"Consider using a port above 1024 for development")
	}

	if config.Host != "" {
		if err := validateHostname(config.Host); err != nil {
			result.fail("server.host", config.Host, err.Error(),
				"Use 'localhost' for local development",
				"Use '0.0.0.0' to bind to all interfaces")
		} else if config.Host == "0.0.0.0" || config.Host == "::" {
			result.warn("server.host", config.Host, "the preview server is reachable from other machines")
		}
	}

	for _, origin := range config.AllowedOrigins {
		if origin == "*" {
			result.warn("server.allowed_origins", origin, "any origin may open the reload socket")
			continue
		}
		if _, err := validation.ValidateOrigin(origin); err != nil {
			result.fail("server.allowed_origins", origin, err.Error(),
				"Origins look like http://localhost:3000")
		}
	}
}

func validateLogConfigDetails(config *LogConfig, result *ValidationResult) {
	levels := []string{"debug", "info", "warn", "warning", "error", "off", "none", ""}
	if !slices.Contains(levels, strings.ToLower(config.Level)) {
		result.warn("log.level", config.Level, "unknown log level, using info",
			"Available levels: debug, info, warn, error, off")
	}
	if f := strings.ToLower(config.Format); f != "" && f != "text" && f != "json" {
		result.fail("log.format", config.Format, "unknown log format",
			"Available formats: text, json")
	}
}

// validateHostname accepts IP addresses and RFC 1123 host names.
func validateHostname(host string) error {
	if net.ParseIP(host) != nil {
		return nil
	}
	if len(host) > 253 {
		return fmt.Errorf("hostname too long")
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > 63 {
			return fmt.Errorf("invalid hostname label in %q", host)
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return fmt.Errorf("hostname label cannot start or end with '-'")
		}
		for _, r := range label {
			if !(r == '-' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
				return fmt.Errorf("host contains invalid character %q", r)
			}
		}
	}
	return nil
}
