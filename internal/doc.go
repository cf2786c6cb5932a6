// Package internal holds the packages behind the tdi command line tool.
//
// # Package Organization
//
//   - config: Configuration loading from files, environment and flags
//   - errors: Template error taxonomy and diagnostic collection
//   - logging: Structured logging on top of log/slog
//   - server: Preview server with websocket live reload
//   - validation: Checks for template names, origins and extensions
//   - version: Build metadata for the version command
//   - watcher: Debounced template directory watching
//
// The engine itself lives under pkg/: markup tokenizes and parses,
// directive reads tdi attributes, codec escapes and decodes text, tdi
// builds and renders trees, and loader resolves named templates.
//
// Template names coming from URLs and command lines go through
// validation.CleanName before they touch the file system. The preview
// server only accepts websocket connections from the same host, loopback
// pages on its own port and configured origins.
package internal
