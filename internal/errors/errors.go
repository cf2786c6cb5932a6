package errors

import (
	"fmt"
	"sync"
)

// Severity represents the severity of a diagnostic
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

// String returns the string representation of the severity
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Diagnostic is a non-fatal finding recorded while building a tree.
type Diagnostic struct {
	Source   string
	Offset   int
	Severity Severity
	Err      error
}

// Error implements the error interface
func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s@%d: %s: %v", d.Source, d.Offset, d.Severity, d.Err)
}

// Unwrap returns the wrapped error
func (d Diagnostic) Unwrap() error {
	return d.Err
}

// DiagnosticCollector collects diagnostics in the order they are reported
type DiagnosticCollector struct {
	items []Diagnostic
	mutex sync.RWMutex
}

// NewDiagnosticCollector creates a new collector
func NewDiagnosticCollector() *DiagnosticCollector {
	return &DiagnosticCollector{
		items: make([]Diagnostic, 0),
	}
}

// Add adds a diagnostic to the collector
func (dc *DiagnosticCollector) Add(d Diagnostic) {
	if d.Err == nil {
		return
	}
	dc.mutex.Lock()
	defer dc.mutex.Unlock()
	dc.items = append(dc.items, d)
}

// Diagnostics returns a copy of all collected diagnostics
func (dc *DiagnosticCollector) Diagnostics() []Diagnostic {
	dc.mutex.RLock()
	defer dc.mutex.RUnlock()
	result := make([]Diagnostic, len(dc.items))
	copy(result, dc.items)
	return result
}

// Errors returns the collected diagnostics as plain errors
func (dc *DiagnosticCollector) Errors() []error {
	dc.mutex.RLock()
	defer dc.mutex.RUnlock()
	result := make([]error, 0, len(dc.items))
	for _, d := range dc.items {
		result = append(result, d)
	}
	return result
}

// HasErrors returns true if any diagnostic has error severity
func (dc *DiagnosticCollector) HasErrors() bool {
	dc.mutex.RLock()
	defer dc.mutex.RUnlock()
	for _, d := range dc.items {
		if d.Severity >= SeverityError {
			return true
		}
	}
	return false
}

// Len returns the number of diagnostics
func (dc *DiagnosticCollector) Len() int {
	dc.mutex.RLock()
	defer dc.mutex.RUnlock()
	return len(dc.items)
}

// Clear clears all diagnostics
func (dc *DiagnosticCollector) Clear() {
	dc.mutex.Lock()
	defer dc.mutex.Unlock()
	dc.items = dc.items[:0]
}
