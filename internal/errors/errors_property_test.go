//go:build property
// +build property

package errors

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestDiagnosticCollectorProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(2468)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("concurrent additions are all kept", prop.ForAll(
		func(goroutines, perGoroutine int) bool {
			collector := NewDiagnosticCollector()

			var wg sync.WaitGroup
			for g := 0; g < goroutines; g++ {
				wg.Add(1)
				go func(g int) {
					defer wg.Done()
					for i := 0; i < perGoroutine; i++ {
						collector.Add(Diagnostic{
							Source:   fmt.Sprintf("g%d", g),
							Offset:   i,
							Severity: SeverityWarning,
							Err:      errors.New("finding"),
						})
					}
				}(g)
			}
			wg.Wait()

			return collector.Len() == goroutines*perGoroutine && !collector.HasErrors()
		},
		gen.IntRange(1, 16),
		gen.IntRange(1, 40),
	))

	properties.Property("order of a single writer is kept", prop.ForAll(
		func(offsets []int) bool {
			collector := NewDiagnosticCollector()
			for _, off := range offsets {
				collector.Add(Diagnostic{Offset: off, Err: errors.New("x")})
			}
			diags := collector.Diagnostics()
			if len(diags) != len(offsets) {
				return false
			}
			for i, d := range diags {
				if d.Offset != offsets[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 10000)),
	))

	properties.TestingRun(t)
}

func TestTemplateErrorProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1357)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	codes := []string{ErrCodeUnfinished, ErrCodeDuplicateAddress, ErrCodeMissingScope, ErrCodeOverlayCycle}

	properties.Property("message always contains code and text", prop.ForAll(
		func(codeIdx int, message, source string, offset int) bool {
			err := NewTreeError(codes[codeIdx], message).WithLocation(source, offset)
			s := err.Error()
			return strings.HasPrefix(s, "["+codes[codeIdx]+"]") && strings.HasSuffix(s, message)
		},
		gen.IntRange(0, len(codes)-1),
		gen.AlphaString(),
		gen.Identifier(),
		gen.IntRange(0, 1<<20),
	))

	properties.Property("wrapping keeps the code reachable", prop.ForAll(
		func(depth int) bool {
			var err error = NewModelError(ErrCodeMissingScope, "missing scope")
			for i := 0; i < depth; i++ {
				err = fmt.Errorf("level %d: %w", i, err)
			}
			return errors.Is(err, ErrMissingScope) && CodeOf(err) == ErrCodeMissingScope
		},
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}
