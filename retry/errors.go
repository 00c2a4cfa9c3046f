package retry

import (
	"fmt"
	"strings"

	"github.com/stonezone/batchgen/failure"
)

// ExhaustedError is returned when every attempt failed with a retryable
// error. Errors holds each attempt's error in order.
type ExhaustedError struct {
	Label  string
	Errors []error
}

func (e *ExhaustedError) Error() string {
	var b strings.Builder
	b.WriteString("retry: ")
	if e.Label != "" {
		b.WriteString(e.Label)
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, "exhausted after %d attempts", len(e.Errors))
	if last := e.Last(); last != nil {
		b.WriteString(": ")
		b.WriteString(last.Error())
	}
	return b.String()
}

// Unwrap exposes every attempt error to errors.Is and errors.As.
func (e *ExhaustedError) Unwrap() []error { return e.Errors }

// Last returns the final attempt's error.
func (e *ExhaustedError) Last() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}

// Kind classifies the final attempt's error, so the label never leaks into
// message matching.
func (e *ExhaustedError) Kind() failure.Kind { return failure.Classify(e.Last()) }
