package engine

import (
	"errors"
	"strings"
)

const (
	stackTraceMarker = "\nwasm stack trace:\n\t"
	recoveredSuffix  = " (recovered by wazero)"
	trapPrefix       = "wasm error: "
)

// Exception is a managed exception raised by a guest through bridge.throw.
// It unwinds the guest and surfaces as the error of the outermost call.
type Exception struct {
	Message string
	// Source names the image that raised it.
	Source string
}

func (e *Exception) Error() string {
	if e.Source == "" {
		return e.Message
	}
	return e.Source + ": " + e.Message
}

// Diagnostic is the set of fields extracted from a failed guest call.
type Diagnostic struct {
	Message    string
	Source     string
	StackTrace string
	TargetSite string
}

// Diagnose extracts a diagnostic from the error returned by a guest call.
// Exceptions raised through bridge.throw keep their message and source; traps
// and host panics use the runtime's own status text. targetSite names the
// method that was invoked.
func Diagnose(err error, source, targetSite string) Diagnostic {
	d := Diagnostic{Source: source, TargetSite: targetSite}
	if err == nil {
		return d
	}

	text := err.Error()
	head, trace, found := strings.Cut(text, stackTraceMarker)
	if found {
		// Go runtime traces follow a blank line after the wasm frames
		trace, _, _ = strings.Cut(trace, "\n\n")
		d.StackTrace = strings.Join(strings.Split(trace, "\n\t"), " <- ")
	}

	var exc *Exception
	if errors.As(err, &exc) {
		d.Message = exc.Message
		if exc.Source != "" {
			d.Source = exc.Source
		}
		return d
	}

	head = strings.TrimSuffix(head, recoveredSuffix)
	head = strings.TrimPrefix(head, trapPrefix)
	d.Message = head
	return d
}

// String renders the diagnostic as one line, each field only when present.
func (d Diagnostic) String() string {
	var b strings.Builder
	b.WriteString("[bridge] [Exception] ")
	field := func(name, value string) {
		if value == "" {
			return
		}
		b.WriteString(" | ")
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(value)
	}
	field("Message", d.Message)
	field("Source", d.Source)
	field("StackTrace", d.StackTrace)
	field("TargetSite", d.TargetSite)
	return b.String()
}
