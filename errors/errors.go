package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseValidate  Phase = "validate"  // signature checks
	PhaseCompile   Phase = "compile"   // trampoline generation
	PhaseMarshal   Phase = "marshal"   // value conversion
	PhaseDispatch  Phase = "dispatch"  // call execution
	PhaseLoad      Phase = "load"      // plugin/image loading
	PhaseExport    Phase = "export"    // native method registration
	PhaseSubscribe Phase = "subscribe" // callback subscription
	PhaseConfig    Phase = "config"    // configuration parsing
	PhaseRuntime   Phase = "runtime"   // runtime operations
)

// Kind categorizes the error
type Kind string

const (
	KindTypeMismatch     Kind = "type_mismatch"
	KindCountMismatch    Kind = "count_mismatch"
	KindNotStatic        Kind = "not_static"
	KindUnsupported      Kind = "unsupported"
	KindDuplicate        Kind = "duplicate"
	KindNotFound         Kind = "not_found"
	KindInvalidName      Kind = "invalid_name"
	KindMissingPrototype Kind = "missing_prototype"
	KindCodegen          Kind = "codegen"
	KindException        Kind = "exception"
	KindAllocation       Kind = "allocation"
	KindOutOfBounds      Kind = "out_of_bounds"
	KindInvalidInput     Kind = "invalid_input"
	KindInvalidData      Kind = "invalid_data"
	KindNotInitialized   Kind = "not_initialized"
	KindMissingImport    Kind = "missing_import"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value       any
	Cause       error
	Phase       Phase
	Kind        Kind
	NativeType  string
	ManagedType string
	Detail      string
	Path        []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	typed := e.NativeType != "" || e.ManagedType != ""
	if typed {
		b.WriteString(": ")
		switch {
		case e.NativeType != "" && e.ManagedType != "":
			b.WriteString("native type ")
			b.WriteString(e.NativeType)
			b.WriteString(", managed type ")
			b.WriteString(e.ManagedType)
		case e.NativeType != "":
			b.WriteString("native type ")
			b.WriteString(e.NativeType)
		default:
			b.WriteString("managed type ")
			b.WriteString(e.ManagedType)
		}
	}

	if e.Detail != "" {
		if typed {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the method or parameter path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// NativeType sets the native type name
func (b *Builder) NativeType(t string) *Builder {
	b.err.NativeType = t
	return b
}

// ManagedType sets the managed type name
func (b *Builder) ManagedType(t string) *Builder {
	b.err.ManagedType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, nativeType, managedType string) *Error {
	return &Error{
		Phase:       phase,
		Kind:        KindTypeMismatch,
		Path:        path,
		NativeType:  nativeType,
		ManagedType: managedType,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size, align uint32, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
		Cause:  cause,
	}
}

// OutOfBounds creates a guest memory access error
func OutOfBounds(phase Phase, offset, length uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("offset %d length %d outside guest memory", offset, length),
		Value:  offset,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Codegen creates a trampoline generation error
func Codegen(name, detail string) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   KindCodegen,
		Path:   pathOf(name),
		Detail: detail,
	}
}

// NotInitialized creates a not-initialized error
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// InvalidName reports a fully qualified method name with the wrong shape
func InvalidName(phase Phase, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidName,
		Value:  name,
		Detail: fmt.Sprintf("invalid function name %q: name is not in this format 'Plugin.Namespace.Class.Method'", name),
	}
}

// Duplicate reports a second registration under an existing name
func Duplicate(phase Phase, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDuplicate,
		Value:  name,
		Detail: fmt.Sprintf("method name duplicate: %s", name),
	}
}

// Load creates a plugin loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

func pathOf(name string) []string {
	if name == "" {
		return nil
	}
	return []string{name}
}

// List aggregates problems found in one pass so they can be reported together
type List []*Error

// Add appends err when it is non-nil
func (l *List) Add(err *Error) {
	if err != nil {
		*l = append(*l, err)
	}
}

// Append appends every entry of other
func (l *List) Append(other List) {
	*l = append(*l, other...)
}

// Err returns nil for an empty list and the list itself otherwise
func (l List) Err() error {
	if len(l) == 0 {
		return nil
	}
	return l
}

// Messages returns the detail text of each entry
func (l List) Messages() []string {
	out := make([]string, len(l))
	for i, e := range l {
		if e.Detail != "" {
			out[i] = e.Detail
		} else {
			out[i] = e.Error()
		}
	}
	return out
}

// Error joins all entries with ", "
func (l List) Error() string {
	return strings.Join(l.Messages(), ", ")
}

// Is matches when any entry matches target
func (l List) Is(target error) bool {
	for _, e := range l {
		if e.Is(target) {
			return true
		}
	}
	return false
}

// MissingImport represents a single unresolved guest import
type MissingImport struct {
	Module   string // e.g., "bridge"
	Function string // e.g., "Host.Text.Util.Upper"
}

// MissingImportsError is returned when a guest imports native methods nobody exported
type MissingImportsError struct {
	Imports []MissingImport
}

// NewMissingImportsError creates an error from a list of "module#function" strings
func NewMissingImportsError(imports []string) *MissingImportsError {
	result := &MissingImportsError{
		Imports: make([]MissingImport, 0, len(imports)),
	}
	for _, imp := range imports {
		mod, fn, found := strings.Cut(imp, "#")
		if !found {
			mod, fn = imp, ""
		}
		result.Imports = append(result.Imports, MissingImport{Module: mod, Function: fn})
	}
	return result
}

func (e *MissingImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[load] missing_import: no imports specified"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "missing %d native method(s):\n", len(e.Imports))

	byMod := make(map[string][]string)
	var order []string
	for _, imp := range e.Imports {
		if _, exists := byMod[imp.Module]; !exists {
			order = append(order, imp.Module)
		}
		byMod[imp.Module] = append(byMod[imp.Module], imp.Function)
	}

	for _, mod := range order {
		b.WriteString("\n  ")
		b.WriteString(mod)
		b.WriteString(":\n")
		for _, fn := range byMod[mod] {
			b.WriteString("    - ")
			b.WriteString(fn)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *MissingImportsError) Is(target error) bool {
	_, ok := target.(*MissingImportsError)
	return ok
}
