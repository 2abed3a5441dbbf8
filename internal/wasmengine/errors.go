package wasmengine

import "fmt"

// ErrorKind classifies why a guest invocation failed. Errors are always
// local to the one request that triggered them; they never poison the
// compiled-component cache or the shared engine.
type ErrorKind string

const (
	// ErrLoad: the component file is missing, unreadable, or fails to compile.
	ErrLoad ErrorKind = "load"
	// ErrExport: the expected export is missing or has the wrong signature.
	ErrExport ErrorKind = "export"
	// ErrTrap: the guest trapped (or otherwise errored) during the call.
	ErrTrap ErrorKind = "trap"
	// ErrEncoding: the guest's stdout bytes are not valid UTF-8, or were truncated by the pipe cap.
	ErrEncoding ErrorKind = "encoding"
	// ErrDeserialize: the guest's stdout is non-empty but not valid WasmOutput JSON.
	ErrDeserialize ErrorKind = "deserialize"
)

// Error reports a classified Wasm engine failure for a specific component path.
type Error struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("wasmengine: %s (%s): %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("wasmengine: %s (%s)", e.Kind, e.Path)
}

func (e *Error) Unwrap() error { return e.Err }
