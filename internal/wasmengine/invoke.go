package wasmengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/tetratelabs/wazero"
)

// invokeStdio runs the primary component-model-style contract: a fresh
// store per call, stdin pre-filled with inputJSON, stdout bounded to
// 4 KiB, stderr inherited for guest logging, and a zero-argument
// "modify-request" export. The instance (and its store) is torn down
// before stdout is read back, so guest resources are released
// deterministically ahead of parsing the result.
func (e *Engine) invokeStdio(ctx context.Context, cm wazero.CompiledModule, path string, inputJSON []byte) (*WasmOutput, error) {
	stdout := newBoundedBuffer(outputCapBytes)

	// WithName("") lets wazero assign an anonymous, unique module name:
	// the same CompiledModule may already be instantiated concurrently
	// by another request (e.g. the shared production cache), and the
	// runtime rejects two named instances sharing a name.
	modCfg := wazero.NewModuleConfig().
		WithName("").
		WithStdin(bytes.NewReader(inputJSON)).
		WithStdout(stdout).
		WithStderr(os.Stderr).
		WithArgs(os.Args...)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			modCfg = modCfg.WithEnv(kv[:i], kv[i+1:])
		}
	}

	mod, err := e.runtime.InstantiateModule(ctx, cm, modCfg)
	if err != nil {
		return nil, &Error{Kind: ErrLoad, Path: path, Err: err}
	}

	fn := mod.ExportedFunction(guestExport)
	if fn == nil {
		mod.Close(ctx)
		return nil, &Error{Kind: ErrExport, Path: path, Err: fmt.Errorf("modify-request not resolvable after instantiation")}
	}
	if def := fn.Definition(); len(def.ParamTypes()) != 0 || len(def.ResultTypes()) != 0 {
		mod.Close(ctx)
		return nil, &Error{Kind: ErrExport, Path: path, Err: fmt.Errorf("%q must take no parameters and return no results", guestExport)}
	}

	_, callErr := fn.Call(ctx)
	// The store — and with it, any guest resources — is torn down here,
	// before stdout is inspected, regardless of call outcome.
	mod.Close(ctx)
	if callErr != nil {
		return nil, &Error{Kind: ErrTrap, Path: path, Err: callErr}
	}

	out := stdout.Bytes()
	if stdout.Overflowed() {
		return nil, &Error{Kind: ErrEncoding, Path: path, Err: fmt.Errorf("guest output exceeded %d byte pipe cap", outputCapBytes)}
	}
	if len(out) == 0 {
		return &WasmOutput{}, nil
	}
	if !utf8.Valid(out) {
		return nil, &Error{Kind: ErrEncoding, Path: path, Err: fmt.Errorf("guest stdout is not valid UTF-8")}
	}

	var result WasmOutput
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, &Error{Kind: ErrDeserialize, Path: path, Err: err}
	}
	return &result, nil
}
