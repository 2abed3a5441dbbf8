// Package wasmengine compiles, caches, instantiates, and invokes the
// sandboxed Wasm override modules that rewrite a request's upstream URL
// and headers.
//
// A single process-wide wazero.Runtime is created at startup with the
// WASI preview1 import set instantiated against it, so any guest that
// imports WASI functions (stdio among them) resolves against a shared,
// read-only-after-init host surface. Everything else — the compiled
// component cache, stdin/stdout wiring, and per-call store — is
// instance-scoped: a fresh wazero module instance is created for every
// invocation so guest state never leaks across requests.
package wasmengine

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/rilot/proxy/internal/keystore"
	"github.com/rilot/proxy/internal/logging"
	"github.com/rilot/proxy/internal/metrics"

	"go.uber.org/zap"
)

// guestExport is the primary contract's entry point: a zero-argument,
// zero-result function. All request/response data crosses stdio.
const guestExport = "modify-request"

// legacyGuestExport is the documented-but-not-required raw-memory
// fallback from spec §4.2.4.
const legacyGuestExport = "modify_request"

// Engine is the process-wide Wasm compilation and invocation facility.
type Engine struct {
	runtime    wazero.Runtime
	wasiClose  api.Closer
	envClose   api.Closer
	production bool
	cache      *keystore.Store[wazero.CompiledModule]
}

// New creates the shared engine. It initializes one wazero.Runtime for
// the lifetime of the process and instantiates the WASI preview1 and
// outbound-HTTP host surfaces against it.
//
// RILOT_ENV=production (case-insensitive) enables the compiled-component
// cache; any other value compiles from source on every invocation.
// RILOT_WASM_INTERPRETER=1 forces the wazero interpreter engine instead
// of the ahead-of-time compiler, for platforms or tests where JIT isn't
// viable.
func New(ctx context.Context) (*Engine, error) {
	rtCfg := wazero.NewRuntimeConfigCompiler()
	if truthy(os.Getenv("RILOT_WASM_INTERPRETER")) {
		rtCfg = wazero.NewRuntimeConfigInterpreter()
	}
	rt := wazero.NewRuntimeWithConfig(ctx, rtCfg)

	wasiClose, err := wasi_snapshot_preview1.Instantiate(ctx, rt)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("wasmengine: instantiating WASI: %w", err)
	}

	envClose, err := instantiateOutboundHTTP(ctx, rt)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("wasmengine: instantiating outbound-http host module: %w", err)
	}

	return &Engine{
		runtime:    rt,
		wasiClose:  wasiClose,
		envClose:   envClose,
		production: strings.EqualFold(os.Getenv("RILOT_ENV"), "production"),
		cache:      keystore.New[wazero.CompiledModule](),
	}, nil
}

// Close releases the shared runtime and every component it compiled.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

func truthy(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// compile resolves a compiled component for path, consulting the cache
// in production mode. Concurrent first-compiles of the same path are
// permitted to race: the write lock is never held across compilation,
// only across insertion, and the last writer's compiled module wins.
// This is idempotent in outcome — both compiled modules are functionally
// equivalent — and avoids serializing expensive compiles behind a lock.
func (e *Engine) compile(ctx context.Context, path string) (wazero.CompiledModule, error) {
	tag := ComponentTag(path)

	if e.production {
		if cm, ok := e.cache.Get(path); ok {
			metrics.RecordWasmCompile(metrics.CacheHit)
			return cm, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Kind: ErrLoad, Path: path, Err: err}
	}

	cm, err := e.runtime.CompileModule(ctx, data)
	if err != nil {
		return nil, &Error{Kind: ErrLoad, Path: path, Err: err}
	}

	metrics.RecordWasmCompile(metrics.CacheMiss)
	if e.production {
		e.cache.Put(path, cm)
		metrics.SetCacheSize(e.cache.Len())
		logging.Debug("compiled and cached component", zap.String("component_tag", tag))
	}
	return cm, nil
}

// hasExport reports whether compiled exports a function named name.
func hasExport(cm wazero.CompiledModule, name string) bool {
	for _, def := range cm.ExportedFunctions() {
		for _, n := range def.ExportNames() {
			if n == name {
				return true
			}
		}
	}
	return false
}

// Invoke compiles (or fetches from cache) the component at path,
// instantiates it fresh, and invokes the guest's override export with
// inputJSON. It dispatches to the primary stdio contract when the guest
// exports "modify-request", or to the legacy raw-memory contract when it
// exports "modify_request" instead.
func (e *Engine) Invoke(ctx context.Context, path string, inputJSON []byte) (*WasmOutput, error) {
	cm, err := e.compile(ctx, path)
	if err != nil {
		return nil, err
	}

	switch {
	case hasExport(cm, guestExport):
		return e.invokeStdio(ctx, cm, path, inputJSON)
	case hasExport(cm, legacyGuestExport):
		return e.invokeLegacy(ctx, cm, path, inputJSON)
	default:
		return nil, &Error{Kind: ErrExport, Path: path, Err: fmt.Errorf("no %q or %q export", guestExport, legacyGuestExport)}
	}
}
