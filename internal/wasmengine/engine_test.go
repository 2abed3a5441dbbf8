package wasmengine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func writeFixture(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing fixture %s: %v", name, err)
	}
	return path
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	t.Setenv("RILOT_WASM_INTERPRETER", "1")
	ctx := context.Background()
	e, err := New(ctx)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { e.Close(ctx) })
	return e
}

func TestInvokeStdioEmptyOutput(t *testing.T) {
	e := newTestEngine(t)
	path := writeFixture(t, t.TempDir(), "noop.wasm", noopStdioWasm)

	out, err := e.Invoke(context.Background(), path, []byte(`{"method":"GET","path":"/x"}`))
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if out == nil || out.AppURL != "" || len(out.HeadersToUpdate) != 0 {
		t.Fatalf("Invoke() = %+v, want empty WasmOutput", out)
	}
}

func TestInvokeLegacyEmptyOutput(t *testing.T) {
	e := newTestEngine(t)
	path := writeFixture(t, t.TempDir(), "legacy.wasm", legacyAbiWasm)

	out, err := e.Invoke(context.Background(), path, []byte(`{"method":"GET","path":"/x"}`))
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if out == nil || out.AppURL != "" {
		t.Fatalf("Invoke() = %+v, want empty WasmOutput", out)
	}
}

func TestInvokeNoRecognizedExport(t *testing.T) {
	e := newTestEngine(t)
	path := writeFixture(t, t.TempDir(), "noexport.wasm", noExportWasm)

	_, err := e.Invoke(context.Background(), path, []byte(`{}`))
	var werr *Error
	if !errors.As(err, &werr) || werr.Kind != ErrExport {
		t.Fatalf("Invoke() error = %v, want ErrExport", err)
	}
}

func TestInvokeMissingFile(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Invoke(context.Background(), filepath.Join(t.TempDir(), "missing.wasm"), []byte(`{}`))
	var werr *Error
	if !errors.As(err, &werr) || werr.Kind != ErrLoad {
		t.Fatalf("Invoke() error = %v, want ErrLoad", err)
	}
}

func TestInvokeMalformedModule(t *testing.T) {
	e := newTestEngine(t)
	path := writeFixture(t, t.TempDir(), "garbage.wasm", []byte("not a wasm module"))

	_, err := e.Invoke(context.Background(), path, []byte(`{}`))
	var werr *Error
	if !errors.As(err, &werr) || werr.Kind != ErrLoad {
		t.Fatalf("Invoke() error = %v, want ErrLoad", err)
	}
}

func TestCompileCachesOnlyInProduction(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := writeFixture(t, dir, "noop.wasm", noopStdioWasm)

	t.Setenv("RILOT_WASM_INTERPRETER", "1")
	t.Setenv("RILOT_ENV", "production")
	e, err := New(ctx)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer e.Close(ctx)

	if _, err := e.compile(ctx, path); err != nil {
		t.Fatalf("compile() error = %v", err)
	}
	if _, ok := e.cache.Get(path); !ok {
		t.Fatal("expected compiled module to be cached in production mode")
	}
}

func TestCompileSkipsCacheOutsideProduction(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := writeFixture(t, dir, "noop.wasm", noopStdioWasm)

	e := newTestEngine(t) // RILOT_ENV unset
	if _, err := e.compile(ctx, path); err != nil {
		t.Fatalf("compile() error = %v", err)
	}
	if _, ok := e.cache.Get(path); ok {
		t.Fatal("expected compile cache to stay empty outside production mode")
	}
}

func TestInvokeIsolatesStateAcrossCalls(t *testing.T) {
	e := newTestEngine(t)
	path := writeFixture(t, t.TempDir(), "noop.wasm", noopStdioWasm)

	for i := 0; i < 3; i++ {
		if _, err := e.Invoke(context.Background(), path, []byte(`{"method":"GET","path":"/x"}`)); err != nil {
			t.Fatalf("Invoke() call %d error = %v", i, err)
		}
	}
}

// TestInvokeConcurrentSameComponentInProduction exercises the
// production cache path (a single CompiledModule shared across
// goroutines) with genuinely concurrent invocations of both the stdio
// and legacy contracts. Without a distinct module name per
// instantiation, wazero rejects the second concurrent
// InstantiateModule call against the same shared CompiledModule.
func TestInvokeConcurrentSameComponentInProduction(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	stdioPath := writeFixture(t, dir, "noop.wasm", noopStdioWasm)
	legacyPath := writeFixture(t, dir, "legacy.wasm", legacyAbiWasm)

	t.Setenv("RILOT_WASM_INTERPRETER", "1")
	t.Setenv("RILOT_ENV", "production")
	e, err := New(ctx)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer e.Close(ctx)

	const concurrency = 20
	var wg sync.WaitGroup
	errs := make(chan error, concurrency*2)

	run := func(path string) {
		defer wg.Done()
		if _, err := e.Invoke(ctx, path, []byte(`{"method":"GET","path":"/x"}`)); err != nil {
			errs <- err
		}
	}

	wg.Add(concurrency * 2)
	for i := 0; i < concurrency; i++ {
		go run(stdioPath)
		go run(legacyPath)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent Invoke() against shared CompiledModule failed: %v", err)
	}

	if _, ok := e.cache.Get(stdioPath); !ok {
		t.Fatal("expected stdio component to be cached in production mode")
	}
	if _, ok := e.cache.Get(legacyPath); !ok {
		t.Fatal("expected legacy component to be cached in production mode")
	}
}
