package wasmengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// Legacy export names a pre-stdio guest is expected to provide alongside
// modify_request, per spec §4.2.4.
const (
	legacyAllocateExport   = "allocate"
	legacyDeallocateExport = "deallocate"
	legacyMemoryExport     = "memory"
)

// invokeLegacy supports guests built against the older raw-linear-memory
// ABI: the host allocates a buffer inside the guest via "allocate",
// writes the input JSON into it, calls "modify_request(ptr, len) -> i32",
// and reads a NUL-terminated UTF-8 JSON blob back from the returned
// offset. The guest's own "deallocate" is used to free both buffers
// before the instance is torn down.
func (e *Engine) invokeLegacy(ctx context.Context, cm wazero.CompiledModule, path string, inputJSON []byte) (*WasmOutput, error) {
	// WithName("") avoids a module-name collision when the same cached
	// CompiledModule is instantiated concurrently by another request.
	mod, err := e.runtime.InstantiateModule(ctx, cm, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, &Error{Kind: ErrLoad, Path: path, Err: err}
	}
	defer mod.Close(ctx)

	allocate := mod.ExportedFunction(legacyAllocateExport)
	modifyRequest := mod.ExportedFunction(legacyGuestExport)
	if allocate == nil || modifyRequest == nil {
		return nil, &Error{Kind: ErrExport, Path: path, Err: fmt.Errorf("legacy guest missing %q or %q", legacyAllocateExport, legacyGuestExport)}
	}
	if p, r := modifyRequest.Definition().ParamTypes(), modifyRequest.Definition().ResultTypes(); len(p) != 2 || p[0] != api.ValueTypeI32 || p[1] != api.ValueTypeI32 || len(r) != 1 || r[0] != api.ValueTypeI32 {
		return nil, &Error{Kind: ErrExport, Path: path, Err: fmt.Errorf("%q must have signature (i32, i32) -> i32", legacyGuestExport)}
	}
	deallocate := mod.ExportedFunction(legacyDeallocateExport)

	mem := mod.Memory()
	if mem == nil {
		return nil, &Error{Kind: ErrExport, Path: path, Err: fmt.Errorf("legacy guest exports no %q", legacyMemoryExport)}
	}

	inLen := uint64(len(inputJSON))
	inRes, err := allocate.Call(ctx, inLen)
	if err != nil {
		return nil, &Error{Kind: ErrTrap, Path: path, Err: err}
	}
	inPtr := uint32(inRes[0])
	if deallocate != nil {
		defer deallocate.Call(ctx, uint64(inPtr), inLen)
	}

	if !mem.Write(inPtr, inputJSON) {
		return nil, &Error{Kind: ErrTrap, Path: path, Err: fmt.Errorf("writing input into guest memory at offset %d", inPtr)}
	}

	results, err := modifyRequest.Call(ctx, uint64(inPtr), inLen)
	if err != nil {
		return nil, &Error{Kind: ErrTrap, Path: path, Err: err}
	}
	outPtr := uint32(int32(results[0]))

	raw, ok := readNULTerminated(mem, outPtr)
	if !ok {
		return nil, &Error{Kind: ErrEncoding, Path: path, Err: fmt.Errorf("reading NUL-terminated blob at offset %d", outPtr)}
	}
	if deallocate != nil {
		defer deallocate.Call(ctx, uint64(outPtr), uint64(len(raw)+1))
	}

	if len(raw) == 0 {
		return &WasmOutput{}, nil
	}
	if !utf8.Valid(raw) {
		return nil, &Error{Kind: ErrEncoding, Path: path, Err: fmt.Errorf("legacy guest result is not valid UTF-8")}
	}

	var out WasmOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &Error{Kind: ErrDeserialize, Path: path, Err: err}
	}
	return &out, nil
}

// readNULTerminated scans guest memory in 4 KiB chunks starting at
// offset until a NUL byte is found, returning the bytes preceding it.
func readNULTerminated(mem interface {
	Read(offset, byteCount uint32) ([]byte, bool)
	Size() uint32
}, offset uint32) ([]byte, bool) {
	const chunk = 4096
	var out []byte
	for offset < mem.Size() {
		n := chunk
		if remaining := mem.Size() - offset; remaining < uint32(n) {
			n = int(remaining)
		}
		b, ok := mem.Read(offset, uint32(n))
		if !ok {
			return nil, false
		}
		if idx := bytes.IndexByte(b, 0); idx >= 0 {
			out = append(out, b[:idx]...)
			return out, true
		}
		out = append(out, b...)
		offset += uint32(n)
	}
	return nil, false
}
