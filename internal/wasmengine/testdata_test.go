package wasmengine

// The fixtures below are hand-assembled WebAssembly binaries (no wat2wasm
// in the build), kept deliberately minimal: one memory, no imports, and
// just enough exported functions to exercise each dispatch path in
// Engine.Invoke. Memory starts zero-initialized, which every fixture
// relies on instead of data segments.

// noopStdioWasm exports "memory" and a zero-arg, zero-result
// "modify-request" that does nothing — the guest emits no stdout, so
// invokeStdio must return an empty *WasmOutput.
var noopStdioWasm = []byte{
	0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00, // magic, version

	// type section: type 0 = () -> ()
	0x01, 0x04, 0x01, 0x60, 0x00, 0x00,

	// function section: func 0 uses type 0
	0x03, 0x02, 0x01, 0x00,

	// memory section: one memory, min 1 page
	0x05, 0x03, 0x01, 0x00, 0x01,

	// export section: "memory" (memory 0), "modify-request" (func 0)
	0x07, 0x1B, 0x02,
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	0x0E, 'm', 'o', 'd', 'i', 'f', 'y', '-', 'r', 'e', 'q', 'u', 'e', 's', 't', 0x00, 0x00,

	// code section: func 0 body = (no locals) end
	0x0A, 0x04, 0x01, 0x02, 0x00, 0x0B,
}

// legacyAbiWasm exports "memory", "allocate(i32)->i32",
// "deallocate(i32,i32)->()", and "modify_request(i32,i32)->i32". Every
// function is a stub returning the constant 0 (or nothing). Because
// allocate returns 0, invokeLegacy writes the input JSON at offset 0, and
// modify_request's result offset 0 then points at that same input,
// followed by the zero-initialized memory's NUL. The echoed input has
// none of WasmOutput's fields, so it decodes to an empty WasmOutput.
var legacyAbiWasm = []byte{
	0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00, // magic, version

	// type section: T0 (i32)->(i32), T1 (i32,i32)->(), T2 (i32,i32)->(i32)
	0x01, 0x11, 0x03,
	0x60, 0x01, 0x7F, 0x01, 0x7F,
	0x60, 0x02, 0x7F, 0x7F, 0x00,
	0x60, 0x02, 0x7F, 0x7F, 0x01, 0x7F,

	// function section: allocate->T0, deallocate->T1, modify_request->T2
	0x03, 0x04, 0x03, 0x00, 0x01, 0x02,

	// memory section
	0x05, 0x03, 0x01, 0x00, 0x01,

	// export section
	0x07, 0x33, 0x04,
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	0x08, 'a', 'l', 'l', 'o', 'c', 'a', 't', 'e', 0x00, 0x00,
	0x0A, 'd', 'e', 'a', 'l', 'l', 'o', 'c', 'a', 't', 'e', 0x00, 0x01,
	0x0E, 'm', 'o', 'd', 'i', 'f', 'y', '_', 'r', 'e', 'q', 'u', 'e', 's', 't', 0x00, 0x02,

	// code section: allocate returns 0, deallocate returns nothing, modify_request returns 0
	0x0A, 0x0E, 0x03,
	0x04, 0x00, 0x41, 0x00, 0x0B,
	0x02, 0x00, 0x0B,
	0x04, 0x00, 0x41, 0x00, 0x0B,
}

// noExportWasm has a memory but no "modify-request" or "modify_request"
// export, so Invoke must report ErrExport.
var noExportWasm = []byte{
	0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00,
	0x05, 0x03, 0x01, 0x00, 0x01,
	0x07, 0x0A, 0x01,
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
}
