package wasmengine

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// hostModuleName is the import module name a guest uses to reach the
// optional outbound-HTTP surface: (import "rilot" "host_http_fetch" ...).
const hostModuleName = "rilot"

// hostFetchFunc is the export name of the outbound-HTTP host function.
const hostFetchFunc = "host_http_fetch"

// outboundClient is shared by every guest call made through
// host_http_fetch. It carries no cookie jar and a conservative timeout;
// guests cannot override either.
var outboundClient = &http.Client{
	Timeout: 10 * time.Second,
}

// instantiateOutboundHTTP registers the optional host_http_fetch import
// that lets a guest perform a single outbound HTTP request, with a
// method and URL it supplies, and read back the response body. Guests that never import it are unaffected: the import
// is resolved lazily by wazero only when a module declares it.
//
// The signature is (methodPtr, methodLen, urlPtr, urlLen, outPtr,
// outCap i32) -> (written i32). The guest allocates its own request
// buffers and a response buffer of outCap bytes; the host writes at most
// outCap bytes of response body into outPtr and returns the number of
// bytes actually written, or -1 on failure. This mirrors the teacher's
// pattern of exposing host work as plain numeric imports rather than a
// higher-level ABI, since wazero guests can only exchange linear-memory
// offsets and lengths across the import boundary.
func instantiateOutboundHTTP(ctx context.Context, rt wazero.Runtime) (api.Closer, error) {
	builder := rt.NewHostModuleBuilder(hostModuleName)
	builder.NewFunctionBuilder().
		WithFunc(hostHTTPFetch).
		Export(hostFetchFunc)
	return builder.Instantiate(ctx)
}

func hostHTTPFetch(ctx context.Context, mod api.Module, methodPtr, methodLen, urlPtr, urlLen, outPtr, outCap uint32) int32 {
	mem := mod.Memory()

	method, ok := mem.Read(methodPtr, methodLen)
	if !ok {
		return -1
	}
	rawURL, ok := mem.Read(urlPtr, urlLen)
	if !ok {
		return -1
	}

	req, err := http.NewRequestWithContext(ctx, string(method), string(rawURL), nil)
	if err != nil {
		return -1
	}

	resp, err := outboundClient.Do(req)
	if err != nil {
		return -1
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(outCap)))
	if err != nil {
		return -1
	}
	if !mem.Write(outPtr, body) {
		return -1
	}
	return int32(len(body))
}
