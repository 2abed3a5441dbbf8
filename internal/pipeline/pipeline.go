// Package pipeline implements handle_request: the per-request sequence
// of route lookup, body capture, optional override-module invocation,
// URI rewrite, and upstream dispatch.
package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/textproto"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rilot/proxy/internal/config"
	pipeerrors "github.com/rilot/proxy/internal/errors"
	"github.com/rilot/proxy/internal/logging"
	"github.com/rilot/proxy/internal/metrics"
	"github.com/rilot/proxy/internal/router"
	"github.com/rilot/proxy/internal/wasmengine"
)

// requestIDHeader carries the per-request correlation id generated for
// every accepted request, echoed back to the client and threaded
// through structured logs for this request's lifetime.
const requestIDHeader = "X-Rilot-Request-Id"

// Engine is the subset of wasmengine.Engine the pipeline depends on,
// narrowed to ease testing with a fake.
type Engine interface {
	Invoke(ctx context.Context, path string, inputJSON []byte) (*wasmengine.WasmOutput, error)
}

// Tracer is the subset of tracing.Tracer the pipeline depends on,
// narrowed to ease testing with a fake. A nil Tracer is valid: every
// call site falls back to the span already attached to ctx (a no-op
// span when none is).
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, trace.Span)
}

// Pipeline wires a router, a Wasm engine, an upstream HTTP client, and
// an optional tracer into the single handle_request operation.
type Pipeline struct {
	router *router.Router
	engine Engine
	client *http.Client
	tracer Tracer
}

// New builds a Pipeline. client is used verbatim for upstream dispatch;
// callers configure its Transport (SSRF protection, timeouts, etc).
// tracer may be nil to disable span creation entirely.
func New(r *router.Router, engine Engine, client *http.Client, tracer Tracer) *Pipeline {
	return &Pipeline{router: r, engine: engine, client: client, tracer: tracer}
}

// startSpan starts a named child span via the configured tracer, or
// returns the context's existing (possibly no-op) span when no tracer
// is configured.
func (p *Pipeline) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if p.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return p.tracer.StartSpan(ctx, name)
}

// ServeHTTP implements handle_request per spec: route, capture, invoke,
// rewrite, dispatch, relay — with every failure path recovered into a
// synthesized text/plain response.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	route := r.URL.Path

	requestID := uuid.New().String()
	w.Header().Set(requestIDHeader, requestID)

	status := p.handle(w, r, requestID)

	metrics.RecordRequest(route, status, time.Since(start))
}

func (p *Pipeline) handle(w http.ResponseWriter, r *http.Request, requestID string) int {
	proxyCfg, ok := p.router.Match(r.URL.Path)
	if !ok {
		return p.fail(w, requestID, pipeerrors.NotFound())
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return p.fail(w, requestID, pipeerrors.BodyReadFailed(err))
	}

	headers := snapshotHeaders(r.Header)

	appURL := strings.TrimSuffix(proxyCfg.AppURI, "/")
	updateHeaders := map[string]string{}
	removeHeaders := []string{}

	if proxyCfg.HasOverride() {
		input := wasmengine.WasmInput{
			Method:  r.Method,
			Path:    r.URL.Path,
			Headers: headers,
			Body:    decodeBodyLossy(body),
		}
		inputJSON, err := json.Marshal(input)
		if err != nil {
			return p.fail(w, requestID, pipeerrors.WasmSerializeFailed(err))
		}

		spanCtx, span := p.startSpan(r.Context(), "wasm.invoke")
		out, err := p.engine.Invoke(spanCtx, proxyCfg.OverrideFile, inputJSON)
		span.End()
		if err != nil {
			metrics.RecordWasmInvocation(metrics.WasmResultError)
			logging.Error("override module invocation failed",
				zap.String("request_id", requestID),
				zap.String("component_tag", wasmengine.ComponentTag(proxyCfg.OverrideFile)),
				zap.Error(err))
			return p.fail(w, requestID, pipeerrors.WasmEngineFailed(err))
		}
		metrics.RecordWasmInvocation(metrics.WasmResultOK)

		if out.AppURL != "" {
			appURL = strings.TrimSuffix(out.AppURL, "/")
		}
		for k, v := range out.HeadersToUpdate {
			updateHeaders[k] = v
		}
		removeHeaders = out.HeadersToRemove
	}

	pathAndQuery := requestPathAndQuery(r)
	if proxyCfg.Rewrite == config.RewriteStrip {
		pathAndQuery = stripPrefix(pathAndQuery, proxyCfg.Rule.Path)
	}

	targetURL := appURL + pathAndQuery

	upstreamReq, err := http.NewRequestWithContext(r.Context(), r.Method, targetURL, newBodyReader(body))
	if err != nil {
		return p.fail(w, requestID, pipeerrors.URIBuildFailed(err))
	}
	upstreamReq.Header = r.Header.Clone()
	applyHeaderPatch(upstreamReq.Header, updateHeaders, removeHeaders)
	upstreamReq.ContentLength = int64(len(body))

	dispatchCtx, dispatchSpan := p.startSpan(r.Context(), "upstream.dispatch")
	upstreamReq = upstreamReq.WithContext(dispatchCtx)
	resp, err := p.client.Do(upstreamReq)
	dispatchSpan.End()
	if err != nil {
		return p.fail(w, requestID, pipeerrors.UpstreamUnreachable(err))
	}
	defer resp.Body.Close()

	relay(w, resp)
	return resp.StatusCode
}

func (p *Pipeline) fail(w http.ResponseWriter, requestID string, err *pipeerrors.PipelineError) int {
	fields := []zap.Field{zap.String("request_id", requestID), zap.String("kind", string(err.Kind)), zap.Error(err)}
	if err.Code >= http.StatusInternalServerError {
		logging.Error("request failed", fields...)
	} else {
		logging.Warn("request failed", fields...)
	}
	err.WriteResponse(w)
	return err.Code
}

// snapshotHeaders retains one UTF-8-decodable value per lowercased
// header name, per spec's documented lossy flattening.
func snapshotHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		for _, v := range values {
			if utf8.ValidString(v) {
				out[strings.ToLower(name)] = v
				break
			}
		}
	}
	return out
}

// decodeBodyLossy UTF-8-decodes body for the guest's view, substituting
// the replacement character for invalid sequences. The caller still
// forwards the original byte slice upstream.
func decodeBodyLossy(body []byte) string {
	if utf8.Valid(body) {
		return string(body)
	}
	return strings.ToValidUTF8(string(body), "�")
}

func newBodyReader(body []byte) io.Reader {
	if len(body) == 0 {
		return nil
	}
	return &byteReader{b: body}
}

type byteReader struct {
	b   []byte
	pos int
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}

// requestPathAndQuery reassembles the literal incoming path and query
// string, untouched by any URL normalization.
func requestPathAndQuery(r *http.Request) string {
	if r.URL.RawQuery == "" {
		return r.URL.Path
	}
	return r.URL.Path + "?" + r.URL.RawQuery
}

// stripPrefix removes prefix from s if present as a literal prefix.
func stripPrefix(s, prefix string) string {
	if strings.HasPrefix(s, prefix) {
		return s[len(prefix):]
	}
	return s
}

// applyHeaderPatch applies update-then-remove, skipping any pair that
// isn't a syntactically valid header name/value.
func applyHeaderPatch(h http.Header, update map[string]string, remove []string) {
	for name, value := range update {
		if !validHeaderToken(name) || !validHeaderValue(value) {
			logging.Warn("override module produced invalid header, skipping", zap.String("name", name))
			continue
		}
		h.Set(name, value)
	}
	for _, name := range remove {
		if !validHeaderToken(name) {
			logging.Warn("override module requested removal of invalid header name, skipping", zap.String("name", name))
			continue
		}
		h.Del(name)
	}
}

// validHeaderToken reports whether name is a syntactically valid HTTP
// header field-name token per RFC 7230 §3.2.6.
func validHeaderToken(name string) bool {
	if name == "" || textproto.TrimString(name) != name {
		return false
	}
	for i := 0; i < len(name); i++ {
		if !isTokenByte(name[i]) {
			return false
		}
	}
	return true
}

func isTokenByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case strings.IndexByte("!#$%&'*+-.^_`|~", b) >= 0:
		return true
	default:
		return false
	}
}

func validHeaderValue(v string) bool {
	return utf8.ValidString(v) && !strings.ContainsAny(v, "\r\n")
}

// relay copies the upstream response verbatim: status, headers, body.
func relay(w http.ResponseWriter, resp *http.Response) {
	dst := w.Header()
	for k, vs := range resp.Header {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}
