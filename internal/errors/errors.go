// Package errors defines the single error type the proxy uses to turn an
// internal failure into an HTTP response. Every failure response is
// text/plain, never JSON: the body is meant for a human or a log
// aggregator reading raw proxy output, not a machine client parsing a
// structured envelope.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies where in the request pipeline a PipelineError
// originated, so callers (logging) can label it without
// string-matching the message.
type Kind string

const (
	KindRouterMiss    Kind = "router_miss"
	KindBodyRead      Kind = "body_read"
	KindWasmSerialize Kind = "wasm_serialize"
	KindWasmEngine    Kind = "wasm_engine"
	KindURIBuild      Kind = "uri_build"
	KindUpstream      Kind = "upstream"
)

// PipelineError is the error type returned by every stage of request
// handling. Code is the HTTP status written to the client; Message is
// the plain-text body.
type PipelineError struct {
	Kind       Kind
	Code       int
	Message    string
	underlying error
}

func (e *PipelineError) Error() string {
	if e.underlying != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.underlying)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.underlying
}

// WriteResponse writes the error as a text/plain HTTP response.
func (e *PipelineError) WriteResponse(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(e.Code)
	fmt.Fprintln(w, e.Message)
}

// New creates a PipelineError with no wrapped cause.
func New(kind Kind, code int, message string) *PipelineError {
	return &PipelineError{Kind: kind, Code: code, Message: message}
}

// Wrap creates a PipelineError that carries an underlying cause for
// logging, without exposing it in the response body.
func Wrap(kind Kind, code int, message string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Code: code, Message: message, underlying: err}
}

// NotFound is returned when no configured rule matches a request path.
func NotFound() *PipelineError {
	return New(KindRouterMiss, http.StatusNotFound, "no route matches this path")
}

// BodyReadFailed is returned when the incoming request body cannot be
// fully buffered.
func BodyReadFailed(err error) *PipelineError {
	return Wrap(KindBodyRead, http.StatusInternalServerError, "failed to read request body", err)
}

// WasmSerializeFailed is returned when the request cannot be marshalled
// into the override module's input contract.
func WasmSerializeFailed(err error) *PipelineError {
	return Wrap(KindWasmSerialize, http.StatusInternalServerError, "failed to encode request for override module", err)
}

// WasmEngineFailed is returned when the override module fails to load,
// trap, or produce a decodable result.
func WasmEngineFailed(err error) *PipelineError {
	return Wrap(KindWasmEngine, http.StatusInternalServerError, "override module invocation failed", err)
}

// URIBuildFailed is returned when the rewritten upstream URI cannot be
// composed.
func URIBuildFailed(err error) *PipelineError {
	return Wrap(KindURIBuild, http.StatusInternalServerError, "failed to build upstream request", err)
}

// UpstreamUnreachable is returned when the upstream dispatch itself
// fails (dial/timeout/transport error).
func UpstreamUnreachable(err error) *PipelineError {
	return Wrap(KindUpstream, http.StatusBadGateway, "upstream request failed", err)
}

// AsPipelineError reports whether err is (or wraps) a *PipelineError.
func AsPipelineError(err error) (*PipelineError, bool) {
	var pe *PipelineError
	ok := stderrors.As(err, &pe)
	return pe, ok
}
