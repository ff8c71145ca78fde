package log

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Transport wraps an http.RoundTripper and logs every outbound request
// with method, URL, status, and latency. Used by the upstream backend
// client so calls to the external API show up in the structured log.
type Transport struct {
	Base   http.RoundTripper
	Logger zerolog.Logger
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	start := time.Now()
	resp, err := base.RoundTrip(req)
	latency := float64(time.Since(start).Milliseconds())

	logger := t.Logger
	if l, ok := req.Context().Value(ctxKey{}).(zerolog.Logger); ok {
		logger = l
	}

	if err != nil {
		logger.Warn().
			Str(FieldMethod, req.Method).
			Str(FieldPath, req.URL.Path).
			Float64(FieldLatency, latency).
			Err(err).
			Msg("upstream request failed")
		return nil, err
	}

	logger.Debug().
		Str(FieldMethod, req.Method).
		Str(FieldPath, req.URL.Path).
		Int(FieldStatus, resp.StatusCode).
		Float64(FieldLatency, latency).
		Msg("upstream request completed")

	return resp, nil
}
