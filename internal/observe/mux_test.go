package observe

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTrimMethod(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		expected string
	}{
		{name: "GET with parameter", pattern: "GET /artists/{artist}", expected: "/artists/{artist}"},
		{name: "POST collection", pattern: "POST /users/{user}/songs", expected: "/users/{user}/songs"},
		{name: "PATCH item", pattern: "PATCH /users/{user}/songs/{id}", expected: "/users/{user}/songs/{id}"},
		{name: "DELETE item", pattern: "DELETE /users/{user}/songs/{id}", expected: "/users/{user}/songs/{id}"},
		{name: "HEAD", pattern: "HEAD /healthcheck", expected: "/healthcheck"},
		{name: "path without method", pattern: "/categories", expected: "/categories"},
		{name: "unknown method kept", pattern: "FETCH /tracks", expected: "FETCH /tracks"},
		{name: "lowercase method kept", pattern: "get /tracks", expected: "get /tracks"},
		{name: "empty string", pattern: "", expected: ""},
		{name: "method alone", pattern: "GET", expected: "GET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TrimMethod(tt.pattern))
		})
	}
}

func TestSpanName(t *testing.T) {
	assert.Equal(t, "GET /artists/{artist}", SpanName(http.MethodGet, "/artists/{artist}"))
	assert.Equal(t, "/categories", SpanName("", "/categories"))
}

func TestMux_NamesSpansByRoute(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	mux := NewMux(http.NewServeMux())
	mux.HandleFunc("GET /artists/{artist}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.PathValue("artist")))
	})

	req := httptest.NewRequest(http.MethodGet, "/artists/Radiohead", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Radiohead", rr.Body.String())

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /artists/{artist}", spans[0].Name())
}
