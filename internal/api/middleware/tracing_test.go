package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installRecorder(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	prevProvider, prevPropagator := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevProvider)
		otel.SetTextMapPropagator(prevPropagator)
	})
	return exporter
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value, true
		}
	}
	return attribute.Value{}, false
}

func serveTraced(status int, method, path string, header http.Header) {
	handler := Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	handler.ServeHTTP(httptest.NewRecorder(), req)
}

func TestTracingNamesSpanByRoute(t *testing.T) {
	exporter := installRecorder(t)

	serveTraced(http.StatusOK, http.MethodGet, "/v1/guilds/915655285018624", nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /v1/guilds/{id}", spans[0].Name)

	route, ok := attrValue(spans[0].Attributes, "http.route")
	require.True(t, ok)
	assert.Equal(t, "/v1/guilds/{id}", route.AsString())

	status, ok := attrValue(spans[0].Attributes, "http.status_code")
	require.True(t, ok)
	assert.EqualValues(t, 200, status.AsInt64())
	assert.Equal(t, codes.Unset, spans[0].Status.Code)
}

func TestTracingErrorStatusOnlyFor5xx(t *testing.T) {
	exporter := installRecorder(t)

	serveTraced(http.StatusNotFound, http.MethodGet, "/v1/guilds/nonexistent", nil)
	serveTraced(http.StatusServiceUnavailable, http.MethodGet, "/v1/users/@me", nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.NotEqual(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, codes.Error, spans[1].Status.Code)
}

func TestTracingContinuesIncomingTrace(t *testing.T) {
	exporter := installRecorder(t)

	header := http.Header{}
	header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	serveTraced(http.StatusOK, http.MethodPost, "/v1/guilds", header)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", spans[0].SpanContext.TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", spans[0].Parent.SpanID().String())
}

func TestRouteTemplate(t *testing.T) {
	tests := map[string]string{
		"/v1/guilds":                                  "/v1/guilds",
		"/v1/users/@me":                               "/v1/users/@me",
		"/v1/guilds/915655285018624/channels":         "/v1/guilds/{id}/channels",
		"/v1/invites/915655285018624":                 "/v1/invites/{id}",
		"/v1/guilds/not-an-id":                        "/v1/guilds/not-an-id",
		"/v1/guilds/915655285018624/invites/trailing": "/v1/guilds/{id}/invites/trailing",
	}
	for in, want := range tests {
		assert.Equal(t, want, routeTemplate(in), in)
	}
}

func TestTracingResponseWriterKeepsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	tw := &tracingResponseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	_, _ = tw.Write([]byte("ok"))
	tw.WriteHeader(http.StatusInternalServerError)

	assert.Equal(t, http.StatusOK, tw.statusCode)
}
