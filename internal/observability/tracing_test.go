package observability

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitTracing_DisabledStillPropagates(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{ServiceName: "qrguard-test"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracing_StdoutExporter(t *testing.T) {
	var out bytes.Buffer
	shutdown, err := InitTracing(context.Background(), TracingConfig{
		ServiceName:  "qrguard-test",
		Enabled:      true,
		Exporter:     "stdout",
		SamplerRatio: 1,
		Output:       &out,
	})
	require.NoError(t, err)

	ctx, span := StartClientSpan(context.Background(), http.MethodGet, "/api/posts")
	h := http.Header{}
	InjectHeaders(ctx, h)
	assert.NotEmpty(t, h.Get("traceparent"))
	EndSpan(span, http.StatusNotFound, nil)

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, out.String(), "gateway.GET /api/posts")
	assert.Contains(t, out.String(), "http.response.status_code")

	// Leave a disabled tracer behind for the rest of the package.
	_, _ = InitTracing(context.Background(), TracingConfig{ServiceName: "qrguard-test"})
}

func TestInitTracing_UnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin"})
	assert.ErrorContains(t, err, "zipkin")
}

func TestSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), sampler(1.5).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), sampler(0).Description())
	assert.Contains(t, sampler(0.25).Description(), "ParentBased")
}

func TestEndSpan_RecordsError(t *testing.T) {
	_, span := StartClientSpan(context.Background(), http.MethodPost, "/api/chat")
	EndSpan(span, 0, errors.New("refused"))
	assert.False(t, span.IsRecording())
}
