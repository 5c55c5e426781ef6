package generation

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/otherjamesbrown/studynotes-cli/pkg/observability"
)

func TestWithInstrumentation_RecordsOutcomes(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	tracer := observability.NewTracerFrom(noop.NewTracerProvider())

	ok := WithInstrumentation(Func(func(ctx context.Context, p string) (string, error) {
		return "fine", nil
	}), metrics, tracer, "m")
	bad := WithInstrumentation(Func(func(ctx context.Context, p string) (string, error) {
		return "", errors.New("boom")
	}), metrics, tracer, "m")
	cancelled := WithInstrumentation(Func(func(ctx context.Context, p string) (string, error) {
		return "", context.Canceled
	}), metrics, tracer, "m")

	out, err := ok.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "fine", out)

	_, err = bad.Generate(context.Background(), "p")
	assert.EqualError(t, err, "boom")

	_, err = cancelled.Generate(context.Background(), "p")
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.GenerationCallsTotal.WithLabelValues("m", observability.StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.GenerationCallsTotal.WithLabelValues("m", observability.StatusFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.GenerationCallsTotal.WithLabelValues("m", observability.StatusCancelled)))
}

func TestWithInstrumentation_NilCollectors(t *testing.T) {
	g := WithInstrumentation(Func(func(ctx context.Context, p string) (string, error) {
		return "x", nil
	}), nil, nil, "")

	out, err := g.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "x", out)
	assert.Equal(t, "unknown", ModelOf(g))
}
