package generation

import (
	"context"
	"time"

	sterrors "github.com/otherjamesbrown/studynotes-cli/pkg/errors"
	"github.com/otherjamesbrown/studynotes-cli/pkg/observability"
)

type instrumentedGenerator struct {
	next    Generator
	metrics *observability.Metrics
	tracer  *observability.Tracer
	model   string
}

// WithInstrumentation records a span, a call counter and a latency histogram
// for every call through g. Either metrics or tracer may be nil.
func WithInstrumentation(g Generator, metrics *observability.Metrics, tracer *observability.Tracer, model string) Generator {
	if model == "" {
		model = ModelOf(g)
	}
	return &instrumentedGenerator{next: g, metrics: metrics, tracer: tracer, model: model}
}

func (i *instrumentedGenerator) Model() string {
	return i.model
}

func (i *instrumentedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := i.tracer.StartGenerateSpan(ctx, i.model, len(prompt))
	defer span.End()
	helper := observability.NewSpanHelper(span)

	start := time.Now()
	out, err := i.next.Generate(ctx, prompt)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		classified := sterrors.ClassifyError(err, sterrors.StageGenerate)
		helper.SetError(err, string(classified.Code), sterrors.IsRetryable(classified.Code))

		status := observability.StatusFailed
		if classified.Code == sterrors.ErrContextCancelled {
			status = observability.StatusCancelled
		}
		i.metrics.RecordGeneration(i.model, status, elapsed)
		return "", err
	}

	helper.SetSuccess()
	i.metrics.RecordGeneration(i.model, observability.StatusSuccess, elapsed)
	return out, nil
}
