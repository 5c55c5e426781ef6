// Package generation provides the text generation collaborator used to
// summarize transcript chunks, plus decorators for retry, caching and
// instrumentation.
package generation

import (
	"context"
	"fmt"

	sterrors "github.com/otherjamesbrown/studynotes-cli/pkg/errors"
)

// Generator turns a prompt into generated text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Modeler is implemented by generators that know which model they call.
type Modeler interface {
	Model() string
}

// ModelOf returns g's model name, or "unknown".
func ModelOf(g Generator) string {
	if m, ok := g.(Modeler); ok && m.Model() != "" {
		return m.Model()
	}
	return "unknown"
}

// Func adapts a function to the Generator interface.
type Func func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// GenerationError is the failure type returned by generators. It matches
// errors.ErrGeneration and its cause with errors.Is.
type GenerationError struct {
	Provider string
	Model    string
	Err      error
}

// NewGenerationError wraps err as a generation failure.
func NewGenerationError(provider, model string, err error) *GenerationError {
	return &GenerationError{Provider: provider, Model: model, Err: err}
}

func (e *GenerationError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("generation failed (%s/%s): %v", e.Provider, e.Model, e.Err)
	}
	return fmt.Sprintf("generation failed (%s): %v", e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() []error {
	return []error{sterrors.ErrGeneration, e.Err}
}

// Code classifies the underlying failure.
func (e *GenerationError) Code() sterrors.ErrorCode {
	if e.Err == nil {
		return sterrors.ErrProcessingError
	}
	return sterrors.ClassifyError(e.Err, sterrors.StageGenerate).Code
}
