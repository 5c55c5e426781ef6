package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a classified pipeline error.
type ErrorCode string

const (
	ErrTimeout          ErrorCode = "timeout"
	ErrRateLimit        ErrorCode = "rate_limit"
	ErrModelUnavailable ErrorCode = "model_unavailable"
	ErrContextCancelled ErrorCode = "context_cancelled"
	ErrAuthentication   ErrorCode = "authentication"
	ErrParseError       ErrorCode = "parse_error"
	ErrEmptyContent     ErrorCode = "empty_content"
	ErrContentTooLarge  ErrorCode = "content_too_large"
	ErrProcessingError  ErrorCode = "processing_error"
)

// Pipeline stage names used when classifying errors.
const (
	StageDecode    = "decode"
	StageDetect    = "detect"
	StageGenerate  = "generate"
	StageSummarize = "summarize"
	StageAssemble  = "assemble"
)

// PipelineError is a structured error for pipeline failures.
type PipelineError struct {
	Code    ErrorCode
	Stage   string
	Message string
	Cause   error
}

func (e *PipelineError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// ClassifyError inspects an error and returns a *PipelineError with the appropriate code.
// If the error doesn't match any known pattern, it returns a PipelineError with ErrProcessingError.
func ClassifyError(err error, stage string) *PipelineError {
	if err == nil {
		return nil
	}

	var existing *PipelineError
	if errors.As(err, &existing) {
		return existing
	}

	pe := &PipelineError{
		Stage: stage,
		Cause: err,
	}

	if errors.Is(err, context.DeadlineExceeded) {
		pe.Code = ErrTimeout
		pe.Message = "operation timed out"
		return pe
	}

	if errors.Is(err, context.Canceled) {
		pe.Code = ErrContextCancelled
		pe.Message = "operation cancelled"
		return pe
	}

	msg := err.Error()
	pe.Message = msg

	if errors.Is(err, ErrDecodeFailure) || errors.Is(err, ErrMalformedTimestamp) {
		pe.Code = ErrParseError
		return pe
	}

	if errors.Is(err, ErrEmptyTranscript) {
		pe.Code = ErrEmptyContent
		return pe
	}

	lower := strings.ToLower(msg)

	if strings.Contains(lower, "empty content") || strings.Contains(lower, "empty response") || strings.Contains(lower, "no content") {
		pe.Code = ErrEmptyContent
		return pe
	}

	if strings.Contains(lower, "too large") || strings.Contains(lower, "exceeds maximum") || strings.Contains(lower, "token limit") {
		pe.Code = ErrContentTooLarge
		return pe
	}

	if strings.Contains(lower, "rate limit") || strings.Contains(lower, "429") || strings.Contains(lower, "too many requests") || strings.Contains(lower, "quota") || strings.Contains(lower, "resource_exhausted") {
		pe.Code = ErrRateLimit
		return pe
	}

	if strings.Contains(lower, "api key") || strings.Contains(lower, "401") || strings.Contains(lower, "403") || strings.Contains(lower, "permission_denied") || strings.Contains(lower, "unauthenticated") {
		pe.Code = ErrAuthentication
		return pe
	}

	if strings.Contains(lower, "deadline exceeded") || strings.Contains(lower, "timed out") || strings.Contains(lower, "timeout") {
		pe.Code = ErrTimeout
		return pe
	}

	if strings.Contains(lower, "connection refused") || strings.Contains(lower, "unavailable") || strings.Contains(lower, "503") || strings.Contains(lower, "500") || strings.Contains(lower, "no such host") {
		pe.Code = ErrModelUnavailable
		return pe
	}

	pe.Code = ErrProcessingError
	return pe
}

// IsTimeout returns true if the error is a timeout error.
func IsTimeout(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code == ErrTimeout
	}
	return false
}

// IsErrorRetryable returns true if the error is likely transient and worth retrying.
// This function checks the error code using the ErrorCodeRegistry.
func IsErrorRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		if info, ok := ErrorCodeRegistry[pe.Code]; ok {
			return info.Retryable
		}
		return false
	}
	return false
}
