// Package errors provides the domain error types for studynotes.
//
// Sentinel errors describe conditions that callers check with errors.Is.
// Pipeline failures are classified into an ErrorCode so that retry decisions
// and log output stay consistent across packages.
//
// Usage:
//
//	import sterrors "github.com/otherjamesbrown/studynotes-cli/pkg/errors"
//
//	if sterrors.IsMalformedTimestamp(err) {
//	    // skip the cue
//	}
package errors

import "errors"

// Domain errors.
var (
	// ErrValidation indicates invalid input or configuration.
	ErrValidation = errors.New("validation error")

	// ErrMalformedTimestamp indicates a caption timestamp that could not be parsed.
	ErrMalformedTimestamp = errors.New("malformed timestamp")

	// ErrDecodeFailure indicates a caption payload in no recognized wire format.
	ErrDecodeFailure = errors.New("caption decode failure")

	// ErrGeneration indicates the text generation provider failed.
	ErrGeneration = errors.New("generation failed")

	// ErrEmptyTranscript indicates a payload that decoded to zero entries.
	ErrEmptyTranscript = errors.New("empty transcript")
)

// IsValidation reports whether any error in err's chain is ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsMalformedTimestamp reports whether any error in err's chain is ErrMalformedTimestamp.
func IsMalformedTimestamp(err error) bool {
	return errors.Is(err, ErrMalformedTimestamp)
}

// IsDecodeFailure reports whether any error in err's chain is ErrDecodeFailure.
func IsDecodeFailure(err error) bool {
	return errors.Is(err, ErrDecodeFailure)
}

// IsGeneration reports whether any error in err's chain is ErrGeneration.
func IsGeneration(err error) bool {
	return errors.Is(err, ErrGeneration)
}

// IsEmptyTranscript reports whether any error in err's chain is ErrEmptyTranscript.
func IsEmptyTranscript(err error) bool {
	return errors.Is(err, ErrEmptyTranscript)
}
