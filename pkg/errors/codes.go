package errors

// ErrorCodeInfo contains metadata about an error code.
type ErrorCodeInfo struct {
	Code            ErrorCode
	Retryable       bool
	Description     string
	SuggestedAction string
}

// ErrorCodeRegistry maps error codes to their metadata.
var ErrorCodeRegistry = map[ErrorCode]ErrorCodeInfo{
	ErrTimeout: {
		Code:            ErrTimeout,
		Retryable:       true,
		Description:     "Operation exceeded time limit",
		SuggestedAction: "Raise generation.timeout in the config file or pass --timeout",
	},
	ErrRateLimit: {
		Code:            ErrRateLimit,
		Retryable:       true,
		Description:     "Generation API rate limit exceeded",
		SuggestedAction: "Wait and retry, add more keys to generation.api_keys, or lower concurrency",
	},
	ErrModelUnavailable: {
		Code:            ErrModelUnavailable,
		Retryable:       true,
		Description:     "Generation model or service unavailable",
		SuggestedAction: "Check provider status and the generation.model setting",
	},
	ErrContextCancelled: {
		Code:            ErrContextCancelled,
		Retryable:       false,
		Description:     "Operation cancelled by user or system",
		SuggestedAction: "Check if cancellation was intentional",
	},
	ErrAuthentication: {
		Code:            ErrAuthentication,
		Retryable:       false,
		Description:     "Generation provider rejected the credentials",
		SuggestedAction: "Store a valid key: studynotes auth set-key",
	},
	ErrParseError: {
		Code:            ErrParseError,
		Retryable:       false,
		Description:     "Caption payload parsing failed (malformed structure)",
		SuggestedAction: "Inspect the payload: studynotes decode <file>",
	},
	ErrEmptyContent: {
		Code:            ErrEmptyContent,
		Retryable:       false,
		Description:     "Content is empty or missing",
		SuggestedAction: "Verify the caption source contains cues",
	},
	ErrContentTooLarge: {
		Code:            ErrContentTooLarge,
		Retryable:       false,
		Description:     "Prompt exceeds the model input limit",
		SuggestedAction: "Lower heuristics.max_chunk_words",
	},
	ErrProcessingError: {
		Code:            ErrProcessingError,
		Retryable:       false,
		Description:     "Unclassified processing error",
		SuggestedAction: "Re-run with --debug and check the logs",
	},
}

// IsRetryable returns true if the given error code represents a transient, retryable error.
func IsRetryable(code ErrorCode) bool {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Retryable
	}
	return false
}

// GetSuggestedAction returns the suggested action for the given error code.
func GetSuggestedAction(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.SuggestedAction
	}
	return "Re-run with --debug and check the logs"
}

// GetDescription returns the human-readable description for the given error code.
func GetDescription(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Description
	}
	return "Unknown error"
}
