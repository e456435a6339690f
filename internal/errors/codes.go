// Package errors provides structured error handling for the wikidex pipeline.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage and file errors
//   - 3XX: Network errors (embedder, index)
//   - 4XX: Data and parse errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates store and file I/O errors.
	CategoryStorage Category = "STORAGE"
	// CategoryNetwork indicates embedder/index transport errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryData indicates parse and validation errors on dump data.
	CategoryData Category = "DATA"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, the stage must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but the run can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound      = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid       = "ERR_102_CONFIG_INVALID"
	ErrCodeUnsupportedLanguage = "ERR_103_UNSUPPORTED_LANGUAGE"

	// Storage errors (200-299)
	ErrCodeFileNotFound         = "ERR_201_FILE_NOT_FOUND"
	ErrCodeUnsupportedExtension = "ERR_202_UNSUPPORTED_EXTENSION"
	ErrCodeStoreCorrupt         = "ERR_203_STORE_CORRUPT"
	ErrCodeDiskFull             = "ERR_204_DISK_FULL"
	ErrCodeStoreFailed          = "ERR_205_STORE_FAILED"
	ErrCodeLockHeld             = "ERR_206_LOCK_HELD"

	// Network errors (300-399)
	ErrCodeNetworkTimeout     = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNetworkUnavailable = "ERR_302_NETWORK_UNAVAILABLE"
	ErrCodeEmbedRateLimited   = "ERR_303_EMBED_RATE_LIMITED"
	ErrCodeIndexUnavailable   = "ERR_304_INDEX_UNAVAILABLE"

	// Data errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeMalformedEntity   = "ERR_403_MALFORMED_ENTITY"
	ErrCodeMalformedTime     = "ERR_404_MALFORMED_TIME"
	ErrCodeInvalidQuery      = "ERR_405_INVALID_QUERY"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeRetrievalFailed = "ERR_503_RETRIEVAL_FAILED"
	ErrCodeChunkingFailed  = "ERR_504_CHUNKING_FAILED"
	ErrCodeIndexFailed     = "ERR_505_INDEX_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Numeric portion, e.g. "101" from "ERR_101_CONFIG_NOT_FOUND".
	numStr := code[4:7]
	if len(numStr) < 1 {
		return CategoryInternal
	}

	switch numStr[0] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryData
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeStoreCorrupt, ErrCodeDiskFull, ErrCodeUnsupportedExtension:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeNetworkUnavailable, ErrCodeEmbedRateLimited, ErrCodeIndexUnavailable:
		return true
	default:
		return false
	}
}
