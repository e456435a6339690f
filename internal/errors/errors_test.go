package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesFromCode(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{"config", ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{"storage", ErrCodeFileNotFound, CategoryStorage, SeverityError, false},
		{"fatal extension", ErrCodeUnsupportedExtension, CategoryStorage, SeverityFatal, false},
		{"fatal corrupt", ErrCodeStoreCorrupt, CategoryStorage, SeverityFatal, false},
		{"network timeout", ErrCodeNetworkTimeout, CategoryNetwork, SeverityWarning, true},
		{"index unavailable", ErrCodeIndexUnavailable, CategoryNetwork, SeverityWarning, true},
		{"parse", ErrCodeMalformedEntity, CategoryData, SeverityError, false},
		{"malformed time", ErrCodeMalformedTime, CategoryData, SeverityError, false},
		{"internal", ErrCodeInternal, CategoryInternal, SeverityError, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := New(tc.code, "boom", nil)
			assert.Equal(t, tc.category, err.Category)
			assert.Equal(t, tc.severity, err.Severity)
			assert.Equal(t, tc.retryable, err.Retryable)
		})
	}
}

func TestError_Format(t *testing.T) {
	err := New(ErrCodeFileNotFound, "dump file missing", nil)
	assert.Equal(t, "[ERR_201_FILE_NOT_FOUND] dump file missing", err.Error())
}

func TestWrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(ErrCodeNetworkUnavailable, cause)

	require.NotNil(t, err)
	assert.Equal(t, "connection refused", err.Message)
	assert.Equal(t, cause, err.Cause)
	assert.True(t, err.Retryable)

	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestUnwrap_ChainSupport(t *testing.T) {
	cause := stderrors.New("root cause")
	err := New(ErrCodeStoreFailed, "insert failed", cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, cause, stderrors.Unwrap(err))
}

func TestIs_MatchesByCode(t *testing.T) {
	a := New(ErrCodeMalformedTime, "bad time string", nil)
	b := New(ErrCodeMalformedTime, "different message", nil)
	c := New(ErrCodeMalformedEntity, "bad entity", nil)

	assert.True(t, stderrors.Is(a, b))
	assert.False(t, stderrors.Is(a, c))
}

func TestHelperConstructors(t *testing.T) {
	assert.Equal(t, ErrCodeConfigInvalid, ConfigError("x", nil).Code)
	assert.Equal(t, ErrCodeStoreFailed, StorageError("x", nil).Code)
	assert.Equal(t, ErrCodeNetworkTimeout, NetworkError("x", nil).Code)
	assert.Equal(t, ErrCodeMalformedEntity, ParseError("x", nil).Code)
	assert.Equal(t, ErrCodeInvalidInput, ValidationError("x", nil).Code)
	assert.Equal(t, ErrCodeInternal, InternalError("x", nil).Code)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NetworkError("timeout", nil)))
	assert.False(t, IsRetryable(ParseError("bad json", nil)))
	assert.False(t, IsRetryable(stderrors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(New(ErrCodeUnsupportedExtension, "rar is not a dump", nil)))
	assert.False(t, IsFatal(ParseError("skip me", nil)))
	assert.False(t, IsFatal(nil))
}

func TestGetCodeAndCategory(t *testing.T) {
	err := New(ErrCodeEmbeddingFailed, "x", nil)
	assert.Equal(t, ErrCodeEmbeddingFailed, GetCode(err))
	assert.Equal(t, CategoryInternal, GetCategory(err))

	plain := stderrors.New("plain")
	assert.Equal(t, "", GetCode(plain))
	assert.Equal(t, Category(""), GetCategory(plain))
}

func TestWithDetailAndSuggestion(t *testing.T) {
	err := New(ErrCodeConfigInvalid, "bad worker count", nil).
		WithDetail("workers", "-3").
		WithSuggestion("set dump.workers to a positive number")

	assert.Equal(t, "-3", err.Details["workers"])
	assert.Equal(t, "set dump.workers to a positive number", err.Suggestion)
}

func TestFormatForCLI(t *testing.T) {
	err := New(ErrCodeFileNotFound, "no such dump", nil).
		WithSuggestion("check the --file path")

	out := FormatForCLI(err)
	assert.Contains(t, out, "Error: no such dump")
	assert.Contains(t, out, "Hint: check the --file path")
	assert.Contains(t, out, "Code: ERR_201_FILE_NOT_FOUND")

	// Plain errors get wrapped as internal.
	out = FormatForCLI(stderrors.New("plain failure"))
	assert.Contains(t, out, "plain failure")
	assert.Contains(t, out, ErrCodeInternal)

	assert.Equal(t, "", FormatForCLI(nil))
}

func TestFormatForLog(t *testing.T) {
	cause := fmt.Errorf("dial tcp: refused")
	err := Wrap(ErrCodeNetworkUnavailable, cause).WithDetail("host", "localhost:11434")

	attrs := FormatForLog(err)
	assert.Equal(t, ErrCodeNetworkUnavailable, attrs["error_code"])
	assert.Equal(t, "NETWORK", attrs["category"])
	assert.Equal(t, true, attrs["retryable"])
	assert.Equal(t, "localhost:11434", attrs["detail_host"])

	plain := FormatForLog(stderrors.New("plain"))
	assert.Equal(t, "plain", plain["error"])

	assert.Nil(t, FormatForLog(nil))
}

func TestFormatJSON(t *testing.T) {
	err := New(ErrCodeDimensionMismatch, "got 768 want 1024", nil)
	data, jerr := FormatJSON(err)
	require.NoError(t, jerr)
	assert.Contains(t, string(data), `"code":"ERR_402_DIMENSION_MISMATCH"`)
	assert.Contains(t, string(data), `"category":"DATA"`)
}
