package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquisitionError(t *testing.T) {
	cause := fmt.Errorf("fred api timeout")
	err := AcquisitionError("failed to download series", cause)

	assert.Equal(t, TypeAcquisition, err.Type)
	assert.Equal(t, "failed to download series", err.Message)
	assert.Equal(t, cause, err.Cause)
	assert.NotNil(t, err.Context)
	assert.Equal(t, http.StatusBadGateway, err.HTTPStatus())
	assert.Contains(t, err.Error(), "acquisition")
	assert.Contains(t, err.Error(), "failed to download series")
	assert.Contains(t, err.Error(), "fred api timeout")
}

func TestInsufficientDataError(t *testing.T) {
	err := InsufficientDataError("need at least 4 pre-policy months")

	assert.Equal(t, TypeInsufficientData, err.Type)
	assert.Equal(t, "need at least 4 pre-policy months", err.Message)
	assert.Nil(t, err.Cause)
	assert.NotNil(t, err.Context)
	assert.Equal(t, http.StatusUnprocessableEntity, err.HTTPStatus())
	assert.Contains(t, err.Error(), "insufficient_data")
}

func TestConfigError(t *testing.T) {
	err := ConfigError("policy_date is required")

	assert.Equal(t, TypeConfig, err.Type)
	assert.Equal(t, "policy_date is required", err.Message)
	assert.Nil(t, err.Cause)
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus())
	assert.Contains(t, err.Error(), "config")
	assert.Contains(t, err.Error(), "policy_date is required")
}

func TestMissingUpstreamError(t *testing.T) {
	err := MissingUpstreamError("reports/la/monthly_series.csv", "policy")

	assert.Equal(t, TypeMissingUpstream, err.Type)
	assert.Equal(t, http.StatusNotFound, err.HTTPStatus())
	assert.Equal(t, "reports/la/monthly_series.csv", err.Context["path"])
	assert.Equal(t, "policy", err.Context["produced_by"])
	assert.Contains(t, err.Error(), "missing_upstream")
}

func TestInternalError(t *testing.T) {
	cause := fmt.Errorf("write failed")
	err := InternalError("failed to save artifact", cause)

	assert.Equal(t, TypeInternal, err.Type)
	assert.Equal(t, "failed to save artifact", err.Message)
	assert.Equal(t, cause, err.Cause)
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus())
	assert.Contains(t, err.Error(), "internal")
	assert.Contains(t, err.Error(), "write failed")
}

func TestInternalErrorWithoutCause(t *testing.T) {
	err := InternalError("something went wrong", nil)

	assert.Equal(t, TypeInternal, err.Type)
	assert.Nil(t, err.Cause)
	assert.NotContains(t, err.Error(), "<nil>")
}

func TestWithContext(t *testing.T) {
	err := ConfigError("invalid case definition")
	err = err.WithContext("field", "fred_series_id")
	err = err.WithContext("value", "")

	assert.Len(t, err.Context, 2)
	assert.Equal(t, "fred_series_id", err.Context["field"])
	assert.Equal(t, "", err.Context["value"])
}

func TestWithContextChaining(t *testing.T) {
	err := InsufficientDataError("too few overlapping months").
		WithContext("overlap", 5).
		WithContext("required", 8)

	assert.Len(t, err.Context, 2)
	assert.Equal(t, 5, err.Context["overlap"])
	assert.Equal(t, 8, err.Context["required"])
}

func TestWithComponent(t *testing.T) {
	err := AcquisitionError("reddit search failed", nil).WithComponent("acquire")

	assert.Equal(t, "acquire", err.Context["component"])
}

func TestWithContextNilMap(t *testing.T) {
	err := &Error{
		Type:    TypeConfig,
		Message: "test",
		Context: nil,
	}

	err = err.WithContext("key", "value")

	assert.NotNil(t, err.Context)
	assert.Equal(t, "value", err.Context["key"])
}

func TestToResponse(t *testing.T) {
	err := ConfigError("invalid sentiment source").
		WithContext("field", "sentiment_source").
		WithContext("allowed", "reddit, gdelt, rss")

	resp := err.ToResponse()

	assert.Equal(t, "invalid sentiment source", resp.Error)
	assert.Equal(t, TypeConfig, resp.Type)
	assert.Len(t, resp.Context, 2)
	assert.Equal(t, "sentiment_source", resp.Context["field"])
}

func TestToResponseEmptyContext(t *testing.T) {
	err := InsufficientDataError("empty corpus")

	resp := err.ToResponse()

	assert.Equal(t, "empty corpus", resp.Error)
	assert.Equal(t, TypeInsufficientData, resp.Type)
	assert.NotNil(t, resp.Context) // Should be empty map, not nil
	assert.Empty(t, resp.Context)
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := InternalError("wrapped", cause)

	unwrapped := errors.Unwrap(err)
	assert.Equal(t, cause, unwrapped)
}

func TestErrorsIs(t *testing.T) {
	rootCause := fmt.Errorf("root")
	wrapped := AcquisitionError("wrapped", rootCause)

	assert.True(t, errors.Is(wrapped, rootCause))
}

func TestErrorsAs(t *testing.T) {
	err := ConfigError("test")

	var target *Error
	require.True(t, errors.As(err, &target))
	assert.Equal(t, TypeConfig, target.Type)
}

func TestAsStructuredErrorWithStructuredError(t *testing.T) {
	original := ConfigError("original")
	result := AsStructuredError(original)

	assert.Equal(t, original, result)
	assert.Equal(t, TypeConfig, result.Type)
}

func TestAsStructuredErrorWithStandardError(t *testing.T) {
	original := fmt.Errorf("standard error")
	result := AsStructuredError(original)

	assert.NotNil(t, result)
	assert.Equal(t, TypeInternal, result.Type)
	assert.Equal(t, original, result.Cause)
}

func TestAsStructuredErrorWithNil(t *testing.T) {
	result := AsStructuredError(nil)
	assert.Nil(t, result)
}

func TestAsStructuredErrorWithWrappedStructuredError(t *testing.T) {
	original := MissingUpstreamError("data/processed/la_sentiment.csv", "sentiment")
	wrapped := fmt.Errorf("loading report: %w", original)

	result := AsStructuredError(wrapped)

	assert.NotNil(t, result)
	assert.Equal(t, TypeMissingUpstream, result.Type)
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, TypeInsufficientData, TypeOf(InsufficientDataError("x")))
	assert.Equal(t, TypeInternal, TypeOf(fmt.Errorf("plain")))
	assert.Equal(t, ErrorType(""), TypeOf(nil))
}

func TestHTTPStatusAllTypes(t *testing.T) {
	tests := []struct {
		name       string
		errorType  ErrorType
		wantStatus int
	}{
		{"acquisition", TypeAcquisition, http.StatusBadGateway},
		{"insufficient_data", TypeInsufficientData, http.StatusUnprocessableEntity},
		{"config", TypeConfig, http.StatusBadRequest},
		{"missing_upstream", TypeMissingUpstream, http.StatusNotFound},
		{"internal", TypeInternal, http.StatusInternalServerError},
		{"unknown", ErrorType("unknown"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &Error{Type: tt.errorType}
			assert.Equal(t, tt.wantStatus, err.HTTPStatus())
		})
	}
}

func TestContextFieldOverwrite(t *testing.T) {
	err := ConfigError("test")
	err = err.WithContext("field", "original")
	err = err.WithContext("field", "overwritten")

	assert.Equal(t, "overwritten", err.Context["field"])
}
