package errors

import (
	stderr "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorRendering(t *testing.T) {
	err := NewError(ErrCodeTransport, "connection reset")
	assert.Equal(t, "TRANSPORT: connection reset", err.Error())

	err = err.WithComponent("transport")
	assert.Equal(t, "[transport] TRANSPORT: connection reset", err.Error())
}

func TestSummaryRendering(t *testing.T) {
	inner := NewAws("AccessDenied", "denied", "req-1", "host-1")
	sum := NewSummary("get", "some/key", inner)
	assert.Equal(t, "S3 get for 'some/key' failed. AccessDenied: denied", sum.Error())
}

func TestSummaryCopiesInnerDetail(t *testing.T) {
	inner := NewAws("SlowDown", "throttled", "req-2", "")
	inner.Retryable = true

	sum := NewSummary("put", "k", inner)
	assert.Equal(t, ErrCodeAws, sum.Code)
	assert.Equal(t, CategoryRequest, sum.Category)
	assert.True(t, sum.Retryable)
	assert.Equal(t, "SlowDown", sum.AwsCode)
	assert.Equal(t, "req-2", sum.RequestID)
}

func TestSummaryOfPlainError(t *testing.T) {
	sum := NewSummary("del", "k", stderr.New("boom"))
	assert.Equal(t, ErrCodeUnexpected, sum.Code)
	assert.Equal(t, "S3 del for 'k' failed. boom", sum.Error())
}

func TestUnwrapAndIs(t *testing.T) {
	cause := NewError(ErrCodeNotFound, "missing")
	sum := NewSummary("get", "k", cause)

	var e *S3PipeError
	require.ErrorAs(t, sum, &e)
	assert.True(t, stderr.Is(sum, &S3PipeError{Code: ErrCodeNotFound}))
	assert.False(t, stderr.Is(sum, &S3PipeError{Code: ErrCodeHTTP}))
	assert.Same(t, cause, stderr.Unwrap(sum))
}

func TestCategories(t *testing.T) {
	assert.Equal(t, CategoryRequest, GetCategory(ErrCodeHTTP))
	assert.Equal(t, CategoryConnection, GetCategory(ErrCodeBusyConnection))
	assert.Equal(t, CategoryConfiguration, GetCategory(ErrCodeInvalidConfig))
	assert.Equal(t, CategoryInternal, GetCategory(ErrCodeInternalError))
}

func TestRetryableDefaults(t *testing.T) {
	assert.True(t, NewError(ErrCodeTransport, "x").Retryable)
	assert.True(t, NewError(ErrCodeInternalError, "x").Retryable)
	assert.False(t, NewError(ErrCodeNotFound, "x").Retryable)
	assert.False(t, NewError(ErrCodeAws, "x").Retryable)

	assert.True(t, NewError(ErrCodeAws, "x").WithRetryable(true).Retryable)
}

func TestAwsErrorCode(t *testing.T) {
	assert.Equal(t, "", AwsErrorCode(nil))
	assert.Equal(t, "", AwsErrorCode(stderr.New("plain")))

	aws := NewAws("NoSuchKey", "gone", "", "")
	assert.Equal(t, "NoSuchKey", AwsErrorCode(aws))

	wrapped := fmt.Errorf("outer: %w", NewSummary("get", "k", aws))
	assert.Equal(t, "NoSuchKey", AwsErrorCode(wrapped))
}

func TestConstructors(t *testing.T) {
	h := NewHTTP("503 Service Unavailable")
	assert.Equal(t, ErrCodeHTTP, h.Code)
	assert.Equal(t, "503 Service Unavailable", h.StatusLine)
	assert.Contains(t, h.Error(), "503 Service Unavailable")

	nf := NewNotFound("http://host/bucket/key")
	assert.Equal(t, ErrCodeNotFound, nf.Code)
	assert.Equal(t, "http://host/bucket/key", nf.URL)

	tr := NewTransport("request timed out", stderr.New("deadline"))
	assert.Equal(t, ErrCodeTransport, tr.Code)
	assert.Contains(t, tr.Error(), "request timed out")
	assert.Equal(t, "deadline", stderr.Unwrap(tr).Error())
}

func TestStringAndJSON(t *testing.T) {
	err := NewAws("AccessDenied", "denied", "req-1", "")
	s := err.String()
	assert.Contains(t, s, "Code=AWS_FAILURE")
	assert.Contains(t, s, "AwsCode=AccessDenied")
	assert.Contains(t, s, "RequestID=req-1")

	j := err.JSON()
	assert.Contains(t, j, `"code":"AWS_FAILURE"`)
	assert.Contains(t, j, `"aws_code":"AccessDenied"`)
}
