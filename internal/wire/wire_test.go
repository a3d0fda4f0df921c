package wire

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s3pipe/s3pipe/internal/xmlresp"
	"github.com/s3pipe/s3pipe/pkg/errors"
)

func classify(r *Request, code int, header http.Header) {
	r.Classify(code, http.StatusText(code), header, false)
}

func TestClassifyStatuses(t *testing.T) {
	tests := []struct {
		code int
		want xmlresp.Status
	}{
		{200, xmlresp.StatusSuccess},
		{204, xmlresp.StatusSuccess},
		{206, xmlresp.StatusSuccess},
		{404, xmlresp.StatusNotFound},
		{301, xmlresp.StatusHTTPOrAwsFailure},
		{400, xmlresp.StatusHTTPOrAwsFailure},
		{403, xmlresp.StatusHTTPOrAwsFailure},
		{409, xmlresp.StatusHTTPOrAwsFailure},
		{500, xmlresp.StatusHTTPOrAwsFailure},
		{503, xmlresp.StatusHTTPOrAwsFailure},
		{418, xmlresp.StatusHTTPFailure},
		{302, xmlresp.StatusHTTPFailure},
	}
	for _, tt := range tests {
		r := NewRequest("GET", "http://host/bucket/key", "bucket", "key")
		classify(r, tt.code, http.Header{})
		assert.Equal(t, tt.want, r.Details.Status, "status %d", tt.code)
	}
}

func TestClassifyHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("ETag", `"abc123"`)
	h.Set("Date", "Mon, 09 Mar 2015 13:30:05 GMT")
	h.Set("Content-Length", "42")
	h.Set("Content-Type", "application/octet-stream")
	h.Set("x-amz-id-2", "id2value")
	h.Set("x-amz-request-id", "reqid")

	r := NewRequest("GET", "http://host/bucket/key", "bucket", "key")
	classify(r, 200, h)

	d := r.Details
	assert.Equal(t, "abc123", d.ETag, "quotes stripped")
	assert.Equal(t, "Mon, 09 Mar 2015 13:30:05 GMT", d.Date)
	assert.Equal(t, int64(42), d.ContentLength)
	assert.Equal(t, "application/octet-stream", d.ContentType)
	assert.Equal(t, "id2value", d.AmzID2)
	assert.Equal(t, "reqid", d.RequestID)
}

func TestClassifyWalrusETagKeptRaw(t *testing.T) {
	h := http.Header{}
	h.Set("ETag", `"abc123"`)
	r := NewRequest("GET", "http://host/bucket/key", "bucket", "key")
	r.Classify(200, "OK", h, true)
	assert.Equal(t, `"abc123"`, r.Details.ETag)
}

func TestDeliverBinarySuccess(t *testing.T) {
	r := NewRequest("GET", "http://host/bucket/key", "bucket", "key")
	h := http.Header{}
	h.Set("Content-Length", "6")
	classify(r, 200, h)

	buf := make([]byte, 16)
	r.Loader = BufferLoader(buf)

	assert.True(t, r.Deliver([]byte("abc")))
	assert.True(t, r.Deliver([]byte("def")))
	assert.Equal(t, int64(6), r.Details.LoadedContentLength)
	assert.False(t, r.Details.IsTruncated)
	assert.Equal(t, "abcdef", string(buf[:6]))
	assert.NoError(t, r.Error())
}

func TestDeliverTruncates(t *testing.T) {
	r := NewRequest("GET", "http://host/bucket/key", "bucket", "key")
	classify(r, 200, http.Header{})

	buf := make([]byte, 4)
	r.Loader = BufferLoader(buf)

	assert.True(t, r.Deliver([]byte("abc")))
	assert.False(t, r.Deliver([]byte("def")), "full buffer stops the transfer")
	assert.Equal(t, int64(4), r.Details.LoadedContentLength)
	assert.True(t, r.Details.IsTruncated)
	assert.Equal(t, "abcd", string(buf))
}

func TestDeliverZeroCapacityBuffer(t *testing.T) {
	r := NewRequest("GET", "http://host/bucket/key", "bucket", "key")
	classify(r, 200, http.Header{})
	r.Loader = BufferLoader(nil)

	assert.False(t, r.Deliver([]byte("abc")))
	assert.Equal(t, int64(0), r.Details.LoadedContentLength)
	assert.True(t, r.Details.IsTruncated)
}

func TestDeliverDiscardsFailureBody(t *testing.T) {
	r := NewRequest("GET", "http://host/bucket/key", "bucket", "key")
	classify(r, 403, http.Header{})

	buf := make([]byte, 16)
	r.Loader = BufferLoader(buf)
	assert.True(t, r.Deliver([]byte("denied")))
	assert.Equal(t, int64(0), r.Details.LoadedContentLength)
}

func TestXMLErrorBodyRouting(t *testing.T) {
	r := NewRequest("GET", "http://host/bucket/key", "bucket", "key")
	h := http.Header{}
	h.Set("Content-Type", "application/xml")
	h.Set("Content-Length", "90")
	classify(r, 403, h)

	r.Deliver([]byte(`<Error><Code>AccessDenied</Code><Message>no</Message></Error>`))
	require.NoError(t, r.FinishBody())

	err := r.Error()
	require.Error(t, err)
	assert.Equal(t, "AccessDenied", errors.AwsErrorCode(err))
}

func TestXMLBodySkippedWithoutContentLength(t *testing.T) {
	r := NewRequest("DELETE", "http://host/bucket/key", "bucket", "key")
	h := http.Header{}
	h.Set("Content-Type", "application/xml")
	h.Set("Content-Length", "0")
	classify(r, 204, h)

	assert.True(t, r.Deliver([]byte("ignored")))
	assert.NoError(t, r.FinishBody())
	assert.NoError(t, r.Error())
}

func errCode(t *testing.T, err error) errors.ErrorCode {
	t.Helper()
	var e *errors.S3PipeError
	require.ErrorAs(t, err, &e)
	return e.Code
}

func TestErrorMapping(t *testing.T) {
	r := NewRequest("GET", "http://host/bucket/key", "bucket", "key")
	classify(r, 404, http.Header{})
	assert.Equal(t, errors.ErrCodeNotFound, errCode(t, r.Error()))

	r = NewRequest("GET", "http://host/bucket/key", "bucket", "key")
	classify(r, 503, http.Header{})
	assert.Equal(t, errors.ErrCodeHTTP, errCode(t, r.Error()))
}

func TestStashedErrorWins(t *testing.T) {
	r := NewRequest("GET", "http://host/bucket/key", "bucket", "key")
	classify(r, 200, http.Header{})

	first := errors.NewError(errors.ErrCodeInternalError, "callback failed")
	r.StashError(first)
	r.StashError(errors.NewError(errors.ErrCodeInternalError, "second"))

	assert.Same(t, first, r.StashedError())
	assert.Same(t, first, r.Error())
}

func TestSignedHeaders(t *testing.T) {
	r := NewRequest("PUT", "http://host/bucket/key", "bucket", "key")
	r.ContentType = "text/plain"
	r.ContentMD5 = "md5value"
	r.PublicReadACL = true
	r.ServerEncrypt = true
	r.RangeSet = true
	r.RangeLow = 100
	r.RangeHigh = 200

	now := time.Date(2015, time.March, 9, 13, 30, 5, 0, time.UTC)
	headers := r.SignedHeaders("ak", "sk", false, now)

	byName := map[string]string{}
	var order []string
	for _, h := range headers {
		byName[h.Name] = h.Value
		order = append(order, h.Name)
	}

	assert.Equal(t, []string{
		"Content-MD5", "Content-Type", "Date",
		"x-amz-acl", "x-amz-server-side-encryption",
		"Range", "Authorization", "Connection",
	}, order)
	assert.Equal(t, "md5value", byName["Content-MD5"])
	assert.Equal(t, "Mon, 09 Mar 2015 13:30:05 GMT", byName["Date"])
	assert.Equal(t, "public-read", byName["x-amz-acl"])
	assert.Equal(t, "AES256", byName["x-amz-server-side-encryption"])
	assert.Equal(t, "bytes=100-199", byName["Range"])
	assert.Equal(t, "Keep-Alive", byName["Connection"])
	assert.True(t, len(byName["Authorization"]) > 0 && byName["Authorization"][0] == ' ')
}

func TestSignedHeadersRangeOmittedWhenEmpty(t *testing.T) {
	r := NewRequest("GET", "http://host/bucket/key", "bucket", "key")
	r.RangeSet = true
	r.RangeLow = 5
	r.RangeHigh = 5

	headers := r.SignedHeaders("ak", "sk", false, time.Now())
	for _, h := range headers {
		assert.NotEqual(t, "Range", h.Name)
	}
}

func TestBodyReader(t *testing.T) {
	r := NewRequest("PUT", "http://host/bucket/key", "bucket", "key")
	assert.Nil(t, r.BodyReader())

	r.Uploader = BufferUploader([]byte("payload"))
	r.ContentLength = 7
	body, err := io.ReadAll(r.BodyReader())
	require.NoError(t, err)
	assert.Equal(t, "payload", string(body))
}

func TestNewRequestSignPath(t *testing.T) {
	r := NewRequest("GET", "http://host/bucket/a%20b", "bucket", "a b")
	assert.Equal(t, "/bucket/a b", r.SignPath, "raw key in the canonical path")

	r = NewRequest("PUT", "http://host/bucket", "bucket", "")
	assert.Equal(t, "/bucket", r.SignPath)
}
