// Package wire holds the per-operation request object and the response
// classifier. A request is a tagged bundle of plug points: an optional
// body source, an optional body sink, an expect-XML flag and an XML
// consumer. All transport wiring goes through this one shape.
package wire

import (
	"time"

	"github.com/s3pipe/s3pipe/internal/sign"
	"github.com/s3pipe/s3pipe/internal/xmlresp"
)

// Loader is the binary sink for GET bodies. It is offered each chunk
// together with a total-size hint (-1 when unknown) and returns how many
// bytes it accepted. Accepting fewer bytes than offered, or zero, stops
// the transfer and marks the response truncated.
type Loader func(chunk []byte, totalSizeHint int64) int

// Uploader is the binary source for PUT/POST bodies. It fills chunk and
// returns how many bytes it produced; zero means the body is exhausted.
type Uploader func(chunk []byte) int

// Header is one request header in emission order.
type Header struct {
	Name  string
	Value string
}

// Request carries everything needed to execute one operation and to
// accumulate its response. It is created per call and owned by the
// connection until the call completes or is cancelled.
type Request struct {
	Verb string
	URL  string

	Bucket string
	Key    string // unescaped, used in error messages

	// SignPath is the canonical resource path used by the signer,
	// e.g. "/bucket/key" or "/bucket/".
	SignPath string

	ContentType   string
	ContentMD5    string
	PublicReadACL bool
	ServerEncrypt bool

	// Range is half-open [RangeLow, RangeHigh) and emitted only when
	// RangeSet is true.
	RangeSet  bool
	RangeLow  int64
	RangeHigh int64

	// Body source; ContentLength must be set whenever Uploader is.
	Uploader      Uploader
	ContentLength int64

	// Body sink for binary responses.
	Loader Loader

	ExpectXML bool
	Consumer  xmlresp.Consumer

	Details *xmlresp.ResponseDetails

	parser  *xmlresp.Parser
	stashed error
}

// NewRequest creates a request with details initialized for the URL.
func NewRequest(verb, url, bucket, key string) *Request {
	return &Request{
		Verb:     verb,
		URL:      url,
		Bucket:   bucket,
		Key:      key,
		SignPath: sign.Resource(bucket, key, key != ""),
		Details:  xmlresp.NewResponseDetails(url, key),
	}
}

// StashError records the first callback failure so it can be re-raised
// at completion. Callbacks themselves never unwind into the transport.
func (r *Request) StashError(err error) {
	if r.stashed == nil {
		r.stashed = err
	}
}

// StashedError returns the first callback failure, or nil.
func (r *Request) StashedError() error { return r.stashed }

// SignedHeaders assembles the request headers in emission order,
// including the Authorization header computed from the canonical string.
func (r *Request) SignedHeaders(accKey, secKey string, isWalrus bool, now time.Time) []Header {
	date := sign.FormatDate(now)

	headers := make([]Header, 0, 8)
	if r.ContentMD5 != "" {
		headers = append(headers, Header{"Content-MD5", r.ContentMD5})
	}
	headers = append(headers, Header{"Content-Type", r.ContentType})
	headers = append(headers, Header{"Date", date})
	if r.PublicReadACL {
		headers = append(headers, Header{"x-amz-acl", "public-read"})
	}
	if r.ServerEncrypt {
		headers = append(headers, Header{"x-amz-server-side-encryption", "AES256"})
	}
	if r.RangeSet && r.RangeLow < r.RangeHigh {
		headers = append(headers, Header{"Range", rangeValue(r.RangeLow, r.RangeHigh)})
	}

	auth := sign.AuthHeader(accKey, secKey, &sign.Params{
		Verb:          r.Verb,
		ContentMD5:    r.ContentMD5,
		ContentType:   r.ContentType,
		Date:          date,
		Resource:      r.SignPath,
		IsWalrus:      isWalrus,
		PublicReadACL: r.PublicReadACL,
		ServerEncrypt: r.ServerEncrypt,
	})
	headers = append(headers, Header{"Authorization", auth})
	headers = append(headers, Header{"Connection", "Keep-Alive"})
	return headers
}

func rangeValue(low, high int64) string {
	return "bytes=" + itoa(low) + "-" + itoa(high-1)
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	neg := v < 0
	if neg {
		v = -v
	}
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// BufferLoader returns a loader filling a bounded destination buffer.
// Once the buffer is full further bytes are refused, which truncates the
// transfer.
func BufferLoader(dst []byte) Loader {
	off := 0
	return func(chunk []byte, totalSizeHint int64) int {
		n := copy(dst[off:], chunk)
		off += n
		return n
	}
}

// BufferUploader returns an uploader draining the given slice.
func BufferUploader(data []byte) Uploader {
	off := 0
	return func(chunk []byte) int {
		n := copy(chunk, data[off:])
		off += n
		return n
	}
}
