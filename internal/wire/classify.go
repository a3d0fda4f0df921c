package wire

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/s3pipe/s3pipe/pkg/errors"
	"github.com/s3pipe/s3pipe/internal/xmlresp"
)

// Classify maps the response status line and headers into the request's
// details. Binary and XML body routing happens afterwards, chunk by
// chunk, through Deliver.
func (r *Request) Classify(statusCode int, statusLine string, header http.Header, isWalrus bool) {
	d := r.Details

	switch statusCode {
	case 200, 204, 206:
		d.Status = xmlresp.StatusSuccess
	case 404:
		d.Status = xmlresp.StatusNotFound
	case 301, 400, 403, 409, 500, 503:
		d.Status = xmlresp.StatusHTTPOrAwsFailure
	default:
		d.Status = xmlresp.StatusHTTPFailure
	}
	d.HTTPStatus = statusLine

	if v := header.Get("ETag"); v != "" {
		if isWalrus {
			d.ETag = v
		} else {
			d.ETag = strings.Trim(v, `"`)
		}
	}
	if v := header.Get("Date"); v != "" {
		d.Date = v
	}
	if v := header.Get("Content-Length"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			d.ContentLength = n
		}
	}
	if v := header.Get("Content-Type"); v != "" {
		d.ContentType = v
	}
	if v := header.Get("x-amz-id-2"); v != "" {
		d.AmzID2 = v
	}
	if v := header.Get("x-amz-request-id"); v != "" {
		d.RequestID = v
	}

	if r.wantsXMLBody() {
		r.parser = xmlresp.NewParser(d, r.Consumer)
	}
}

// wantsXMLBody decides whether the body should run through the XML
// parser. Success bodies go there when the operation expects XML;
// failure bodies go there only when the server declared an XML payload
// and the status is one that carries an error document.
func (r *Request) wantsXMLBody() bool {
	d := r.Details
	if d.Status == xmlresp.StatusSuccess && r.ExpectXML {
		return true
	}
	if d.ContentLength == 0 || d.ContentType != "application/xml" {
		return false
	}
	return d.Status == xmlresp.StatusSuccess ||
		d.Status == xmlresp.StatusNotFound ||
		d.Status == xmlresp.StatusHTTPOrAwsFailure
}

// Deliver routes one body chunk. XML chunks are buffered for the
// parser; binary chunks are offered to the loader on success only.
// It returns false when the transfer should stop early.
func (r *Request) Deliver(chunk []byte) bool {
	if len(chunk) == 0 {
		return true
	}
	if r.parser != nil {
		r.parser.Write(chunk)
		return true
	}
	if r.Details.Status != xmlresp.StatusSuccess || r.Loader == nil {
		return true // discard
	}

	accepted := r.Loader(chunk, r.Details.ContentLength)
	if accepted > 0 {
		r.Details.LoadedContentLength += int64(accepted)
	}
	if accepted < len(chunk) {
		r.Details.IsTruncated = true
		return false
	}
	return true
}

// FinishBody completes body handling: the XML parser is finalized and
// any parse failure surfaces here.
func (r *Request) FinishBody() error {
	if r.parser == nil {
		return nil
	}
	return r.parser.Finish()
}

// Error converts the final details into an error value, or nil on
// success. A stashed callback failure always wins.
func (r *Request) Error() error {
	if r.stashed != nil {
		return r.stashed
	}
	d := r.Details

	switch d.Status {
	case xmlresp.StatusSuccess:
		return nil
	case xmlresp.StatusNotFound:
		return errors.NewNotFound(d.URL)
	case xmlresp.StatusHTTPFailure, xmlresp.StatusHTTPOrAwsFailure:
		return errors.NewHTTP(d.HTTPStatus)
	case xmlresp.StatusFailureWithDetails:
		return errors.NewAws(d.ErrorCode, d.ErrorMessage, d.RequestID, d.HostID)
	}
	return errors.NewError(errors.ErrCodeUnexpected, "unexpected response state")
}

// uploadReader adapts an Uploader to io.Reader for the HTTP transport.
type uploadReader struct {
	fill Uploader
	done bool
}

// BodyReader returns the request body as an io.Reader, or nil when the
// request carries no body.
func (r *Request) BodyReader() io.Reader {
	if r.Uploader == nil {
		return nil
	}
	return &uploadReader{fill: r.Uploader}
}

func (u *uploadReader) Read(p []byte) (int, error) {
	if u.done {
		return 0, io.EOF
	}
	n := u.fill(p)
	if n == 0 {
		u.done = true
		return 0, io.EOF
	}
	return n, nil
}
