// Package xmlresp parses S3 response bodies. Element names are mapped to
// a small tag set and tracked on a fixed-depth stack; per-operation
// consumers pull the fields they need as text events arrive. Responses
// are flat and shallow, so the bounded stack doubles as a cheap
// malformed-input check.
package xmlresp

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/s3pipe/s3pipe/pkg/errors"
)

// Tag identifies a recognized response element.
type Tag int

// Recognized element tags. TagUnknown marks elements outside the set;
// they still occupy a stack slot.
const (
	TagUnknown Tag = iota
	TagBucket
	TagCode
	TagCommonPrefixes
	TagContents
	TagCreationDate
	TagETag
	TagError
	TagHostID
	TagIsTruncated
	TagKey
	TagLastModified
	TagMessage
	TagName
	TagNextMarker
	TagPrefix
	TagRequestID
	TagSize
	TagUpload
	TagUploadID
)

var tagsByName = map[string]Tag{
	"Bucket":         TagBucket,
	"Code":           TagCode,
	"CommonPrefixes": TagCommonPrefixes,
	"Contents":       TagContents,
	"CreationDate":   TagCreationDate,
	"ETag":           TagETag,
	"Error":          TagError,
	"HostId":         TagHostID,
	"IsTruncated":    TagIsTruncated,
	"Key":            TagKey,
	"LastModified":   TagLastModified,
	"Message":        TagMessage,
	"Name":           TagName,
	"NextMarker":     TagNextMarker,
	"Prefix":         TagPrefix,
	"RequestId":      TagRequestID,
	"Size":           TagSize,
	"Upload":         TagUpload,
	"UploadId":       TagUploadID,
}

// LookupTag maps an element local name to its tag.
func LookupTag(name string) Tag {
	return tagsByName[name]
}

// Status classifies the outcome of a response.
type Status int

const (
	StatusUnexpected Status = iota
	StatusSuccess
	StatusFailureWithDetails
	StatusHTTPFailure
	StatusNotFound
	StatusHTTPOrAwsFailure
)

// ResponseDetails accumulates everything a response tells us: header
// fields captured by the classifier and body fields captured by the
// XML consumers. ContentLength is -1 until a Content-Length header
// arrives.
type ResponseDetails struct {
	Status     Status
	URL        string
	Name       string
	HTTPStatus string

	Date          string
	ContentLength int64
	ContentType   string
	AmzID2        string
	RequestID     string
	ETag          string

	ErrorCode    string
	ErrorMessage string
	HostID       string

	IsTruncated         bool
	UploadID            string
	LoadedContentLength int64
}

// NewResponseDetails returns details initialized for a fresh request.
func NewResponseDetails(url, name string) *ResponseDetails {
	return &ResponseDetails{
		URL:           url,
		Name:          name,
		ContentLength: -1,
	}
}

// MaxDepth bounds the element stack. Response documents never nest
// deeper than this.
const MaxDepth = 8

// Stack is the fixed-depth element stack.
type Stack struct {
	tags  [MaxDepth]Tag
	depth int
}

// Depth returns the number of open elements.
func (s *Stack) Depth() int { return s.depth }

// Top returns the innermost open element's tag.
func (s *Stack) Top() Tag { return s.tags[s.depth-1] }

// At returns the tag at position i counted from the document root.
func (s *Stack) At(i int) Tag { return s.tags[i] }

func (s *Stack) push(t Tag) bool {
	if s.depth >= MaxDepth {
		return false
	}
	s.tags[s.depth] = t
	s.depth++
	return true
}

func (s *Stack) pop() bool {
	if s.depth == 0 {
		return false
	}
	s.depth--
	return true
}

// Consumer receives element events for one operation. The stack reflects
// all open elements; for Text and EndElement the innermost one is the
// element the event belongs to.
type Consumer interface {
	StartElement(st *Stack) error
	Text(st *Stack, value string) error
	EndElement(st *Stack) error
}

// Parser accumulates body chunks and dispatches element events to a
// consumer at finalization. Common error documents are handled here for
// every operation: Error/{Code,Message,RequestId,HostId} text is copied
// into the details and a NotFound or HTTPOrAws status is promoted to
// FailureWithDetails.
type Parser struct {
	stack    Stack
	details  *ResponseDetails
	consumer Consumer
	buf      bytes.Buffer
}

// NewParser creates a parser writing into details. consumer may be nil
// for operations whose success body carries no fields of interest.
func NewParser(details *ResponseDetails, consumer Consumer) *Parser {
	return &Parser{details: details, consumer: consumer}
}

// Write buffers one body chunk. It never fails; malformed input is
// reported by Finish.
func (p *Parser) Write(b []byte) (int, error) {
	return p.buf.Write(b)
}

// HasData reports whether any body bytes arrived.
func (p *Parser) HasData() bool { return p.buf.Len() > 0 }

// Finish parses the accumulated document and dispatches events in
// document order.
func (p *Parser) Finish() error {
	if p.buf.Len() == 0 {
		return nil
	}

	dec := xml.NewDecoder(&p.buf)
	for {
		tok, err := dec.RawToken()
		if err == io.EOF {
			if p.stack.depth != 0 {
				return errors.NewParser("malformed response XML: unclosed element")
			}
			return nil
		}
		if err != nil {
			return errors.NewParser(fmt.Sprintf("malformed response XML: %v", err))
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if !p.stack.push(LookupTag(t.Name.Local)) {
				return errors.NewParser("response XML nested too deep")
			}
			if p.consumer != nil {
				if err := p.consumer.StartElement(&p.stack); err != nil {
					return err
				}
			}

		case xml.CharData:
			if p.stack.depth == 0 {
				continue
			}
			p.handleErrorNode(string(t))
			if p.consumer != nil {
				if err := p.consumer.Text(&p.stack, string(t)); err != nil {
					return err
				}
			}

		case xml.EndElement:
			if p.stack.depth == 0 {
				return errors.NewParser("unmatched end tag in response XML")
			}
			if p.consumer != nil {
				if err := p.consumer.EndElement(&p.stack); err != nil {
					return err
				}
			}
			p.stack.pop()
		}
	}
}

func (p *Parser) handleErrorNode(value string) {
	if p.stack.depth != 2 || p.stack.tags[0] != TagError {
		return
	}

	switch p.stack.tags[1] {
	case TagCode:
		p.details.ErrorCode += value
	case TagMessage:
		p.details.ErrorMessage += value
	case TagRequestID:
		p.details.RequestID += value
	case TagHostID:
		p.details.HostID += value
	}

	if p.details.Status == StatusNotFound || p.details.Status == StatusHTTPOrAwsFailure {
		p.details.Status = StatusFailureWithDetails
	}
}
