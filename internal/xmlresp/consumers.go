package xmlresp

import (
	"strconv"
	"strings"

	"github.com/s3pipe/s3pipe/pkg/types"
)

// ListBucketsConsumer collects bucket rows from a ListAllBuckets
// response document.
type ListBucketsConsumer struct {
	OnBucket func(types.S3Bucket) error

	current types.S3Bucket
}

func (c *ListBucketsConsumer) isBucketNode(st *Stack) bool {
	return (st.Depth() == 3 || st.Depth() == 4) && st.Top() == TagBucket
}

// StartElement resets the row accumulator on a bucket node.
func (c *ListBucketsConsumer) StartElement(st *Stack) error {
	if c.isBucketNode(st) {
		c.current = types.S3Bucket{}
	}
	return nil
}

// Text captures bucket fields below the row node.
func (c *ListBucketsConsumer) Text(st *Stack, value string) error {
	if st.Depth() < 3 {
		return nil
	}
	switch st.Top() {
	case TagName:
		c.current.Name = value
	case TagCreationDate:
		c.current.CreationDate = value
	}
	return nil
}

// EndElement emits the accumulated row when a bucket node closes.
func (c *ListBucketsConsumer) EndElement(st *Stack) error {
	if c.isBucketNode(st) {
		return c.OnBucket(c.current)
	}
	return nil
}

// ListObjectsConsumer collects object and common-prefix rows from a
// ListObjects response. Amazon and Walrus nest rows at different depths;
// Walrus additionally omits the outer prefix from common-prefix rows, so
// it is captured and prepended.
type ListObjectsConsumer struct {
	Details  *ResponseDetails
	IsWalrus bool
	OnObject func(types.S3Object) error

	current    types.S3Object
	prefix     string
	nextMarker string
	lastKey    string
}

// NextMarker returns the explicit NextMarker element when the server
// sent one, else the last row key seen.
func (c *ListObjectsConsumer) NextMarker() string {
	if c.nextMarker == "" {
		return c.lastKey
	}
	return c.nextMarker
}

func (c *ListObjectsConsumer) isObjectNode(st *Stack) bool {
	if !c.IsWalrus {
		return st.Depth() == 2 && (st.Top() == TagContents || st.Top() == TagCommonPrefixes)
	}
	return (st.Depth() == 3 && st.Top() == TagContents) ||
		(st.Depth() == 4 && st.Top() == TagPrefix && st.At(st.Depth()-2) == TagCommonPrefixes)
}

// StartElement resets the row accumulator on a row node.
func (c *ListObjectsConsumer) StartElement(st *Stack) error {
	if c.isObjectNode(st) {
		c.current = types.S3Object{}
	}
	return nil
}

// Text captures row fields. Key and ETag append because text may arrive
// in chunks; ETag sheds the surrounding quotes.
func (c *ListObjectsConsumer) Text(st *Stack, value string) error {
	if st.Depth() < 2 {
		return nil
	}
	switch st.Top() {
	case TagIsTruncated:
		c.Details.IsTruncated = value == "true"

	case TagKey:
		c.current.Key += value

	case TagLastModified:
		c.current.LastModified = value

	case TagETag:
		c.current.ETag += strings.Trim(value, `"`)

	case TagSize:
		size, _ := strconv.ParseInt(value, 10, 64)
		c.current.Size = size

	case TagPrefix:
		if st.At(st.Depth()-2) == TagCommonPrefixes {
			if c.IsWalrus {
				c.current.Key += c.prefix
			}
			c.current.Key += value
			c.current.IsDir = true
		} else if c.IsWalrus {
			c.prefix = value
		}

	case TagNextMarker:
		c.nextMarker = value
	}
	return nil
}

// EndElement emits the accumulated row when a row node closes.
func (c *ListObjectsConsumer) EndElement(st *Stack) error {
	if c.isObjectNode(st) {
		c.lastKey = c.current.Key
		if c.current.IsDir {
			c.current.Size = -1
		}
		return c.OnObject(c.current)
	}
	return nil
}

// ListMultipartUploadsConsumer collects upload and common-prefix rows
// from a ListMultipartUploads response.
type ListMultipartUploadsConsumer struct {
	Details  *ResponseDetails
	OnUpload func(types.S3MultipartUpload) error

	current types.S3MultipartUpload
	last    types.S3MultipartUpload
}

// LastUpload returns the final row seen, used to derive next markers.
func (c *ListMultipartUploadsConsumer) LastUpload() types.S3MultipartUpload {
	return c.last
}

func (c *ListMultipartUploadsConsumer) isUploadNode(st *Stack) bool {
	return st.Depth() == 2 && (st.Top() == TagUpload || st.Top() == TagCommonPrefixes)
}

// StartElement resets the row accumulator on a row node.
func (c *ListMultipartUploadsConsumer) StartElement(st *Stack) error {
	if c.isUploadNode(st) {
		c.current = types.S3MultipartUpload{}
	}
	return nil
}

// Text captures row fields; Key appends.
func (c *ListMultipartUploadsConsumer) Text(st *Stack, value string) error {
	if st.Depth() < 2 {
		return nil
	}
	switch st.Top() {
	case TagIsTruncated:
		c.Details.IsTruncated = value == "true"

	case TagKey:
		c.current.Key += value

	case TagUploadID:
		c.current.UploadID = value

	case TagPrefix:
		if st.At(st.Depth()-2) == TagCommonPrefixes {
			c.current.Key += value
			c.current.IsDir = true
		}
	}
	return nil
}

// EndElement emits the accumulated row when a row node closes.
func (c *ListMultipartUploadsConsumer) EndElement(st *Stack) error {
	if c.isUploadNode(st) {
		c.last = c.current
		return c.OnUpload(c.current)
	}
	return nil
}

// InitiateMultipartUploadConsumer captures the server-issued upload id.
type InitiateMultipartUploadConsumer struct {
	Details *ResponseDetails
}

func (c *InitiateMultipartUploadConsumer) StartElement(st *Stack) error { return nil }

// Text captures UploadId directly under the document root.
func (c *InitiateMultipartUploadConsumer) Text(st *Stack, value string) error {
	if st.Depth() == 2 && st.Top() == TagUploadID {
		c.Details.UploadID = value
	}
	return nil
}

func (c *InitiateMultipartUploadConsumer) EndElement(st *Stack) error { return nil }

// CompleteMultipartUploadConsumer captures the composite ETag without
// its surrounding quotes.
type CompleteMultipartUploadConsumer struct {
	Details *ResponseDetails
}

func (c *CompleteMultipartUploadConsumer) StartElement(st *Stack) error { return nil }

// Text captures the outer ETag element.
func (c *CompleteMultipartUploadConsumer) Text(st *Stack, value string) error {
	if st.Depth() == 2 && st.Top() == TagETag {
		c.Details.ETag += strings.Trim(value, `"`)
	}
	return nil
}

func (c *CompleteMultipartUploadConsumer) EndElement(st *Stack) error { return nil }
