package s3

import (
	"strconv"
	"strings"

	"github.com/s3pipe/s3pipe/internal/resturl"
	"github.com/s3pipe/s3pipe/internal/sign"
	"github.com/s3pipe/s3pipe/internal/wire"
	"github.com/s3pipe/s3pipe/internal/xmlresp"
	"github.com/s3pipe/s3pipe/pkg/errors"
	"github.com/s3pipe/s3pipe/pkg/types"
)

// Loader is the binary sink offered each GET chunk with a total-size
// hint; it returns how many bytes it accepted. Accepting less than
// offered truncates the transfer.
type Loader = wire.Loader

// Uploader is the binary source for PUT bodies; it fills the chunk and
// returns how many bytes it produced, zero when exhausted.
type Uploader = wire.Uploader

const (
	contentTypeBinary = "application/octet-stream"
)

// PutOptions selects the optional PUT headers. A zero value uses the
// binary content type with no ACL or encryption headers.
type PutOptions struct {
	MakePublic    bool
	ServerEncrypt bool
	ContentType   string
}

func (o PutOptions) contentType() string {
	if o.ContentType == "" {
		return contentTypeBinary
	}
	return o.ContentType
}

func (c *Connection) walrusGuard(op, key string) error {
	if c.cfg.IsWalrus {
		return errors.NewSummary(op, key,
			errors.NewError(errors.ErrCodeInvalidConfig, "multipart uploads are not supported on Walrus"))
	}
	return nil
}

// finishPut applies the shared PUT completion: raise errors, then copy
// the ETag.
func finishPut(req *wire.Request, transportErr error) (*types.S3PutResponse, error) {
	if err := firstError(transportErr, req); err != nil {
		return nil, err
	}
	return &types.S3PutResponse{ETag: req.Details.ETag}, nil
}

// finishGet applies the GET completion: a missing key is reported as
// success with LoadedContentLength -1 before errors are raised.
func finishGet(req *wire.Request, transportErr error) (*types.S3GetResponse, error) {
	d := req.Details
	if d.Status == xmlresp.StatusFailureWithDetails &&
		(d.ErrorCode == "NoSuchKey" || d.ErrorCode == "NoSuchEntity") {
		d.Status = xmlresp.StatusSuccess
		d.LoadedContentLength = -1
	}
	if err := firstError(transportErr, req); err != nil {
		return nil, err
	}
	return &types.S3GetResponse{
		LoadedContentLength: d.LoadedContentLength,
		IsTruncated:         d.IsTruncated,
		ETag:                d.ETag,
	}, nil
}

// finishDel applies the DELETE completion: Walrus reports a missing
// key where Amazon reports success, so that case is normalized.
func finishDel(req *wire.Request, transportErr error) (*types.S3DelResponse, error) {
	d := req.Details
	if d.Status == xmlresp.StatusFailureWithDetails && d.ErrorCode == "NoSuchEntity" {
		d.Status = xmlresp.StatusSuccess
	}
	if err := firstError(transportErr, req); err != nil {
		return nil, err
	}
	return &types.S3DelResponse{}, nil
}

// firstError picks the transport failure over the protocol-level one.
func firstError(transportErr error, req *wire.Request) error {
	if transportErr != nil {
		return transportErr
	}
	return req.Error()
}

// newPutRequest builds a PUT request, optionally addressed to one part
// of a multipart upload.
func (c *Connection) newPutRequest(bucket, key, uploadID string, partNumber int, opts PutOptions) *wire.Request {
	suffix := ""
	if uploadID != "" {
		suffix = "?partNumber=" + strconv.Itoa(partNumber) + "&uploadId=" + uploadID
	}
	req := c.newRequest("PUT", bucket, key, suffix, opts.contentType())
	req.PublicReadACL = opts.MakePublic
	req.ServerEncrypt = opts.ServerEncrypt
	return req
}

// Put stores data under bucket/key and returns the server-assigned
// ETag.
func (c *Connection) Put(bucket, key string, data []byte, opts PutOptions) (*types.S3PutResponse, error) {
	req := c.newPutRequest(bucket, key, "", 0, opts)
	req.Uploader = wire.BufferUploader(data)
	req.ContentLength = int64(len(data))
	resp, err := finishPut(req, c.execute(req))
	if err != nil {
		return nil, errors.NewSummary("put", key, err)
	}
	return resp, nil
}

// PutStream stores totalSize bytes produced by the uploader.
func (c *Connection) PutStream(bucket, key string, uploader Uploader, totalSize int64, opts PutOptions) (*types.S3PutResponse, error) {
	req := c.newPutRequest(bucket, key, "", 0, opts)
	req.Uploader = uploader
	req.ContentLength = totalSize
	resp, err := finishPut(req, c.execute(req))
	if err != nil {
		return nil, errors.NewSummary("put", key, err)
	}
	return resp, nil
}

// PendPut starts a background Put. The connection must be idle; the
// result is collected by CompletePut.
func (c *Connection) PendPut(asyncMan *AsyncMan, bucket, key string, data []byte, opts PutOptions) error {
	req := c.newPutRequest(bucket, key, "", 0, opts)
	req.Uploader = wire.BufferUploader(data)
	req.ContentLength = int64(len(data))
	return c.pend(asyncMan, "pendPut", req)
}

// CompletePut waits for the pending Put and returns its result.
func (c *Connection) CompletePut() (*types.S3PutResponse, error) {
	ar, err := c.takeCompleted("completePut")
	if err != nil {
		return nil, err
	}
	resp, err := finishPut(ar.req, ar.err)
	if err != nil {
		return nil, errors.NewSummary("completePut", ar.req.Key, err)
	}
	return resp, nil
}

// Get loads bucket/key into buf. The transfer truncates when buf is
// too small; a missing key reports LoadedContentLength -1.
func (c *Connection) Get(bucket, key string, buf []byte) (*types.S3GetResponse, error) {
	return c.GetLoader(bucket, key, wire.BufferLoader(buf))
}

// GetLoader streams bucket/key into the loader callback.
func (c *Connection) GetLoader(bucket, key string, loader Loader) (*types.S3GetResponse, error) {
	req := c.newRequest("GET", bucket, key, "", contentTypeBinary)
	req.Loader = loader
	resp, err := finishGet(req, c.execute(req))
	if err != nil {
		return nil, errors.NewSummary("get", key, err)
	}
	return resp, nil
}

// PendGet starts a background Get into buf. A non-negative offset
// requests the byte range [offset, offset+len(buf)); a negative offset
// loads from the start of the object.
func (c *Connection) PendGet(asyncMan *AsyncMan, bucket, key string, buf []byte, offset int64) error {
	req := c.newRequest("GET", bucket, key, "", contentTypeBinary)
	req.Loader = wire.BufferLoader(buf)
	if offset >= 0 {
		req.RangeSet = true
		req.RangeLow = offset
		req.RangeHigh = offset + int64(len(buf))
	}
	return c.pend(asyncMan, "pendGet", req)
}

// CompleteGet waits for the pending Get and returns its result.
func (c *Connection) CompleteGet() (*types.S3GetResponse, error) {
	ar, err := c.takeCompleted("completeGet")
	if err != nil {
		return nil, err
	}
	resp, err := finishGet(ar.req, ar.err)
	if err != nil {
		return nil, errors.NewSummary("completeGet", ar.req.Key, err)
	}
	return resp, nil
}

// Del deletes bucket/key. Deleting a missing key succeeds.
func (c *Connection) Del(bucket, key string) (*types.S3DelResponse, error) {
	return c.del("del", bucket, key, "")
}

func (c *Connection) del(op, bucket, key, keySuffix string) (*types.S3DelResponse, error) {
	req := c.newRequest("DELETE", bucket, key, keySuffix, contentTypeBinary)
	resp, err := finishDel(req, c.execute(req))
	if err != nil {
		return nil, errors.NewSummary(op, key, err)
	}
	return resp, nil
}

// PendDel starts a background Del.
func (c *Connection) PendDel(asyncMan *AsyncMan, bucket, key string) error {
	req := c.newRequest("DELETE", bucket, key, "", contentTypeBinary)
	return c.pend(asyncMan, "pendDel", req)
}

// CompleteDel waits for the pending Del and returns its result.
func (c *Connection) CompleteDel() (*types.S3DelResponse, error) {
	ar, err := c.takeCompleted("completeDel")
	if err != nil {
		return nil, err
	}
	resp, err := finishDel(ar.req, ar.err)
	if err != nil {
		return nil, errors.NewSummary("completeDel", ar.req.Key, err)
	}
	return resp, nil
}

// CreateBucket creates the bucket. On regional Amazon endpoints the
// location constraint parsed from the host is sent in the body; Walrus
// takes no body.
func (c *Connection) CreateBucket(bucket string, makePublic bool) error {
	req := c.newRequest("PUT", bucket, "", "", contentTypeBinary)
	req.PublicReadACL = makePublic
	req.SignPath = sign.Resource(bucket, "", false)

	var payload string
	if !c.cfg.IsWalrus && c.region != "" {
		payload = "<CreateBucketConfiguration><LocationConstraint>" +
			c.region + "</LocationConstraint></CreateBucketConfiguration>"
	}
	req.Uploader = wire.BufferUploader([]byte(payload))
	req.ContentLength = int64(len(payload))

	if err := firstError(c.execute(req), req); err != nil {
		return errors.NewSummary("createBucket", bucket, err)
	}
	return nil
}

// DelBucket deletes the bucket, which must be empty.
func (c *Connection) DelBucket(bucket string) error {
	if _, err := c.del("delBucket", bucket, "", ""); err != nil {
		return err
	}
	return nil
}

// ListAllBuckets returns every bucket owned by the account.
func (c *Connection) ListAllBuckets() ([]types.S3Bucket, error) {
	req := wire.NewRequest("GET", c.baseURL, "", "")
	req.ContentType = contentTypeBinary
	req.SignPath = "/"
	req.ExpectXML = true

	var buckets []types.S3Bucket
	req.Consumer = &xmlresp.ListBucketsConsumer{
		OnBucket: func(b types.S3Bucket) error {
			buckets = append(buckets, b)
			return nil
		},
	}

	if err := firstError(c.execute(req), req); err != nil {
		return nil, errors.NewSummary("listAllBuckets", "", err)
	}
	return buckets, nil
}

// ListObjects fetches one page of object and common-prefix rows,
// invoking onObject for each. Empty marker, delimiter and prefix are
// omitted; maxKeys 0 leaves the page size to the server.
func (c *Connection) ListObjects(bucket, prefix, marker, delimiter string, maxKeys int,
	onObject func(types.S3Object) error) (*types.S3ListObjectsResponse, error) {

	// Walrus refuses an absent marker.
	if c.cfg.IsWalrus && marker == "" {
		marker = " "
	}

	b := resturl.NewBuilder(c.baseURL)
	b.AppendRaw(bucket)
	b.AppendRaw("/")
	b.AppendQuery("delimiter", delimiter)
	b.AppendQuery("marker", marker)
	if maxKeys != 0 {
		b.AppendQuery("max-keys", strconv.Itoa(maxKeys))
	}
	b.AppendQuery("prefix", prefix)

	req := wire.NewRequest("GET", b.String(), bucket, "")
	req.ContentType = contentTypeBinary
	req.SignPath = sign.Resource(bucket, "", true)
	req.ExpectXML = true

	consumer := &xmlresp.ListObjectsConsumer{
		Details:  req.Details,
		IsWalrus: c.cfg.IsWalrus,
		OnObject: onObject,
	}
	req.Consumer = consumer

	if err := firstError(c.execute(req), req); err != nil {
		return nil, errors.NewSummary("listObjects", bucket, err)
	}
	return &types.S3ListObjectsResponse{
		NextMarker:  consumer.NextMarker(),
		IsTruncated: req.Details.IsTruncated,
	}, nil
}

// InitiateMultipartUpload starts a multipart upload for bucket/key and
// returns the server-issued upload id. Not available on Walrus.
func (c *Connection) InitiateMultipartUpload(bucket, key string, opts PutOptions) (*types.S3InitiateMultipartUploadResponse, error) {
	if err := c.walrusGuard("initiateMultipartUpload", key); err != nil {
		return nil, err
	}

	req := c.newRequest("POST", bucket, key, "?uploads", opts.contentType())
	req.PublicReadACL = opts.MakePublic
	req.ServerEncrypt = opts.ServerEncrypt
	req.ExpectXML = true
	req.Consumer = &xmlresp.InitiateMultipartUploadConsumer{Details: req.Details}
	req.Uploader = wire.BufferUploader(nil)
	req.ContentLength = 0

	if err := firstError(c.execute(req), req); err != nil {
		return nil, errors.NewSummary("initiateMultipartUpload", key, err)
	}
	return &types.S3InitiateMultipartUploadResponse{UploadID: req.Details.UploadID}, nil
}

// PutPart uploads one part of a multipart upload. Part numbers start
// at 1; the returned response records the number with the ETag. ACL
// and encryption headers were fixed at initiation and are not resent.
func (c *Connection) PutPart(bucket, key, uploadID string, partNumber int, data []byte) (*types.S3PutResponse, error) {
	if err := c.walrusGuard("putPart", key); err != nil {
		return nil, err
	}
	if partNumber < 1 {
		return nil, errors.NewSummary("putPart", key,
			errors.NewError(errors.ErrCodeInvalidConfig, "part numbers start at 1"))
	}

	req := c.newPutRequest(bucket, key, uploadID, partNumber, PutOptions{})
	req.Uploader = wire.BufferUploader(data)
	req.ContentLength = int64(len(data))

	resp, err := finishPut(req, c.execute(req))
	if err != nil {
		return nil, errors.NewSummary("putPart", key, err)
	}
	resp.PartNumber = partNumber
	return resp, nil
}

// CompleteMultipartUpload assembles the object from the given parts in
// the supplied order and returns the composite ETag.
func (c *Connection) CompleteMultipartUpload(bucket, key, uploadID string, parts []types.S3Part) (*types.S3CompleteMultipartUploadResponse, error) {
	if err := c.walrusGuard("completeMultipartUpload", key); err != nil {
		return nil, err
	}

	req := c.newRequest("POST", bucket, key, "?uploadId="+uploadID, contentTypeBinary)
	req.ExpectXML = true
	req.Consumer = &xmlresp.CompleteMultipartUploadConsumer{Details: req.Details}

	body := completeUploadBody(parts)
	req.Uploader = wire.BufferUploader(body)
	req.ContentLength = int64(len(body))

	if err := firstError(c.execute(req), req); err != nil {
		return nil, errors.NewSummary("completeMultipartUpload", key, err)
	}
	return &types.S3CompleteMultipartUploadResponse{ETag: req.Details.ETag}, nil
}

// completeUploadBody renders the part manifest. ETags are re-quoted
// because the response parser stripped them.
func completeUploadBody(parts []types.S3Part) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString("<CompleteMultipartUpload>")
	for _, p := range parts {
		b.WriteString("<Part><PartNumber>")
		b.WriteString(strconv.Itoa(p.PartNumber))
		b.WriteString("</PartNumber><ETag>\"")
		b.WriteString(p.ETag)
		b.WriteString("\"</ETag></Part>")
	}
	b.WriteString("</CompleteMultipartUpload>")
	return []byte(b.String())
}

// AbortMultipartUpload abandons the upload and frees the stored parts.
func (c *Connection) AbortMultipartUpload(bucket, key, uploadID string) (*types.S3DelResponse, error) {
	if err := c.walrusGuard("abortMultipartUpload", key); err != nil {
		return nil, err
	}
	return c.del("abortMultipartUpload", bucket, key, "?uploadId="+uploadID)
}

// ListMultipartUploads fetches one page of in-progress upload rows,
// invoking onUpload for each. Not available on Walrus.
func (c *Connection) ListMultipartUploads(bucket, prefix, keyMarker, uploadIDMarker, delimiter string,
	maxUploads int, onUpload func(types.S3MultipartUpload) error) (*types.S3ListMultipartUploadsResponse, error) {

	if err := c.walrusGuard("listMultipartUploads", prefix); err != nil {
		return nil, err
	}

	b := resturl.NewBuilder(c.baseURL)
	b.AppendRaw(bucket)
	b.AppendRaw("/?uploads")
	b.AppendQuery("delimiter", delimiter)
	b.AppendQuery("key-marker", keyMarker)
	if maxUploads != 0 {
		b.AppendQuery("max-uploads", strconv.Itoa(maxUploads))
	}
	b.AppendQuery("prefix", prefix)
	b.AppendQuery("upload-id-marker", uploadIDMarker)

	req := wire.NewRequest("GET", b.String(), bucket, "")
	req.ContentType = contentTypeBinary
	req.SignPath = sign.Resource(bucket, "?uploads", true)
	req.ExpectXML = true

	consumer := &xmlresp.ListMultipartUploadsConsumer{
		Details:  req.Details,
		OnUpload: onUpload,
	}
	req.Consumer = consumer

	if err := firstError(c.execute(req), req); err != nil {
		return nil, errors.NewSummary("listMultipartUploads", prefix, err)
	}
	last := consumer.LastUpload()
	return &types.S3ListMultipartUploadsResponse{
		NextKeyMarker:      last.Key,
		NextUploadIDMarker: last.UploadID,
		IsTruncated:        req.Details.IsTruncated,
	}, nil
}
