package s3

import (
	"sort"
	"sync"
	"time"

	"github.com/s3pipe/s3pipe/pkg/errors"
	"github.com/s3pipe/s3pipe/pkg/types"
)

// MinPartSize is the server-enforced minimum for every part except the
// last.
const MinPartSize = 5 * 1024 * 1024

// UploadStatus is the lifecycle position of one multipart upload.
type UploadStatus string

const (
	UploadStatusInitiated  UploadStatus = "initiated"
	UploadStatusInProgress UploadStatus = "in_progress"
	UploadStatusCompleted  UploadStatus = "completed"
	UploadStatusAborted    UploadStatus = "aborted"
)

// IsTerminal reports whether the upload can accept no further parts.
func (s UploadStatus) IsTerminal() bool {
	return s == UploadStatusCompleted || s == UploadStatusAborted
}

// Upload drives one multipart upload through its lifecycle and records
// the part ETags needed to complete it. Parts may be uploaded in any
// order; Complete sends them sorted by part number unless the caller
// supplies an explicit order.
type Upload struct {
	conn *Connection

	Bucket   string
	Key      string
	UploadID string

	mu            sync.Mutex
	parts         map[int]types.S3Part
	sizes         map[int]int64
	status        UploadStatus
	startedAt     time.Time
	lastUpdatedAt time.Time
	bytesUploaded int64
}

// NewUpload initiates a multipart upload and returns its tracker.
func (c *Connection) NewUpload(bucket, key string, opts PutOptions) (*Upload, error) {
	resp, err := c.InitiateMultipartUpload(bucket, key, opts)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &Upload{
		conn:          c,
		Bucket:        bucket,
		Key:           key,
		UploadID:      resp.UploadID,
		parts:         make(map[int]types.S3Part),
		sizes:         make(map[int]int64),
		status:        UploadStatusInitiated,
		startedAt:     now,
		lastUpdatedAt: now,
	}, nil
}

// Status returns the current lifecycle position.
func (u *Upload) Status() UploadStatus {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.status
}

// BytesUploaded returns the total size of successfully uploaded parts.
func (u *Upload) BytesUploaded() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.bytesUploaded
}

func (u *Upload) guardActive(op string) error {
	if u.status.IsTerminal() {
		return errors.NewSummary(op, u.Key,
			errors.NewError(errors.ErrCodeInternalError, "upload is already "+string(u.status)))
	}
	return nil
}

// PutPart uploads one part and records its ETag. Re-uploading a part
// number replaces the recorded ETag.
func (u *Upload) PutPart(partNumber int, data []byte) (*types.S3PutResponse, error) {
	u.mu.Lock()
	if err := u.guardActive("putPart"); err != nil {
		u.mu.Unlock()
		return nil, err
	}
	u.mu.Unlock()

	resp, err := u.conn.PutPart(u.Bucket, u.Key, u.UploadID, partNumber, data)
	if err != nil {
		return nil, err
	}

	u.mu.Lock()
	u.bytesUploaded += int64(len(data)) - u.sizes[partNumber]
	u.sizes[partNumber] = int64(len(data))
	u.parts[partNumber] = types.S3Part{PartNumber: partNumber, ETag: resp.ETag}
	u.status = UploadStatusInProgress
	u.lastUpdatedAt = time.Now()
	u.mu.Unlock()
	return resp, nil
}

// Parts returns the recorded parts sorted by part number.
func (u *Upload) Parts() []types.S3Part {
	u.mu.Lock()
	defer u.mu.Unlock()
	parts := make([]types.S3Part, 0, len(u.parts))
	for _, p := range u.parts {
		parts = append(parts, p)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })
	return parts
}

// Complete assembles the object from the recorded parts in part-number
// order and returns the composite ETag.
func (u *Upload) Complete() (*types.S3CompleteMultipartUploadResponse, error) {
	return u.CompleteOrdered(u.Parts())
}

// CompleteOrdered assembles the object from the given parts in the
// supplied order.
func (u *Upload) CompleteOrdered(parts []types.S3Part) (*types.S3CompleteMultipartUploadResponse, error) {
	u.mu.Lock()
	if err := u.guardActive("completeMultipartUpload"); err != nil {
		u.mu.Unlock()
		return nil, err
	}
	u.mu.Unlock()

	resp, err := u.conn.CompleteMultipartUpload(u.Bucket, u.Key, u.UploadID, parts)
	if err != nil {
		return nil, err
	}

	u.mu.Lock()
	u.status = UploadStatusCompleted
	u.lastUpdatedAt = time.Now()
	u.mu.Unlock()
	return resp, nil
}

// Abort abandons the upload and frees the stored parts.
func (u *Upload) Abort() error {
	u.mu.Lock()
	if err := u.guardActive("abortMultipartUpload"); err != nil {
		u.mu.Unlock()
		return err
	}
	u.mu.Unlock()

	if _, err := u.conn.AbortMultipartUpload(u.Bucket, u.Key, u.UploadID); err != nil {
		return err
	}

	u.mu.Lock()
	u.status = UploadStatusAborted
	u.lastUpdatedAt = time.Now()
	u.mu.Unlock()
	return nil
}
