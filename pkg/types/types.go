// Package types defines the entities and response payloads shared between
// the wire-level engine and the public connection API.
package types

// S3Bucket describes one bucket row from a ListAllBuckets response.
type S3Bucket struct {
	Name         string `json:"name"`
	CreationDate string `json:"creation_date"`
}

// S3Object describes one object or common-prefix row from a ListObjects
// response. Directory rows carry Size == -1 and IsDir == true.
type S3Object struct {
	Key          string `json:"key"`
	LastModified string `json:"last_modified"`
	ETag         string `json:"etag"`
	Size         int64  `json:"size"`
	IsDir        bool   `json:"is_dir"`
}

// S3MultipartUpload describes one in-progress upload row from a
// ListMultipartUploads response.
type S3MultipartUpload struct {
	Key      string `json:"key"`
	UploadID string `json:"upload_id"`
	IsDir    bool   `json:"is_dir"`
}

// S3Part identifies one uploaded part when completing a multipart
// upload. The caller supplies the final assembly order.
type S3Part struct {
	PartNumber int    `json:"part_number"`
	ETag       string `json:"etag"`
}

// S3PutResponse carries the result of a Put or PutPart operation.
// PartNumber is set only for parts.
type S3PutResponse struct {
	ETag       string `json:"etag"`
	PartNumber int    `json:"part_number,omitempty"`
}

// S3GetResponse carries the result of a Get operation.
// LoadedContentLength is -1 when the key does not exist.
type S3GetResponse struct {
	LoadedContentLength int64  `json:"loaded_content_length"`
	IsTruncated         bool   `json:"is_truncated"`
	ETag                string `json:"etag"`
}

// S3DelResponse carries the result of a Del operation.
type S3DelResponse struct{}

// S3InitiateMultipartUploadResponse carries the server-issued upload id.
type S3InitiateMultipartUploadResponse struct {
	UploadID string `json:"upload_id"`
}

// S3CompleteMultipartUploadResponse carries the composite ETag of the
// assembled object.
type S3CompleteMultipartUploadResponse struct {
	ETag string `json:"etag"`
}

// S3ListObjectsResponse carries pagination state for ListObjects.
// NextMarker falls back to the last key seen when the server did not
// return an explicit NextMarker element.
type S3ListObjectsResponse struct {
	NextMarker  string `json:"next_marker"`
	IsTruncated bool   `json:"is_truncated"`
}

// S3ListMultipartUploadsResponse carries pagination state for
// ListMultipartUploads.
type S3ListMultipartUploadsResponse struct {
	NextKeyMarker      string `json:"next_key_marker"`
	NextUploadIDMarker string `json:"next_upload_id_marker"`
	IsTruncated        bool   `json:"is_truncated"`
}
