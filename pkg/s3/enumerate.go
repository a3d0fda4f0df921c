package s3

import (
	"github.com/s3pipe/s3pipe/pkg/types"
)

// ListAllObjects pages through ListObjects until the listing is no
// longer truncated, invoking onObject for every row. The delimiter and
// batch size are forwarded unchanged to each page request.
func (c *Connection) ListAllObjects(bucket, prefix, delimiter string, maxKeysInBatch int,
	onObject func(types.S3Object) error) error {

	marker := ""
	for {
		resp, err := c.ListObjects(bucket, prefix, marker, delimiter, maxKeysInBatch, onObject)
		if err != nil {
			return err
		}
		if !resp.IsTruncated {
			return nil
		}
		marker = resp.NextMarker
	}
}

// DelAll deletes every object under the prefix, listing in batches and
// deleting each batch's keys once that batch has been listed.
func (c *Connection) DelAll(bucket, prefix string, maxKeysInBatch int) error {
	marker := ""
	for {
		var keys []string
		resp, err := c.ListObjects(bucket, prefix, marker, "", maxKeysInBatch,
			func(obj types.S3Object) error {
				keys = append(keys, obj.Key)
				return nil
			})
		if err != nil {
			return err
		}
		for _, key := range keys {
			if _, err := c.Del(bucket, key); err != nil {
				return err
			}
		}
		if !resp.IsTruncated {
			return nil
		}
		marker = resp.NextMarker
	}
}

// ListAllMultipartUploads pages through ListMultipartUploads until the
// listing is no longer truncated, invoking onUpload for every row.
func (c *Connection) ListAllMultipartUploads(bucket, prefix, delimiter string, maxUploadsInBatch int,
	onUpload func(types.S3MultipartUpload) error) error {

	keyMarker, uploadIDMarker := "", ""
	for {
		resp, err := c.ListMultipartUploads(bucket, prefix, keyMarker, uploadIDMarker,
			delimiter, maxUploadsInBatch, onUpload)
		if err != nil {
			return err
		}
		if !resp.IsTruncated {
			return nil
		}
		keyMarker = resp.NextKeyMarker
		uploadIDMarker = resp.NextUploadIDMarker
	}
}

// AbortAllMultipartUploads aborts every in-progress upload under the
// prefix, listing in batches.
func (c *Connection) AbortAllMultipartUploads(bucket, prefix string, maxUploadsInBatch int) error {
	keyMarker, uploadIDMarker := "", ""
	for {
		var uploads []types.S3MultipartUpload
		resp, err := c.ListMultipartUploads(bucket, prefix, keyMarker, uploadIDMarker,
			"", maxUploadsInBatch, func(u types.S3MultipartUpload) error {
				uploads = append(uploads, u)
				return nil
			})
		if err != nil {
			return err
		}
		for _, u := range uploads {
			if _, err := c.AbortMultipartUpload(bucket, u.Key, u.UploadID); err != nil {
				return err
			}
		}
		if !resp.IsTruncated {
			return nil
		}
		keyMarker = resp.NextKeyMarker
		uploadIDMarker = resp.NextUploadIDMarker
	}
}
