package xmlresp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s3pipe/s3pipe/pkg/types"
)

func parseDoc(t *testing.T, details *ResponseDetails, consumer Consumer, doc string) error {
	t.Helper()
	p := NewParser(details, consumer)
	_, err := p.Write([]byte(doc))
	require.NoError(t, err)
	return p.Finish()
}

func TestParserEmptyBody(t *testing.T) {
	d := NewResponseDetails("http://host/", "get")
	p := NewParser(d, nil)
	assert.False(t, p.HasData())
	assert.NoError(t, p.Finish())
}

func TestParserErrorDocument(t *testing.T) {
	d := NewResponseDetails("http://host/", "get")
	d.Status = StatusHTTPOrAwsFailure
	doc := `<Error>
  <Code>AccessDenied</Code>
  <Message>Access Denied</Message>
  <RequestId>4442587FB7D0A2F9</RequestId>
  <HostId>host-id-opaque</HostId>
</Error>`
	require.NoError(t, parseDoc(t, d, nil, doc))

	assert.Equal(t, StatusFailureWithDetails, d.Status)
	assert.Equal(t, "AccessDenied", d.ErrorCode)
	assert.Equal(t, "Access Denied", d.ErrorMessage)
	assert.Equal(t, "4442587FB7D0A2F9", d.RequestID)
	assert.Equal(t, "host-id-opaque", d.HostID)
}

func TestParserErrorDocumentNotFound(t *testing.T) {
	d := NewResponseDetails("http://host/", "get")
	d.Status = StatusNotFound
	doc := `<Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`
	require.NoError(t, parseDoc(t, d, nil, doc))
	assert.Equal(t, StatusFailureWithDetails, d.Status)
	assert.Equal(t, "NoSuchKey", d.ErrorCode)
}

func TestParserMalformed(t *testing.T) {
	d := NewResponseDetails("http://host/", "get")
	assert.Error(t, parseDoc(t, d, nil, `<a><b></a>`))
}

func TestParserUnmatchedEnd(t *testing.T) {
	d := NewResponseDetails("http://host/", "get")
	assert.Error(t, parseDoc(t, d, nil, `</a>`))
}

func TestParserTooDeep(t *testing.T) {
	d := NewResponseDetails("http://host/", "get")
	doc := "<a><a><a><a><a><a><a><a><a>x</a></a></a></a></a></a></a></a></a>"
	assert.Error(t, parseDoc(t, d, nil, doc))
}

func TestListBucketsConsumer(t *testing.T) {
	d := NewResponseDetails("http://host/", "listAllBuckets")
	var rows []string
	consumer := &ListBucketsConsumer{OnBucket: func(b types.S3Bucket) error {
		rows = append(rows, b.Name+"|"+b.CreationDate)
		return nil
	}}
	doc := `<ListAllMyBucketsResult>
  <Owner><ID>abc</ID></Owner>
  <Buckets>
    <Bucket><Name>first</Name><CreationDate>2019-01-01T00:00:00.000Z</CreationDate></Bucket>
    <Bucket><Name>second</Name><CreationDate>2020-02-02T00:00:00.000Z</CreationDate></Bucket>
  </Buckets>
</ListAllMyBucketsResult>`
	require.NoError(t, parseDoc(t, d, consumer, doc))
	assert.Equal(t, []string{
		"first|2019-01-01T00:00:00.000Z",
		"second|2020-02-02T00:00:00.000Z",
	}, rows)
}

func TestListObjectsConsumer(t *testing.T) {
	d := NewResponseDetails("http://host/", "listObjects")
	var rows []types.S3Object
	consumer := &ListObjectsConsumer{
		Details:  d,
		OnObject: func(obj types.S3Object) error { rows = append(rows, obj); return nil },
	}
	doc := `<ListBucketResult>
  <Name>bucket</Name>
  <Prefix>logs/</Prefix>
  <IsTruncated>true</IsTruncated>
  <Contents>
    <Key>logs/2020/app.log</Key>
    <LastModified>2020-05-01T10:00:00.000Z</LastModified>
    <ETag>&quot;0123456789abcdef0123456789abcdef&quot;</ETag>
    <Size>2048</Size>
  </Contents>
  <CommonPrefixes>
    <Prefix>logs/2021/</Prefix>
  </CommonPrefixes>
</ListBucketResult>`
	require.NoError(t, parseDoc(t, d, consumer, doc))

	require.Len(t, rows, 2)
	assert.Equal(t, "logs/2020/app.log", rows[0].Key)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", rows[0].ETag)
	assert.Equal(t, int64(2048), rows[0].Size)
	assert.False(t, rows[0].IsDir)

	assert.Equal(t, "logs/2021/", rows[1].Key)
	assert.True(t, rows[1].IsDir)
	assert.Equal(t, int64(-1), rows[1].Size)

	assert.True(t, d.IsTruncated)
	assert.Equal(t, "logs/2021/", consumer.NextMarker(), "falls back to the last row key")
}

func TestListObjectsConsumerExplicitNextMarker(t *testing.T) {
	d := NewResponseDetails("http://host/", "listObjects")
	consumer := &ListObjectsConsumer{
		Details:  d,
		OnObject: func(types.S3Object) error { return nil },
	}
	doc := `<ListBucketResult>
  <IsTruncated>true</IsTruncated>
  <NextMarker>explicit-marker</NextMarker>
  <Contents><Key>a</Key><Size>1</Size></Contents>
</ListBucketResult>`
	require.NoError(t, parseDoc(t, d, consumer, doc))
	assert.Equal(t, "explicit-marker", consumer.NextMarker())
}

func TestListObjectsConsumerWalrus(t *testing.T) {
	d := NewResponseDetails("http://host/", "listObjects")
	var rows []types.S3Object
	consumer := &ListObjectsConsumer{
		Details:  d,
		IsWalrus: true,
		OnObject: func(obj types.S3Object) error { rows = append(rows, obj); return nil },
	}
	// Walrus wraps rows one level deeper and leaves the listing prefix
	// off common-prefix rows.
	doc := `<ListBucketResultWrapper>
  <ListBucketResult>
    <Prefix>logs/</Prefix>
    <IsTruncated>false</IsTruncated>
    <Contents>
      <Key>logs/app.log</Key>
      <Size>7</Size>
    </Contents>
    <CommonPrefixes>
      <Prefix>2021/</Prefix>
    </CommonPrefixes>
  </ListBucketResult>
</ListBucketResultWrapper>`
	require.NoError(t, parseDoc(t, d, consumer, doc))

	require.Len(t, rows, 2)
	assert.Equal(t, "logs/app.log", rows[0].Key)
	assert.Equal(t, "logs/2021/", rows[1].Key, "listing prefix is prepended")
	assert.True(t, rows[1].IsDir)
	assert.False(t, d.IsTruncated)
}

func TestListMultipartUploadsConsumer(t *testing.T) {
	d := NewResponseDetails("http://host/", "listMultipartUploads")
	var rows []types.S3MultipartUpload
	consumer := &ListMultipartUploadsConsumer{
		Details:  d,
		OnUpload: func(u types.S3MultipartUpload) error { rows = append(rows, u); return nil },
	}
	doc := `<ListMultipartUploadsResult>
  <Bucket>bucket</Bucket>
  <IsTruncated>true</IsTruncated>
  <Upload>
    <Key>big/object.bin</Key>
    <UploadId>VXBsb2FkIElE</UploadId>
  </Upload>
  <CommonPrefixes>
    <Prefix>big/other/</Prefix>
  </CommonPrefixes>
</ListMultipartUploadsResult>`
	require.NoError(t, parseDoc(t, d, consumer, doc))

	require.Len(t, rows, 2)
	assert.Equal(t, "big/object.bin", rows[0].Key)
	assert.Equal(t, "VXBsb2FkIElE", rows[0].UploadID)
	assert.False(t, rows[0].IsDir)
	assert.Equal(t, "big/other/", rows[1].Key)
	assert.True(t, rows[1].IsDir)
	assert.True(t, d.IsTruncated)
	assert.Equal(t, "big/other/", consumer.LastUpload().Key)
}

func TestInitiateMultipartUploadConsumer(t *testing.T) {
	d := NewResponseDetails("http://host/", "initiateMultipartUpload")
	consumer := &InitiateMultipartUploadConsumer{Details: d}
	doc := `<InitiateMultipartUploadResult>
  <Bucket>bucket</Bucket>
  <Key>big/object.bin</Key>
  <UploadId>VXBsb2FkIElE</UploadId>
</InitiateMultipartUploadResult>`
	require.NoError(t, parseDoc(t, d, consumer, doc))
	assert.Equal(t, "VXBsb2FkIElE", d.UploadID)
}

func TestCompleteMultipartUploadConsumer(t *testing.T) {
	d := NewResponseDetails("http://host/", "completeMultipartUpload")
	consumer := &CompleteMultipartUploadConsumer{Details: d}
	doc := `<CompleteMultipartUploadResult>
  <Location>http://bucket.host/big/object.bin</Location>
  <ETag>&quot;3858f62230ac3c915f300c664312c11f-2&quot;</ETag>
</CompleteMultipartUploadResult>`
	require.NoError(t, parseDoc(t, d, consumer, doc))
	assert.Equal(t, "3858f62230ac3c915f300c664312c11f-2", d.ETag)
}
