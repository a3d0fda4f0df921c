package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s3pipe/s3pipe/internal/wire"
)

func newTestClient(t *testing.T, opts Options) *Client {
	t.Helper()
	client, err := NewClient(opts)
	require.NoError(t, err)
	return client
}

func getRequest(url string, buf []byte) *wire.Request {
	req := wire.NewRequest("GET", url+"/bucket/key", "bucket", "key")
	req.Loader = wire.BufferLoader(buf)
	return req
}

func TestExecuteDeliversBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("Date"))
		w.Header().Set("Content-Length", "6")
		w.Write([]byte("abcdef"))
	}))
	defer srv.Close()

	buf := make([]byte, 16)
	req := getRequest(srv.URL, buf)

	client := newTestClient(t, Options{})
	require.NoError(t, client.Execute(context.Background(), req, "ak", "sk", false))
	require.NoError(t, req.Error())
	assert.Equal(t, int64(6), req.Details.LoadedContentLength)
	assert.Equal(t, "abcdef", string(buf[:6]))
}

func TestExecuteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	client := newTestClient(t, Options{})
	req := getRequest(srv.URL, make([]byte, 16))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := client.Execute(ctx, req, "ak", "sk", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request timed out")
}

func TestExecuteCancelled(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	client := newTestClient(t, Options{})
	req := getRequest(srv.URL, make([]byte, 16))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	err := client.Execute(ctx, req, "ak", "sk", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request cancelled")
}

func TestExecuteConnectionRefused(t *testing.T) {
	client := newTestClient(t, Options{})
	req := getRequest("http://127.0.0.1:1", make([]byte, 16))

	err := client.Execute(context.Background(), req, "ak", "sk", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestExecuteStopsOnFullBuffer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1048576")
		chunk := make([]byte, 64*1024)
		for i := 0; i < 16; i++ {
			if _, err := w.Write(chunk); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	buf := make([]byte, 1024)
	req := getRequest(srv.URL, buf)

	client := newTestClient(t, Options{})
	require.NoError(t, client.Execute(context.Background(), req, "ak", "sk", false))
	assert.True(t, req.Details.IsTruncated)
	assert.Equal(t, int64(1024), req.Details.LoadedContentLength)
}

func TestExecuteTrace(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var lines []string
	client := newTestClient(t, Options{Trace: func(line string) { lines = append(lines, line) }})
	req := getRequest(srv.URL, make([]byte, 16))
	require.NoError(t, client.Execute(context.Background(), req, "ak", "sk", false))

	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "> GET "))
	assert.True(t, strings.HasPrefix(lines[1], "< 200"))
}

func TestExecuteUploadsBody(t *testing.T) {
	var got []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("reading body: %v", err)
		}
		got = body
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	req := wire.NewRequest("PUT", srv.URL+"/bucket/key", "bucket", "key")
	req.Uploader = wire.BufferUploader([]byte("payload"))
	req.ContentLength = 7

	client := newTestClient(t, Options{})
	require.NoError(t, client.Execute(context.Background(), req, "ak", "sk", false))
	require.NoError(t, req.Error())
	assert.Equal(t, "payload", string(got))
}

func TestNewClientBadProxy(t *testing.T) {
	_, err := NewClient(Options{Proxy: "bad proxy"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad proxy address")
}

func TestNewClientProxyAccepted(t *testing.T) {
	client, err := NewClient(Options{Proxy: "proxy.example.com:3128"})
	require.NoError(t, err)
	require.NotNil(t, client)
}

func TestNewClientCACert(t *testing.T) {
	_, err := NewClient(Options{CACertFile: "none"})
	assert.NoError(t, err)

	_, err = NewClient(Options{CACertFile: "/does/not/exist.pem"})
	assert.Error(t, err)
}
