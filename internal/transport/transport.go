// Package transport executes wire requests over HTTP. It owns the
// socket tuning, TLS trust configuration, proxy selection and the
// chunked delivery of response bodies into the request's plug points.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/s3pipe/s3pipe/internal/wire"
	"github.com/s3pipe/s3pipe/pkg/errors"
)

const (
	// DefaultTimeout bounds one whole request/response exchange.
	DefaultTimeout = 120 * time.Second

	// DefaultConnectTimeout bounds connection establishment.
	DefaultConnectTimeout = 30 * time.Second

	// SocketBufferSize is requested for both send and receive buffers.
	SocketBufferSize = 1024 * 1024

	deliverChunkSize = 64 * 1024
)

// TraceFn receives one line of transport-level trace output.
type TraceFn func(line string)

// Options configures a client. Zero values select the defaults above.
type Options struct {
	ConnectTimeout time.Duration

	// CACertFile selects the TLS trust source: a PEM bundle path, the
	// sentinel "none" to disable verification, or empty for the
	// built-in roots.
	CACertFile string

	// Proxy is a host[:port] forwarded to every request. Empty means
	// direct connection.
	Proxy string

	Trace TraceFn
}

// Client executes requests against one endpoint. The overall request
// deadline comes from the caller's context; the client owns only the
// connect-phase timeouts.
type Client struct {
	http  *http.Client
	trace TraceFn
}

// NewClient builds a client from the options. The error covers trust
// material that cannot be loaded.
func NewClient(opts Options) (*Client, error) {
	connectTimeout := opts.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = DefaultConnectTimeout
	}

	dialer := &net.Dialer{
		Timeout: connectTimeout,
		Control: socketControl,
	}

	tlsConfig, err := newTLSConfig(opts.CACertFile)
	if err != nil {
		return nil, err
	}

	tr := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSClientConfig:     tlsConfig,
		TLSHandshakeTimeout: connectTimeout,
		MaxIdleConnsPerHost: 64,
		MaxIdleConns:        0,
		DisableCompression:  true,

		// HTTP/1.x only. An empty TLSNextProto map stops the stdlib
		// from negotiating h2 over TLS.
		TLSNextProto: map[string]func(string, *tls.Conn) http.RoundTripper{},
	}
	if opts.Proxy != "" {
		proxyURL, err := url.Parse("http://" + opts.Proxy)
		if err != nil {
			return nil, errors.NewError(errors.ErrCodeInvalidConfig,
				fmt.Sprintf("bad proxy address %q: %v", opts.Proxy, err))
		}
		tr.Proxy = http.ProxyURL(proxyURL)
	}

	return &Client{
		http:  &http.Client{Transport: tr},
		trace: opts.Trace,
	}, nil
}

// CloseIdle drops pooled connections.
func (c *Client) CloseIdle() {
	c.http.CloseIdleConnections()
}

func (c *Client) tracef(format string, args ...any) {
	if c.trace != nil {
		c.trace(fmt.Sprintf(format, args...))
	}
}

// Execute runs one request to completion: send headers and body,
// classify the response, stream the body into the request's sink and
// finalize XML parsing. The returned error covers transport failures
// only; protocol-level failures land in the request details.
func (c *Client) Execute(ctx context.Context, req *wire.Request, accKey, secKey string, isWalrus bool) error {
	httpReq, err := http.NewRequestWithContext(ctx, req.Verb, req.URL, req.BodyReader())
	if err != nil {
		return errors.NewTransport("building request", err)
	}
	if req.Uploader != nil {
		httpReq.ContentLength = req.ContentLength
	}

	for _, h := range req.SignedHeaders(accKey, secKey, isWalrus, time.Now()) {
		httpReq.Header.Set(h.Name, h.Value)
	}

	// Bodies always carry an explicit Content-Length and are never
	// chunked. The empty values suppress the stdlib defaults for these
	// headers on the wire.
	httpReq.Header.Set("Accept", "")
	httpReq.Header.Set("Expect", "")
	httpReq.Header.Set("Transfer-Encoding", "")

	c.tracef("> %s %s", req.Verb, req.URL)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	c.tracef("< %s", resp.Status)
	req.Classify(resp.StatusCode, resp.Status, resp.Header, isWalrus)

	chunk := make([]byte, deliverChunkSize)
	for {
		n, err := resp.Body.Read(chunk)
		if n > 0 {
			if !req.Deliver(chunk[:n]) {
				break
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return classifyTransportError(ctx, err)
		}
	}

	return req.FinishBody()
}

// classifyTransportError folds context expiry into the timed-out shape
// callers match on.
func classifyTransportError(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return errors.NewTransport("request timed out", err)
	}
	if ctx.Err() == context.Canceled {
		return errors.NewTransport("request cancelled", err)
	}
	return errors.NewTransport("request failed", err)
}
