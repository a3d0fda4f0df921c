// Package s3 is the user-facing client: connections with one in-flight
// request each, synchronous and pend/complete operation pairs, a
// WaitAny primitive over many connections, enumeration drivers and the
// multipart upload protocol. Amazon S3 and Walrus endpoints are both
// supported; behavioral differences are selected by the config flag.
package s3

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/s3pipe/s3pipe/internal/resturl"
	"github.com/s3pipe/s3pipe/internal/transport"
	"github.com/s3pipe/s3pipe/internal/wire"
	"github.com/s3pipe/s3pipe/pkg/errors"
	"github.com/s3pipe/s3pipe/pkg/utils"
)

// asyncRequest is the single-slot in-flight request of a connection.
// done is closed by the worker; err carries the transport-level
// failure, everything protocol-level lives in the request details.
type asyncRequest struct {
	op     string
	req    *wire.Request
	done   chan struct{}
	err    error
	cancel context.CancelFunc
}

func (ar *asyncRequest) completed() bool {
	select {
	case <-ar.done:
		return true
	default:
		return false
	}
}

// Connection executes operations against one endpoint. It holds at
// most one in-flight request; synchronous operations require the slot
// to be empty and leave it empty. A Connection must not be used from
// multiple goroutines at once except through WaitAny.
type Connection struct {
	cfg     Config
	client  *transport.Client
	baseURL string
	region  string

	timeout        time.Duration
	connectTimeout time.Duration
	trace          transport.TraceFn

	logger *slog.Logger

	mu    sync.Mutex
	async *asyncRequest
}

// NewConnection builds a connection from the config. The config is
// copied; credentials are kept for the connection's lifetime.
func NewConnection(cfg Config) (*Connection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = DefaultConnectTimeout
	}

	c := &Connection{
		cfg:            cfg,
		baseURL:        resturl.BaseURL(cfg.effectiveHost(), cfg.effectivePort(), cfg.IsHTTPS, cfg.IsWalrus),
		region:         regionFromHost(cfg.effectiveHost(), cfg.IsWalrus),
		timeout:        timeout,
		connectTimeout: connectTimeout,
		logger:         utils.NewComponentLogger("s3conn"),
	}
	if err := c.rebuildClient(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Connection) rebuildClient() error {
	client, err := transport.NewClient(transport.Options{
		ConnectTimeout: c.connectTimeout,
		CACertFile:     c.cfg.CACertFile,
		Proxy:          c.cfg.Proxy,
		Trace:          c.trace,
	})
	if err != nil {
		return err
	}
	c.client = client
	return nil
}

// Close cancels any in-flight request and drops pooled sockets.
func (c *Connection) Close() {
	c.CancelAsync()
	c.client.CloseIdle()
}

// SetTimeout changes the total per-request timeout for subsequent
// operations. Zero restores the default.
func (c *Connection) SetTimeout(d time.Duration) {
	if d == 0 {
		d = DefaultTimeout
	}
	c.timeout = d
}

// SetConnectTimeout changes the connection-establishment timeout for
// subsequent operations. Zero restores the default.
func (c *Connection) SetConnectTimeout(d time.Duration) {
	if d == 0 {
		d = DefaultConnectTimeout
	}
	c.connectTimeout = d
	if err := c.rebuildClient(); err != nil {
		c.logger.Warn("keeping previous transport settings", "error", err)
	}
}

// SetTraceCallback installs a transport trace sink for subsequent
// operations, or removes it when fn is nil.
func (c *Connection) SetTraceCallback(fn func(line string)) {
	c.trace = fn
	if err := c.rebuildClient(); err != nil {
		c.logger.Warn("keeping previous transport settings", "error", err)
	}
}

// IsAsyncPending reports whether an in-flight request occupies the
// slot, completed or not.
func (c *Connection) IsAsyncPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.async != nil
}

// IsAsyncCompleted reports whether the in-flight request has finished
// and is waiting for its complete call.
func (c *Connection) IsAsyncCompleted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.async != nil && c.async.completed()
}

// CancelAsync abandons the in-flight request, if any, and returns the
// connection to idle. It is idempotent and never fails; sinks and
// sources handed to the cancelled operation must not be reused before
// a new pend call.
func (c *Connection) CancelAsync() {
	c.mu.Lock()
	ar := c.async
	c.async = nil
	c.mu.Unlock()

	if ar != nil {
		ar.cancel()
	}
}

// execute runs one request synchronously under the connection timeout.
// The returned error is transport-level only.
func (c *Connection) execute(req *wire.Request) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return c.client.Execute(ctx, req, c.cfg.AccKey, c.cfg.SecKey, c.cfg.IsWalrus)
}

// pend starts one request in the background. The connection must be
// idle.
func (c *Connection) pend(asyncMan *AsyncMan, op string, req *wire.Request) error {
	c.mu.Lock()
	if c.async != nil {
		c.mu.Unlock()
		return errors.NewSummary(op, req.Key,
			errors.NewError(errors.ErrCodeBusyConnection, "another operation is in flight"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	ar := &asyncRequest{
		op:     op,
		req:    req,
		done:   make(chan struct{}),
		cancel: cancel,
	}
	c.async = ar
	c.mu.Unlock()

	started := asyncMan.start(func() {
		defer cancel()
		ar.err = c.client.Execute(ctx, req, c.cfg.AccKey, c.cfg.SecKey, c.cfg.IsWalrus)
		close(ar.done)
	})
	if !started {
		c.mu.Lock()
		c.async = nil
		c.mu.Unlock()
		cancel()
		return errors.NewSummary(op, req.Key,
			errors.NewError(errors.ErrCodeConnectionPool, "async manager is closed"))
	}
	return nil
}

// takeCompleted waits for the in-flight request and vacates the slot.
func (c *Connection) takeCompleted(op string) (*asyncRequest, error) {
	c.mu.Lock()
	ar := c.async
	c.async = nil
	c.mu.Unlock()

	if ar == nil {
		return nil, errors.NewSummary(op, "",
			errors.NewError(errors.ErrCodeBusyConnection, "no operation is in flight"))
	}
	<-ar.done
	return ar, nil
}

// doneChan exposes the completion event to WaitAny. nil when idle.
func (c *Connection) doneChan() chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.async == nil {
		return nil
	}
	return c.async.done
}

// newRequest assembles the URL and the request object for one
// operation. keySuffix is appended unescaped after the escaped key.
func (c *Connection) newRequest(verb, bucket, key, keySuffix, contentType string) *wire.Request {
	b := resturl.NewBuilder(c.baseURL)
	b.AppendRaw(bucket)
	if key != "" || keySuffix != "" {
		b.AppendRaw("/")
	}
	b.AppendKey(key, keySuffix)

	req := wire.NewRequest(verb, b.String(), bucket, key)
	req.ContentType = contentType
	return req
}
