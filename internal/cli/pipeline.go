package cli

import (
	"time"

	"github.com/s3pipe/s3pipe/pkg/errors"
	"github.com/s3pipe/s3pipe/pkg/s3"
)

// pipeline keeps up to len(conns) requests in flight. Callers submit
// work against idle connections and the pipeline completes finished
// requests as capacity is needed, rotating the wait offset so every
// connection is served.
type pipeline struct {
	conns    []*s3.Connection
	asyncMan *s3.AsyncMan
	started  []time.Time
	waitFrom int
	timeout  time.Duration

	// onDone receives the connection index of each completed request
	// along with its queueing timestamp.
	onDone func(idx int, started time.Time) error
}

func newPipeline(conns []*s3.Connection, timeout time.Duration,
	onDone func(idx int, started time.Time) error) *pipeline {

	return &pipeline{
		conns:    conns,
		asyncMan: s3.NewAsyncMan(),
		started:  make([]time.Time, len(conns)),
		timeout:  timeout,
		onDone:   onDone,
	}
}

// submit pends one request through the supplied function on an idle
// connection, completing finished requests until a slot frees up.
func (p *pipeline) submit(pend func(conn *s3.Connection, am *s3.AsyncMan) error) error {
	for {
		for i, conn := range p.conns {
			if !conn.IsAsyncPending() {
				if err := pend(conn, p.asyncMan); err != nil {
					return err
				}
				p.started[i] = time.Now()
				return nil
			}
		}

		idx, err := s3.WaitAny(p.conns, p.waitFrom, p.timeout)
		if err != nil {
			return err
		}
		if idx < 0 {
			return errors.NewError(errors.ErrCodeTransport, "timed out waiting for pipelined requests")
		}
		p.waitFrom = (idx + 1) % len(p.conns)
		if err := p.onDone(idx, p.started[idx]); err != nil {
			return err
		}
	}
}

// drain completes every outstanding request.
func (p *pipeline) drain() error {
	for {
		pending := false
		for _, conn := range p.conns {
			if conn.IsAsyncPending() {
				pending = true
				break
			}
		}
		if !pending {
			return nil
		}

		idx, err := s3.WaitAny(p.conns, p.waitFrom, p.timeout)
		if err != nil {
			return err
		}
		if idx < 0 {
			return errors.NewError(errors.ErrCodeTransport, "timed out waiting for pipelined requests")
		}
		p.waitFrom = (idx + 1) % len(p.conns)
		if err := p.onDone(idx, p.started[idx]); err != nil {
			return err
		}
	}
}

// close shuts the async manager down after all work is complete.
func (p *pipeline) close() {
	for _, conn := range p.conns {
		conn.CancelAsync()
	}
	p.asyncMan.Close()
}
