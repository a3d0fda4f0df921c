package s3

import (
	"context"
	"sync"
	"time"

	"github.com/s3pipe/s3pipe/pkg/errors"
)

// ConnectionPool hands out idle connections to callers that drive many
// transfers concurrently. Connections are created lazily up to the
// configured size and returned to the pool after use; a connection
// returned while still pending is cancelled first.
type ConnectionPool struct {
	mu          sync.Mutex
	connections chan *Connection
	factory     func() (*Connection, error)
	maxSize     int
	currentSize int
	closed      bool

	stats PoolStats
}

// PoolStats tracks pool activity counters.
type PoolStats struct {
	Idle        int       `json:"idle"`
	Total       int       `json:"total"`
	MaxSize     int       `json:"max_size"`
	Hits        int64     `json:"hits"`
	Misses      int64     `json:"misses"`
	Timeouts    int64     `json:"timeouts"`
	Errors      int64     `json:"errors"`
	Created     int64     `json:"created"`
	LastCreated time.Time `json:"last_created"`
	LastError   string    `json:"last_error"`
	LastErrorAt time.Time `json:"last_error_at"`
}

// NewConnectionPool creates a pool producing connections from the
// config. maxSize values below 1 select a default of 8.
func NewConnectionPool(maxSize int, cfg Config) (*ConnectionPool, error) {
	if maxSize <= 0 {
		maxSize = 8
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &ConnectionPool{
		connections: make(chan *Connection, maxSize),
		factory:     func() (*Connection, error) { return NewConnection(cfg) },
		maxSize:     maxSize,
		stats:       PoolStats{MaxSize: maxSize},
	}, nil
}

// Get returns an idle connection, creating one when the pool has not
// reached its size limit, else blocking until a connection is returned
// or the context expires.
func (p *ConnectionPool) Get(ctx context.Context) (*Connection, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errors.NewError(errors.ErrCodeConnectionPool, "pool is closed")
	}

	select {
	case conn := <-p.connections:
		p.stats.Hits++
		p.mu.Unlock()
		return conn, nil
	default:
	}

	if p.currentSize < p.maxSize {
		p.currentSize++
		p.stats.Misses++
		p.mu.Unlock()

		conn, err := p.factory()
		if err != nil {
			p.mu.Lock()
			p.currentSize--
			p.stats.Errors++
			p.stats.LastError = err.Error()
			p.stats.LastErrorAt = time.Now()
			p.mu.Unlock()
			return nil, err
		}

		p.mu.Lock()
		p.stats.Created++
		p.stats.LastCreated = time.Now()
		p.mu.Unlock()
		return conn, nil
	}
	p.stats.Misses++
	p.mu.Unlock()

	select {
	case conn := <-p.connections:
		return conn, nil
	case <-ctx.Done():
		p.mu.Lock()
		p.stats.Timeouts++
		p.mu.Unlock()
		return nil, errors.NewError(errors.ErrCodeConnectionPool, "timed out waiting for a connection").
			WithCause(ctx.Err())
	}
}

// Put returns a connection to the pool. Pending work is cancelled so
// the next borrower starts from an idle handle.
func (p *ConnectionPool) Put(conn *Connection) {
	if conn == nil {
		return
	}
	conn.CancelAsync()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.currentSize--
		conn.Close()
		return
	}

	select {
	case p.connections <- conn:
	default:
		p.currentSize--
		conn.Close()
	}
}

// Stats returns a snapshot of the pool counters.
func (p *ConnectionPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.Idle = len(p.connections)
	s.Total = p.currentSize
	return s
}

// Close drains and closes all idle connections. Borrowed connections
// are closed as they are returned.
func (p *ConnectionPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	for {
		select {
		case conn := <-p.connections:
			p.mu.Lock()
			p.currentSize--
			p.mu.Unlock()
			conn.Close()
		default:
			return
		}
	}
}
