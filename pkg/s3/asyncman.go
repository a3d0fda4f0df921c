package s3

import (
	"sync"
)

// MaxWait bounds the number of connections one WaitAny call may watch.
const MaxWait = 64

// AsyncMan drives pending requests in the background. Connections
// register work through the pend calls; the manager tracks every
// in-flight request so Close can drain them. One manager is shared by
// many connections and must outlive all of their pending operations.
type AsyncMan struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// NewAsyncMan creates a manager ready to accept work.
func NewAsyncMan() *AsyncMan {
	return &AsyncMan{}
}

// start launches one request worker. It reports false when the
// manager is already closed.
func (a *AsyncMan) start(run func()) bool {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return false
	}
	a.wg.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.wg.Done()
		run()
	}()
	return true
}

// Close refuses new work and blocks until every in-flight request
// worker has finished. Connections should be completed or cancelled
// first; cancellation makes the drain prompt.
func (a *AsyncMan) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.wg.Wait()
}
