package s3

import (
	"reflect"
	"time"

	"github.com/s3pipe/s3pipe/pkg/errors"
)

// WaitAny blocks until any of the given connections completes its
// pending request, returning that connection's index, or -1 on
// timeout. The scan starts at startFrom modulo the slice length so
// repeated calls with a rotating offset serve connections fairly; an
// already-completed connection found during the scan is returned
// without blocking. Watching more than MaxWait connections is
// rejected.
func WaitAny(cons []*Connection, startFrom int, timeout time.Duration) (int, error) {
	n := len(cons)
	if n > MaxWait {
		return -1, errors.NewTooManyConnections(n, MaxWait)
	}
	if n == 0 {
		return -1, nil
	}
	if startFrom < 0 {
		startFrom = 0
	}

	// Fast path: pick up finished work before blocking.
	for i := 0; i < n; i++ {
		idx := (startFrom + i) % n
		if cons[idx].IsAsyncCompleted() {
			return idx, nil
		}
	}

	cases := make([]reflect.SelectCase, 0, n+1)
	indexes := make([]int, 0, n)
	for i := 0; i < n; i++ {
		idx := (startFrom + i) % n
		done := cons[idx].doneChan()
		if done == nil {
			continue
		}
		cases = append(cases, reflect.SelectCase{
			Dir:  reflect.SelectRecv,
			Chan: reflect.ValueOf(done),
		})
		indexes = append(indexes, idx)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	cases = append(cases, reflect.SelectCase{
		Dir:  reflect.SelectRecv,
		Chan: reflect.ValueOf(timer.C),
	})

	chosen, _, _ := reflect.Select(cases)
	if chosen == len(cases)-1 {
		return -1, nil
	}
	return indexes[chosen], nil
}
