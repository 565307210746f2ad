package eventlog

import (
	"context"
	"time"
)

// WaitForAppend blocks until a new append occurs, the timeout elapses or ctx is
// done. It returns true only when woken by an append.
func (l *Log) WaitForAppend(ctx context.Context, timeout time.Duration) bool {
	l.mu.Lock()
	ch := l.notifyCh
	l.mu.Unlock()

	var expire <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expire = t.C
	}
	select {
	case <-ch:
		return true
	case <-expire:
		return false
	case <-ctx.Done():
		return false
	}
}
