package blockdev

import (
	"github.com/joeycumines/libos-core/internal/errno"
	"github.com/joeycumines/libos-core/internal/poll"
)

// Pollable is any File-like object exposing poll_by(mask) semantics, per
// spec §4.Q.
type Pollable interface {
	Poll(mask poll.EventMask, poller *poll.Poller) poll.EventMask
}

// Op is a fallible operation against T that may return errno.EAGAIN when
// T isn't currently ready.
type Op[T any] func(t T) (n int, err error)

// Async adapts any Pollable T's read/write into a blocking call that
// fast-paths the direct attempt and falls back to poll-then-retry on
// EAGAIN, per spec §4.Q: "fast-path call read/write; on EAGAIN, install a
// poller on the file for IN/OUT, loop polling and awaiting until the op
// succeeds or a non-EAGAIN error is returned."
type Async[T Pollable] struct {
	file T
}

// NewAsync wraps file for readiness-adapted operations.
func NewAsync[T Pollable](file T) *Async[T] {
	return &Async[T]{file: file}
}

// Do runs op against the wrapped file, retrying on EAGAIN by registering a
// fresh Poller for waitMask and blocking on it each time the fast path
// isn't ready.
func (a *Async[T]) Do(op Op[T], waitMask poll.EventMask) (int, error) {
	for {
		n, err := op(a.file)
		if err == nil {
			return n, nil
		}
		code, ok := errno.Of(err)
		if !ok || code != errno.EAGAIN {
			return n, err
		}

		poller := poll.NewPoller()
		ready := a.file.Poll(waitMask, poller)
		if ready != 0 {
			poller.Close()
			continue
		}
		poller.Wait(nil)
		poller.Close()
	}
}
