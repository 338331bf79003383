package wait

import (
	"time"

	"github.com/joeycumines/libos-core/internal/clock"
	"github.com/joeycumines/libos-core/internal/errno"
)

// Loop is the waiter_loop combinator from spec §4.C: repeatedly evaluate
// cond; if it already holds, return immediately without ever parking. Else
// park on a freshly enqueued Waiter and retry after being woken, until cond
// holds, the deadline elapses, or the calling thread is interrupted.
//
// cond is re-checked after every wake, not trusted on the strength of the
// wake alone: a WakeN call only promises "something changed", not that this
// particular waiter's condition is now true (spec §4.C's guidance against
// lost-wakeup/spurious-wake bugs). Grounded on the retry-after-wake shape of
// the teacher's eventloop run loop (poll, act, repeat until done).
func Loop(q *WaiterQueue, clk clock.Source, timeout time.Duration, interrupt InterruptChecker, cond func() bool) error {
	deadline := time.Time{}
	if timeout > 0 {
		deadline = clk.Now().Add(timeout)
	}

	w := NewWaiter()
	for {
		if cond() {
			return nil
		}

		var remaining time.Duration
		if !deadline.IsZero() {
			remaining = deadline.Sub(clk.Now())
			if remaining <= 0 {
				return errno.New(errno.ETIMEDOUT, "wait: loop deadline elapsed")
			}
		}

		q.Enqueue(w)
		err := w.Wait(clk, remaining, interrupt)
		q.Remove(w)
		if err != nil {
			return err
		}
		w.Reset()
	}
}
