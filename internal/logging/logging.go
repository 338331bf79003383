// Package logging is a thin facade over github.com/joeycumines/logiface so
// that the many internal/* packages depend on a small interface rather than
// a concrete logging backend. cmd/libosd wires the real
// github.com/joeycumines/logiface/zerolog backend; tests use Nop.
//
// Grounded on the teacher's logiface-zerolog adapter (WithZerolog) and on
// the chain-builder idiom (Info().Str("k", v).Log("msg")) used throughout
// the logiface corpus.
package logging

import (
	"github.com/joeycumines/logiface"
)

// Logger is the interface internal packages depend on.
type Logger interface {
	Debug() *logiface.Builder[logiface.Event]
	Info() *logiface.Builder[logiface.Event]
	Warning() *logiface.Builder[logiface.Event]
	Error() *logiface.Builder[logiface.Event]
}

// wrapper adapts a concrete *logiface.Logger[logiface.Event].
type wrapper struct {
	l *logiface.Logger[logiface.Event]
}

// New wraps a concrete logiface logger for use as a Logger.
func New(l *logiface.Logger[logiface.Event]) Logger {
	if l == nil {
		return Nop()
	}
	return &wrapper{l: l}
}

func (w *wrapper) Debug() *logiface.Builder[logiface.Event]   { return w.l.Debug() }
func (w *wrapper) Info() *logiface.Builder[logiface.Event]    { return w.l.Info() }
func (w *wrapper) Warning() *logiface.Builder[logiface.Event] { return w.l.Warning() }
func (w *wrapper) Error() *logiface.Builder[logiface.Event]   { return w.l.Error() }

// nop is a Logger whose every builder is disabled; logiface's Builder
// methods are all no-ops on a disabled builder, so chains cost nothing.
type nop struct {
	l *logiface.Logger[logiface.Event]
}

var nopInstance = func() Logger {
	l := logiface.New[logiface.Event]()
	return &nop{l: l}
}()

// Nop returns a Logger that discards everything; safe default for packages
// constructed without an explicit logger option.
func Nop() Logger { return nopInstance }

func (n *nop) Debug() *logiface.Builder[logiface.Event]   { return n.l.Debug() }
func (n *nop) Info() *logiface.Builder[logiface.Event]    { return n.l.Info() }
func (n *nop) Warning() *logiface.Builder[logiface.Event] { return n.l.Warning() }
func (n *nop) Error() *logiface.Builder[logiface.Event]   { return n.l.Error() }
