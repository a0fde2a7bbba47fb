// Package syncio provides a multi-class counting semaphore used to bound
// the number of concurrently in-flight I/O operations of each kind
// (reading input, writing run files) and, optionally, their sum.
package syncio

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Class identifies one of the three independently counted resources.
type Class int

const (
	// Reader gates concurrent input-reading operations.
	Reader Class = iota
	// Writer gates concurrent run-writing operations.
	Writer
	// total gates the sum of Reader and Writer acquisitions. It has no
	// exported constant because callers never acquire it directly; it is
	// only ever engaged as a side effect of acquiring Reader or Writer.
	total
)

// ErrInvalidInput indicates a construction argument was invalid.
var ErrInvalidInput = errors.New("syncio: invalid input")

// Gate is a multi-class counting semaphore: independent permit pools for
// Reader and Writer, plus an optional pool ("total") that bounds their
// combined concurrency. A Gate with a zero total limit leaves the sum
// unbounded; only the per-class limits apply.
//
// Acquire order is total-then-class; Release order is class-then-total.
// This is plain nested (last-acquired, first-released) ordering: acquiring
// the scarcer, shared resource first avoids a thread holding a class
// permit while blocked on total (which would let class permits run out
// while total capacity sits idle behind other blocked acquirers), and
// releasing the class permit before total avoids transiently reporting
// more total capacity free than there are class permits to match it.
type Gate struct {
	total  *semaphore.Weighted // nil if unbounded
	reader *semaphore.Weighted
	writer *semaphore.Weighted
}

// New builds a Gate with readers and writers permits for their respective
// classes. If total is non-zero, it additionally bounds the combined
// number of outstanding Reader+Writer acquisitions. A total smaller than
// a class limit simply tightens that class further; because total is
// always acquired before the class, a class permit is only ever contended
// by holders of a total permit, so no combination of limits can deadlock.
func New(readers, writers, total_ int64) (*Gate, error) {
	if readers <= 0 || writers <= 0 {
		return nil, fmt.Errorf("readers and writers must be positive: %w", ErrInvalidInput)
	}

	if total_ < 0 {
		return nil, fmt.Errorf("total must not be negative: %w", ErrInvalidInput)
	}

	g := &Gate{
		reader: semaphore.NewWeighted(readers),
		writer: semaphore.NewWeighted(writers),
	}

	if total_ > 0 {
		g.total = semaphore.NewWeighted(total_)
	}

	return g, nil
}

func (g *Gate) sem(c Class) *semaphore.Weighted {
	switch c {
	case Reader:
		return g.reader
	case Writer:
		return g.writer
	default:
		panic("syncio: acquire/release called with internal total class")
	}
}

// Acquire blocks until a permit of the given class (and, if a total limit
// is configured, a total permit) is available, or ctx is cancelled.
func (g *Gate) Acquire(ctx context.Context, c Class) error {
	if g.total != nil {
		if err := g.total.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("acquire total: %w", err)
		}
	}

	if err := g.sem(c).Acquire(ctx, 1); err != nil {
		if g.total != nil {
			g.total.Release(1)
		}

		return fmt.Errorf("acquire class: %w", err)
	}

	return nil
}

// Release returns a previously acquired permit of the given class, and the
// matching total permit if configured. Releasing without a matching
// Acquire is a programmer error, as with golang.org/x/sync/semaphore.
func (g *Gate) Release(c Class) {
	g.sem(c).Release(1)

	if g.total != nil {
		g.total.Release(1)
	}
}
