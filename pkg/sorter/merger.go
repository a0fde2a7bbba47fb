package sorter

import (
	"container/heap"
	"fmt"

	"github.com/calvinalkan/fortsort/pkg/keystore"
	"github.com/calvinalkan/fortsort/pkg/runio"
	"github.com/calvinalkan/fortsort/pkg/streamio"
)

// mergeItem is one live candidate in the merge heap: the record currently
// at the front of one run reader, and which reader it came from.
type mergeItem struct {
	record []byte
	reader int
}

// mergeHeap is a container/heap min-heap over mergeItems, ordered by the
// configured comparator.
type mergeHeap struct {
	items []mergeItem
	cmp   keystore.Comparator
}

func (h *mergeHeap) Len() int { return len(h.items) }

func (h *mergeHeap) Less(i, j int) bool {
	return h.cmp(h.items[i].record, h.items[j].record) < 0
}

func (h *mergeHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *mergeHeap) Push(x any) { h.items = append(h.items, x.(mergeItem)) }

func (h *mergeHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]

	return item
}

// Merger performs a k-way merge across a set of run readers, writing the
// globally sorted record stream to a StreamWriter. Ties between records
// from different runs are broken arbitrarily; duplicates are preserved
// but their relative order across runs is unspecified.
type Merger struct {
	readers []*runio.Reader
	cmp     keystore.Comparator
}

// NewMerger builds a Merger over readers, one per run file, ordered by cmp.
func NewMerger(readers []*runio.Reader, cmp keystore.Comparator) *Merger {
	return &Merger{readers: readers, cmp: cmp}
}

// Merge drains every reader in sorted order into w, then calls w.End().
// Each popped record is written to w before that record's reader is asked
// for its next one, so no reader's previously returned pointer needs to
// outlive more than a single loop iteration.
func (m *Merger) Merge(w *streamio.StreamWriter) error {
	h := &mergeHeap{cmp: m.cmp}
	heap.Init(h)

	for i, r := range m.readers {
		record, err := r.Next()
		if err != nil {
			return fmt.Errorf("read initial record from run %d: %w", i, err)
		}

		if record != nil {
			heap.Push(h, mergeItem{record: record, reader: i})
		}
	}

	for h.Len() > 0 {
		top := heap.Pop(h).(mergeItem) //nolint:forcetypeassert // heap only ever holds mergeItem

		if err := w.Write(top.record); err != nil {
			return fmt.Errorf("write merged record: %w", err)
		}

		record, err := m.readers[top.reader].Next()
		if err != nil {
			return fmt.Errorf("read next record from run %d: %w", top.reader, err)
		}

		if record != nil {
			heap.Push(h, mergeItem{record: record, reader: top.reader})
		}
	}

	if err := w.End(); err != nil {
		return fmt.Errorf("flush merged output: %w", err)
	}

	return nil
}
