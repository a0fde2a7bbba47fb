package streamio

// Pushback holds the unconsumed tail of a read buffer — a partial record
// that didn't end in a newline before the buffer had to be handed off —
// so the next read can prime with it instead of losing those bytes.
type Pushback struct {
	buf  []byte
	fill int
}

// NewPushback allocates a Pushback able to hold up to size bytes. size
// must be at least as large as the StreamReader's own read buffer, not
// just the largest single record: Push is handed the reader's entire
// unconsumed tail, which can span several records' worth of bytes
// whenever the key-store fills up mid-buffer, not only a single
// newline-less remainder. A pushback smaller than that buffer silently
// truncates, by Push, whatever doesn't fit.
func NewPushback(size int) *Pushback {
	return &Pushback{buf: make([]byte, size)}
}

// Push stores data for the next Pop, discarding bytes beyond the
// Pushback's capacity. Callers must size the buffer from the same
// buffer-size bound the owning StreamReader uses, per NewPushback, so
// this case is never reached in practice.
func (p *Pushback) Push(data []byte) {
	n := copy(p.buf, data)
	p.fill = n
}

// Pop copies any pending pushback data into dst and clears it, returning
// the number of bytes copied.
func (p *Pushback) Pop(dst []byte) int {
	n := copy(dst, p.buf[:p.fill])
	p.fill = 0

	return n
}
