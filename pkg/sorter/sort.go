package sorter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/calvinalkan/fortsort/internal/logx"
	"github.com/calvinalkan/fortsort/pkg/keystore"
	"github.com/calvinalkan/fortsort/pkg/runio"
	"github.com/calvinalkan/fortsort/pkg/streamio"
	"github.com/calvinalkan/fortsort/pkg/syncio"
)

// ErrInvalidOptions indicates an Options value is unusable (e.g. a
// non-positive worker count or keystore size too small for one record).
var ErrInvalidOptions = errors.New("sorter: invalid options")

// readerPermits is the fixed capacity of the syncio.Reader class. Every
// RunCreator contends for the same single StreamReader and Pushback, so
// exactly one permit ever exists; this is not configurable.
const readerPermits = 1

// Options configures one end-to-end sort: how much memory each worker's
// keystore gets, how many workers run, and how run I/O is bounded.
type Options struct {
	// Parallel is the number of concurrent RunCreator workers.
	Parallel int
	// KeyStoreCap is the byte capacity of each worker's keystore.Store
	// (the "sorter_mem" per worker derived by the caller from host
	// memory and MaxElement — see internal/cli.deriveSorterMem).
	KeyStoreCap uint64
	// MaxElement bounds the length of any single input record. The shared
	// Pushback is sized from StreamBufferSize, not from this.
	MaxElement uint64
	// StreamBufferSize is the byte capacity of the StreamReader's read
	// buffer (and, independently, the StreamWriter's output buffer).
	StreamBufferSize int
	// TriggerFraction controls how full the StreamReader's buffer gets
	// before being scanned for records, and likewise for each run
	// reader's ring buffer. Clamped to (0, 1] by the components that
	// consume it.
	TriggerFraction float64
	// MergeRingBufferSize is the ring.Buffer capacity given to each
	// run reader during the merge phase.
	MergeRingBufferSize uint64
	// MaxRunWriters is the syncio.Writer class capacity: how many run
	// files may be written to concurrently.
	MaxRunWriters int64
	// MaxRunIO is the syncio total class capacity bounding the combined
	// number of concurrent reader+writer permits; 0 means unbounded.
	MaxRunIO int64
	// TmpDir is the directory run files are created in.
	TmpDir string
	// Compress selects the LZ4-framed run format over the raw one.
	Compress bool
	// ComparatorFactory builds the Comparator each concurrent owner (every
	// worker's Store, and the Merger) sorts or compares with; it is called
	// once per owner rather than shared, since a locale-backed Comparator
	// (keystore.LocaleComparatorFactory) is not safe for concurrent use.
	// Nil means a factory returning keystore.ByteOrder, which has no
	// shared state and is safe to hand out as-is.
	ComparatorFactory func() keystore.Comparator
	// Logger receives non-fatal diagnostics. Nil means logx.Discard.
	Logger logx.Logger
	// KeepRuns skips deleting run files after a successful merge,
	// for tests and cmd/fortcat-driven debugging sessions.
	KeepRuns bool
}

func (o Options) validate() error {
	if o.Parallel <= 0 {
		return fmt.Errorf("parallel must be positive: %w", ErrInvalidOptions)
	}

	if o.KeyStoreCap < o.MaxElement+16 {
		return fmt.Errorf("keystore capacity %d too small for max element %d: %w", o.KeyStoreCap, o.MaxElement, ErrInvalidOptions)
	}

	if o.MaxElement == 0 {
		return fmt.Errorf("max element must be positive: %w", ErrInvalidOptions)
	}

	return nil
}

// Sort reads newline-delimited records from r, stages them to temporary
// run files under opts.TmpDir via opts.Parallel RunCreator workers, and
// k-way-merges those runs into w in sorted order, one record per line. It
// owns worker spawn/join and run-file lifecycle; sizing is the caller's
// decision, and no further policy lives here.
func Sort(ctx context.Context, r io.Reader, w io.Writer, opts Options) (err error) {
	if verr := opts.validate(); verr != nil {
		return verr
	}

	log := opts.Logger
	if log == nil {
		log = logx.Discard
	}

	gate, err := syncio.New(readerPermits, opts.MaxRunWriters, opts.MaxRunIO)
	if err != nil {
		return fmt.Errorf("configure io gate: %w", err)
	}

	cmpFactory := opts.ComparatorFactory
	if cmpFactory == nil {
		cmpFactory = func() keystore.Comparator { return keystore.ByteOrder }
	}

	input := &sharedInput{
		reader:   streamio.NewStreamReader(r, opts.StreamBufferSize, opts.TriggerFraction, int(opts.MaxElement), log),
		pushback: streamio.NewPushback(opts.StreamBufferSize),
	}

	paths, cerr := runCreators(ctx, opts, input, gate, cmpFactory, log)

	defer func() {
		if opts.KeepRuns {
			return
		}

		for _, p := range paths {
			if rerr := os.Remove(p); rerr != nil && !os.IsNotExist(rerr) {
				log.Warnf("failed to remove run file %q: %v", p, rerr)
			}
		}
	}()

	if cerr != nil {
		return cerr
	}

	sw := streamio.NewStreamWriter(w, opts.StreamBufferSize)

	if len(paths) == 0 {
		return sw.End()
	}

	return mergeRuns(paths, opts, cmpFactory, sw)
}

// runCreators spawns opts.Parallel RunCreator workers sharing input and
// gate, and waits for all of them to finish. It returns every run file
// path any worker produced, even if one worker failed partway through —
// so Sort can remove those runs; it does not merge them after a failure —
// plus the first error encountered, if any. Each worker calls cmpFactory for
// its own Comparator instance rather than sharing one, since a
// locale-backed Comparator keeps internal, non-concurrency-safe state.
func runCreators(ctx context.Context, opts Options, input *sharedInput, gate *syncio.Gate, cmpFactory func() keystore.Comparator, log logx.Logger) ([]string, error) {
	allPaths := make([][]string, opts.Parallel)
	errs := make([]error, opts.Parallel)

	var wg sync.WaitGroup

	for i := 0; i < opts.Parallel; i++ {
		wg.Add(1)

		go func(id int) {
			defer wg.Done()

			ks, err := keystore.New(opts.KeyStoreCap, cmpFactory())
			if err != nil {
				errs[id] = fmt.Errorf("create keystore for worker %d: %w", id, err)
				return
			}

			rc := newRunCreator(id, ks, input, gate, opts.TmpDir, opts.Compress, log)

			paths, err := rc.Run(ctx)
			allPaths[id] = paths
			errs[id] = err
		}(i)
	}

	wg.Wait()

	var paths []string
	for _, p := range allPaths {
		paths = append(paths, p...)
	}

	for _, e := range errs {
		if e != nil {
			return paths, e
		}
	}

	return paths, nil
}

// mergeRuns opens one runio.Reader per path and merges them into sw,
// using its own Comparator instance from cmpFactory: the Merger runs on a
// single goroutine, but never shares that instance with a RunCreator
// worker that might still be live.
func mergeRuns(paths []string, opts Options, cmpFactory func() keystore.Comparator, sw *streamio.StreamWriter) error {
	readers := make([]*runio.Reader, 0, len(paths))

	defer func() {
		for _, r := range readers {
			_ = r.Close()
		}
	}()

	for _, p := range paths {
		r, err := runio.NewReader(p, opts.MergeRingBufferSize, opts.TriggerFraction, opts.Compress, opts.Logger)
		if err != nil {
			return fmt.Errorf("open run file %q for merge: %w", p, err)
		}

		readers = append(readers, r)
	}

	return NewMerger(readers, cmpFactory()).Merge(sw)
}
