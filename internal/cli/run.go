// Package cli implements fortsort's command-line entry point: flag and
// config-file parsing, memory-budget and per-worker sizing, and wiring
// the parsed configuration into pkg/sorter.Sort.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/natefinch/atomic"

	"github.com/calvinalkan/fortsort/internal/logx"
	"github.com/calvinalkan/fortsort/pkg/keystore"
	"github.com/calvinalkan/fortsort/pkg/sorter"
)

// Defaults for pipeline internals that are deliberately not exposed as
// options: the stream buffer size, the merge-time per-reader ring buffer
// size, and the buffer-fill trigger fraction.
const (
	defaultStreamBufferSize    = 4 << 20 // 4 MiB
	defaultMergeRingBufferSize = 1 << 20 // 1 MiB per run reader
	defaultTriggerFraction     = 0.9
)

// Run is the process entry point: explicit stdio, args, env, and an
// optional signal channel (nil in tests), returning an exit code. main()
// itself does nothing but call this and os.Exit the result.
func Run(stdin io.Reader, stdout, stderr io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	log := logx.New(stderr)

	f := newCLIFlags()
	if err := f.parse(args[1:]); err != nil {
		fmt.Fprintln(stderr, "error:", err)

		if isUnknownFlagErr(err) {
			printUsage(stderr)
		}

		return 1
	}

	if *f.help {
		printUsage(stdout)
		return 0
	}

	workDir, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(stderr, "error: cannot determine working directory:", err)
		return 1
	}

	cfg, err := resolveConfig(workDir, *f.config)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}

	cfg = mergeConfig(cfg, f.overlay())

	opts, outputPath, err := buildOptions(cfg, log, readProcMeminfoFree)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}

	if err := runSort(context.Background(), stdin, stdout, outputPath, opts); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}

	select {
	case <-sigCh:
		return 130
	default:
		return 0
	}
}

// runSort runs the sort, writing either directly to stdout or, when
// outputPath is set, atomically to that file via an io.Pipe so the
// merge can stream into atomic.WriteFile without buffering the whole
// sorted output in memory first.
func runSort(ctx context.Context, stdin io.Reader, stdout io.Writer, outputPath string, opts sorter.Options) error {
	if outputPath == "" {
		return sorter.Sort(ctx, stdin, stdout, opts)
	}

	pr, pw := io.Pipe()

	sortErrCh := make(chan error, 1)

	go func() {
		err := sorter.Sort(ctx, stdin, pw, opts)
		if err != nil {
			// A plain Close would hand WriteFile a clean EOF and let it
			// atomically install a truncated output; failing the pipe makes
			// it abort without touching the destination.
			_ = pw.CloseWithError(err)
		} else {
			_ = pw.Close()
		}

		sortErrCh <- err
	}()

	writeErr := atomic.WriteFile(outputPath, pr)
	sortErr := <-sortErrCh

	if sortErr != nil {
		return fmt.Errorf("sort: %w", sortErr)
	}

	if writeErr != nil {
		return fmt.Errorf("write output file %q: %w", outputPath, writeErr)
	}

	return nil
}

// buildOptions resolves every size string, derives each worker's
// keystore capacity, and picks the comparator, turning a Config into a
// sorter.Options. It returns the configured output path (empty for
// stdout) separately since Options has no notion of output destination.
func buildOptions(cfg Config, log logx.Logger, freeMem freeMemoryFunc) (sorter.Options, string, error) {
	memSize, err := parseSize(cfg.MemSize, freeMem)
	if err != nil {
		return sorter.Options{}, "", fmt.Errorf("mem_size: %w", err)
	}

	maxElement, err := parseSize(cfg.MaxElement, freeMem)
	if err != nil {
		return sorter.Options{}, "", fmt.Errorf("max_element: %w", err)
	}

	parallel := cfg.Parallel
	if parallel <= 0 {
		parallel = runtime.NumCPU()
	}

	sorterMem, err := deriveSorterMem(memSize, maxElement, parallel)
	if err != nil {
		return sorter.Options{}, "", err
	}

	cmpFactory, err := resolveComparatorFactory(cfg.Locale, log)
	if err != nil {
		return sorter.Options{}, "", err
	}

	tmpDir := cfg.TmpDir
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}

	compress := true
	if cfg.Compress != nil {
		compress = *cfg.Compress
	}

	opts := sorter.Options{
		Parallel:            parallel,
		KeyStoreCap:         sorterMem,
		MaxElement:          maxElement,
		StreamBufferSize:    streamBufferSize(maxElement),
		TriggerFraction:     defaultTriggerFraction,
		MergeRingBufferSize: mergeRingBufferSize(maxElement),
		MaxRunWriters:       maxOrDefault(cfg.MaxRunWriters, 1),
		MaxRunIO:            maxRunIOOrDefault(cfg.MaxRunIO),
		TmpDir:              tmpDir,
		Compress:            compress,
		ComparatorFactory:   cmpFactory,
		Logger:              log,
	}

	return opts, cfg.Output, nil
}

// streamBufferSize picks the stream buffer big enough to hold the
// largest permitted record with room to spare: defaultStreamBufferSize
// on its own (4 MiB) is smaller than the default max_element (16 MiB),
// which would make the configured ceiling unreachable in the default
// configuration. A record must fit in the buffer before the stream
// reader can see its terminating newline.
func streamBufferSize(maxElement uint64) int {
	if want := 2 * maxElement; want > defaultStreamBufferSize {
		return int(want)
	}

	return defaultStreamBufferSize
}

// mergeRingBufferSize sizes each run reader's merge-phase ring buffer the
// same way streamBufferSize sizes the read buffer: big enough for the
// largest permitted record plus its length prefix, since a record that
// can't fit the ring whole can never be returned as one linear slice and
// would truncate the rest of its run at merge time.
func mergeRingBufferSize(maxElement uint64) uint64 {
	if want := 2 * maxElement; want > defaultMergeRingBufferSize {
		return want
	}

	return defaultMergeRingBufferSize
}

func maxOrDefault(v, def int64) int64 {
	if v <= 0 {
		return def
	}

	return v
}

// maxRunIOOrDefault treats an unset MaxRunIO (nil: neither the config
// file nor a flag touched it) as the documented default of 1, while
// preserving an explicit 0 (meaning "unbounded") — unlike maxOrDefault,
// 0 is a valid, distinct setting here, so Config.MaxRunIO is a pointer
// precisely so the zero value can be told apart from "unset".
func maxRunIOOrDefault(v *int64) int64 {
	if v == nil {
		return 1
	}

	return *v
}

// deriveSorterMem computes the per-worker keystore capacity,
// (mem_size - 2*max_element) / parallel, reserving two max-size records'
// worth of headroom (one in flight on the read side, one on the write
// side) before dividing across workers. A budget at or below the
// reservation is a configuration error, not an unsigned subtraction left
// to wrap around.
func deriveSorterMem(memSize, maxElement uint64, parallel int) (uint64, error) {
	reserved := 2 * maxElement
	if memSize <= reserved {
		return 0, fmt.Errorf("mem_size %d too small for max_element %d (need > %d): %w", memSize, maxElement, reserved, errConfigInvalid)
	}

	sorterMem := (memSize - reserved) / uint64(parallel)
	if sorterMem < maxElement+16 {
		return 0, fmt.Errorf("mem_size %d spread across %d workers leaves too little per worker for max_element %d: %w", memSize, parallel, maxElement, errConfigInvalid)
	}

	return sorterMem, nil
}

// resolveComparatorFactory maps the configured locale onto a
// sorter.Options.ComparatorFactory. An empty locale means byte order.
// "C" is accepted and means byte order too — it is not a BCP 47 tag the
// collator could parse, so it maps onto the default comparator directly,
// with a warning that asking for it buys nothing over leaving --locale
// unset.
//
// The factory, not a single Comparator, is what's plumbed through to
// sorter.Options: with opts.Parallel workers each sorting concurrently,
// every one needs its own *collate.Collator-backed Comparator instance
// (keystore.LocaleComparatorFactory's contract) rather than a shared one.
func resolveComparatorFactory(locale string, log logx.Logger) (func() keystore.Comparator, error) {
	if locale == "" || locale == "C" {
		if locale == "C" {
			log.Warnf("locale \"C\" requested explicitly; records are collated in byte order, same as the default")
		}

		return func() keystore.Comparator { return keystore.ByteOrder }, nil
	}

	factory, err := keystore.LocaleComparatorFactory(locale)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", errUnknownLocale, locale, err)
	}

	return factory, nil
}
