// Package sorter wires together the keystore, streamio, runio, and syncio
// packages into the run-creation and k-way-merge pipeline: parallel
// RunCreator workers sharing one StreamReader and a bounded number of
// concurrent run writers, followed by a single RunMerger draining every
// run file they produced.
package sorter

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/calvinalkan/fortsort/internal/logx"
	"github.com/calvinalkan/fortsort/pkg/keystore"
	"github.com/calvinalkan/fortsort/pkg/runio"
	"github.com/calvinalkan/fortsort/pkg/streamio"
	"github.com/calvinalkan/fortsort/pkg/syncio"
)

// sharedInput is the single StreamReader (and its Pushback) that every
// RunCreator contends for under the syncio.Reader permit. Only one
// worker ever touches it at a time, so it needs no locking of its own
// beyond that permit.
type sharedInput struct {
	reader   *streamio.StreamReader
	pushback *streamio.Pushback
}

// RunCreator is a single worker in the run-creation pipeline: it repeatedly
// fills its own keystore.Store from the shared input under a Reader permit,
// sorts it, and serializes it to a fresh run file under a Writer permit,
// until the input is exhausted.
type RunCreator struct {
	id       int
	ks       *keystore.Store
	input    *sharedInput
	gate     *syncio.Gate
	tmpDir   string
	compress bool
	log      logx.Logger

	seq int
}

func newRunCreator(id int, ks *keystore.Store, input *sharedInput, gate *syncio.Gate, tmpDir string, compress bool, log logx.Logger) *RunCreator {
	return &RunCreator{id: id, ks: ks, input: input, gate: gate, tmpDir: tmpDir, compress: compress, log: log}
}

// Run drives the worker state machine to completion, returning the paths
// of every run file it wrote. A non-nil error is always fatal (a record
// too long to ever fit, or a failure writing a run file); the run files
// already written are still returned alongside it so the caller can
// remove them. Read errors are not fatal here, StreamReader already folds
// them into end-of-stream.
func (rc *RunCreator) Run(ctx context.Context) ([]string, error) {
	var paths []string

	for {
		rc.ks.Clear()

		if err := rc.gate.Acquire(ctx, syncio.Reader); err != nil {
			return paths, fmt.Errorf("run creator %d: %w", rc.id, err)
		}

		more, err := rc.input.reader.Read(rc.ks, rc.input.pushback)
		rc.gate.Release(syncio.Reader)

		if err != nil {
			return paths, fmt.Errorf("run creator %d: %w", rc.id, err)
		}

		if !rc.ks.Empty() {
			rc.ks.Sort()

			path, werr := rc.writeRun(ctx)
			if werr != nil {
				return paths, fmt.Errorf("run creator %d: %w", rc.id, werr)
			}

			paths = append(paths, path)
		}

		if !more {
			return paths, nil
		}
	}
}

// writeRun serializes the worker's current (already sorted) keystore to a
// freshly named run file under a Writer permit.
func (rc *RunCreator) writeRun(ctx context.Context) (string, error) {
	path := filepath.Join(rc.tmpDir, fmt.Sprintf("fort_run.%d.%d", rc.id, rc.seq))
	rc.seq++

	if err := rc.gate.Acquire(ctx, syncio.Writer); err != nil {
		return "", fmt.Errorf("acquire writer permit: %w", err)
	}
	defer rc.gate.Release(syncio.Writer)

	w, err := runio.NewWriter(path, rc.compress)
	if err != nil {
		return "", fmt.Errorf("open run file: %w", err)
	}

	var writeErr error
	rc.ks.Visit(func(record []byte) {
		if writeErr != nil {
			return
		}

		writeErr = w.Write(record)
	})

	if writeErr != nil {
		_ = w.End()
		return "", fmt.Errorf("write run file %q: %w", path, writeErr)
	}

	if err := w.End(); err != nil {
		return "", fmt.Errorf("finalize run file %q: %w", path, err)
	}

	return path, nil
}
