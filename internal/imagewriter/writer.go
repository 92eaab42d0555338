// Package imagewriter persists camera frames as PNG files on a bounded pool
// of goroutines so the control loop never blocks on disk I/O.
//
// Every Save names an owner, usually an episode buffer. Callers must Wait
// on that owner before discarding or committing its files: only then are
// all of its queued writes on disk, and only its own failures are reported.
package imagewriter

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"domin/internal/faults"
	"domin/internal/logging"
)

// Options sizes the pool. Shards is the number of independent queues
// (image_writer_processes, at least 1) and Workers the goroutines per shard.
type Options struct {
	Shards  int
	Workers int
	Logger  *slog.Logger
}

type job struct {
	owner string
	img   image.Image
	path  string
}

// ownerState tracks the writes queued for one owner.
type ownerState struct {
	pending int
	err     error
}

// Writer is the asynchronous PNG writer.
type Writer struct {
	logger  *slog.Logger
	shards  []chan job
	workers sync.WaitGroup
	pending sync.WaitGroup
	next    atomic.Uint64
	written atomic.Int64

	mu     sync.Mutex
	idle   *sync.Cond
	owners map[string]*ownerState

	closeOnce sync.Once
	closed    atomic.Bool
}

var encoder = png.Encoder{CompressionLevel: png.BestSpeed}

// New starts the pool.
func New(opts Options) *Writer {
	shards := max(1, opts.Shards)
	workers := max(1, opts.Workers)
	w := &Writer{
		logger: logging.NewComponentLogger(opts.Logger, "imagewriter"),
		shards: make([]chan job, shards),
		owners: make(map[string]*ownerState),
	}
	w.idle = sync.NewCond(&w.mu)
	for s := range w.shards {
		queue := make(chan job, workers*4)
		w.shards[s] = queue
		for range workers {
			w.workers.Add(1)
			go w.run(queue)
		}
	}
	w.logger.Debug("image writer started", logging.Int("shards", shards), logging.Int("workers_per_shard", workers))
	return w
}

// Save queues img for writing to path on behalf of owner. It blocks while
// the chosen shard's queue is full.
func (w *Writer) Save(owner string, img image.Image, path string) error {
	if w.closed.Load() {
		return faults.Wrap(faults.ErrContract, "imagewriter", "save", "writer closed", ErrClosed)
	}
	if img == nil {
		return faults.Wrap(faults.ErrValidation, "imagewriter", "save", "nil image", nil)
	}
	w.mu.Lock()
	state, ok := w.owners[owner]
	if !ok {
		state = &ownerState{}
		w.owners[owner] = state
	}
	state.pending++
	w.mu.Unlock()

	w.pending.Add(1)
	shard := w.next.Add(1) % uint64(len(w.shards))
	w.shards[shard] <- job{owner: owner, img: img, path: path}
	return nil
}

// Wait blocks until every image queued by owner is written and returns the
// first of owner's write errors. Writes of other owners are neither waited
// for nor reported. The owner's record is dropped afterwards.
func (w *Writer) Wait(owner string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	state, ok := w.owners[owner]
	if !ok {
		return nil
	}
	for state.pending > 0 {
		w.idle.Wait()
	}
	delete(w.owners, owner)
	return state.err
}

// Written returns the number of images successfully written.
func (w *Writer) Written() int64 { return w.written.Load() }

// Close drains the queues and stops the workers. It returns the errors of
// owners nobody waited for. It is safe to call more than once.
func (w *Writer) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.closed.Store(true)
		w.pending.Wait()
		for _, queue := range w.shards {
			close(queue)
		}
		w.workers.Wait()

		w.mu.Lock()
		var errs []error
		for owner, state := range w.owners {
			if state.err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", owner, state.err))
			}
		}
		clear(w.owners)
		w.mu.Unlock()
		err = errors.Join(errs...)
	})
	return err
}

func (w *Writer) run(queue <-chan job) {
	defer w.workers.Done()
	for j := range queue {
		err := writePNG(j.img, j.path)
		if err == nil {
			w.written.Add(1)
		}
		w.done(j.owner, err)
		w.pending.Done()
	}
}

func (w *Writer) done(owner string, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	state := w.owners[owner]
	state.pending--
	if err != nil {
		if state.err == nil {
			state.err = err
		}
		logging.WarnWithContext(w.logger, "frame write failed", "image_write_failed",
			logging.Error(err),
			logging.String("owner", owner),
			logging.String(logging.FieldErrorHint, "check free space and permissions under dataset_root"),
			logging.String(logging.FieldImpact, "episode cannot be committed"),
		)
	}
	if state.pending == 0 {
		w.idle.Broadcast()
	}
}

// writePNG writes to a temporary sibling and renames it into place.
func writePNG(img image.Image, path string) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create frame directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".frame-*.png")
	if err != nil {
		return fmt.Errorf("create temp frame: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if err := encoder.Encode(tmp, img); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// ErrClosed reports use after Close.
var ErrClosed = errors.New("image writer closed")
