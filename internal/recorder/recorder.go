package recorder

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"domin/internal/dataset"
	"domin/internal/faults"
	"domin/internal/imagewriter"
	"domin/internal/logging"
)

// Session holds the counters of one environment's recording.
type Session struct {
	// EpisodeIndex counts episodes this recorder committed.
	EpisodeIndex int
	// StepCount is the number of frames in the current episode.
	StepCount int
	// RerecordCount counts discarded episodes.
	RerecordCount int
}

// Observation is what the simulator reports for one environment at a
// recorded tick. Images are keyed by camera name.
type Observation struct {
	Joints []float64
	Images map[string]image.Image
}

// Recorder buffers the frames of one environment and commits or discards
// them as whole episodes.
type Recorder struct {
	ds      *dataset.Dataset
	writer  *imagewriter.Writer
	logger  *slog.Logger
	env     int
	fps     int
	joints  int
	visual  []visualChannel
	buf     *dataset.EpisodeBuffer
	task    string
	session Session
	last    int
	closed  bool
	// writeErr is a frame write failure of the current episode. It blocks
	// every commit until the episode is discarded.
	writeErr error
}

type visualChannel struct {
	key    string
	camera string
	width  int
	height int
}

func newRecorder(ds *dataset.Dataset, writer *imagewriter.Writer, env int, task string, logger *slog.Logger) (*Recorder, error) {
	meta := ds.Meta()
	state, ok := meta.Features[dataset.KeyObservationState]
	if !ok || len(state.Shape) != 1 {
		return nil, faults.Wrap(faults.ErrValidation, "recorder", "new", "dataset lacks a joint state feature", nil)
	}
	r := &Recorder{
		ds:     ds,
		writer: writer,
		logger: logger.With(logging.Int(logging.FieldEnvIndex, env)),
		env:    env,
		fps:    meta.FPS,
		joints: state.Shape[0],
		buf:    ds.NewBuffer(env),
		task:   task,
		last:   -1,
	}
	for _, key := range meta.VisualKeys() {
		f := meta.Features[key]
		if len(f.Shape) != 3 {
			return nil, faults.Wrap(faults.ErrValidation, "recorder", "new", fmt.Sprintf("%s is not (h, w, c)", key), nil)
		}
		r.visual = append(r.visual, visualChannel{key: key, camera: dataset.CameraName(key), height: f.Shape[0], width: f.Shape[1]})
	}
	return r, nil
}

// Env returns the recorded environment index.
func (r *Recorder) Env() int { return r.env }

// Session returns a copy of the counters.
func (r *Recorder) Session() Session { return r.session }

// Task returns the label applied to the next frames.
func (r *Recorder) Task() string { return r.task }

// LastEpisode returns the dataset index of the most recent commit, or -1.
func (r *Recorder) LastEpisode() int { return r.last }

// Step appends one frame. Every camera declared by the dataset must be
// present at its declared resolution and both vectors must match the joint
// count.
func (r *Recorder) Step(obs Observation, action []float64) error {
	if r.closed {
		return faults.Wrap(faults.ErrContract, "recorder", "step", "recorder closed", nil)
	}
	if len(obs.Joints) != r.joints {
		return faults.Wrap(faults.ErrValidation, "recorder", "step",
			fmt.Sprintf("observation has %d joints, want %d", len(obs.Joints), r.joints), nil)
	}
	if len(action) != r.joints {
		return faults.Wrap(faults.ErrValidation, "recorder", "step",
			fmt.Sprintf("action has %d joints, want %d", len(action), r.joints), nil)
	}
	for _, ch := range r.visual {
		img, ok := obs.Images[ch.camera]
		if !ok || img == nil {
			return faults.Wrap(faults.ErrValidation, "recorder", "step", fmt.Sprintf("missing camera %q", ch.camera), nil)
		}
		if b := img.Bounds(); b.Dx() != ch.width || b.Dy() != ch.height {
			return faults.Wrap(faults.ErrValidation, "recorder", "step",
				fmt.Sprintf("camera %q is %dx%d, want %dx%d", ch.camera, b.Dx(), b.Dy(), ch.width, ch.height), nil)
		}
	}

	index, err := r.buf.AddFrame(dataset.Frame{
		Timestamp: float64(r.session.StepCount) / float64(r.fps),
		State:     toFloat32(obs.Joints),
		Action:    toFloat32(action),
		Task:      r.task,
	})
	if err != nil {
		return err
	}
	for _, ch := range r.visual {
		if err := r.writer.Save(r.buf.ID(), obs.Images[ch.camera], r.buf.ImagePath(ch.key, index)); err != nil {
			return err
		}
	}
	r.session.StepCount++
	return nil
}

// NewEpisode commits the buffered frames as one episode and labels the
// frames that follow with task. With nothing buffered it only updates the
// label. It returns the committed dataset episode index, or -1.
func (r *Recorder) NewEpisode(ctx context.Context, task string) (int, error) {
	if r.closed {
		return -1, faults.Wrap(faults.ErrContract, "recorder", "new episode", "recorder closed", nil)
	}
	if r.session.StepCount == 0 {
		r.task = task
		return -1, nil
	}
	index, err := r.commit(ctx)
	if err != nil {
		return -1, err
	}
	r.task = task
	return index, nil
}

// Rerecord discards the current episode. The episode index is unchanged.
func (r *Recorder) Rerecord() error {
	if r.closed {
		return faults.Wrap(faults.ErrContract, "recorder", "rerecord", "recorder closed", nil)
	}
	if err := r.writer.Wait(r.buf.ID()); err != nil && r.writeErr == nil {
		r.writeErr = err
	}
	if r.writeErr != nil {
		r.logger.Debug("discarding episode with failed frame writes", logging.Error(r.writeErr))
	}
	if err := r.buf.Clear(); err != nil {
		// Frames stay buffered, so StepCount still matches the buffer.
		return err
	}
	r.writeErr = nil
	r.session.StepCount = 0
	r.session.RerecordCount++
	return nil
}

// Close commits a partial episode, if any, and stops accepting frames. It
// returns the committed index or -1. Later calls are no-ops.
func (r *Recorder) Close(ctx context.Context) (int, error) {
	if r.closed {
		return -1, nil
	}
	r.closed = true
	if r.session.StepCount == 0 {
		_ = r.writer.Wait(r.buf.ID())
		_ = r.buf.Clear()
		return -1, nil
	}
	index, err := r.commit(ctx)
	if err != nil && r.writeErr != nil {
		_ = r.buf.Clear()
	}
	return index, err
}

func (r *Recorder) commit(ctx context.Context) (int, error) {
	if err := r.writer.Wait(r.buf.ID()); err != nil && r.writeErr == nil {
		r.writeErr = err
	}
	if r.writeErr != nil {
		return -1, faults.Wrap(faults.ErrTransient, "recorder", "commit", "frame writes failed; rerecord the episode", r.writeErr)
	}
	frames := r.session.StepCount
	index, err := r.ds.SaveEpisode(ctx, r.buf)
	if err != nil {
		return -1, err
	}
	r.session.EpisodeIndex++
	r.session.StepCount = 0
	r.last = index
	r.buf = r.ds.NewBuffer(r.env)
	r.logger.Info("episode committed",
		logging.Int(logging.FieldEpisodeIndex, index),
		logging.Int("frames", frames),
	)
	return index, nil
}

func toFloat32(values []float64) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out
}
