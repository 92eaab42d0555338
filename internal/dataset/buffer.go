package dataset

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"domin/internal/faults"
	"domin/internal/videoenc"
)

// Frame is one recorded time step.
type Frame struct {
	Timestamp float64
	State     []float32
	Action    []float32
	Task      string
}

// EpisodeBuffer stages the frames of one episode until SaveEpisode or
// Clear. Camera images for frame i are written by the caller to
// ImagePath(key, i).
type EpisodeBuffer struct {
	id       string
	env      int
	staging  string
	meta     Meta
	stateLen int
	frames   []Frame
}

// NewBuffer returns an empty buffer for env with its own staging directory.
func (d *Dataset) NewBuffer(env int) *EpisodeBuffer {
	stateLen, _ := d.meta.vectorLen(KeyObservationState)
	id := uuid.NewString()
	return &EpisodeBuffer{
		id:       id,
		env:      env,
		staging:  filepath.Join(d.root, stagingDir, id),
		meta:     d.meta,
		stateLen: stateLen,
	}
}

// ID identifies the buffer's staging directory.
func (b *EpisodeBuffer) ID() string { return b.id }

// Env returns the environment the buffer records.
func (b *EpisodeBuffer) Env() int { return b.env }

// Len returns the number of buffered frames.
func (b *EpisodeBuffer) Len() int { return len(b.frames) }

// Task returns the task of the first frame.
func (b *EpisodeBuffer) Task() string {
	if len(b.frames) == 0 {
		return ""
	}
	return b.frames[0].Task
}

// AddFrame appends a frame after checking vector lengths against the
// dataset features. It returns the frame's index within the episode.
func (b *EpisodeBuffer) AddFrame(f Frame) (int, error) {
	if len(f.State) != b.stateLen {
		return 0, faults.Wrap(faults.ErrValidation, "dataset", "add frame",
			fmt.Sprintf("%s has %d values, want %d", KeyObservationState, len(f.State), b.stateLen), nil)
	}
	if want, err := b.meta.vectorLen(KeyAction); err == nil && len(f.Action) != want {
		return 0, faults.Wrap(faults.ErrValidation, "dataset", "add frame",
			fmt.Sprintf("%s has %d values, want %d", KeyAction, len(f.Action), want), nil)
	}
	if len(b.frames) > 0 && f.Task != b.frames[0].Task {
		return 0, faults.Wrap(faults.ErrValidation, "dataset", "add frame", "task changed within an episode", nil)
	}
	b.frames = append(b.frames, Frame{
		Timestamp: f.Timestamp,
		State:     append([]float32(nil), f.State...),
		Action:    append([]float32(nil), f.Action...),
		Task:      f.Task,
	})
	return len(b.frames) - 1, nil
}

// ImagePath is where the caller writes the image of key for frame index.
func (b *EpisodeBuffer) ImagePath(key string, index int) string {
	return filepath.Join(b.staging, key, videoenc.FrameName(index))
}

// Clear removes staged images and then drops every frame. When the
// removal fails the frames are kept. Callers must make sure no image
// writes for this buffer are still in flight.
func (b *EpisodeBuffer) Clear() error {
	if err := os.RemoveAll(b.staging); err != nil {
		return faults.Wrap(faults.ErrTransient, "dataset", "clear buffer", b.staging, err)
	}
	b.frames = b.frames[:0]
	return nil
}
