package videoenc

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"domin/internal/faults"
	"domin/internal/logging"
)

// FramePattern is the printf pattern frame files are named with.
const FramePattern = "frame_%06d.png"

// FrameName returns the file name of frame index i.
func FrameName(i int) string { return fmt.Sprintf(FramePattern, i) }

// Job describes one camera stream of one episode.
type Job struct {
	FrameDir string
	FPS      int
	// Output is the final video path, e.g. videos/front/episode_000003.mkv.
	Output string
}

// Encoder produces videos from frame directories.
type Encoder interface {
	Encode(ctx context.Context, job Job) error
}

// Transcoder encodes a video file into outputDir and returns the path of
// the result, named after the input's stem with a .mkv extension.
type Transcoder interface {
	Transcode(ctx context.Context, input, outputDir string) (string, error)
}

// CommandRunner executes an external command and returns its combined
// output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Options configures a Pipeline.
type Options struct {
	FFmpegBinary string
	Transcoder   Transcoder
	Runner       CommandRunner
	Logger       *slog.Logger
}

// Pipeline is the ffmpeg then drapto Encoder.
type Pipeline struct {
	ffmpeg     string
	transcoder Transcoder
	run        CommandRunner
	logger     *slog.Logger
}

var _ Encoder = (*Pipeline)(nil)

// NewPipeline builds the default encoder. A nil Transcoder uses drapto.
func NewPipeline(opts Options) *Pipeline {
	p := &Pipeline{
		ffmpeg:     strings.TrimSpace(opts.FFmpegBinary),
		transcoder: opts.Transcoder,
		run:        opts.Runner,
		logger:     logging.NewComponentLogger(opts.Logger, "videoenc"),
	}
	if p.ffmpeg == "" {
		p.ffmpeg = "ffmpeg"
	}
	if p.run == nil {
		p.run = execRunner
	}
	if p.transcoder == nil {
		p.transcoder = NewDrapto(opts.Logger)
	}
	return p
}

func (p *Pipeline) Encode(ctx context.Context, job Job) error {
	if job.FPS <= 0 {
		return faults.Wrap(faults.ErrValidation, "videoenc", "encode", "fps must be positive", nil)
	}
	outDir := filepath.Dir(job.Output)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return faults.Wrap(faults.ErrTransient, "videoenc", "encode", "create video directory", err)
	}
	stem := strings.TrimSuffix(filepath.Base(job.Output), filepath.Ext(job.Output))

	work, err := os.MkdirTemp(filepath.Dir(job.FrameDir), ".video-*")
	if err != nil {
		return faults.Wrap(faults.ErrTransient, "videoenc", "encode", "create work directory", err)
	}
	defer os.RemoveAll(work)

	intermediate := filepath.Join(work, stem+".mkv")
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-framerate", strconv.Itoa(job.FPS),
		"-i", filepath.Join(job.FrameDir, FramePattern),
		"-c:v", "ffv1", "-pix_fmt", "yuv444p",
		intermediate,
	}
	if out, err := p.run(ctx, p.ffmpeg, args...); err != nil {
		return faults.Wrap(faults.ErrExternalTool, "videoenc", "assemble frames",
			strings.TrimSpace(string(out)), err)
	}

	encodeDir := filepath.Join(work, "av1")
	produced, err := p.transcoder.Transcode(ctx, intermediate, encodeDir)
	if err != nil {
		return faults.Wrap(faults.ErrExternalTool, "videoenc", "transcode", filepath.Base(intermediate), err)
	}
	if err := os.Rename(produced, job.Output); err != nil {
		return faults.Wrap(faults.ErrTransient, "videoenc", "encode", "move encoded video", err)
	}
	p.logger.Debug("episode video encoded", logging.String("output", job.Output))
	return nil
}
