package videoenc_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"domin/internal/faults"
	"domin/internal/videoenc"
)

type fakeTranscoder struct {
	inputs []string
	err    error
}

func (f *fakeTranscoder) Transcode(_ context.Context, input, outputDir string) (string, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return "", f.err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}
	out := filepath.Join(outputDir, filepath.Base(input))
	return out, os.WriteFile(out, []byte("av1"), 0o644)
}

func TestPipelineAssemblesThenTranscodes(t *testing.T) {
	root := t.TempDir()
	frames := filepath.Join(root, "staging", "front")
	if err := os.MkdirAll(frames, 0o755); err != nil {
		t.Fatal(err)
	}
	var ffmpegArgs []string
	runner := func(_ context.Context, name string, args ...string) ([]byte, error) {
		if name != "ffmpeg" {
			t.Fatalf("unexpected binary %q", name)
		}
		ffmpegArgs = args
		return nil, os.WriteFile(args[len(args)-1], []byte("ffv1"), 0o644)
	}
	transcoder := &fakeTranscoder{}
	pipeline := videoenc.NewPipeline(videoenc.Options{Runner: runner, Transcoder: transcoder})

	output := filepath.Join(root, "videos", "front", "episode_000002.mkv")
	if err := pipeline.Encode(context.Background(), videoenc.Job{FrameDir: frames, FPS: 30, Output: output}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	data, err := os.ReadFile(output)
	if err != nil || string(data) != "av1" {
		t.Fatalf("expected transcoded output, got %q err=%v", data, err)
	}
	if !slices.Contains(ffmpegArgs, "ffv1") || !slices.Contains(ffmpegArgs, "30") {
		t.Fatalf("unexpected ffmpeg args %v", ffmpegArgs)
	}
	if !slices.Contains(ffmpegArgs, filepath.Join(frames, videoenc.FramePattern)) {
		t.Fatalf("ffmpeg input pattern missing: %v", ffmpegArgs)
	}
	if len(transcoder.inputs) != 1 || filepath.Base(transcoder.inputs[0]) != "episode_000002.mkv" {
		t.Fatalf("unexpected transcoder inputs %v", transcoder.inputs)
	}
	leftovers, _ := filepath.Glob(filepath.Join(root, "staging", ".video-*"))
	if len(leftovers) != 0 {
		t.Fatalf("work directory not removed: %v", leftovers)
	}
}

func TestPipelineReportsFFmpegFailure(t *testing.T) {
	root := t.TempDir()
	runner := func(context.Context, string, ...string) ([]byte, error) {
		return []byte("No such file\n"), errors.New("exit status 1")
	}
	transcoder := &fakeTranscoder{}
	pipeline := videoenc.NewPipeline(videoenc.Options{Runner: runner, Transcoder: transcoder})
	err := pipeline.Encode(context.Background(), videoenc.Job{
		FrameDir: filepath.Join(root, "front"),
		FPS:      30,
		Output:   filepath.Join(root, "videos", "front", "episode_000000.mkv"),
	})
	if !errors.Is(err, faults.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "No such file") {
		t.Fatalf("expected ffmpeg output in error, got %v", err)
	}
	if len(transcoder.inputs) != 0 {
		t.Fatal("transcoder must not run after ffmpeg failure")
	}
}

func TestPipelineRejectsZeroFPS(t *testing.T) {
	pipeline := videoenc.NewPipeline(videoenc.Options{Transcoder: &fakeTranscoder{}})
	err := pipeline.Encode(context.Background(), videoenc.Job{FrameDir: t.TempDir(), Output: filepath.Join(t.TempDir(), "x.mkv")})
	if !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFrameName(t *testing.T) {
	if got := videoenc.FrameName(12); got != "frame_000012.png" {
		t.Fatalf("FrameName(12) = %q", got)
	}
}
