package recorder_test

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"domin/internal/dataset"
	"domin/internal/faults"
	"domin/internal/geom"
	"domin/internal/hub"
	"domin/internal/recorder"
	"domin/internal/scene"
)

func tinyManifest() scene.Manifest {
	return scene.Manifest{
		Robot: scene.RobotSpec{
			Name:       "robot",
			ArmJoints:  []string{"arm_x", "arm_y"},
			HandJoints: []string{"finger"},
			EEBody:     "palm",
			Limits:     [][2]float64{{-1, 1}, {-1, 1}, {0, 1}},
		},
		Objects: []scene.ObjectSpec{{Name: "object_cube", Size: geom.Vec3{X: 0.05, Y: 0.05, Z: 0.05}}},
		Cameras: []scene.CameraSpec{{Name: "front", Width: 8, Height: 6}},
	}
}

func baseOptions(root string) recorder.Options {
	return recorder.Options{
		Root:          root,
		RepoID:        "local/test",
		RobotType:     "kuka_allegro",
		FPS:           30,
		DefaultTask:   "pick up the cube",
		Manifest:      tinyManifest(),
		NumEnvs:       2,
		WriterShards:  1,
		WriterWorkers: 2,
	}
}

func openGroup(t *testing.T, opts recorder.Options) *recorder.Group {
	t.Helper()
	g, err := recorder.Open(context.Background(), opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = g.Close(context.Background()) })
	return g
}

func observation(w, h int) recorder.Observation {
	return recorder.Observation{
		Joints: []float64{0.1, 0.2, 0.3},
		Images: map[string]image.Image{"front": image.NewRGBA(image.Rect(0, 0, w, h))},
	}
}

func step(t *testing.T, r *recorder.Recorder, n int) {
	t.Helper()
	for range n {
		if err := r.Step(observation(8, 6), []float64{0, 0, 1}); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}
}

func TestFeaturesFollowManifest(t *testing.T) {
	features := recorder.Features(tinyManifest(), false)
	state := features[dataset.KeyObservationState]
	if state.DType != dataset.DTypeFloat32 || len(state.Shape) != 1 || state.Shape[0] != 3 {
		t.Fatalf("unexpected state feature %+v", state)
	}
	if state.Names[2] != "finger" {
		t.Fatalf("unexpected joint names %v", state.Names)
	}
	front := features["observation.images.front"]
	if front.DType != dataset.DTypeImage || front.Shape[0] != 6 || front.Shape[1] != 8 || front.Shape[2] != 3 {
		t.Fatalf("unexpected camera feature %+v", front)
	}
	if got := recorder.Features(tinyManifest(), true)["observation.images.front"].DType; got != dataset.DTypeVideo {
		t.Fatalf("expected video dtype, got %s", got)
	}
}

func TestNewEpisodeCommitsAndRelabels(t *testing.T) {
	g := openGroup(t, baseOptions(filepath.Join(t.TempDir(), "ds")))
	ctx := context.Background()
	r := g.Recorder(0)

	if idx, err := r.NewEpisode(ctx, "relabelled"); err != nil || idx != -1 {
		t.Fatalf("empty NewEpisode = %d, %v", idx, err)
	}
	if r.Task() != "relabelled" || r.Session().EpisodeIndex != 0 {
		t.Fatalf("empty NewEpisode should only relabel, got %q %+v", r.Task(), r.Session())
	}

	step(t, r, 4)
	idx, err := r.NewEpisode(ctx, "next")
	if err != nil {
		t.Fatalf("NewEpisode: %v", err)
	}
	if idx != 0 {
		t.Fatalf("expected episode 0, got %d", idx)
	}
	if s := r.Session(); s.EpisodeIndex != 1 || s.StepCount != 0 {
		t.Fatalf("unexpected session %+v", s)
	}

	frames, err := g.Dataset().LoadEpisode(ctx, 0)
	if err != nil {
		t.Fatalf("LoadEpisode: %v", err)
	}
	if len(frames) != 4 || frames[0].Task != "relabelled" {
		t.Fatalf("unexpected frames %+v", frames)
	}
	if frames[1].Timestamp <= frames[0].Timestamp {
		t.Fatalf("timestamps not increasing: %v %v", frames[0].Timestamp, frames[1].Timestamp)
	}
	entries, err := os.ReadDir(g.Dataset().EpisodeDir("observation.images.front", 0))
	if err != nil || len(entries) != 4 {
		t.Fatalf("expected 4 committed images, got %d (%v)", len(entries), err)
	}
}

func TestRerecordKeepsEpisodeIndex(t *testing.T) {
	g := openGroup(t, baseOptions(filepath.Join(t.TempDir(), "ds")))
	r := g.Recorder(1)

	step(t, r, 10)
	if err := r.Rerecord(); err != nil {
		t.Fatalf("Rerecord: %v", err)
	}
	s := r.Session()
	if s.StepCount != 0 || s.RerecordCount != 1 || s.EpisodeIndex != 0 {
		t.Fatalf("unexpected session after rerecord %+v", s)
	}
	summary, err := g.Dataset().Info(context.Background())
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if summary.Episodes != 0 {
		t.Fatalf("rerecord must not commit, got %d episodes", summary.Episodes)
	}
}

func TestStepRejectsShapeMismatch(t *testing.T) {
	g := openGroup(t, baseOptions(filepath.Join(t.TempDir(), "ds")))
	r := g.Recorder(0)

	cases := map[string]func() error{
		"joints": func() error {
			return r.Step(recorder.Observation{Joints: []float64{1}, Images: observation(8, 6).Images}, []float64{0, 0, 0})
		},
		"action": func() error { return r.Step(observation(8, 6), []float64{0}) },
		"camera size": func() error {
			return r.Step(observation(4, 4), []float64{0, 0, 0})
		},
		"missing camera": func() error {
			return r.Step(recorder.Observation{Joints: []float64{0, 0, 0}}, []float64{0, 0, 0})
		},
	}
	for name, fn := range cases {
		if err := fn(); !errors.Is(err, faults.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
	if r.Session().StepCount != 0 {
		t.Fatalf("rejected frames must not count")
	}
}

func TestCloseCommitsPartialEpisodesOnce(t *testing.T) {
	root := filepath.Join(t.TempDir(), "ds")
	g, err := recorder.Open(context.Background(), baseOptions(root))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	step(t, g.Recorder(0), 3)
	step(t, g.Recorder(1), 2)
	if err := g.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := g.Close(context.Background()); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	summary, err := dataset.Inspect(context.Background(), root)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if summary.Episodes != 2 || summary.Frames != 5 {
		t.Fatalf("expected 2 episodes with 5 frames, got %d/%d", summary.Episodes, summary.Frames)
	}
	if err := g.Recorder(0).Step(observation(8, 6), []float64{0, 0, 0}); !errors.Is(err, faults.ErrContract) {
		t.Fatalf("expected contract error after close, got %v", err)
	}
}

func TestExistingDatasetRequiresResume(t *testing.T) {
	root := filepath.Join(t.TempDir(), "ds")
	g, err := recorder.Open(context.Background(), baseOptions(root))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = g.Close(context.Background())

	if _, err := recorder.Open(context.Background(), baseOptions(root)); !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	opts := baseOptions(root)
	opts.Resume = true
	resumed := openGroup(t, opts)
	step(t, resumed.Recorder(0), 2)
	idx, err := resumed.Recorder(0).NewEpisode(context.Background(), "pick up the cube")
	if err != nil {
		t.Fatalf("NewEpisode: %v", err)
	}
	if idx != 0 {
		t.Fatalf("expected first episode index 0, got %d", idx)
	}
}

func TestResumeReportsSchemaMismatch(t *testing.T) {
	root := filepath.Join(t.TempDir(), "ds")
	g, err := recorder.Open(context.Background(), baseOptions(root))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = g.Close(context.Background())

	opts := baseOptions(root)
	opts.Resume = true
	opts.FPS = 60
	_, err = recorder.Open(context.Background(), opts)
	if !errors.Is(err, recorder.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
	var mismatch *recorder.SchemaMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected *SchemaMismatchError, got %T", err)
	}
	if len(mismatch.Mismatches) != 1 {
		t.Fatalf("expected one mismatch, got %+v", mismatch.Mismatches)
	}
	m := mismatch.Mismatches[0]
	if m.Field != "fps" || m.Expected != "60" || m.Got != "30" {
		t.Fatalf("unexpected mismatch %+v", m)
	}
}

func TestValidateSchemaListsFeatureDifferences(t *testing.T) {
	expected := recorder.BuildMeta(tinyManifest(), "kuka_allegro", 30, false)
	other := tinyManifest()
	other.Cameras = []scene.CameraSpec{{Name: "side", Width: 8, Height: 6}}
	got := recorder.BuildMeta(other, "franka", 30, false)

	err := recorder.ValidateSchema(expected, got)
	var mismatch *recorder.SchemaMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	fields := mismatch.Fields()
	want := []string{"robot_type", "features.observation.images.front", "features.observation.images.side"}
	if len(fields) != len(want) {
		t.Fatalf("fields = %v, want %v", fields, want)
	}
	for i := range want {
		if fields[i] != want[i] {
			t.Fatalf("fields = %v, want %v", fields, want)
		}
	}
	if err := recorder.ValidateSchema(expected, expected); err != nil {
		t.Fatalf("identical schema reported %v", err)
	}
}

type recordingPublisher struct {
	roots []string
	opts  []hub.PushOptions
}

func (p *recordingPublisher) Push(_ context.Context, root string, opts hub.PushOptions) (hub.PushResult, error) {
	p.roots = append(p.roots, root)
	p.opts = append(p.opts, opts)
	return hub.PushResult{Files: 1}, nil
}

func TestClosePublishesWhenEnabled(t *testing.T) {
	root := filepath.Join(t.TempDir(), "ds")
	pub := &recordingPublisher{}
	opts := baseOptions(root)
	opts.Publisher = pub
	opts.PushToHub = true
	opts.Push = hub.PushOptions{Tags: []string{"sim"}, Private: true}

	g, err := recorder.Open(context.Background(), opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	step(t, g.Recorder(0), 1)
	if err := g.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(pub.roots) != 1 || pub.roots[0] != root {
		t.Fatalf("expected one push of %s, got %v", root, pub.roots)
	}
	if pub.opts[0].RepoID != "local/test" || !pub.opts[0].Private {
		t.Fatalf("unexpected push options %+v", pub.opts[0])
	}
}

// waitForStaged polls until pattern under root matches want files and
// returns the matches.
func waitForStaged(t *testing.T, root, pattern string, want int) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		matches, err := filepath.Glob(filepath.Join(root, ".staging", pattern))
		if err != nil {
			t.Fatalf("Glob: %v", err)
		}
		if len(matches) == want {
			return matches
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("staged files matching %q did not reach %d within 5s", pattern, want)
	return nil
}

func TestWriteFailureStaysWithItsEnvironment(t *testing.T) {
	root := filepath.Join(t.TempDir(), "ds")
	g := openGroup(t, baseOptions(root))
	ctx := context.Background()
	r0, r1 := g.Recorder(0), g.Recorder(1)

	step(t, r1, 1)
	first := waitForStaged(t, root, "*/observation.images.front/frame_000000.png", 1)
	blocked := filepath.Join(filepath.Dir(first[0]), "frame_000001.png")
	if err := os.MkdirAll(filepath.Join(blocked, "occupied"), 0o755); err != nil {
		t.Fatalf("block frame path: %v", err)
	}
	step(t, r1, 1)

	step(t, r0, 2)
	if err := r0.Rerecord(); err != nil {
		t.Fatalf("env 0 Rerecord: %v", err)
	}

	idx, err := r1.NewEpisode(ctx, "next")
	if err == nil {
		t.Fatalf("env 1 committed episode %d despite a failed frame write", idx)
	}
	if !errors.Is(err, faults.ErrTransient) {
		t.Fatalf("expected transient write error, got %v", err)
	}
	if r1.Session().StepCount != 2 {
		t.Fatalf("failed commit must keep the buffered frames, StepCount=%d", r1.Session().StepCount)
	}
	if _, err := r1.NewEpisode(ctx, "next"); err == nil {
		t.Fatal("a retried commit must keep failing until the episode is rerecorded")
	}
	if err := r1.Rerecord(); err != nil {
		t.Fatalf("env 1 Rerecord: %v", err)
	}
	if r1.Session().StepCount != 0 {
		t.Fatalf("Rerecord must reset StepCount, got %d", r1.Session().StepCount)
	}

	step(t, r0, 3)
	if idx, err := r0.NewEpisode(ctx, "next"); err != nil || idx != 0 {
		t.Fatalf("env 0 commit: idx=%d err=%v", idx, err)
	}
	info, err := g.Dataset().Info(ctx)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Episodes != 1 || info.Frames != 3 {
		t.Fatalf("expected only env 0's episode, got %d episodes / %d frames", info.Episodes, info.Frames)
	}
	images, err := os.ReadDir(g.Dataset().EpisodeDir("observation.images.front", 0))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(images) != 3 {
		t.Fatalf("episode 0 has %d images, want 3", len(images))
	}
}

func TestRerecordKeepsCountersWhenStagingCannotBeRemoved(t *testing.T) {
	root := filepath.Join(t.TempDir(), "ds")
	opts := baseOptions(root)
	opts.NumEnvs = 1
	g := openGroup(t, opts)
	r := g.Recorder(0)

	step(t, r, 2)
	waitForStaged(t, root, "*/observation.images.front/frame_*.png", 2)
	staging := filepath.Join(root, ".staging")
	if err := os.RemoveAll(staging); err != nil {
		t.Fatalf("remove staging: %v", err)
	}
	if err := os.WriteFile(staging, []byte("x"), 0o644); err != nil {
		t.Fatalf("replace staging: %v", err)
	}

	if err := r.Rerecord(); err == nil {
		t.Fatal("expected Rerecord to fail when staged images cannot be removed")
	}
	if got := r.Session(); got.StepCount != 2 || got.RerecordCount != 0 {
		t.Fatalf("session changed by a failed Rerecord: %+v", got)
	}

	if err := os.Remove(staging); err != nil {
		t.Fatalf("restore staging: %v", err)
	}
	if err := r.Rerecord(); err != nil {
		t.Fatalf("Rerecord: %v", err)
	}
	if got := r.Session(); got.StepCount != 0 || got.RerecordCount != 1 {
		t.Fatalf("unexpected session after Rerecord: %+v", got)
	}
}
