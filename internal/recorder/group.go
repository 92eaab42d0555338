package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"domin/internal/config"
	"domin/internal/dataset"
	"domin/internal/faults"
	"domin/internal/hub"
	"domin/internal/imagewriter"
	"domin/internal/logging"
	"domin/internal/scene"
	"domin/internal/videoenc"
)

// Options configures a Group.
type Options struct {
	Root        string
	RepoID      string
	RobotType   string
	FPS         int
	Video       bool
	Resume      bool
	DefaultTask string
	Manifest    scene.Manifest
	NumEnvs     int

	WriterShards  int
	WriterWorkers int

	Encoder   videoenc.Encoder
	Publisher hub.Publisher
	// Push is used only when PushToHub is set.
	PushToHub bool
	Push      hub.PushOptions

	Logger *slog.Logger
}

// OptionsFromConfig fills Options from a loaded configuration. Encoder and
// Publisher are left for the caller.
func OptionsFromConfig(cfg *config.Config, m scene.Manifest) Options {
	return Options{
		Root:          cfg.Paths.DatasetRoot,
		RepoID:        cfg.Dataset.RepoID,
		RobotType:     cfg.Dataset.RobotType,
		FPS:           cfg.Dataset.FPS,
		Video:         cfg.Dataset.Video,
		Resume:        cfg.Dataset.ResumeRecording,
		DefaultTask:   cfg.Dataset.DefaultTask,
		Manifest:      m,
		NumEnvs:       cfg.Simulation.NumEnvs,
		WriterShards:  cfg.Dataset.ImageWriterProcesses,
		WriterWorkers: cfg.ImageWriterThreads(len(m.Cameras)),
		PushToHub:     cfg.Dataset.PushToHub,
		Push: hub.PushOptions{
			RepoID:  cfg.Dataset.RepoID,
			Tags:    cfg.Dataset.Tags,
			Private: cfg.Dataset.Private,
		},
	}
}

// Group owns the dataset, the image writer and one Recorder per
// environment.
type Group struct {
	ds        *dataset.Dataset
	writer    *imagewriter.Writer
	recorders []*Recorder
	publisher hub.Publisher
	pushToHub bool
	push      hub.PushOptions
	logger    *slog.Logger
	closed    bool
}

// Open creates the dataset, or reopens it when resuming. Resuming checks
// the stored schema before any frame is recorded. An existing dataset is
// never reused without Resume.
func Open(ctx context.Context, opts Options) (*Group, error) {
	logger := logging.NewComponentLogger(opts.Logger, "recorder")
	if opts.NumEnvs <= 0 {
		return nil, faults.Wrap(faults.ErrValidation, "recorder", "open", "num_envs must be positive", nil)
	}
	if err := opts.Manifest.Validate(); err != nil {
		return nil, err
	}
	expected := BuildMeta(opts.Manifest, opts.RobotType, opts.FPS, opts.Video)

	var (
		ds  *dataset.Dataset
		err error
	)
	switch {
	case opts.Resume:
		ds, err = dataset.Open(ctx, dataset.OpenOptions{Root: opts.Root, Encoder: opts.Encoder, Logger: opts.Logger})
		if err != nil {
			return nil, err
		}
		if err := ValidateSchema(expected, ds.Meta()); err != nil {
			_ = ds.Close()
			return nil, err
		}
		logger.Info("resuming dataset", logging.String("root", opts.Root))
	case dataset.Exists(opts.Root):
		return nil, faults.Wrap(faults.ErrValidation, "recorder", "open",
			fmt.Sprintf("%s already holds a dataset; set resume_recording to append", opts.Root), nil)
	default:
		ds, err = dataset.Create(ctx, dataset.CreateOptions{
			Root:    opts.Root,
			RepoID:  opts.RepoID,
			Meta:    expected,
			Encoder: opts.Encoder,
			Logger:  opts.Logger,
		})
		if err != nil {
			return nil, err
		}
	}

	g := &Group{
		ds:        ds,
		writer:    imagewriter.New(imagewriter.Options{Shards: opts.WriterShards, Workers: opts.WriterWorkers, Logger: opts.Logger}),
		publisher: opts.Publisher,
		pushToHub: opts.PushToHub,
		push:      opts.Push,
		logger:    logger,
	}
	if g.push.RepoID == "" {
		g.push.RepoID = opts.RepoID
	}
	for env := range opts.NumEnvs {
		r, err := newRecorder(ds, g.writer, env, opts.DefaultTask, logger)
		if err != nil {
			_ = g.writer.Close()
			_ = ds.Close()
			return nil, err
		}
		g.recorders = append(g.recorders, r)
	}
	return g, nil
}

// Dataset exposes the shared store.
func (g *Group) Dataset() *dataset.Dataset { return g.ds }

// Len returns the number of recorders.
func (g *Group) Len() int { return len(g.recorders) }

// Recorder returns the recorder of env.
func (g *Group) Recorder(env int) *Recorder { return g.recorders[env] }

// Written returns the number of images the writer pool persisted.
func (g *Group) Written() int64 { return g.writer.Written() }

// Close finalizes every recorder, stops the writer, closes the dataset and
// then publishes it when pushing is enabled. It is safe to call more than
// once; only the first call does work.
func (g *Group) Close(ctx context.Context) error {
	if g.closed {
		return nil
	}
	g.closed = true

	var errs []error
	for _, r := range g.recorders {
		if _, err := r.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("env %d: %w", r.env, err))
		}
	}
	if err := g.writer.Close(); err != nil {
		errs = append(errs, err)
	}
	root := g.ds.Root()
	if err := g.ds.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	if !g.pushToHub || g.publisher == nil {
		return nil
	}
	result, err := g.publisher.Push(ctx, root, g.push)
	if err != nil {
		return err
	}
	g.logger.Info("dataset published", logging.Int("files", result.Files), logging.Int64("bytes", result.Bytes))
	return nil
}
