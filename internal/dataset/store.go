package dataset

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"domin/internal/faults"
	"domin/internal/logging"
	"domin/internal/videoenc"
)

const (
	metaDBName = "meta.db"
	lockName   = ".lock"
	stagingDir = ".staging"
	imagesDir  = "images"
	videosDir  = "videos"
)

// Dataset is an open, locked dataset root.
type Dataset struct {
	root    string
	repoID  string
	db      *sql.DB
	lock    *flock.Flock
	meta    Meta
	encoder videoenc.Encoder
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
}

// CreateOptions describes a new dataset.
type CreateOptions struct {
	Root    string
	RepoID  string
	Meta    Meta
	Encoder videoenc.Encoder
	Logger  *slog.Logger
}

// OpenOptions describes an existing dataset.
type OpenOptions struct {
	Root    string
	Encoder videoenc.Encoder
	Logger  *slog.Logger
}

// Exists reports whether root already holds a dataset.
func Exists(root string) bool {
	info, err := os.Stat(filepath.Join(root, metaDBName))
	return err == nil && !info.IsDir()
}

// Create initializes a dataset at opts.Root. The root may exist but must
// not already hold a dataset.
func Create(ctx context.Context, opts CreateOptions) (*Dataset, error) {
	if Exists(opts.Root) {
		return nil, faults.Wrap(faults.ErrValidation, "dataset", "create",
			fmt.Sprintf("%s already holds a dataset", opts.Root), nil)
	}
	if opts.Meta.FPS <= 0 {
		return nil, faults.Wrap(faults.ErrValidation, "dataset", "create", "fps must be positive", nil)
	}
	if opts.Meta.Video && opts.Encoder == nil {
		return nil, faults.Wrap(faults.ErrConfiguration, "dataset", "create", "video datasets need an encoder", nil)
	}
	if err := os.MkdirAll(opts.Root, 0o755); err != nil {
		return nil, faults.Wrap(faults.ErrConfiguration, "dataset", "create", "create root", err)
	}
	d, err := open(ctx, opts.Root, opts.Encoder, opts.Logger)
	if err != nil {
		return nil, err
	}
	if err := d.createSchema(ctx, opts.RepoID, opts.Meta, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		_ = d.Close()
		return nil, faults.Wrap(faults.ErrTransient, "dataset", "create", "initialize meta.db", err)
	}
	d.repoID = opts.RepoID
	d.meta = opts.Meta
	d.logger.Info("dataset created",
		logging.String("root", opts.Root),
		logging.Int("fps", opts.Meta.FPS),
		logging.Int("features", len(opts.Meta.Features)),
	)
	return d, nil
}

// Open locks and loads an existing dataset.
func Open(ctx context.Context, opts OpenOptions) (*Dataset, error) {
	if !Exists(opts.Root) {
		return nil, faults.Wrap(faults.ErrNotFound, "dataset", "open", fmt.Sprintf("no dataset at %s", opts.Root), nil)
	}
	d, err := open(ctx, opts.Root, opts.Encoder, opts.Logger)
	if err != nil {
		return nil, err
	}
	if err := d.checkSchema(ctx); err != nil {
		_ = d.Close()
		return nil, faults.Wrap(faults.ErrValidation, "dataset", "open", "check schema", err)
	}
	if err := d.loadInfo(ctx); err != nil {
		_ = d.Close()
		return nil, err
	}
	if d.meta.Video && d.encoder == nil {
		_ = d.Close()
		return nil, faults.Wrap(faults.ErrConfiguration, "dataset", "open", "video datasets need an encoder", nil)
	}
	if err := os.RemoveAll(filepath.Join(opts.Root, stagingDir)); err != nil {
		d.logger.Debug("stale staging cleanup failed", logging.Error(err))
	}
	return d, nil
}

func open(ctx context.Context, root string, encoder videoenc.Encoder, logger *slog.Logger) (*Dataset, error) {
	lock := flock.New(filepath.Join(root, lockName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, faults.Wrap(faults.ErrTransient, "dataset", "lock", root, err)
	}
	if !ok {
		return nil, faults.Wrap(faults.ErrContract, "dataset", "lock",
			fmt.Sprintf("%s is in use by another recorder", root), nil)
	}
	db, err := openDB(ctx, filepath.Join(root, metaDBName))
	if err != nil {
		_ = lock.Unlock()
		return nil, faults.Wrap(faults.ErrTransient, "dataset", "open", "open meta.db", err)
	}
	return &Dataset{
		root:    root,
		db:      db,
		lock:    lock,
		encoder: encoder,
		logger:  logging.NewComponentLogger(logger, "dataset"),
	}, nil
}

func openDB(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	return db, nil
}

func (d *Dataset) loadInfo(ctx context.Context) error {
	var (
		video    int
		features string
	)
	err := d.db.QueryRowContext(ctx, "SELECT repo_id, robot_type, fps, video, features_json FROM info WHERE id = 1").
		Scan(&d.repoID, &d.meta.RobotType, &d.meta.FPS, &video, &features)
	if err != nil {
		return faults.Wrap(faults.ErrValidation, "dataset", "open", "read info", err)
	}
	d.meta.Video = video != 0
	if err := json.Unmarshal([]byte(features), &d.meta.Features); err != nil {
		return faults.Wrap(faults.ErrValidation, "dataset", "open", "decode features", err)
	}
	return nil
}

// Root returns the dataset directory.
func (d *Dataset) Root() string { return d.root }

// RepoID returns the repository id the dataset was created for.
func (d *Dataset) RepoID() string { return d.repoID }

// Meta returns the schema the dataset was created with.
func (d *Dataset) Meta() Meta { return d.meta }

// Close releases the database and the writer lock. It is idempotent.
func (d *Dataset) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	err := d.db.Close()
	if unlockErr := d.lock.Unlock(); unlockErr != nil && err == nil {
		err = unlockErr
	}
	_ = os.RemoveAll(filepath.Join(d.root, stagingDir))
	return err
}

// EpisodeDir is where committed images of key for episode live.
func (d *Dataset) EpisodeDir(key string, episode int) string {
	return filepath.Join(d.root, imagesDir, key, fmt.Sprintf("episode_%06d", episode))
}

// VideoPath is where the committed video of key for episode lives.
func (d *Dataset) VideoPath(key string, episode int) string {
	return filepath.Join(d.root, videosDir, key, fmt.Sprintf("episode_%06d.mkv", episode))
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
