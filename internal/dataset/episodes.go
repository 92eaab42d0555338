package dataset

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"domin/internal/faults"
	"domin/internal/logging"
	"domin/internal/videoenc"
)

// SaveEpisode commits buf as the next episode and returns its global index.
// Staged images are moved under images/ (or encoded under videos/) before
// the rows are written in one transaction. The buffer is empty afterwards.
func (d *Dataset) SaveEpisode(ctx context.Context, buf *EpisodeBuffer) (int, error) {
	if buf == nil || buf.Len() == 0 {
		return 0, faults.Wrap(faults.ErrValidation, "dataset", "save episode", "episode has no frames", nil)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, faults.Wrap(faults.ErrContract, "dataset", "save episode", "dataset closed", nil)
	}

	var episode int
	if err := d.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(episode_index) + 1, 0) FROM episodes").Scan(&episode); err != nil {
		return 0, faults.Wrap(faults.ErrTransient, "dataset", "save episode", "next episode index", err)
	}

	placed, err := d.placeMedia(ctx, buf, episode)
	if err != nil {
		removeAll(placed)
		return 0, err
	}
	if err := d.insertEpisode(ctx, buf, episode); err != nil {
		removeAll(placed)
		return 0, faults.Wrap(faults.ErrTransient, "dataset", "save episode", fmt.Sprintf("episode %d", episode), err)
	}

	d.logger.Info("episode saved",
		logging.Int(logging.FieldEpisodeIndex, episode),
		logging.Int(logging.FieldEnvIndex, buf.Env()),
		logging.Int("frames", buf.Len()),
		logging.String("task", buf.Task()),
	)
	if err := buf.Clear(); err != nil {
		d.logger.Debug("staging cleanup failed", logging.Error(err))
	}
	return episode, nil
}

// placeMedia moves or encodes every visual feature of buf and returns the
// paths it created.
func (d *Dataset) placeMedia(ctx context.Context, buf *EpisodeBuffer, episode int) ([]string, error) {
	var placed []string
	for _, key := range d.meta.VisualKeys() {
		staged := filepath.Join(buf.staging, key)
		if !dirExists(staged) {
			return placed, faults.Wrap(faults.ErrValidation, "dataset", "save episode",
				fmt.Sprintf("no staged images for %s", key), nil)
		}
		if d.meta.Video {
			out := d.VideoPath(key, episode)
			if err := d.encoder.Encode(ctx, videoenc.Job{FrameDir: staged, FPS: d.meta.FPS, Output: out}); err != nil {
				return placed, err
			}
			placed = append(placed, out)
			continue
		}
		dest := d.EpisodeDir(key, episode)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return placed, faults.Wrap(faults.ErrTransient, "dataset", "save episode", "create image directory", err)
		}
		if err := os.Rename(staged, dest); err != nil {
			return placed, faults.Wrap(faults.ErrTransient, "dataset", "save episode", "move staged images", err)
		}
		placed = append(placed, dest)
	}
	return placed, nil
}

func (d *Dataset) insertEpisode(ctx context.Context, buf *EpisodeBuffer, episode int) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin episode tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	taskIndex, err := upsertTask(ctx, tx, buf.Task())
	if err != nil {
		return err
	}
	var next int64
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(global_index) + 1, 0) FROM frames").Scan(&next); err != nil {
		return fmt.Errorf("next frame index: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO episodes (episode_index, task_index, env_index, length, created_at) VALUES (?, ?, ?, ?, ?)",
		episode, taskIndex, buf.Env(), buf.Len(), time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("insert episode: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO frames (global_index, episode_index, frame_index, timestamp, task_index, observation_state, action)
         VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare frame insert: %w", err)
	}
	defer stmt.Close()
	for i, f := range buf.frames {
		if _, err := stmt.ExecContext(ctx, next+int64(i), episode, i, f.Timestamp, taskIndex,
			encodeFloats(f.State), encodeFloats(f.Action)); err != nil {
			return fmt.Errorf("insert frame %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func upsertTask(ctx context.Context, tx *sql.Tx, task string) (int64, error) {
	var index int64
	err := tx.QueryRowContext(ctx, "SELECT task_index FROM tasks WHERE task = ?", task).Scan(&index)
	if err == nil {
		return index, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("lookup task: %w", err)
	}
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(task_index) + 1, 0) FROM tasks").Scan(&index); err != nil {
		return 0, fmt.Errorf("next task index: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO tasks (task_index, task) VALUES (?, ?)", index, task); err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	return index, nil
}

// Attempt is the outcome of one environment's episode.
type Attempt struct {
	RunID   string
	Env     int
	Label   string
	Success bool
	Height  float64
	// Episode is the committed episode index, or -1 when nothing was kept.
	Episode int
}

// RecordAttempt persists an outcome.
func (d *Dataset) RecordAttempt(ctx context.Context, a Attempt) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return faults.Wrap(faults.ErrContract, "dataset", "record attempt", "dataset closed", nil)
	}
	var episode any
	if a.Episode >= 0 {
		episode = a.Episode
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO attempts (run_id, env_index, label, success, height, episode_index, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.RunID, a.Env, a.Label, boolToInt(a.Success), a.Height, episode, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return faults.Wrap(faults.ErrTransient, "dataset", "record attempt", a.Label, err)
	}
	return nil
}

// LoadEpisode reads back the frames of a committed episode.
func (d *Dataset) LoadEpisode(ctx context.Context, episode int) ([]Frame, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT f.timestamp, f.observation_state, f.action, t.task
         FROM frames f JOIN tasks t ON t.task_index = f.task_index
         WHERE f.episode_index = ? ORDER BY f.frame_index`, episode)
	if err != nil {
		return nil, faults.Wrap(faults.ErrTransient, "dataset", "load episode", fmt.Sprintf("episode %d", episode), err)
	}
	defer rows.Close()
	var frames []Frame
	for rows.Next() {
		var (
			f             Frame
			state, action []byte
		)
		if err := rows.Scan(&f.Timestamp, &state, &action, &f.Task); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		f.State = decodeFloats(state)
		f.Action = decodeFloats(action)
		frames = append(frames, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, faults.Wrap(faults.ErrNotFound, "dataset", "load episode", fmt.Sprintf("episode %d", episode), nil)
	}
	return frames, nil
}

func encodeFloats(values []float32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}

func decodeFloats(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return out
}

func removeAll(paths []string) {
	for _, p := range paths {
		_ = os.RemoveAll(p)
	}
}
