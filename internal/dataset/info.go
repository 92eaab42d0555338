package dataset

import (
	"context"
	"fmt"
	"path/filepath"

	"domin/internal/faults"
)

// LabelCount is how often an attempt label occurred.
type LabelCount struct {
	Label string
	Count int
}

// Summary describes a dataset for reporting.
type Summary struct {
	Root      string
	RepoID    string
	Meta      Meta
	Episodes  int
	Frames    int
	Tasks     []string
	Attempts  int
	Successes int
	Labels    []LabelCount
}

// SuccessRate returns Successes / Attempts, or 0 without attempts.
func (s Summary) SuccessRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Attempts)
}

// Info summarizes the dataset.
func (d *Dataset) Info(ctx context.Context) (Summary, error) {
	s := Summary{Root: d.root, RepoID: d.repoID, Meta: d.meta}
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM episodes").Scan(&s.Episodes); err != nil {
		return Summary{}, faults.Wrap(faults.ErrTransient, "dataset", "info", "count episodes", err)
	}
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM frames").Scan(&s.Frames); err != nil {
		return Summary{}, faults.Wrap(faults.ErrTransient, "dataset", "info", "count frames", err)
	}
	if err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(1), COALESCE(SUM(success), 0) FROM attempts").Scan(&s.Attempts, &s.Successes); err != nil {
		return Summary{}, faults.Wrap(faults.ErrTransient, "dataset", "info", "count attempts", err)
	}
	tasks, err := d.db.QueryContext(ctx, "SELECT task FROM tasks ORDER BY task_index")
	if err != nil {
		return Summary{}, faults.Wrap(faults.ErrTransient, "dataset", "info", "list tasks", err)
	}
	defer tasks.Close()
	for tasks.Next() {
		var task string
		if err := tasks.Scan(&task); err != nil {
			return Summary{}, fmt.Errorf("scan task: %w", err)
		}
		s.Tasks = append(s.Tasks, task)
	}
	if err := tasks.Err(); err != nil {
		return Summary{}, err
	}
	labels, err := d.Stats(ctx)
	if err != nil {
		return Summary{}, err
	}
	s.Labels = labels
	return s, nil
}

// Stats counts attempt labels, most frequent first.
func (d *Dataset) Stats(ctx context.Context) ([]LabelCount, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT label, COUNT(1) AS n FROM attempts GROUP BY label ORDER BY n DESC, label")
	if err != nil {
		return nil, faults.Wrap(faults.ErrTransient, "dataset", "stats", "count labels", err)
	}
	defer rows.Close()
	var out []LabelCount
	for rows.Next() {
		var lc LabelCount
		if err := rows.Scan(&lc.Label, &lc.Count); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}

// Inspect summarizes the dataset at root without taking the writer lock,
// so it works while a recorder is running.
func Inspect(ctx context.Context, root string) (Summary, error) {
	if !Exists(root) {
		return Summary{}, faults.Wrap(faults.ErrNotFound, "dataset", "inspect", fmt.Sprintf("no dataset at %s", root), nil)
	}
	db, err := openDB(ctx, filepath.Join(root, metaDBName))
	if err != nil {
		return Summary{}, faults.Wrap(faults.ErrTransient, "dataset", "inspect", "open meta.db", err)
	}
	defer db.Close()
	d := &Dataset{root: root, db: db}
	if err := d.checkSchema(ctx); err != nil {
		return Summary{}, faults.Wrap(faults.ErrValidation, "dataset", "inspect", "check schema", err)
	}
	if err := d.loadInfo(ctx); err != nil {
		return Summary{}, err
	}
	return d.Info(ctx)
}
