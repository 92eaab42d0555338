package dataset

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes. Older datasets must
// be re-recorded.
const schemaVersion = 1

// ErrSchemaVersion indicates meta.db was written by a different schema.
var ErrSchemaVersion = errors.New("dataset schema version mismatch")

func (d *Dataset) checkSchema(ctx context.Context) error {
	var tableExists int
	err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return fmt.Errorf("%w: meta.db has no schema_version table", ErrSchemaVersion)
	}
	var version int
	if err := d.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: dataset has version %d, expected %d", ErrSchemaVersion, version, schemaVersion)
	}
	return nil
}

func (d *Dataset) createSchema(ctx context.Context, repoID string, meta Meta, createdAt string) error {
	features, err := meta.featuresJSON()
	if err != nil {
		return err
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO info (id, repo_id, robot_type, fps, video, features_json, created_at) VALUES (1, ?, ?, ?, ?, ?, ?)`,
		repoID, meta.RobotType, meta.FPS, boolToInt(meta.Video), features, createdAt,
	); err != nil {
		return fmt.Errorf("record info: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
