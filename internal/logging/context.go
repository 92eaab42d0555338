package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent names the subsystem emitting the line.
	FieldComponent = "component"
	// FieldRunID identifies one recording run.
	FieldRunID = "run_id"
	// FieldEnvIndex is the environment slot within the batch.
	FieldEnvIndex = "env_index"
	// FieldEpisodeIndex is the dataset-global episode index.
	FieldEpisodeIndex = "episode_index"
	// FieldPhase is the task phase name.
	FieldPhase = "phase"
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
)

type contextKey string

const (
	runIDKey    contextKey = "run_id"
	envIndexKey contextKey = "env_index"
)

// WithRunID stores the run identifier on ctx.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext returns the run identifier stored by WithRunID.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(runIDKey).(string)
	return id, ok && id != ""
}

// WithEnvIndex stores an environment index on ctx.
func WithEnvIndex(ctx context.Context, env int) context.Context {
	return context.WithValue(ctx, envIndexKey, env)
}

// EnvIndexFromContext returns the environment index stored by WithEnvIndex.
func EnvIndexFromContext(ctx context.Context) (int, bool) {
	if ctx == nil {
		return 0, false
	}
	env, ok := ctx.Value(envIndexKey).(int)
	return env, ok
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 2)
	if id, ok := RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if env, ok := EnvIndexFromContext(ctx); ok {
		fields = append(fields, slog.Int(FieldEnvIndex, env))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
