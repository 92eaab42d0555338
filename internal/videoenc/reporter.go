package videoenc

import (
	"log/slog"

	draptolib "github.com/five82/drapto"

	"domin/internal/logging"
)

// reporter forwards drapto progress into structured logs. Progress lines
// are sampled per 25% bucket.
type reporter struct {
	logger  *slog.Logger
	sampler *logging.ProgressSampler
}

func newReporter(logger *slog.Logger) *reporter {
	return &reporter{logger: logger, sampler: logging.NewProgressSampler(25)}
}

func (r *reporter) Hardware(draptolib.HardwareSummary) {}

func (r *reporter) Initialization(s draptolib.InitializationSummary) {
	r.logger.Debug("encode initialized", logging.Any("input", s.InputFile), logging.Any("resolution", s.Resolution))
}

func (r *reporter) StageProgress(draptolib.StageProgress) {}

func (r *reporter) CropResult(draptolib.CropSummary) {}

func (r *reporter) EncodingConfig(s draptolib.EncodingConfigSummary) {
	r.logger.Debug("encode config", logging.Any("encoder", s.Encoder), logging.Any("preset", s.Preset))
}

func (r *reporter) EncodingStarted(totalFrames uint64) {
	r.sampler = logging.NewProgressSampler(25)
	r.logger.Debug("encoding started", logging.Int64("total_frames", int64(totalFrames)))
}

func (r *reporter) EncodingProgress(s draptolib.ProgressSnapshot) {
	if !r.sampler.ShouldLog(int(s.Percent), 100) {
		return
	}
	r.logger.Debug("encoding progress", logging.Float64("percent", float64(s.Percent)), logging.Float64("fps", float64(s.FPS)))
}

func (r *reporter) ValidationComplete(s draptolib.ValidationSummary) {
	if !s.Passed {
		logging.WarnWithContext(r.logger, "encoded video failed validation", "video_validation_failed",
			logging.String(logging.FieldImpact, "episode video may be unusable"),
			logging.String(logging.FieldErrorHint, "inspect the run log for drapto validation steps"),
		)
	}
}

func (r *reporter) EncodingComplete(s draptolib.EncodingOutcome) {
	r.logger.Debug("encoding complete",
		logging.Any("output", s.OutputPath),
		logging.Int64("encoded_bytes", int64(s.EncodedSize)),
	)
}

func (r *reporter) Warning(message string) {
	logging.WarnWithContext(r.logger, "drapto warning", "drapto_warning", logging.String("detail", message))
}

func (r *reporter) Error(e draptolib.ReporterError) {
	logging.ErrorWithContext(r.logger, "drapto error", "drapto_error",
		logging.Any("title", e.Title),
		logging.Any("detail", e.Message),
		logging.Any(logging.FieldErrorHint, e.Suggestion),
	)
}

func (r *reporter) OperationComplete(string) {}

func (r *reporter) BatchStarted(draptolib.BatchStartInfo) {}

func (r *reporter) FileProgress(draptolib.FileProgressContext) {}

func (r *reporter) BatchComplete(draptolib.BatchSummary) {}

var _ draptolib.Reporter = (*reporter)(nil)
