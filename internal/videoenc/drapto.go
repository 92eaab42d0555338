package videoenc

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"

	draptolib "github.com/five82/drapto"

	"domin/internal/logging"
)

// Drapto transcodes with the drapto library in-process.
type Drapto struct {
	logger *slog.Logger
}

// NewDrapto returns a drapto-backed Transcoder.
func NewDrapto(logger *slog.Logger) *Drapto {
	return &Drapto{logger: logging.NewComponentLogger(logger, "drapto")}
}

func (d *Drapto) Transcode(ctx context.Context, input, outputDir string) (string, error) {
	if input == "" {
		return "", errors.New("input path required")
	}
	if strings.TrimSpace(outputDir) == "" {
		return "", errors.New("output directory required")
	}
	encoder, err := draptolib.New(draptolib.WithResponsive())
	if err != nil {
		return "", err
	}
	if _, err := encoder.EncodeWithReporter(ctx, input, outputDir, newReporter(d.logger)); err != nil {
		return "", err
	}
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	return filepath.Join(strings.TrimSpace(outputDir), stem+".mkv"), nil
}

var _ Transcoder = (*Drapto)(nil)
