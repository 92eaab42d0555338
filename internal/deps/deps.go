// Package deps locates the external binaries recording shells out to.
//
// Only ffmpeg is needed today, and only when episodes are encoded to video.
// A binary is probed for its version so preflight can print what a run will
// actually use.
package deps

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"domin/internal/faults"
)

const versionTimeout = 5 * time.Second

// Requirement is an external binary behind one dataset feature.
type Requirement struct {
	Name    string
	Command string
	// Feature is the config key that turns the requirement on, e.g. "dataset.video".
	Feature string
	// Enabled is false while Feature is off. A missing binary is then reported
	// but does not fail the check.
	Enabled bool
	// VersionArgs, when set, are passed to the resolved binary and the first
	// line of output is parsed for a version.
	VersionArgs []string
}

// Status is the lookup outcome for one Requirement.
type Status struct {
	Requirement
	// Path is the resolved binary; empty when lookup failed.
	Path    string
	Version string
	// Err is nil when Path resolved. It wraps faults.ErrExternalTool.
	Err error
}

// OK reports whether the requirement is satisfied for the current config.
func (s Status) OK() bool {
	return s.Err == nil || !s.Enabled
}

// Detail renders the status for a preflight line.
func (s Status) Detail() string {
	switch {
	case s.Err == nil && s.Version != "":
		return fmt.Sprintf("%s (%s)", s.Path, s.Version)
	case s.Err == nil:
		return s.Path
	case !s.Enabled:
		return fmt.Sprintf("%v; unused while %s is off", s.Err, s.Feature)
	default:
		return fmt.Sprintf("%v; required by %s", s.Err, s.Feature)
	}
}

// CheckBinaries resolves every requirement and probes versions where asked.
func CheckBinaries(ctx context.Context, requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		results = append(results, check(ctx, req))
	}
	return results
}

func check(ctx context.Context, req Requirement) Status {
	status := Status{Requirement: req}
	if req.Command == "" {
		status.Err = faults.Wrap(faults.ErrExternalTool, "deps", "lookup", req.Name+" command not configured", nil)
		return status
	}
	resolved, err := exec.LookPath(req.Command)
	if err != nil {
		status.Err = faults.Wrap(faults.ErrExternalTool, "deps", "lookup", fmt.Sprintf("binary %q not found", req.Command), err)
		return status
	}
	status.Path = resolved
	if len(req.VersionArgs) > 0 {
		status.Version = probeVersion(ctx, resolved, req.VersionArgs)
	}
	return status
}

// probeVersion returns the third field of the first output line, which is
// where ffmpeg-style tools print their version. Failures yield "".
func probeVersion(ctx context.Context, path string, args []string) string {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, args...).Output()
	if err != nil {
		return ""
	}
	line, _, _ := bytes.Cut(out, []byte("\n"))
	fields := strings.Fields(string(line))
	if len(fields) < 3 || fields[1] != "version" {
		return ""
	}
	return fields[2]
}
