package deps

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ffmpegEnv overrides the ffmpeg binary used for episode video assembly.
const ffmpegEnv = "DOMIN_FFMPEG"

// ResolveFFmpegPath returns the ffmpeg binary to execute: DOMIN_FFMPEG when
// set, otherwise an ffmpeg sitting next to the running executable, otherwise
// "ffmpeg" from PATH.
func ResolveFFmpegPath() string {
	if override := strings.TrimSpace(os.Getenv(ffmpegEnv)); override != "" {
		return override
	}
	if self, err := os.Executable(); err == nil {
		if candidate, ok := sidecarCandidate(self); ok {
			if info, statErr := os.Stat(candidate); statErr == nil && isExecutable(info) {
				return candidate
			}
		}
	}
	if resolved, err := exec.LookPath("ffmpeg"); err == nil {
		return resolved
	}
	return "ffmpeg"
}

// FFmpegRequirement describes the ffmpeg used to assemble episode frames
// into video. It only gates a run when video is true.
func FFmpegRequirement(video bool) Requirement {
	return Requirement{
		Name:        "FFmpeg",
		Command:     ResolveFFmpegPath(),
		Feature:     "dataset.video",
		Enabled:     video,
		VersionArgs: []string{"-hide_banner", "-version"},
	}
}

func sidecarCandidate(executable string) (string, bool) {
	if executable == "" {
		return "", false
	}
	name := "ffmpeg"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(filepath.Dir(executable), name), true
}

func isExecutable(info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
