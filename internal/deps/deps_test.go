package deps

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"domin/internal/faults"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present, Feature: "dataset.video", Enabled: true},
		{Name: "Missing", Command: "clearly-not-present-binary", Feature: "dataset.video", Enabled: true},
		{Name: "Blank", Command: "  ", Feature: "dataset.video", Enabled: true},
	}

	results := CheckBinaries(context.Background(), reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].OK() || results[0].Path != present || results[0].Detail() != present {
		t.Fatalf("expected first requirement to resolve, got %#v", results[0])
	}
	if results[1].OK() || results[1].Path != "" {
		t.Fatalf("expected missing binary to fail, got %#v", results[1])
	}
	if !errors.Is(results[1].Err, faults.ErrExternalTool) || !errors.Is(results[1].Err, exec.ErrNotFound) {
		t.Fatalf("expected external tool error wrapping exec.ErrNotFound, got %v", results[1].Err)
	}
	if !strings.Contains(results[1].Detail(), "required by dataset.video") {
		t.Fatalf("expected detail to name the feature, got %q", results[1].Detail())
	}
	if results[2].OK() || !strings.Contains(results[2].Detail(), "not configured") {
		t.Fatalf("unexpected status for blank command: %#v", results[2])
	}
}

func TestCheckBinariesDisabledFeatureNeverFails(t *testing.T) {
	results := CheckBinaries(context.Background(), []Requirement{
		{Name: "FFmpeg", Command: "clearly-not-present-binary", Feature: "dataset.video"},
	})
	if !results[0].OK() {
		t.Fatalf("expected disabled requirement to pass, got %#v", results[0])
	}
	if !strings.Contains(results[0].Detail(), "unused while dataset.video is off") {
		t.Fatalf("unexpected detail %q", results[0].Detail())
	}
}

func TestCheckBinariesReadsVersion(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stub")
	}
	stub := filepath.Join(t.TempDir(), "ffmpeg")
	script := []byte("#!/bin/sh\necho 'ffmpeg version 6.1.1 Copyright (c) 2000-2023'\necho 'built with gcc'\n")
	if err := os.WriteFile(stub, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	got := CheckBinaries(context.Background(), []Requirement{
		{Name: "FFmpeg", Command: stub, Enabled: true, VersionArgs: []string{"-hide_banner", "-version"}},
	})[0]
	if got.Version != "6.1.1" {
		t.Fatalf("expected version 6.1.1, got %q", got.Version)
	}
	if want := stub + " (6.1.1)"; got.Detail() != want {
		t.Fatalf("expected detail %q, got %q", want, got.Detail())
	}
}

func TestResolveFFmpegPathPrefersOverride(t *testing.T) {
	t.Setenv(ffmpegEnv, "/opt/ffmpeg/bin/ffmpeg")
	if got := ResolveFFmpegPath(); got != "/opt/ffmpeg/bin/ffmpeg" {
		t.Fatalf("expected override, got %q", got)
	}
}

func TestResolveFFmpegPathFallsBackToPath(t *testing.T) {
	binDir := t.TempDir()
	ffmpegPath := filepath.Join(binDir, executableName("ffmpeg"))
	if err := os.WriteFile(ffmpegPath, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write ffmpeg stub: %v", err)
	}
	t.Setenv(ffmpegEnv, "")
	t.Setenv("PATH", binDir)

	if got := ResolveFFmpegPath(); got != ffmpegPath {
		t.Fatalf("expected %q, got %q", ffmpegPath, got)
	}
}

func TestFFmpegRequirementFollowsVideo(t *testing.T) {
	t.Setenv(ffmpegEnv, "ffmpeg")
	if req := FFmpegRequirement(false); req.Enabled {
		t.Fatal("expected ffmpeg to be disabled without video")
	}
	req := FFmpegRequirement(true)
	if !req.Enabled || req.Feature != "dataset.video" || len(req.VersionArgs) == 0 {
		t.Fatalf("unexpected requirement with video: %#v", req)
	}
}

func TestSidecarCandidate(t *testing.T) {
	got, ok := sidecarCandidate(filepath.Join("opt", "domin", "domin"))
	if !ok || got != filepath.Join("opt", "domin", executableName("ffmpeg")) {
		t.Fatalf("unexpected sidecar %q %v", got, ok)
	}
	if _, ok := sidecarCandidate(""); ok {
		t.Fatal("expected no candidate for empty path")
	}
}

func executableName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}
