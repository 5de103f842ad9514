// ABOUTME: Post-synthesis audio artifact checks: file presence, plausible size,
// ABOUTME: and (when ffprobe is installed) a minimum playable duration.
package tts

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

const (
	// suspiciousAudioBytes flags files too small to hold real narration.
	suspiciousAudioBytes = 1000
	minAudioSeconds      = 0.1
)

// ValidateAudioFile checks a synthesized audio file and returns human-readable
// warnings for anything suspect. It never fails the synthesis; callers attach
// the warnings to the run instead.
func ValidateAudioFile(ctx context.Context, path string) []string {
	var warnings []string

	info, err := os.Stat(path)
	if err != nil {
		return []string{fmt.Sprintf("audio file missing after synthesis: %v", err)}
	}
	if info.Size() == 0 {
		return []string{"audio file is empty"}
	}
	if info.Size() < suspiciousAudioBytes {
		warnings = append(warnings, fmt.Sprintf("audio file suspiciously small (%d bytes)", info.Size()))
	}

	if dur, err := probeDuration(ctx, path); err == nil && dur < minAudioSeconds {
		warnings = append(warnings, fmt.Sprintf("audio duration %.2fs is below %.1fs", dur, minAudioSeconds))
	}
	return warnings
}

// probeDuration reads the stream duration with ffprobe. Missing ffprobe is not
// an error worth reporting; the size checks above still ran.
func probeDuration(ctx context.Context, path string) (float64, error) {
	if !lookPath("ffprobe") {
		return 0, fmt.Errorf("ffprobe not installed")
	}
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	return dur, nil
}
