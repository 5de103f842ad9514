// ABOUTME: Local text-to-speech provider of last resort: shells out to edge-tts
// ABOUTME: or espeak-ng, whichever is on PATH, and needs no credentials.
package tts

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

const localDefaultVoice = "en-US-AriaNeural"

// Local synthesizes speech with a locally installed TTS binary. It is the
// final fallback in the chain; quality is lower but it works offline.
type Local struct{}

// NewLocal creates the provider.
func NewLocal() *Local {
	return &Local{}
}

func (p *Local) Name() string { return "local" }

// Available reports whether a supported TTS binary is on PATH.
func (p *Local) Available() bool {
	return lookPath("edge-tts") || lookPath("espeak-ng")
}

func (p *Local) Synthesize(ctx context.Context, text, voice, outputPath string) error {
	switch {
	case lookPath("edge-tts"):
		v := strings.TrimSpace(voice)
		if v == "" || !strings.Contains(v, "-") {
			// edge-tts needs a locale-qualified voice name
			v = localDefaultVoice
		}
		return runCommand(ctx, "edge-tts", "--text", text, "--voice", v, "--write-media", outputPath)
	case lookPath("espeak-ng"):
		return runCommand(ctx, "espeak-ng", "-w", outputPath, text)
	default:
		return fmt.Errorf("no local TTS binary found (tried edge-tts, espeak-ng)")
	}
}

func lookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}
