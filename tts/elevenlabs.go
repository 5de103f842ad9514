// ABOUTME: ElevenLabs text-to-speech provider: HTTP API with per-voice endpoints,
// ABOUTME: xi-api-key auth, and a friendly-name to voice-ID mapping.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	elevenLabsEndpoint     = "https://api.elevenlabs.io/v1/text-to-speech/"
	elevenLabsDefaultModel = "eleven_multilingual_v2"
	elevenLabsDefaultVoice = "rachel"
)

// elevenLabsVoices maps friendly voice names to ElevenLabs voice IDs.
var elevenLabsVoices = map[string]string{
	"rachel": "21m00Tcm4TlvDq8ikWAM",
	"domi":   "AZnzlk1XvdvUeBnXmlld",
	"bella":  "EXAVITQu4vr4xnSDxMaL",
	"antoni": "ErXwobaYiN019PkySvjV",
	"josh":   "TxGEqnHWrfWFTfGW9XjX",
	"adam":   "pNInz6obpgDQGcFmaJgB",
	"sam":    "yoZ06aMxZJJ28mfd3POQ",
}

// ElevenLabsConfig configures the ElevenLabs provider.
type ElevenLabsConfig struct {
	APIKey  string
	ModelID string
	Timeout time.Duration
}

// ElevenLabsConfigFromEnv reads configuration from ELEVENLABS_API_KEY.
func ElevenLabsConfigFromEnv() ElevenLabsConfig {
	return ElevenLabsConfig{APIKey: os.Getenv("ELEVENLABS_API_KEY")}
}

// ElevenLabs is the paid, highest-fidelity provider in the chain.
type ElevenLabs struct {
	cfg  ElevenLabsConfig
	http *http.Client
}

// NewElevenLabs creates the provider. A missing API key leaves the provider
// constructed but unavailable.
func NewElevenLabs(cfg ElevenLabsConfig) *ElevenLabs {
	if cfg.ModelID == "" {
		cfg.ModelID = elevenLabsDefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &ElevenLabs{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *ElevenLabs) Name() string { return "elevenlabs" }

func (p *ElevenLabs) Available() bool { return strings.TrimSpace(p.cfg.APIKey) != "" }

func (p *ElevenLabs) Synthesize(ctx context.Context, text, voice, outputPath string) error {
	voiceID := resolveElevenLabsVoice(voice)

	body, err := json.Marshal(map[string]any{
		"model_id": p.cfg.ModelID,
		"text":     text,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, elevenLabsEndpoint+voiceID, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("elevenlabs returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("write audio: %w", err)
	}
	return nil
}

// resolveElevenLabsVoice maps a friendly name to a voice ID. A string that is
// not a known name is assumed to already be a voice ID.
func resolveElevenLabsVoice(voice string) string {
	name := strings.ToLower(strings.TrimSpace(voice))
	if name == "" {
		name = elevenLabsDefaultVoice
	}
	if id, ok := elevenLabsVoices[name]; ok {
		return id
	}
	return voice
}
