// ABOUTME: Amazon Polly text-to-speech provider: the managed fallback behind
// ABOUTME: ElevenLabs, using the neural engine and mp3 output.
package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
)

// pollySynthClient is the slice of the Polly API the provider uses, split out
// so tests can inject a fake.
type pollySynthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// PollyConfig configures the Polly provider.
type PollyConfig struct {
	Region  string
	VoiceID string
	Engine  string
	Timeout time.Duration
}

// PollyConfigFromEnv reads configuration from AWS_REGION and POLLY_VOICE.
func PollyConfigFromEnv() PollyConfig {
	return PollyConfig{
		Region:  os.Getenv("AWS_REGION"),
		VoiceID: os.Getenv("POLLY_VOICE"),
	}
}

// Polly is the managed speech provider.
type Polly struct {
	mu     sync.Mutex
	client pollySynthClient
	cfg    PollyConfig
}

// NewPolly creates the provider. The AWS client is constructed lazily on
// first use so missing credentials surface as a synthesis failure, not a
// construction failure.
func NewPolly(cfg PollyConfig) *Polly {
	return NewPollyWithClient(cfg, nil)
}

// NewPollyWithClient creates the provider with an injected API client.
func NewPollyWithClient(cfg PollyConfig, client pollySynthClient) *Polly {
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}
	if strings.TrimSpace(cfg.VoiceID) == "" {
		cfg.VoiceID = "Joanna"
	}
	if strings.TrimSpace(cfg.Engine) == "" {
		cfg.Engine = "neural"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Polly{cfg: cfg, client: client}
}

func (p *Polly) Name() string { return "polly" }

// Available reports whether AWS credentials appear to be present. The SDK's
// full credential chain is broader than this check; a false negative just
// shifts the chain to the local provider.
func (p *Polly) Available() bool {
	if p.clientInjected() {
		return true
	}
	return os.Getenv("AWS_ACCESS_KEY_ID") != "" || os.Getenv("AWS_PROFILE") != "" || os.Getenv("AWS_ROLE_ARN") != ""
}

func (p *Polly) clientInjected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client != nil
}

func (p *Polly) Synthesize(ctx context.Context, text, voice, outputPath string) error {
	client, err := p.resolveClient(ctx)
	if err != nil {
		return err
	}

	engine := pollytypes.EngineStandard
	if strings.EqualFold(p.cfg.Engine, "neural") {
		engine = pollytypes.EngineNeural
	}
	voiceID := p.cfg.VoiceID
	if isPollyVoice(voice) {
		voiceID = voice
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	output, err := client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatMp3,
		Text:         &text,
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(voiceID),
	})
	if err != nil {
		return normalizePollyError(err)
	}
	if output == nil || output.AudioStream == nil {
		return fmt.Errorf("polly returned empty audio stream")
	}
	defer output.AudioStream.Close()

	out, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, output.AudioStream); err != nil {
		return fmt.Errorf("write audio: %w", err)
	}
	return nil
}

// isPollyVoice recognizes Polly voice IDs by their capitalized single-word
// form, distinguishing them from ElevenLabs-style names and IDs.
func isPollyVoice(voice string) bool {
	v := strings.TrimSpace(voice)
	if v == "" || strings.ContainsAny(v, " -_") {
		return false
	}
	return v[0] >= 'A' && v[0] <= 'Z' && len(v) < 16
}

func normalizePollyError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("polly %s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return fmt.Errorf("polly: %w", err)
}

func (p *Polly) resolveClient(ctx context.Context) (pollySynthClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(p.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	p.client = polly.NewFromConfig(awsCfg)
	return p.client, nil
}
