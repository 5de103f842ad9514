// ABOUTME: Speech synthesis provider contract and the ordered fallback chain that
// ABOUTME: tries each configured provider once and reports every attempt on failure.
package tts

import (
	"context"
	"fmt"
	"strings"
)

// Request describes one synthesis job. Provider optionally names the provider
// to try first; empty means chain priority order.
type Request struct {
	Text       string
	Voice      string
	OutputPath string
	Provider   string
}

// Attempt records one provider try within a chain invocation.
type Attempt struct {
	Provider string
	Reason   string
}

// Result reports a successful synthesis: which provider produced the file and
// any artifact validation warnings.
type Result struct {
	Provider string
	Path     string
	Warnings []string
	Attempts []Attempt
}

// Provider synthesizes speech to a file. Available reports whether the
// provider is usable in this environment (credentials present, binary on
// PATH); unavailable providers are skipped by the chain.
type Provider interface {
	Name() string
	Available() bool
	Synthesize(ctx context.Context, text, voice, outputPath string) error
}

// Synthesizer is the surface the pipeline depends on.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (*Result, error)
}

// Chain tries providers in priority order until one succeeds. Every provider
// is tried at most once per request; a request naming a provider tries that
// one first and falls back to the rest.
type Chain struct {
	providers []Provider
	validate  func(ctx context.Context, path string) []string
}

// NewChain creates a Chain with the given priority order.
func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers, validate: ValidateAudioFile}
}

// Synthesize runs the fallback sequence. It returns an error only when every
// candidate failed or was unavailable; the error names each one with its
// reason. Artifact validation problems after a success are returned as
// warnings on the Result, never as an error.
func (c *Chain) Synthesize(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("tts: text must not be empty")
	}
	if req.OutputPath == "" {
		return nil, fmt.Errorf("tts: output path must not be empty")
	}

	order, err := c.candidateOrder(req.Provider)
	if err != nil {
		return nil, err
	}

	var attempts []Attempt
	for _, p := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !p.Available() {
			attempts = append(attempts, Attempt{Provider: p.Name(), Reason: "not configured"})
			continue
		}
		if err := p.Synthesize(ctx, req.Text, req.Voice, req.OutputPath); err != nil {
			attempts = append(attempts, Attempt{Provider: p.Name(), Reason: err.Error()})
			continue
		}

		res := &Result{
			Provider: p.Name(),
			Path:     req.OutputPath,
			Attempts: attempts,
		}
		if c.validate != nil {
			res.Warnings = c.validate(ctx, req.OutputPath)
		}
		return res, nil
	}

	return nil, fmt.Errorf("tts: all providers failed: %s", describeAttempts(attempts))
}

// candidateOrder returns the providers to try. An explicitly requested
// provider must exist in the chain; it moves to the front.
func (c *Chain) candidateOrder(requested string) ([]Provider, error) {
	if requested == "" {
		return c.providers, nil
	}
	var first Provider
	for _, p := range c.providers {
		if p.Name() == requested {
			first = p
			break
		}
	}
	if first == nil {
		return nil, fmt.Errorf("tts: unknown provider %q", requested)
	}
	order := []Provider{first}
	for _, p := range c.providers {
		if p.Name() != requested {
			order = append(order, p)
		}
	}
	return order, nil
}

func describeAttempts(attempts []Attempt) string {
	if len(attempts) == 0 {
		return "no providers in chain"
	}
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		parts = append(parts, fmt.Sprintf("%s (%s)", a.Provider, a.Reason))
	}
	return strings.Join(parts, "; ")
}
