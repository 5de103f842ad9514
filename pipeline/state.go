// ABOUTME: Typed pipeline run state: validated inputs, intermediate outputs, artifact
// ABOUTME: paths, and the append-only error/warning/completed-steps audit trail.
package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// Audience identifies the target audience for the generated lesson.
type Audience string

const (
	AudienceElementary   Audience = "elementary"
	AudienceMiddleSchool Audience = "middle_school"
	AudienceHighSchool   Audience = "high_school"
	AudienceCollege      Audience = "college"
	AudienceGeneral      Audience = "general"
)

// Quality identifies the render quality preset.
type Quality string

const (
	QualityLow        Quality = "low"
	QualityMedium     Quality = "medium"
	QualityHigh       Quality = "high"
	QualityProduction Quality = "production"
)

const (
	minDurationMinutes = 0.5
	maxDurationMinutes = 10.0

	// DefaultMaxCodeRetries bounds the code generation retry loop.
	DefaultMaxCodeRetries = 3

	defaultOutputFilename = "animation.mp4"
)

// Inputs holds the run parameters supplied by the caller. Validate normalizes
// defaults in place before the run starts; after that the struct is read-only.
type Inputs struct {
	Topic           string
	Audience        Audience
	DurationMinutes float64
	Quality         Quality
	OutputFilename  string
	Voice           string
	MaxCodeRetries  int
}

// ValidationError describes an input rejected before any step executed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input %q: %s", e.Field, e.Reason)
}

// Validate checks the inputs and fills in defaults. It returns a
// *ValidationError for the first violation found.
func (in *Inputs) Validate() error {
	in.Topic = strings.TrimSpace(in.Topic)
	if in.Topic == "" {
		return &ValidationError{Field: "topic", Reason: "must not be empty"}
	}
	if in.DurationMinutes < minDurationMinutes || in.DurationMinutes > maxDurationMinutes {
		return &ValidationError{
			Field:  "duration_minutes",
			Reason: fmt.Sprintf("must be between %g and %g, got %g", minDurationMinutes, maxDurationMinutes, in.DurationMinutes),
		}
	}

	if in.Audience == "" {
		in.Audience = AudienceGeneral
	}
	switch in.Audience {
	case AudienceElementary, AudienceMiddleSchool, AudienceHighSchool, AudienceCollege, AudienceGeneral:
	default:
		return &ValidationError{Field: "audience", Reason: fmt.Sprintf("unknown audience %q", in.Audience)}
	}

	if in.Quality == "" {
		in.Quality = QualityMedium
	}
	switch in.Quality {
	case QualityLow, QualityMedium, QualityHigh, QualityProduction:
	default:
		return &ValidationError{Field: "quality", Reason: fmt.Sprintf("unknown quality %q", in.Quality)}
	}

	if in.OutputFilename == "" {
		in.OutputFilename = defaultOutputFilename
	}
	if in.MaxCodeRetries <= 0 {
		in.MaxCodeRetries = DefaultMaxCodeRetries
	}
	return nil
}

// ArtifactPaths records filesystem locations produced by the run.
type ArtifactPaths struct {
	CodeFile    string
	Video       string
	Audio       string
	FinalOutput string
}

// State is the single mutable record threaded through every pipeline step.
// Steps communicate exclusively by reading and writing it; errors, warnings,
// and completed step names are append-only.
type State struct {
	RunID  string
	Inputs Inputs

	ConceptPlan   string
	NarrationText string
	GeneratedCode string
	SceneName     string
	Quiz          string

	CodeAttemptCount  int
	CodeAttemptErrors []string

	Artifacts      ArtifactPaths
	SpeechProvider string

	CurrentStep    string
	CompletedSteps []string
	Errors         []string
	Warnings       []string

	WorkDir   string
	OutputDir string

	StartedAt time.Time
	EndedAt   time.Time
	Succeeded bool
}

// NewState constructs a State for one run. Inputs must already be validated.
func NewState(runID string, in Inputs) *State {
	return &State{RunID: runID, Inputs: in}
}

// RecordError appends a fatal error to the run. A non-empty error list causes
// the orchestrator to shortcut to finalization.
func (s *State) RecordError(format string, args ...any) {
	s.Errors = append(s.Errors, fmt.Sprintf(format, args...))
}

// RecordWarning appends a non-fatal warning to the run.
func (s *State) RecordWarning(format string, args ...any) {
	s.Warnings = append(s.Warnings, fmt.Sprintf(format, args...))
}

// MarkCompleted appends a step's audit name to the completed list.
func (s *State) MarkCompleted(step string) {
	s.CompletedSteps = append(s.CompletedSteps, step)
}

// Failed reports whether any fatal error has been recorded.
func (s *State) Failed() bool {
	return len(s.Errors) > 0
}

// TotalDuration returns the wall-clock duration of the run. Zero until
// finalization has stamped EndedAt.
func (s *State) TotalDuration() time.Duration {
	if s.StartedAt.IsZero() || s.EndedAt.IsZero() {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// Summary is the serializable result of a completed run, suitable for the
// history store and the HTTP API.
type Summary struct {
	RunID          string    `json:"run_id"`
	Topic          string    `json:"topic"`
	Audience       string    `json:"audience"`
	Quality        string    `json:"quality"`
	Succeeded      bool      `json:"succeeded"`
	FinalOutput    string    `json:"final_output,omitempty"`
	SpeechProvider string    `json:"speech_provider,omitempty"`
	CompletedSteps []string  `json:"completed_steps"`
	Errors         []string  `json:"errors,omitempty"`
	Warnings       []string  `json:"warnings,omitempty"`
	TotalSeconds   float64   `json:"total_seconds"`
	CreatedAt      time.Time `json:"created_at"`
}

// Summarize converts the final state into a Summary.
func (s *State) Summarize() *Summary {
	return &Summary{
		RunID:          s.RunID,
		Topic:          s.Inputs.Topic,
		Audience:       string(s.Inputs.Audience),
		Quality:        string(s.Inputs.Quality),
		Succeeded:      s.Succeeded,
		FinalOutput:    s.Artifacts.FinalOutput,
		SpeechProvider: s.SpeechProvider,
		CompletedSteps: s.CompletedSteps,
		Errors:         s.Errors,
		Warnings:       s.Warnings,
		TotalSeconds:   s.TotalDuration().Seconds(),
		CreatedAt:      s.StartedAt,
	}
}
