// ABOUTME: Step orchestrator: runs the fixed step sequence over a shared State,
// ABOUTME: shortcuts to finalization on fatal errors, and guarantees finalization runs once.
package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/chalkmotion/chalkmotion/mcptool"
	"github.com/chalkmotion/chalkmotion/syntax"
	"github.com/chalkmotion/chalkmotion/tts"
)

// Audit names recorded in State.CompletedSteps, one per step, in run order.
const (
	StepInitialization      = "initialization"
	StepConceptPlanning     = "concept_planning"
	StepNarrationGeneration = "narration_generation"
	StepCodeGeneration      = "code_generation"
	StepFileWriting         = "file_writing"
	StepRendering           = "rendering"
	StepAudioGeneration     = "audio_generation"
	StepVideoAudioMerge     = "video_audio_merge"
	StepQuizGeneration      = "quiz_generation"
	StepFinalization        = "finalization"
)

// Step executes one stage of the pipeline against the shared state. A step
// reports failure by recording errors on the state (or returning an error,
// which the orchestrator records on its behalf); it never decides routing.
type Step interface {
	Name() string
	Execute(ctx context.Context, st *State) error
}

// Config holds the orchestrator's injected collaborators. Tools, Speech, and
// Validator are required; everything else has a usable default.
type Config struct {
	Tools     mcptool.Invoker  // creative and renderer tool calls
	Speech    tts.Synthesizer  // narration audio generation
	Validator syntax.Validator // static check of generated code

	WorkBaseDir string // base for per-run working directories (default "runs")
	OutputDir   string // final artifact directory (default: the run's work dir)
	FrameRate   int    // render frame rate (default 30)

	EventHandler func(Event) // optional lifecycle callback
}

// Orchestrator drives one topic-to-video run through the fixed step sequence.
// It is safe to share across goroutines; each Run owns its own State.
type Orchestrator struct {
	cfg   Config
	steps []Step
}

// New creates an Orchestrator from the given configuration.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Tools == nil {
		return nil, fmt.Errorf("pipeline: Tools invoker is required")
	}
	if cfg.Speech == nil {
		return nil, fmt.Errorf("pipeline: Speech synthesizer is required")
	}
	if cfg.Validator == nil {
		return nil, fmt.Errorf("pipeline: code Validator is required")
	}
	if cfg.WorkBaseDir == "" {
		cfg.WorkBaseDir = "runs"
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}

	o := &Orchestrator{cfg: cfg}
	o.steps = []Step{
		&initStep{baseDir: cfg.WorkBaseDir, outputDir: cfg.OutputDir},
		&conceptStep{tools: cfg.Tools},
		&narrationStep{tools: cfg.Tools},
		&codegenStep{tools: cfg.Tools, validator: cfg.Validator, onRetry: o.emitRetry},
		&writeStep{tools: cfg.Tools},
		&renderStep{tools: cfg.Tools, frameRate: cfg.FrameRate},
		&speechStep{speech: cfg.Speech},
		&mergeStep{tools: cfg.Tools},
		&quizStep{tools: cfg.Tools},
	}
	return o, nil
}

// Run executes the full pipeline for one set of inputs. Input validation
// failures are returned before any step runs. Once steps begin, failures are
// recorded on the returned State rather than returned as an error, and
// finalization always runs.
func (o *Orchestrator) Run(ctx context.Context, in Inputs) (*State, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	st := NewState(uuid.NewString(), in)
	o.emit(Event{Type: EventPipelineStarted, Data: map[string]any{"run_id": st.RunID, "topic": in.Topic}})

	for _, step := range o.steps {
		if ctx.Err() != nil {
			st.RecordError("run cancelled before %s: %v", step.Name(), ctx.Err())
			break
		}

		o.runStep(ctx, step, st)

		// Quiz generation is best-effort; every other step's failure
		// shortcuts straight to finalization.
		if st.Failed() && step.Name() != StepQuizGeneration {
			break
		}
	}

	o.finalize(st)
	return st, nil
}

// runStep executes a single step with panic recovery and bookkeeping. The
// step's audit name is recorded whether or not it succeeded; quiz failures are
// downgraded to warnings.
func (o *Orchestrator) runStep(ctx context.Context, step Step, st *State) {
	name := step.Name()
	st.CurrentStep = name
	o.emit(Event{Type: EventStepStarted, Step: name})

	errsBefore := len(st.Errors)
	err := safeExecute(ctx, step, st)
	if err != nil {
		if name == StepQuizGeneration {
			st.RecordWarning("%s failed: %v", name, err)
		} else {
			st.RecordError("%s failed: %v", name, err)
		}
	}
	st.MarkCompleted(name)

	if err != nil || len(st.Errors) > errsBefore {
		data := map[string]any{}
		if err != nil {
			data["reason"] = err.Error()
		} else {
			data["reason"] = st.Errors[len(st.Errors)-1]
		}
		o.emit(Event{Type: EventStepFailed, Step: name, Data: data})
		return
	}
	o.emit(Event{Type: EventStepCompleted, Step: name})
}

// finalize stamps the end time and computes the overall verdict. It runs
// exactly once per Run, on every path.
func (o *Orchestrator) finalize(st *State) {
	st.CurrentStep = StepFinalization
	st.EndedAt = time.Now()
	st.Succeeded = !st.Failed() && st.Artifacts.FinalOutput != ""
	st.MarkCompleted(StepFinalization)

	data := map[string]any{
		"run_id":        st.RunID,
		"total_seconds": st.TotalDuration().Seconds(),
	}
	if st.Succeeded {
		data["final_output"] = st.Artifacts.FinalOutput
		o.emit(Event{Type: EventPipelineCompleted, Data: data})
		return
	}
	if len(st.Errors) > 0 {
		data["errors"] = append([]string(nil), st.Errors...)
	}
	o.emit(Event{Type: EventPipelineFailed, Data: data})
}

// safeExecute wraps step.Execute with panic recovery, converting panics into
// errors so one misbehaving step cannot take down the run. The stack trace is
// included to aid debugging.
func safeExecute(ctx context.Context, step Step, st *State) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step panic in %q: %v\n%s", step.Name(), r, debug.Stack())
		}
	}()
	return step.Execute(ctx, st)
}

func (o *Orchestrator) emitRetry(attempt int, reason string) {
	o.emit(Event{
		Type: EventStepRetrying,
		Step: StepCodeGeneration,
		Data: map[string]any{"attempt": attempt, "reason": reason},
	})
}

// emit sends an event to the configured handler, stamping the time if unset.
func (o *Orchestrator) emit(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	if o.cfg.EventHandler != nil {
		o.cfg.EventHandler(evt)
	}
}
