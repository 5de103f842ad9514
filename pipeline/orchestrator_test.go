// ABOUTME: Tests for the orchestrator: step sequencing, error shortcut to
// ABOUTME: finalization, best-effort quiz, cancellation, and panic containment.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/chalkmotion/chalkmotion/mcptool"
	"github.com/chalkmotion/chalkmotion/syntax"
	"github.com/chalkmotion/chalkmotion/tts"
)

const sceneCode = "```python\n" +
	"from manim import *\n\n" +
	"class PhotosynthesisScene(Scene):\n" +
	"    def construct(self):\n" +
	"        self.play(Write(Text(\"Photosynthesis\")))\n" +
	"```"

// fakeTools is a scripted Invoker. Handlers are keyed by tool name; a missing
// handler fails the test.
type fakeTools struct {
	t          *testing.T
	mu         sync.Mutex
	calls      []string
	argsByTool map[string][]map[string]any
	handlers   map[string]func(args map[string]any) (mcptool.Result, error)
}

func newFakeTools(t *testing.T) *fakeTools {
	return &fakeTools{
		t:          t,
		argsByTool: make(map[string][]map[string]any),
		handlers:   make(map[string]func(args map[string]any) (mcptool.Result, error)),
	}
}

func (f *fakeTools) on(tool string, fn func(args map[string]any) (mcptool.Result, error)) {
	f.handlers[tool] = fn
}

func (f *fakeTools) Invoke(ctx context.Context, tool string, args map[string]any) (mcptool.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, tool)
	f.argsByTool[tool] = append(f.argsByTool[tool], args)
	fn := f.handlers[tool]
	f.mu.Unlock()

	if fn == nil {
		f.t.Fatalf("unexpected tool call %q", tool)
	}
	return fn(args)
}

func (f *fakeTools) callArgs(tool string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.argsByTool[tool]
}

type fakeSpeech struct {
	provider string
	warnings []string
	err      error
}

func (f *fakeSpeech) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	if err := os.WriteFile(req.OutputPath, []byte("audio"), 0o644); err != nil {
		return nil, err
	}
	return &tts.Result{Provider: f.provider, Path: req.OutputPath, Warnings: f.warnings}, nil
}

// scriptedValidator returns its queued diagnostics one per call, then passes.
type scriptedValidator struct {
	diags []*syntax.Diagnostic
}

func (v *scriptedValidator) Validate(ctx context.Context, code string) (*syntax.Diagnostic, error) {
	if len(v.diags) == 0 {
		return nil, nil
	}
	d := v.diags[0]
	v.diags = v.diags[1:]
	return d, nil
}

// happyTools wires every tool to succeed, creating the artifact files the
// media steps check for.
func happyTools(t *testing.T) *fakeTools {
	tools := newFakeTools(t)
	tools.on("plan_concept", func(args map[string]any) (mcptool.Result, error) {
		return mcptool.Result{Text: "Animation Concept Plan:\n\nscenes about light and chlorophyll"}, nil
	})
	tools.on("generate_narration", func(args map[string]any) (mcptool.Result, error) {
		return mcptool.Result{Text: "Narration Script:\n\nPlants turn sunlight into food."}, nil
	})
	tools.on("generate_manim_code", func(args map[string]any) (mcptool.Result, error) {
		return mcptool.Result{Text: sceneCode}, nil
	})
	tools.on("write_manim_file", func(args map[string]any) (mcptool.Result, error) {
		path := args["filepath"].(string)
		if err := os.WriteFile(path, []byte(args["code"].(string)), 0o644); err != nil {
			return mcptool.Result{}, err
		}
		return mcptool.Result{Text: "written"}, nil
	})
	tools.on("render_manim_animation", func(args map[string]any) (mcptool.Result, error) {
		path := filepath.Join(args["output_dir"].(string), args["scene_name"].(string)+".mp4")
		if err := os.WriteFile(path, []byte("video"), 0o644); err != nil {
			return mcptool.Result{}, err
		}
		return mcptool.Result{Text: path}, nil
	})
	tools.on("merge_video_audio", func(args map[string]any) (mcptool.Result, error) {
		path := args["output_file"].(string)
		if err := os.WriteFile(path, []byte("merged"), 0o644); err != nil {
			return mcptool.Result{}, err
		}
		return mcptool.Result{Text: "merged"}, nil
	})
	tools.on("generate_quiz", func(args map[string]any) (mcptool.Result, error) {
		return mcptool.Result{Text: `[{"type":"true_false","question":"Plants need light.","answer":"true"}]`}, nil
	})
	return tools
}

func newTestOrchestrator(t *testing.T, tools mcptool.Invoker, speech tts.Synthesizer, validator syntax.Validator) *Orchestrator {
	t.Helper()
	orch, err := New(Config{
		Tools:       tools,
		Speech:      speech,
		Validator:   validator,
		WorkBaseDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return orch
}

var allSteps = []string{
	StepInitialization,
	StepConceptPlanning,
	StepNarrationGeneration,
	StepCodeGeneration,
	StepFileWriting,
	StepRendering,
	StepAudioGeneration,
	StepVideoAudioMerge,
	StepQuizGeneration,
	StepFinalization,
}

func assertSteps(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("completed steps mismatch:\n got %v\nwant %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("completed steps mismatch at %d:\n got %v\nwant %v", i, got, want)
		}
	}
}

func TestRunHappyPath(t *testing.T) {
	orch := newTestOrchestrator(t, happyTools(t), &fakeSpeech{provider: "elevenlabs"}, &scriptedValidator{})

	st, err := orch.Run(context.Background(), Inputs{Topic: "Photosynthesis", DurationMinutes: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !st.Succeeded {
		t.Fatalf("expected success, errors: %v", st.Errors)
	}
	if len(st.Errors) != 0 {
		t.Errorf("expected no errors, got %v", st.Errors)
	}
	assertSteps(t, st.CompletedSteps, allSteps)

	if st.ConceptPlan == "" || st.NarrationText == "" || st.Quiz == "" {
		t.Error("expected concept plan, narration, and quiz to be populated")
	}
	if strings.Contains(st.NarrationText, "Narration Script:") {
		t.Errorf("narration label not stripped: %q", st.NarrationText)
	}
	if st.SceneName != "PhotosynthesisScene" {
		t.Errorf("expected scene name extracted, got %q", st.SceneName)
	}
	if st.CodeAttemptCount != 1 {
		t.Errorf("expected 1 code attempt, got %d", st.CodeAttemptCount)
	}
	if st.SpeechProvider != "elevenlabs" {
		t.Errorf("expected speech provider recorded, got %q", st.SpeechProvider)
	}
	if st.Artifacts.FinalOutput == "" {
		t.Error("expected final output path set")
	}
	if _, err := os.Stat(st.Artifacts.FinalOutput); err != nil {
		t.Errorf("final output missing: %v", err)
	}
}

func TestRunRejectsInvalidInputs(t *testing.T) {
	orch := newTestOrchestrator(t, newFakeTools(t), &fakeSpeech{provider: "local"}, &scriptedValidator{})

	st, err := orch.Run(context.Background(), Inputs{Topic: "", DurationMinutes: 3})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if st != nil {
		t.Errorf("expected nil state before any step, got %+v", st)
	}
}

func TestRunShortcutsToFinalizeOnRenderFailure(t *testing.T) {
	tools := happyTools(t)
	tools.on("render_manim_animation", func(args map[string]any) (mcptool.Result, error) {
		return mcptool.Result{Text: "manim exited with status 1", IsError: true}, nil
	})
	orch := newTestOrchestrator(t, tools, &fakeSpeech{provider: "local"}, &scriptedValidator{})

	st, err := orch.Run(context.Background(), Inputs{Topic: "Photosynthesis", DurationMinutes: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if st.Succeeded {
		t.Error("expected failure")
	}
	if len(st.Errors) == 0 || !strings.Contains(st.Errors[0], "rendering failed") {
		t.Errorf("expected rendering error, got %v", st.Errors)
	}
	assertSteps(t, st.CompletedSteps, []string{
		StepInitialization,
		StepConceptPlanning,
		StepNarrationGeneration,
		StepCodeGeneration,
		StepFileWriting,
		StepRendering,
		StepFinalization,
	})

	// No step after the failure point should have been attempted.
	for _, call := range tools.calls {
		if call == "merge_video_audio" || call == "generate_quiz" {
			t.Errorf("step after failure was invoked: %s", call)
		}
	}
}

func TestRunQuizFailureIsWarningOnly(t *testing.T) {
	tools := happyTools(t)
	tools.on("generate_quiz", func(args map[string]any) (mcptool.Result, error) {
		return mcptool.Result{Text: "quiz model unavailable", IsError: true}, nil
	})
	orch := newTestOrchestrator(t, tools, &fakeSpeech{provider: "local"}, &scriptedValidator{})

	st, err := orch.Run(context.Background(), Inputs{Topic: "Photosynthesis", DurationMinutes: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !st.Succeeded {
		t.Fatalf("expected success despite quiz failure, errors: %v", st.Errors)
	}
	if len(st.Errors) != 0 {
		t.Errorf("quiz failure must not produce errors, got %v", st.Errors)
	}
	if len(st.Warnings) == 0 || !strings.Contains(st.Warnings[0], "quiz_generation failed") {
		t.Errorf("expected quiz warning, got %v", st.Warnings)
	}
	assertSteps(t, st.CompletedSteps, allSteps)
}

func TestRunCancelledBeforeStart(t *testing.T) {
	orch := newTestOrchestrator(t, newFakeTools(t), &fakeSpeech{provider: "local"}, &scriptedValidator{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st, err := orch.Run(ctx, Inputs{Topic: "Photosynthesis", DurationMinutes: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if st.Succeeded {
		t.Error("cancelled run must not succeed")
	}
	if len(st.Errors) == 0 || !strings.Contains(st.Errors[0], "cancelled") {
		t.Errorf("expected cancellation error, got %v", st.Errors)
	}
	assertSteps(t, st.CompletedSteps, []string{StepFinalization})
}

func TestRunConvertsStepPanicToFailure(t *testing.T) {
	tools := happyTools(t)
	tools.on("plan_concept", func(args map[string]any) (mcptool.Result, error) {
		panic("creative backend went sideways")
	})
	orch := newTestOrchestrator(t, tools, &fakeSpeech{provider: "local"}, &scriptedValidator{})

	st, err := orch.Run(context.Background(), Inputs{Topic: "Photosynthesis", DurationMinutes: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if st.Succeeded {
		t.Error("expected failure after panic")
	}
	if len(st.Errors) == 0 || !strings.Contains(st.Errors[0], "panic") {
		t.Errorf("expected panic converted to error, got %v", st.Errors)
	}
	assertSteps(t, st.CompletedSteps, []string{
		StepInitialization,
		StepConceptPlanning,
		StepFinalization,
	})
}

func TestRunSpeechFallbackFailureNamesProviders(t *testing.T) {
	tools := happyTools(t)
	speechErr := fmt.Errorf("tts: all providers failed: elevenlabs (401); polly (no credentials); local (not configured)")
	orch := newTestOrchestrator(t, tools, &fakeSpeech{err: speechErr}, &scriptedValidator{})

	st, err := orch.Run(context.Background(), Inputs{Topic: "Photosynthesis", DurationMinutes: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if st.Succeeded {
		t.Error("expected failure")
	}
	if len(st.Errors) == 0 || !strings.Contains(st.Errors[0], "elevenlabs") || !strings.Contains(st.Errors[0], "local") {
		t.Errorf("expected error naming all providers, got %v", st.Errors)
	}
	assertSteps(t, st.CompletedSteps, []string{
		StepInitialization,
		StepConceptPlanning,
		StepNarrationGeneration,
		StepCodeGeneration,
		StepFileWriting,
		StepRendering,
		StepAudioGeneration,
		StepFinalization,
	})
}

func TestRunEmitsLifecycleEvents(t *testing.T) {
	var mu sync.Mutex
	var types []EventType

	tools := happyTools(t)
	orch, err := New(Config{
		Tools:       tools,
		Speech:      &fakeSpeech{provider: "local"},
		Validator:   &scriptedValidator{},
		WorkBaseDir: t.TempDir(),
		EventHandler: func(evt Event) {
			mu.Lock()
			types = append(types, evt.Type)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := orch.Run(context.Background(), Inputs{Topic: "Photosynthesis", DurationMinutes: 3}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(types) == 0 || types[0] != EventPipelineStarted {
		t.Fatalf("expected pipeline.started first, got %v", types)
	}
	if types[len(types)-1] != EventPipelineCompleted {
		t.Errorf("expected pipeline.completed last, got %v", types[len(types)-1])
	}
}
