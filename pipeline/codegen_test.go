// ABOUTME: Tests for the code generation retry loop, fenced-code extraction,
// ABOUTME: and scene class name detection.
package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/chalkmotion/chalkmotion/mcptool"
	"github.com/chalkmotion/chalkmotion/syntax"
)

func TestExtractCodePrefersPythonFence(t *testing.T) {
	response := "Here is the code:\n\n```text\nnot this\n```\n\n```python\nclass A(Scene):\n    pass\n```"
	got := ExtractCode(response)
	if !strings.HasPrefix(got, "class A(Scene):") {
		t.Errorf("expected python block, got %q", got)
	}
	if strings.Contains(got, "not this") {
		t.Errorf("non-python block leaked into extraction: %q", got)
	}
}

func TestExtractCodeUnlabeledFence(t *testing.T) {
	response := "```\nimport math\nprint(math.pi)\n```"
	got := ExtractCode(response)
	if got != "import math\nprint(math.pi)" {
		t.Errorf("unexpected extraction: %q", got)
	}
}

func TestExtractCodeBareCode(t *testing.T) {
	response := "from manim import *\n\nclass B(Scene):\n    def construct(self):\n        pass"
	got := ExtractCode(response)
	if got != response {
		t.Errorf("expected bare code returned verbatim, got %q", got)
	}
}

func TestExtractCodeProse(t *testing.T) {
	if got := ExtractCode("I could not produce any code for this topic."); got != "" {
		t.Errorf("expected empty extraction for prose, got %q", got)
	}
}

func TestExtractSceneName(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"class WaterCycle(Scene):\n    pass", "WaterCycle"},
		{"class Orbit(MovingCameraScene):\n    pass", "Orbit"},
		{"class Orbit( Scene ):\n    pass", "Orbit"},
		{"def construct(self):\n    pass", DefaultSceneName},
		{"", DefaultSceneName},
	}
	for _, tt := range tests {
		if got := ExtractSceneName(tt.code); got != tt.want {
			t.Errorf("ExtractSceneName(%q) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

const brokenCode = "```python\nclass C(Scene):\n    def construct(self)\n        pass\n```"

const fixedCode = "```python\nclass C(Scene):\n    def construct(self):\n        pass\n```"

func TestCodegenRetriesWithFeedback(t *testing.T) {
	tools := newFakeTools(t)
	attempt := 0
	tools.on("generate_manim_code", func(args map[string]any) (mcptool.Result, error) {
		attempt++
		if attempt == 1 {
			return mcptool.Result{Text: brokenCode}, nil
		}
		return mcptool.Result{Text: fixedCode}, nil
	})

	validator := &scriptedValidator{diags: []*syntax.Diagnostic{
		{Message: "missing :", Line: 2, SourceLine: "    def construct(self)"},
	}}

	step := &codegenStep{tools: tools, validator: validator}
	st := NewState("run-1", Inputs{Topic: "Gravity", MaxCodeRetries: 3})
	st.ConceptPlan = "plan"

	if err := step.Execute(context.Background(), st); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if st.CodeAttemptCount != 2 {
		t.Errorf("expected 2 attempts, got %d", st.CodeAttemptCount)
	}
	if len(st.CodeAttemptErrors) != 1 || !strings.Contains(st.CodeAttemptErrors[0], "missing :") {
		t.Errorf("expected recorded diagnostic, got %v", st.CodeAttemptErrors)
	}
	if !strings.Contains(st.GeneratedCode, "def construct(self):") {
		t.Errorf("expected fixed code stored, got %q", st.GeneratedCode)
	}
	if st.SceneName != "C" {
		t.Errorf("expected scene name C, got %q", st.SceneName)
	}

	// The retry call must carry the previous code and the failure.
	retryArgs := tools.callArgs("generate_manim_code")[1]
	prev, _ := retryArgs["previous_code"].(string)
	if !strings.Contains(prev, "def construct(self)") {
		t.Errorf("retry missing previous code: %v", retryArgs)
	}
	msg, _ := retryArgs["error_message"].(string)
	if !strings.Contains(msg, "missing :") {
		t.Errorf("retry missing error feedback: %v", retryArgs)
	}
}

func TestCodegenToolErrorConsumesAttempt(t *testing.T) {
	tools := newFakeTools(t)
	attempt := 0
	tools.on("generate_manim_code", func(args map[string]any) (mcptool.Result, error) {
		attempt++
		if attempt == 1 {
			return mcptool.Result{Text: "generate_manim_code failed: model overloaded", IsError: true}, nil
		}
		return mcptool.Result{Text: fixedCode}, nil
	})

	step := &codegenStep{tools: tools, validator: &scriptedValidator{}}
	st := NewState("run-1", Inputs{Topic: "Gravity", MaxCodeRetries: 3})

	if err := step.Execute(context.Background(), st); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if st.CodeAttemptCount != 2 {
		t.Errorf("expected tool error to consume an attempt, got %d", st.CodeAttemptCount)
	}

	retryArgs := tools.callArgs("generate_manim_code")[1]
	msg, _ := retryArgs["error_message"].(string)
	if !strings.Contains(msg, "model overloaded") {
		t.Errorf("expected tool error fed forward, got %v", retryArgs)
	}
}

func TestCodegenExhaustsRetries(t *testing.T) {
	tools := newFakeTools(t)
	tools.on("generate_manim_code", func(args map[string]any) (mcptool.Result, error) {
		return mcptool.Result{Text: brokenCode}, nil
	})

	validator := &scriptedValidator{diags: []*syntax.Diagnostic{
		{Message: "missing :", Line: 2},
		{Message: "missing :", Line: 2},
		{Message: "missing :", Line: 2},
	}}

	step := &codegenStep{tools: tools, validator: validator}
	st := NewState("run-1", Inputs{Topic: "Gravity", MaxCodeRetries: 3})

	err := step.Execute(context.Background(), st)
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	if !strings.Contains(err.Error(), "3 attempt(s)") {
		t.Errorf("expected attempt count in error, got %v", err)
	}
	if !strings.Contains(err.Error(), "missing :") {
		t.Errorf("expected last diagnostic in error, got %v", err)
	}
	if st.CodeAttemptCount != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", st.CodeAttemptCount)
	}
	if st.GeneratedCode == "" {
		t.Error("expected last attempt's code retained")
	}
}

func TestCodegenEmitsRetryEvents(t *testing.T) {
	tools := newFakeTools(t)
	attempt := 0
	tools.on("generate_manim_code", func(args map[string]any) (mcptool.Result, error) {
		attempt++
		if attempt == 1 {
			return mcptool.Result{Text: brokenCode}, nil
		}
		return mcptool.Result{Text: fixedCode}, nil
	})

	var retries []int
	step := &codegenStep{
		tools:     tools,
		validator: &scriptedValidator{diags: []*syntax.Diagnostic{{Message: "bad", Line: 1}}},
		onRetry:   func(attempt int, reason string) { retries = append(retries, attempt) },
	}
	st := NewState("run-1", Inputs{Topic: "Gravity", MaxCodeRetries: 3})

	if err := step.Execute(context.Background(), st); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(retries) != 1 || retries[0] != 2 {
		t.Errorf("expected one retry notification for attempt 2, got %v", retries)
	}
}
