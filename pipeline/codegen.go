// ABOUTME: Code generation step: bounded retry loop that feeds each failure
// ABOUTME: (tool error or validator diagnostic) back into the next generation attempt.
package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"

	"github.com/chalkmotion/chalkmotion/mcptool"
	"github.com/chalkmotion/chalkmotion/syntax"
)

// codegenStep generates the animation code, validating each attempt and
// carrying the previous code plus the failure description into the next
// attempt. Tool failures and validator diagnostics consume attempts alike.
type codegenStep struct {
	tools     mcptool.Invoker
	validator syntax.Validator
	onRetry   func(attempt int, reason string)
}

func (s *codegenStep) Name() string { return StepCodeGeneration }

func (s *codegenStep) Execute(ctx context.Context, st *State) error {
	maxAttempts := st.Inputs.MaxCodeRetries
	var lastFailure string

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		args := map[string]any{
			"concept":           st.ConceptPlan,
			"scene_description": st.ConceptPlan,
			"visual_elements":   "",
		}
		if attempt > 1 {
			args["previous_code"] = st.GeneratedCode
			args["error_message"] = lastFailure
			if s.onRetry != nil {
				s.onRetry(attempt, lastFailure)
			}
		}

		st.CodeAttemptCount++
		text, err := invokeTool(ctx, s.tools, "generate_manim_code", args)
		if err != nil {
			lastFailure = err.Error()
			st.CodeAttemptErrors = append(st.CodeAttemptErrors, lastFailure)
			continue
		}

		code := ExtractCode(text)
		if code == "" {
			lastFailure = "response contained no code block"
			st.CodeAttemptErrors = append(st.CodeAttemptErrors, lastFailure)
			continue
		}
		// Always keep the newest attempt, valid or not, so retry prompts
		// and post-mortems see what was actually generated.
		st.GeneratedCode = code

		diag, err := s.validator.Validate(ctx, code)
		if err != nil {
			return fmt.Errorf("code validation: %w", err)
		}
		if diag != nil {
			lastFailure = diag.Feedback()
			st.CodeAttemptErrors = append(st.CodeAttemptErrors, lastFailure)
			continue
		}

		st.SceneName = ExtractSceneName(code)
		return nil
	}

	return fmt.Errorf("code generation failed after %d attempt(s): %s", st.CodeAttemptCount, lastFailure)
}

// ExtractCode pulls the code body out of a generator response. Fenced blocks
// labeled python win; any fenced block is next; a response with no fences at
// all is treated as bare code.
func ExtractCode(response string) string {
	src := []byte(response)
	doc := goldmark.New().Parser().Parse(gmtext.NewReader(src))

	var python, unlabeled []string
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fc, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		var b strings.Builder
		lines := fc.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			b.Write(seg.Value(src))
		}
		body := strings.TrimRight(b.String(), "\n")
		lang := string(fc.Language(src))
		if strings.EqualFold(lang, "python") || strings.EqualFold(lang, "py") {
			python = append(python, body)
		} else {
			unlabeled = append(unlabeled, body)
		}
		return ast.WalkContinue, nil
	})

	if len(python) > 0 {
		return strings.TrimSpace(strings.Join(python, "\n\n"))
	}
	if len(unlabeled) > 0 {
		return strings.TrimSpace(strings.Join(unlabeled, "\n\n"))
	}

	// No fences anywhere: the generator replied with raw code.
	trimmed := strings.TrimSpace(response)
	if strings.Contains(trimmed, "class ") || strings.Contains(trimmed, "import ") {
		return trimmed
	}
	return ""
}

var sceneClassRe = regexp.MustCompile(`class\s+(\w+)\s*\(\s*\w*Scene\s*\)`)

// DefaultSceneName is used when the generated code declares no recognizable
// scene class.
const DefaultSceneName = "GenScene"

// ExtractSceneName finds the first scene class declared in the code.
func ExtractSceneName(code string) string {
	if m := sceneClassRe.FindStringSubmatch(code); m != nil {
		return m[1]
	}
	return DefaultSceneName
}
