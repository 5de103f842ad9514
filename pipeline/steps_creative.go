// ABOUTME: Creative steps: concept planning, narration script generation, and the
// ABOUTME: best-effort quiz. Each is one tool call plus light response shaping.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/chalkmotion/chalkmotion/mcptool"
)

type conceptStep struct {
	tools mcptool.Invoker
}

func (s *conceptStep) Name() string { return StepConceptPlanning }

func (s *conceptStep) Execute(ctx context.Context, st *State) error {
	text, err := invokeTool(ctx, s.tools, "plan_concept", map[string]any{
		"topic":                    st.Inputs.Topic,
		"target_audience":          string(st.Inputs.Audience),
		"animation_length_minutes": st.Inputs.DurationMinutes,
	})
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("plan_concept returned an empty plan")
	}
	st.ConceptPlan = text
	return nil
}

type narrationStep struct {
	tools mcptool.Invoker
}

func (s *narrationStep) Name() string { return StepNarrationGeneration }

func (s *narrationStep) Execute(ctx context.Context, st *State) error {
	text, err := invokeTool(ctx, s.tools, "generate_narration", map[string]any{
		"concept":           st.ConceptPlan,
		"scene_description": st.ConceptPlan,
		"target_audience":   string(st.Inputs.Audience),
		"duration_seconds":  st.Inputs.DurationMinutes * 60,
	})
	if err != nil {
		return err
	}
	script := extractNarrationScript(text)
	if script == "" {
		return fmt.Errorf("generate_narration returned an empty script")
	}
	st.NarrationText = script
	return nil
}

// extractNarrationScript strips a leading response label when the generator
// echoes one back, returning just the narration body.
func extractNarrationScript(text string) string {
	const label = "Narration Script:"
	if idx := strings.Index(text, label); idx >= 0 {
		text = text[idx+len(label):]
	}
	return strings.TrimSpace(text)
}

type quizStep struct {
	tools mcptool.Invoker
}

func (s *quizStep) Name() string { return StepQuizGeneration }

func (s *quizStep) Execute(ctx context.Context, st *State) error {
	text, err := invokeTool(ctx, s.tools, "generate_quiz", map[string]any{
		"concept":        st.ConceptPlan,
		"difficulty":     quizDifficulty(st.Inputs.Audience),
		"num_questions":  5,
		"question_types": []string{"multiple_choice", "true_false"},
	})
	if err != nil {
		return err
	}
	st.Quiz = strings.TrimSpace(text)
	return nil
}

func quizDifficulty(a Audience) string {
	switch a {
	case AudienceElementary, AudienceMiddleSchool:
		return "easy"
	case AudienceCollege:
		return "hard"
	default:
		return "medium"
	}
}
