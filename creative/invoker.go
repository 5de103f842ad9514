// ABOUTME: In-process creative tool backend: implements plan_concept,
// ABOUTME: generate_narration, generate_manim_code, and generate_quiz over the
// ABOUTME: OpenAI chat completions API, for deployments without a creative server.
package creative

import (
	"context"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/chalkmotion/chalkmotion/mcptool"
)

const defaultModel = "gpt-4o"

// Config configures the creative backend.
type Config struct {
	APIKey  string
	BaseURL string // optional OpenAI-compatible endpoint
	Model   string
}

// ConfigFromEnv reads OPENAI_API_KEY, OPENAI_BASE_URL, and CREATIVE_MODEL.
func ConfigFromEnv() Config {
	return Config{
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
		Model:   os.Getenv("CREATIVE_MODEL"),
	}
}

type chatClient interface {
	complete(ctx context.Context, system, user string) (string, error)
}

// Invoker serves the creative tool set locally. Renderer tools are not its
// concern; calling one returns an error-flagged result so the router's split
// stays visible.
type Invoker struct {
	model  string
	client chatClient
}

type openaiClient struct {
	client openai.Client
	model  string
}

func (c *openaiClient) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// NewInvoker creates the backend.
func NewInvoker(cfg Config) (*Invoker, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("creative: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Invoker{
		model:  cfg.Model,
		client: &openaiClient{client: openai.NewClient(opts...), model: cfg.Model},
	}, nil
}

// Invoke dispatches a creative tool call. Generation failures come back in the
// result envelope with IsError set, matching what a remote tool server would
// report.
func (inv *Invoker) Invoke(ctx context.Context, tool string, args map[string]any) (mcptool.Result, error) {
	var (
		text string
		err  error
	)
	switch tool {
	case "plan_concept":
		text, err = inv.planConcept(ctx, args)
	case "generate_narration":
		text, err = inv.generateNarration(ctx, args)
	case "generate_manim_code":
		text, err = inv.generateCode(ctx, args)
	case "generate_quiz":
		text, err = inv.generateQuiz(ctx, args)
	default:
		return mcptool.Result{
			Text:    fmt.Sprintf("unknown creative tool: %s", tool),
			IsError: true,
		}, nil
	}
	if err != nil {
		return mcptool.Result{
			Text:    fmt.Sprintf("%s failed: %v", tool, err),
			IsError: true,
		}, nil
	}
	return mcptool.Result{Text: text}, nil
}

func (inv *Invoker) planConcept(ctx context.Context, args map[string]any) (string, error) {
	prompt := fmt.Sprintf(`Create an animation concept plan for an educational video.

Topic: %s
Target audience: %s
Length: %g minutes

Respond with a JSON object containing: "title", "learning_objectives" (list),
"scenes" (list of objects with "description", "visual_elements", and
"duration_seconds"), and "key_concepts" (list). Keep the scenes simple enough
to animate with 2D shapes, text, and graphs.`,
		stringArg(args, "topic"),
		stringArg(args, "target_audience"),
		floatArg(args, "animation_length_minutes"))

	resp, err := inv.client.complete(ctx, "You are an expert curriculum designer planning 2D educational animations.", prompt)
	if err != nil {
		return "", err
	}
	return "Animation Concept Plan:\n\n" + resp, nil
}

func (inv *Invoker) generateNarration(ctx context.Context, args map[string]any) (string, error) {
	prompt := fmt.Sprintf(`Write a narration script for an educational animation.

Concept plan:
%s

Scene description:
%s

Target audience: %s
Spoken duration: about %g seconds

Write in a warm, conversational tone suited to the audience. Plain prose only,
no stage directions and no markdown.`,
		stringArg(args, "concept"),
		stringArg(args, "scene_description"),
		stringArg(args, "target_audience"),
		floatArg(args, "duration_seconds"))

	resp, err := inv.client.complete(ctx, "You are a scriptwriter for educational videos.", prompt)
	if err != nil {
		return "", err
	}
	return "Narration Script:\n\n" + resp, nil
}

func (inv *Invoker) generateCode(ctx context.Context, args map[string]any) (string, error) {
	previousCode := stringArg(args, "previous_code")
	errorMessage := stringArg(args, "error_message")

	var prompt string
	if previousCode != "" && errorMessage != "" {
		prompt = fmt.Sprintf(`The following Manim code failed. Fix it.

PREVIOUS CODE:
%s

ERROR ENCOUNTERED:
%s

Return the complete corrected code in a single `+"```python"+` block. Keep the
same scene structure unless the error requires changing it. Do not explain the
fix; return only the code block.`, previousCode, errorMessage)
	} else {
		prompt = fmt.Sprintf(`Write Manim Community Edition code for an educational animation.

Concept plan:
%s

Scene description:
%s

Visual elements: %s

Requirements:
- One complete Python file with a single class extending Scene
- Only Manim Community Edition imports, no external assets or files
- Animate every described visual element; avoid overlapping text
- Return the code in a single `+"```python"+` block with no commentary`,
			stringArg(args, "concept"),
			stringArg(args, "scene_description"),
			stringArg(args, "visual_elements"))
	}

	return inv.client.complete(ctx, "You are an expert Manim animator who writes correct, runnable code.", prompt)
}

func (inv *Invoker) generateQuiz(ctx context.Context, args map[string]any) (string, error) {
	prompt := fmt.Sprintf(`Create a comprehension quiz for this lesson.

Concept plan:
%s

Difficulty: %s
Number of questions: %d
Question types: %v

Respond with a JSON array of question objects, each with "type", "question",
"options" (for multiple choice), "answer", and "explanation".`,
		stringArg(args, "concept"),
		stringArg(args, "difficulty"),
		intArg(args, "num_questions"),
		args["question_types"])

	return inv.client.complete(ctx, "You are an assessment writer for educational content.", prompt)
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func floatArg(args map[string]any, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
