// ABOUTME: Renderer-facing steps: writing the scene file, rendering the animation,
// ABOUTME: and merging the rendered video with the narration audio.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chalkmotion/chalkmotion/mcptool"
)

const sceneFilename = "scene.py"

type writeStep struct {
	tools mcptool.Invoker
}

func (s *writeStep) Name() string { return StepFileWriting }

func (s *writeStep) Execute(ctx context.Context, st *State) error {
	path := filepath.Join(st.WorkDir, sceneFilename)
	_, err := invokeTool(ctx, s.tools, "write_manim_file", map[string]any{
		"filepath": path,
		"code":     st.GeneratedCode,
	})
	if err != nil {
		return err
	}
	st.Artifacts.CodeFile = path
	return nil
}

type renderStep struct {
	tools     mcptool.Invoker
	frameRate int
}

func (s *renderStep) Name() string { return StepRendering }

func (s *renderStep) Execute(ctx context.Context, st *State) error {
	text, err := invokeTool(ctx, s.tools, "render_manim_animation", map[string]any{
		"scene_name": st.SceneName,
		"file_path":  st.Artifacts.CodeFile,
		"output_dir": st.WorkDir,
		"quality":    string(st.Inputs.Quality),
		"format":     "mp4",
		"frame_rate": s.frameRate,
	})
	if err != nil {
		return err
	}

	video := resolveRenderedPath(text, st.WorkDir, st.SceneName)
	if _, statErr := os.Stat(video); statErr != nil {
		// The tool reported success but the artifact is missing; treat
		// it the same as a render failure.
		return fmt.Errorf("rendered video not found at %s: %w", video, statErr)
	}
	st.Artifacts.Video = video
	return nil
}

// resolveRenderedPath determines where the renderer left the video. The tool
// response is used when it names an existing file; otherwise the conventional
// <output_dir>/<scene>.mp4 location is assumed.
func resolveRenderedPath(response, outputDir, sceneName string) string {
	for _, line := range strings.Split(response, "\n") {
		candidate := strings.TrimSpace(line)
		if candidate == "" || !strings.HasSuffix(candidate, ".mp4") {
			continue
		}
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return filepath.Join(outputDir, sceneName+".mp4")
}

type mergeStep struct {
	tools mcptool.Invoker
}

func (s *mergeStep) Name() string { return StepVideoAudioMerge }

func (s *mergeStep) Execute(ctx context.Context, st *State) error {
	out := filepath.Join(st.OutputDir, st.Inputs.OutputFilename)
	_, err := invokeTool(ctx, s.tools, "merge_video_audio", map[string]any{
		"video_file":  st.Artifacts.Video,
		"audio_file":  st.Artifacts.Audio,
		"output_file": out,
	})
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(out); statErr != nil {
		return fmt.Errorf("merged output not found at %s: %w", out, statErr)
	}
	st.Artifacts.FinalOutput = out
	return nil
}
