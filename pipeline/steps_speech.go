// ABOUTME: Audio generation step: synthesizes the narration script through the
// ABOUTME: provider fallback chain and records which provider produced the audio.
package pipeline

import (
	"context"
	"path/filepath"

	"github.com/chalkmotion/chalkmotion/tts"
)

const narrationFilename = "narration.mp3"

type speechStep struct {
	speech tts.Synthesizer
}

func (s *speechStep) Name() string { return StepAudioGeneration }

func (s *speechStep) Execute(ctx context.Context, st *State) error {
	res, err := s.speech.Synthesize(ctx, tts.Request{
		Text:       st.NarrationText,
		Voice:      st.Inputs.Voice,
		OutputPath: filepath.Join(st.WorkDir, narrationFilename),
	})
	if err != nil {
		return err
	}

	st.Artifacts.Audio = res.Path
	st.SpeechProvider = res.Provider
	for _, w := range res.Warnings {
		st.RecordWarning("%s", w)
	}
	return nil
}
