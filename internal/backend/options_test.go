package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyweaver/internal/config"
)

func TestOptionsFromDefaultSettings(t *testing.T) {
	o, err := OptionsFromSettings(config.DefaultAppSettings())
	require.NoError(t, err)
	assert.Equal(t, []Modality{ModalityText, ModalityImage}, o.Modalities)
	assert.Equal(t, AspectRatio("1:1"), o.AspectRatio)
	assert.NoError(t, ValidateSettings(config.DefaultAppSettings()))
}

func TestZeroImageCountIsTextOnly(t *testing.T) {
	s := config.DefaultAppSettings()
	s.ImageGenerationCount = 0
	o, err := OptionsFromSettings(s)
	require.NoError(t, err)
	assert.Equal(t, []Modality{ModalityText}, o.Modalities)
	assert.False(t, o.Wants(ModalityImage))
}

func TestValidateSettingsRejectsUnknownValues(t *testing.T) {
	mutations := map[string]func(*config.AppSettings){
		"style":    func(s *config.AppSettings) { s.ImageStyle = "cubist" },
		"ratio":    func(s *config.AppSettings) { s.ImageAspectRatio = "5:4" },
		"length":   func(s *config.AppSettings) { s.ChatOutputLength = "epic" },
		"writing":  func(s *config.AppSettings) { s.ChatWritingStyle = "legalese" },
		"voice":    func(s *config.AppSettings) { s.TTSVoice = "Robot" },
		"provider": func(s *config.AppSettings) { s.ChatProvider = "other" },
		"count":    func(s *config.AppSettings) { s.ImageGenerationCount = 9 },
		"model":    func(s *config.AppSettings) { s.ChatModel = " " },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			s := config.DefaultAppSettings()
			mutate(&s)
			assert.Error(t, ValidateSettings(s))
		})
	}
}

func TestOptionsValidate(t *testing.T) {
	assert.NoError(t, DefaultOptions().Validate())
	assert.Error(t, Options{}.Validate())
	assert.Error(t, Options{Modalities: []Modality{"SMELL"}}.Validate())
}

func TestBuildPrompt(t *testing.T) {
	assert.Equal(t, "Context: \nPrompt: Tell me about a dragon", BuildPrompt(nil, "Tell me about a dragon"))
	assert.Equal(t, "Context: one\ntwo\nPrompt: go", BuildPrompt([]string{"one", "two"}, "go"))
}

func TestSystemInstruction(t *testing.T) {
	o := DefaultOptions()
	o.OutputLength = ""
	assert.Empty(t, SystemInstruction(o))

	o = DefaultOptions()
	o.WritingStyle = "poetic"
	o.Style = "oil-painting"
	o.NegativePrompt = "text, watermarks"
	si := SystemInstruction(o)
	assert.Contains(t, si, "poetic style")
	assert.Contains(t, si, "oil painting style")
	assert.Contains(t, si, "text, watermarks")
	assert.Contains(t, si, "three or four paragraphs")

	o.Modalities = []Modality{ModalityText}
	assert.NotContains(t, SystemInstruction(o), "oil painting")
}

func TestNarrationText(t *testing.T) {
	assert.Equal(t, "The Dragon woke.", NarrationText("## **The Dragon** woke.`"))
}
