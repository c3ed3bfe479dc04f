package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// AppSettings is the user-editable creative configuration.
// It is persisted as one JSON blob and always read merged over DefaultAppSettings.
type AppSettings struct {
	ChatProvider         string `json:"chatProvider"`
	ChatModel            string `json:"chatModel"`
	ChatWritingStyle     string `json:"chatWritingStyle"`
	ChatOutputLength     string `json:"chatOutputLength"`
	ImageProvider        string `json:"imageProvider"`
	ImageModel           string `json:"imageModel"`
	ImageAspectRatio     string `json:"imageAspectRatio"`
	ImageStyle           string `json:"imageStyle"`
	ImageNegativePrompt  string `json:"imageNegativePrompt"`
	ImageGenerationCount int    `json:"imageGenerationCount"`
	TTSVoice             string `json:"ttsVoice"`
	ManualFont           string `json:"manualFont"`
}

// DefaultAppSettings returns the built-in settings.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		ChatProvider:         "google",
		ChatModel:            "gemini-2.5-flash-image",
		ChatWritingStyle:     "standard",
		ChatOutputLength:     "medium",
		ImageProvider:        "google",
		ImageModel:           "gemini-2.5-flash-image",
		ImageAspectRatio:     "1:1",
		ImageStyle:           "none",
		ImageNegativePrompt:  "",
		ImageGenerationCount: 1,
		TTSVoice:             "Kore",
		ManualFont:           "",
	}
}

// MergeSettings decodes a persisted blob over the defaults.
// An empty blob yields the defaults; unknown keys are ignored.
func MergeSettings(blob []byte) (AppSettings, error) {
	s := DefaultAppSettings()
	if len(strings.TrimSpace(string(blob))) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(blob, &s); err != nil {
		return DefaultAppSettings(), fmt.Errorf("failed to parse settings: %w", err)
	}
	return s, nil
}

// Marshal encodes the settings as a single blob.
func (s AppSettings) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// Keys returns the settable keys in sorted order.
func (s AppSettings) Keys() []string {
	m := s.asMap()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the string form of one setting by its JSON key.
func (s AppSettings) Get(key string) (string, bool) {
	v, ok := s.asMap()[key]
	return v, ok
}

// Set returns a copy of s with one setting replaced by its JSON key.
func (s AppSettings) Set(key, value string) (AppSettings, error) {
	switch key {
	case "chatProvider":
		s.ChatProvider = value
	case "chatModel":
		s.ChatModel = value
	case "chatWritingStyle":
		s.ChatWritingStyle = value
	case "chatOutputLength":
		s.ChatOutputLength = value
	case "imageProvider":
		s.ImageProvider = value
	case "imageModel":
		s.ImageModel = value
	case "imageAspectRatio":
		s.ImageAspectRatio = value
	case "imageStyle":
		s.ImageStyle = value
	case "imageNegativePrompt":
		s.ImageNegativePrompt = value
	case "imageGenerationCount":
		n, err := strconv.Atoi(value)
		if err != nil {
			return s, fmt.Errorf("imageGenerationCount must be an integer: %w", err)
		}
		s.ImageGenerationCount = n
	case "ttsVoice":
		s.TTSVoice = value
	case "manualFont":
		s.ManualFont = value
	default:
		return s, fmt.Errorf("unknown setting: %s", key)
	}
	return s, nil
}

func (s AppSettings) asMap() map[string]string {
	return map[string]string{
		"chatProvider":         s.ChatProvider,
		"chatModel":            s.ChatModel,
		"chatWritingStyle":     s.ChatWritingStyle,
		"chatOutputLength":     s.ChatOutputLength,
		"imageProvider":        s.ImageProvider,
		"imageModel":           s.ImageModel,
		"imageAspectRatio":     s.ImageAspectRatio,
		"imageStyle":           s.ImageStyle,
		"imageNegativePrompt":  s.ImageNegativePrompt,
		"imageGenerationCount": strconv.Itoa(s.ImageGenerationCount),
		"ttsVoice":             s.TTSVoice,
		"manualFont":           s.ManualFont,
	}
}
