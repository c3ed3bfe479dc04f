package backend

import (
	"fmt"
	"slices"
	"strings"

	"storyweaver/internal/config"
)

// Modality is an output kind requested from the model.
type Modality string

const (
	ModalityText  Modality = "TEXT"
	ModalityImage Modality = "IMAGE"
	ModalityAudio Modality = "AUDIO"
)

// AspectRatio is an image aspect ratio recognized by the image models.
type AspectRatio string

// ImageStyle is a visual style directive for generated images.
type ImageStyle string

// OutputLength bounds how much prose one generation produces.
type OutputLength string

// WritingStyle is a prose style directive.
type WritingStyle string

const (
	LengthShort  OutputLength = "short"
	LengthMedium OutputLength = "medium"
	LengthLong   OutputLength = "long"
)

// Recognized option values.
var (
	AspectRatios  = []AspectRatio{"1:1", "2:3", "3:2", "3:4", "4:3", "9:16", "16:9", "21:9"}
	ImageStyles   = []ImageStyle{"none", "photorealistic", "cinematic", "watercolor", "oil-painting", "anime", "sketch", "pixel-art", "fantasy-art"}
	OutputLengths = []OutputLength{LengthShort, LengthMedium, LengthLong}
	WritingStyles = []WritingStyle{"standard", "descriptive", "concise", "poetic", "dramatic", "humorous"}
	Voices        = []string{"Kore", "Puck", "Charon", "Fenrir", "Aoede", "Zephyr", "Leda", "Orus"}
	Providers     = []string{"google"}
)

// MaxImageCount is the largest imageGenerationCount accepted.
const MaxImageCount = 4

// Options is the closed request configuration for one generation.
type Options struct {
	Modalities     []Modality
	AspectRatio    AspectRatio
	Style          ImageStyle
	NegativePrompt string
	OutputLength   OutputLength
	WritingStyle   WritingStyle
}

// DefaultOptions returns text plus image output at the default styles.
func DefaultOptions() Options {
	return Options{
		Modalities:   []Modality{ModalityText, ModalityImage},
		AspectRatio:  "1:1",
		Style:        "none",
		OutputLength: LengthMedium,
		WritingStyle: "standard",
	}
}

// Wants reports whether m is among the requested modalities.
func (o Options) Wants(m Modality) bool {
	return slices.Contains(o.Modalities, m)
}

// Validate checks every field against the recognized values.
func (o Options) Validate() error {
	if len(o.Modalities) == 0 {
		return fmt.Errorf("at least one modality is required")
	}
	for _, m := range o.Modalities {
		switch m {
		case ModalityText, ModalityImage, ModalityAudio:
		default:
			return fmt.Errorf("unknown modality %q", m)
		}
	}
	if o.AspectRatio != "" && !slices.Contains(AspectRatios, o.AspectRatio) {
		return fmt.Errorf("unknown aspect ratio %q (valid: %v)", o.AspectRatio, AspectRatios)
	}
	if o.Style != "" && !slices.Contains(ImageStyles, o.Style) {
		return fmt.Errorf("unknown image style %q (valid: %v)", o.Style, ImageStyles)
	}
	if o.OutputLength != "" && !slices.Contains(OutputLengths, o.OutputLength) {
		return fmt.Errorf("unknown output length %q (valid: %v)", o.OutputLength, OutputLengths)
	}
	if o.WritingStyle != "" && !slices.Contains(WritingStyles, o.WritingStyle) {
		return fmt.Errorf("unknown writing style %q (valid: %v)", o.WritingStyle, WritingStyles)
	}
	return nil
}

// OptionsFromSettings converts user settings into validated request options.
// An imageGenerationCount of zero requests text only.
func OptionsFromSettings(s config.AppSettings) (Options, error) {
	o := Options{
		Modalities:     []Modality{ModalityText},
		AspectRatio:    AspectRatio(s.ImageAspectRatio),
		Style:          ImageStyle(s.ImageStyle),
		NegativePrompt: strings.TrimSpace(s.ImageNegativePrompt),
		OutputLength:   OutputLength(s.ChatOutputLength),
		WritingStyle:   WritingStyle(s.ChatWritingStyle),
	}
	if s.ImageGenerationCount > 0 {
		o.Modalities = append(o.Modalities, ModalityImage)
	}
	if err := o.Validate(); err != nil {
		return Options{}, err
	}
	return o, nil
}

// ValidateSettings checks settings that do not map onto Options.
func ValidateSettings(s config.AppSettings) error {
	if _, err := OptionsFromSettings(s); err != nil {
		return err
	}
	if !slices.Contains(Providers, s.ChatProvider) {
		return fmt.Errorf("unsupported chat provider %q (valid: %v)", s.ChatProvider, Providers)
	}
	if !slices.Contains(Providers, s.ImageProvider) {
		return fmt.Errorf("unsupported image provider %q (valid: %v)", s.ImageProvider, Providers)
	}
	if strings.TrimSpace(s.ChatModel) == "" {
		return fmt.Errorf("chatModel must not be empty")
	}
	if s.ImageGenerationCount < 0 || s.ImageGenerationCount > MaxImageCount {
		return fmt.Errorf("imageGenerationCount must be between 0 and %d", MaxImageCount)
	}
	if !slices.Contains(Voices, s.TTSVoice) {
		return fmt.Errorf("unknown voice %q (valid: %v)", s.TTSVoice, Voices)
	}
	return nil
}

func (o Options) modalityStrings() []string {
	out := make([]string, len(o.Modalities))
	for i, m := range o.Modalities {
		out[i] = string(m)
	}
	return out
}
