package backend

import (
	"fmt"
	"strings"
)

// ContextTurns is how many recent turns feed the prompt context.
const ContextTurns = 3

// BuildPrompt renders the user content of a generation request.
// recent holds the last turns' text, most recent last; media turns contribute empty lines.
func BuildPrompt(recent []string, instruction string) string {
	return fmt.Sprintf("Context: %s\nPrompt: %s", strings.Join(recent, "\n"), instruction)
}

var lengthDirectives = map[OutputLength]string{
	LengthShort:  "Keep the response brief: one or two short paragraphs.",
	LengthMedium: "Write a moderate amount: around three or four paragraphs.",
	LengthLong:   "Write a long, richly detailed passage.",
}

// SystemInstruction renders the style directives implied by o.
// It returns an empty string when every option is at its neutral value.
func SystemInstruction(o Options) string {
	var lines []string
	if o.WritingStyle != "" && o.WritingStyle != "standard" {
		lines = append(lines, fmt.Sprintf("Write in a %s style.", o.WritingStyle))
	}
	if d, ok := lengthDirectives[o.OutputLength]; ok && o.Wants(ModalityText) {
		lines = append(lines, d)
	}
	if o.Wants(ModalityImage) {
		if o.Style != "" && o.Style != "none" {
			lines = append(lines, fmt.Sprintf("Render any images in a %s style.", strings.ReplaceAll(string(o.Style), "-", " ")))
		}
		if o.NegativePrompt != "" {
			lines = append(lines, "Images must not contain: "+o.NegativePrompt+".")
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "You are a co-author of an illustrated story.\n" + strings.Join(lines, "\n")
}

// NarrationText strips markdown markers so the narrator does not read them aloud.
func NarrationText(markdown string) string {
	return strings.TrimSpace(strings.NewReplacer("#", "", "*", "", "`", "").Replace(markdown))
}
