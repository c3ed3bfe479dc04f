package story

import (
	"strings"

	"storyweaver/internal/types"
)

var titleMarkers = strings.NewReplacer("#", "", "*", "", "`", "")

// TitleFromText strips markdown heading, emphasis and code markers and
// truncates to types.TitleMaxLen characters with an ellipsis.
func TitleFromText(text string) string {
	text = strings.TrimSpace(titleMarkers.Replace(text))
	runes := []rune(text)
	if len(runes) > types.TitleMaxLen {
		return string(runes[:types.TitleMaxLen]) + "..."
	}
	return text
}

// AutoTitle returns the title st should carry after a mutation.
// Only a placeholder title is ever replaced, and only from a leading text turn.
func AutoTitle(st *types.Story) string {
	if st.Title != types.DefaultStoryTitle || len(st.Conversation) == 0 {
		return st.Title
	}
	first := st.Conversation[0]
	if first.Kind != types.TurnText {
		return st.Title
	}
	if t := TitleFromText(first.Content); t != "" {
		return t
	}
	return st.Title
}
