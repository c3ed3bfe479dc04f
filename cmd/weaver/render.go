package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"storyweaver/internal/types"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C6C6C"))

	currentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			Bold(true)

	mediaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFB86C")).
			Italic(true)
)

func noticeStyle(level types.NoticeLevel) lipgloss.Style {
	switch level {
	case types.NoticeError:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Bold(true)
	case types.NoticeWarn:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C")).Bold(true)
	}
	return mutedStyle
}

// renderMarkdown renders a text turn for the terminal, falling back to the raw text.
func renderMarkdown(md string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatTime(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04")
}

func formatSize(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}

// describeMedia summarizes a data URL without printing its payload.
func describeMedia(kind, dataURL string) string {
	mime, data, err := types.ParseDataURL(dataURL)
	if err != nil {
		return fmt.Sprintf("[%s] (unreadable)", kind)
	}
	return fmt.Sprintf("[%s] %s, %s", kind, mime, formatSize(len(data)))
}

func printStoryList(w io.Writer, stories []*types.Story, currentID string) {
	if len(stories) == 0 {
		fmt.Fprintln(w, "No stories yet. Start one with: weaver new")
		return
	}
	fmt.Fprintln(w, titleStyle.Render("Story Library"))
	fmt.Fprintln(w, strings.Repeat("─", 60))
	for _, st := range stories {
		marker := "  "
		if st.ID == currentID {
			marker = currentStyle.Render("* ")
		}
		fmt.Fprintf(w, "%s%s  %-32s %s\n", marker, shortID(st.ID), st.Title,
			mutedStyle.Render(fmt.Sprintf("%d turns, %s", len(st.Conversation), formatTime(st.UpdatedAt))))
	}
	fmt.Fprintln(w, strings.Repeat("─", 60))
	fmt.Fprintf(w, "Total: %d stories\n", len(stories))
}

func printStory(w io.Writer, st *types.Story, raw bool) {
	fmt.Fprintln(w, titleStyle.Render(st.Title))
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("%s  updated %s", st.ID, formatTime(st.UpdatedAt))))
	if st.FontFamily != "" {
		fmt.Fprintln(w, mutedStyle.Render("font: "+st.FontFamily))
	}
	if st.ThemeImage != "" {
		fmt.Fprintln(w, mutedStyle.Render("theme: "+describeMedia("image", st.ThemeImage)))
	}
	if st.BgMusic != "" {
		fmt.Fprintln(w, mutedStyle.Render("music: "+describeMedia("audio", st.BgMusic)))
	}
	fmt.Fprintln(w)
	if len(st.Conversation) == 0 {
		fmt.Fprintln(w, "(empty story)")
	}
	for _, t := range st.Conversation {
		printTurn(w, t, raw)
	}
	if st.Script != "" {
		fmt.Fprintln(w, titleStyle.Render("Script"))
		fmt.Fprintln(w, st.Script)
	}
}

func printTurn(w io.Writer, t types.Turn, raw bool) {
	fmt.Fprintln(w, mutedStyle.Render("── "+t.ID))
	if t.Kind.IsMedia() {
		fmt.Fprintln(w, mediaStyle.Render(describeMedia(string(t.Kind), t.Content)))
		fmt.Fprintln(w)
		return
	}
	if raw {
		fmt.Fprintln(w, t.Content)
		fmt.Fprintln(w)
		return
	}
	fmt.Fprint(w, renderMarkdown(t.Content))
}

func printAssets(w io.Writer, list []*types.Asset, currentID string) {
	if len(list) == 0 {
		fmt.Fprintln(w, "Asset library is empty.")
		return
	}
	fmt.Fprintln(w, titleStyle.Render("Assets"))
	for _, a := range list {
		marker := "  "
		if currentID != "" && a.StoryID == currentID {
			marker = currentStyle.Render("* ")
		}
		fmt.Fprintf(w, "%s%s  %-6s %-28s %s\n", marker, shortID(a.ID), a.Kind, a.Name,
			mutedStyle.Render(fmt.Sprintf("%s, %s", a.MimeType, formatTime(a.CreatedAt))))
	}
}
