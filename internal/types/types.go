// Package types provides the shared data model used across Story Weaver packages.
// This package exists to break import cycles between store, story, assets and backup.
// Types in this package should be foundational data structures with no complex dependencies.
package types

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultStoryTitle is the placeholder title of a story that has not been auto-titled yet.
const DefaultStoryTitle = "New Story Project"

// TitleMaxLen is the number of characters kept when deriving a title from text.
const TitleMaxLen = 30

// =============================================================================
// TURNS
// =============================================================================

// TurnKind is the immutable content kind of a turn.
type TurnKind string

const (
	TurnText  TurnKind = "text"
	TurnImage TurnKind = "image"
	TurnVideo TurnKind = "video"
	TurnAudio TurnKind = "audio"
)

// Valid reports whether k is one of the known turn kinds.
func (k TurnKind) Valid() bool {
	switch k {
	case TurnText, TurnImage, TurnVideo, TurnAudio:
		return true
	}
	return false
}

// IsMedia reports whether the kind carries a binary payload reference.
func (k TurnKind) IsMedia() bool {
	return k == TurnImage || k == TurnVideo || k == TurnAudio
}

// Turn is one unit of story content in narrative order.
// For text turns Content is markdown; for media turns it is a data URL.
type Turn struct {
	ID      string   `json:"id"`
	Kind    TurnKind `json:"type"`
	Content string   `json:"content"`
}

// NewTurn creates a turn with a fresh id.
func NewTurn(kind TurnKind, content string) Turn {
	return Turn{ID: NewID(), Kind: kind, Content: content}
}

// =============================================================================
// STORIES
// =============================================================================

// Story is an ordered authored work plus presentation metadata.
// Timestamps are Unix milliseconds, matching the persisted layout.
type Story struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Conversation []Turn `json:"conversation"`
	Script       string `json:"script,omitempty"`
	CreatedAt    int64  `json:"createdAt"`
	UpdatedAt    int64  `json:"updatedAt"`
	ThemeImage   string `json:"themeImage,omitempty"`
	FontFamily   string `json:"fontFamily,omitempty"`
	BgMusic      string `json:"bgMusic,omitempty"`
}

// NewStory returns an empty story with the placeholder title.
func NewStory(now time.Time) *Story {
	ms := now.UnixMilli()
	return &Story{
		ID:           NewID(),
		Title:        DefaultStoryTitle,
		Conversation: []Turn{},
		CreatedAt:    ms,
		UpdatedAt:    ms,
	}
}

// Clone returns a deep copy safe to hand to subscribers.
func (s *Story) Clone() *Story {
	if s == nil {
		return nil
	}
	c := *s
	c.Conversation = append([]Turn(nil), s.Conversation...)
	if c.Conversation == nil {
		c.Conversation = []Turn{}
	}
	return &c
}

// TurnIndex returns the position of the turn with the given id, or -1.
func (s *Story) TurnIndex(id string) int {
	for i, t := range s.Conversation {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// Updated returns UpdatedAt as a time.
func (s *Story) Updated() time.Time {
	return time.UnixMilli(s.UpdatedAt)
}

// RecentText returns the content of the last n turns, with media turns
// contributing an empty line, most recent last.
func (s *Story) RecentText(n int) []string {
	turns := s.Conversation
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]string, 0, len(turns))
	for _, t := range turns {
		if t.Kind == TurnText {
			out = append(out, t.Content)
		} else {
			out = append(out, "")
		}
	}
	return out
}

// Validate checks the structural invariants of an imported or loaded story.
func (s *Story) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("story id is empty")
	}
	seen := make(map[string]struct{}, len(s.Conversation))
	for i, t := range s.Conversation {
		if t.ID == "" {
			return fmt.Errorf("turn %d has no id", i)
		}
		if !t.Kind.Valid() {
			return fmt.Errorf("turn %s has unknown type %q", t.ID, t.Kind)
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("duplicate turn id %s", t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	return nil
}

// =============================================================================
// ASSETS
// =============================================================================

// AssetKind is the media kind of a library asset.
type AssetKind string

const (
	AssetImage AssetKind = "image"
	AssetAudio AssetKind = "audio"
	AssetVideo AssetKind = "video"
)

// Valid reports whether k is one of the known asset kinds.
func (k AssetKind) Valid() bool {
	switch k {
	case AssetImage, AssetAudio, AssetVideo:
		return true
	}
	return false
}

// TurnKind maps the asset kind onto the turn kind used when it is inserted.
func (k AssetKind) TurnKind() TurnKind {
	return TurnKind(k)
}

// AssetKindFromMIME derives the asset kind from a MIME type prefix.
func AssetKindFromMIME(mime string) (AssetKind, bool) {
	mime = strings.ToLower(strings.TrimSpace(mime))
	switch {
	case strings.HasPrefix(mime, "image/"):
		return AssetImage, true
	case strings.HasPrefix(mime, "audio/"):
		return AssetAudio, true
	case strings.HasPrefix(mime, "video/"):
		return AssetVideo, true
	}
	return "", false
}

// Asset is a reusable media item stored independently of any story.
// StoryID records provenance only; it is not an ownership link.
type Asset struct {
	ID        string    `json:"id"`
	Kind      AssetKind `json:"type"`
	Name      string    `json:"name"`
	Data      string    `json:"data"`
	MimeType  string    `json:"mimeType"`
	CreatedAt int64     `json:"createdAt"`
	StoryID   string    `json:"storyId,omitempty"`
}

// Validate checks the structural invariants of an imported or loaded asset.
func (a *Asset) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return errors.New("asset id is empty")
	}
	if !a.Kind.Valid() {
		return fmt.Errorf("asset %s has unknown type %q", a.ID, a.Kind)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// NewID returns an opaque unique identifier.
func NewID() string {
	return uuid.NewString()
}

// DataURL encodes a binary payload as a data URL content reference.
func DataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseDataURL decodes a base64 data URL into its MIME type and payload.
func ParseDataURL(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, errors.New("not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("data URL has no payload")
	}
	mime, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return mime, []byte(payload), nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return mime, data, nil
}

// Notifier surfaces non-fatal conditions to the user.
type Notifier interface {
	Notify(level NoticeLevel, message string)
}

// NoticeLevel grades a user notification.
type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeWarn  NoticeLevel = "warn"
	NoticeError NoticeLevel = "error"
)

// NopNotifier discards notifications.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(NoticeLevel, string) {}
