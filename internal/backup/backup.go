// Package backup exports the whole library as one JSON document and imports
// any of the shapes Story Weaver has ever produced.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"storyweaver/internal/config"
	"storyweaver/internal/logging"
	"storyweaver/internal/types"
)

// FormatVersion is the version written into exported documents.
const FormatVersion = 1

var (
	// ErrUnrecognizedFormat is returned when input matches no known shape.
	ErrUnrecognizedFormat = errors.New("unrecognized import format")
	// ErrUnsupportedVersion is returned for backups written by a newer format.
	ErrUnsupportedVersion = errors.New("unsupported backup version")
)

// Document is the full-system backup.
type Document struct {
	Version   int                 `json:"version"`
	Timestamp int64               `json:"timestamp"`
	Settings  *config.AppSettings `json:"settings,omitempty"`
	Stories   []*types.Story      `json:"stories"`
	Assets    []*types.Asset      `json:"assets"`
}

// Export builds a backup document.
func Export(settings config.AppSettings, stories []*types.Story, assets []*types.Asset, now time.Time) *Document {
	if stories == nil {
		stories = []*types.Story{}
	}
	if assets == nil {
		assets = []*types.Asset{}
	}
	return &Document{
		Version:   FormatVersion,
		Timestamp: now.UnixMilli(),
		Settings:  &settings,
		Stories:   stories,
		Assets:    assets,
	}
}

// Encode writes the document as indented JSON.
func (d *Document) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}
	return nil
}

// Filename returns the conventional backup file name for now.
func Filename(now time.Time) string {
	return fmt.Sprintf("story-weaver-backup-%s.json", now.UTC().Format("2006-01-02T15-04-05Z"))
}

// Format identifies the detected shape of an import.
type Format int

const (
	FormatBackup Format = iota
	FormatStory
	FormatStories
	FormatLegacyTurns
)

func (f Format) String() string {
	switch f {
	case FormatBackup:
		return "system backup"
	case FormatStory:
		return "single story"
	case FormatStories:
		return "story collection"
	case FormatLegacyTurns:
		return "legacy conversation"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// Payload is validated import content, ready to apply.
type Payload struct {
	Format   Format
	Stories  []*types.Story
	Assets   []*types.Asset
	Settings *config.AppSettings
}

// Parse detects the shape of data and validates every record.
// Nothing is returned unless the whole input is well formed.
func Parse(data []byte, now time.Time) (*Payload, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrUnrecognizedFormat)
	}

	var (
		p   *Payload
		err error
	)
	switch trimmed[0] {
	case '{':
		p, err = parseObject(trimmed)
	case '[':
		p, err = parseArray(trimmed, now)
	default:
		return nil, fmt.Errorf("%w: not a JSON object or array", ErrUnrecognizedFormat)
	}
	if err != nil {
		return nil, err
	}

	for i, st := range p.Stories {
		if st == nil {
			return nil, fmt.Errorf("invalid story in import: %w: null entry at %d", ErrUnrecognizedFormat, i)
		}
		normalizeStory(st, now)
		if err := st.Validate(); err != nil {
			return nil, fmt.Errorf("invalid story in import: %w", err)
		}
	}
	for i, a := range p.Assets {
		if a == nil {
			return nil, fmt.Errorf("invalid asset in import: %w: null entry at %d", ErrUnrecognizedFormat, i)
		}
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("invalid asset in import: %w", err)
		}
	}
	logging.Backup("Parsed %s: %d stories, %d assets", p.Format, len(p.Stories), len(p.Assets))
	return p, nil
}

func parseObject(data []byte) (*Payload, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognizedFormat, err)
	}

	if raw, ok := fields["stories"]; ok && isArray(raw) {
		var doc Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("malformed backup: %w", err)
		}
		if doc.Version > FormatVersion {
			return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, doc.Version)
		}
		return &Payload{Format: FormatBackup, Stories: doc.Stories, Assets: doc.Assets, Settings: doc.Settings}, nil
	}

	if _, hasID := fields["id"]; hasID && isArray(fields["conversation"]) {
		var st types.Story
		if err := json.Unmarshal(data, &st); err != nil {
			return nil, fmt.Errorf("malformed story: %w", err)
		}
		return &Payload{Format: FormatStory, Stories: []*types.Story{&st}}, nil
	}

	return nil, ErrUnrecognizedFormat
}

func parseArray(data []byte, now time.Time) (*Payload, error) {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognizedFormat, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: empty array", ErrUnrecognizedFormat)
	}

	first := items[0]
	if _, ok := first["conversation"]; ok {
		var stories []*types.Story
		if err := json.Unmarshal(data, &stories); err != nil {
			return nil, fmt.Errorf("malformed story collection: %w", err)
		}
		return &Payload{Format: FormatStories, Stories: stories}, nil
	}

	_, hasType := first["type"]
	_, hasContent := first["content"]
	if hasType && hasContent {
		var turns []types.Turn
		if err := json.Unmarshal(data, &turns); err != nil {
			return nil, fmt.Errorf("malformed turn list: %w", err)
		}
		st := types.NewStory(now)
		for _, t := range turns {
			if t.ID == "" {
				t.ID = types.NewID()
			}
			st.Conversation = append(st.Conversation, t)
		}
		return &Payload{Format: FormatLegacyTurns, Stories: []*types.Story{st}}, nil
	}

	return nil, ErrUnrecognizedFormat
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

func normalizeStory(st *types.Story, now time.Time) {
	if st.Conversation == nil {
		st.Conversation = []types.Turn{}
	}
	if st.Title == "" {
		st.Title = types.DefaultStoryTitle
	}
	if st.CreatedAt == 0 {
		st.CreatedAt = now.UnixMilli()
	}
	if st.UpdatedAt == 0 {
		st.UpdatedAt = st.CreatedAt
	}
}

// Target receives imported records.
type Target interface {
	HasStory(id string) bool
	PutStory(ctx context.Context, st *types.Story)
	HasAsset(id string) bool
	PutAsset(ctx context.Context, a *types.Asset)
}

// ConfirmFunc decides whether an incoming story may replace the existing one with its id.
type ConfirmFunc func(incoming *types.Story) bool

// Result counts what an import did.
type Result struct {
	Format          Format
	StoriesImported int
	StoriesSkipped  int
	AssetsImported  int
	AssetsSkipped   int
}

// Import applies a parsed payload to target.
// Existing stories are replaced only when confirm agrees; existing assets are kept.
func Import(ctx context.Context, p *Payload, target Target, confirm ConfirmFunc) Result {
	res := Result{Format: p.Format}
	for _, st := range p.Stories {
		if target.HasStory(st.ID) && (confirm == nil || !confirm(st)) {
			logging.Backup("Skipped existing story %s", st.ID)
			res.StoriesSkipped++
			continue
		}
		target.PutStory(ctx, st)
		res.StoriesImported++
	}
	for _, a := range p.Assets {
		if target.HasAsset(a.ID) {
			res.AssetsSkipped++
			continue
		}
		target.PutAsset(ctx, a)
		res.AssetsImported++
	}
	logging.Backup("Import complete: stories=%d (skipped %d), assets=%d (skipped %d)",
		res.StoriesImported, res.StoriesSkipped, res.AssetsImported, res.AssetsSkipped)
	return res
}
