package assets

import (
	"context"
	"fmt"

	"storyweaver/internal/story"
	"storyweaver/internal/types"
)

// Action is what applying an asset does to a story.
type Action int

const (
	ActionNone Action = iota
	ActionSetTheme
	ActionSetMusic
	ActionInsertTurn
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionSetTheme:
		return "set-theme"
	case ActionSetMusic:
		return "set-music"
	case ActionInsertTurn:
		return "insert-turn"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Mode selects between kind-specific application and plain insertion.
type Mode int

const (
	// ModeApply maps image to theme, audio to background music and video to a turn.
	ModeApply Mode = iota
	// ModeInsert appends a turn for any media kind.
	ModeInsert
)

// ActionFor returns the action applying a in the given mode performs.
func ActionFor(a *types.Asset, mode Mode) Action {
	if !a.Kind.Valid() {
		return ActionNone
	}
	if mode == ModeInsert {
		return ActionInsertTurn
	}
	switch a.Kind {
	case types.AssetImage:
		return ActionSetTheme
	case types.AssetAudio:
		return ActionSetMusic
	case types.AssetVideo:
		return ActionInsertTurn
	}
	return ActionNone
}

// StoryEditor is the subset of the story aggregate that applying needs.
type StoryEditor interface {
	SetMetadata(ctx context.Context, id string, md story.Metadata) (*types.Story, error)
	AppendTurn(ctx context.Context, id string, turn types.Turn) (*types.Story, error)
}

// Apply copies the asset's content into the story according to its action.
// The story keeps its own copy; it holds no reference back to the asset.
// ActionNone leaves the story untouched and returns a nil story.
func Apply(ctx context.Context, stories StoryEditor, storyID string, a *types.Asset, mode Mode) (Action, *types.Story, error) {
	action := ActionFor(a, mode)
	var (
		st  *types.Story
		err error
	)
	switch action {
	case ActionSetTheme:
		content := a.Data
		st, err = stories.SetMetadata(ctx, storyID, story.Metadata{ThemeImage: &content})
	case ActionSetMusic:
		content := a.Data
		st, err = stories.SetMetadata(ctx, storyID, story.Metadata{BgMusic: &content})
	case ActionInsertTurn:
		st, err = stories.AppendTurn(ctx, storyID, types.NewTurn(a.Kind.TurnKind(), a.Data))
	default:
		return ActionNone, nil, nil
	}
	if err != nil {
		return action, nil, fmt.Errorf("apply asset %s: %w", a.ID, err)
	}
	return action, st, nil
}
