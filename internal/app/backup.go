package app

import (
	"context"
	"fmt"
	"io"

	"storyweaver/internal/backup"
	"storyweaver/internal/logging"
	"storyweaver/internal/types"
)

// Export writes a full backup of settings, stories and assets to w.
func (a *App) Export(w io.Writer) (*backup.Document, error) {
	doc := backup.Export(a.Settings(), a.Stories.List(), a.Assets.List(""), a.now())
	if err := doc.Encode(w); err != nil {
		return nil, err
	}
	logging.App("Exported %d stories and %d assets", len(doc.Stories), len(doc.Assets))
	return doc, nil
}

// ImportOptions controls how an import is applied.
type ImportOptions struct {
	// Confirm decides whether an incoming story replaces an existing one. Nil keeps existing stories.
	Confirm backup.ConfirmFunc
	// RestoreSettings applies the settings carried by a system backup.
	RestoreSettings bool
}

// Import parses data in any supported shape and merges it into the library.
// Nothing is applied when the input is malformed.
func (a *App) Import(ctx context.Context, data []byte, opts ImportOptions) (backup.Result, error) {
	p, err := backup.Parse(data, a.now())
	if err != nil {
		return backup.Result{}, err
	}
	res := backup.Import(ctx, p, importTarget{a}, opts.Confirm)

	if opts.RestoreSettings && p.Settings != nil {
		if err := a.SaveSettings(ctx, *p.Settings); err != nil {
			a.notifier.Notify(types.NoticeWarn, fmt.Sprintf("Backup settings were not restored: %v", err))
		}
	}

	if a.CurrentID() == "" || !a.Stories.Has(a.CurrentID()) {
		if latest, ok := a.Stories.Latest(); ok {
			a.setCurrent(latest.ID)
		}
	}
	return res, nil
}

// importTarget adapts the libraries to backup.Target.
type importTarget struct{ a *App }

func (t importTarget) HasStory(id string) bool { return t.a.Stories.Has(id) }

func (t importTarget) PutStory(ctx context.Context, st *types.Story) { t.a.Stories.Put(ctx, st) }

func (t importTarget) HasAsset(id string) bool { return t.a.Assets.Has(id) }

func (t importTarget) PutAsset(ctx context.Context, asset *types.Asset) { t.a.Assets.Put(ctx, asset) }
