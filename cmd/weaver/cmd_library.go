package main

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"storyweaver/internal/app"
	"storyweaver/internal/assets"
	"storyweaver/internal/backup"
	"storyweaver/internal/config"
	"storyweaver/internal/types"
)

// =============================================================================
// ASSET LIBRARY COMMANDS
// =============================================================================

func newAssetsCmd() *cobra.Command {
	assetsCmd := &cobra.Command{
		Use:   "assets",
		Short: "Manage the reusable media library",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List assets, the current story's first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(0)
			defer cancel()
			sess, err := openSession(ctx, cmd, openOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			printAssets(cmd.OutOrStdout(), sess.app.ListAssets(), sess.app.CurrentID())
			return nil
		},
	}

	var name string
	addCmd := &cobra.Command{
		Use:   "add <file>",
		Short: "Upload an image, audio or video file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			mimeType := detectMIME(args[0], data)

			ctx, cancel := commandContext(0)
			defer cancel()
			sess, err := openSession(ctx, cmd, openOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			n := name
			if n == "" {
				n = filepath.Base(args[0])
			}
			a, err := sess.app.AddUpload(ctx, n, mimeType, data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s asset %s (%q)\n", a.Kind, a.ID, a.Name)
			return nil
		},
	}
	addCmd.Flags().StringVar(&name, "name", "", "Asset name (default: file name)")

	rmCmd := &cobra.Command{
		Use:   "rm <asset-id>",
		Short: "Remove an asset; stories keep any copy they hold",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(0)
			defer cancel()
			sess, err := openSession(ctx, cmd, openOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			id, err := matchID(assetIDs(sess.app.ListAssets()), args[0])
			if err != nil {
				return fmt.Errorf("asset %s: %w", args[0], err)
			}
			if err := sess.app.RemoveAsset(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed asset %s\n", id)
			return nil
		},
	}

	var insert bool
	applyCmd := &cobra.Command{
		Use:   "apply <asset-id>",
		Short: "Apply an asset to the current story",
		Long: `Images become the story's theme image, audio becomes its background music
and videos are appended as a turn. With --insert any asset is appended as a turn.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(0)
			defer cancel()
			sess, err := openSession(ctx, cmd, openOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			id, err := matchID(assetIDs(sess.app.ListAssets()), args[0])
			if err != nil {
				return fmt.Errorf("asset %s: %w", args[0], err)
			}
			mode := assets.ModeApply
			if insert {
				mode = assets.ModeInsert
			}
			action, err := sess.app.ApplyAsset(ctx, id, mode)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied asset %s: %s\n", id, action)
			return nil
		},
	}
	applyCmd.Flags().BoolVar(&insert, "insert", false, "Append the asset as a turn regardless of kind")

	assetsCmd.AddCommand(listCmd, addCmd, rmCmd, applyCmd)
	return assetsCmd
}

func assetIDs(list []*types.Asset) []string {
	ids := make([]string, len(list))
	for i, a := range list {
		ids[i] = a.ID
	}
	return ids
}

// mediaTypes covers media extensions missing from minimal mime tables.
var mediaTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
}

// detectMIME prefers the file extension and falls back to content sniffing.
func detectMIME(path string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := mediaTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		base, _, _ := strings.Cut(t, ";")
		return base
	}
	base, _, _ := strings.Cut(http.DetectContentType(data), ";")
	return base
}

// =============================================================================
// SCRIPT, BACKUP AND SETTINGS COMMANDS
// =============================================================================

func newScriptCmd() *cobra.Command {
	scriptCmd := &cobra.Command{
		Use:   "script",
		Short: "Manage the current story's project script",
	}
	addCmd := &cobra.Command{
		Use:   "add <file|->",
		Short: "Append a text document to the project script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(0)
			defer cancel()
			sess, err := openSession(ctx, cmd, openOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			st, err := sess.app.ImportDocument(ctx, string(data))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Appended %d bytes to the script of %s\n", len(data), st.ID)
			return nil
		},
	}
	scriptCmd.AddCommand(addCmd)
	return scriptCmd
}

func newExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a full backup of settings, stories and assets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(0)
			defer cancel()
			sess, err := openSession(ctx, cmd, openOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			path := out
			if path == "" {
				path = backup.Filename(timeNow())
			}
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", path, err)
			}
			doc, err := sess.app.Export(f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d stories and %d assets to %s\n", len(doc.Stories), len(doc.Assets), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default: story-weaver-backup-<time>.json)")
	return cmd
}

func newImportCmd() *cobra.Command {
	var yes, restoreSettings bool
	cmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Import a backup, a single story, a story list or a legacy turn list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(0)
			defer cancel()
			sess, err := openSession(ctx, cmd, openOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			p := newPrompter(cmd)
			res, err := sess.app.Import(ctx, data, app.ImportOptions{
				RestoreSettings: restoreSettings,
				Confirm: func(incoming *types.Story) bool {
					return yes || p.confirm(fmt.Sprintf("Story %q already exists. Overwrite?", incoming.Title))
				},
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %s: %d stories (%d skipped), %d assets (%d skipped)\n",
				res.Format, res.StoriesImported, res.StoriesSkipped, res.AssetsImported, res.AssetsSkipped)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Overwrite existing stories without asking")
	cmd.Flags().BoolVar(&restoreSettings, "restore-settings", false, "Apply the settings carried by a system backup")
	return cmd
}

func newSettingsCmd() *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change creative settings",
	}
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show all settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(0)
			defer cancel()
			sess, err := openSession(ctx, cmd, openOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			printSettings(cmd, sess.app.Settings())
			return nil
		},
	}
	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(0)
			defer cancel()
			sess, err := openSession(ctx, cmd, openOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			s, err := sess.app.Settings().Set(args[0], args[1])
			if err != nil {
				return err
			}
			if err := sess.app.SaveSettings(ctx, s); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], args[1])
			return nil
		},
	}
	settingsCmd.AddCommand(showCmd, setCmd)
	return settingsCmd
}

func printSettings(cmd *cobra.Command, s config.AppSettings) {
	keys := s.Keys()
	fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render("Settings"))
	for _, k := range keys {
		v, _ := s.Get(k)
		fmt.Fprintf(cmd.OutOrStdout(), "  %-22s %s\n", k, v)
	}
}
