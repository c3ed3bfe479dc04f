package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"storyweaver/internal/story"
	"storyweaver/internal/types"
)

// =============================================================================
// STORY COMMANDS
// =============================================================================

func newStoryCmds() []*cobra.Command {
	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Start a new story and make it current",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(0)
			defer cancel()
			sess, err := openSession(ctx, cmd, openOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			st := sess.app.NewStory(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "Created story %s\n", st.ID)
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stories, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(0)
			defer cancel()
			sess, err := openSession(ctx, cmd, openOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			printStoryList(cmd.OutOrStdout(), sess.app.Stories.List(), sess.app.CurrentID())
			return nil
		},
	}

	var raw bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current story",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(0)
			defer cancel()
			sess, err := openSession(ctx, cmd, openOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			st, ok := sess.app.Current()
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "No stories yet. Start one with: weaver new")
				return nil
			}
			printStory(cmd.OutOrStdout(), st, raw)
			return nil
		},
	}
	showCmd.Flags().BoolVar(&raw, "raw", false, "Print markdown without rendering")

	editCmd := &cobra.Command{
		Use:   "edit <turn-id> <content...>",
		Short: "Replace the content of a text turn",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCurrentTurn(cmd, args[0], func(ctx context.Context, sess *session, turnID string) error {
				if _, err := sess.app.EditTurn(ctx, turnID, strings.Join(args[1:], " ")); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Edited turn %s\n", turnID)
				return nil
			})
		},
	}

	rmTurnCmd := &cobra.Command{
		Use:   "rm-turn <turn-id>",
		Short: "Delete a turn from the current story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCurrentTurn(cmd, args[0], func(ctx context.Context, sess *session, turnID string) error {
				if _, err := sess.app.DeleteTurn(ctx, turnID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted turn %s\n", turnID)
				return nil
			})
		},
	}

	titleCmd := &cobra.Command{
		Use:   "title <title...>",
		Short: "Rename the current story",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(0)
			defer cancel()
			sess, err := openSession(ctx, cmd, openOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			st, err := sess.app.SetTitle(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %q\n", st.ID, st.Title)
			return nil
		},
	}

	fontCmd := &cobra.Command{
		Use:   "font <family>",
		Short: "Set the current story's font family (empty string clears it)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(0)
			defer cancel()
			sess, err := openSession(ctx, cmd, openOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			family := args[0]
			if _, err := sess.app.SetMetadata(ctx, story.Metadata{FontFamily: &family}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Font set to %q\n", family)
			return nil
		},
	}

	var yes bool
	deleteCmd := &cobra.Command{
		Use:   "delete <story-id>",
		Short: "Delete a story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(0)
			defer cancel()
			sess, err := openSession(ctx, cmd, openOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			id, err := matchID(storyIDs(sess.app.Stories.List()), args[0])
			if err != nil {
				return fmt.Errorf("story %s: %w", args[0], err)
			}
			if !yes && !newPrompter(cmd).confirm("Delete this project?") {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
				return nil
			}
			if err := sess.app.DeleteStory(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted story %s\n", id)
			return nil
		},
	}
	deleteCmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")

	return []*cobra.Command{newCmd, listCmd, showCmd, editCmd, rmTurnCmd, titleCmd, fontCmd, deleteCmd}
}

// withCurrentTurn opens a session and resolves a turn id prefix in the current story.
func withCurrentTurn(cmd *cobra.Command, prefix string, fn func(ctx context.Context, sess *session, turnID string) error) error {
	ctx, cancel := commandContext(0)
	defer cancel()
	sess, err := openSession(ctx, cmd, openOptions{})
	if err != nil {
		return err
	}
	defer sess.Close()

	st, ok := sess.app.Current()
	if !ok {
		return fmt.Errorf("no story selected")
	}
	ids := make([]string, len(st.Conversation))
	for i, t := range st.Conversation {
		ids[i] = t.ID
	}
	turnID, err := matchID(ids, prefix)
	if err != nil {
		return fmt.Errorf("turn %s: %w", prefix, err)
	}
	return fn(ctx, sess, turnID)
}

func storyIDs(stories []*types.Story) []string {
	ids := make([]string, len(stories))
	for i, st := range stories {
		ids[i] = st.ID
	}
	return ids
}

// matchID resolves an id or unique id prefix.
func matchID(ids []string, prefix string) (string, error) {
	var found []string
	for _, id := range ids {
		if id == prefix {
			return id, nil
		}
		if prefix != "" && strings.HasPrefix(id, prefix) {
			found = append(found, id)
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("not found")
	case 1:
		return found[0], nil
	}
	return "", fmt.Errorf("ambiguous prefix matches %d ids", len(found))
}
