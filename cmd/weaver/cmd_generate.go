package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"storyweaver/internal/audio"
)

// =============================================================================
// GENERATION COMMANDS
// =============================================================================

func newGenerateCmd() *cobra.Command {
	var narrate bool
	cmd := &cobra.Command{
		Use:   "generate <prompt...>",
		Short: "Continue the current story from a prompt",
		Long: `Streams new turns into the current story (a story is created when none
exists). The last three turns are sent as context. Generated images are also
saved to the asset library.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cfg.GetBackendTimeout())
			defer cancel()
			sess, err := openSession(ctx, cmd, openOptions{audio: narrate})
			if err != nil {
				return err
			}
			defer sess.Close()
			sess.app.Mixer().SetNarrator(narrate)

			prompt := strings.Join(args, " ")
			logger.Info("Generating", zap.String("prompt", prompt))
			res, err := sess.app.Generate(ctx, prompt)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, t := range res.Turns {
				printTurn(out, t, false)
			}
			for _, a := range res.Assets {
				fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("Saved %s to assets as %q", a.Kind, a.Name)))
			}
			if narrate {
				waitLine(ctx, sess.app.Mixer(), audio.LineNarration)
			}
			if res.Err != nil {
				return fmt.Errorf("generation ended early: %w", res.Err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&narrate, "narrate", false, "Read the new text aloud")
	return cmd
}

func newRegenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "regenerate <turn-id> [instruction...]",
		Short: "Produce fresh content for a text or image turn",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCurrentTurn(cmd, args[0], func(ctx context.Context, sess *session, turnID string) error {
				gctx, cancel := context.WithTimeout(ctx, cfg.GetBackendTimeout())
				defer cancel()
				st, err := sess.app.Regenerate(gctx, turnID, strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				printTurn(cmd.OutOrStdout(), st.Conversation[st.TurnIndex(turnID)], false)
				return nil
			})
		},
	}
}

func newSpeakCmd() *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "speak [turn-id]",
		Short: "Narrate a turn of the current story, or --text",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if text == "" && len(args) == 0 {
				return fmt.Errorf("give a turn id or --text")
			}
			ctx, cancel := commandContext(cfg.GetBackendTimeout())
			defer cancel()
			sess, err := openSession(ctx, cmd, openOptions{audio: true})
			if err != nil {
				return err
			}
			defer sess.Close()

			if text != "" {
				err = sess.app.Speak(ctx, text)
			} else {
				st, ok := sess.app.Current()
				if !ok {
					return fmt.Errorf("no story selected")
				}
				ids := make([]string, len(st.Conversation))
				for i, t := range st.Conversation {
					ids[i] = t.ID
				}
				var turnID string
				if turnID, err = matchID(ids, args[0]); err != nil {
					return fmt.Errorf("turn %s: %w", args[0], err)
				}
				err = sess.app.SpeakTurn(ctx, turnID)
			}
			if err != nil {
				return err
			}
			waitLine(ctx, sess.app.Mixer(), audio.LineNarration)
			return nil
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "Text to narrate instead of a turn")
	return cmd
}

func newVideoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "video <prompt...>",
		Short: "Generate a video and save it to the asset library",
		Long: `Starts a long-running video generation and polls it until it finishes
(every backend.video_poll_interval, at most backend.video_poll_attempts times).
Apply the result with: weaver assets apply <id>`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(0)
			defer cancel()
			sess, err := openSession(ctx, cmd, openOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("Generating video, this can take a few minutes..."))
			a, err := sess.app.GenerateVideo(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved video asset %s (%q)\n", a.ID, a.Name)
			return nil
		},
	}
}

func newPlayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "play",
		Short: "Play the current story's background music until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(0)
			defer cancel()
			sess, err := openSession(ctx, cmd, openOptions{audio: true})
			if err != nil {
				return err
			}
			defer sess.Close()

			playing, err := sess.app.PlayMusic(ctx)
			if err != nil {
				return err
			}
			if !playing {
				fmt.Fprintln(cmd.OutOrStdout(), "The current story has no background music.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("Playing background music, Ctrl+C to stop."))
			waitLine(ctx, sess.app.Mixer(), audio.LineBackground)
			return nil
		},
	}
}

// waitLine blocks until a line finishes or the command is interrupted.
func waitLine(ctx context.Context, m *audio.Mixer, line audio.Line) {
	if err := m.Wait(ctx, line); err != nil && !errors.Is(err, context.Canceled) {
		logger.Debug("Stopped waiting for playback", zap.Stringer("line", line), zap.Error(err))
	}
	m.StopAll()
}
