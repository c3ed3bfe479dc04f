package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"storyweaver/internal/app"
	"storyweaver/internal/audio"
	"storyweaver/internal/backend"
	"storyweaver/internal/store"
	"storyweaver/internal/types"
)

// session is one opened application for the duration of a command.
type session struct {
	app   *app.App
	store *store.LocalStore
}

func (s *session) Close() {
	s.app.Close()
	if err := s.store.Close(); err != nil {
		logger.Warn("Failed to close store", zap.Error(err))
	}
}

// openOptions selects which optional collaborators a command needs.
type openOptions struct {
	// audio routes playback to the configured external player.
	audio bool
}

// openSession opens the store, wires the backend and selects the story.
func openSession(ctx context.Context, cmd *cobra.Command, opts openOptions) (*session, error) {
	st, err := store.NewLocalStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	var sink audio.Sink = audio.NopSink{}
	if opts.audio {
		if len(cfg.Audio.PlayerCommand) == 0 {
			logger.Warn("No audio.player_command configured; playback is silent")
		} else {
			sink = audio.NewExecSink(cfg.Audio.PlayerCommand)
		}
	}

	appOpts := []app.Option{
		app.WithNotifier(&cliNotifier{w: cmd.ErrOrStderr()}),
		app.WithMixer(audio.NewMixer(sink, cfg.Audio.Volume, cfg.Audio.MusicVolume)),
		app.WithSpeechSampleRate(cfg.Audio.SampleRate),
	}
	if cfg.Backend.APIKey != "" {
		g, err := backend.NewGemini(ctx, backend.GeminiConfig{
			APIKey:            cfg.Backend.APIKey,
			TTSModel:          cfg.Backend.TTSModel,
			VideoModel:        cfg.Backend.VideoModel,
			VideoPollInterval: cfg.GetVideoPollInterval(),
			VideoPollAttempts: cfg.GetVideoPollAttempts(),
		})
		if err != nil {
			st.Close()
			return nil, err
		}
		appOpts = append(appOpts, app.WithBackend(g))
	}

	a := app.New(st, appOpts...)
	sess := &session{app: a, store: st}
	if err := a.Start(ctx); err != nil {
		sess.Close()
		return nil, err
	}
	if storyID != "" {
		id, err := matchID(storyIDs(a.Stories.List()), storyID)
		if err == nil {
			_, err = a.SelectStory(ctx, id)
		}
		if err != nil {
			sess.Close()
			return nil, fmt.Errorf("story %s: %w", storyID, err)
		}
	}
	logger.Debug("Session opened", zap.String("story", a.CurrentID()))
	return sess, nil
}

// commandContext returns a context cancelled on SIGINT/SIGTERM and bounded by
// --timeout, or by fallback when the flag is unset. A zero bound means none.
func commandContext(fallback time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	d := timeout
	if d <= 0 {
		d = fallback
	}
	if d <= 0 {
		return ctx, stop
	}
	tctx, cancel := context.WithTimeout(ctx, d)
	return tctx, func() {
		cancel()
		stop()
	}
}

// cliNotifier prints notices to stderr.
type cliNotifier struct {
	w io.Writer
}

func (n *cliNotifier) Notify(level types.NoticeLevel, msg string) {
	logger.Debug("Notice", zap.String("level", string(level)), zap.String("message", msg))
	fmt.Fprintln(n.w, noticeStyle(level).Render(strings.ToUpper(string(level))+":"), msg)
}

// prompter asks yes/no questions on the command's input.
type prompter struct {
	out io.Writer
	in  *bufio.Reader
}

func newPrompter(cmd *cobra.Command) *prompter {
	return &prompter{out: cmd.OutOrStdout(), in: bufio.NewReader(cmd.InOrStdin())}
}

func (p *prompter) confirm(question string) bool {
	fmt.Fprintf(p.out, "%s [y/N] ", question)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(p.out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
