package audio

import (
	"context"
	"fmt"
	"mime"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"storyweaver/internal/logging"
)

// VolumePlaceholder in a player argument is replaced by the line volume (0 to 1).
const VolumePlaceholder = "{volume}"

// ExecSink plays clips by spawning an external player with the clip path appended,
// for example []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet"}.
type ExecSink struct {
	Command []string
	TempDir string
}

// NewExecSink creates a sink for the given player command.
func NewExecSink(command []string) *ExecSink {
	return &ExecSink{Command: command}
}

// Play writes the clip to a temporary file and starts the player.
// Looping clips are restarted until stopped.
func (s *ExecSink) Play(ctx context.Context, line Line, clip Clip, volume float64) (Playback, error) {
	if len(s.Command) == 0 {
		return nil, fmt.Errorf("no player command configured")
	}

	f, err := os.CreateTemp(s.TempDir, "storyweaver-*"+extensionFor(clip.MIMEType))
	if err != nil {
		return nil, fmt.Errorf("failed to create clip file: %w", err)
	}
	if _, err := f.Write(clip.Data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to write clip file: %w", err)
	}
	f.Close()

	args := make([]string, 0, len(s.Command))
	for _, a := range s.Command[1:] {
		args = append(args, strings.ReplaceAll(a, VolumePlaceholder, strconv.FormatFloat(volume, 'f', 2, 64)))
	}
	args = append(args, f.Name())

	ctx, cancel := context.WithCancel(ctx)
	pb := &execPlayback{cancel: cancel, done: make(chan struct{}), path: f.Name()}

	start := func() (*exec.Cmd, error) {
		cmd := exec.CommandContext(ctx, s.Command[0], args...)
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		return cmd, nil
	}
	cmd, err := start()
	if err != nil {
		cancel()
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to start player %s: %w", s.Command[0], err)
	}
	logging.AudioDebug("Player started for %s line: %s %v", line, s.Command[0], args)

	go func() {
		defer close(pb.done)
		defer os.Remove(pb.path)
		for {
			err := cmd.Wait()
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				logging.Get(logging.CategoryAudio).Warn("Player exited: %v", err)
				return
			}
			if !clip.Loop {
				return
			}
			if cmd, err = start(); err != nil {
				logging.Get(logging.CategoryAudio).Warn("Failed to restart looping clip: %v", err)
				return
			}
		}
	}()
	return pb, nil
}

type execPlayback struct {
	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
	path   string
}

func (p *execPlayback) Stop() error {
	p.once.Do(p.cancel)
	<-p.done
	return nil
}

func (p *execPlayback) Done() <-chan struct{} { return p.done }

func extensionFor(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	switch base {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/mpeg":
		return ".mp3"
	}
	if exts, err := mime.ExtensionsByType(base); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

// NopSink accepts clips and discards them; playbacks finish immediately
// unless they loop, in which case they run until stopped.
type NopSink struct{}

// Play implements Sink.
func (NopSink) Play(_ context.Context, _ Line, clip Clip, _ float64) (Playback, error) {
	pb := &nopPlayback{done: make(chan struct{})}
	if !clip.Loop {
		pb.once.Do(func() { close(pb.done) })
	}
	return pb, nil
}

type nopPlayback struct {
	once sync.Once
	done chan struct{}
}

func (p *nopPlayback) Stop() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

func (p *nopPlayback) Done() <-chan struct{} { return p.done }
