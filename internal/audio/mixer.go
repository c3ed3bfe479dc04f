package audio

import (
	"context"
	"fmt"
	"sync"

	"storyweaver/internal/logging"
	"storyweaver/internal/types"
)

// Line is an independent output channel.
type Line int

const (
	LineNarration Line = iota
	LineBackground
)

func (l Line) String() string {
	switch l {
	case LineNarration:
		return "narration"
	case LineBackground:
		return "background"
	}
	return fmt.Sprintf("Line(%d)", int(l))
}

// Clip is an encoded audio payload.
type Clip struct {
	MIMEType string
	Data     []byte
	Loop     bool
}

// ClipFromDataURL decodes a data URL into a clip.
func ClipFromDataURL(dataURL string) (Clip, error) {
	mime, data, err := types.ParseDataURL(dataURL)
	if err != nil {
		return Clip{}, err
	}
	return Clip{MIMEType: mime, Data: data}, nil
}

// Playback is one running clip.
type Playback interface {
	Stop() error
	Done() <-chan struct{}
}

// Sink turns clips into sound.
type Sink interface {
	Play(ctx context.Context, line Line, clip Clip, volume float64) (Playback, error)
}

// Mixer owns the narration and background lines.
// Starting a clip on a line stops the clip already playing on that line only.
type Mixer struct {
	sink Sink

	mu       sync.Mutex
	current  map[Line]Playback
	volume   map[Line]float64
	narrator bool
}

// NewMixer creates a mixer with the narrator enabled.
func NewMixer(sink Sink, narrationVolume, backgroundVolume float64) *Mixer {
	return &Mixer{
		sink:    sink,
		current: make(map[Line]Playback),
		volume: map[Line]float64{
			LineNarration:  clampVolume(narrationVolume),
			LineBackground: clampVolume(backgroundVolume),
		},
		narrator: true,
	}
}

// PlayNarration speaks a WAV clip, replacing any narration in progress.
// It is a no-op while the narrator is disabled.
func (m *Mixer) PlayNarration(ctx context.Context, wav []byte) error {
	m.mu.Lock()
	enabled := m.narrator
	m.mu.Unlock()
	if !enabled {
		logging.AudioDebug("Narrator disabled, skipping %d byte clip", len(wav))
		return nil
	}
	return m.play(ctx, LineNarration, Clip{MIMEType: "audio/wav", Data: wav})
}

// PlayBackground starts looping background music, replacing the previous track.
func (m *Mixer) PlayBackground(ctx context.Context, clip Clip) error {
	clip.Loop = true
	return m.play(ctx, LineBackground, clip)
}

func (m *Mixer) play(ctx context.Context, line Line, clip Clip) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked(line)
	pb, err := m.sink.Play(ctx, line, clip, m.volume[line])
	if err != nil {
		logging.Get(logging.CategoryAudio).Error("Failed to start %s playback: %v", line, err)
		return fmt.Errorf("play %s: %w", line, err)
	}
	m.current[line] = pb
	logging.Audio("Started %s clip (%s, %d bytes)", line, clip.MIMEType, len(clip.Data))
	return nil
}

// Stop halts playback on one line.
func (m *Mixer) Stop(line Line) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked(line)
}

// StopAll halts both lines.
func (m *Mixer) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked(LineNarration)
	m.stopLocked(LineBackground)
}

func (m *Mixer) stopLocked(line Line) {
	pb, ok := m.current[line]
	if !ok {
		return
	}
	delete(m.current, line)
	if err := pb.Stop(); err != nil {
		logging.AudioDebug("Stopping %s: %v", line, err)
	}
}

// Playing reports whether a clip is running on line.
func (m *Mixer) Playing(line Line) bool {
	m.mu.Lock()
	pb, ok := m.current[line]
	m.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case <-pb.Done():
		return false
	default:
		return true
	}
}

// Wait blocks until the clip on line finishes or ctx is done.
func (m *Mixer) Wait(ctx context.Context, line Line) error {
	m.mu.Lock()
	pb, ok := m.current[line]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-pb.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetVolume sets a line's volume for clips started afterwards.
func (m *Mixer) SetVolume(line Line, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume[line] = clampVolume(v)
}

// Volume returns a line's volume.
func (m *Mixer) Volume(line Line) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume[line]
}

// SetNarrator enables or mutes narration. Muting stops the current clip.
func (m *Mixer) SetNarrator(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.narrator = enabled
	if !enabled {
		m.stopLocked(LineNarration)
	}
}

// NarratorEnabled reports the narrator toggle.
func (m *Mixer) NarratorEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.narrator
}

func clampVolume(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
