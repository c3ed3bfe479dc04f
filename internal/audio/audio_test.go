package audio

import (
	"context"
	"encoding/binary"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWrapPCMHeader(t *testing.T) {
	pcm := make([]byte, 480)
	wav := WrapPCM(pcm, SpeechSampleRate, SpeechChannels, SpeechBitsPerSample)

	require.Len(t, wav, 44+len(pcm))
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, uint32(36+len(pcm)), binary.LittleEndian.Uint32(wav[4:8]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, "fmt ", string(wav[12:16]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(wav[20:22]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(wav[22:24]))
	assert.Equal(t, uint32(24000), binary.LittleEndian.Uint32(wav[24:28]))
	assert.Equal(t, uint32(48000), binary.LittleEndian.Uint32(wav[28:32]))
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(wav[32:34]))
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(wav[34:36]))
	assert.Equal(t, "data", string(wav[36:40]))
	assert.Equal(t, uint32(len(pcm)), binary.LittleEndian.Uint32(wav[40:44]))
}

// fakeSink records plays and hands out playbacks that run until stopped.
type fakeSink struct {
	mu    sync.Mutex
	plays []fakePlay
}

type fakePlay struct {
	line   Line
	clip   Clip
	volume float64
	pb     *nopPlayback
}

func (s *fakeSink) Play(_ context.Context, line Line, clip Clip, volume float64) (Playback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pb := &nopPlayback{done: make(chan struct{})}
	s.plays = append(s.plays, fakePlay{line, clip, volume, pb})
	return pb, nil
}

func (s *fakeSink) play(i int) fakePlay {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plays[i]
}

func stopped(pb *nopPlayback) bool {
	select {
	case <-pb.done:
		return true
	default:
		return false
	}
}

func TestNarrationReplacesNarrationOnly(t *testing.T) {
	sink := &fakeSink{}
	m := NewMixer(sink, 1, 0.5)
	ctx := context.Background()

	require.NoError(t, m.PlayBackground(ctx, Clip{MIMEType: "audio/mpeg", Data: []byte{1}}))
	require.NoError(t, m.PlayNarration(ctx, []byte{2}))
	require.NoError(t, m.PlayNarration(ctx, []byte{3}))

	bg, first, second := sink.play(0), sink.play(1), sink.play(2)
	assert.True(t, bg.clip.Loop)
	assert.Equal(t, 0.5, bg.volume)
	assert.False(t, stopped(bg.pb), "background keeps playing")
	assert.True(t, stopped(first.pb), "prior narration is stopped")
	assert.False(t, stopped(second.pb))
	assert.True(t, m.Playing(LineNarration))
	assert.True(t, m.Playing(LineBackground))

	m.StopAll()
	assert.True(t, stopped(bg.pb))
	assert.True(t, stopped(second.pb))
	assert.False(t, m.Playing(LineBackground))
}

func TestBackgroundReplacesBackground(t *testing.T) {
	sink := &fakeSink{}
	m := NewMixer(sink, 1, 1)
	ctx := context.Background()

	require.NoError(t, m.PlayBackground(ctx, Clip{Data: []byte{1}}))
	require.NoError(t, m.PlayBackground(ctx, Clip{Data: []byte{2}}))
	assert.True(t, stopped(sink.play(0).pb))
	assert.False(t, stopped(sink.play(1).pb))

	m.Stop(LineBackground)
	assert.True(t, stopped(sink.play(1).pb))
}

func TestNarratorToggle(t *testing.T) {
	sink := &fakeSink{}
	m := NewMixer(sink, 1, 1)
	ctx := context.Background()

	require.NoError(t, m.PlayNarration(ctx, []byte{1}))
	m.SetNarrator(false)
	assert.False(t, m.NarratorEnabled())
	assert.True(t, stopped(sink.play(0).pb))

	require.NoError(t, m.PlayNarration(ctx, []byte{2}))
	assert.Len(t, sink.plays, 1, "muted narration is not played")

	m.SetNarrator(true)
	require.NoError(t, m.PlayNarration(ctx, []byte{3}))
	assert.Len(t, sink.plays, 2)
}

func TestVolumeClamped(t *testing.T) {
	m := NewMixer(&fakeSink{}, 2, -1)
	assert.Equal(t, 1.0, m.Volume(LineNarration))
	assert.Equal(t, 0.0, m.Volume(LineBackground))
	m.SetVolume(LineBackground, 0.3)
	assert.Equal(t, 0.3, m.Volume(LineBackground))
}

func TestWaitReturnsWhenClipEnds(t *testing.T) {
	m := NewMixer(NopSink{}, 1, 1)
	ctx := context.Background()
	require.NoError(t, m.PlayNarration(ctx, []byte{1}))
	assert.NoError(t, m.Wait(ctx, LineNarration))
	assert.False(t, m.Playing(LineNarration))

	require.NoError(t, m.PlayBackground(ctx, Clip{Data: []byte{1}}))
	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Wait(short, LineBackground), context.DeadlineExceeded)
	m.StopAll()
}

func TestExecSinkRunsPlayer(t *testing.T) {
	if _, err := exec.LookPath("true"); err != nil {
		t.Skip("true(1) not available")
	}
	sink := NewExecSink([]string{"true", "--volume={volume}"})
	sink.TempDir = t.TempDir()

	pb, err := sink.Play(context.Background(), LineNarration, Clip{MIMEType: "audio/wav", Data: []byte("RIFF")}, 0.5)
	require.NoError(t, err)
	select {
	case <-pb.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("player did not exit")
	}
	require.NoError(t, pb.Stop())
}

func TestExecSinkStopsLoop(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh(1) not available")
	}
	sink := NewExecSink([]string{"sh", "-c", "sleep 5", "player"})
	sink.TempDir = t.TempDir()

	pb, err := sink.Play(context.Background(), LineBackground, Clip{MIMEType: "audio/mpeg", Data: []byte{1}, Loop: true}, 1)
	require.NoError(t, err)
	require.NoError(t, pb.Stop())
	<-pb.Done()
}

func TestExecSinkErrors(t *testing.T) {
	_, err := (&ExecSink{}).Play(context.Background(), LineNarration, Clip{}, 1)
	assert.Error(t, err)

	sink := NewExecSink([]string{"storyweaver-no-such-player"})
	sink.TempDir = t.TempDir()
	_, err = sink.Play(context.Background(), LineNarration, Clip{MIMEType: "audio/wav"}, 1)
	assert.Error(t, err)
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, ".wav", extensionFor("audio/wav"))
	assert.Equal(t, ".mp3", extensionFor("audio/mpeg"))
	assert.Equal(t, ".bin", extensionFor("application/x-storyweaver-unknown"))
}

func TestClipFromDataURL(t *testing.T) {
	clip, err := ClipFromDataURL("data:audio/mpeg;base64,AQID")
	require.NoError(t, err)
	assert.Equal(t, "audio/mpeg", clip.MIMEType)
	assert.Equal(t, []byte{1, 2, 3}, clip.Data)
	assert.False(t, clip.Loop)

	_, err = ClipFromDataURL("not a data url")
	assert.Error(t, err)
}
