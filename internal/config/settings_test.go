package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeSettings_EmptyBlob(t *testing.T) {
	s, err := MergeSettings(nil)
	require.NoError(t, err)
	if diff := cmp.Diff(DefaultAppSettings(), s); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeSettings_PartialBlobKeepsDefaults(t *testing.T) {
	s, err := MergeSettings([]byte(`{"ttsVoice":"Puck","obsoleteField":true}`))
	require.NoError(t, err)

	want := DefaultAppSettings()
	want.TTSVoice = "Puck"
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeSettings_Malformed(t *testing.T) {
	s, err := MergeSettings([]byte(`{"ttsVoice":`))
	assert.Error(t, err)
	assert.Equal(t, DefaultAppSettings(), s)
}

func TestSettingsSetGet(t *testing.T) {
	s := DefaultAppSettings()

	s, err := s.Set("imageGenerationCount", "0")
	require.NoError(t, err)
	assert.Equal(t, 0, s.ImageGenerationCount)

	s, err = s.Set("manualFont", "Georgia")
	require.NoError(t, err)
	v, ok := s.Get("manualFont")
	assert.True(t, ok)
	assert.Equal(t, "Georgia", v)

	_, err = s.Set("imageGenerationCount", "many")
	assert.Error(t, err)
	_, err = s.Set("nope", "x")
	assert.Error(t, err)

	assert.Len(t, s.Keys(), 12)
	assert.Equal(t, "chatModel", s.Keys()[0])
}

func TestSettingsMarshalRoundTrip(t *testing.T) {
	s := DefaultAppSettings()
	s.ImageStyle = "watercolor"
	blob, err := s.Marshal()
	require.NoError(t, err)

	back, err := MergeSettings(blob)
	require.NoError(t, err)
	assert.Equal(t, s, back)
}
