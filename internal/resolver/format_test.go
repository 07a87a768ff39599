package resolver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestBestAudioFormatScenarioS4 mirrors spec scenario S4: an audio-only
// format with abr=96, a mixed format with abr=192, and a second mixed
// format with abr=128.
func TestBestAudioFormatScenarioS4(t *testing.T) {
	formats := []Format{
		{URL: "audio96", ABR: 96, ACodec: "opus", VCodec: "none"},
		{URL: "mixed192", ABR: 192, ACodec: "aac", VCodec: "h264"},
		{URL: "mixed128", ABR: 128, ACodec: "aac", VCodec: "h264"},
	}

	best, err := BestAudioFormat(formats, 128)
	require.NoError(t, err)
	require.Equal(t, "mixed192", best.URL)

	best, err = BestAudioFormat(formats, 64)
	require.NoError(t, err)
	require.Equal(t, "audio96", best.URL)
}

func TestBestAudioFormatFallsBackToFirst(t *testing.T) {
	formats := []Format{
		{URL: "onlyvideo", ABR: 0, ACodec: "none", VCodec: "h264"},
	}
	best, err := BestAudioFormat(formats, 128)
	require.NoError(t, err)
	require.Equal(t, "onlyvideo", best.URL)
}

func TestBestAudioFormatNoFormats(t *testing.T) {
	_, err := BestAudioFormat(nil, 128)
	require.ErrorIs(t, err, ErrNoFormats)
}

func TestBestAudioFormatAudioOnlyWinsWhenNoMixed(t *testing.T) {
	formats := []Format{
		{URL: "audio64", ABR: 64, ACodec: "opus", VCodec: "none"},
	}
	best, err := BestAudioFormat(formats, 999)
	require.NoError(t, err)
	require.Equal(t, "audio64", best.URL)
}

func TestComputeSongIDIsDeterministicAndLength32(t *testing.T) {
	id1 := ComputeSongID("youtube", "Title", "Uploader")
	id2 := ComputeSongID("youtube", "Title", "Uploader")
	require.Equal(t, id1, id2)
	require.Len(t, id1, 32)

	id3 := ComputeSongID("youtube", "Other", "Uploader")
	require.NotEqual(t, id1, id3)
}
