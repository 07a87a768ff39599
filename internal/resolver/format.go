package resolver

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// Format is one playable rendition of a track, as reported by the
// extractor's JSON output.
type Format struct {
	URL    string  `json:"url"`
	ABR    float64 `json:"abr"`
	ACodec string  `json:"acodec"`
	VCodec string  `json:"vcodec"`
}

func (f Format) isAudioOnly() bool {
	return f.ACodec != "" && f.ACodec != "none" && (f.VCodec == "" || f.VCodec == "none")
}

func (f Format) isMixed() bool {
	return f.ACodec != "" && f.ACodec != "none" && f.VCodec != "" && f.VCodec != "none"
}

// ErrNoFormats is returned when a track carries no formats at all.
var ErrNoFormats = errors.New("extractor returned no formats")

// BestAudioFormat selects a playable format per spec §4.4:
//   - the best audio-only format, if its bitrate is >= the best mixed
//     format's bitrate, or >= minBitrate;
//   - otherwise the best mixed (audio+video) format;
//   - otherwise the first format, as a fallback.
//
// "best" means highest ABR among the formats in that category.
func BestAudioFormat(formats []Format, minBitrate float64) (Format, error) {
	if len(formats) == 0 {
		return Format{}, ErrNoFormats
	}

	var bestAudio, bestMixed Format
	haveAudio, haveMixed := false, false

	for _, f := range formats {
		if f.isAudioOnly() && (!haveAudio || f.ABR > bestAudio.ABR) {
			bestAudio = f
			haveAudio = true
		}
		if f.isMixed() && (!haveMixed || f.ABR > bestMixed.ABR) {
			bestMixed = f
			haveMixed = true
		}
	}

	if haveAudio {
		if !haveMixed || bestAudio.ABR >= bestMixed.ABR || bestAudio.ABR >= minBitrate {
			return bestAudio, nil
		}
	}
	if haveMixed {
		return bestMixed, nil
	}
	return formats[0], nil
}

// ComputeSongID builds the 32-char content hash over extractor, title, and
// uploader that identifies a Song across resolves (spec §3).
func ComputeSongID(extractor, title, uploader string) string {
	sum := sha256.Sum256([]byte(extractor + "\x00" + title + "\x00" + uploader))
	return hex.EncodeToString(sum[:])[:32]
}
