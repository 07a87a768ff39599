// Package model defines the wire and domain types shared across the
// daemon's resolver, instance, callback, and API layers (spec §3, §6),
// carrying the exact field names of the upstream yamba wire contract.
package model

// SongID is a 32-char content hash over extractor+title+uploader.
type SongID = string

// Song is the minimal representation required for playback (spec §3).
type Song struct {
	ID     SongID  `json:"id"`
	Name   string  `json:"name"`
	Source string  `json:"source"`
	Artist *string `json:"artist,omitempty"`
	// Length is the track duration in seconds; nil when unknown.
	Length *int `json:"length,omitempty"`
}

// TSSettings is the TeamSpeak-flavored VoIP instance configuration carried
// in an InstanceType's "ts" variant.
type TSSettings struct {
	Host     string  `json:"host"`
	Port     *int    `json:"port,omitempty"`
	Identity string  `json:"identity"`
	CID      *int32  `json:"cid,omitempty"`
	Name     string  `json:"name"`
	Password *string `json:"password,omitempty"`
}

// InstanceType is the tagged VoIP handle variant an instance is created
// with. Currently only "ts" (TeamSpeak) is implemented; the tag is kept on
// the wire so a manager can introduce other VoIP backends without a
// breaking change.
type InstanceType struct {
	Type string      `json:"type"`
	TS   *TSSettings `json:"-"`
}

// MarshalJSON flattens TS's fields alongside the "type" tag, matching the
// upstream Rust enum's serde representation.
func (t InstanceType) MarshalJSON() ([]byte, error) {
	switch t.Type {
	case "ts":
		return marshalTagged(t.Type, t.TS)
	default:
		return marshalTagged(t.Type, struct{}{})
	}
}

// InstanceState is the instance's coarse lifecycle state (spec §3, §4.8).
type InstanceState int

const (
	InstanceStateStopped InstanceState = 0
	InstanceStateStarted InstanceState = 1
	InstanceStateRunning InstanceState = 2
)

// Playstate mirrors the playback engine's reported transport state.
type Playstate int

const (
	PlaystateStopped Playstate = iota
	PlaystatePlaying
	PlaystatePaused
	PlaystateEndOfMedia
)
