package inserter

import "time"

// StreamID uniquely identifies a mirrored stream.
type StreamID string

// StreamConfig is the immutable configuration of one stream.
// This also matches the input JSON payload for registering streams and the
// persisted configuration record.
type StreamConfig struct {
	ID         StreamID `json:"stream_id"`
	InputURL   string   `json:"input_url"`
	OutputDir  string   `json:"output_path"`
	AdDuration int      `json:"ad_duration"` // seconds
	AdInterval int      `json:"ad_interval"` // seconds
	Enabled    bool     `json:"enabled"`
}

// SegmentRef is one segment entry of a polled playlist. Tags holds raw
// playlist lines emitted immediately before the segment's EXTINF line.
type SegmentRef struct {
	URI      string
	Duration float64
	Tags     []string
}

// Snapshot is the in-memory form of one polled upstream playlist.
// It lives for a single worker cycle and is never persisted.
type Snapshot struct {
	Segments       []SegmentRef
	TargetDuration float64
	MediaSequence  uint64
}

// BreakPhase is the ad-break phase of a stream.
type BreakPhase string

const (
	PhaseIdle    BreakPhase = "idle"
	PhaseInBreak BreakPhase = "in_break"
)

// AdBreakState holds the per-stream ad-break timing state. It is exclusively
// owned and mutated by the stream's worker.
// Invariants: at most one active break; NextBreakDue is strictly in the future
// relative to the most recent transition; a break-end marker reuses the event
// id of the break-start marker that opened the break.
type AdBreakState struct {
	Phase        BreakPhase
	EventID      uint32 // valid only while Phase == PhaseInBreak
	BreakStart   time.Time
	NextBreakDue time.Time
}

// StreamStatus is the read-only view of a worker exposed by the registry.
type StreamStatus struct {
	ID                StreamID `json:"stream_id"`
	InputURL          string   `json:"input_url"`
	OutputDir         string   `json:"output_path"`
	AdDuration        int      `json:"ad_duration"`
	AdInterval        int      `json:"ad_interval"`
	Enabled           bool     `json:"enabled"`
	Running           bool     `json:"running"`
	InAdBreak         bool     `json:"in_ad_break"`
	SegmentsProcessed int64    `json:"segments_processed"`
	NextAdIn          int      `json:"next_ad_in"` // seconds; 0 while in a break
}
