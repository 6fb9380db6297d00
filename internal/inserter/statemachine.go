package inserter

import (
	"fmt"
	"time"
)

// Transition reports what an Advance call did to the ad-break state.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionBreakStart
	TransitionBreakEnd
)

const cueInTag = "#EXT-X-CUE-IN"

// AdBreakStateMachine decides, from wall-clock time and prior state, whether
// to splice a break-start or break-end marker into a snapshot. It performs no
// I/O; markers are inserted into the snapshot in place.
//
// Because it is wall-clock-driven rather than poll-count-driven, missed polls
// only delay marker timing, never corrupt it.
type AdBreakStateMachine struct {
	adDuration time.Duration
	adInterval time.Duration
	enc        CueEncoder
	state      AdBreakState
}

// NewAdBreakStateMachine returns a machine in the Idle phase with the first
// break due one ad interval after now.
func NewAdBreakStateMachine(cfg StreamConfig, enc CueEncoder, now time.Time) *AdBreakStateMachine {
	interval := time.Duration(cfg.AdInterval) * time.Second
	return &AdBreakStateMachine{
		adDuration: time.Duration(cfg.AdDuration) * time.Second,
		adInterval: interval,
		enc:        enc,
		state: AdBreakState{
			Phase:        PhaseIdle,
			NextBreakDue: now.Add(interval),
		},
	}
}

// State returns a copy of the current ad-break state.
func (m *AdBreakStateMachine) State() AdBreakState {
	return m.state
}

// Advance attempts at most one transition against the given snapshot. The
// close-break and open-break conditions are evaluated as mutually exclusive
// branches: a single call never both closes and reopens a break, so a break
// whose duration is shorter than the poll cadence runs until the next poll.
//
// An empty snapshot defers the decision: no transition, timers untouched.
// An encoding failure likewise leaves state untouched so the transition is
// retried on the next cycle.
func (m *AdBreakStateMachine) Advance(now time.Time, snap *Snapshot) (Transition, error) {
	if snap == nil || len(snap.Segments) == 0 {
		return TransitionNone, nil
	}

	if m.state.Phase == PhaseInBreak {
		if now.Sub(m.state.BreakStart) < m.adDuration {
			return TransitionNone, nil
		}
		return m.closeBreak(now, snap)
	}

	if now.Before(m.state.NextBreakDue) {
		return TransitionNone, nil
	}
	return m.openBreak(now, snap)
}

func (m *AdBreakStateMachine) openBreak(now time.Time, snap *Snapshot) (Transition, error) {
	eventID := uint32(now.Unix())

	payload, err := m.enc.Encode(CueBreakStart, now, m.adDuration, eventID)
	if err != nil {
		return TransitionNone, fmt.Errorf("encode break-start cue: %w", err)
	}

	first := &snap.Segments[0]
	first.Tags = append([]string{scte35Tag(payload)}, first.Tags...)

	m.state.Phase = PhaseInBreak
	m.state.EventID = eventID
	m.state.BreakStart = now

	return TransitionBreakStart, nil
}

func (m *AdBreakStateMachine) closeBreak(now time.Time, snap *Snapshot) (Transition, error) {
	payload, err := m.enc.Encode(CueBreakEnd, now, m.adDuration, m.state.EventID)
	if err != nil {
		return TransitionNone, fmt.Errorf("encode break-end cue: %w", err)
	}

	last := &snap.Segments[len(snap.Segments)-1]
	last.Tags = append(last.Tags, scte35Tag(payload), cueInTag)

	m.state.Phase = PhaseIdle
	m.state.EventID = 0
	m.state.BreakStart = time.Time{}
	m.state.NextBreakDue = now.Add(m.adInterval)

	return TransitionBreakEnd, nil
}
