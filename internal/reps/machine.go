// Package reps turns per-frame match scores into confirmed reps.
//
// The machine is driven at two rates. Observe runs for every processed frame
// and only updates the current score and the match streak. Tick runs about
// once a second and samples the latest score to drive the hold countdown.
// Every decrement needs a full second in the hold zone, counted from the
// arm instant, the previous decrement or the last paused tick.
package reps

import (
	"time"

	"github.com/julianstephens/repcam/internal/constants"
	"github.com/julianstephens/repcam/internal/motion"
)

type Phase int

const (
	Idle Phase = iota
	Accumulating
	HoldTimerRunning
	Completed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Accumulating:
		return "accumulating"
	case HoldTimerRunning:
		return "holding"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// Config holds the trigger thresholds. Scores are in [0,100].
type Config struct {
	InstantTriggerScore   float64
	HoldZoneScore         float64
	SustainedTriggerScore float64
	NearMatchScore        float64
	SustainedStreakFrames int
	StreakGrowth          int
	StreakDecay           int
	AckTicks              int
	TickSlack             time.Duration
}

func DefaultConfig() Config {
	return Config{
		InstantTriggerScore:   constants.InstantTriggerScore,
		HoldZoneScore:         constants.HoldZoneScore,
		SustainedTriggerScore: constants.SustainedTriggerScore,
		NearMatchScore:        constants.NearMatchScore,
		SustainedStreakFrames: constants.SustainedStreakFrames,
		StreakGrowth:          constants.StreakGrowth,
		StreakDecay:           constants.StreakDecay,
		AckTicks:              constants.CompletionAckTicks,
		TickSlack:             constants.TickSlack,
	}
}

// Status is a read-only view of the machine for display.
type Status struct {
	Phase       Phase
	MatchStreak int
	Remaining   int
	Duration    int
	Score       float64
	GoalReached bool
}

// Machine is owned by a single detection session and is not safe for
// concurrent use.
type Machine struct {
	cfg      Config
	duration int

	phase       Phase
	streak      int
	remaining   int
	ackLeft     int
	score       float64
	observed    bool
	heldSince   time.Time
	goalReached bool
}

// New returns an idle machine with a hold duration in seconds.
func New(cfg Config, durationSec int) *Machine {
	m := &Machine{cfg: cfg}
	m.SetDuration(durationSec)
	return m
}

// SetDuration changes the hold duration. A running countdown keeps its
// current remaining time.
func (m *Machine) SetDuration(sec int) {
	if sec < 1 {
		sec = 1
	}
	m.duration = sec
}

// Observe records the match state of one processed frame seen at now.
func (m *Machine) Observe(st motion.MatchState, now time.Time) {
	m.observed = true
	m.score = st.MatchScore

	switch m.phase {
	case HoldTimerRunning, Completed:
		return
	}

	if m.goalReached {
		m.phase = Idle
		m.streak = 0
		return
	}

	if st.PatternMatch || st.MatchScore >= m.cfg.NearMatchScore {
		m.streak += m.cfg.StreakGrowth
	} else {
		m.streak -= m.cfg.StreakDecay
		if m.streak < 0 {
			m.streak = 0
		}
	}

	if m.shouldArm() {
		m.phase = HoldTimerRunning
		m.remaining = m.duration
		m.heldSince = now
		return
	}

	if m.streak > 0 {
		m.phase = Accumulating
	} else {
		m.phase = Idle
	}
}

func (m *Machine) shouldArm() bool {
	if m.score >= m.cfg.InstantTriggerScore {
		return true
	}
	return m.streak > m.cfg.SustainedStreakFrames && m.score > m.cfg.SustainedTriggerScore
}

// Tick advances the countdown and the completion acknowledgement. It reports
// true exactly once per hold cycle, on the tick the countdown reaches zero.
// A tick with no Observe since the previous one leaves the machine untouched.
func (m *Machine) Tick(now time.Time) bool {
	if !m.observed {
		return false
	}
	m.observed = false

	switch m.phase {
	case Completed:
		m.ackLeft--
		if m.ackLeft <= 0 {
			m.phase = Idle
		}
		return false

	case HoldTimerRunning:
		if m.score < m.cfg.HoldZoneScore {
			// paused: the next second starts over once back in the zone
			m.heldSince = now
			return false
		}
		if now.Sub(m.heldSince) < time.Second-m.cfg.TickSlack {
			return false
		}
		m.remaining--
		m.heldSince = now
		if m.remaining > 0 {
			return false
		}
		m.phase = Completed
		m.streak = 0
		m.remaining = 0
		m.ackLeft = m.cfg.AckTicks
		return true
	}

	return false
}

// SetGoalReached stops the machine from arming while the daily goal is met.
// A countdown in progress is dropped; an acknowledgement runs to the end.
func (m *Machine) SetGoalReached(reached bool) {
	m.goalReached = reached
	if !reached {
		return
	}
	m.streak = 0
	if m.phase != Completed {
		m.phase = Idle
		m.remaining = 0
	}
}

// Reset clears all phase, timer and streak state.
func (m *Machine) Reset() {
	m.phase = Idle
	m.streak = 0
	m.remaining = 0
	m.ackLeft = 0
	m.score = 0
	m.observed = false
	m.heldSince = time.Time{}
	m.goalReached = false
}

func (m *Machine) Status() Status {
	remaining := m.remaining
	if m.phase != HoldTimerRunning {
		remaining = 0
	}
	return Status{
		Phase:       m.phase,
		MatchStreak: m.streak,
		Remaining:   remaining,
		Duration:    m.duration,
		Score:       m.score,
		GoalReached: m.goalReached,
	}
}
