package ball

import (
	"time"
)

type Phase uint8

const (
	PhaseNormal Phase = iota
	PhaseWarning
	PhaseDanger
	PhasePenalty
)

func (p Phase) String() string {
	switch p {
	case PhaseNormal:
		return "normal"
	case PhaseWarning:
		return "warning"
	case PhaseDanger:
		return "danger"
	case PhasePenalty:
		return "penalty"
	}
	return "unknown"
}

type HoldConfig struct {
	Warning time.Duration `yaml:"warning"`
	Danger  time.Duration `yaml:"danger"`
	Max     time.Duration `yaml:"max"`

	PenaltyDamage int `yaml:"penaltyDamage"`
	// How long after the penalty the holder is forced to drop the ball.
	DropDelay time.Duration `yaml:"dropDelay"`
	DropSpeed float64       `yaml:"dropSpeed"`
	DropLift  float64       `yaml:"dropLift"`
}

// HoldClock escalates through the hold phases. The phase is recomputed from
// the start of the hold every tick instead of accumulating elapsed time.
type HoldClock struct {
	config *HoldConfig

	active    bool
	start     time.Duration
	phase     Phase
	penalized bool
}

func NewHoldClock(config *HoldConfig) *HoldClock {
	return &HoldClock{config: config}
}

// Start begins a new hold episode, whatever the previous one ended in.
func (c *HoldClock) Start(now time.Duration) {
	c.active = true
	c.start = now
	c.phase = PhaseNormal
	c.penalized = false
}

// Resume continues an episode that began elsewhere, elapsed ago.
func (c *HoldClock) Resume(now, elapsed time.Duration, phase Phase, penalized bool) {
	c.active = true
	c.start = now - elapsed
	c.phase = phase
	c.penalized = penalized
}

// Stop ends the episode. Only leaving the Held state does this.
func (c *HoldClock) Stop() {
	c.active = false
	c.start = 0
	c.phase = PhaseNormal
	c.penalized = false
}

func (c *HoldClock) Active() bool    { return c.active }
func (c *HoldClock) Phase() Phase    { return c.phase }
func (c *HoldClock) Penalized() bool { return c.penalized }

func (c *HoldClock) Started() time.Duration { return c.start }

func (c *HoldClock) Elapsed(now time.Duration) time.Duration {
	if !c.active {
		return 0
	}
	return now - c.start
}

// Progress is the fraction of the maximum hold time used up, in [0, 1].
func (c *HoldClock) Progress(now time.Duration) float64 {
	if !c.active || c.config.Max <= 0 {
		return 0
	}
	progress := float64(c.Elapsed(now)) / float64(c.config.Max)
	if progress > 1 {
		return 1
	}
	return progress
}

// Update returns the phases entered since the last call, in order. The
// second return value is true exactly once per episode: when the penalty
// must be applied.
func (c *HoldClock) Update(now time.Duration) ([]Phase, bool) {
	if !c.active {
		return nil, false
	}

	var (
		elapsed = now - c.start
		entered []Phase
	)

	if elapsed >= c.config.Warning && c.phase == PhaseNormal {
		c.phase = PhaseWarning
		entered = append(entered, PhaseWarning)
	}

	if elapsed >= c.config.Danger && c.phase < PhaseDanger {
		c.phase = PhaseDanger
		entered = append(entered, PhaseDanger)
	}

	if elapsed >= c.config.Max && c.phase != PhasePenalty {
		c.phase = PhasePenalty
		entered = append(entered, PhasePenalty)
	}

	apply := false
	if c.phase == PhasePenalty && !c.penalized {
		c.penalized = true
		apply = true
	}

	return entered, apply
}
