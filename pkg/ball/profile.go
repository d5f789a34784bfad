package ball

import (
	"time"
)

type ThrowKind uint8

const (
	Normal ThrowKind = iota
	JumpThrow
	Ultimate
)

func (k ThrowKind) String() string {
	switch k {
	case Normal:
		return "normal"
	case JumpThrow:
		return "jump"
	case Ultimate:
		return "ultimate"
	}
	return "unknown"
}

// Profile fixes how a throw of one kind behaves.
type Profile struct {
	// Multiplies the base throw speed.
	Speed float64 `yaml:"speed"`
	// Multiplies the thrower's damage stat.
	Damage      float64 `yaml:"damage"`
	CatchChance float64 `yaml:"catchChance"`
	// Upward speed added to the bounce away from a hit participant.
	BounceLift float64 `yaml:"bounceLift"`
	// Maximum turn rate towards the target in radians per second. Zero
	// flies straight.
	Homing float64 `yaml:"homing"`

	// Extra temporary balls spawned alongside this throw.
	ExtraBalls    int           `yaml:"extraBalls"`
	ExtraSpread   float64       `yaml:"extraSpread"`
	ExtraLifetime time.Duration `yaml:"extraLifetime"`
}

type Profiles struct {
	Normal    Profile `yaml:"normal"`
	JumpThrow Profile `yaml:"jump"`
	Ultimate  Profile `yaml:"ultimate"`
}

func (p Profiles) For(kind ThrowKind) Profile {
	switch kind {
	case JumpThrow:
		return p.JumpThrow
	case Ultimate:
		return p.Ultimate
	}
	return p.Normal
}

// Names of the character stats the ball consults.
const (
	StatThrowDamage   = "throwDamage"
	StatThrowSpeed    = "throwSpeed"
	StatAccuracy      = "accuracy"
	StatResistance    = "damageResistance"
	StatColliderScale = "colliderScale"
)
