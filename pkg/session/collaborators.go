package session

import (
	"github.com/cfoust/dodgeball/pkg/geom"
	"github.com/cfoust/dodgeball/pkg/protocol"
)

type EffectKind uint8

const (
	EffectWarning EffectKind = iota
	EffectDanger
	EffectPenalty
	EffectWallBounce
	EffectImpact
	EffectCatch
)

func (k EffectKind) String() string {
	switch k {
	case EffectWarning:
		return "warning"
	case EffectDanger:
		return "danger"
	case EffectPenalty:
		return "penalty"
	case EffectWallBounce:
		return "wall-bounce"
	case EffectImpact:
		return "impact"
	case EffectCatch:
		return "catch"
	}
	return "unknown"
}

// Effects spawns cosmetic output. Nothing reads back what it produces.
type Effects interface {
	SpawnEffect(kind EffectKind, position geom.Vec, params map[string]float64)
}

// HealthMutator changes the health of the local participant. It is only
// ever called on the affected participant's own process.
type HealthMutator interface {
	MutateHealth(p *Participant, amount int, attacker protocol.ActorID)
}

// StatProvider looks up tuning values for a character.
type StatProvider interface {
	Stat(character, name string) (float64, bool)
}

// Characters moves characters in response to impacts.
type Characters interface {
	ApplyKnockback(p *Participant, offset geom.Vec)
}

type nopEffects struct{}

func (nopEffects) SpawnEffect(EffectKind, geom.Vec, map[string]float64) {}

// Subtracts from health and clamps at zero.
type basicHealth struct{}

func (basicHealth) MutateHealth(p *Participant, amount int, attacker protocol.ActorID) {
	p.Health -= amount
	if p.Health < 0 {
		p.Health = 0
	}
}

// Moves the participant's recorded position.
type basicCharacters struct{}

func (basicCharacters) ApplyKnockback(p *Participant, offset geom.Vec) {
	p.Position = p.Position.Add(offset)
}
