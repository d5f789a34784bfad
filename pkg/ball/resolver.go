package ball

import (
	"math"
	"math/rand"
	"time"

	"github.com/cfoust/dodgeball/pkg/geom"
	"github.com/cfoust/dodgeball/pkg/protocol"
	"github.com/cfoust/dodgeball/pkg/session"
)

type CollisionConfig struct {
	Radius float64 `yaml:"radius"`
	// Height of the target point above a participant's feet, before scaling.
	TorsoHeight float64 `yaml:"torsoHeight"`
	// A ducking participant is only hit below this height, before scaling.
	DuckHeight float64       `yaml:"duckHeight"`
	Cooldown   time.Duration `yaml:"cooldown"`
	// Delay between an impact and the knockback it causes.
	Hitstop      time.Duration `yaml:"hitstop"`
	Knockback    float64       `yaml:"knockback"`
	BounceSpeed  float64       `yaml:"bounceSpeed"`
	BounceJitter float64       `yaml:"bounceJitter"`
	// Multiplies the bounce speed when the participant tried to catch.
	CatchBounce float64 `yaml:"catchBounce"`
	// Whether a ball that hit someone becomes Free or keeps flying.
	FreeOnHit bool `yaml:"freeOnHit"`
}

type CatchConfig struct {
	Radius float64 `yaml:"radius"`
	// How long a catch input stays valid. Zero means the same tick only.
	Window                 time.Duration `yaml:"window"`
	FailedDamageMultiplier float64       `yaml:"failedDamageMultiplier"`
}

// World is what the ball needs to know about the session.
type World interface {
	Now() time.Duration
	Tick() uint64
	Participant(id protocol.ActorID) (*session.Participant, bool)
	EachParticipant(fn func(*session.Participant) bool)
	Stat(actor protocol.ActorID, name string, fallback float64) float64
	Rand() *rand.Rand
}

type Resolution struct {
	Candidate protocol.ActorID
	Attempted bool
	Caught    bool
	Damage    int
	Bounce    geom.Vec
	Knockback geom.Vec
}

// Resolver decides what happens when a thrown ball reaches a participant.
// A hit is only resolved if the per-throw latch, the cooldown and the tick
// marker all allow it.
type Resolver struct {
	settings *Settings

	latched    bool
	resolved   bool
	resolvedAt time.Duration
	marked     bool
	markedTick uint64

	// Time of each participant's latest catch input.
	intents map[protocol.ActorID]time.Duration
}

func NewResolver(settings *Settings) *Resolver {
	return &Resolver{
		settings: settings,
		intents:  make(map[protocol.ActorID]time.Duration),
	}
}

// Arm clears the latch for a new throw.
func (r *Resolver) Arm() {
	r.latched = false
}

// Reset clears the latch and any outstanding catch inputs.
func (r *Resolver) Reset() {
	r.latched = false
	r.intents = make(map[protocol.ActorID]time.Duration)
}

func (r *Resolver) Latched() bool { return r.latched }

// Intend records a catch input from actor.
func (r *Resolver) Intend(actor protocol.ActorID, now time.Duration) {
	r.intents[actor] = now
}

func (r *Resolver) intending(actor protocol.ActorID, now time.Duration) bool {
	at, ok := r.intents[actor]
	return ok && now-at <= r.settings.Catch.Window
}

func (r *Resolver) expireIntents(now time.Duration) {
	for actor, at := range r.intents {
		if now-at > r.settings.Catch.Window {
			delete(r.intents, actor)
		}
	}
}

func scaleOf(p *session.Participant, w World) float64 {
	scale := p.Scale
	if scale <= 0 {
		scale = 1
	}
	return scale * w.Stat(p.ID, StatColliderScale, 1)
}

func (r *Resolver) targetPoint(p *session.Participant, w World) geom.Vec {
	return p.Position.Add(geom.Up.Mul(r.settings.Collision.TorsoHeight * scaleOf(p, w)))
}

// touches reports whether the ball at position registers against p.
func (r *Resolver) touches(position geom.Vec, p *session.Participant, w World) bool {
	collision := &r.settings.Collision
	if geom.Distance(position, r.targetPoint(p, w)) > collision.Radius {
		return false
	}
	if p.Ducking && position.Y()-p.Position.Y() >= collision.DuckHeight*scaleOf(p, w) {
		return false
	}
	return true
}

// Resolve looks for the first participant, in join order, that the ball is
// touching. Only the owner of the ball may call it.
func (r *Resolver) Resolve(b *Ball, w World) (Resolution, bool) {
	now, tick := w.Now(), w.Tick()

	if b.State != Thrown || r.latched {
		return Resolution{}, false
	}
	if r.resolved && now-r.resolvedAt < r.settings.Collision.Cooldown {
		return Resolution{}, false
	}
	if r.marked && r.markedTick == tick {
		return Resolution{}, false
	}

	r.expireIntents(now)

	thrower := b.ThrowerID()
	var candidate *session.Participant
	w.EachParticipant(func(p *session.Participant) bool {
		if p.ID == thrower || !p.Alive() {
			return true
		}
		if !r.touches(b.Position, p, w) {
			return true
		}
		candidate = p
		return false
	})
	if candidate == nil {
		return Resolution{}, false
	}

	r.latched = true
	r.resolved = true
	r.resolvedAt = now
	r.marked = true
	r.markedTick = tick

	var (
		profile = r.settings.Throw.For(b.Kind)
		target  = r.targetPoint(candidate, w)
		rng     = w.Rand()
		result  = Resolution{Candidate: candidate.ID}
	)

	if r.intending(candidate.ID, now) && geom.Distance(b.Position, target) <= r.settings.Catch.Radius {
		result.Attempted = true
		delete(r.intents, candidate.ID)
		if rng.Float64() < profile.CatchChance {
			result.Caught = true
			return result, true
		}
	}

	multiplier := w.Stat(candidate.ID, StatResistance, 1)
	if result.Attempted {
		multiplier *= r.settings.Catch.FailedDamageMultiplier
	}
	result.Damage = int(math.Round(float64(b.Damage) * multiplier))

	travel := geom.Normalize(geom.Horizontal(b.Velocity))
	away := geom.Normalize(geom.Horizontal(b.Position.Sub(candidate.Position)))
	if geom.IsZero(away) {
		away = travel.Mul(-1)
	}
	if geom.IsZero(away) {
		away = geom.Vec{0, 0, 1}
	}
	jitter := (rng.Float64()*2 - 1) * r.settings.Collision.BounceJitter
	away = geom.RotateY(away, jitter)

	speed := r.settings.Collision.BounceSpeed
	if result.Attempted {
		speed *= r.settings.Collision.CatchBounce
	}
	result.Bounce = away.Mul(speed).Add(geom.Up.Mul(profile.BounceLift))
	result.Knockback = travel.Mul(r.settings.Collision.Knockback)

	return result, true
}
