package ball

import (
	"math"

	"github.com/cfoust/dodgeball/pkg/geom"
	"github.com/cfoust/dodgeball/pkg/session"
)

type Physics struct {
	Radius  float64 `yaml:"radius"`
	Gravity float64 `yaml:"gravity"`
	// Fraction of vertical speed kept when bouncing off the floor.
	GroundBounce float64 `yaml:"groundBounce"`
	// Horizontal speed lost per second while resting on the floor.
	GroundFriction float64 `yaml:"groundFriction"`
	// Bounces slower than this come to rest.
	MinBounceSpeed float64 `yaml:"minBounceSpeed"`

	PickupRadius float64 `yaml:"pickupRadius"`
	// Where the ball sits relative to its holder: right, up, forward.
	HoldOffset geom.Vec `yaml:"holdOffset"`
	// Rate at which a held ball catches up with the hold point. Zero snaps.
	HoldFollow float64 `yaml:"holdFollow"`

	ThrowSpeed    float64 `yaml:"throwSpeed"`
	MinPower      float64 `yaml:"minPower"`
	MaxAimError   float64 `yaml:"maxAimError"`
	ThrownGravity float64 `yaml:"thrownGravity"`

	WallBounce     float64 `yaml:"wallBounce"`
	WallEnergyLoss float64 `yaml:"wallEnergyLoss"`
	WallCorrection float64 `yaml:"wallCorrection"`
	MaxWallBounces int     `yaml:"maxWallBounces"`
	MinThrownSpeed float64 `yaml:"minThrownSpeed"`

	// The walls are the X and Z faces, the floor is Min.Y.
	Arena geom.Box `yaml:"arena"`
}

func (p *Physics) floor() float64 {
	return p.Arena.Min.Y() + p.Radius
}

// holdPoint is where a ball carried by holder should be.
func (p *Physics) holdPoint(holder *session.Participant) geom.Vec {
	forward := geom.Normalize(geom.Horizontal(holder.Facing))
	if geom.IsZero(forward) {
		forward = geom.Vec{0, 0, 1}
	}
	right := geom.Up.Cross(forward)
	scale := holder.Scale
	if scale <= 0 {
		scale = 1
	}

	return holder.Position.
		Add(right.Mul(p.HoldOffset.X() * scale)).
		Add(geom.Up.Mul(p.HoldOffset.Y() * scale)).
		Add(forward.Mul(p.HoldOffset.Z() * scale))
}

func (p *Physics) follow(b *Ball, holder *session.Participant, dt float64) {
	target := p.holdPoint(holder)
	b.Velocity = geom.Zero
	if p.HoldFollow <= 0 {
		b.Position = target
		return
	}
	t := math.Min(1, p.HoldFollow*dt)
	b.Position = b.Position.Add(target.Sub(b.Position).Mul(t))
}

// stepFree integrates a loose ball: gravity, floor bounces and friction.
// Walls still contain it but do not count as bounces.
func (p *Physics) stepFree(b *Ball, dt float64) {
	v := b.Velocity
	v[1] -= p.Gravity * dt
	next := b.Position.Add(v.Mul(dt))

	if hit, ok := p.sweepWalls(b.Position, next); ok {
		next, v = p.bounceWall(b.Position, next, v, hit)
	}

	b.Grounded = false
	if next.Y() <= p.floor() {
		next[1] = p.floor()
		if v.Y() < 0 {
			v[1] = -v.Y() * p.GroundBounce
			if v.Y() < p.MinBounceSpeed {
				v[1] = 0
			}
		}
		b.Grounded = v.Y() == 0
	}

	if b.Grounded {
		keep := math.Max(0, 1-p.GroundFriction*dt)
		v[0] *= keep
		v[2] *= keep
	}

	b.Position = next
	b.Velocity = v
}

type wallHit struct {
	axis int
	// Position of the plane the ball's center touches, and the direction
	// pointing back into the arena.
	plane  float64
	normal float64
	// Fraction of the move at which the plane was crossed.
	t float64
}

// sweepWalls finds the first wall crossed moving from -> to. The whole
// segment is tested, so a fast ball cannot skip over a wall within a tick.
func (p *Physics) sweepWalls(from, to geom.Vec) (wallHit, bool) {
	var (
		best  = wallHit{t: math.Inf(1)}
		found bool
	)

	for _, axis := range [...]int{0, 2} {
		delta := to[axis] - from[axis]
		low := p.Arena.Min[axis] + p.Radius
		high := p.Arena.Max[axis] - p.Radius

		var hit wallHit
		switch {
		case delta > 0 && to[axis] > high:
			hit = wallHit{axis: axis, plane: high, normal: -1}
		case delta < 0 && to[axis] < low:
			hit = wallHit{axis: axis, plane: low, normal: 1}
		default:
			continue
		}

		hit.t = (hit.plane - from[axis]) / delta
		if hit.t < 0 {
			// Already past the plane.
			hit.t = 0
		}
		if hit.t < best.t {
			best = hit
			found = true
		}
	}

	return best, found
}

// bounceWall moves the ball to the contact point, pushed slightly back into
// the arena, and reflects its velocity.
func (p *Physics) bounceWall(from, to, velocity geom.Vec, hit wallHit) (geom.Vec, geom.Vec) {
	contact := from.Add(to.Sub(from).Mul(hit.t))
	contact[hit.axis] = hit.plane + hit.normal*p.WallCorrection

	velocity[hit.axis] = -velocity[hit.axis] * p.WallBounce
	return contact, velocity.Mul(p.WallEnergyLoss)
}
