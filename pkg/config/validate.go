package config

import (
	"errors"
	"fmt"
)

var ErrInvalid = errors.New("invalid value")

func invalid(field string, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w: %s", field, ErrInvalid, fmt.Sprintf(format, args...))
}

func (c *Config) Validate() error {
	var (
		physics   = c.Physics
		hold      = c.Hold
		collision = c.Collision
		lifecycle = c.Lifecycle
	)

	if physics.Radius <= 0 {
		return invalid("ball.radius", "must be positive")
	}
	if physics.PickupRadius <= 0 {
		return invalid("ball.pickupRadius", "must be positive")
	}
	if physics.MaxWallBounces < 0 {
		return invalid("ball.maxWallBounces", "must not be negative")
	}
	if physics.MinPower <= 0 || physics.MinPower > 1 {
		return invalid("ball.minPower", "must be in (0, 1]")
	}
	for axis := 0; axis < 3; axis++ {
		if physics.Arena.Min[axis] >= physics.Arena.Max[axis] {
			return invalid("ball.arena", "min must be below max on every axis")
		}
	}

	if !(0 < hold.Warning && hold.Warning < hold.Danger && hold.Danger < hold.Max) {
		return invalid("hold", "need 0 < warning < danger < max, got %s/%s/%s", hold.Warning, hold.Danger, hold.Max)
	}
	if hold.PenaltyDamage < 0 {
		return invalid("hold.penaltyDamage", "must not be negative")
	}

	if collision.Radius <= 0 {
		return invalid("collision.radius", "must be positive")
	}
	if collision.DuckHeight > collision.TorsoHeight {
		return invalid("collision.duckHeight", "must not exceed torsoHeight")
	}

	if c.Catch.Window < 0 {
		return invalid("catch.window", "must not be negative")
	}
	if m := c.Catch.FailedDamageMultiplier; m < 0 || m > 1 {
		return invalid("catch.failedDamageMultiplier", "must be in [0, 1]")
	}

	for name, profile := range map[string]float64{
		"normal":   c.Throw.Normal.CatchChance,
		"jump":     c.Throw.JumpThrow.CatchChance,
		"ultimate": c.Throw.Ultimate.CatchChance,
	} {
		if profile < 0 || profile > 1 {
			return invalid("throw."+name+".catchChance", "must be in [0, 1]")
		}
	}
	if c.Throw.Ultimate.ExtraBalls > 0 && c.Throw.Ultimate.ExtraLifetime <= 0 {
		return invalid("throw.ultimate.extraLifetime", "extra balls need a lifetime")
	}

	if lifecycle.DiscoveryTimeout <= 0 {
		return invalid("lifecycle.discoveryTimeout", "must be positive")
	}
	if lifecycle.TransferTimeout <= 0 {
		return invalid("lifecycle.transferTimeout", "must be positive")
	}
	if lifecycle.SyncInterval <= 0 {
		return invalid("lifecycle.syncInterval", "must be positive")
	}
	if !lifecycle.Bounds.Contains(lifecycle.Spawn) {
		return invalid("lifecycle.spawn", "must be inside lifecycle.bounds")
	}

	if c.Relay.Rate < 0 || c.Relay.Burst < 0 {
		return invalid("relay", "rate and burst must not be negative")
	}
	if c.Relay.Rate > 0 && c.Relay.Burst == 0 {
		return invalid("relay.burst", "a rate limit needs a burst of at least 1")
	}

	if err := c.Stats.Validate(); err != nil {
		return fmt.Errorf("stats: %w", err)
	}

	return nil
}
