package protocol

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// ActorID identifies one session participant. Zero is never assigned.
type ActorID int32

const NoActor ActorID = 0

// Handle addresses a shared object across the session.
type Handle uint32

type Op uint8

const (
	// relay -> peers
	WelcomeOp Op = iota + 1
	JoinOp
	LeaveOp
	// peer -> peers
	PoseOp
	HealthOp
	SpawnBallOp
	DestroyBallOp
	BallStateOp
	OwnershipRequestOp
	OwnershipGrantedOp
	OwnershipDeniedOp
	ThrowRequestOp
	CatchIntentOp
	DamageOp
	HoldPhaseOp
	EffectOp
	ForceResetOp
)

func (o Op) String() string {
	switch o {
	case WelcomeOp:
		return "welcome"
	case JoinOp:
		return "join"
	case LeaveOp:
		return "leave"
	case PoseOp:
		return "pose"
	case HealthOp:
		return "health"
	case SpawnBallOp:
		return "spawn"
	case DestroyBallOp:
		return "destroy"
	case BallStateOp:
		return "ball-state"
	case OwnershipRequestOp:
		return "ownership-request"
	case OwnershipGrantedOp:
		return "ownership-granted"
	case OwnershipDeniedOp:
		return "ownership-denied"
	case ThrowRequestOp:
		return "throw-request"
	case CatchIntentOp:
		return "catch-intent"
	case DamageOp:
		return "damage"
	case HoldPhaseOp:
		return "hold-phase"
	case EffectOp:
		return "effect"
	case ForceResetOp:
		return "force-reset"
	default:
		return "unknown"
	}
}

type Message interface {
	Op() Op
}

// Sent by the relay to a newly connected peer.
type Welcome struct {
	Actor ActorID
	Room  string
}

type Join struct {
	Actor     ActorID
	Name      string
	Character string
}

type Leave struct {
	Actor ActorID
}

// A participant's character pose, published by the participant's own process.
type Pose struct {
	Actor    ActorID
	Position mgl64.Vec3
	Facing   mgl64.Vec3
	Scale    float64
	Ducking  bool
}

// Published by a participant's own process after its health changed.
type Health struct {
	Actor  ActorID
	Health int32
}

type SpawnBall struct {
	Handle    Handle
	Owner     ActorID
	Position  mgl64.Vec3
	Temporary bool
	Lifetime  time.Duration
}

type DestroyBall struct {
	Handle Handle
}

// Authoritative snapshot of a shared object, published by its owner.
type BallState struct {
	Handle Handle
	// Bumped by every forced reset. Updates are ordered by (Epoch, Seq).
	Epoch       uint32
	Seq         uint32
	Owner       ActorID
	State       uint8
	Position    mgl64.Vec3
	Velocity    mgl64.Vec3
	Holder      ActorID
	Thrower     ActorID
	Target      ActorID
	Kind        uint8
	Damage      int32
	WallBounces int32
	// Time spent in the current hold episode. Relative so that it survives
	// being moved between processes with different clocks.
	HoldElapsed time.Duration
	Phase       uint8
	Penalized   bool
}

type OwnershipRequest struct {
	Handle    Handle
	Requester ActorID
}

type OwnershipGranted struct {
	Handle Handle
	From   ActorID
	To     ActorID
	State  BallState
}

type OwnershipDenied struct {
	Handle    Handle
	Requester ActorID
}

type ThrowRequest struct {
	Handle    Handle
	Thrower   ActorID
	Direction mgl64.Vec3
	Power     float64
	Kind      uint8
}

type CatchIntent struct {
	Handle  Handle
	Catcher ActorID
}

type DamageReason uint8

const (
	DamageHit DamageReason = iota
	DamageFailedCatch
	DamageHoldPenalty
)

func (r DamageReason) String() string {
	switch r {
	case DamageHit:
		return "hit"
	case DamageFailedCatch:
		return "failed-catch"
	case DamageHoldPenalty:
		return "hold-penalty"
	}
	return "unknown"
}

// Directive for the target's own process to apply damage to itself.
type Damage struct {
	Target    ActorID
	Attacker  ActorID
	Amount    int32
	Reason    DamageReason
	Knockback mgl64.Vec3
	Delay     time.Duration
}

type HoldPhase struct {
	Handle Handle
	Holder ActorID
	Phase  uint8
}

type Effect struct {
	Handle   Handle
	Kind     uint8
	Position mgl64.Vec3
}

// Issued by the session leader when ownership of an object is found to be
// inconsistent. Every process resets the object and hands it to Owner.
type ForceReset struct {
	Handle Handle
	Epoch  uint32
	Owner  ActorID
}

func (Welcome) Op() Op          { return WelcomeOp }
func (Join) Op() Op             { return JoinOp }
func (Leave) Op() Op            { return LeaveOp }
func (Pose) Op() Op             { return PoseOp }
func (Health) Op() Op           { return HealthOp }
func (SpawnBall) Op() Op        { return SpawnBallOp }
func (DestroyBall) Op() Op      { return DestroyBallOp }
func (BallState) Op() Op        { return BallStateOp }
func (OwnershipRequest) Op() Op { return OwnershipRequestOp }
func (OwnershipGranted) Op() Op { return OwnershipGrantedOp }
func (OwnershipDenied) Op() Op  { return OwnershipDeniedOp }
func (ThrowRequest) Op() Op     { return ThrowRequestOp }
func (CatchIntent) Op() Op      { return CatchIntentOp }
func (Damage) Op() Op           { return DamageOp }
func (HoldPhase) Op() Op        { return HoldPhaseOp }
func (Effect) Op() Op           { return EffectOp }
func (ForceReset) Op() Op       { return ForceResetOp }
