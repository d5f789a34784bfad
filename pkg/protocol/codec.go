package protocol

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var ErrUnknownOp = errors.New("unknown op")

// Envelope is the unit every transport moves. To is NoActor for broadcasts.
type Envelope struct {
	Op      Op
	From    ActorID
	To      ActorID
	Payload cbor.RawMessage
}

// Wrap encodes msg into an envelope.
func Wrap(from, to ActorID, msg Message) (Envelope, error) {
	payload, err := cbor.Marshal(msg)
	if err != nil {
		return Envelope{}, fmt.Errorf("could not encode %s: %w", msg.Op(), err)
	}
	return Envelope{
		Op:      msg.Op(),
		From:    from,
		To:      to,
		Payload: payload,
	}, nil
}

func newMessage(op Op) (Message, error) {
	switch op {
	case WelcomeOp:
		return &Welcome{}, nil
	case JoinOp:
		return &Join{}, nil
	case LeaveOp:
		return &Leave{}, nil
	case PoseOp:
		return &Pose{}, nil
	case HealthOp:
		return &Health{}, nil
	case SpawnBallOp:
		return &SpawnBall{}, nil
	case DestroyBallOp:
		return &DestroyBall{}, nil
	case BallStateOp:
		return &BallState{}, nil
	case OwnershipRequestOp:
		return &OwnershipRequest{}, nil
	case OwnershipGrantedOp:
		return &OwnershipGranted{}, nil
	case OwnershipDeniedOp:
		return &OwnershipDenied{}, nil
	case ThrowRequestOp:
		return &ThrowRequest{}, nil
	case CatchIntentOp:
		return &CatchIntent{}, nil
	case DamageOp:
		return &Damage{}, nil
	case HoldPhaseOp:
		return &HoldPhase{}, nil
	case EffectOp:
		return &Effect{}, nil
	case ForceResetOp:
		return &ForceReset{}, nil
	}
	return nil, ErrUnknownOp
}

// Open decodes the payload of e. The returned message is always a pointer
// to one of the payload structs in this package.
func (e Envelope) Open() (Message, error) {
	msg, err := newMessage(e.Op)
	if err != nil {
		return nil, fmt.Errorf("op %d: %w", e.Op, err)
	}
	if err := cbor.Unmarshal(e.Payload, msg); err != nil {
		return nil, fmt.Errorf("could not decode %s: %w", e.Op, err)
	}
	return msg, nil
}

// Marshal encodes an envelope for the wire.
func Marshal(e Envelope) ([]byte, error) {
	return cbor.Marshal(e)
}

func Unmarshal(data []byte) (Envelope, error) {
	var e Envelope
	if err := cbor.Unmarshal(data, &e); err != nil {
		return Envelope{}, err
	}
	if e.Op == 0 {
		return Envelope{}, fmt.Errorf("envelope without op")
	}
	return e, nil
}
