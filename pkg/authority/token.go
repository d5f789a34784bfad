// Package authority tracks which participant may mutate a shared object.
package authority

import (
	"fmt"
	"time"

	"github.com/cfoust/dodgeball/pkg/protocol"
)

type Status uint8

const (
	Unowned Status = iota
	Owned
	// A transfer from the current owner to a requester is in flight.
	Pending
)

func (s Status) String() string {
	switch s {
	case Unowned:
		return "unowned"
	case Owned:
		return "owned"
	case Pending:
		return "pending"
	}
	return "unknown"
}

// Token is one process's view of an object's authority. During a pending
// transfer the previous owner is still the owner: nobody may mutate the
// object on the strength of a request alone.
type Token struct {
	status      Status
	owner       protocol.ActorID
	requester   protocol.ActorID
	requestedAt time.Duration

	mutating bool
	deferred []protocol.ActorID
}

func New(owner protocol.ActorID) *Token {
	t := &Token{}
	if owner != protocol.NoActor {
		t.status = Owned
		t.owner = owner
	}
	return t
}

func (t *Token) Status() Status          { return t.status }
func (t *Token) Owner() protocol.ActorID { return t.owner }

// IsOwner reports whether actor currently has the right to mutate.
func (t *Token) IsOwner(actor protocol.ActorID) bool {
	return t.status != Unowned && actor != protocol.NoActor && t.owner == actor
}

// Request starts a transfer to requester. Only one transfer may be in flight:
// a second request while one is pending is rejected.
func (t *Token) Request(requester protocol.ActorID, now time.Duration) bool {
	if t.status != Owned || t.owner == requester {
		return false
	}
	t.status = Pending
	t.requester = requester
	t.requestedAt = now
	return true
}

// Pending returns the in-flight transfer, if any.
func (t *Token) Pending() (from, to protocol.ActorID, ok bool) {
	if t.status != Pending {
		return protocol.NoActor, protocol.NoActor, false
	}
	return t.owner, t.requester, true
}

// Grant records a transfer confirmed by the previous owner. A grant from
// someone who is not the owner is refused.
func (t *Token) Grant(from, to protocol.ActorID) error {
	if t.status != Unowned && t.owner != from {
		return fmt.Errorf("grant from %d but owner is %d", from, t.owner)
	}
	t.status = Owned
	t.owner = to
	t.requester = protocol.NoActor
	return nil
}

// Cancel drops the pending transfer to requester, leaving the owner as is.
func (t *Token) Cancel(requester protocol.ActorID) bool {
	if t.status != Pending || t.requester != requester {
		return false
	}
	t.status = Owned
	t.requester = protocol.NoActor
	return true
}

// Expired reports whether a pending transfer has waited longer than timeout.
func (t *Token) Expired(now, timeout time.Duration) bool {
	return t.status == Pending && timeout > 0 && now-t.requestedAt >= timeout
}

// Force hands the object to owner, discarding any transfer in flight. Used
// when membership changes or when ownership is found to be inconsistent.
func (t *Token) Force(owner protocol.ActorID) {
	t.requester = protocol.NoActor
	t.deferred = nil
	if owner == protocol.NoActor {
		t.status = Unowned
		t.owner = protocol.NoActor
		return
	}
	t.status = Owned
	t.owner = owner
}

// BeginMutation marks the start of a simulation or resolution step.
// Transfers requested until EndMutation are deferred.
func (t *Token) BeginMutation() { t.mutating = true }
func (t *Token) EndMutation()   { t.mutating = false }
func (t *Token) Mutating() bool { return t.mutating }

// Defer queues a transfer request until the next tick boundary.
func (t *Token) Defer(requester protocol.ActorID) {
	t.deferred = append(t.deferred, requester)
}

// TakeDeferred returns and clears the deferred requests.
func (t *Token) TakeDeferred() []protocol.ActorID {
	deferred := t.deferred
	t.deferred = nil
	return deferred
}

func (t *Token) String() string {
	switch t.status {
	case Owned:
		return fmt.Sprintf("owned(%d)", t.owner)
	case Pending:
		return fmt.Sprintf("pending(%d->%d)", t.owner, t.requester)
	}
	return "unowned"
}
