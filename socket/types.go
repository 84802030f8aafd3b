// Package socket implements the Byte Socket component: suspension-based
// TCP client, listener and accepted-connection types driven entirely
// through the ring manager.
//
// Grounded on the teacher's aio.TCPConn/aio.TCPListener (fd-oriented
// connection objects, shutdown-then-close teardown, multishot accept
// loop) redesigned per §4.B into a suspension-based surface: every
// method call parks on uring.Manager.Submit instead of registering an
// Upstream callback.
package socket

import "sync/atomic"

// Role identifies how a Socket came into being.
type Role int

const (
	RoleClient Role = iota
	RoleAccepted
	RoleListener
)

// State is the Byte Socket lifecycle from §3: New -> Connecting ->
// Established -> (HalfClosed) -> Closed.
type State int32

const (
	StateNew State = iota
	StateConnecting
	StateEstablished
	StateHalfClosed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnecting:
		return "connecting"
	case StateEstablished:
		return "established"
	case StateHalfClosed:
		return "half_closed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type atomicState struct{ v atomic.Int32 }

func (a *atomicState) load() State   { return State(a.v.Load()) }
func (a *atomicState) store(s State) { a.v.Store(int32(s)) }
func (a *atomicState) cas(old, new_ State) bool {
	return a.v.CompareAndSwap(int32(old), int32(new_))
}

// closeToClosed transitions to Closed from whatever state is current,
// reporting whether this call was the one that made the transition
// (false means some other caller already closed it).
func (a *atomicState) closeToClosed() bool {
	for {
		cur := a.v.Load()
		if State(cur) == StateClosed {
			return false
		}
		if a.v.CompareAndSwap(cur, int32(StateClosed)) {
			return true
		}
	}
}
