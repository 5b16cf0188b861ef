// Package cartsync keeps a device-local cart consistent with the remote cart
// of the signed-in user. Manager is the entry point.
package cartsync

// State is the lifecycle state of a Manager.
type State int

const (
	StateUninitialized State = iota
	StateGuest
	StateSyncing
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateGuest:
		return "guest"
	case StateSyncing:
		return "syncing"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}
