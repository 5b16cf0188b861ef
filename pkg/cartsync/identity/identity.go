// Package identity carries the authenticated-or-guest state of the device
// user and broadcasts its transitions.
package identity

import (
	"context"
	"sync"
)

// Identity is who the cart currently belongs to. The zero value is a guest.
type Identity struct {
	UserID string
	// Token is the bearer token presented to the remote cart service.
	Token string
}

// Guest returns the unauthenticated identity.
func Guest() Identity {
	return Identity{}
}

// User returns an authenticated identity.
func User(userID, token string) Identity {
	return Identity{UserID: userID, Token: token}
}

// Authenticated reports whether the identity belongs to a logged-in user.
func (i Identity) Authenticated() bool {
	return i.UserID != ""
}

func (i Identity) String() string {
	if !i.Authenticated() {
		return "guest"
	}
	return "user:" + i.UserID
}

type contextKey struct{}

// NewContext returns ctx carrying id. Remote cart calls read it to decide
// whose cart they act on.
func NewContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity carried by ctx, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// Signal delivers identity transitions. Subscribe returns a channel that
// receives every transition after the call, and a function that ends the
// subscription and closes the channel.
type Signal interface {
	Current() Identity
	Subscribe() (<-chan Identity, func())
}

// Broadcaster is an in-process Signal fed by the login and logout flows.
type Broadcaster struct {
	mu      sync.Mutex
	current Identity
	nextID  int
	subs    map[int]chan Identity
}

// NewBroadcaster creates a broadcaster starting at the given identity.
func NewBroadcaster(initial Identity) *Broadcaster {
	return &Broadcaster{
		current: initial,
		subs:    make(map[int]chan Identity),
	}
}

// Current returns the latest published identity.
func (b *Broadcaster) Current() Identity {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Subscribe registers a subscriber. The channel is buffered; a subscriber
// that falls behind by more than the buffer misses intermediate transitions
// but always receives the latest one.
func (b *Broadcaster) Subscribe() (<-chan Identity, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Identity, 8)
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// Publish records a transition and fans it out. Publishing the identity that
// is already current is a no-op.
func (b *Broadcaster) Publish(id Identity) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if id == b.current {
		return
	}
	b.current = id

	for _, ch := range b.subs {
		select {
		case ch <- id:
		default:
			// Drop the oldest pending transition to make room for the newest.
			select {
			case <-ch:
			default:
			}
			ch <- id
		}
	}
}

// Login publishes an authenticated identity.
func (b *Broadcaster) Login(userID, token string) {
	b.Publish(User(userID, token))
}

// Logout publishes the guest identity.
func (b *Broadcaster) Logout() {
	b.Publish(Guest())
}
