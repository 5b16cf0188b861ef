package cartsync

import (
	"context"
	"errors"
	"sync"

	"github.com/utafrali/EcommerceGo/pkg/cartsync/domain"
	"github.com/utafrali/EcommerceGo/pkg/cartsync/identity"
)

type remoteCall struct {
	Op       string
	UserID   string
	Line     domain.Line
	Key      domain.Key
	Quantity int
}

// fakeRemote records every call and serves Fetch from a fixed snapshot.
type fakeRemote struct {
	mu       sync.Mutex
	calls    []remoteCall
	snapshot domain.Snapshot
	fetchErr error
	callErr  error

	// fetchGate, when set, blocks Fetch until it is closed.
	fetchGate chan struct{}
	fetches   int
}

func (f *fakeRemote) record(ctx context.Context, c remoteCall) error {
	id, _ := identity.FromContext(ctx)
	c.UserID = id.UserID

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.callErr
}

func (f *fakeRemote) Fetch(ctx context.Context) (domain.Snapshot, error) {
	f.mu.Lock()
	gate := f.fetchGate
	f.fetches++
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err := f.record(ctx, remoteCall{Op: "fetch"}); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.snapshot.Clone(), nil
}

func (f *fakeRemote) AddLine(ctx context.Context, line domain.Line) error {
	return f.record(ctx, remoteCall{Op: "add_line", Line: line, Key: line.Key(), Quantity: line.Quantity})
}

func (f *fakeRemote) UpdateLine(ctx context.Context, key domain.Key, quantity int) error {
	return f.record(ctx, remoteCall{Op: "update_line", Key: key, Quantity: quantity})
}

func (f *fakeRemote) RemoveLine(ctx context.Context, key domain.Key) error {
	return f.record(ctx, remoteCall{Op: "remove_line", Key: key})
}

func (f *fakeRemote) Clear(ctx context.Context) error {
	return f.record(ctx, remoteCall{Op: "clear"})
}

func (f *fakeRemote) Calls() []remoteCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remoteCall(nil), f.calls...)
}

func (f *fakeRemote) Ops() []string {
	var ops []string
	for _, c := range f.Calls() {
		ops = append(ops, c.Op)
	}
	return ops
}

func (f *fakeRemote) Count(op string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (f *fakeRemote) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// failingStore fails every call.
type failingStore struct{}

var errStoreDown = errors.New("store down")

func (failingStore) Load(context.Context) (domain.Snapshot, error) { return nil, errStoreDown }

func (failingStore) Save(context.Context, domain.Snapshot) error { return errStoreDown }
