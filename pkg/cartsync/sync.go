package cartsync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/EcommerceGo/pkg/cartsync/domain"
	"github.com/utafrali/EcommerceGo/pkg/cartsync/identity"
	"github.com/utafrali/EcommerceGo/pkg/cartsync/merge"
	apperrors "github.com/utafrali/EcommerceGo/pkg/errors"
)

// Watch applies the signal's current identity and then every transition it
// publishes, until ctx ends or the subscription is closed.
func (m *Manager) Watch(ctx context.Context, sig identity.Signal) error {
	ch, cancel := sig.Subscribe()
	defer cancel()

	if err := m.HandleIdentity(ctx, sig.Current()); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case id, ok := <-ch:
			if !ok {
				return nil
			}
			if err := m.HandleIdentity(ctx, id); err != nil {
				return err
			}
		}
	}
}

// HandleIdentity moves the manager to the state matching next. Logging out
// keeps the cart but stops remote propagation. Logging in fetches the user's
// remote cart, merges the local cart into it and pushes the result. Moving
// straight from one user to another is a logout followed by a login.
func (m *Manager) HandleIdentity(ctx context.Context, next identity.Identity) error {
	m.mu.Lock()
	if m.state == StateUninitialized {
		m.mu.Unlock()
		return ErrNotStarted
	}

	cur := m.id
	switch {
	case !next.Authenticated():
		if cur.Authenticated() {
			m.logoutLocked(ctx)
		}
		m.mu.Unlock()
		return nil

	case cur.Authenticated() && cur.UserID == next.UserID:
		// Token refresh for the same user.
		m.id = next
		m.mu.Unlock()
		return nil

	case cur.Authenticated():
		m.logoutLocked(ctx)
	}

	m.state = StateSyncing
	m.id = next
	m.session++
	session := m.session
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "syncing cart for login", slog.String("user_id", next.UserID))

	fetchCtx := identity.NewContext(ctx, next)
	if m.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(fetchCtx, m.timeout)
		defer cancel()
	}
	remoteSnap, fetchErr := m.remote.Fetch(fetchCtx)

	m.mu.Lock()
	if m.session != session || m.state != StateSyncing {
		// Superseded by a later identity change.
		m.mu.Unlock()
		return nil
	}

	if fetchErr != nil {
		loginSyncsTotal.WithLabelValues("fetch_failed").Inc()
		m.logger.WarnContext(ctx, "fetch remote cart failed, keeping local cart",
			slog.String("op", "fetch"),
			slog.String("user_id", next.UserID),
			slog.String("error", fetchErr.Error()),
		)
		m.state = StateAuthenticated
		m.mu.Unlock()
		return nil
	}

	var notify func()
	if len(m.lines) == 0 || merge.Equivalent(m.lines, remoteSnap) {
		loginSyncsTotal.WithLabelValues("adopted").Inc()
		m.lines, _ = domain.Normalize(remoteSnap)
		notify = m.commitLocked(ctx)
	} else {
		res := merge.MergeWithReport(m.lines, remoteSnap)
		if len(res.Dropped) > 0 {
			m.logger.WarnContext(ctx, "dropped lines during merge",
				slog.String("user_id", next.UserID),
				slog.Int("count", len(res.Dropped)),
			)
		}
		loginSyncsTotal.WithLabelValues("merged").Inc()
		m.lines = res.Snapshot
		m.trackLocked(m.remoteLane.Go(identity.NewContext(ctx, next), "replace", m.snapshotPushTask(m.lines.Clone())))
		notify = m.commitLocked(ctx)
	}

	m.state = StateAuthenticated
	m.logger.InfoContext(ctx, "cart synced",
		slog.String("user_id", next.UserID),
		slog.Int("lines", len(m.lines)),
		slog.Int("count", m.lines.Count()),
	)
	m.mu.Unlock()

	notify()
	return nil
}

// Resume restores a session whose guest cart was merged on an earlier run.
// It enters the authenticated state for id without merging and adopts the
// remote cart. When the fetch fails the local cart is kept.
func (m *Manager) Resume(ctx context.Context, id identity.Identity) error {
	if !id.Authenticated() {
		return apperrors.InvalidInput("resume requires an authenticated identity")
	}

	m.mu.Lock()
	if m.state == StateUninitialized {
		m.mu.Unlock()
		return ErrNotStarted
	}

	cur := m.id
	if cur.Authenticated() && cur.UserID == id.UserID {
		m.id = id
		m.mu.Unlock()
		return nil
	}
	if cur.Authenticated() {
		m.logoutLocked(ctx)
	}

	m.state = StateAuthenticated
	m.id = id
	m.session++
	m.mu.Unlock()

	loginSyncsTotal.WithLabelValues("resumed").Inc()
	m.logger.InfoContext(ctx, "resumed session", slog.String("user_id", id.UserID))

	// Refresh logs its own failures.
	_, _ = m.Refresh(ctx)
	return nil
}

func (m *Manager) logoutLocked(ctx context.Context) {
	m.logger.InfoContext(ctx, "logged out, cart kept locally", slog.String("user_id", m.id.UserID))
	m.state = StateGuest
	m.id = identity.Guest()
	m.session++
}

// Refresh replaces the cart with the remote one. Concurrent calls share one
// fetch. When the cart changed locally while the fetch was in flight, the
// fetched snapshot is discarded and the current cart is returned.
func (m *Manager) Refresh(ctx context.Context) (domain.Snapshot, error) {
	m.mu.Lock()
	if m.state != StateAuthenticated {
		m.mu.Unlock()
		return nil, apperrors.Unauthorized("refresh requires an authenticated cart")
	}
	id := m.id
	m.mu.Unlock()

	v, err, _ := m.refresh.Do(id.UserID, func() (any, error) {
		return m.doRefresh(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(domain.Snapshot).Clone(), nil
}

func (m *Manager) doRefresh(ctx context.Context, id identity.Identity) (domain.Snapshot, error) {
	m.mu.Lock()
	version, session := m.version, m.session
	m.mu.Unlock()

	// Shared by every waiting caller, so one caller's cancellation must not
	// fail the others.
	fetchCtx := identity.NewContext(context.WithoutCancel(ctx), id)
	if m.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(fetchCtx, m.timeout)
		defer cancel()
	}

	remoteSnap, err := m.remote.Fetch(fetchCtx)
	if err != nil {
		m.logger.WarnContext(ctx, "refresh from remote failed",
			slog.String("op", "fetch"),
			slog.String("user_id", id.UserID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("refresh cart: %w", err)
	}

	m.mu.Lock()
	if m.version != version || m.session != session {
		m.logger.DebugContext(ctx, "discarding stale refresh", slog.String("user_id", id.UserID))
		current := m.lines.Clone()
		m.mu.Unlock()
		return current, nil
	}

	m.lines, _ = domain.Normalize(remoteSnap)
	notify := m.commitLocked(ctx)
	current := m.lines.Clone()
	m.mu.Unlock()

	notify()
	return current, nil
}
