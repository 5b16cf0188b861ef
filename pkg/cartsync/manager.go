package cartsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"github.com/utafrali/EcommerceGo/pkg/cartsync/domain"
	"github.com/utafrali/EcommerceGo/pkg/cartsync/identity"
	"github.com/utafrali/EcommerceGo/pkg/cartsync/remote"
	"github.com/utafrali/EcommerceGo/pkg/cartsync/store"
	"github.com/utafrali/EcommerceGo/pkg/cartsync/task"
	apperrors "github.com/utafrali/EcommerceGo/pkg/errors"
	"github.com/utafrali/EcommerceGo/pkg/slug"
)

var loginSyncsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cartsync_login_syncs_total",
		Help: "Guest to authenticated transitions by outcome",
	},
	[]string{"outcome"},
)

// maxTrackedTasks bounds the remote tasks kept for Flush.
const maxTrackedTasks = 64

// ErrNotStarted is returned by operations called before Start.
var ErrNotStarted = errors.New("cartsync: manager not started")

// Unit describes the product variant being added. It is copied onto the
// line at add time.
type Unit struct {
	Name      string
	Slug      string
	Image     string
	Price     int64
	SalePrice *int64
	Stock     int
}

// AddRequest is one entry of a batch add.
type AddRequest struct {
	ProductID string
	Size      string
	Color     string
	Unit      Unit
	Quantity  int
}

// Manager holds the in-memory cart and its derived totals. Mutations apply
// to memory immediately, then persist to the store and, while authenticated,
// propagate to the remote cart in the background. Store and remote failures
// are logged and never returned to callers.
type Manager struct {
	store   store.Store
	remote  remote.Client
	logger  *slog.Logger
	timeout time.Duration

	remoteLane *task.Dispatcher
	saveLane   *task.Dispatcher
	refresh    singleflight.Group

	mu        sync.Mutex
	state     State
	id        identity.Identity
	lines     domain.Snapshot
	version   uint64
	session   uint64
	observers map[int]func(domain.Snapshot)
	nextObs   int
	pending   []*task.Task
}

// New creates a Manager over st and rc. Call Start before using it.
func New(st store.Store, rc remote.Client, opts ...Option) *Manager {
	m := &Manager{
		store:     st,
		remote:    rc,
		logger:    slog.Default(),
		timeout:   DefaultTaskTimeout,
		id:        identity.Guest(),
		lines:     domain.Snapshot{},
		observers: make(map[int]func(domain.Snapshot)),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(slog.String("component", "cartsync"))
	m.remoteLane = task.NewDispatcher("remote", m.timeout, m.logger)
	m.saveLane = task.NewDispatcher("store", m.timeout, m.logger)
	return m
}

// Start loads the persisted snapshot and enters the guest state. A snapshot
// that cannot be read is treated as empty.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateUninitialized {
		m.mu.Unlock()
		return nil
	}

	snap, err := m.store.Load(ctx)
	if err != nil {
		m.logger.WarnContext(ctx, "load cart snapshot failed, starting empty",
			slog.String("op", "load"),
			slog.String("error", err.Error()),
		)
		snap = nil
	}
	lines, dropped := domain.Normalize(snap)
	if len(dropped) > 0 {
		m.logger.WarnContext(ctx, "dropped malformed persisted lines", slog.Int("count", len(dropped)))
	}

	m.lines = lines
	m.state = StateGuest
	m.version++
	m.logger.InfoContext(ctx, "cart manager started", slog.Int("lines", len(lines)))
	notify := m.changedLocked()
	m.mu.Unlock()

	notify()
	return nil
}

// Wait blocks until every background task dispatched so far has finished.
func (m *Manager) Wait() {
	m.remoteLane.Wait()
	m.saveLane.Wait()
}

// Flush waits for the background tasks dispatched so far and returns the
// remote call failures not reported by an earlier Flush. The cart is the
// same whatever Flush returns; it only lets a caller tell the user that the
// account cart is behind.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	var errs []error
	for _, t := range pending {
		if err := t.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			errs = append(errs, fmt.Errorf("%s: %w", t.Op(), err))
		}
	}
	m.Wait()
	return errors.Join(errs...)
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Identity returns the identity the manager currently acts for.
func (m *Manager) Identity() identity.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id
}

// Lines returns a copy of the current snapshot.
func (m *Manager) Lines() domain.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lines.Clone()
}

// Count is the number of units in the cart.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lines.Count()
}

// Subtotal is the cart total in minor currency units, using sale prices
// where they apply.
func (m *Manager) Subtotal() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lines.Subtotal()
}

// OnChange registers fn to receive a copy of the snapshot after every
// change. The returned func unregisters it.
func (m *Manager) OnChange(fn func(domain.Snapshot)) func() {
	m.mu.Lock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.observers, id)
		m.mu.Unlock()
	}
}

// AddLine adds quantity units of a variant. An existing line for the same
// variant grows and takes the new stock figure; a new line gets a fresh id.
// Quantities below 1 count as 1 and are clamped to stock and to
// domain.MaxLineQuantity. A variant with no stock is rejected with
// ErrOutOfStock, a new variant on a full cart with ErrInvalidInput.
func (m *Manager) AddLine(ctx context.Context, productID, size, color string, unit Unit, quantity int) (domain.Line, error) {
	m.mu.Lock()
	if m.state == StateUninitialized {
		m.mu.Unlock()
		return domain.Line{}, ErrNotStarted
	}

	line, added, err := m.addLocked(AddRequest{
		ProductID: productID,
		Size:      size,
		Color:     color,
		Unit:      unit,
		Quantity:  quantity,
	})
	if err != nil {
		m.mu.Unlock()
		return domain.Line{}, err
	}

	m.pushAddLocked(ctx, line, added)
	notify := m.commitLocked(ctx)
	m.mu.Unlock()

	notify()
	return line, nil
}

// AddLines applies several adds at once, persisting once. Accepted lines are
// returned; rejected requests are reported in the joined error.
func (m *Manager) AddLines(ctx context.Context, reqs []AddRequest) ([]domain.Line, error) {
	m.mu.Lock()
	if m.state == StateUninitialized {
		m.mu.Unlock()
		return nil, ErrNotStarted
	}

	var (
		accepted []domain.Line
		errs     []error
	)
	for _, req := range reqs {
		line, added, err := m.addLocked(req)
		if err != nil {
			errs = append(errs, fmt.Errorf("add %s: %w", domain.Key{ProductID: req.ProductID, Size: req.Size, Color: req.Color}, err))
			continue
		}
		accepted = append(accepted, line)
		m.pushAddLocked(ctx, line, added)
	}

	if len(accepted) == 0 {
		m.mu.Unlock()
		return nil, errors.Join(errs...)
	}

	notify := m.commitLocked(ctx)
	m.mu.Unlock()

	notify()
	return accepted, errors.Join(errs...)
}

// UpdateQuantity sets the quantity of a line, clamped to [1, stock].
// A quantity below 1 removes the line and returns a zero Line.
func (m *Manager) UpdateQuantity(ctx context.Context, lineID string, quantity int) (domain.Line, error) {
	if quantity < 1 {
		return domain.Line{}, m.RemoveLine(ctx, lineID)
	}

	m.mu.Lock()
	if m.state == StateUninitialized {
		m.mu.Unlock()
		return domain.Line{}, ErrNotStarted
	}

	i := m.lines.IndexOfID(lineID)
	if i < 0 {
		m.mu.Unlock()
		return domain.Line{}, apperrors.NotFound("cart line", lineID)
	}

	m.lines[i].Quantity = domain.Clamp(quantity, m.lines[i].Stock)
	line := m.lines[i].Clone()

	if m.state == StateAuthenticated {
		key, qty := line.Key(), line.Quantity
		m.remoteLocked(ctx, "update_line", func(ctx context.Context) error {
			return m.remote.UpdateLine(ctx, key, qty)
		})
	}
	notify := m.commitLocked(ctx)
	m.mu.Unlock()

	notify()
	return line, nil
}

// RemoveLine deletes a line by id.
func (m *Manager) RemoveLine(ctx context.Context, lineID string) error {
	m.mu.Lock()
	if m.state == StateUninitialized {
		m.mu.Unlock()
		return ErrNotStarted
	}

	i := m.lines.IndexOfID(lineID)
	if i < 0 {
		m.mu.Unlock()
		return apperrors.NotFound("cart line", lineID)
	}

	key := m.lines[i].Key()
	m.lines = m.lines.Without(i)

	if m.state == StateAuthenticated {
		m.remoteLocked(ctx, "remove_line", func(ctx context.Context) error {
			return m.remote.RemoveLine(ctx, key)
		})
	}
	notify := m.commitLocked(ctx)
	m.mu.Unlock()

	notify()
	return nil
}

// Clear empties the cart.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateUninitialized {
		m.mu.Unlock()
		return ErrNotStarted
	}

	m.lines = domain.Snapshot{}
	if m.state == StateAuthenticated {
		m.remoteLocked(ctx, "clear", m.remote.Clear)
	}
	notify := m.commitLocked(ctx)
	m.mu.Unlock()

	notify()
	return nil
}

// addLocked applies one add to m.lines and returns the resulting line and
// the number of units actually added.
func (m *Manager) addLocked(req AddRequest) (domain.Line, int, error) {
	if req.ProductID == "" {
		return domain.Line{}, 0, apperrors.InvalidInput("product id is required")
	}
	if req.Unit.Price < 0 || (req.Unit.SalePrice != nil && *req.Unit.SalePrice < 0) {
		return domain.Line{}, 0, apperrors.InvalidInput("price must not be negative")
	}
	if req.Unit.Stock <= 0 {
		return domain.Line{}, 0, apperrors.OutOfStock(req.ProductID, req.Size, req.Color)
	}

	quantity := max(req.Quantity, 1)
	key := domain.Key{ProductID: req.ProductID, Size: req.Size, Color: req.Color}

	if i := m.lines.IndexOf(key); i >= 0 {
		existing := &m.lines[i]
		before := existing.Quantity
		existing.Stock = req.Unit.Stock
		existing.Quantity = domain.Clamp(before+quantity, existing.Stock)
		return existing.Clone(), existing.Quantity - before, nil
	}

	if len(m.lines) >= domain.MaxLines {
		return domain.Line{}, 0, apperrors.InvalidInput(fmt.Sprintf("cart holds at most %d lines", domain.MaxLines))
	}

	line := domain.Line{
		LineID:    domain.NewLineID(key),
		ProductID: req.ProductID,
		Name:      req.Unit.Name,
		Slug:      slugOr(req.Unit.Slug, req.Unit.Name),
		Image:     req.Unit.Image,
		Price:     req.Unit.Price,
		Size:      req.Size,
		Color:     req.Color,
		Quantity:  domain.Clamp(quantity, req.Unit.Stock),
		Stock:     req.Unit.Stock,
	}
	if req.Unit.SalePrice != nil {
		line.SalePrice = domain.Int64(*req.Unit.SalePrice)
	}
	m.lines = append(m.lines, line)
	return line.Clone(), line.Quantity, nil
}

// pushAddLocked sends the units just added to the remote cart, which sums
// them into its own line for the variant.
func (m *Manager) pushAddLocked(ctx context.Context, line domain.Line, added int) {
	if m.state != StateAuthenticated || added <= 0 {
		return
	}
	delta := line.Clone()
	delta.Quantity = added
	m.remoteLocked(ctx, "add_line", func(ctx context.Context) error {
		return m.remote.AddLine(ctx, delta)
	})
}

// remoteLocked dispatches fn for the current identity.
func (m *Manager) remoteLocked(ctx context.Context, op string, fn task.Func) {
	m.trackLocked(m.remoteLane.Go(identity.NewContext(ctx, m.id), op, fn))
}

// trackLocked keeps t for Flush. Tasks that already succeeded are forgotten
// and only the newest maxTrackedTasks are kept.
func (m *Manager) trackLocked(t *task.Task) {
	kept := m.pending[:0]
	for _, p := range m.pending {
		select {
		case <-p.Done():
			if p.Err() == nil {
				continue
			}
		default:
		}
		kept = append(kept, p)
	}
	m.pending = append(kept, t)
	if n := len(m.pending); n > maxTrackedTasks {
		m.pending = m.pending[n-maxTrackedTasks:]
	}
}

// commitLocked records a local mutation: it bumps the version, schedules a
// save of the new snapshot and returns the observer notification to run
// once the lock is released.
func (m *Manager) commitLocked(ctx context.Context) func() {
	m.version++
	snap := m.lines.Clone()
	m.saveLane.Go(ctx, "save", func(ctx context.Context) error {
		return m.store.Save(ctx, snap)
	})
	return m.changedLocked()
}

func (m *Manager) changedLocked() func() {
	if len(m.observers) == 0 {
		return func() {}
	}
	fns := make([]func(domain.Snapshot), 0, len(m.observers))
	for _, fn := range m.observers {
		fns = append(fns, fn)
	}
	snap := m.lines.Clone()
	return func() {
		for _, fn := range fns {
			fn(snap.Clone())
		}
	}
}

// snapshotPushTask replaces the remote cart with snap: one clear, then one
// add per line.
func (m *Manager) snapshotPushTask(snap domain.Snapshot) task.Func {
	return func(ctx context.Context) error {
		if err := m.remote.Clear(ctx); err != nil {
			return fmt.Errorf("clear remote cart: %w", err)
		}
		var errs []error
		for _, l := range snap {
			if err := m.remote.AddLine(ctx, l); err != nil {
				errs = append(errs, fmt.Errorf("add %s: %w", l.Key(), err))
			}
		}
		return errors.Join(errs...)
	}
}

// slugOr returns s, or a slug generated from name when s is empty.
func slugOr(s, name string) string {
	if s != "" {
		return s
	}
	return slug.Generate(name)
}
