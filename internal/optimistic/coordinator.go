package optimistic

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultTimeout force-rolls-back operations whose remote call never
	// resolved. A safety net against leaked pending state, not the primary
	// resolution path.
	DefaultTimeout = 30 * time.Second

	// DefaultSweepInterval is how often the cleanup pass runs
	DefaultSweepInterval = 5 * time.Second
)

// ErrTimedOut is handed to Failed when the sweep rolls an operation back
var ErrTimedOut = fmt.Errorf("optimistic operation timed out")

// Clock provides the current time
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// pendingOp is one registered operation together with its resolution hooks.
// resolved flips exactly once, under the coordinator lock, so a late remote
// result after a sweep is a no-op.
type pendingOp struct {
	id       uuid.UUID
	op       Operation
	hooks    Hooks
	resolved bool
}

// Coordinator tracks pending optimistic operations, resolves them when
// their remote call completes, and sweeps ones that never resolve.
//
// Coordinators are constructed explicitly and injected; separate instances
// are fully isolated, which keeps tests independent. The coordinator does
// not serialize operations per entity: overlapping mutations on one entity
// each get their own operation, and callers are responsible for not issuing
// conflicting concurrent mutations.
type Coordinator struct {
	mu      sync.Mutex
	pending map[uuid.UUID]*pendingOp

	timeout time.Duration
	clock   Clock

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCoordinator creates a coordinator and starts its timeout sweeper
func NewCoordinator(opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		pending: make(map[uuid.UUID]*pendingOp),
		timeout: DefaultTimeout,
		clock:   systemClock{},
		stop:    make(chan struct{}),
	}
	interval := DefaultSweepInterval
	for _, opt := range opts {
		opt(c, &interval)
	}

	c.wg.Add(1)
	go c.sweeper(interval)

	return c
}

// CoordinatorOption configures a Coordinator at construction
type CoordinatorOption func(c *Coordinator, sweepInterval *time.Duration)

// WithTimeout overrides the pending-operation timeout
func WithTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator, _ *time.Duration) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithSweepInterval overrides how often the cleanup pass runs
func WithSweepInterval(d time.Duration) CoordinatorOption {
	return func(_ *Coordinator, interval *time.Duration) {
		if d > 0 {
			*interval = d
		}
	}
}

// WithClock overrides the time source for testing
func WithClock(clock Clock) CoordinatorOption {
	return func(c *Coordinator, _ *time.Duration) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// Close stops the sweeper and waits for in-flight remote calls to resolve
func (c *Coordinator) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.wg.Wait()
}

// Apply registers op, invokes hooks.Applied immediately, then runs remote
// in the background. Exactly one terminal resolution occurs: remote success
// removes the operation; remote failure (or a timeout sweep) removes it and
// invokes hooks.RolledBack with the original snapshot, then hooks.Failed.
func (c *Coordinator) Apply(ctx context.Context, op Operation, remote func(ctx context.Context) error, hooks Hooks) {
	p := c.register(op, hooks)

	if hooks.Applied != nil {
		hooks.Applied()
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		err := remote(ctx)
		if err == nil {
			c.resolve(p)
			return
		}
		c.rollback(p, err)
	}()
}

// ApplyBatch registers one operation per entity, invokes hooks.Applied once,
// and runs a single remote call. If that call fails every entity in the
// batch is rolled back, even if the remote side partially applied it; the
// all-or-nothing client rollback is a deliberate simplification.
func (c *Coordinator) ApplyBatch(ctx context.Context, ops []Operation, remote func(ctx context.Context) error, hooks Hooks) {
	pendings := make([]*pendingOp, 0, len(ops))
	for _, op := range ops {
		pendings = append(pendings, c.register(op, hooks))
	}

	if hooks.Applied != nil {
		hooks.Applied()
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		err := remote(ctx)
		for _, p := range pendings {
			if err == nil {
				c.resolve(p)
			} else {
				c.rollback(p, err)
			}
		}
	}()
}

// HasPending reports whether any operation for the entity is unresolved
func (c *Coordinator) HasPending(entityID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pending {
		if p.op.EntityID == entityID {
			return true
		}
	}
	return false
}

// PendingCount returns the number of unresolved operations
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Coordinator) register(op Operation, hooks Hooks) *pendingOp {
	if op.CreatedAt.IsZero() {
		op.CreatedAt = c.clock.Now()
	}
	p := &pendingOp{id: uuid.New(), op: op, hooks: hooks}

	c.mu.Lock()
	c.pending[p.id] = p
	c.mu.Unlock()

	return p
}

// claim removes p from the pending set if it has not already been resolved.
// It returns false when another path (remote result or sweep) won the race.
func (c *Coordinator) claim(p *pendingOp) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.resolved {
		return false
	}
	p.resolved = true
	delete(c.pending, p.id)
	return true
}

func (c *Coordinator) resolve(p *pendingOp) {
	// A late success after a sweep must not re-apply or double-notify
	c.claim(p)
}

func (c *Coordinator) rollback(p *pendingOp, err error) {
	if !c.claim(p) {
		return
	}
	slog.Warn("rolling back optimistic operation",
		"kind", string(p.op.Kind),
		"entity_id", p.op.EntityID,
		"error", err,
	)
	if p.hooks.RolledBack != nil {
		p.hooks.RolledBack(p.op.EntityID, p.op.Original)
	}
	if p.hooks.Failed != nil {
		p.hooks.Failed(err)
	}
}

func (c *Coordinator) sweeper(interval time.Duration) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep force-rolls-back every operation older than the timeout
func (c *Coordinator) sweep() {
	cutoff := c.clock.Now().Add(-c.timeout)

	c.mu.Lock()
	var expired []*pendingOp
	for _, p := range c.pending {
		if p.op.CreatedAt.Before(cutoff) {
			expired = append(expired, p)
		}
	}
	c.mu.Unlock()

	for _, p := range expired {
		c.rollback(p, ErrTimedOut)
	}
}
