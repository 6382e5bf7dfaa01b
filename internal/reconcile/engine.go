// Package reconcile ingests external orders into the stock ledger and keeps the
// current-stock projection in step with snapshots and manual adjustments.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"github.com/mosly/envelope-stock/internal/ledger"
	"github.com/mosly/envelope-stock/internal/repo"
	"github.com/mosly/envelope-stock/internal/settings"
	"github.com/mosly/envelope-stock/internal/snapshots"
	"github.com/mosly/envelope-stock/internal/stock"
	pkgerrors "github.com/mosly/envelope-stock/pkg/errors"
	"github.com/mosly/envelope-stock/pkg/logger"
	"github.com/mosly/envelope-stock/pkg/metrics"
	"github.com/mosly/envelope-stock/pkg/types"
)

const (
	defaultLeaseWait = 10 * time.Second
	defaultLeasePoll = 250 * time.Millisecond
)

// Status is the engine's externally visible state.
type Status string

const (
	StatusIdle    Status = "IDLE"
	StatusSyncing Status = "SYNCING"
)

// OrderSource returns orders created after since, oldest first. Pagination and
// authentication stay behind the interface.
type OrderSource interface {
	FetchOrdersSince(ctx context.Context, since time.Time) ([]types.OrderEvent, error)
}

// Lease serializes engine runs across processes.
type Lease interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// StateStore reconstructs and persists the stock projection.
type StateStore interface {
	ComputeState(ctx context.Context) (stock.State, error)
	PersistState(ctx context.Context, state stock.State) error
	CurrentState(ctx context.Context) (stock.State, time.Time, bool, error)
}

// Params wires the engine collaborators.
type Params struct {
	Logger *logger.Logger
	// DB scopes writes that must land together, such as a manual movement
	// and the baseline it advances.
	DB        *gorm.DB
	Ledger    ledger.Repository
	Snapshots snapshots.Repository
	Settings  settings.Repository
	State     StateStore
	Orders    OrderSource
	Lease     Lease
	Metrics   *metrics.SyncMetrics
	LeaseWait time.Duration
	LeasePoll time.Duration
	Now       func() time.Time
}

// Engine is the single writer of the ledger, snapshots and baseline.
type Engine struct {
	logg      *logger.Logger
	store     repo.Base
	ledger    ledger.Repository
	snapshots snapshots.Repository
	settings  settings.Repository
	state     StateStore
	orders    OrderSource
	lease     Lease
	metrics   *metrics.SyncMetrics
	leaseWait time.Duration
	leasePoll time.Duration
	now       func() time.Time

	sem     chan struct{}
	syncing atomic.Bool
}

// NewEngine validates the collaborators and returns an idle engine.
func NewEngine(params Params) (*Engine, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("database required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger repository required")
	case params.Snapshots == nil:
		return nil, fmt.Errorf("snapshot repository required")
	case params.Settings == nil:
		return nil, fmt.Errorf("settings repository required")
	case params.State == nil:
		return nil, fmt.Errorf("state store required")
	case params.Orders == nil:
		return nil, fmt.Errorf("order source required")
	case params.Lease == nil:
		return nil, fmt.Errorf("lease required")
	}
	wait := params.LeaseWait
	if wait <= 0 {
		wait = defaultLeaseWait
	}
	poll := params.LeasePoll
	if poll <= 0 {
		poll = defaultLeasePoll
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		logg:      params.Logger,
		store:     repo.NewBase(params.DB),
		ledger:    params.Ledger,
		snapshots: params.Snapshots,
		settings:  params.Settings,
		state:     params.State,
		orders:    params.Orders,
		lease:     params.Lease,
		metrics:   params.Metrics,
		leaseWait: wait,
		leasePoll: poll,
		now:       now,
		sem:       make(chan struct{}, 1),
	}, nil
}

// Status reports whether a sync, adjustment or snapshot is in flight.
func (e *Engine) Status() Status {
	if e.syncing.Load() {
		return StatusSyncing
	}
	return StatusIdle
}

// Baseline resolves the effective cutoff: the stored setting, else the latest
// snapshot time.
func (e *Engine) Baseline(ctx context.Context) (time.Time, error) {
	at, ok, err := e.settings.Baseline(ctx)
	if err != nil {
		return time.Time{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read baseline")
	}
	if ok {
		return at, nil
	}
	snap, err := e.snapshots.Latest(ctx)
	if err != nil {
		if errors.Is(err, snapshots.ErrNotFound) {
			return time.Time{}, pkgerrors.New(pkgerrors.CodeStateConflict, "no baseline recorded; record a snapshot first")
		}
		return time.Time{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read latest snapshot")
	}
	return snap.TakenAt, nil
}

// StateView is the stock map plus where it was read from.
type StateView struct {
	State     stock.State `json:"state"`
	Source    string      `json:"source"`
	UpdatedAt *time.Time  `json:"updated_at,omitempty"`
	Status    Status      `json:"status"`
}

const (
	StateSourceProjection = "projection"
	StateSourceLedger     = "ledger"
)

// GetState reads the projection, falling back to a reconstruction when the
// projection has never been written. It takes no lock.
func (e *Engine) GetState(ctx context.Context) (*StateView, error) {
	current, updatedAt, ok, err := e.state.CurrentState(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read stock projection")
	}
	if ok {
		return &StateView{State: current, Source: StateSourceProjection, UpdatedAt: &updatedAt, Status: e.Status()}, nil
	}
	return e.ComputeState(ctx)
}

// ComputeState reconstructs stock from the latest snapshot and the ledger
// without touching the projection.
func (e *Engine) ComputeState(ctx context.Context) (*StateView, error) {
	computed, err := e.state.ComputeState(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reconstruct stock")
	}
	return &StateView{State: computed, Source: StateSourceLedger, Status: e.Status()}, nil
}

// withLock runs fn while holding the in-process slot and the shared lease.
func (e *Engine) withLock(ctx context.Context, fn func(ctx context.Context) error) error {
	deadline := time.NewTimer(e.leaseWait)
	defer deadline.Stop()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-deadline.C:
		return errInProgress()
	}
	defer func() { <-e.sem }()

	if err := e.acquireLease(ctx, deadline.C); err != nil {
		return err
	}
	defer func() {
		if err := e.lease.Release(context.WithoutCancel(ctx)); err != nil {
			e.logg.Error(ctx, "failed to release reconcile lease", err)
		}
	}()

	e.syncing.Store(true)
	defer e.syncing.Store(false)
	return fn(ctx)
}

func (e *Engine) acquireLease(ctx context.Context, deadline <-chan time.Time) error {
	ticker := time.NewTicker(e.leasePoll)
	defer ticker.Stop()
	for {
		ok, err := e.lease.Acquire(ctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire reconcile lease")
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return errInProgress()
		case <-ticker.C:
		}
	}
}

func errInProgress() error {
	return pkgerrors.New(pkgerrors.CodeConflict, "reconciliation already in progress")
}
