// Package scheduler runs the two background loops of the settlement engine:
//  1. tickLoop      – every SCHEDULER_TICK, draws and settles closed periods
//     for every schedulable item on a bounded worker pool.
//  2. countdownLoop – pushes the open period and seconds remaining of every
//     active item to WS clients every second.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/evetabi/periodsettle/internal/config"
	"github.com/evetabi/periodsettle/internal/domain"
	"github.com/evetabi/periodsettle/internal/metrics"
	"github.com/evetabi/periodsettle/internal/ws"
	"github.com/google/uuid"
)

// ──────────────────────────────────────────────────────────────────────────────
// Collaborators
// ──────────────────────────────────────────────────────────────────────────────

// WsHub defines the broadcast operations the Scheduler needs from the WebSocket
// hub.
type WsHub interface {
	BroadcastPeriodTick(msg ws.PeriodTickMessage)
	BroadcastOutcomeDrawn(msg ws.OutcomeDrawnMessage)
	BroadcastPeriodSettled(msg ws.PeriodSettledMessage)
}

// Catalog lists the items to work on and records broken configurations.
// SchedulableItems returns the active items plus disabled ones that still
// have wagers or records to settle.
type Catalog interface {
	SchedulableItems(ctx context.Context) ([]*domain.WageringItem, error)
	FlagInvalid(ctx context.Context, id uuid.UUID, reason string) error
}

// Generator writes missing outcomes for closed periods.
type Generator interface {
	Generate(ctx context.Context, item *domain.WageringItem, now time.Time) ([]*domain.OutcomeRecord, error)
}

// Settler pays out closed periods that have an outcome.
type Settler interface {
	SettleDue(ctx context.Context, item *domain.WageringItem, now time.Time) ([]*domain.SettlementSummary, error)
}

// ──────────────────────────────────────────────────────────────────────────────
// Per-item state
// ──────────────────────────────────────────────────────────────────────────────

// State is where an item is in its per-tick cycle.
type State string

const (
	StateIdle       State = "idle"
	StateGenerating State = "generating"
	StateSettling   State = "settling"
)

// ItemStatus is the back-office view of one item's scheduler state.
type ItemStatus struct {
	ItemID         uuid.UUID      `json:"item_id"`
	Title          string         `json:"title"`
	State          State          `json:"state"`
	ConfigError    string         `json:"config_error,omitempty"`
	LastRunAt      *time.Time     `json:"last_run_at,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
	LastDrawn      *domain.Period `json:"last_drawn,omitempty"`
	LastSettled    *domain.Period `json:"last_settled,omitempty"`
	SkippedBusy    int            `json:"skipped_busy"`
	SettledPeriods int            `json:"settled_periods"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Scheduler
// ──────────────────────────────────────────────────────────────────────────────

// Scheduler drives the Idle → Generating → Settling → Idle cycle of every
// schedulable item. Call Start(ctx) once from main(); cancel the context to stop
// ticking and Wait for in-flight work.
type Scheduler struct {
	catalog  Catalog
	gen      Generator
	settler  Settler
	hub      WsHub
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tick     time.Duration
	sem      chan struct{}
	inflight sync.WaitGroup
	now      func() time.Time

	mu     sync.Mutex
	status map[uuid.UUID]*ItemStatus
	items  []*domain.WageringItem // last list read, for the countdown
}

// NewScheduler creates a Scheduler. hub may be nil.
func NewScheduler(
	catalog Catalog,
	gen Generator,
	settler Settler,
	hub WsHub,
	cfg *config.Config,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		catalog: catalog,
		gen:     gen,
		settler: settler,
		hub:     hub,
		metrics: m,
		logger:  logger,
		tick:    cfg.Scheduler.Tick,
		sem:     make(chan struct{}, cfg.Scheduler.Workers),
		now:     time.Now,
		status:  make(map[uuid.UUID]*ItemStatus),
	}
}

// SetClock replaces the wall clock, for tests.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// Start launches both loops. It returns immediately; the loops run until ctx
// is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.tickLoop(ctx)
	go s.countdownLoop(ctx)
	s.logger.Info("scheduler started", "tick", s.tick, "workers", cap(s.sem))
}

// Wait blocks until every dispatched unit of work has returned.
func (s *Scheduler) Wait() { s.inflight.Wait() }

// ──────────────────────────────────────────────────────────────────────────────
// tickLoop
// ──────────────────────────────────────────────────────────────────────────────

func (s *Scheduler) tickLoop(ctx context.Context) {
	defer s.recoverAndLog("tickLoop")

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("tickLoop: shutting down")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick re-reads the schedulable items and dispatches one unit of work per item.
// Items whose previous unit is still running are skipped. Tick returns once
// everything is dispatched; it does not wait for the work to finish.
func (s *Scheduler) Tick(ctx context.Context) {
	s.metrics.Tick()

	items, err := s.catalog.SchedulableItems(ctx)
	if err != nil {
		s.logger.Error("tick: list schedulable items", "err", err)
		return
	}
	s.mu.Lock()
	s.items = items
	s.mu.Unlock()

	now := s.now()
	for _, it := range items {
		if !s.acquire(it) {
			s.metrics.Skip("busy")
			s.logger.Debug("tick: item still in flight, skipped", "item", it.ID)
			continue
		}
		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			s.release(it.ID, nil)
			return
		}
		s.inflight.Add(1)
		go func(it *domain.WageringItem) {
			defer s.inflight.Done()
			defer func() { <-s.sem }()
			s.runItem(ctx, it, now)
		}(it)
	}
}

// runItem is one item's unit of work for a tick.
func (s *Scheduler) runItem(ctx context.Context, it *domain.WageringItem, now time.Time) {
	var runErr error
	defer func() {
		if r := recover(); r != nil {
			s.metrics.Panic()
			s.logger.Error("PANIC recovered in item unit of work", "item", it.ID, "panic", r)
			runErr = fmt.Errorf("panic: %v", r)
		}
		s.release(it.ID, runErr)
	}()

	if it.ConfigError != "" {
		s.metrics.Skip("invalid_config")
		return
	}
	if err := it.Validate(); err != nil {
		s.flag(ctx, it, err)
		runErr = err
		return
	}

	// ── Generating ────────────────────────────────────────────────────────────
	drawn, err := s.gen.Generate(ctx, it, now)
	for _, rec := range drawn {
		s.noteDrawn(it.ID, rec.Period)
		if s.hub != nil {
			s.hub.BroadcastOutcomeDrawn(ws.NewOutcomeDrawn(rec, it.PeriodDurationSeconds))
		}
	}
	if err != nil {
		if domain.IsInvalidConfig(err) {
			s.flag(ctx, it, err)
			runErr = err
			return
		}
		s.metrics.ItemError("generate")
		s.logger.Error("tick: generate failed", "item", it.ID, "err", err)
		runErr = err
		// Settlement of periods that already have a record can still proceed.
	}

	// ── Settling ──────────────────────────────────────────────────────────────
	s.setState(it.ID, StateSettling)
	settled, err := s.settler.SettleDue(ctx, it, now)
	for _, sum := range settled {
		s.noteSettled(it.ID, sum.Period)
		if s.hub != nil {
			s.hub.BroadcastPeriodSettled(ws.NewPeriodSettled(sum))
		}
	}
	if err != nil {
		s.metrics.ItemError("settle")
		s.logger.Error("tick: settle failed", "item", it.ID, "err", err)
		runErr = err
	}
}

// flag persists why the item cannot be processed. Flagged items are skipped
// without a log line on later ticks.
func (s *Scheduler) flag(ctx context.Context, it *domain.WageringItem, cause error) {
	s.metrics.Skip("invalid_config")
	s.logger.Warn("tick: item configuration invalid, skipped", "item", it.ID, "title", it.Title, "err", cause)
	if err := s.catalog.FlagInvalid(ctx, it.ID, cause.Error()); err != nil {
		s.logger.Error("tick: flag item", "item", it.ID, "err", err)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// State bookkeeping
// ──────────────────────────────────────────────────────────────────────────────

// acquire moves an idle item to Generating. It reports false when the item's
// previous unit of work has not finished.
func (s *Scheduler) acquire(it *domain.WageringItem) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[it.ID]
	if !ok {
		st = &ItemStatus{ItemID: it.ID, State: StateIdle}
		s.status[it.ID] = st
	}
	st.Title = it.Title
	st.ConfigError = it.ConfigError
	if st.State != StateIdle {
		st.SkippedBusy++
		return false
	}
	st.State = StateGenerating
	return true
}

func (s *Scheduler) release(id uuid.UUID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status[id]
	st.State = StateIdle
	at := s.now().UTC()
	st.LastRunAt = &at
	st.LastError = ""
	if err != nil {
		st.LastError = err.Error()
	}
}

func (s *Scheduler) setState(id uuid.UUID, state State) {
	s.mu.Lock()
	s.status[id].State = state
	s.mu.Unlock()
}

func (s *Scheduler) noteDrawn(id uuid.UUID, p domain.Period) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st := s.status[id]; st.LastDrawn == nil || p > *st.LastDrawn {
		st.LastDrawn = &p
	}
}

func (s *Scheduler) noteSettled(id uuid.UUID, p domain.Period) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status[id]
	st.SettledPeriods++
	if st.LastSettled == nil || p > *st.LastSettled {
		st.LastSettled = &p
	}
}

// Snapshot returns a copy of every item's scheduler state, ordered by title.
func (s *Scheduler) Snapshot() []ItemStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ItemStatus, 0, len(s.status))
	for _, st := range s.status {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ItemID.String() < out[j].ItemID.String()
	})
	return out
}

// ──────────────────────────────────────────────────────────────────────────────
// countdownLoop
// ──────────────────────────────────────────────────────────────────────────────

func (s *Scheduler) countdownLoop(ctx context.Context) {
	defer s.recoverAndLog("countdownLoop")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("countdownLoop: shutting down")
			return
		case <-ticker.C:
			s.broadcastCountdown()
		}
	}
}

// broadcastCountdown is the body of countdownLoop, extracted so that the
// recover in the loop catches panics correctly.
func (s *Scheduler) broadcastCountdown() {
	if s.hub == nil {
		return
	}
	s.mu.Lock()
	items := s.items
	s.mu.Unlock()

	now := s.now()
	infos := make([]domain.PeriodInfo, 0, len(items))
	for _, it := range items {
		if !it.Active || it.ConfigError != "" {
			continue
		}
		info, err := it.PeriodAt(now)
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}
	if len(infos) == 0 {
		return
	}
	s.hub.BroadcastPeriodTick(ws.PeriodTickMessage{
		Type:      ws.MsgTypePeriodTick,
		Items:     infos,
		Timestamp: now.UTC(),
	})
}

// recoverAndLog is deferred inside each loop goroutine to catch unexpected
// panics and log them.
func (s *Scheduler) recoverAndLog(loop string) {
	if r := recover(); r != nil {
		s.metrics.Panic()
		s.logger.Error("PANIC recovered in scheduler loop", "loop", loop, "panic", r)
	}
}
