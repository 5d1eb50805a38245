package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/evetabi/periodsettle/internal/config"
	"github.com/evetabi/periodsettle/internal/domain"
	"github.com/evetabi/periodsettle/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memStore is an in-memory stand-in for the PostgreSQL repositories. A single
// mutex plays the role of the database: InTx holds it for the whole callback
// and restores a snapshot on error, so transactions are serialisable and
// atomic.
type memStore struct {
	mu       sync.Mutex
	items    map[uuid.UUID]*domain.WageringItem
	outcomes map[outcomeKey]*domain.OutcomeRecord
	wagers   []*domain.Wager
	wallets  map[uuid.UUID]*domain.Wallet // by user id
	txns     []*domain.Transaction

	// failCredit, when set, is consulted before every credit.
	failCredit func(wagerID uuid.UUID) error
	// getHook runs (without the lock) at the start of Get, to widen races.
	getHook func()
}

type outcomeKey struct {
	item   uuid.UUID
	period domain.Period
}

func newMemStore() *memStore {
	return &memStore{
		items:    make(map[uuid.UUID]*domain.WageringItem),
		outcomes: make(map[outcomeKey]*domain.OutcomeRecord),
		wallets:  make(map[uuid.UUID]*domain.Wallet),
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Scheduler: config.SchedulerConfig{
			Tick:             time.Second,
			Workers:          4,
			MinPeriodSeconds: 30,
			CatchupLimit:     32,
		},
		Wager: config.WagerConfig{
			MinStake: decimal.NewFromInt(1),
			Cutoff:   5 * time.Second,
		},
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func coefficients() domain.Coefficients {
	return domain.Coefficients{
		domain.LabelA: dec("1.0"),
		domain.LabelB: dec("1.2"),
		domain.LabelC: dec("1.5"),
		domain.LabelD: dec("2.0"),
	}
}

// ── seeding helpers ──────────────────────────────────────────────────────────

func (m *memStore) addItem(d int64) *domain.WageringItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := &domain.WageringItem{
		ID:                    uuid.New(),
		Title:                 "item",
		Coefficients:          coefficients(),
		PeriodDurationSeconds: d,
		Active:                true,
	}
	m.items[it.ID] = it
	cp := *it
	return &cp
}

// item returns the stored copy, with any watermark the generator wrote.
func (m *memStore) item(id uuid.UUID) *domain.WageringItem {
	it, err := m.GetByID(context.Background(), id)
	if err != nil {
		panic(err)
	}
	return it
}

func (m *memStore) setCreatedAt(id uuid.UUID, at time.Time) *domain.WageringItem {
	m.mu.Lock()
	m.items[id].CreatedAt = at
	m.mu.Unlock()
	return m.item(id)
}

func (m *memStore) addWallet(balance string) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	user := uuid.New()
	m.wallets[user] = &domain.Wallet{ID: uuid.New(), UserID: user, Balance: dec(balance)}
	return user
}

func (m *memStore) addWager(item uuid.UUID, user uuid.UUID, p domain.Period, labels string, stake string) *domain.Wager {
	m.mu.Lock()
	defer m.mu.Unlock()
	ls, err := domain.ParseLabelSet(labels)
	if err != nil {
		panic(err)
	}
	w := &domain.Wager{ID: uuid.New(), UserID: user, ItemID: item, Period: p, Labels: ls, Stake: dec(stake)}
	m.wagers = append(m.wagers, w)
	cp := *w
	return &cp
}

func (m *memStore) putOutcome(item uuid.UUID, p domain.Period, primary domain.Label, secondary *domain.Label) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[outcomeKey{item, p}] = &domain.OutcomeRecord{
		ID: uuid.New(), ItemID: item, Period: p, Primary: primary, Secondary: secondary, Source: domain.SourceDraw,
	}
}

func (m *memStore) balance(user uuid.UUID) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wallets[user].Balance
}

func (m *memStore) outcome(item uuid.UUID, p domain.Period) *domain.OutcomeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.outcomes[outcomeKey{item, p}]
	if !ok {
		return nil
	}
	cp := *o
	return &cp
}

func (m *memStore) wager(id uuid.UUID) *domain.Wager {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.wagers {
		if w.ID == id {
			cp := *w
			return &cp
		}
	}
	return nil
}

func (m *memStore) credits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.txns {
		if t.Type == domain.TxCredit {
			n++
		}
	}
	return n
}

func (m *memStore) outcomeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.outcomes)
}

// ── ItemWriter ───────────────────────────────────────────────────────────────

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*domain.WageringItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	cp := *it
	return &cp, nil
}

func (m *memStore) ListActive(_ context.Context) ([]*domain.WageringItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.WageringItem
	for _, it := range m.items {
		if it.Active {
			cp := *it
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (m *memStore) ListSchedulable(_ context.Context) ([]*domain.WageringItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pending := map[uuid.UUID]bool{}
	for k, o := range m.outcomes {
		if !o.Settled {
			pending[k.item] = true
		}
	}
	for _, w := range m.wagers {
		if w.SettledAt == nil {
			pending[w.ItemID] = true
		}
	}
	var out []*domain.WageringItem
	for _, it := range m.items {
		if it.Active || pending[it.ID] {
			cp := *it
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (m *memStore) FlagInvalid(_ context.Context, id uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it, ok := m.items[id]; ok {
		it.ConfigError = reason
	}
	return nil
}

func (m *memStore) Create(_ context.Context, it *domain.WageringItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *it
	m.items[it.ID] = &cp
	return nil
}

func (m *memStore) Update(_ context.Context, it *domain.WageringItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[it.ID]; !ok {
		return domain.ErrItemNotFound
	}
	cp := *it
	cp.ConfigError = ""
	m.items[it.ID] = &cp
	return nil
}

func (m *memStore) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return domain.ErrItemNotFound
	}
	it.Active = active
	return nil
}

func (m *memStore) List(_ context.Context, limit, offset int) ([]*domain.WageringItem, int, error) {
	all, _ := m.ListActive(context.Background())
	return page(all, limit, offset), len(all), nil
}

func page[T any](all []T, limit, offset int) []T {
	if offset >= len(all) {
		return nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}

// ── OutcomeStore ─────────────────────────────────────────────────────────────

func (m *memStore) InsertIfAbsent(_ context.Context, o *domain.OutcomeRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := outcomeKey{o.ItemID, o.Period}
	if _, ok := m.outcomes[k]; ok {
		return false, nil
	}
	cp := *o
	m.outcomes[k] = &cp
	return true, nil
}

func (m *memStore) Get(_ context.Context, itemID uuid.UUID, p domain.Period) (*domain.OutcomeRecord, error) {
	if m.getHook != nil {
		m.getHook()
	}
	if o := m.outcome(itemID, p); o != nil {
		return o, nil
	}
	return nil, domain.ErrOutcomeNotFound
}

func (m *memStore) Override(_ context.Context, req *domain.OverrideRequest, now time.Time) (*domain.OutcomeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := outcomeKey{req.ItemID, req.Period}
	editor := req.Editor
	o, ok := m.outcomes[k]
	if ok && o.Settled {
		return nil, domain.ErrOutcomeAlreadySettled
	}
	if !ok {
		o = &domain.OutcomeRecord{ID: uuid.New(), ItemID: req.ItemID, Period: req.Period, CreatedAt: now}
		m.outcomes[k] = o
	}
	o.Primary = req.Primary
	o.Secondary = req.Secondary
	o.Source = domain.SourceOverride
	o.Editor = &editor
	o.UpdatedAt = now
	cp := *o
	return &cp, nil
}

func (m *memStore) UnsettledBefore(_ context.Context, itemID uuid.UUID, before domain.Period, limit int) ([]*domain.OutcomeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.OutcomeRecord
	for k, o := range m.outcomes {
		if k.item == itemID && !o.Settled && k.period < before {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return page(out, limit, 0), nil
}

func (m *memStore) History(_ context.Context, itemID uuid.UUID, settledOnly bool, limit, offset int) ([]*domain.OutcomeRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.OutcomeRecord
	for k, o := range m.outcomes {
		if k.item == itemID && (!settledOnly || o.Settled) {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period > out[j].Period })
	return page(out, limit, offset), len(out), nil
}

func (m *memStore) AdvanceDrawnThrough(_ context.Context, itemID uuid.UUID, p domain.Period) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[itemID]
	if !ok {
		return domain.ErrItemNotFound
	}
	if it.DrawnThrough == nil || *it.DrawnThrough < p {
		through := p
		it.DrawnThrough = &through
	}
	return nil
}

// ── WagerLookup / WalletReader ───────────────────────────────────────────────

func (m *memStore) PeriodsMissingOutcome(_ context.Context, itemID uuid.UUID, before domain.Period, limit int) ([]domain.Period, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[domain.Period]bool{}
	var out []domain.Period
	for _, w := range m.wagers {
		if w.ItemID != itemID || w.Period >= before || seen[w.Period] {
			continue
		}
		if _, ok := m.outcomes[outcomeKey{itemID, w.Period}]; ok {
			continue
		}
		seen[w.Period] = true
		out = append(out, w.Period)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return page(out, limit, 0), nil
}

func (m *memStore) ListByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Wager, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Wager
	for i := len(m.wagers) - 1; i >= 0; i-- {
		if m.wagers[i].UserID == userID {
			cp := *m.wagers[i]
			out = append(out, &cp)
		}
	}
	return page(out, limit, offset), nil
}

func (m *memStore) GetByUserID(_ context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[userID]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *memStore) GetTransactions(_ context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[userID]
	if !ok {
		return nil, nil
	}
	var out []*domain.Transaction
	for _, t := range m.txns {
		if t.WalletID == w.ID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return page(out, limit, offset), nil
}

// ── Transactor ───────────────────────────────────────────────────────────────

type snapshot struct {
	outcomes map[outcomeKey]domain.OutcomeRecord
	wagers   []domain.Wager
	wallets  map[uuid.UUID]domain.Wallet
	txns     int
}

func (m *memStore) snapshot() snapshot {
	s := snapshot{
		outcomes: make(map[outcomeKey]domain.OutcomeRecord, len(m.outcomes)),
		wallets:  make(map[uuid.UUID]domain.Wallet, len(m.wallets)),
		txns:     len(m.txns),
	}
	for k, o := range m.outcomes {
		s.outcomes[k] = *o
	}
	for _, w := range m.wagers {
		s.wagers = append(s.wagers, *w)
	}
	for k, w := range m.wallets {
		s.wallets[k] = *w
	}
	return s
}

func (m *memStore) restore(s snapshot) {
	m.outcomes = make(map[outcomeKey]*domain.OutcomeRecord, len(s.outcomes))
	for k, o := range s.outcomes {
		o := o
		m.outcomes[k] = &o
	}
	m.wagers = m.wagers[:0]
	for _, w := range s.wagers {
		w := w
		m.wagers = append(m.wagers, &w)
	}
	m.wallets = make(map[uuid.UUID]*domain.Wallet, len(s.wallets))
	for k, w := range s.wallets {
		w := w
		m.wallets[k] = &w
	}
	m.txns = m.txns[:s.txns]
}

func (m *memStore) InTx(_ context.Context, fn func(uow repository.UnitOfWork) error) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshot()
	defer func() {
		if p := recover(); p != nil {
			m.restore(snap)
			panic(p)
		}
		if err != nil {
			m.restore(snap)
		}
	}()
	return fn(&memUnit{m: m})
}

// memUnit runs with memStore.mu already held.
type memUnit struct{ m *memStore }

func (u *memUnit) ClaimOutcome(_ context.Context, itemID uuid.UUID, p domain.Period) (*domain.OutcomeRecord, error) {
	o, ok := u.m.outcomes[outcomeKey{itemID, p}]
	if !ok || o.Settled {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (u *memUnit) WagersForPeriod(_ context.Context, itemID uuid.UUID, p domain.Period) ([]*domain.Wager, error) {
	var out []*domain.Wager
	for _, w := range u.m.wagers {
		if w.ItemID == itemID && w.Period == p {
			cp := *w
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (u *memUnit) MarkWagerSettled(_ context.Context, wagerID uuid.UUID, reward decimal.Decimal, at time.Time) error {
	for _, w := range u.m.wagers {
		if w.ID == wagerID {
			if w.SettledAt != nil {
				return domain.ErrOutcomeAlreadySettled
			}
			r := reward
			ts := at
			w.Reward = &r
			w.SettledAt = &ts
			return nil
		}
	}
	return errors.New("wager not found")
}

func (u *memUnit) MarkOutcomeSettled(_ context.Context, outcomeID uuid.UUID, at time.Time) error {
	for _, o := range u.m.outcomes {
		if o.ID == outcomeID {
			if o.Settled {
				return domain.ErrOutcomeAlreadySettled
			}
			ts := at
			o.Settled = true
			o.SettledAt = &ts
			return nil
		}
	}
	return domain.ErrOutcomeNotFound
}

// The store mutex already serialises transactions, so the item lock is a no-op.
func (u *memUnit) LockItemForSettlement(context.Context, uuid.UUID) error { return nil }

func (u *memUnit) GuardOpenPeriod(_ context.Context, itemID uuid.UUID, p domain.Period) error {
	if o, ok := u.m.outcomes[outcomeKey{itemID, p}]; ok && o.Settled {
		return domain.ErrPeriodClosed
	}
	return nil
}

func (u *memUnit) CreateWager(_ context.Context, w *domain.Wager) error {
	cp := *w
	u.m.wagers = append(u.m.wagers, &cp)
	return nil
}

func (u *memUnit) Credit(_ context.Context, userID uuid.UUID, amount decimal.Decimal, tag domain.LedgerTag) (decimal.Decimal, error) {
	if u.m.failCredit != nil {
		if err := u.m.failCredit(tag.WagerID); err != nil {
			return decimal.Zero, err
		}
	}
	for _, t := range u.m.txns {
		if t.Type == domain.TxCredit && t.RefID != nil && *t.RefID == tag.WagerID {
			return decimal.Zero, domain.ErrDuplicateCredit
		}
	}
	return u.move(userID, amount, domain.TxCredit, tag)
}

func (u *memUnit) Debit(_ context.Context, userID uuid.UUID, amount decimal.Decimal, tag domain.LedgerTag) (decimal.Decimal, error) {
	return u.move(userID, amount, domain.TxDebit, tag)
}

func (u *memUnit) move(userID uuid.UUID, amount decimal.Decimal, kind domain.TxType, tag domain.LedgerTag) (decimal.Decimal, error) {
	w, ok := u.m.wallets[userID]
	if !ok {
		return decimal.Zero, domain.ErrWalletNotFound
	}
	before := w.Balance
	after := before.Add(amount)
	if kind == domain.TxDebit {
		if before.LessThan(amount) {
			return decimal.Zero, domain.ErrInsufficientBalance
		}
		after = before.Sub(amount)
	}
	w.Balance = after
	ref := tag.WagerID
	u.m.txns = append(u.m.txns, &domain.Transaction{
		ID: uuid.New(), WalletID: w.ID, Type: kind, Amount: amount,
		BalanceBefore: before, BalanceAfter: after, RefID: &ref,
		Description: tag.Description(kind), Status: domain.TxStatusCompleted,
	})
	return after, nil
}
