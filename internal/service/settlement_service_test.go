package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/evetabi/periodsettle/internal/domain"
	"github.com/evetabi/periodsettle/internal/service"
	"github.com/google/uuid"
)

func newSettlement(store *memStore) *service.SettlementService {
	return service.NewSettlementService(store, store, nil, discardLogger())
}

func labelPtr(l domain.Label) *domain.Label { return &l }

// {A,B} stake 10000 against A+B pays 22000; {C} pays nothing.
func TestSettlePeriod_RewardCorrectness(t *testing.T) {
	store := newMemStore()
	item := store.addItem(60)
	winner := store.addWallet("0")
	loser := store.addWallet("0")
	wWin := store.addWager(item.ID, winner, 4, "AB", "10000")
	wLose := store.addWager(item.ID, loser, 4, "C", "10000")
	store.putOutcome(item.ID, 4, domain.LabelA, labelPtr(domain.LabelB))

	sum, err := newSettlement(store).SettlePeriod(context.Background(), item, 4)
	if err != nil {
		t.Fatal(err)
	}
	if sum == nil || sum.Wagers != 2 || sum.Winners != 1 || !sum.TotalReward.Equal(dec("22000")) {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if got := store.balance(winner); !got.Equal(dec("22000")) {
		t.Errorf("winner balance = %s, want 22000", got)
	}
	if got := store.balance(loser); !got.IsZero() {
		t.Errorf("loser balance = %s, want 0", got)
	}
	if w := store.wager(wWin.ID); w.SettledAt == nil || !w.Reward.Equal(dec("22000")) {
		t.Errorf("winning wager not stamped: %+v", w)
	}
	if w := store.wager(wLose.ID); w.SettledAt == nil || !w.Reward.IsZero() {
		t.Errorf("losing wager not stamped with zero reward: %+v", w)
	}
	if !store.outcome(item.ID, 4).Settled {
		t.Error("outcome not marked settled")
	}
	if store.credits() != 1 {
		t.Errorf("credits = %d, want 1", store.credits())
	}
}

func TestSettlePeriod_ExactlyOnceUnderRace(t *testing.T) {
	store := newMemStore()
	item := store.addItem(60)
	user := store.addWallet("0")
	store.addWager(item.ID, user, 2, "D", "10")
	store.putOutcome(item.ID, 2, domain.LabelD, nil)

	const n = 12
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		settled int
	)
	for i := 0; i < n; i++ {
		svc := newSettlement(store)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sum, err := svc.SettlePeriod(context.Background(), item, 2)
			if err != nil {
				t.Error(err)
				return
			}
			if sum != nil {
				mu.Lock()
				settled++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if settled != 1 {
		t.Errorf("settlements committed = %d, want 1", settled)
	}
	if got := store.balance(user); !got.Equal(dec("20")) {
		t.Errorf("balance = %s, want 20", got)
	}
	if store.credits() != 1 {
		t.Errorf("credits = %d, want 1", store.credits())
	}
}

func TestSettleDue_IdempotentRerun(t *testing.T) {
	store := newMemStore()
	item := store.addItem(60)
	user := store.addWallet("5")
	store.addWager(item.ID, user, 7, "BC", "100")
	store.putOutcome(item.ID, 7, domain.LabelC, nil)
	svc := newSettlement(store)
	ctx := context.Background()
	now := time.Unix(8*60+1, 0)

	first, err := svc.SettleDue(ctx, item, now)
	if err != nil || len(first) != 1 {
		t.Fatalf("first run = %v, %v", first, err)
	}
	second, err := svc.SettleDue(ctx, item, now.Add(time.Second))
	if err != nil || len(second) != 0 {
		t.Fatalf("second run = %v, %v; want nothing", second, err)
	}
	if got := store.balance(user); !got.Equal(dec("155")) {
		t.Errorf("balance = %s, want 155", got)
	}
}

// A failure halfway through a period leaves no trace; the retry pays once.
func TestSettlePeriod_CrashResume(t *testing.T) {
	store := newMemStore()
	item := store.addItem(60)
	u1 := store.addWallet("0")
	u2 := store.addWallet("0")
	store.addWager(item.ID, u1, 1, "A", "10")
	w2 := store.addWager(item.ID, u2, 1, "A", "20")
	store.putOutcome(item.ID, 1, domain.LabelA, nil)

	boom := errors.New("ledger unavailable")
	store.failCredit = func(id uuid.UUID) error {
		if id == w2.ID {
			return boom
		}
		return nil
	}

	svc := newSettlement(store)
	ctx := context.Background()
	if _, err := svc.SettlePeriod(ctx, item, 1); !errors.Is(err, boom) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	if !store.balance(u1).IsZero() || !store.balance(u2).IsZero() {
		t.Fatal("partial credit survived the rollback")
	}
	if store.outcome(item.ID, 1).Settled || store.credits() != 0 {
		t.Fatal("settlement state survived the rollback")
	}

	store.failCredit = nil
	sum, err := svc.SettlePeriod(ctx, item, 1)
	if err != nil || sum == nil {
		t.Fatalf("retry = %v, %v", sum, err)
	}
	if !store.balance(u1).Equal(dec("10")) || !store.balance(u2).Equal(dec("20")) {
		t.Errorf("balances after retry = %s, %s; want 10, 20", store.balance(u1), store.balance(u2))
	}
	if store.credits() != 2 {
		t.Errorf("credits = %d, want 2", store.credits())
	}
}

func TestSettleDue_LeavesOpenPeriodAlone(t *testing.T) {
	store := newMemStore()
	item := store.addItem(60)
	store.putOutcome(item.ID, 10, domain.LabelA, nil) // early override for the open period

	done, err := newSettlement(store).SettleDue(context.Background(), item, time.Unix(610, 0)) // current 10
	if err != nil {
		t.Fatal(err)
	}
	if len(done) != 0 || store.outcome(item.ID, 10).Settled {
		t.Error("open period must not be settled early")
	}
}

func TestSettlePeriod_NoWagersStillSettles(t *testing.T) {
	store := newMemStore()
	item := store.addItem(60)
	store.putOutcome(item.ID, 3, domain.LabelB, nil)

	sum, err := newSettlement(store).SettlePeriod(context.Background(), item, 3)
	if err != nil || sum == nil || sum.Wagers != 0 {
		t.Fatalf("SettlePeriod = %+v, %v", sum, err)
	}
	if !store.outcome(item.ID, 3).Settled {
		t.Error("empty period should still be marked settled")
	}
}

// D=120: wager during period 0, draw at t=121, settle, paid exactly once.
func TestEndToEnd_PeriodLifecycle(t *testing.T) {
	store := newMemStore()
	item := store.addItem(120)
	user := store.addWallet("1000")
	ctx := context.Background()
	cfg := testConfig()

	clock := time.Unix(10, 0)
	wagers := service.NewWagerService(store, store, store, cfg, nil, discardLogger())
	wagers.SetClock(func() time.Time { return clock })

	labels, _ := domain.ParseLabelSet("AB")
	w, err := wagers.PlaceWager(ctx, domain.PlaceWagerRequest{
		UserID: user, ItemID: item.ID, Period: 0, Labels: labels, Stake: dec("100"),
	})
	if err != nil {
		t.Fatalf("PlaceWager: %v", err)
	}
	if got := store.balance(user); !got.Equal(dec("900")) {
		t.Fatalf("balance after stake = %s, want 900", got)
	}

	clock = time.Unix(121, 0)
	gen := newGenerator(store)
	gen.SetPicker(fixedPick(1)) // B
	if _, err := gen.Generate(ctx, item, clock); err != nil {
		t.Fatal(err)
	}
	rec := store.outcome(item.ID, 0)
	if rec == nil || rec.Primary != domain.LabelB {
		t.Fatalf("period 0 not drawn as B: %+v", rec)
	}

	settle := newSettlement(store)
	for i := 0; i < 3; i++ {
		if _, err := settle.SettleDue(ctx, item, clock.Add(time.Duration(i)*2*time.Second)); err != nil {
			t.Fatal(err)
		}
	}
	// 900 + 100 × 1.2
	if got := store.balance(user); !got.Equal(dec("1020")) {
		t.Errorf("final balance = %s, want 1020", got)
	}
	if sw := store.wager(w.ID); sw.SettledAt == nil || !sw.Reward.Equal(dec("120")) {
		t.Errorf("wager settlement columns = %+v", sw)
	}
	if store.credits() != 1 {
		t.Errorf("credits = %d, want 1", store.credits())
	}
}
