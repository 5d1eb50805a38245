package domain_test

import (
	"testing"

	"github.com/evetabi/periodsettle/internal/domain"
	"github.com/shopspring/decimal"
)

func labelPtr(l domain.Label) *domain.Label { return &l }

func mustLabels(t *testing.T, s string) domain.LabelSet {
	t.Helper()
	ls, err := domain.ParseLabelSet(s)
	if err != nil {
		t.Fatal(err)
	}
	return ls
}

// TestComputeReward covers the payout rule. No I/O, pure arithmetic.
//
//	coefficients = {A:1.0, B:1.2, C:1.5, D:2.0}
//	wager {A,B} stake 10000, outcome A+B → 10000×1.0 + 10000×1.2 = 22000
//	wager {C}   stake 10000, outcome A+B → 0
func TestComputeReward(t *testing.T) {
	coef := fullCoefficients()
	ab := &domain.OutcomeRecord{Primary: domain.LabelA, Secondary: labelPtr(domain.LabelB)}

	cases := []struct {
		name    string
		labels  string
		stake   string
		outcome *domain.OutcomeRecord
		want    string
	}{
		{"both labels hit", "AB", "10000", ab, "22000"},
		{"no label hits", "C", "10000", ab, "0"},
		{"secondary only", "BD", "100", ab, "120"},
		{"primary only, no secondary", "AD", "50", &domain.OutcomeRecord{Primary: domain.LabelD}, "100"},
		{"primary equals secondary counts once", "D", "10",
			&domain.OutcomeRecord{Primary: domain.LabelD, Secondary: labelPtr(domain.LabelD)}, "20"},
		{"rounds down to 4 places", "B", "0.33333", ab, "0.3999"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := &domain.Wager{Labels: mustLabels(t, tc.labels), Stake: dec(tc.stake)}
			got := w.ComputeReward(tc.outcome, coef)
			if !got.Equal(dec(tc.want)) {
				t.Errorf("reward = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestOutcomeRecord_Winning(t *testing.T) {
	o := &domain.OutcomeRecord{Primary: domain.LabelC}
	if w := o.Winning(); len(w) != 1 || w[0] != domain.LabelC {
		t.Errorf("Winning() = %v", w)
	}
	o.Secondary = labelPtr(domain.LabelA)
	if !o.IsWinning(domain.LabelA) || o.IsWinning(domain.LabelB) {
		t.Error("IsWinning mismatch")
	}
}

func TestWager_ToResponse(t *testing.T) {
	w := &domain.Wager{Labels: mustLabels(t, "A"), Stake: decimal.NewFromInt(5)}
	if w.ToResponse().Settled {
		t.Error("fresh wager should not be settled")
	}
}
