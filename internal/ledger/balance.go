package ledger

import (
	"fmt"

	"github.com/bft-labs/dcaledger/internal/domain"
)

// BoughtBalance returns the buy-asset amount accrued by allocation id:
// Amount × (CumulativePrice[eff] − CumulativePrice[StartSeq−1]) / 1e18 where
// eff = min(EndSeq, LastSeq). Unknown or exited ids return 0.
func (l *Ledger) BoughtBalance(id uint64) (domain.Amount, error) {
	return boughtBalance(l.state, l.state.Allocations[id])
}

// UnsoldBalance returns the sell-asset amount of allocation id not yet
// converted: Amount × (EndSeq − eff). Unknown or exited ids return 0.
func (l *Ledger) UnsoldBalance(id uint64) (domain.Amount, error) {
	return unsoldBalance(l.state, l.state.Allocations[id])
}

func boughtBalance(st domain.Snapshot, a domain.Allocation) (domain.Amount, error) {
	if a.IsZero() {
		return domain.Amount{}, nil
	}
	eff := a.Effective(st.LastSeq)
	if eff < a.StartSeq {
		return domain.Amount{}, nil
	}
	delta, err := st.CumulativePrice[eff].Sub(st.CumulativePrice[a.StartSeq-1])
	if err != nil {
		return domain.Amount{}, fmt.Errorf("allocation %d price delta: %w", a.ID, err)
	}
	bought, err := a.Amount.MulDiv(delta, domain.PriceScale)
	if err != nil {
		return domain.Amount{}, fmt.Errorf("allocation %d bought: %w", a.ID, err)
	}
	return bought, nil
}

func unsoldBalance(st domain.Snapshot, a domain.Allocation) (domain.Amount, error) {
	if a.IsZero() {
		return domain.Amount{}, nil
	}
	unsold, err := a.Amount.MulUint64(a.Pending(st.LastSeq))
	if err != nil {
		return domain.Amount{}, fmt.Errorf("allocation %d unsold: %w", a.ID, err)
	}
	return unsold, nil
}
