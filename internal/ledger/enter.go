package ledger

import (
	"context"
	"fmt"
	"math"

	"github.com/bft-labs/dcaledger/internal/domain"
	"github.com/bft-labs/dcaledger/pkg/log"
)

// Enter creates an allocation selling amount at each of the next
// numExecutions executions. The full deposit, amount × numExecutions, is
// pulled from owner through the sell asset's allowance to the ledger account
// before anything is recorded.
func (l *Ledger) Enter(ctx context.Context, owner domain.Address, amount domain.Amount, numExecutions uint64) (domain.EnterEvent, domain.Changeset, error) {
	if err := l.lock(); err != nil {
		return domain.EnterEvent{}, domain.Changeset{}, err
	}
	defer l.unlock()

	ev, cs, err := l.enter(ctx, owner, amount, numExecutions)
	if err != nil {
		l.logger.Warn("enter rejected",
			log.Any("owner", owner),
			log.Stringer("amount", amount),
			log.Uint64("executions", numExecutions),
			log.Err(err),
		)
		return domain.EnterEvent{}, domain.Changeset{}, err
	}

	l.logger.Info("allocation entered",
		log.Uint64("id", ev.ID),
		log.Any("owner", ev.Owner),
		log.Stringer("amount", ev.Amount),
		log.Uint64("start_seq", ev.StartSeq),
		log.Uint64("end_seq", ev.EndSeq),
	)
	return ev, cs, nil
}

func (l *Ledger) enter(ctx context.Context, owner domain.Address, amount domain.Amount, n uint64) (domain.EnterEvent, domain.Changeset, error) {
	if amount.IsZero() {
		return domain.EnterEvent{}, domain.Changeset{}, domain.ErrAmountZero
	}
	if n == 0 {
		return domain.EnterEvent{}, domain.Changeset{}, domain.ErrCountZero
	}
	if owner.IsZero() {
		return domain.EnterEvent{}, domain.Changeset{}, domain.ErrInvalidOwner
	}

	deposit, err := amount.MulUint64(n)
	if err != nil {
		return domain.EnterEvent{}, domain.Changeset{}, fmt.Errorf("deposit: %w", err)
	}

	st := l.state
	if st.LastSeq == math.MaxUint64 || n-1 > math.MaxUint64-(st.LastSeq+1) {
		return domain.EnterEvent{}, domain.Changeset{}, fmt.Errorf("end sequence: %w", domain.ErrOverflow)
	}
	start := st.LastSeq + 1
	end := start + n - 1

	aggregate, err := st.AggregateAmount.Add(amount)
	if err != nil {
		return domain.EnterEvent{}, domain.Changeset{}, fmt.Errorf("aggregate: %w", err)
	}
	removal, err := st.ScheduledRemoval[end].Add(amount)
	if err != nil {
		return domain.EnterEvent{}, domain.Changeset{}, fmt.Errorf("scheduled removal: %w", err)
	}
	if st.NextAllocationID == math.MaxUint64 {
		return domain.EnterEvent{}, domain.Changeset{}, fmt.Errorf("allocation id: %w", domain.ErrOverflow)
	}

	if err := l.sell.TransferFrom(ctx, l.cfg.Account, owner, l.cfg.Account, deposit); err != nil {
		return domain.EnterEvent{}, domain.Changeset{}, fmt.Errorf("%w: %w", domain.ErrInsufficientDeposit, err)
	}

	alloc := domain.Allocation{
		ID:       st.NextAllocationID,
		Owner:    owner,
		Amount:   amount,
		StartSeq: start,
		EndSeq:   end,
	}
	ev := domain.EnterEvent{
		ID:       alloc.ID,
		Owner:    owner,
		Amount:   amount,
		StartSeq: start,
		EndSeq:   end,
	}

	meta := st.Meta
	meta.NextAllocationID++
	meta.AggregateAmount = aggregate

	journal := l.event(domain.EventEnter, meta.LastSeq)
	journal.Enter = &ev

	cs := domain.Changeset{
		Meta:              meta,
		Allocations:       []domain.Allocation{alloc},
		ScheduledRemovals: map[uint64]domain.Amount{end: removal},
		Events:            []domain.Event{journal},
	}
	if err := l.commit(ctx, cs); err != nil {
		return domain.EnterEvent{}, domain.Changeset{}, err
	}
	return ev, cs, nil
}
