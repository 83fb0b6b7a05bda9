package ledger

import (
	"context"
	"fmt"

	"github.com/bft-labs/dcaledger/internal/domain"
	"github.com/bft-labs/dcaledger/pkg/log"
)

// Exit retires allocation id on behalf of caller, paying out its unsold
// sell-asset amount and its bought buy-asset amount. If the allocation is
// still active its remaining installments are withdrawn from the pool.
//
// If the refund is paid but the credit fails, Exit commits a residual
// allocation that owes only the credit and returns the committed changeset
// together with an error wrapping domain.ErrPayoutIncomplete. A later Exit
// pays the credit and retires it.
func (l *Ledger) Exit(ctx context.Context, caller domain.Address, id uint64) (domain.ExitEvent, domain.Changeset, error) {
	if err := l.lock(); err != nil {
		return domain.ExitEvent{}, domain.Changeset{}, err
	}
	defer l.unlock()

	ev, cs, err := l.exit(ctx, caller, id)
	if err != nil {
		l.logger.Warn("exit rejected",
			log.Uint64("id", id),
			log.Any("caller", caller),
			log.Bool("committed", !cs.Empty()),
			log.Err(err),
		)
		return ev, cs, err
	}

	l.logger.Info("allocation exited",
		log.Uint64("id", ev.ID),
		log.Any("owner", ev.Owner),
		log.Uint64("executions_consumed", ev.ExecutionsConsumed),
		log.Stringer("refunded", ev.Refunded),
		log.Stringer("credited", ev.Credited),
	)
	return ev, cs, nil
}

func (l *Ledger) exit(ctx context.Context, caller domain.Address, id uint64) (domain.ExitEvent, domain.Changeset, error) {
	st := l.state

	a, ok := st.Allocations[id]
	if !ok || caller.IsZero() || a.Owner != caller {
		return domain.ExitEvent{}, domain.Changeset{}, domain.ErrNotOwner
	}

	unsold, err := unsoldBalance(st, a)
	if err != nil {
		return domain.ExitEvent{}, domain.Changeset{}, err
	}
	bought, err := boughtBalance(st, a)
	if err != nil {
		return domain.ExitEvent{}, domain.Changeset{}, err
	}

	meta := st.Meta
	cs := domain.Changeset{DeletedAllocations: []uint64{id}}
	if st.LastSeq < a.EndSeq {
		aggregate, err := st.AggregateAmount.Sub(a.Amount)
		if err != nil {
			return domain.ExitEvent{}, domain.Changeset{}, fmt.Errorf("aggregate: %w", err)
		}
		removal, err := st.ScheduledRemoval[a.EndSeq].Sub(a.Amount)
		if err != nil {
			return domain.ExitEvent{}, domain.Changeset{}, fmt.Errorf("scheduled removal: %w", err)
		}
		meta.AggregateAmount = aggregate
		cs.ScheduledRemovals = map[uint64]domain.Amount{a.EndSeq: removal}
	}

	if err := l.ensureHoldings(ctx, unsold, bought); err != nil {
		return domain.ExitEvent{}, domain.Changeset{}, err
	}
	if !unsold.IsZero() {
		if err := l.sell.Transfer(ctx, l.cfg.Account, a.Owner, unsold); err != nil {
			return domain.ExitEvent{}, domain.Changeset{}, fmt.Errorf("refund %s: %w", l.sell.Symbol(), err)
		}
	}
	if !bought.IsZero() {
		if err := l.buy.Transfer(ctx, l.cfg.Account, a.Owner, bought); err != nil {
			err = fmt.Errorf("credit %s: %w", l.buy.Symbol(), err)
			if unsold.IsZero() {
				return domain.ExitEvent{}, domain.Changeset{}, err
			}
			return l.commitRefundOnly(ctx, a, meta, cs.ScheduledRemovals, unsold, err)
		}
	}

	ev := domain.ExitEvent{
		ID:                 id,
		Owner:              a.Owner,
		ExecutionsConsumed: a.Consumed(st.LastSeq),
		Refunded:           unsold,
		Credited:           bought,
	}
	journal := l.event(domain.EventExit, meta.LastSeq)
	journal.Exit = &ev

	cs.Meta = meta
	cs.Events = []domain.Event{journal}
	if err := l.commit(ctx, cs); err != nil {
		return domain.ExitEvent{}, domain.Changeset{}, err
	}
	return ev, cs, nil
}

// commitRefundOnly records an exit whose refund went out but whose credit
// did not. The allocation stays, ended at LastSeq, so it has nothing left
// to refund and still accrues its bought amount.
func (l *Ledger) commitRefundOnly(ctx context.Context, a domain.Allocation, meta domain.Meta, removals map[uint64]domain.Amount, refunded domain.Amount, cause error) (domain.ExitEvent, domain.Changeset, error) {
	st := l.state
	residual := a
	residual.EndSeq = st.LastSeq

	ev := domain.ExitEvent{
		ID:                 a.ID,
		Owner:              a.Owner,
		ExecutionsConsumed: a.Consumed(st.LastSeq),
		Refunded:           refunded,
		CreditPending:      true,
	}
	journal := l.event(domain.EventExit, meta.LastSeq)
	journal.Exit = &ev

	cs := domain.Changeset{
		Meta:              meta,
		Allocations:       []domain.Allocation{residual},
		ScheduledRemovals: removals,
		Events:            []domain.Event{journal},
	}
	if err := l.commit(ctx, cs); err != nil {
		return domain.ExitEvent{}, domain.Changeset{}, fmt.Errorf("%w; record refund: %w", cause, err)
	}
	return ev, cs, fmt.Errorf("%w: %w", domain.ErrPayoutIncomplete, cause)
}

// ensureHoldings checks that the ledger account can pay both amounts.
func (l *Ledger) ensureHoldings(ctx context.Context, unsold, bought domain.Amount) error {
	if !unsold.IsZero() {
		bal, err := l.sell.BalanceOf(ctx, l.cfg.Account)
		if err != nil {
			return fmt.Errorf("%s balance: %w", l.sell.Symbol(), err)
		}
		if bal.Lt(unsold) {
			return fmt.Errorf("%s holds %s, owes %s: %w", l.sell.Symbol(), bal, unsold, domain.ErrInsufficientHoldings)
		}
	}
	if !bought.IsZero() {
		bal, err := l.buy.BalanceOf(ctx, l.cfg.Account)
		if err != nil {
			return fmt.Errorf("%s balance: %w", l.buy.Symbol(), err)
		}
		if bal.Lt(bought) {
			return fmt.Errorf("%s holds %s, owes %s: %w", l.buy.Symbol(), bal, bought, domain.ErrInsufficientHoldings)
		}
	}
	return nil
}
