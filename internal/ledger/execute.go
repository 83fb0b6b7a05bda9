package ledger

import (
	"context"
	"fmt"
	"math"

	"github.com/bft-labs/dcaledger/internal/domain"
	"github.com/bft-labs/dcaledger/internal/ports"
	"github.com/bft-labs/dcaledger/pkg/log"
)

// Execute sells the pooled installment of all active allocations in one
// swap and records the resulting price point. It may run at most once per
// gate period; executions skipped during idle periods are not replayed.
func (l *Ledger) Execute(ctx context.Context) (domain.ExecuteEvent, domain.Changeset, error) {
	if err := l.lock(); err != nil {
		return domain.ExecuteEvent{}, domain.Changeset{}, err
	}
	defer l.unlock()

	ev, cs, err := l.execute(ctx)
	if err != nil {
		l.logger.Warn("execute rejected",
			log.Uint64("last_seq", l.state.LastSeq),
			log.Uint64("last_period", l.state.LastPeriod),
			log.Stringer("aggregate", l.state.AggregateAmount),
			log.Err(err),
		)
		return domain.ExecuteEvent{}, domain.Changeset{}, err
	}

	l.logger.Info("installment executed",
		log.Uint64("seq", ev.Seq),
		log.Uint64("period", ev.Period),
		log.Stringer("sold", ev.Sold),
		log.Stringer("bought", ev.Bought),
		log.Stringer("price", ev.Price),
	)
	return ev, cs, nil
}

func (l *Ledger) execute(ctx context.Context) (domain.ExecuteEvent, domain.Changeset, error) {
	st := l.state

	period := l.gate.CurrentPeriod()
	if period <= st.LastPeriod {
		return domain.ExecuteEvent{}, domain.Changeset{}, domain.ErrAlreadyRanThisPeriod
	}
	if st.AggregateAmount.IsZero() {
		return domain.ExecuteEvent{}, domain.Changeset{}, domain.ErrNothingToSell
	}
	if st.LastSeq == math.MaxUint64 {
		return domain.ExecuteEvent{}, domain.Changeset{}, fmt.Errorf("sequence: %w", domain.ErrOverflow)
	}

	sold := st.AggregateAmount
	if err := l.sell.Approve(ctx, l.cfg.Account, l.venue.Address(), sold); err != nil {
		return domain.ExecuteEvent{}, domain.Changeset{}, fmt.Errorf("%w: approve venue: %w", domain.ErrConversionFailed, err)
	}
	bought, err := l.venue.Swap(ctx, ports.SwapRequest{
		Account: l.cfg.Account,
		Sell:    l.sell,
		Buy:     l.buy,
		Amount:  sold,
	})
	if err != nil {
		if rerr := l.sell.Approve(ctx, l.cfg.Account, l.venue.Address(), domain.Amount{}); rerr != nil {
			l.logger.Error("reset venue allowance failed", log.Err(rerr))
		}
		return domain.ExecuteEvent{}, domain.Changeset{}, fmt.Errorf("%w: %w", domain.ErrConversionFailed, err)
	}

	price, err := bought.MulDiv(domain.PriceScale, sold)
	if err != nil {
		return domain.ExecuteEvent{}, domain.Changeset{}, fmt.Errorf("price: %w", err)
	}
	seq := st.LastSeq + 1
	cumulative, err := st.CumulativePrice[st.LastSeq].Add(price)
	if err != nil {
		return domain.ExecuteEvent{}, domain.Changeset{}, fmt.Errorf("cumulative price: %w", err)
	}
	aggregate, err := sold.Sub(st.ScheduledRemoval[seq])
	if err != nil {
		return domain.ExecuteEvent{}, domain.Changeset{}, fmt.Errorf("aggregate: %w", err)
	}

	ev := domain.ExecuteEvent{
		Seq:    seq,
		Period: period,
		Sold:   sold,
		Bought: bought,
		Price:  price,
	}

	meta := st.Meta
	meta.LastSeq = seq
	meta.LastPeriod = period
	meta.AggregateAmount = aggregate

	journal := l.event(domain.EventExecute, seq)
	journal.Execute = &ev

	cs := domain.Changeset{
		Meta:             meta,
		CumulativePrices: map[uint64]domain.Amount{seq: cumulative},
		Events:           []domain.Event{journal},
	}
	if err := l.commit(ctx, cs); err != nil {
		return domain.ExecuteEvent{}, domain.Changeset{}, err
	}
	return ev, cs, nil
}
