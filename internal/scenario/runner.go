package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bft-labs/dcaledger/internal/adapters/clock"
	"github.com/bft-labs/dcaledger/internal/adapters/token"
	"github.com/bft-labs/dcaledger/internal/adapters/venue"
	"github.com/bft-labs/dcaledger/internal/domain"
	"github.com/bft-labs/dcaledger/internal/ledger"
	"github.com/bft-labs/dcaledger/pkg/log"
)

const venueReserve = "1000000000000"

// Result is the outcome of a scenario run.
type Result struct {
	Name string

	// Pass is false when a step failed unexpectedly or an expectation did
	// not hold.
	Pass bool

	Trace  []string
	Errors []string
}

// Bytes returns the trace, one line per entry.
func (r *Result) Bytes() []byte {
	return []byte(strings.Join(r.Trace, "\n") + "\n")
}

func (r *Result) add(format string, args ...any) {
	r.Trace = append(r.Trace, fmt.Sprintf(format, args...))
}

func (r *Result) fail(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

type runner struct {
	sc     *Scenario
	ctx    context.Context
	sell   *token.Token
	buy    *token.Token
	venue  *venue.FixedRate
	gate   *clock.ManualGate
	ledger *ledger.Ledger
	res    *Result
}

// Run executes sc against a fresh in-memory ledger. Ledger rejections are
// recorded in the trace; the returned error is reserved for scenarios that
// cannot be run at all, such as malformed amounts.
func Run(ctx context.Context, sc *Scenario, logger log.Logger) (*Result, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}

	r := &runner{
		sc:   sc,
		ctx:  ctx,
		sell: token.New(sc.SellSymbol, sc.SellSymbol, sc.Decimals),
		buy:  token.New(sc.BuySymbol, sc.BuySymbol, sc.Decimals),
		gate: clock.NewManualGate(0),
		res:  &Result{Name: sc.Name, Pass: true},
	}

	rate, _ := parseRate(sc.Rate)
	v, err := venue.NewFixedRate(venue.DefaultAddress, r.sell, r.buy, rate)
	if err != nil {
		return nil, err
	}
	r.venue = v
	if err := r.buy.Mint(ctx, v.Address(), domain.MustParseUnits(venueReserve, sc.Decimals)); err != nil {
		return nil, fmt.Errorf("fund venue: %w", err)
	}

	l, err := ledger.New(ledger.Config{Account: ledger.DefaultAccount, Decimals: sc.Decimals},
		r.sell, r.buy, v, r.gate, ledger.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	r.ledger = l

	r.res.add("scenario %s", sc.Name)
	r.res.add("rate=%s decimals=%d sell=%s buy=%s", rate, sc.Decimals, sc.SellSymbol, sc.BuySymbol)
	for _, p := range sc.Participants {
		amt, err := r.units(p.Mint)
		if err != nil {
			return nil, fmt.Errorf("participant %s: %w", p.Name, err)
		}
		if err := r.sell.Mint(ctx, domain.Address(p.Name), amt); err != nil {
			return nil, fmt.Errorf("participant %s: %w", p.Name, err)
		}
		r.res.add("mint %s %s %s", p.Name, r.format(amt), sc.SellSymbol)
	}

	for i, st := range sc.Steps {
		if err := r.step(i+1, st); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}

	r.summary()
	return r.res, nil
}

func (r *runner) step(n int, st Step) error {
	switch {
	case st.Enter != nil:
		return r.enter(n, *st.Enter)
	case st.Execute != nil:
		r.execute(n, *st.Execute)
	case st.Exit != nil:
		r.exit(n, *st.Exit)
	case st.Advance > 0:
		period := r.gate.Advance(st.Advance)
		r.res.add("[%d] advance %d -> period=%d", n, st.Advance, period)
	case st.Rate != "":
		rate, _ := parseRate(st.Rate)
		if err := r.venue.SetRate(rate); err != nil {
			return err
		}
		r.res.add("[%d] rate %s", n, rate)
	case st.Expect != nil:
		return r.expect(n, *st.Expect)
	}
	return nil
}

func (r *runner) enter(n int, st EnterStep) error {
	amount, err := r.units(st.Amount)
	if err != nil {
		return err
	}
	owner := domain.Address(st.Owner)
	account := r.ledger.Account()

	// Participants hand the deposit over in the same step.
	if deposit, err := amount.MulUint64(st.Executions); err == nil && !owner.IsZero() {
		if err := r.sell.Approve(r.ctx, owner, account, deposit); err != nil {
			return err
		}
	}

	ev, _, err := r.ledger.Enter(r.ctx, owner, amount, st.Executions)
	head := fmt.Sprintf("[%d] enter %s %s x%d", n, st.Owner, r.format(amount), st.Executions)
	if err != nil {
		if !owner.IsZero() {
			_ = r.sell.Approve(r.ctx, owner, account, domain.Amount{})
		}
		r.outcome(n, head, "enter", st.Error, err)
		return nil
	}
	r.res.add("%s -> id=%d seq=%d..%d", head, ev.ID, ev.StartSeq, ev.EndSeq)
	r.unexpectedSuccess(n, "enter", st.Error)
	return nil
}

func (r *runner) execute(n int, st ExecuteStep) {
	ev, _, err := r.ledger.Execute(r.ctx)
	head := fmt.Sprintf("[%d] execute", n)
	if err != nil {
		r.outcome(n, head, "execute", st.Error, err)
		return
	}
	r.res.add("%s -> seq=%d period=%d sold=%s bought=%s price=%s",
		head, ev.Seq, ev.Period, r.format(ev.Sold), r.format(ev.Bought),
		ev.Price.FormatUnits(domain.PriceDecimals))
	r.unexpectedSuccess(n, "execute", st.Error)
}

func (r *runner) exit(n int, st ExitStep) {
	ev, _, err := r.ledger.Exit(r.ctx, domain.Address(st.Owner), st.ID)
	head := fmt.Sprintf("[%d] exit %s id=%d", n, st.Owner, st.ID)
	if err != nil {
		r.outcome(n, head, "exit", st.Error, err)
		return
	}
	r.res.add("%s -> consumed=%d refunded=%s credited=%s",
		head, ev.ExecutionsConsumed, r.format(ev.Refunded), r.format(ev.Credited))
	r.unexpectedSuccess(n, "exit", st.Error)
}

// outcome records a rejected operation and checks it against the expected
// error code.
func (r *runner) outcome(n int, head, op, want string, err error) {
	code := ErrorCode(err)
	switch {
	case want == "":
		r.res.add("%s -> error=%s (unexpected)", head, code)
		r.res.fail("step %d: %s: %v", n, op, err)
	case want != code:
		r.res.add("%s -> error=%s (want %s)", head, code, want)
		r.res.fail("step %d: %s failed with %s, want %s", n, op, code, want)
	default:
		r.res.add("%s -> error=%s (expected)", head, code)
	}
}

func (r *runner) unexpectedSuccess(n int, op, want string) {
	if want != "" {
		r.res.fail("step %d: %s succeeded, want %s", n, op, want)
	}
}

func (r *runner) expect(n int, e Expect) error {
	var got []string
	ok := true

	check := func(label string, want *string, actual domain.Amount) error {
		if want == nil {
			return nil
		}
		w, err := r.units(*want)
		if err != nil {
			return err
		}
		got = append(got, label+"="+r.format(actual))
		if !w.Eq(actual) {
			ok = false
			r.res.fail("step %d: %s = %s, want %s", n, label, r.format(actual), r.format(w))
		}
		return nil
	}

	if e.Allocation != nil {
		id := *e.Allocation
		bought, err := r.ledger.BoughtBalance(id)
		if err != nil {
			return err
		}
		unsold, err := r.ledger.UnsoldBalance(id)
		if err != nil {
			return err
		}
		got = append(got, fmt.Sprintf("allocation %d", id))
		if err := check("bought", e.Bought, bought); err != nil {
			return err
		}
		if err := check("unsold", e.Unsold, unsold); err != nil {
			return err
		}
	}
	if e.Holder != "" {
		sell, buy := r.holdings(domain.Address(e.Holder))
		got = append(got, e.Holder)
		if err := check(r.sc.SellSymbol, e.Sell, sell); err != nil {
			return err
		}
		if err := check(r.sc.BuySymbol, e.Buy, buy); err != nil {
			return err
		}
	}
	if err := check("aggregate", e.Aggregate, r.ledger.AggregateAmount()); err != nil {
		return err
	}

	verdict := "ok"
	if !ok {
		verdict = "mismatch"
	}
	r.res.add("[%d] expect %s -> %s", n, strings.Join(got, " "), verdict)
	return nil
}

func (r *runner) summary() {
	snap := r.ledger.Snapshot()
	r.res.add("final seq=%d last_period=%d period=%d aggregate=%s allocations=%d",
		snap.LastSeq, snap.LastPeriod, r.gate.CurrentPeriod(),
		r.format(snap.AggregateAmount), len(snap.Allocations))

	holders := make([]domain.Address, 0, len(r.sc.Participants)+1)
	for _, p := range r.sc.Participants {
		holders = append(holders, domain.Address(p.Name))
	}
	holders = append(holders, r.ledger.Account())
	for _, h := range holders {
		sell, buy := r.holdings(h)
		r.res.add("holdings %s %s=%s %s=%s", h,
			r.sc.SellSymbol, r.format(sell), r.sc.BuySymbol, r.format(buy))
	}
}

func (r *runner) holdings(owner domain.Address) (sell, buy domain.Amount) {
	sell, _ = r.sell.BalanceOf(r.ctx, owner)
	buy, _ = r.buy.BalanceOf(r.ctx, owner)
	return sell, buy
}

func (r *runner) units(s string) (domain.Amount, error) {
	return domain.ParseUnits(s, r.sc.Decimals)
}

func (r *runner) format(a domain.Amount) string {
	return a.FormatUnits(r.sc.Decimals)
}

var errorCodes = []struct {
	err  error
	code string
}{
	{domain.ErrInsufficientDeposit, "insufficient_deposit"},
	{domain.ErrPayoutIncomplete, "payout_incomplete"},
	{domain.ErrConversionFailed, "conversion_failed"},
	{domain.ErrAmountZero, "amount_zero"},
	{domain.ErrCountZero, "count_zero"},
	{domain.ErrInvalidOwner, "invalid_owner"},
	{domain.ErrNotOwner, "not_owner"},
	{domain.ErrAlreadyRanThisPeriod, "already_ran_this_period"},
	{domain.ErrNothingToSell, "nothing_to_sell"},
	{domain.ErrInsufficientHoldings, "insufficient_holdings"},
	{domain.ErrReentrantCall, "reentrant_call"},
	{domain.ErrOverflow, "overflow"},
	{domain.ErrDivisionByZero, "division_by_zero"},
}

// ErrorCode returns the short code for a ledger error, or "error" when err
// matches none of the ledger's sentinels.
func ErrorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "error"
}
