package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/bft-labs/dcaledger/internal/domain"
)

// Apply writes one committed changeset in a single transaction.
func (s *Store) Apply(ctx context.Context, cs domain.Changeset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("apply changeset: begin: %w", err)
	}
	defer tx.Rollback()

	if err := writeMeta(ctx, tx, cs.Meta); err != nil {
		return fmt.Errorf("apply changeset: %w", err)
	}
	if err := ensureGenesisPrice(ctx, tx); err != nil {
		return fmt.Errorf("apply changeset: %w", err)
	}
	for _, a := range cs.Allocations {
		if err := writeAllocation(ctx, tx, a); err != nil {
			return fmt.Errorf("apply changeset: %w", err)
		}
	}
	for _, id := range cs.DeletedAllocations {
		if _, err := tx.ExecContext(ctx, `DELETE FROM allocations WHERE id = ?`, int64(id)); err != nil {
			return fmt.Errorf("apply changeset: delete allocation %d: %w", id, err)
		}
	}
	for seq, amt := range cs.ScheduledRemovals {
		if err := writeRemoval(ctx, tx, seq, amt); err != nil {
			return fmt.Errorf("apply changeset: %w", err)
		}
	}
	for seq, price := range cs.CumulativePrices {
		if err := checkInt64(seq); err != nil {
			return fmt.Errorf("apply changeset: cumulative price: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cumulative_prices (seq, price) VALUES (?, ?)
			ON CONFLICT(seq) DO UPDATE SET price = excluded.price
		`, int64(seq), price.String())
		if err != nil {
			return fmt.Errorf("apply changeset: cumulative price %d: %w", seq, err)
		}
	}
	for _, ev := range cs.Events {
		if err := writeEvent(ctx, tx, ev); err != nil {
			return fmt.Errorf("apply changeset: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("apply changeset: commit: %w", err)
	}
	return nil
}

func writeMeta(ctx context.Context, tx *sql.Tx, m domain.Meta) error {
	for _, v := range []uint64{m.NextAllocationID, m.LastSeq, m.LastPeriod} {
		if err := checkInt64(v); err != nil {
			return fmt.Errorf("meta: %w", err)
		}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_meta (id, next_allocation_id, aggregate_amount, last_seq, last_period)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			next_allocation_id = excluded.next_allocation_id,
			aggregate_amount   = excluded.aggregate_amount,
			last_seq           = excluded.last_seq,
			last_period        = excluded.last_period
	`, int64(m.NextAllocationID), m.AggregateAmount.String(), int64(m.LastSeq), int64(m.LastPeriod))
	if err != nil {
		return fmt.Errorf("write meta: %w", err)
	}
	return nil
}

func ensureGenesisPrice(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO cumulative_prices (seq, price) VALUES (0, '0') ON CONFLICT(seq) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("write genesis price: %w", err)
	}
	return nil
}

func writeAllocation(ctx context.Context, tx *sql.Tx, a domain.Allocation) error {
	for _, v := range []uint64{a.ID, a.StartSeq, a.EndSeq} {
		if err := checkInt64(v); err != nil {
			return fmt.Errorf("allocation %d: %w", a.ID, err)
		}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO allocations (id, owner, amount, start_seq, end_seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner     = excluded.owner,
			amount    = excluded.amount,
			start_seq = excluded.start_seq,
			end_seq   = excluded.end_seq
	`, int64(a.ID), string(a.Owner), a.Amount.String(), int64(a.StartSeq), int64(a.EndSeq))
	if err != nil {
		return fmt.Errorf("write allocation %d: %w", a.ID, err)
	}
	return nil
}

func writeRemoval(ctx context.Context, tx *sql.Tx, seq uint64, amt domain.Amount) error {
	if err := checkInt64(seq); err != nil {
		return fmt.Errorf("scheduled removal: %w", err)
	}
	if amt.IsZero() {
		if _, err := tx.ExecContext(ctx, `DELETE FROM scheduled_removals WHERE seq = ?`, int64(seq)); err != nil {
			return fmt.Errorf("delete scheduled removal %d: %w", seq, err)
		}
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO scheduled_removals (seq, amount) VALUES (?, ?)
		ON CONFLICT(seq) DO UPDATE SET amount = excluded.amount
	`, int64(seq), amt.String())
	if err != nil {
		return fmt.Errorf("write scheduled removal %d: %w", seq, err)
	}
	return nil
}

func writeEvent(ctx context.Context, tx *sql.Tx, ev domain.Event) error {
	if ev.ID == "" {
		return fmt.Errorf("write event: missing id")
	}
	if err := checkInt64(ev.Seq); err != nil {
		return fmt.Errorf("write event %s: %w", ev.ID, err)
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (id, kind, seq, at, payload) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, ev.ID, string(ev.Kind), int64(ev.Seq), ev.At.UTC().Format(time.RFC3339Nano), string(payload))
	if err != nil {
		return fmt.Errorf("write event %s: %w", ev.ID, err)
	}
	return nil
}

// checkInt64 rejects values SQLite's signed INTEGER can't hold.
func checkInt64(v uint64) error {
	if v > math.MaxInt64 {
		return fmt.Errorf("value %d exceeds int64: %w", v, domain.ErrOverflow)
	}
	return nil
}
