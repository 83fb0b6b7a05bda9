package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bft-labs/dcaledger/internal/domain"
	"github.com/bft-labs/dcaledger/internal/ports"
)

// Load rebuilds the ledger snapshot. Returns an empty snapshot if the
// ledger was never written.
func (s *Store) Load(ctx context.Context) (domain.Snapshot, error) {
	snap := domain.NewSnapshot()

	var (
		nextID, lastSeq, lastPeriod int64
		aggregate                   string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT next_allocation_id, aggregate_amount, last_seq, last_period
		FROM ledger_meta WHERE id = 1
	`).Scan(&nextID, &aggregate, &lastSeq, &lastPeriod)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, nil
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("load meta: %w", err)
	}
	agg, err := domain.ParseAmount(aggregate)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("load meta: %w", err)
	}
	snap.Meta = domain.Meta{
		NextAllocationID: uint64(nextID),
		AggregateAmount:  agg,
		LastSeq:          uint64(lastSeq),
		LastPeriod:       uint64(lastPeriod),
	}

	if err := s.loadAllocations(ctx, &snap); err != nil {
		return domain.Snapshot{}, err
	}
	if err := s.loadAmounts(ctx, `SELECT seq, amount FROM scheduled_removals`, snap.ScheduledRemoval); err != nil {
		return domain.Snapshot{}, fmt.Errorf("load scheduled removals: %w", err)
	}
	if err := s.loadAmounts(ctx, `SELECT seq, price FROM cumulative_prices`, snap.CumulativePrice); err != nil {
		return domain.Snapshot{}, fmt.Errorf("load cumulative prices: %w", err)
	}
	return snap, nil
}

func (s *Store) loadAllocations(ctx context.Context, snap *domain.Snapshot) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, owner, amount, start_seq, end_seq FROM allocations`)
	if err != nil {
		return fmt.Errorf("query allocations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, start, end int64
			owner, amount  string
		)
		if err := rows.Scan(&id, &owner, &amount, &start, &end); err != nil {
			return fmt.Errorf("scan allocation: %w", err)
		}
		amt, err := domain.ParseAmount(amount)
		if err != nil {
			return fmt.Errorf("allocation %d: %w", id, err)
		}
		snap.Allocations[uint64(id)] = domain.Allocation{
			ID:       uint64(id),
			Owner:    domain.Address(owner),
			Amount:   amt,
			StartSeq: uint64(start),
			EndSeq:   uint64(end),
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate allocations: %w", err)
	}
	return nil
}

func (s *Store) loadAmounts(ctx context.Context, query string, into map[uint64]domain.Amount) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			seq int64
			raw string
		)
		if err := rows.Scan(&seq, &raw); err != nil {
			return err
		}
		amt, err := domain.ParseAmount(raw)
		if err != nil {
			return fmt.Errorf("seq %d: %w", seq, err)
		}
		into[uint64(seq)] = amt
	}
	return rows.Err()
}

// Events returns up to limit journal entries after the given cursor,
// oldest first.
func (s *Store) Events(ctx context.Context, after int64, limit int) ([]ports.JournalEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT cursor, payload FROM events
		WHERE cursor > ?
		ORDER BY cursor ASC
		LIMIT ?
	`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	entries := []ports.JournalEntry{}
	for rows.Next() {
		var (
			cursor  int64
			payload string
		)
		if err := rows.Scan(&cursor, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var ev domain.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("decode event %d: %w", cursor, err)
		}
		entries = append(entries, ports.JournalEntry{Cursor: cursor, Event: ev})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return entries, nil
}

// PruneEvents deletes all but the newest keep journal entries.
func (s *Store) PruneEvents(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("prune events: negative keep %d", keep)
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM events WHERE cursor <= (
			SELECT cursor FROM events ORDER BY cursor DESC LIMIT 1 OFFSET ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return n, nil
}

var (
	_ ports.Repository = (*Store)(nil)
	_ ports.Journal    = (*Store)(nil)
)
