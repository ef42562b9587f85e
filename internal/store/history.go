package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/accounting"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/ir"
)

// AppendHistory inserts records under (threadID, category) in order. A
// record whose id is already stored is skipped. After the insert the
// category is pruned to its retention limit. Returns the number of rows
// actually inserted.
func (s *Store) AppendHistory(ctx context.Context, threadID, category string, records []ir.HistoryRecord, now time.Time) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("append history: %w", err)
	}
	defer tx.Rollback()

	inserted, err := s.appendHistory(ctx, tx, threadID, category, records, now)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("append history: %w", err)
	}
	return inserted, nil
}

func (s *Store) appendHistory(ctx context.Context, tx *sql.Tx, threadID, category string, records []ir.HistoryRecord, now time.Time) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	var next int64
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM history WHERE thread_id = ? AND category = ?
	`, threadID, category).Scan(&next); err != nil {
		return 0, fmt.Errorf("append history: next seq: %w", err)
	}

	inserted := 0
	for _, rec := range records {
		if rec.ID == "" {
			return 0, fmt.Errorf("append history: record without id in %s", category)
		}
		createdAt := rec.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO history (thread_id, category, id, seq, payload, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(thread_id, category, id) DO NOTHING
		`, threadID, category, rec.ID, next+1, string(rec.Payload), formatTime(createdAt))
		if err != nil {
			return 0, fmt.Errorf("append history %s: %w", rec.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("append history %s: %w", rec.ID, err)
		}
		if n > 0 {
			next++
			inserted++
		}
	}

	if keep := s.limitFor(category); keep > 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM history
			WHERE thread_id = ? AND category = ? AND seq <= ?
		`, threadID, category, next-int64(keep)); err != nil {
			return 0, fmt.Errorf("prune history: %w", err)
		}
	}
	return inserted, nil
}

func (s *Store) limitFor(category string) int {
	switch category {
	case ir.CategoryFlowLog:
		return s.retention.FlowLog
	case ir.CategoryNavSnapshots:
		return s.retention.NavSnapshots
	default:
		return 0
	}
}

// LoadHistory returns the stored records of one category in creation order
// (ORDER BY seq ASC, id ASC COLLATE BINARY). A limit > 0 returns only the
// newest limit records, still oldest first.
//
// Returns an empty slice (not nil) if nothing is stored.
func (s *Store) LoadHistory(ctx context.Context, threadID, category string, limit int) ([]ir.HistoryRecord, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, `
			SELECT thread_id, category, id, seq, payload, created_at FROM (
				SELECT * FROM history
				WHERE thread_id = ? AND category = ?
				ORDER BY seq DESC, id COLLATE BINARY DESC
				LIMIT ?
			)
			ORDER BY seq ASC, id COLLATE BINARY ASC
		`, threadID, category, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT thread_id, category, id, seq, payload, created_at
			FROM history
			WHERE thread_id = ? AND category = ?
			ORDER BY seq ASC, id COLLATE BINARY ASC
		`, threadID, category)
	}
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	records := []ir.HistoryRecord{}
	for rows.Next() {
		var (
			rec       ir.HistoryRecord
			payload   string
			createdAt string
		)
		if err := rows.Scan(&rec.ThreadID, &rec.Category, &rec.ID, &rec.Seq, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		rec.Payload = json.RawMessage(payload)
		if rec.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return records, nil
}

// AppendUpdate stores the ledger entries a tick produced. Both categories
// land in one transaction.
func (s *Store) AppendUpdate(ctx context.Context, threadID string, u accounting.Update, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append update: %w", err)
	}
	defer tx.Rollback()

	if err := s.appendUpdate(ctx, tx, threadID, u, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append update: %w", err)
	}
	return nil
}

// Commit stores the ledger entries of a tick together with the checkpoint
// that includes them. Nothing is written unless the checkpoint advances the
// thread's seq, so history never holds entries of a tick whose checkpoint
// was not saved.
func (s *Store) Commit(ctx context.Context, u accounting.Update, cp ir.Checkpoint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit %s: %w", cp.ThreadID, err)
	}
	defer tx.Rollback()

	if err := saveCheckpoint(ctx, tx, cp); err != nil {
		return err
	}
	if err := s.appendUpdate(ctx, tx, cp.ThreadID, u, cp.UpdatedAt); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", cp.ThreadID, err)
	}
	return nil
}

func (s *Store) appendUpdate(ctx context.Context, tx *sql.Tx, threadID string, u accounting.Update, now time.Time) error {
	flows := make([]ir.HistoryRecord, 0, len(u.FlowEvents))
	for _, ev := range u.FlowEvents {
		rec, err := newRecord(ev.ID, ev, ev.Timestamp)
		if err != nil {
			return err
		}
		flows = append(flows, rec)
	}
	if _, err := s.appendHistory(ctx, tx, threadID, ir.CategoryFlowLog, flows, now); err != nil {
		return err
	}

	snaps := make([]ir.HistoryRecord, 0, len(u.Snapshots))
	for _, snap := range u.Snapshots {
		rec, err := newRecord(snap.ID, snap, snap.Timestamp)
		if err != nil {
			return err
		}
		snaps = append(snaps, rec)
	}
	_, err := s.appendHistory(ctx, tx, threadID, ir.CategoryNavSnapshots, snaps, now)
	return err
}

// LoadUpdate returns the full stored ledger of a thread as an update, in
// creation order. Feeding it to accounting.Apply on an empty state rebuilds
// the thread's accounting.
func (s *Store) LoadUpdate(ctx context.Context, threadID string) (accounting.Update, error) {
	var u accounting.Update

	flows, err := s.LoadHistory(ctx, threadID, ir.CategoryFlowLog, 0)
	if err != nil {
		return u, err
	}
	for _, rec := range flows {
		var ev ir.FlowLogEvent
		if err := json.Unmarshal(rec.Payload, &ev); err != nil {
			return u, fmt.Errorf("decode flow event %s: %w", rec.ID, err)
		}
		u.FlowEvents = append(u.FlowEvents, ev)
	}

	snaps, err := s.LoadHistory(ctx, threadID, ir.CategoryNavSnapshots, 0)
	if err != nil {
		return u, err
	}
	for _, rec := range snaps {
		var snap ir.NavSnapshot
		if err := json.Unmarshal(rec.Payload, &snap); err != nil {
			return u, fmt.Errorf("decode nav snapshot %s: %w", rec.ID, err)
		}
		u.Snapshots = append(u.Snapshots, snap)
	}
	return u, nil
}

func newRecord(id string, v any, createdAt time.Time) (ir.HistoryRecord, error) {
	payload, err := marshalPayload(v)
	if err != nil {
		return ir.HistoryRecord{}, fmt.Errorf("history record %s: %w", id, err)
	}
	return ir.HistoryRecord{ID: id, Payload: json.RawMessage(payload), CreatedAt: createdAt}, nil
}
