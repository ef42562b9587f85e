package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/ir"
)

// ErrStaleCheckpoint is returned when a checkpoint does not advance the
// stored seq for its thread.
var ErrStaleCheckpoint = errors.New("stale checkpoint")

// SaveCheckpoint writes the checkpoint for cp.ThreadID. The write only lands
// if cp.Seq is greater than the stored seq; otherwise ErrStaleCheckpoint is
// returned and the stored row is untouched.
func (s *Store) SaveCheckpoint(ctx context.Context, cp ir.Checkpoint) error {
	return saveCheckpoint(ctx, s.db, cp)
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveCheckpoint(ctx context.Context, db execer, cp ir.Checkpoint) error {
	if cp.ThreadID == "" {
		return fmt.Errorf("save checkpoint: thread id is required")
	}
	stateJSON, err := marshalState(cp.State)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	version := cp.SchemaVersion
	if version == "" {
		version = ir.SchemaVersion
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO checkpoints (thread_id, seq, schema_version, state, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			seq = excluded.seq,
			schema_version = excluded.schema_version,
			state = excluded.state,
			updated_at = excluded.updated_at
		WHERE excluded.seq > checkpoints.seq
	`,
		cp.ThreadID,
		cp.Seq,
		version,
		stateJSON,
		formatTime(cp.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("save checkpoint %s seq %d: %w", cp.ThreadID, cp.Seq, ErrStaleCheckpoint)
	}
	return nil
}

// LoadCheckpoint retrieves the checkpoint for threadID.
// Returns sql.ErrNoRows if the thread has never been checkpointed.
func (s *Store) LoadCheckpoint(ctx context.Context, threadID string) (ir.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT thread_id, seq, schema_version, state, updated_at
		FROM checkpoints
		WHERE thread_id = ?
	`, threadID)

	var (
		cp        ir.Checkpoint
		stateJSON string
		updatedAt string
	)
	if err := row.Scan(&cp.ThreadID, &cp.Seq, &cp.SchemaVersion, &stateJSON, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ir.Checkpoint{}, err
		}
		return ir.Checkpoint{}, fmt.Errorf("load checkpoint: %w", err)
	}
	if cp.SchemaVersion != ir.SchemaVersion {
		return ir.Checkpoint{}, fmt.Errorf("load checkpoint %s: unsupported schema version %q", threadID, cp.SchemaVersion)
	}

	state, err := unmarshalState(stateJSON)
	if err != nil {
		return ir.Checkpoint{}, fmt.Errorf("load checkpoint %s: %w", threadID, err)
	}
	cp.State = state

	if cp.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return ir.Checkpoint{}, fmt.Errorf("load checkpoint %s: %w", threadID, err)
	}
	return cp, nil
}

// MaxSeq returns the highest checkpoint seq across all threads, or 0 for an
// empty store. The engine resumes its logical clock from it.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM checkpoints`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return seq.Int64, nil
}

// ListThreads returns every checkpointed thread id in binary order.
// Returns an empty slice (not nil) for an empty store.
func (s *Store) ListThreads(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT thread_id FROM checkpoints ORDER BY thread_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	threads := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		threads = append(threads, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate threads: %w", err)
	}
	return threads, nil
}
