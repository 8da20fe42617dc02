package sqlitestore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sky-flux/ebb"
)

// ErrNoSnapshot is returned when a requested snapshot does not exist.
var ErrNoSnapshot = errors.New("sqlitestore: no such snapshot")

// Snapshot describes one archived scheduler state.
type Snapshot struct {
	ID        string
	CreatedAt time.Time
	Topics    int
	Events    int
	Size      int // document size in bytes
}

// counts reads the topic and ledger lengths of a SaveState document.
func counts(doc []byte) (topics, events int, err error) {
	var d struct {
		Topics []json.RawMessage `json:"topics"`
		Ledger []json.RawMessage `json:"ledger"`
	}
	if err := json.Unmarshal(doc, &d); err != nil {
		return 0, 0, err
	}
	return len(d.Topics), len(d.Ledger), nil
}

// Save archives the current state of s and returns the new snapshot.
func (db *DB) Save(ctx context.Context, s *ebb.Scheduler) (Snapshot, error) {
	var buf bytes.Buffer
	if err := s.SaveState(&buf); err != nil {
		return Snapshot{}, fmt.Errorf("encode state: %w", err)
	}
	doc := buf.Bytes()

	topics, events, err := counts(doc)
	if err != nil {
		return Snapshot{}, fmt.Errorf("count state: %w", err)
	}

	snap := Snapshot{
		ID:        uuid.NewString(),
		CreatedAt: db.now().UTC().Truncate(time.Millisecond),
		Topics:    topics,
		Events:    events,
		Size:      len(doc),
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO snapshots (id, created_at, topic_count, event_count, document)
		VALUES (?, ?, ?, ?, ?)
	`, snap.ID, snap.CreatedAt.UnixMilli(), snap.Topics, snap.Events, doc)
	if err != nil {
		return Snapshot{}, fmt.Errorf("insert snapshot: %w", err)
	}

	db.log.Info().
		Str("snapshot", snap.ID).
		Int("topics", snap.Topics).
		Int("events", snap.Events).
		Msg("snapshot saved")
	return snap, nil
}

// Get returns the metadata of the snapshot with the given id.
func (db *DB) Get(ctx context.Context, id string) (Snapshot, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, created_at, topic_count, event_count, length(document)
		FROM snapshots WHERE id = ?
	`, id)
	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNoSnapshot, id)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("get snapshot: %w", err)
	}
	return snap, nil
}

// Load restores the snapshot with the given id into s. On any error s is
// left unchanged.
func (db *DB) Load(ctx context.Context, id string, s *ebb.Scheduler) error {
	var doc []byte
	err := db.QueryRowContext(ctx, "SELECT document FROM snapshots WHERE id = ?", id).Scan(&doc)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s", ErrNoSnapshot, id)
	}
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	if err := s.LoadState(bytes.NewReader(doc)); err != nil {
		return fmt.Errorf("load snapshot %s: %w", id, err)
	}

	db.log.Info().Str("snapshot", id).Msg("snapshot restored")
	return nil
}

// LoadLatest restores the most recent snapshot into s and returns it.
// Returns ErrNoSnapshot if the archive is empty.
func (db *DB) LoadLatest(ctx context.Context, s *ebb.Scheduler) (Snapshot, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, created_at, topic_count, event_count, length(document)
		FROM snapshots ORDER BY created_at DESC, seq DESC LIMIT 1
	`)
	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("latest snapshot: %w", err)
	}
	if err := db.Load(ctx, snap.ID, s); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// List returns all snapshots, newest first.
func (db *DB) List(ctx context.Context) ([]Snapshot, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, created_at, topic_count, event_count, length(document)
		FROM snapshots ORDER BY created_at DESC, seq DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep snapshots and returns how many were
// removed. A keep below zero is treated as zero.
func (db *DB) Prune(ctx context.Context, keep int) (int, error) {
	keep = max(keep, 0)
	result, err := db.ExecContext(ctx, `
		DELETE FROM snapshots WHERE seq NOT IN (
			SELECT seq FROM snapshots ORDER BY created_at DESC, seq DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	n, _ := result.RowsAffected()

	if n > 0 {
		db.log.Info().Int64("removed", n).Int("kept", keep).Msg("snapshots pruned")
	}
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (Snapshot, error) {
	var snap Snapshot
	var createdAt int64
	if err := row.Scan(&snap.ID, &createdAt, &snap.Topics, &snap.Events, &snap.Size); err != nil {
		return Snapshot{}, err
	}
	snap.CreatedAt = time.UnixMilli(createdAt).UTC()
	return snap, nil
}
