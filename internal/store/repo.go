package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnsureRepository is idempotent: it creates the repository row or returns
// the existing id, never exposing partial state.
func (s *SQLiteStore) EnsureRepository(ctx context.Context, url, branch, name string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, "SELECT id FROM repositories WHERE url = ? AND branch = ?", url, branch).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("lookup repository: %w", err)
	}

	id = uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO repositories (id, url, branch, name) VALUES (?, ?, ?, ?)",
		id, url, branch, name,
	)
	if err != nil {
		// Another writer may have raced us to the unique (url, branch) index.
		var existing string
		if lookupErr := s.db.QueryRowContext(ctx,
			"SELECT id FROM repositories WHERE url = ? AND branch = ?", url, branch,
		).Scan(&existing); lookupErr == nil {
			return existing, nil
		}
		return "", fmt.Errorf("insert repository: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) GetRepository(ctx context.Context, id string) (*Repository, error) {
	var r Repository
	var currentSnapshot sql.NullString
	var reindexAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, url, branch, name, current_snapshot_id, reindex_requested_at, created_at, updated_at
		 FROM repositories WHERE id = ?`, id,
	).Scan(&r.ID, &r.URL, &r.Branch, &r.Name, &currentSnapshot, &reindexAt, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get repository: %w", err)
	}
	r.CurrentSnapshotID = currentSnapshot.String
	if reindexAt.Valid {
		r.ReindexRequestedAt = &reindexAt.Time
	}
	return &r, nil
}

// CreateSnapshot creates an `indexing` snapshot, acting as an advisory lock:
// it returns (none, false) if another snapshot on the same repository is
// already `indexing`. If forceNew is false and a `completed` snapshot already
// matches commitHash, that snapshot is returned with created=false.
func (s *SQLiteStore) CreateSnapshot(ctx context.Context, repoID, commitHash string, forceNew bool) (string, bool, error) {
	if !forceNew {
		var existing string
		err := s.db.QueryRowContext(ctx,
			`SELECT id FROM snapshots WHERE repository_id = ? AND commit_hash = ? AND status = 'completed'`,
			repoID, commitHash,
		).Scan(&existing)
		if err == nil {
			return existing, false, nil
		}
		if err != sql.ErrNoRows {
			return "", false, fmt.Errorf("lookup completed snapshot: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var inFlight int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM snapshots WHERE repository_id = ? AND status = 'indexing'`, repoID,
	).Scan(&inFlight)
	if err != nil {
		return "", false, fmt.Errorf("check in-flight snapshot: %w", err)
	}
	if inFlight > 0 {
		return "", false, nil
	}

	id := uuid.NewString()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, repository_id, commit_hash, status) VALUES (?, ?, ?, 'indexing')`,
		id, repoID, commitHash,
	)
	if err != nil {
		return "", false, fmt.Errorf("insert snapshot: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("commit: %w", err)
	}
	return id, true, nil
}

func (s *SQLiteStore) GetSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	var snap Snapshot
	var statsJSON, manifestJSON string
	var completedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, repository_id, commit_hash, status, stats_json, manifest_json, created_at, completed_at
		 FROM snapshots WHERE id = ?`, id,
	).Scan(&snap.ID, &snap.RepositoryID, &snap.CommitHash, &snap.Status, &statsJSON, &manifestJSON, &snap.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	if completedAt.Valid {
		snap.CompletedAt = &completedAt.Time
	}
	_ = json.Unmarshal([]byte(statsJSON), &snap.Stats)
	var manifest ManifestNode
	if err := json.Unmarshal([]byte(manifestJSON), &manifest); err == nil && manifest.Type != "" {
		snap.Manifest = &manifest
	}
	return &snap, nil
}

// ActivateSnapshot atomically marks the snapshot completed, stores its stats
// and manifest, and points the repository's current_snapshot_id at it. A
// concurrent activation only wins if its snapshot is strictly newer by
// creation time (spec §5's compare-and-set on the active pointer).
func (s *SQLiteStore) ActivateSnapshot(ctx context.Context, repoID, snapshotID string, stats SnapshotStats, manifest *ManifestNode) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var status string
	var createdAt time.Time
	err = tx.QueryRowContext(ctx, "SELECT status, created_at FROM snapshots WHERE id = ?", snapshotID).Scan(&status, &createdAt)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	if status != string(SnapshotIndexing) {
		return fmt.Errorf("%w: snapshot %s is %s, not indexing", ErrState, snapshotID, status)
	}

	statsJSON, _ := json.Marshal(stats)
	manifestJSON, _ := json.Marshal(manifest)

	if _, err := tx.ExecContext(ctx,
		`UPDATE snapshots SET status = 'completed', stats_json = ?, manifest_json = ?, completed_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		string(statsJSON), string(manifestJSON), snapshotID,
	); err != nil {
		return fmt.Errorf("complete snapshot: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE repositories SET current_snapshot_id = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND (
		     current_snapshot_id IS NULL
		     OR (SELECT created_at FROM snapshots WHERE id = repositories.current_snapshot_id) < ?
		 )`,
		snapshotID, repoID, createdAt,
	)
	if err != nil {
		return fmt.Errorf("activate pointer: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		// A newer snapshot already won the race; our completion still stands
		// but we do not move the active pointer backwards.
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return fmt.Errorf("%w: a newer snapshot is already active for repository %s", ErrConflict, repoID)
	}
	return tx.Commit()
}

// FailSnapshot transitions a snapshot to `failed` and never touches the
// repository's active pointer.
func (s *SQLiteStore) FailSnapshot(ctx context.Context, snapshotID string, cause string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE snapshots SET status = 'failed', completed_at = CURRENT_TIMESTAMP,
		 stats_json = json_set(stats_json, '$.failure', ?)
		 WHERE id = ? AND status = 'indexing'`,
		cause, snapshotID,
	)
	if err != nil {
		return fmt.Errorf("fail snapshot: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: snapshot %s is not indexing", ErrState, snapshotID)
	}
	return nil
}

// ActiveSnapshotOf returns the repository's current snapshot id. Readers
// never observe an `indexing` snapshot through this call.
func (s *SQLiteStore) ActiveSnapshotOf(ctx context.Context, repoID string) (string, error) {
	var id sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT current_snapshot_id FROM repositories WHERE id = ?", repoID).Scan(&id)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("active snapshot: %w", err)
	}
	return id.String, nil
}
