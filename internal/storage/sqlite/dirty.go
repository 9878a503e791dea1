package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// GetDirtyIssues returns IDs of issues mutated since their last export,
// oldest marking first.
func (s *SQLiteStorage) GetDirtyIssues(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT issue_id FROM dirty_issues ORDER BY marked_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get dirty issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// ClearDirtyIssuesByID removes dirty flags for the given issues only.
// Issues mutated after the caller snapshotted the dirty list keep
// their flag, so concurrent writes are never lost.
func (s *SQLiteStorage) ClearDirtyIssuesByID(ctx context.Context, issueIDs []string) error {
	if len(issueIDs) == 0 {
		return nil
	}

	// Chunked to stay under SQLite's default parameter limit.
	const chunkSize = 500
	for start := 0; start < len(issueIDs); start += chunkSize {
		end := start + chunkSize
		if end > len(issueIDs) {
			end = len(issueIDs)
		}
		chunk := issueIDs[start:end]

		placeholders := strings.Repeat("?,", len(chunk)-1) + "?"
		args := make([]interface{}, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		_, err := s.db.ExecContext(ctx,
			`DELETE FROM dirty_issues WHERE issue_id IN (`+placeholders+`)`, args...)
		if err != nil {
			return fmt.Errorf("failed to clear dirty issues: %w", err)
		}
	}

	return nil
}

// GetExportHash returns the content hash recorded at last export, or ""
// when the issue has never been exported.
func (s *SQLiteStorage) GetExportHash(ctx context.Context, issueID string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `
		SELECT content_hash FROM export_hashes WHERE issue_id = ?
	`, issueID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get export hash: %w", err)
	}
	return hash, nil
}

// SetExportHash records the content hash for an issue's exported form
func (s *SQLiteStorage) SetExportHash(ctx context.Context, issueID, contentHash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO export_hashes (issue_id, content_hash, exported_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(issue_id) DO UPDATE SET
			content_hash = excluded.content_hash,
			exported_at = excluded.exported_at
	`, issueID, contentHash)
	if err != nil {
		return fmt.Errorf("failed to set export hash: %w", err)
	}
	return nil
}

// ClearAllExportHashes forces the next export to treat every issue as
// changed
func (s *SQLiteStorage) ClearAllExportHashes(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM export_hashes`)
	if err != nil {
		return fmt.Errorf("failed to clear export hashes: %w", err)
	}
	return nil
}

// GetNextChildID allocates the next hierarchical child ID under a
// parent issue ("tk-abc" -> "tk-abc.1", "tk-abc.2", ...). Allocation is
// a single upsert so concurrent callers never receive the same ID.
func (s *SQLiteStorage) GetNextChildID(ctx context.Context, parentID string) (string, error) {
	issue, err := s.GetIssue(ctx, parentID)
	if err != nil {
		return "", err
	}
	if issue == nil {
		return "", fmt.Errorf("issue %s not found", parentID)
	}

	var n int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO child_counters (parent_id, last_child) VALUES (?, 1)
		ON CONFLICT(parent_id) DO UPDATE SET last_child = last_child + 1
		RETURNING last_child
	`, parentID).Scan(&n)
	if err != nil {
		return "", fmt.Errorf("failed to allocate child id: %w", err)
	}

	return fmt.Sprintf("%s.%d", parentID, n), nil
}
