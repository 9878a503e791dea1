package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tracklet/tracklet/internal/types"
)

// GetEvents returns the audit trail for an issue, newest first.
// A limit of 0 returns the full history.
func (s *SQLiteStorage) GetEvents(ctx context.Context, issueID string, limit int) ([]*types.Event, error) {
	query := `
		SELECT id, issue_id, event_type, actor, old_value, new_value, comment, created_at
		FROM events
		WHERE issue_id = ?
		ORDER BY created_at DESC, id DESC
	`
	args := []interface{}{issueID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*types.Event
	for rows.Next() {
		var e types.Event
		var oldValue, newValue, comment sql.NullString
		if err := rows.Scan(&e.ID, &e.IssueID, &e.EventType, &e.Actor, &oldValue, &newValue, &comment, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if oldValue.Valid {
			e.OldValue = &oldValue.String
		}
		if newValue.Valid {
			e.NewValue = &newValue.String
		}
		if comment.Valid {
			e.Comment = &comment.String
		}
		events = append(events, &e)
	}

	return events, rows.Err()
}
