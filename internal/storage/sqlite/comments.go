package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tracklet/tracklet/internal/types"
)

// AddComment appends a comment to an issue and records a "commented"
// event in the same transaction. The issue's updated_at is bumped so
// commented issues surface in recency-ordered listings.
func (s *SQLiteStorage) AddComment(ctx context.Context, issueID, author, text string) (*types.Comment, error) {
	now := time.Now()
	var commentID int64

	err := s.inTransaction(ctx, func(conn *sql.Conn) error {
		issue, err := getLiveIssueConn(ctx, conn, issueID)
		if err != nil {
			return err
		}
		if issue == nil {
			return fmt.Errorf("issue %s not found", issueID)
		}

		result, err := conn.ExecContext(ctx, `
			INSERT INTO comments (issue_id, author, text, created_at)
			VALUES (?, ?, ?, ?)
		`, issueID, author, text, now)
		if err != nil {
			return fmt.Errorf("failed to add comment: %w", err)
		}

		commentID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get comment id: %w", err)
		}

		if _, err := conn.ExecContext(ctx, `
			UPDATE issues SET updated_at = ? WHERE id = ?
		`, now, issueID); err != nil {
			return fmt.Errorf("failed to touch issue: %w", err)
		}

		if err := insertEventConn(ctx, conn, issueID, types.EventCommented, author, nil, nil, &text); err != nil {
			return err
		}

		return markDirtyConn(ctx, conn, issueID)
	})
	if err != nil {
		return nil, err
	}

	return &types.Comment{
		ID:        commentID,
		IssueID:   issueID,
		Author:    author,
		Text:      text,
		CreatedAt: now,
	}, nil
}

// GetComments returns all comments for an issue, oldest first.
func (s *SQLiteStorage) GetComments(ctx context.Context, issueID string) ([]*types.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, issue_id, author, text, created_at
		FROM comments
		WHERE issue_id = ?
		ORDER BY created_at ASC, id ASC
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get comments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var comments []*types.Comment
	for rows.Next() {
		var c types.Comment
		if err := rows.Scan(&c.ID, &c.IssueID, &c.Author, &c.Text, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, &c)
	}

	return comments, rows.Err()
}
