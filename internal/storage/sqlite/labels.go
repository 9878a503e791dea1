package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tracklet/tracklet/internal/types"
	"github.com/tracklet/tracklet/internal/util"
)

// AddLabel adds a label to an issue. Idempotent: adding a label the
// issue already carries is silently ignored, and the "label_added"
// event is only recorded when a row was actually inserted.
func (s *SQLiteStorage) AddLabel(ctx context.Context, issueID, label, actor string) error {
	label = util.NormalizeLabel(label)
	if label == "" {
		return fmt.Errorf("label must not be empty")
	}
	return s.labelOperation(ctx, issueID, actor,
		`INSERT OR IGNORE INTO labels (issue_id, label) VALUES (?, ?)`,
		types.EventLabelAdded, label,
		"failed to add label",
	)
}

// RemoveLabel removes a label from an issue. Non-strict: removing an
// absent label succeeds and records no event.
func (s *SQLiteStorage) RemoveLabel(ctx context.Context, issueID, label, actor string) error {
	label = util.NormalizeLabel(label)
	return s.labelOperation(ctx, issueID, actor,
		`DELETE FROM labels WHERE issue_id = ? AND label = ?`,
		types.EventLabelRemoved, label,
		"failed to remove label",
	)
}

// labelOperation runs a label insert or delete plus its event in one
// transaction. The event only fires when the statement changed a row,
// so no-op adds and removes leave the audit trail untouched.
func (s *SQLiteStorage) labelOperation(ctx context.Context, issueID, actor, labelSQL string, eventType types.EventType, label, operationError string) error {
	return s.inTransaction(ctx, func(conn *sql.Conn) error {
		issue, err := getLiveIssueConn(ctx, conn, issueID)
		if err != nil {
			return err
		}
		if issue == nil {
			return fmt.Errorf("issue %s not found", issueID)
		}

		result, err := conn.ExecContext(ctx, labelSQL, issueID, label)
		if err != nil {
			return fmt.Errorf("%s: %w", operationError, err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if affected == 0 {
			return nil
		}

		if err := insertEventConn(ctx, conn, issueID, eventType, actor, nil, &label, nil); err != nil {
			return err
		}

		return markDirtyConn(ctx, conn, issueID)
	})
}

// GetLabels returns all labels for an issue, sorted
func (s *SQLiteStorage) GetLabels(ctx context.Context, issueID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT label FROM labels WHERE issue_id = ? ORDER BY label
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get labels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var labels []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, err
		}
		labels = append(labels, label)
	}

	return labels, rows.Err()
}
