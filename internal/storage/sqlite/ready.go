// Readiness engine. Both views recompute from the live issue set and
// the dependency graph on every call; nothing is materialized.
//
// Blocking is direct only, one hop, never transitive: an issue is
// blocked exactly when it is the source of a 'blocks' edge whose target
// is active (open, in_progress, or blocked). Whether the blocker is
// itself blocked does not propagate, which also makes cyclic edge sets
// harmless, only one hop is ever examined.

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tracklet/tracklet/internal/types"
)

// GetReadyIssues returns open issues with no active blocker, the
// actionable frontier of the graph. The filter narrows by priority and
// assignee and caps the result size.
func (s *SQLiteStorage) GetReadyIssues(ctx context.Context, filter types.WorkFilter) ([]*types.Issue, error) {
	whereClauses := []string{"i.status = 'open'", "i.deleted_at IS NULL"}
	args := []interface{}{}

	if filter.Priority != nil {
		whereClauses = append(whereClauses, "i.priority = ?")
		args = append(args, *filter.Priority)
	}

	if filter.Assignee != nil {
		whereClauses = append(whereClauses, "i.assignee = ?")
		args = append(args, *filter.Assignee)
	}

	limitSQL := ""
	if filter.Limit > 0 {
		limitSQL = " LIMIT ?"
		args = append(args, filter.Limit)
	}

	// #nosec G201 - safe SQL with controlled formatting
	query := fmt.Sprintf(`
		SELECT `+issueColumnsPrefixed+`
		FROM issues i
		WHERE %s
		AND NOT EXISTS (
			SELECT 1 FROM dependencies d
			JOIN issues blocker ON d.depends_on_id = blocker.id
			WHERE d.issue_id = i.id
			  AND d.type = 'blocks'
			  AND blocker.status IN ('open', 'in_progress', 'blocked')
			  AND blocker.deleted_at IS NULL
		)
		ORDER BY i.priority ASC, i.created_at ASC
		%s
	`, strings.Join(whereClauses, " AND "), limitSQL)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get ready issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanIssues(rows)
}

// GetBlockedIssues returns every active issue blocked by at least one
// active dependency, with the count of such blockers and their ids.
// Each qualifying edge counts once.
func (s *SQLiteStorage) GetBlockedIssues(ctx context.Context) ([]*types.BlockedIssue, error) {
	// GROUP_CONCAT collects all blocker IDs in a single query (no N+1)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+issueColumnsPrefixed+`,
		    COUNT(d.depends_on_id) as blocked_by_count,
		    GROUP_CONCAT(d.depends_on_id, ',') as blocker_ids
		FROM issues i
		JOIN dependencies d ON i.id = d.issue_id
		JOIN issues blocker ON d.depends_on_id = blocker.id
		WHERE i.status IN ('open', 'in_progress', 'blocked')
		  AND i.deleted_at IS NULL
		  AND d.type = 'blocks'
		  AND blocker.status IN ('open', 'in_progress', 'blocked')
		  AND blocker.deleted_at IS NULL
		GROUP BY i.id
		ORDER BY i.priority ASC, i.created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get blocked issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var blocked []*types.BlockedIssue
	for rows.Next() {
		var issue types.BlockedIssue
		var assignee, blockerIDs sql.NullString
		var closedAt, deletedAt sql.NullTime

		err := rows.Scan(
			&issue.ID, &issue.Title, &issue.Description, &issue.Design,
			&issue.AcceptanceCriteria, &issue.Notes, &issue.Status,
			&issue.Priority, &issue.IssueType, &assignee,
			&issue.CreatedAt, &issue.UpdatedAt, &closedAt, &issue.CloseReason,
			&deletedAt, &issue.DeleteReason, &issue.OriginalType,
			&issue.BlockedByCount, &blockerIDs,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan blocked issue: %w", err)
		}

		if assignee.Valid {
			issue.Assignee = assignee.String
		}
		if closedAt.Valid {
			issue.ClosedAt = &closedAt.Time
		}
		if deletedAt.Valid {
			issue.DeletedAt = &deletedAt.Time
		}
		if blockerIDs.Valid && blockerIDs.String != "" {
			issue.BlockedBy = strings.Split(blockerIDs.String, ",")
		}

		blocked = append(blocked, &issue)
	}

	return blocked, rows.Err()
}
