// Dependency graph: directed typed edges keyed by (issue_id,
// depends_on_id). No cycle detection happens here; the readiness
// queries examine a single hop, so cyclic edge sets cannot make them
// diverge.

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tracklet/tracklet/internal/types"
)

// AddDependency adds a typed edge from dep.IssueID to dep.DependsOnID
// and emits a "dependency_added" event on the source issue. Both issues
// must exist and be live. Re-adding an existing pair fails on the
// primary key regardless of type.
func (s *SQLiteStorage) AddDependency(ctx context.Context, dep *types.Dependency, actor string) error {
	if dep.Type == "" {
		dep.Type = types.DepBlocks
	}
	if !dep.Type.IsValid() {
		return fmt.Errorf("invalid dependency type: %s (must be blocks, related, parent-child, or discovered-from)", dep.Type)
	}

	return s.inTransaction(ctx, func(conn *sql.Conn) error {
		from, err := getLiveIssueConn(ctx, conn, dep.IssueID)
		if err != nil {
			return err
		}
		if from == nil {
			return fmt.Errorf("issue %s not found", dep.IssueID)
		}

		to, err := getLiveIssueConn(ctx, conn, dep.DependsOnID)
		if err != nil {
			return err
		}
		if to == nil {
			return fmt.Errorf("dependency target %s not found", dep.DependsOnID)
		}

		dep.CreatedAt = time.Now()
		dep.CreatedBy = actor

		_, err = conn.ExecContext(ctx, `
			INSERT INTO dependencies (issue_id, depends_on_id, type, created_at, created_by)
			VALUES (?, ?, ?, ?, ?)
		`, dep.IssueID, dep.DependsOnID, dep.Type, dep.CreatedAt, dep.CreatedBy)
		if err != nil {
			return fmt.Errorf("failed to add dependency: %w", err)
		}

		newValue := fmt.Sprintf("%s:%s", dep.Type, dep.DependsOnID)
		if err := insertEventConn(ctx, conn, dep.IssueID, types.EventDependencyAdded, actor, nil, &newValue, nil); err != nil {
			return err
		}

		// Dependencies are exported with each issue, so both sides change
		return markDirtyConn(ctx, conn, dep.IssueID, dep.DependsOnID)
	})
}

// RemoveDependency removes the edge if present. Non-strict: removing a
// nonexistent edge succeeds silently, and no event is recorded.
func (s *SQLiteStorage) RemoveDependency(ctx context.Context, issueID, dependsOnID string) error {
	return s.inTransaction(ctx, func(conn *sql.Conn) error {
		result, err := conn.ExecContext(ctx, `
			DELETE FROM dependencies WHERE issue_id = ? AND depends_on_id = ?
		`, issueID, dependsOnID)
		if err != nil {
			return fmt.Errorf("failed to remove dependency: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if affected == 0 {
			return nil
		}

		return markDirtyConn(ctx, conn, issueID, dependsOnID)
	})
}

// GetDependencies returns the live issues this issue depends on
func (s *SQLiteStorage) GetDependencies(ctx context.Context, issueID string) ([]*types.Issue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+issueColumnsPrefixed+`
		FROM issues i
		JOIN dependencies d ON i.id = d.depends_on_id
		WHERE d.issue_id = ? AND i.deleted_at IS NULL
		ORDER BY i.priority ASC, i.created_at ASC
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dependencies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanIssues(rows)
}

// GetDependents returns the live issues that depend on this issue
func (s *SQLiteStorage) GetDependents(ctx context.Context, issueID string) ([]*types.Issue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+issueColumnsPrefixed+`
		FROM issues i
		JOIN dependencies d ON i.id = d.issue_id
		WHERE d.depends_on_id = ? AND i.deleted_at IS NULL
		ORDER BY i.priority ASC, i.created_at ASC
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dependents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanIssues(rows)
}

// GetDependencyRecords returns the raw outgoing edges for an issue
func (s *SQLiteStorage) GetDependencyRecords(ctx context.Context, issueID string) ([]*types.Dependency, error) {
	return s.queryDependencyRecords(ctx, `
		SELECT issue_id, depends_on_id, type, created_at, created_by
		FROM dependencies
		WHERE issue_id = ?
		ORDER BY created_at ASC
	`, issueID)
}

// GetDependentRecords returns the raw incoming edges for an issue
func (s *SQLiteStorage) GetDependentRecords(ctx context.Context, issueID string) ([]*types.Dependency, error) {
	return s.queryDependencyRecords(ctx, `
		SELECT issue_id, depends_on_id, type, created_at, created_by
		FROM dependencies
		WHERE depends_on_id = ?
		ORDER BY created_at ASC
	`, issueID)
}

func (s *SQLiteStorage) queryDependencyRecords(ctx context.Context, query, issueID string) ([]*types.Dependency, error) {
	rows, err := s.db.QueryContext(ctx, query, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dependency records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var deps []*types.Dependency
	for rows.Next() {
		var dep types.Dependency
		err := rows.Scan(
			&dep.IssueID,
			&dep.DependsOnID,
			&dep.Type,
			&dep.CreatedAt,
			&dep.CreatedBy,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		deps = append(deps, &dep)
	}

	return deps, rows.Err()
}
