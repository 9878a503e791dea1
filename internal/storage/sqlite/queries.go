package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tracklet/tracklet/internal/types"
)

// issueColumns is the canonical column list for issue selects. Every
// scan helper below expects exactly these columns in this order.
const issueColumns = `id, title, description, design, acceptance_criteria, notes,
	       status, priority, issue_type, assignee,
	       created_at, updated_at, closed_at, close_reason,
	       deleted_at, delete_reason, original_type`

// issueColumnsPrefixed is issueColumns qualified with the "i" alias,
// for joined selects.
const issueColumnsPrefixed = `i.id, i.title, i.description, i.design, i.acceptance_criteria, i.notes,
	       i.status, i.priority, i.issue_type, i.assignee,
	       i.created_at, i.updated_at, i.closed_at, i.close_reason,
	       i.deleted_at, i.delete_reason, i.original_type`

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanIssue scans a single issue from a row with issueColumns layout
func scanIssue(r rowScanner) (*types.Issue, error) {
	var issue types.Issue
	var assignee sql.NullString
	var closedAt, deletedAt sql.NullTime

	err := r.Scan(
		&issue.ID, &issue.Title, &issue.Description, &issue.Design,
		&issue.AcceptanceCriteria, &issue.Notes, &issue.Status,
		&issue.Priority, &issue.IssueType, &assignee,
		&issue.CreatedAt, &issue.UpdatedAt, &closedAt, &issue.CloseReason,
		&deletedAt, &issue.DeleteReason, &issue.OriginalType,
	)
	if err != nil {
		return nil, err
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

	return &issue, nil
}

// scanIssues drains rows into a slice
func scanIssues(rows *sql.Rows) ([]*types.Issue, error) {
	var issues []*types.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

// GetIssue retrieves a live issue by ID. Returns (nil, nil) when the
// issue does not exist or is soft-deleted.
func (s *SQLiteStorage) GetIssue(ctx context.Context, id string) (*types.Issue, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+issueColumns+`
		FROM issues
		WHERE id = ? AND deleted_at IS NULL
	`, id)

	issue, err := scanIssue(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}

	labels, err := s.GetLabels(ctx, issue.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get labels: %w", err)
	}
	issue.Labels = labels

	return issue, nil
}

// getLiveIssueConn reads a live issue on the transaction's connection.
// The mutation engine uses this for its read-diff-write sequences.
func getLiveIssueConn(ctx context.Context, conn *sql.Conn, id string) (*types.Issue, error) {
	row := conn.QueryRowContext(ctx, `
		SELECT `+issueColumns+`
		FROM issues
		WHERE id = ? AND deleted_at IS NULL
	`, id)

	issue, err := scanIssue(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}
	return issue, nil
}

// GetIssueWithRelations returns an issue together with its labels,
// comments, events, and dependency edges in both directions.
// Returns (nil, nil) when the issue is absent or soft-deleted.
func (s *SQLiteStorage) GetIssueWithRelations(ctx context.Context, id string) (*types.IssueWithRelations, error) {
	issue, err := s.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	if issue == nil {
		return nil, nil
	}

	comments, err := s.GetComments(ctx, id)
	if err != nil {
		return nil, err
	}

	events, err := s.GetEvents(ctx, id, 0)
	if err != nil {
		return nil, err
	}

	deps, err := s.GetDependencyRecords(ctx, id)
	if err != nil {
		return nil, err
	}

	dependents, err := s.GetDependentRecords(ctx, id)
	if err != nil {
		return nil, err
	}

	return &types.IssueWithRelations{
		Issue:        *issue,
		Labels:       issue.Labels,
		Comments:     comments,
		Events:       events,
		Dependencies: deps,
		Dependents:   dependents,
	}, nil
}

// ListIssues returns live issues matching the filter, ordered and
// paginated. Soft-deleted issues are always excluded.
func (s *SQLiteStorage) ListIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error) {
	whereClauses := []string{"deleted_at IS NULL"}
	args := []interface{}{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			if !status.IsValid() {
				return nil, fmt.Errorf("invalid status in filter: %s", status)
			}
			placeholders[i] = "?"
			args = append(args, status)
		}
		whereClauses = append(whereClauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}

	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, priority := range filter.Priorities {
			placeholders[i] = "?"
			args = append(args, priority)
		}
		whereClauses = append(whereClauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ", ")))
	}

	if len(filter.IssueTypes) > 0 {
		placeholders := make([]string, len(filter.IssueTypes))
		for i, issueType := range filter.IssueTypes {
			if !issueType.IsValid() {
				return nil, fmt.Errorf("invalid issue type in filter: %s", issueType)
			}
			placeholders[i] = "?"
			args = append(args, issueType)
		}
		whereClauses = append(whereClauses, fmt.Sprintf("issue_type IN (%s)", strings.Join(placeholders, ", ")))
	}

	if filter.Assignee != nil {
		whereClauses = append(whereClauses, "assignee = ?")
		args = append(args, *filter.Assignee)
	}

	// Label filtering: issue must have ALL specified labels
	for _, label := range filter.Labels {
		whereClauses = append(whereClauses, "id IN (SELECT issue_id FROM labels WHERE label = ?)")
		args = append(args, label)
	}

	orderSQL, err := buildOrderByClause(filter.SortBy, filter.SortDirection)
	if err != nil {
		return nil, err
	}

	// LIMIT/OFFSET are independent; SQLite needs a LIMIT before OFFSET,
	// so an offset without a limit uses LIMIT -1.
	limitSQL := ""
	if filter.Limit > 0 {
		limitSQL = " LIMIT ?"
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		limitSQL = " LIMIT -1"
	}
	if filter.Offset > 0 {
		limitSQL += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	// #nosec G201 - whereClauses and orderSQL are built from whitelisted fragments
	query := fmt.Sprintf(`
		SELECT `+issueColumns+`
		FROM issues
		WHERE %s
		%s
		%s
	`, strings.Join(whereClauses, " AND "), orderSQL, limitSQL)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanIssues(rows)
}

// buildOrderByClause maps the whitelisted sort options onto SQL.
// Defaults to created_at DESC.
func buildOrderByClause(field types.SortField, dir types.SortDirection) (string, error) {
	if field == "" {
		field = types.SortByCreatedAt
	}
	if !field.IsValid() {
		return "", fmt.Errorf("invalid sort field: %s", field)
	}

	switch dir {
	case "":
		dir = types.SortDesc
	case types.SortAsc, types.SortDesc:
	default:
		return "", fmt.Errorf("invalid sort direction: %s", dir)
	}

	return fmt.Sprintf("ORDER BY %s %s", field, strings.ToUpper(string(dir))), nil
}

// GetStatistics returns aggregate statistics over non-deleted issues
func (s *SQLiteStorage) GetStatistics(ctx context.Context) (*types.Statistics, error) {
	var stats types.Statistics

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) as total,
			COALESCE(SUM(CASE WHEN status = 'open' THEN 1 ELSE 0 END), 0) as open,
			COALESCE(SUM(CASE WHEN status = 'in_progress' THEN 1 ELSE 0 END), 0) as in_progress,
			COALESCE(SUM(CASE WHEN status = 'blocked' THEN 1 ELSE 0 END), 0) as blocked,
			COALESCE(SUM(CASE WHEN status = 'closed' THEN 1 ELSE 0 END), 0) as closed
		FROM issues
		WHERE deleted_at IS NULL
	`).Scan(&stats.TotalIssues, &stats.OpenIssues, &stats.InProgressIssues,
		&stats.BlockedIssues, &stats.ClosedIssues)
	if err != nil {
		return nil, fmt.Errorf("failed to get issue counts: %w", err)
	}

	// Issues blocked by at least one active dependency (one hop)
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT i.id)
		FROM issues i
		JOIN dependencies d ON i.id = d.issue_id
		JOIN issues blocker ON d.depends_on_id = blocker.id
		WHERE i.status IN ('open', 'in_progress', 'blocked')
		  AND i.deleted_at IS NULL
		  AND d.type = 'blocks'
		  AND blocker.status IN ('open', 'in_progress', 'blocked')
		  AND blocker.deleted_at IS NULL
	`).Scan(&stats.DepBlockedIssues)
	if err != nil {
		return nil, fmt.Errorf("failed to get blocked count: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ready_issues`).Scan(&stats.ReadyIssues)
	if err != nil {
		return nil, fmt.Errorf("failed to get ready count: %w", err)
	}

	// Average lead time in hours from created to closed
	var avgLeadTime sql.NullFloat64
	err = s.db.QueryRowContext(ctx, `
		SELECT AVG(
			(julianday(closed_at) - julianday(created_at)) * 24
		)
		FROM issues
		WHERE closed_at IS NOT NULL AND deleted_at IS NULL
	`).Scan(&avgLeadTime)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get lead time: %w", err)
	}
	if avgLeadTime.Valid {
		stats.AverageLeadTime = avgLeadTime.Float64
	}

	return &stats, nil
}
