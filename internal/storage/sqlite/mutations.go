// Mutation engine: every write to an issue's persistent attributes goes
// through one of the five operations here, each committing the row
// change and its audit events as one transaction.

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tracklet/tracklet/internal/ids"
	"github.com/tracklet/tracklet/internal/types"
	"github.com/tracklet/tracklet/internal/util"
)

// CreateIssue creates a new issue, assigning an ID and timestamps and
// emitting a single "created" event. The returned issue is read back
// from the store after commit, so it reflects exactly what was stored.
func (s *SQLiteStorage) CreateIssue(ctx context.Context, issue *types.Issue, actor string) (*types.Issue, error) {
	// Field defaults for anything the caller left zero-valued
	if issue.Status == "" {
		issue.Status = types.StatusOpen
	}
	if issue.IssueType == "" {
		issue.IssueType = types.TypeTask
	}
	issue.Labels = util.NormalizeLabels(issue.Labels)

	now := time.Now()
	issue.CreatedAt = now
	issue.UpdatedAt = now

	if err := issue.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	err := s.inTransaction(ctx, func(conn *sql.Conn) error {
		// Generate ID inside the transaction so the prefix lookup and
		// insert cannot interleave with a prefix change.
		if issue.ID == "" {
			prefix, err := s.issuePrefix(ctx, conn)
			if err != nil {
				return err
			}
			issue.ID = ids.NewWithPrefix(prefix)
		}

		_, err := conn.ExecContext(ctx, `
			INSERT INTO issues (
				id, title, description, design, acceptance_criteria, notes,
				status, priority, issue_type, assignee,
				created_at, updated_at, closed_at, close_reason
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			issue.ID, issue.Title, issue.Description, issue.Design,
			issue.AcceptanceCriteria, issue.Notes, issue.Status,
			issue.Priority, issue.IssueType, issue.Assignee,
			issue.CreatedAt, issue.UpdatedAt, issue.ClosedAt, issue.CloseReason,
		)
		if err != nil {
			return fmt.Errorf("failed to insert issue: %w", err)
		}

		for _, label := range issue.Labels {
			_, err = conn.ExecContext(ctx, `
				INSERT OR IGNORE INTO labels (issue_id, label) VALUES (?, ?)
			`, issue.ID, label)
			if err != nil {
				return fmt.Errorf("failed to insert label: %w", err)
			}
		}

		eventData, err := json.Marshal(issue)
		if err != nil {
			// Fall back to minimal description if marshaling fails
			eventData = []byte(fmt.Sprintf(`{"id":"%s","title":"%s"}`, issue.ID, issue.Title))
		}
		newValue := string(eventData)
		if err := insertEventConn(ctx, conn, issue.ID, types.EventCreated, actor, nil, &newValue, nil); err != nil {
			return err
		}

		return markDirtyConn(ctx, conn, issue.ID)
	})
	if err != nil {
		return nil, err
	}

	return s.GetIssue(ctx, issue.ID)
}

// allowedUpdateFields is the fixed set of updatable columns. It doubles
// as an injection guard for the generated SET clause.
var allowedUpdateFields = map[string]bool{
	"title":               true,
	"description":         true,
	"design":              true,
	"acceptance_criteria": true,
	"notes":               true,
	"status":              true,
	"priority":            true,
	"issue_type":          true,
	"assignee":            true,
}

// normalizeUpdateValue coerces an update value for the named column to
// its database representation plus the stringified form recorded in
// events. Numeric fields are stringified with strconv.
func normalizeUpdateValue(field string, value interface{}) (interface{}, string, error) {
	switch field {
	case "priority":
		priority, ok := value.(int)
		if !ok {
			return nil, "", fmt.Errorf("priority must be an int (got %T)", value)
		}
		if priority < types.PriorityCritical || priority > types.PriorityLow {
			return nil, "", fmt.Errorf("priority must be between 0 and 3 (got %d)", priority)
		}
		return priority, strconv.Itoa(priority), nil

	case "status":
		str, err := stringValue(field, value)
		if err != nil {
			return nil, "", err
		}
		if !types.Status(str).IsValid() {
			return nil, "", fmt.Errorf("invalid status: %s", str)
		}
		return str, str, nil

	case "issue_type":
		str, err := stringValue(field, value)
		if err != nil {
			return nil, "", err
		}
		if !types.IssueType(str).IsValid() {
			return nil, "", fmt.Errorf("invalid issue type: %s", str)
		}
		return str, str, nil

	case "title":
		str, err := stringValue(field, value)
		if err != nil {
			return nil, "", err
		}
		if len(str) == 0 || len(str) > 500 {
			return nil, "", fmt.Errorf("title must be 1-500 characters")
		}
		return str, str, nil

	default:
		str, err := stringValue(field, value)
		if err != nil {
			return nil, "", err
		}
		return str, str, nil
	}
}

func stringValue(field string, value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case types.Status:
		return string(v), nil
	case types.IssueType:
		return string(v), nil
	default:
		return "", fmt.Errorf("%s must be a string (got %T)", field, value)
	}
}

// currentFieldValue returns the stringified current value of an
// updatable column, for diffing and event old_value recording.
func currentFieldValue(issue *types.Issue, field string) string {
	switch field {
	case "title":
		return issue.Title
	case "description":
		return issue.Description
	case "design":
		return issue.Design
	case "acceptance_criteria":
		return issue.AcceptanceCriteria
	case "notes":
		return issue.Notes
	case "status":
		return string(issue.Status)
	case "priority":
		return strconv.Itoa(issue.Priority)
	case "issue_type":
		return string(issue.IssueType)
	case "assignee":
		return issue.Assignee
	}
	return ""
}

// fieldChange is one staged column update and its audit event payload
type fieldChange struct {
	field    string
	dbValue  interface{}
	oldValue string
	newValue string
}

// UpdateIssue applies a field-by-field diff to an issue. Each changed
// field produces one "<field>_changed" event; a payload identical to
// the current row is a pure no-op (no write, no events, updated_at
// untouched). Returns (nil, nil) when the issue is absent or deleted.
func (s *SQLiteStorage) UpdateIssue(ctx context.Context, id string, updates map[string]interface{}, actor string) (*types.Issue, error) {
	// Validate field names and values before touching the store
	changesIn := make([]fieldChange, 0, len(updates))
	for field, value := range updates {
		if !allowedUpdateFields[field] {
			return nil, fmt.Errorf("invalid field for update: %s", field)
		}
		dbValue, str, err := normalizeUpdateValue(field, value)
		if err != nil {
			return nil, err
		}
		changesIn = append(changesIn, fieldChange{field: field, dbValue: dbValue, newValue: str})
	}

	notFound := false
	err := s.inTransaction(ctx, func(conn *sql.Conn) error {
		old, err := getLiveIssueConn(ctx, conn, id)
		if err != nil {
			return err
		}
		if old == nil {
			notFound = true
			return nil
		}

		// Diff against the current row; unchanged fields are dropped
		var changes []fieldChange
		for _, c := range changesIn {
			c.oldValue = currentFieldValue(old, c.field)
			if c.oldValue == c.newValue {
				continue
			}
			changes = append(changes, c)
		}
		if len(changes) == 0 {
			return nil
		}

		now := time.Now()
		setClauses := []string{"updated_at = ?"}
		args := []interface{}{now}
		for _, c := range changes {
			setClauses = append(setClauses, fmt.Sprintf("%s = ?", c.field))
			args = append(args, c.dbValue)

			// Keep the closed_at invariant when status moves across the
			// closed boundary.
			if c.field == "status" {
				if c.newValue == string(types.StatusClosed) {
					setClauses = append(setClauses, "closed_at = ?")
					args = append(args, now)
				} else if old.Status == types.StatusClosed {
					setClauses = append(setClauses, "closed_at = NULL", "close_reason = ''")
				}
			}
		}
		args = append(args, id)

		// #nosec G201 - field names come from the allowedUpdateFields whitelist
		query := fmt.Sprintf("UPDATE issues SET %s WHERE id = ?", strings.Join(setClauses, ", "))
		if _, err := conn.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to update issue: %w", err)
		}

		for _, c := range changes {
			oldValue, newValue := c.oldValue, c.newValue
			if err := insertEventConn(ctx, conn, id, types.FieldChangedEvent(c.field), actor, &oldValue, &newValue, nil); err != nil {
				return err
			}
		}

		return markDirtyConn(ctx, conn, id)
	})
	if err != nil {
		return nil, err
	}
	if notFound {
		return nil, nil
	}

	return s.GetIssue(ctx, id)
}

// CloseIssue closes an issue with a reason. This fires when called: an
// already-closed issue is re-stamped and a fresh "closed" event is
// emitted each time. Returns (nil, nil) when absent or deleted.
func (s *SQLiteStorage) CloseIssue(ctx context.Context, id, reason, actor string) (*types.Issue, error) {
	notFound := false
	err := s.inTransaction(ctx, func(conn *sql.Conn) error {
		old, err := getLiveIssueConn(ctx, conn, id)
		if err != nil {
			return err
		}
		if old == nil {
			notFound = true
			return nil
		}

		now := time.Now()
		_, err = conn.ExecContext(ctx, `
			UPDATE issues SET status = ?, closed_at = ?, close_reason = ?, updated_at = ?
			WHERE id = ?
		`, types.StatusClosed, now, reason, now, id)
		if err != nil {
			return fmt.Errorf("failed to close issue: %w", err)
		}

		oldValue := string(old.Status)
		newValue := string(types.StatusClosed)
		if err := insertEventConn(ctx, conn, id, types.EventClosed, actor, &oldValue, &newValue, &reason); err != nil {
			return err
		}

		return markDirtyConn(ctx, conn, id)
	})
	if err != nil {
		return nil, err
	}
	if notFound {
		return nil, nil
	}

	return s.GetIssue(ctx, id)
}

// ReopenIssue reopens a closed issue. Only valid when the current
// status is exactly closed; otherwise returns (nil, nil).
func (s *SQLiteStorage) ReopenIssue(ctx context.Context, id, actor string) (*types.Issue, error) {
	notFound := false
	err := s.inTransaction(ctx, func(conn *sql.Conn) error {
		old, err := getLiveIssueConn(ctx, conn, id)
		if err != nil {
			return err
		}
		if old == nil || old.Status != types.StatusClosed {
			notFound = true
			return nil
		}

		_, err = conn.ExecContext(ctx, `
			UPDATE issues SET status = ?, closed_at = NULL, close_reason = '', updated_at = ?
			WHERE id = ?
		`, types.StatusOpen, time.Now(), id)
		if err != nil {
			return fmt.Errorf("failed to reopen issue: %w", err)
		}

		oldValue := string(types.StatusClosed)
		newValue := string(types.StatusOpen)
		if err := insertEventConn(ctx, conn, id, types.EventReopened, actor, &oldValue, &newValue, nil); err != nil {
			return err
		}

		return markDirtyConn(ctx, conn, id)
	})
	if err != nil {
		return nil, err
	}
	if notFound {
		return nil, nil
	}

	return s.GetIssue(ctx, id)
}

// DeleteIssue soft-deletes an issue: the row stays, stamped with
// deleted_at, the reason, and a snapshot of its type, and disappears
// from all standard reads. Deletion itself emits no event. Returns
// false when the issue does not exist or is already deleted.
func (s *SQLiteStorage) DeleteIssue(ctx context.Context, id, reason string) (bool, error) {
	deleted := false
	err := s.inTransaction(ctx, func(conn *sql.Conn) error {
		old, err := getLiveIssueConn(ctx, conn, id)
		if err != nil {
			return err
		}
		if old == nil {
			return nil
		}

		now := time.Now()
		_, err = conn.ExecContext(ctx, `
			UPDATE issues SET deleted_at = ?, delete_reason = ?, original_type = issue_type, updated_at = ?
			WHERE id = ?
		`, now, reason, now, id)
		if err != nil {
			return fmt.Errorf("failed to delete issue: %w", err)
		}

		deleted = true
		return markDirtyConn(ctx, conn, id)
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// insertEventConn appends one audit event on the transaction's connection
func insertEventConn(ctx context.Context, conn *sql.Conn, issueID string, eventType types.EventType, actor string, oldValue, newValue, comment *string) error {
	_, err := conn.ExecContext(ctx, `
		INSERT INTO events (issue_id, event_type, actor, old_value, new_value, comment)
		VALUES (?, ?, ?, ?, ?, ?)
	`, issueID, eventType, actor, oldValue, newValue, comment)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// markDirtyConn marks issues as changed since the last export
func markDirtyConn(ctx context.Context, conn *sql.Conn, issueIDs ...string) error {
	now := time.Now()
	for _, issueID := range issueIDs {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO dirty_issues (issue_id, marked_at)
			VALUES (?, ?)
			ON CONFLICT (issue_id) DO UPDATE SET marked_at = excluded.marked_at
		`, issueID, now)
		if err != nil {
			return fmt.Errorf("failed to mark issue dirty: %w", err)
		}
	}
	return nil
}
