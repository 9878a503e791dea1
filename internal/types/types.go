// Package types defines the core domain entities shared by all storage backends.
package types

import (
	"fmt"
	"time"
)

// Issue represents a trackable work item
type Issue struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	Design             string     `json:"design,omitempty"`
	AcceptanceCriteria string     `json:"acceptance_criteria,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	Status             Status     `json:"status"`
	Priority           int        `json:"priority"`
	IssueType          IssueType  `json:"issue_type"`
	Assignee           string     `json:"assignee,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	ClosedAt           *time.Time `json:"closed_at,omitempty"`
	CloseReason        string     `json:"close_reason,omitempty"`

	// Soft-delete tombstone. A non-nil DeletedAt hides the row from every
	// standard read; the row itself is never physically removed.
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
	DeleteReason string     `json:"delete_reason,omitempty"`
	OriginalType string     `json:"original_type,omitempty"`

	Labels []string `json:"labels,omitempty"`
}

// NewIssue returns an issue with the standard field defaults applied:
// open status, normal priority, task type, empty text fields. Priority
// zero means critical, so the default cannot be applied from the zero
// value at create time; use this constructor and override what you need.
func NewIssue(title string) *Issue {
	return &Issue{
		Title:     title,
		Status:    StatusOpen,
		Priority:  PriorityNormal,
		IssueType: TypeTask,
	}
}

// Validate checks if the issue has valid field values
func (i *Issue) Validate() error {
	if len(i.Title) == 0 {
		return fmt.Errorf("title is required")
	}
	if len(i.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(i.Title))
	}
	if i.Priority < PriorityCritical || i.Priority > PriorityLow {
		return fmt.Errorf("priority must be between 0 and 3 (got %d)", i.Priority)
	}
	if !i.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", i.Status)
	}
	if !i.IssueType.IsValid() {
		return fmt.Errorf("invalid issue type: %s", i.IssueType)
	}
	if i.Status == StatusClosed && i.ClosedAt == nil {
		return fmt.Errorf("closed issue must have closed_at set")
	}
	if i.Status != StatusClosed && i.ClosedAt != nil {
		return fmt.Errorf("non-closed issue must not have closed_at set")
	}
	return nil
}

// IsDeleted reports whether the issue carries a soft-delete tombstone.
func (i *Issue) IsDeleted() bool {
	return i.DeletedAt != nil
}

// Status represents the current state of an issue
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusClosed     Status = "closed"
)

// IsValid checks if the status value is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusBlocked, StatusClosed:
		return true
	}
	return false
}

// IsActive reports whether an issue in this status still blocks its
// dependents. Closed issues never block.
func (s Status) IsActive() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusBlocked:
		return true
	}
	return false
}

// Priority levels. Stored as integers so they sort naturally.
const (
	PriorityCritical = 0
	PriorityHigh     = 1
	PriorityNormal   = 2
	PriorityLow      = 3
)

// IssueType categorizes the kind of work
type IssueType string

const (
	TypeTask    IssueType = "task"
	TypeBug     IssueType = "bug"
	TypeFeature IssueType = "feature"
	TypeEpic    IssueType = "epic"
	TypeChore   IssueType = "chore"
)

// IsValid checks if the issue type value is valid
func (t IssueType) IsValid() bool {
	switch t {
	case TypeTask, TypeBug, TypeFeature, TypeEpic, TypeChore:
		return true
	}
	return false
}

// Dependency represents a directed, typed edge between two issues.
// The (IssueID, DependsOnID) pair is the identity: at most one edge may
// exist between a pair of issues regardless of type.
type Dependency struct {
	IssueID     string         `json:"issue_id"`
	DependsOnID string         `json:"depends_on_id"`
	Type        DependencyType `json:"type"`
	CreatedAt   time.Time      `json:"created_at"`
	CreatedBy   string         `json:"created_by"`
}

// DependencyType categorizes the relationship
type DependencyType string

const (
	DepBlocks         DependencyType = "blocks"
	DepRelated        DependencyType = "related"
	DepParentChild    DependencyType = "parent-child"
	DepDiscoveredFrom DependencyType = "discovered-from"
)

// IsValid checks if the dependency type value is valid
func (d DependencyType) IsValid() bool {
	switch d {
	case DepBlocks, DepRelated, DepParentChild, DepDiscoveredFrom:
		return true
	}
	return false
}

// Label represents a tag on an issue
type Label struct {
	IssueID string `json:"issue_id"`
	Label   string `json:"label"`
}

// Comment is an append-only note on an issue. The store assigns the
// auto-incrementing ID.
type Comment struct {
	ID        int64     `json:"id"`
	IssueID   string    `json:"issue_id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Event represents an audit trail entry. Events are written in the same
// transaction as the mutation they record and are never edited or deleted.
type Event struct {
	ID        int64     `json:"id"`
	IssueID   string    `json:"issue_id"`
	EventType EventType `json:"event_type"`
	Actor     string    `json:"actor"`
	OldValue  *string   `json:"old_value,omitempty"`
	NewValue  *string   `json:"new_value,omitempty"`
	Comment   *string   `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EventType categorizes audit trail events. Field diffs use the
// "<field>_changed" convention produced by FieldChangedEvent.
type EventType string

const (
	EventCreated         EventType = "created"
	EventClosed          EventType = "closed"
	EventReopened        EventType = "reopened"
	EventDependencyAdded EventType = "dependency_added"
	EventLabelAdded      EventType = "label_added"
	EventLabelRemoved    EventType = "label_removed"
	EventCommented       EventType = "commented"
	EventStatusChanged   EventType = "status_changed"
)

// FieldChangedEvent returns the event type recorded when the named
// column changes through an update, e.g. "priority_changed".
func FieldChangedEvent(field string) EventType {
	return EventType(field + "_changed")
}

// BlockedIssue extends Issue with blocking information
type BlockedIssue struct {
	Issue
	BlockedByCount int      `json:"blocked_by_count"`
	BlockedBy      []string `json:"blocked_by"`
}

// IssueWithRelations bundles an issue with its attached records.
type IssueWithRelations struct {
	Issue        Issue         `json:"issue"`
	Labels       []string      `json:"labels,omitempty"`
	Comments     []*Comment    `json:"comments,omitempty"`
	Events       []*Event      `json:"events,omitempty"`
	Dependencies []*Dependency `json:"dependencies,omitempty"`
	Dependents   []*Dependency `json:"dependents,omitempty"`
}

// Statistics provides aggregate metrics over non-deleted issues.
type Statistics struct {
	TotalIssues      int     `json:"total_issues"`
	OpenIssues       int     `json:"open_issues"`
	InProgressIssues int     `json:"in_progress_issues"`
	BlockedIssues    int     `json:"blocked_issues"`
	ClosedIssues     int     `json:"closed_issues"`
	ReadyIssues      int     `json:"ready_issues"`
	DepBlockedIssues int     `json:"dep_blocked_issues"`
	AverageLeadTime  float64 `json:"average_lead_time_hours"`
}

// SortField is a whitelisted ListIssues sort key.
type SortField string

const (
	SortByCreatedAt SortField = "created_at"
	SortByUpdatedAt SortField = "updated_at"
	SortByPriority  SortField = "priority"
	SortByTitle     SortField = "title"
)

// IsValid checks if the sort field is one of the whitelisted columns
func (f SortField) IsValid() bool {
	switch f {
	case SortByCreatedAt, SortByUpdatedAt, SortByPriority, SortByTitle:
		return true
	}
	return false
}

// SortDirection orders a ListIssues result set.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// IssueFilter is used to filter issue queries. Slice fields match by set
// membership; a single value is a one-element slice. Soft-deleted issues
// are always excluded.
type IssueFilter struct {
	Statuses   []Status
	Priorities []int
	IssueTypes []IssueType
	Assignee   *string
	Labels     []string // issue must carry ALL of these labels

	SortBy        SortField     // default created_at
	SortDirection SortDirection // default desc
	Limit         int           // 0 = no limit
	Offset        int           // 0 = no offset
}

// WorkFilter narrows the ready-work view.
type WorkFilter struct {
	Priority *int
	Assignee *string
	Limit    int
}
