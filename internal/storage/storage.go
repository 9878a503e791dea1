// Package storage defines the interface for issue storage backends.
package storage

import (
	"context"
	"database/sql"

	"github.com/tracklet/tracklet/internal/types"
)

// Storage defines the interface for issue storage backends.
//
// Lookup-style operations signal "not found" (including soft-deleted
// issues) with a nil result and a nil error; errors are reserved for
// store failures. Every mutation and its audit events commit as one
// transaction.
type Storage interface {
	// Issues
	CreateIssue(ctx context.Context, issue *types.Issue, actor string) (*types.Issue, error)
	GetIssue(ctx context.Context, id string) (*types.Issue, error)
	GetIssueWithRelations(ctx context.Context, id string) (*types.IssueWithRelations, error)
	UpdateIssue(ctx context.Context, id string, updates map[string]interface{}, actor string) (*types.Issue, error)
	CloseIssue(ctx context.Context, id, reason, actor string) (*types.Issue, error)
	ReopenIssue(ctx context.Context, id, actor string) (*types.Issue, error)
	DeleteIssue(ctx context.Context, id, reason string) (bool, error)
	ListIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error)

	// Dependencies
	AddDependency(ctx context.Context, dep *types.Dependency, actor string) error
	RemoveDependency(ctx context.Context, issueID, dependsOnID string) error
	GetDependencies(ctx context.Context, issueID string) ([]*types.Issue, error)
	GetDependents(ctx context.Context, issueID string) ([]*types.Issue, error)
	GetDependencyRecords(ctx context.Context, issueID string) ([]*types.Dependency, error)
	GetDependentRecords(ctx context.Context, issueID string) ([]*types.Dependency, error)

	// Ready work & blocking
	GetReadyIssues(ctx context.Context, filter types.WorkFilter) ([]*types.Issue, error)
	GetBlockedIssues(ctx context.Context) ([]*types.BlockedIssue, error)

	// Labels
	AddLabel(ctx context.Context, issueID, label, actor string) error
	RemoveLabel(ctx context.Context, issueID, label, actor string) error
	GetLabels(ctx context.Context, issueID string) ([]string, error)

	// Comments
	AddComment(ctx context.Context, issueID, author, text string) (*types.Comment, error)
	GetComments(ctx context.Context, issueID string) ([]*types.Comment, error)

	// Events
	GetEvents(ctx context.Context, issueID string, limit int) ([]*types.Event, error)

	// Statistics
	GetStatistics(ctx context.Context) (*types.Statistics, error)

	// Dirty tracking (for incremental export layers above this library)
	GetDirtyIssues(ctx context.Context) ([]string, error)
	ClearDirtyIssuesByID(ctx context.Context, issueIDs []string) error

	// Export hash tracking
	GetExportHash(ctx context.Context, issueID string) (string, error)
	SetExportHash(ctx context.Context, issueID, contentHash string) error
	ClearAllExportHashes(ctx context.Context) error

	// ID generation
	GetNextChildID(ctx context.Context, parentID string) (string, error)

	// Config
	SetConfig(ctx context.Context, key, value string) error
	GetConfig(ctx context.Context, key string) (string, error)
	GetAllConfig(ctx context.Context) (map[string]string, error)
	DeleteConfig(ctx context.Context, key string) error

	// Metadata (internal state)
	SetMetadata(ctx context.Context, key, value string) error
	GetMetadata(ctx context.Context, key string) (string, error)

	// Lifecycle
	Close() error

	// Database path
	Path() string

	// UnderlyingDB returns the underlying *sql.DB connection.
	// Extensions may create their own tables in the same database;
	// direct access bypasses the soft-delete filter, so use with care.
	UnderlyingDB() *sql.DB
}

// Config holds database configuration
type Config struct {
	Path string // database file path, or ":memory:"
}
