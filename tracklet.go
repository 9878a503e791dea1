// Package tracklet provides the public API of the issue-tracking
// persistence layer: an embedded SQLite store with an event-sourced
// audit trail, a typed dependency graph, and readiness queries over it.
//
// Tools embedding tracklet should go through this package; the
// internal packages are not part of the supported surface.
package tracklet

import (
	"os"
	"path/filepath"

	"github.com/tracklet/tracklet/internal/config"
	"github.com/tracklet/tracklet/internal/storage"
	"github.com/tracklet/tracklet/internal/storage/sqlite"
	"github.com/tracklet/tracklet/internal/types"
)

// Core types for working with issues
type (
	Issue              = types.Issue
	IssueWithRelations = types.IssueWithRelations
	Status             = types.Status
	IssueType          = types.IssueType
	Dependency         = types.Dependency
	DependencyType     = types.DependencyType
	BlockedIssue       = types.BlockedIssue
	Comment            = types.Comment
	Event              = types.Event
	EventType          = types.EventType
	Statistics         = types.Statistics
	IssueFilter        = types.IssueFilter
	WorkFilter         = types.WorkFilter
)

// Status constants
const (
	StatusOpen       = types.StatusOpen
	StatusInProgress = types.StatusInProgress
	StatusBlocked    = types.StatusBlocked
	StatusClosed     = types.StatusClosed
)

// IssueType constants
const (
	TypeTask    = types.TypeTask
	TypeBug     = types.TypeBug
	TypeFeature = types.TypeFeature
	TypeEpic    = types.TypeEpic
	TypeChore   = types.TypeChore
)

// DependencyType constants
const (
	DepBlocks         = types.DepBlocks
	DepRelated        = types.DepRelated
	DepParentChild    = types.DepParentChild
	DepDiscoveredFrom = types.DepDiscoveredFrom
)

// NewIssue returns an issue with the standard defaults applied
// (open, normal priority, task).
func NewIssue(title string) *Issue {
	return types.NewIssue(title)
}

// Storage is the full persistence interface
type Storage = storage.Storage

// Open opens (creating if necessary) a tracklet SQLite database at the
// given path. Use ":memory:" for an ephemeral store.
func Open(dbPath string) (Storage, error) {
	return sqlite.New(dbPath)
}

// Actor returns the identity recorded on audit events, from the
// TRACKLET_ACTOR environment variable, the config file, or $USER.
func Actor() string {
	return config.Actor()
}

// FindDatabasePath discovers the database path using the standard
// search order:
//  1. TRACKLET_DB environment variable (or the config file's db key)
//  2. .tracklet/*.db in the current directory or an ancestor
//  3. ~/.tracklet/default.db, if it exists
//
// Returns empty string when nothing is found.
func FindDatabasePath() string {
	if configured := config.DBPath(); configured != "" {
		return configured
	}

	if found := findDatabaseInTree(); found != "" {
		return found
	}

	if home, err := os.UserHomeDir(); err == nil {
		defaultDB := filepath.Join(home, ".tracklet", "default.db")
		if _, err := os.Stat(defaultDB); err == nil {
			return defaultDB
		}
	}

	return ""
}

// findDatabaseInTree walks up the directory tree looking for .tracklet/*.db
func findDatabaseInTree() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		trackletDir := filepath.Join(dir, ".tracklet")
		if info, err := os.Stat(trackletDir); err == nil && info.IsDir() {
			matches, err := filepath.Glob(filepath.Join(trackletDir, "*.db"))
			if err == nil && len(matches) > 0 {
				return matches[0]
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
