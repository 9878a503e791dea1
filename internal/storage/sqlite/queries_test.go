package sqlite

import (
	"context"
	"testing"

	"github.com/tracklet/tracklet/internal/types"
)

func TestGetIssueNotFound(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	issue, err := store.GetIssue(context.Background(), "test-missing")
	if err != nil {
		t.Fatalf("GetIssue returned error for missing issue: %v", err)
	}
	if issue != nil {
		t.Error("GetIssue for missing issue should return nil")
	}
}

func TestGetIssueWithRelations(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	issue := mustCreate(t, store, "Hub")
	blocker := mustCreate(t, store, "Blocker")
	dependent := mustCreate(t, store, "Dependent")

	addBlocker(t, store, issue.ID, blocker.ID)
	addBlocker(t, store, dependent.ID, issue.ID)
	if err := store.AddLabel(ctx, issue.ID, "core", "test-user"); err != nil {
		t.Fatalf("AddLabel failed: %v", err)
	}
	if _, err := store.AddComment(ctx, issue.ID, "alice", "on it"); err != nil {
		t.Fatalf("AddComment failed: %v", err)
	}

	full, err := store.GetIssueWithRelations(ctx, issue.ID)
	if err != nil {
		t.Fatalf("GetIssueWithRelations failed: %v", err)
	}
	if full == nil {
		t.Fatal("GetIssueWithRelations returned nil for a live issue")
	}

	if full.Issue.ID != issue.ID {
		t.Errorf("issue ID = %s", full.Issue.ID)
	}
	if len(full.Labels) != 1 || full.Labels[0] != "core" {
		t.Errorf("labels = %v", full.Labels)
	}
	if len(full.Comments) != 1 {
		t.Errorf("got %d comments, want 1", len(full.Comments))
	}
	// created + dependency_added + label_added + commented
	if len(full.Events) != 4 {
		t.Errorf("got %d events, want 4", len(full.Events))
	}
	if len(full.Dependencies) != 1 || full.Dependencies[0].DependsOnID != blocker.ID {
		t.Errorf("dependencies = %v", full.Dependencies)
	}
	if len(full.Dependents) != 1 || full.Dependents[0].IssueID != dependent.ID {
		t.Errorf("dependents = %v", full.Dependents)
	}

	missing, err := store.GetIssueWithRelations(ctx, "test-missing")
	if err != nil || missing != nil {
		t.Errorf("GetIssueWithRelations for missing = (%v, %v), want (nil, nil)", missing, err)
	}
}

func TestListIssuesFilters(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	bug := types.NewIssue("Login broken")
	bug.IssueType = types.TypeBug
	bug.Priority = types.PriorityCritical
	bug.Assignee = "alice"
	bug.Labels = []string{"auth", "backend"}
	if _, err := store.CreateIssue(ctx, bug, "test-user"); err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}

	feature := types.NewIssue("Dark mode")
	feature.IssueType = types.TypeFeature
	feature.Labels = []string{"frontend"}
	if _, err := store.CreateIssue(ctx, feature, "test-user"); err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}

	chore := mustCreate(t, store, "Rotate credentials")
	if _, err := store.CloseIssue(ctx, chore.ID, "done", "test-user"); err != nil {
		t.Fatalf("CloseIssue failed: %v", err)
	}

	tests := []struct {
		name   string
		filter types.IssueFilter
		want   int
	}{
		{"no filter", types.IssueFilter{}, 3},
		{"by status", types.IssueFilter{Statuses: []types.Status{types.StatusClosed}}, 1},
		{"by multiple statuses", types.IssueFilter{Statuses: []types.Status{types.StatusOpen, types.StatusClosed}}, 3},
		{"by priority", types.IssueFilter{Priorities: []int{types.PriorityCritical}}, 1},
		{"by type", types.IssueFilter{IssueTypes: []types.IssueType{types.TypeBug, types.TypeFeature}}, 2},
		{"by assignee", types.IssueFilter{Assignee: strPtr("alice")}, 1},
		{"by absent assignee", types.IssueFilter{Assignee: strPtr("bob")}, 0},
		{"by one label", types.IssueFilter{Labels: []string{"auth"}}, 1},
		{"by all labels", types.IssueFilter{Labels: []string{"auth", "backend"}}, 1},
		{"by conflicting labels", types.IssueFilter{Labels: []string{"auth", "frontend"}}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues, err := store.ListIssues(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListIssues failed: %v", err)
			}
			if len(issues) != tt.want {
				t.Errorf("got %d issues, want %d", len(issues), tt.want)
			}
		})
	}
}

func TestListIssuesRejectsInvalidFilter(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	if _, err := store.ListIssues(ctx, types.IssueFilter{
		Statuses: []types.Status{"paused"},
	}); err == nil {
		t.Error("invalid status in filter should be rejected")
	}

	if _, err := store.ListIssues(ctx, types.IssueFilter{
		SortBy: "id; DROP TABLE issues",
	}); err == nil {
		t.Error("invalid sort field should be rejected")
	}

	if _, err := store.ListIssues(ctx, types.IssueFilter{
		SortDirection: "sideways",
	}); err == nil {
		t.Error("invalid sort direction should be rejected")
	}
}

func TestListIssuesSortAndPagination(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	for i, title := range []string{"First", "Second", "Third"} {
		issue := types.NewIssue(title)
		issue.Priority = 2 - (i % 2) // priorities 2, 1, 2
		if _, err := store.CreateIssue(ctx, issue, "test-user"); err != nil {
			t.Fatalf("CreateIssue failed: %v", err)
		}
	}

	// Default sort is created_at descending: newest first
	issues, err := store.ListIssues(ctx, types.IssueFilter{})
	if err != nil {
		t.Fatalf("ListIssues failed: %v", err)
	}
	if issues[0].Title != "Third" || issues[2].Title != "First" {
		t.Errorf("default order = %v", titles(issues))
	}

	issues, _ = store.ListIssues(ctx, types.IssueFilter{
		SortBy:        types.SortByCreatedAt,
		SortDirection: types.SortAsc,
	})
	if issues[0].Title != "First" {
		t.Errorf("ascending order = %v", titles(issues))
	}

	issues, _ = store.ListIssues(ctx, types.IssueFilter{
		SortBy:        types.SortByPriority,
		SortDirection: types.SortAsc,
	})
	if issues[0].Priority != 1 {
		t.Errorf("priority order = %v", titles(issues))
	}

	// Pagination slices the default ordering
	issues, _ = store.ListIssues(ctx, types.IssueFilter{Limit: 2})
	if len(issues) != 2 {
		t.Fatalf("limit 2 returned %d issues", len(issues))
	}
	issues, _ = store.ListIssues(ctx, types.IssueFilter{Limit: 2, Offset: 2})
	if len(issues) != 1 || issues[0].Title != "First" {
		t.Errorf("page 2 = %v", titles(issues))
	}

	// Offset works without a limit
	issues, _ = store.ListIssues(ctx, types.IssueFilter{Offset: 1})
	if len(issues) != 2 {
		t.Errorf("offset without limit returned %d issues", len(issues))
	}
}

func TestGetEventsLimit(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	issue := mustCreate(t, store, "Busy")

	for _, assignee := range []string{"alice", "bob", "carol"} {
		if _, err := store.UpdateIssue(ctx, issue.ID, map[string]interface{}{
			"assignee": assignee,
		}, "test-user"); err != nil {
			t.Fatalf("UpdateIssue failed: %v", err)
		}
	}

	all, err := store.GetEvents(ctx, issue.ID, 0)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("got %d events, want 4", len(all))
	}
	// Newest first, created last
	if all[len(all)-1].EventType != types.EventCreated {
		t.Errorf("oldest event = %s, want created", all[len(all)-1].EventType)
	}
	if *all[0].NewValue != "carol" {
		t.Errorf("newest event new_value = %q, want carol", *all[0].NewValue)
	}

	limited, _ := store.GetEvents(ctx, issue.ID, 2)
	if len(limited) != 2 {
		t.Errorf("limit 2 returned %d events", len(limited))
	}
}

func TestGetStatistics(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	open := mustCreate(t, store, "Open one")
	blocker := mustCreate(t, store, "Open two")
	addBlocker(t, store, open.ID, blocker.ID)

	inProgress := mustCreate(t, store, "Working")
	if _, err := store.UpdateIssue(ctx, inProgress.ID, map[string]interface{}{
		"status": "in_progress",
	}, "test-user"); err != nil {
		t.Fatalf("UpdateIssue failed: %v", err)
	}

	done := mustCreate(t, store, "Done")
	if _, err := store.CloseIssue(ctx, done.ID, "shipped", "test-user"); err != nil {
		t.Fatalf("CloseIssue failed: %v", err)
	}

	gone := mustCreate(t, store, "Gone")
	if _, err := store.DeleteIssue(ctx, gone.ID, "noise"); err != nil {
		t.Fatalf("DeleteIssue failed: %v", err)
	}

	stats, err := store.GetStatistics(ctx)
	if err != nil {
		t.Fatalf("GetStatistics failed: %v", err)
	}

	// Deleted issues are excluded from every count
	if stats.TotalIssues != 4 {
		t.Errorf("total = %d, want 4", stats.TotalIssues)
	}
	if stats.OpenIssues != 2 {
		t.Errorf("open = %d, want 2", stats.OpenIssues)
	}
	if stats.InProgressIssues != 1 {
		t.Errorf("in_progress = %d, want 1", stats.InProgressIssues)
	}
	if stats.ClosedIssues != 1 {
		t.Errorf("closed = %d, want 1", stats.ClosedIssues)
	}
	if stats.DepBlockedIssues != 1 {
		t.Errorf("dep_blocked = %d, want 1", stats.DepBlockedIssues)
	}
	// blocker is the only open unblocked issue
	if stats.ReadyIssues != 1 {
		t.Errorf("ready = %d, want 1", stats.ReadyIssues)
	}
	if stats.AverageLeadTime < 0 {
		t.Errorf("lead time = %f", stats.AverageLeadTime)
	}
}

func strPtr(s string) *string {
	return &s
}

func titles(issues []*types.Issue) []string {
	out := make([]string, len(issues))
	for i, issue := range issues {
		out[i] = issue.Title
	}
	return out
}
