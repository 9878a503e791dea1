package sqlite

import (
	"context"
	"testing"

	"github.com/tracklet/tracklet/internal/types"
)

func TestGetReadyIssues(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	a := mustCreate(t, store, "Blocked by b")
	b := mustCreate(t, store, "Free")
	addBlocker(t, store, a.ID, b.ID)

	ready, err := store.GetReadyIssues(ctx, types.WorkFilter{})
	if err != nil {
		t.Fatalf("GetReadyIssues failed: %v", err)
	}
	if len(ready) != 1 || ready[0].ID != b.ID {
		t.Fatalf("ready = %v, want only %s", readyIDs(ready), b.ID)
	}

	// Closing the blocker frees the dependent
	if _, err := store.CloseIssue(ctx, b.ID, "done", "test-user"); err != nil {
		t.Fatalf("CloseIssue failed: %v", err)
	}
	ready, _ = store.GetReadyIssues(ctx, types.WorkFilter{})
	if len(ready) != 1 || ready[0].ID != a.ID {
		t.Errorf("ready after close = %v, want only %s", readyIDs(ready), a.ID)
	}
}

func TestReadinessIsOneHop(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	// Chain a -> b -> c with b closed: a is ready even though c is open,
	// because only a's direct blocker is examined.
	a := mustCreate(t, store, "Head")
	b := mustCreate(t, store, "Middle")
	c := mustCreate(t, store, "Tail")
	addBlocker(t, store, a.ID, b.ID)
	addBlocker(t, store, b.ID, c.ID)

	if _, err := store.CloseIssue(ctx, b.ID, "done", "test-user"); err != nil {
		t.Fatalf("CloseIssue failed: %v", err)
	}

	ready, err := store.GetReadyIssues(ctx, types.WorkFilter{})
	if err != nil {
		t.Fatalf("GetReadyIssues failed: %v", err)
	}
	ids := readyIDs(ready)
	if len(ids) != 2 {
		t.Fatalf("ready = %v, want a and c", ids)
	}
	if !containsID(ready, a.ID) || !containsID(ready, c.ID) {
		t.Errorf("ready = %v, want %s and %s", ids, a.ID, c.ID)
	}
}

func TestNonBlockingDependencyTypesDoNotBlock(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	a := mustCreate(t, store, "Related only")
	b := mustCreate(t, store, "Neighbor")

	err := store.AddDependency(ctx, &types.Dependency{
		IssueID:     a.ID,
		DependsOnID: b.ID,
		Type:        types.DepRelated,
	}, "test-user")
	if err != nil {
		t.Fatalf("AddDependency failed: %v", err)
	}

	ready, _ := store.GetReadyIssues(ctx, types.WorkFilter{})
	if !containsID(ready, a.ID) {
		t.Error("a related edge should not block readiness")
	}

	blocked, _ := store.GetBlockedIssues(ctx)
	if len(blocked) != 0 {
		t.Errorf("blocked = %v, want none", blocked)
	}
}

func TestReadyIssuesFilter(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	urgent := types.NewIssue("Urgent")
	urgent.Priority = types.PriorityCritical
	urgent.Assignee = "alice"
	if _, err := store.CreateIssue(ctx, urgent, "test-user"); err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}

	later := types.NewIssue("Later")
	later.Priority = types.PriorityLow
	if _, err := store.CreateIssue(ctx, later, "test-user"); err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}

	p := types.PriorityCritical
	ready, err := store.GetReadyIssues(ctx, types.WorkFilter{Priority: &p})
	if err != nil {
		t.Fatalf("GetReadyIssues failed: %v", err)
	}
	if len(ready) != 1 || ready[0].Title != "Urgent" {
		t.Errorf("priority filter returned %v", readyIDs(ready))
	}

	assignee := "alice"
	ready, _ = store.GetReadyIssues(ctx, types.WorkFilter{Assignee: &assignee})
	if len(ready) != 1 || ready[0].Title != "Urgent" {
		t.Errorf("assignee filter returned %v", readyIDs(ready))
	}

	ready, _ = store.GetReadyIssues(ctx, types.WorkFilter{Limit: 1})
	if len(ready) != 1 {
		t.Errorf("limit 1 returned %d issues", len(ready))
	}
	// Priority sorts ascending: critical first
	if ready[0].Title != "Urgent" {
		t.Errorf("first ready issue = %q, want Urgent", ready[0].Title)
	}
}

func TestReadinessSurvivesCycles(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	a := mustCreate(t, store, "A")
	b := mustCreate(t, store, "B")
	addBlocker(t, store, a.ID, b.ID)
	addBlocker(t, store, b.ID, a.ID)

	// Both are blocked, neither ready; the query terminates normally
	ready, err := store.GetReadyIssues(ctx, types.WorkFilter{})
	if err != nil {
		t.Fatalf("GetReadyIssues failed: %v", err)
	}
	if len(ready) != 0 {
		t.Errorf("ready in a cycle = %v, want none", readyIDs(ready))
	}

	blocked, err := store.GetBlockedIssues(ctx)
	if err != nil {
		t.Fatalf("GetBlockedIssues failed: %v", err)
	}
	if len(blocked) != 2 {
		t.Errorf("got %d blocked issues in a cycle, want 2", len(blocked))
	}
}

func TestBlockedCountsInChain(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	// a -> b -> c, everything open: a and b each report one direct
	// blocker; b's own blocked state does not inflate a's count.
	a := mustCreate(t, store, "Head")
	b := mustCreate(t, store, "Middle")
	c := mustCreate(t, store, "Tail")
	addBlocker(t, store, a.ID, b.ID)
	addBlocker(t, store, b.ID, c.ID)

	blocked, err := store.GetBlockedIssues(ctx)
	if err != nil {
		t.Fatalf("GetBlockedIssues failed: %v", err)
	}
	if len(blocked) != 2 {
		t.Fatalf("got %d blocked issues, want 2", len(blocked))
	}
	for _, bi := range blocked {
		if bi.ID == c.ID {
			t.Errorf("%s has no blockers but is reported blocked", c.ID)
		}
		if bi.BlockedByCount != 1 {
			t.Errorf("%s blocked_by_count = %d, want 1", bi.ID, bi.BlockedByCount)
		}
	}
}

func TestGetBlockedIssues(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	a := mustCreate(t, store, "Doubly blocked")
	b := mustCreate(t, store, "Blocker one")
	c := mustCreate(t, store, "Blocker two")
	addBlocker(t, store, a.ID, b.ID)
	addBlocker(t, store, a.ID, c.ID)

	blocked, err := store.GetBlockedIssues(ctx)
	if err != nil {
		t.Fatalf("GetBlockedIssues failed: %v", err)
	}
	if len(blocked) != 1 {
		t.Fatalf("got %d blocked issues, want 1", len(blocked))
	}
	if blocked[0].ID != a.ID {
		t.Errorf("blocked issue = %s, want %s", blocked[0].ID, a.ID)
	}
	if blocked[0].BlockedByCount != 2 {
		t.Errorf("blocked_by_count = %d, want 2", blocked[0].BlockedByCount)
	}
	if len(blocked[0].BlockedBy) != 2 {
		t.Errorf("blocked_by = %v, want both blockers", blocked[0].BlockedBy)
	}

	// Closing one blocker halves the count
	if _, err := store.CloseIssue(ctx, b.ID, "done", "test-user"); err != nil {
		t.Fatalf("CloseIssue failed: %v", err)
	}
	blocked, _ = store.GetBlockedIssues(ctx)
	if len(blocked) != 1 || blocked[0].BlockedByCount != 1 {
		t.Errorf("after closing one blocker: %v", blocked)
	}
	if len(blocked[0].BlockedBy) != 1 || blocked[0].BlockedBy[0] != c.ID {
		t.Errorf("blocked_by = %v, want [%s]", blocked[0].BlockedBy, c.ID)
	}
}

func TestDeletedBlockerDoesNotBlock(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	a := mustCreate(t, store, "Dependent")
	b := mustCreate(t, store, "Vanishing blocker")
	addBlocker(t, store, a.ID, b.ID)

	if _, err := store.DeleteIssue(ctx, b.ID, "mistake"); err != nil {
		t.Fatalf("DeleteIssue failed: %v", err)
	}

	ready, _ := store.GetReadyIssues(ctx, types.WorkFilter{})
	if !containsID(ready, a.ID) {
		t.Error("a soft-deleted blocker should not block")
	}
}

func readyIDs(issues []*types.Issue) []string {
	ids := make([]string, len(issues))
	for i, issue := range issues {
		ids[i] = issue.ID
	}
	return ids
}

func containsID(issues []*types.Issue, id string) bool {
	for _, issue := range issues {
		if issue.ID == id {
			return true
		}
	}
	return false
}
