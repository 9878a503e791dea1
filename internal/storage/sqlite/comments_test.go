package sqlite

import (
	"context"
	"testing"

	"github.com/tracklet/tracklet/internal/types"
)

func TestAddComment(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	issue := mustCreate(t, store, "Discussed")

	comment, err := store.AddComment(ctx, issue.ID, "alice", "looks good to me")
	if err != nil {
		t.Fatalf("AddComment failed: %v", err)
	}
	if comment.ID == 0 {
		t.Error("comment ID should be assigned")
	}
	if comment.Author != "alice" || comment.Text != "looks good to me" {
		t.Errorf("comment = %+v", comment)
	}

	comments, err := store.GetComments(ctx, issue.ID)
	if err != nil {
		t.Fatalf("GetComments failed: %v", err)
	}
	if len(comments) != 1 || comments[0].Text != "looks good to me" {
		t.Errorf("comments = %v", comments)
	}

	// Commenting is audited
	events, _ := store.GetEvents(ctx, issue.ID, 1)
	if len(events) != 1 || events[0].EventType != types.EventCommented {
		t.Fatalf("newest event should be commented, got %v", events)
	}
	if events[0].Comment == nil || *events[0].Comment != "looks good to me" {
		t.Errorf("event comment = %v", events[0].Comment)
	}

	// Commenting bumps the issue's updated_at
	after, _ := store.GetIssue(ctx, issue.ID)
	if !after.UpdatedAt.After(issue.UpdatedAt) {
		t.Error("comment should bump updated_at")
	}
}

func TestGetCommentsOrder(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	issue := mustCreate(t, store, "Discussed")

	for _, text := range []string{"first", "second", "third"} {
		if _, err := store.AddComment(ctx, issue.ID, "alice", text); err != nil {
			t.Fatalf("AddComment(%s) failed: %v", text, err)
		}
	}

	comments, err := store.GetComments(ctx, issue.ID)
	if err != nil {
		t.Fatalf("GetComments failed: %v", err)
	}
	if len(comments) != 3 {
		t.Fatalf("got %d comments, want 3", len(comments))
	}
	// Oldest first
	want := []string{"first", "second", "third"}
	for i := range want {
		if comments[i].Text != want[i] {
			t.Errorf("comment %d = %q, want %q", i, comments[i].Text, want[i])
		}
	}
}

func TestAddCommentRequiresLiveIssue(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	if _, err := store.AddComment(ctx, "test-missing", "alice", "hello?"); err == nil {
		t.Error("commenting on a missing issue should fail")
	}

	issue := mustCreate(t, store, "Doomed")
	if _, err := store.DeleteIssue(ctx, issue.ID, "cleanup"); err != nil {
		t.Fatalf("DeleteIssue failed: %v", err)
	}
	if _, err := store.AddComment(ctx, issue.ID, "alice", "anyone?"); err == nil {
		t.Error("commenting on a deleted issue should fail")
	}
}
