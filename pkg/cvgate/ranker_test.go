package cvgate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/resumeforge/cvgate/pkg/cvgate"
	"github.com/resumeforge/cvgate/storage/memory"
)

func newTestRanker(t *testing.T) (*cvgate.Ranker, *memory.Store) {
	t.Helper()
	resolver, store := newTestResolver(t)
	return cvgate.NewRanker(store, resolver), store
}

func TestRankAll_NewestFirst(t *testing.T) {
	ranker, store := newTestRanker(t)
	addDocuments(t, store, "user1", 5, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	ranked, err := ranker.RankAll(context.Background(), "user1")
	if err != nil {
		t.Fatalf("RankAll failed: %v", err)
	}
	if len(ranked) != 5 {
		t.Fatalf("Expected 5 documents, got %d", len(ranked))
	}

	// doc04 is newest, so it ranks first
	wantOrder := []string{"doc04", "doc03", "doc02", "doc01", "doc00"}
	for i, doc := range ranked {
		if doc.ID != wantOrder[i] {
			t.Errorf("Position %d: expected %s, got %s", i+1, wantOrder[i], doc.ID)
		}
		if doc.Position != i+1 {
			t.Errorf("Expected position %d, got %d", i+1, doc.Position)
		}
	}

	// Free plan edits the 3 newest
	for i, doc := range ranked {
		wantEditable := i < 3
		if doc.Editable != wantEditable {
			t.Errorf("%s: expected editable=%v at position %d", doc.ID, wantEditable, doc.Position)
		}
	}
}

func TestRankAll_TimestampTiebreakByID(t *testing.T) {
	ranker, store := newTestRanker(t)
	created := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"doc-b", "doc-a", "doc-c"} {
		err := store.AddDocument(cvgate.DocumentRef{ID: id, OwnerID: "user1", CreatedAt: created})
		if err != nil {
			t.Fatalf("AddDocument failed: %v", err)
		}
	}

	ranked, err := ranker.RankAll(context.Background(), "user1")
	if err != nil {
		t.Fatalf("RankAll failed: %v", err)
	}

	wantOrder := []string{"doc-a", "doc-b", "doc-c"}
	for i, doc := range ranked {
		if doc.ID != wantOrder[i] {
			t.Errorf("Position %d: expected %s, got %s", i+1, wantOrder[i], doc.ID)
		}
	}
}

func TestRank_SingleDocument(t *testing.T) {
	ranker, store := newTestRanker(t)
	addDocuments(t, store, "user1", 5, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	rank, err := ranker.Rank(context.Background(), "user1", "doc01")
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	if rank.Position != 4 {
		t.Errorf("Expected position 4, got %d", rank.Position)
	}
	if rank.Limit != 3 {
		t.Errorf("Expected limit 3, got %d", rank.Limit)
	}
	if rank.Editable {
		t.Error("Position 4 should be read-only at limit 3")
	}

	if _, err := ranker.Rank(context.Background(), "user1", "missing"); !errors.Is(err, cvgate.ErrDocumentNotFound) {
		t.Errorf("Expected ErrDocumentNotFound, got %v", err)
	}
}

func TestRankAll_DowngradeShrinksWindow(t *testing.T) {
	ranker, store := newTestRanker(t)
	subscribe(t, store, "user1", "plan-basic")
	addDocuments(t, store, "user1", 5, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	ranked, err := ranker.RankAll(context.Background(), "user1")
	if err != nil {
		t.Fatalf("RankAll failed: %v", err)
	}
	for _, doc := range ranked {
		if !doc.Editable {
			t.Errorf("%s should be editable at limit 10", doc.ID)
		}
	}

	// Cancel the subscription; the user drops to the free window of 3
	err = store.SetSubscription(cvgate.Subscription{
		ID:     "sub-user1",
		UserID: "user1",
		PlanID: "plan-basic",
		Status: cvgate.StatusCancelled,
	})
	if err != nil {
		t.Fatalf("SetSubscription failed: %v", err)
	}

	ranked, err = ranker.RankAll(context.Background(), "user1")
	if err != nil {
		t.Fatalf("RankAll failed: %v", err)
	}
	editable := 0
	for _, doc := range ranked {
		if doc.Editable {
			editable++
		}
	}
	if editable != 3 {
		t.Errorf("Expected 3 editable after downgrade, got %d", editable)
	}
}

func TestSummary(t *testing.T) {
	ranker, store := newTestRanker(t)
	addDocuments(t, store, "user1", 2, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	summary, err := ranker.Summary(context.Background(), "user1")
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if summary.Total != 2 || summary.EditableCount != 2 || summary.ReadOnlyCount != 0 {
		t.Errorf("Unexpected summary: %+v", summary)
	}
	if summary.OverLimit {
		t.Error("Under the limit should not report OverLimit")
	}
	if !summary.CanCreateNew {
		t.Error("Under the limit should allow creation")
	}
}

func TestRankAll_NoDocuments(t *testing.T) {
	ranker, _ := newTestRanker(t)

	ranked, err := ranker.RankAll(context.Background(), "user1")
	if err != nil {
		t.Fatalf("RankAll failed: %v", err)
	}
	if len(ranked) != 0 {
		t.Errorf("Expected empty ranking, got %d", len(ranked))
	}
}
