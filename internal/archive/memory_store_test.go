package archive

import (
	"context"
	"errors"
	"testing"

	"UB-Client/internal/bulletin"
	xerrors "UB-Client/internal/errors"
)

func TestMemoryStoreClaimLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	job := &Job{ID: "j1", Index: 7, Status: StatusPending, MaxRetries: 2}
	if err := store.CreateJob(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.CreateJob(ctx, &Job{ID: "j1"}); !errors.Is(err, ErrJobConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	claimed, err := store.Claim(ctx, "j1")
	if err != nil || claimed.Attempts != 1 || claimed.Status != StatusRunning {
		t.Fatalf("unexpected claim: %+v, %v", claimed, err)
	}
	if _, err := store.Claim(ctx, "j1"); !errors.Is(err, ErrJobConflict) {
		t.Fatalf("expected conflict on running job, got %v", err)
	}

	if err := store.MarkFailed(ctx, "j1", xerrors.CodeChainCallFailure, "boom", false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if _, err := store.Claim(ctx, "j1"); err != nil {
		t.Fatalf("retry claim: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "j1", Record{Title: "t"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
	if _, err := store.Claim(ctx, "j1"); !errors.Is(err, ErrJobCompleted) {
		t.Fatalf("expected completed, got %v", err)
	}
	record, err := store.GetRecord(ctx, 7)
	if err != nil || record.Title != "t" || record.Index != 7 || record.ArchivedAt == 0 {
		t.Fatalf("unexpected record: %+v, %v", record, err)
	}
}

func TestMemoryStoreTerminalFailureExhaustsJob(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.CreateJob(ctx, &Job{ID: "j", Status: StatusPending, MaxRetries: 5})
	if _, err := store.Claim(ctx, "j"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.MarkFailed(ctx, "j", bulletin.CodeIndexTooHigh, "index too high", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	job, _ := store.GetJob(ctx, "j")
	if !job.Done() {
		t.Fatalf("terminal failure should finish the job: %+v", job)
	}
	if _, err := store.Claim(ctx, "j"); !errors.Is(err, ErrJobExhausted) {
		t.Fatalf("expected exhausted, got %v", err)
	}
}

func TestMemoryStoreListRecordsWithFilters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	alice := "0x00000000000000000000000000000000000A11cE"
	inputs := []Record{
		{Index: 0, Type: bulletin.PostPublic, Title: "Genesis", AuthorAddress: alice},
		{Index: 1, Restricted: true},
		{Index: 2, Type: bulletin.PostPublic, Title: "Weekly digest", AuthorAddress: "0x0000000000000000000000000000000000000b0b"},
		{Index: 3, Type: bulletin.PostDeleted, AuthorAddress: alice},
	}
	for _, rec := range inputs {
		id := "job-" + string(rune('a'+rec.Index))
		_ = store.CreateJob(ctx, &Job{ID: id, Index: rec.Index, Status: StatusPending, MaxRetries: 1})
		if err := store.MarkSucceeded(ctx, id, rec); err != nil {
			t.Fatalf("store record %d: %v", rec.Index, err)
		}
	}

	all, _ := store.ListRecords(ctx, ListOptions{})
	if len(all) != 4 || all[0].Index != 3 {
		t.Fatalf("expected newest first, got %+v", all)
	}
	asc, _ := store.ListRecords(ctx, buildListOptions([]ListOption{WithSortOrder(SortByIndexAsc), WithLimit(2), WithOffset(1)}))
	if len(asc) != 2 || asc[0].Index != 1 || asc[1].Index != 2 {
		t.Fatalf("unexpected page: %+v", asc)
	}
	byAuthor, _ := store.ListRecords(ctx, buildListOptions([]ListOption{WithAuthor("0x00000000000000000000000000000000000a11ce")}))
	if len(byAuthor) != 2 {
		t.Fatalf("expected 2 records by author, got %d", len(byAuthor))
	}
	restricted, _ := store.ListRecords(ctx, buildListOptions([]ListOption{WithRestricted(true)}))
	if len(restricted) != 1 || restricted[0].Index != 1 {
		t.Fatalf("unexpected restricted list: %+v", restricted)
	}
	ranged, _ := store.ListRecords(ctx, buildListOptions([]ListOption{WithIndexRange(1, 3)}))
	if len(ranged) != 2 {
		t.Fatalf("expected 2 records in range, got %d", len(ranged))
	}
	query, _ := store.ListRecords(ctx, buildListOptions([]ListOption{WithQuery("digest")}))
	if len(query) != 1 || query[0].Index != 2 {
		t.Fatalf("unexpected query result: %+v", query)
	}
	beyond, _ := store.ListRecords(ctx, buildListOptions([]ListOption{WithOffset(10)}))
	if len(beyond) != 0 {
		t.Fatalf("expected empty page, got %d", len(beyond))
	}

	stats, _ := store.Stats(ctx)
	if stats.Records != 4 || stats.Restricted != 1 || stats.Removed != 1 || stats.HighestIndex != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
