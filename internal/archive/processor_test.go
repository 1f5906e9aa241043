package archive

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"UB-Client/internal/bulletin"
	"UB-Client/internal/bulletin/bulletintest"
	xerrors "UB-Client/internal/errors"
	"UB-Client/internal/observability/alerting"
	"UB-Client/internal/wallet"

	"github.com/ethereum/go-ethereum/common"
)

func startProcessor(t *testing.T, fetcher PostFetcher, store Store, queue Queue, workers int, opts ...ProcessorOption) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	opts = append([]ProcessorOption{WithWorkerCount(workers)}, opts...)
	processor := NewProcessor(fetcher, store, queue, queue, opts...)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitAll(t *testing.T, service *Service, jobs []*Job) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, job := range jobs {
		if _, err := service.WaitUntilDone(ctx, job.ID, 5*time.Millisecond); err != nil {
			t.Fatalf("job %s did not finish: %v", job.ID, err)
		}
	}
}

func TestProcessorArchivesChainPosts(t *testing.T) {
	chain := bulletintest.New()
	author := common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	chain.SetAlias(author, "Alice")
	total := 40
	for i := 0; i < total; i++ {
		pt := bulletin.PostPublic
		if i%10 == 3 {
			pt = bulletin.PostSubscriptionOnly
		}
		chain.AddPost(bulletintest.Post{Type: pt, Title: fmt.Sprintf("post-%d", i), Author: author, Timestamp: int64(1000 + i)})
	}
	reader, err := bulletin.NewReader(context.Background(), chain)
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}

	store := NewMemoryStore()
	queue := NewMemoryQueue(1024)
	service := NewService(store, queue, WithPostCounter(reader))
	startProcessor(t, reader, store, queue, 8)

	jobs, err := service.Sync(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(jobs) != total {
		t.Fatalf("expected %d jobs, got %d", total, len(jobs))
	}
	waitAll(t, service, jobs)

	stats, err := service.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Records != total || stats.Jobs.Succeeded != total {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.Restricted != 4 {
		t.Fatalf("expected 4 restricted records, got %d", stats.Restricted)
	}
	if stats.HighestIndex != int64(total-1) {
		t.Fatalf("unexpected highest index %d", stats.HighestIndex)
	}

	record, err := service.Post(context.Background(), 5)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if record.Title != "post-5" || record.Author != "Alice" || record.Restricted {
		t.Fatalf("unexpected record: %+v", record)
	}
	restricted, err := service.Post(context.Background(), 13)
	if err != nil {
		t.Fatalf("get restricted record: %v", err)
	}
	if !restricted.Restricted || restricted.Title != "" {
		t.Fatalf("expected restricted record without content: %+v", restricted)
	}
}

type scriptedFetcher struct {
	calls atomic.Int32
	err   error
}

func (f *scriptedFetcher) PostAtIndex(context.Context, uint64) (*bulletin.Post, error) {
	f.calls.Add(1)
	return nil, f.err
}

func TestProcessorDoesNotRetryIndexTooHigh(t *testing.T) {
	fetcher := &scriptedFetcher{err: fmt.Errorf("post 9 of 3: %w", bulletin.ErrIndexTooHigh)}
	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	service := NewService(store, queue, WithMaxRetries(5))
	startProcessor(t, fetcher, store, queue, 2)

	jobs, err := service.Sync(context.Background(), 9, 10)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	waitAll(t, service, jobs)

	job, _ := service.Job(context.Background(), jobs[0].ID)
	if job.Status != StatusFailed || job.ErrorCode != string(bulletin.CodeIndexTooHigh) {
		t.Fatalf("unexpected job state: %+v", job)
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Fatalf("expected a single fetch, got %d", got)
	}
	if _, err := service.Post(context.Background(), 9); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected no record, got %v", err)
	}
}

func TestProcessorRetriesTransientFailures(t *testing.T) {
	fetcher := &scriptedFetcher{err: xerrors.Wrap(xerrors.CodeChainCallFailure, errors.New("i/o timeout"), "ub.postAt failed")}
	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	service := NewService(store, queue, WithMaxRetries(3))
	startProcessor(t, fetcher, store, queue, 1)

	jobs, err := service.Sync(context.Background(), 0, 1)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	waitAll(t, service, jobs)

	if got := fetcher.calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	job, _ := service.Job(context.Background(), jobs[0].ID)
	if job.Attempts != 3 || job.ErrorCode != string(xerrors.CodeChainCallFailure) {
		t.Fatalf("unexpected job state: %+v", job)
	}
}

type alertSink chan alerting.Event

func (s alertSink) Notify(_ context.Context, event alerting.Event) error {
	s <- event
	return nil
}

func TestProcessorAlertsOnExhaustedRetries(t *testing.T) {
	fetcher := &scriptedFetcher{err: xerrors.Wrap(xerrors.CodeChainCallFailure, errors.New("connection refused"), "ub.postAt failed")}
	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	service := NewService(store, queue, WithMaxRetries(2))
	sink := make(alertSink, 4)
	startProcessor(t, fetcher, store, queue, 1, WithAlertDispatcher(sink))

	jobs, err := service.Sync(context.Background(), 4, 5)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}

	select {
	case event := <-sink:
		if event.JobID != jobs[0].ID || event.Index != 4 || event.Code != xerrors.CodeChainCallFailure {
			t.Fatalf("unexpected alert: %+v", event)
		}
		if event.Attempts != 2 || event.Metadata["stage"] != "fetch" {
			t.Fatalf("unexpected alert detail: %+v", event)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no alert emitted")
	}
	if len(sink) != 0 {
		t.Fatalf("expected a single alert, got %d more", len(sink))
	}
}

func TestProcessorSkipsAlertForIndexTooHigh(t *testing.T) {
	fetcher := &scriptedFetcher{err: fmt.Errorf("post 9 of 3: %w", bulletin.ErrIndexTooHigh)}
	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	service := NewService(store, queue)
	sink := make(alertSink, 4)
	startProcessor(t, fetcher, store, queue, 1, WithAlertDispatcher(sink))

	jobs, err := service.Sync(context.Background(), 9, 10)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	waitAll(t, service, jobs)

	select {
	case event := <-sink:
		t.Fatalf("unexpected alert: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestProcessorRetriesDoNotWedgeFullQueue(t *testing.T) {
	fetcher := &scriptedFetcher{err: xerrors.Wrap(xerrors.CodeChainCallFailure, errors.New("connection refused"), "ub.postAt failed")}
	store := NewMemoryStore()
	queue := NewMemoryQueue(2)
	service := NewService(store, queue, WithMaxRetries(3))
	startProcessor(t, fetcher, store, queue, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	jobs, err := service.Sync(ctx, 0, 10)
	if err != nil {
		t.Fatalf("sync blocked on a full queue: %v", err)
	}
	if len(jobs) != 10 {
		t.Fatalf("expected 10 jobs, got %d", len(jobs))
	}
	waitAll(t, service, jobs)

	for _, job := range jobs {
		got, err := service.Job(context.Background(), job.ID)
		if err != nil {
			t.Fatalf("job %s: %v", job.ID, err)
		}
		if got.Status != StatusFailed || got.Attempts != 3 {
			t.Fatalf("unexpected job state: %+v", got)
		}
	}
	if got := fetcher.calls.Load(); got != 30 {
		t.Fatalf("expected 30 fetches, got %d", got)
	}
}

func TestProcessorReadsAsSubscribedAccount(t *testing.T) {
	account, err := wallet.Import("b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
	if err != nil {
		t.Fatalf("import account: %v", err)
	}
	author := common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	chain := bulletintest.New()
	chain.AddPost(bulletintest.Post{Type: bulletin.PostPublic, Title: "open", Author: author})
	chain.AddPost(bulletintest.Post{Type: bulletin.PostSubscriptionOnly, Title: "members", Author: author})
	chain.SetSubscribed(account.Address(), true)

	reader, err := bulletin.NewReader(context.Background(), chain)
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	client := bulletin.NewClient(reader, bulletin.WithAccount(account))

	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	service := NewService(store, queue, WithPostCounter(client))
	startProcessor(t, client, store, queue, 2)

	jobs, err := service.Sync(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	waitAll(t, service, jobs)

	record, err := service.Post(context.Background(), 1)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if record.Restricted || record.Title != "members" {
		t.Fatalf("subscribed account should archive the full post: %+v", record)
	}
}
