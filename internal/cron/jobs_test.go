package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/foodsync-backend/internal/sweeper"
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
	"github.com/angelmondragon/foodsync-backend/pkg/logger"
	"github.com/angelmondragon/foodsync-backend/pkg/queue"
)

func TestEnqueueJobPushesPayload(t *testing.T) {
	broker := queue.NewMemoryBroker(3)
	job, err := NewEnqueueJob(EnqueueJobParams{
		Name:      "menu-sync-tick",
		Logger:    logger.Nop(),
		Scheduler: broker,
		Queue:     queue.QueueMenuSync,
		Payload:   queue.MenuSyncPayload{Reason: enums.SyncReasonScheduled},
	})
	if err != nil {
		t.Fatalf("NewEnqueueJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	pending := broker.Pending(queue.QueueMenuSync)
	if len(pending) != 1 {
		t.Fatalf("expected 1 queued job, got %d", len(pending))
	}
	var payload queue.MenuSyncPayload
	if err := pending[0].Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Reason != enums.SyncReasonScheduled || payload.CityID != nil {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestEnqueueJobRequiresQueue(t *testing.T) {
	if _, err := NewEnqueueJob(EnqueueJobParams{Name: "x", Logger: logger.Nop(), Scheduler: queue.NewMemoryBroker(1)}); err == nil {
		t.Fatal("expected error")
	}
}

type fakeSweeper struct {
	err   error
	calls int
}

func (f *fakeSweeper) Sweep(context.Context) (sweeper.Report, error) {
	f.calls++
	return sweeper.Report{sweeper.KindOrder: {Selected: 2, Succeeded: 1, Failed: 1}}, f.err
}

func TestSweeperJobRunsSweep(t *testing.T) {
	fake := &fakeSweeper{}
	job, err := NewSweeperJob(SweeperJobParams{Logger: logger.Nop(), Sweeper: fake})
	if err != nil {
		t.Fatalf("NewSweeperJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fake.calls != 1 {
		t.Fatalf("expected one sweep, got %d", fake.calls)
	}

	fake.err = errors.New("select failed")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

type fakePurger struct {
	cutoff time.Time
	err    error
}

func (f *fakePurger) Purge(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 4, f.err
}

func TestSyncLogRetentionJobUsesCutoff(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	purger := &fakePurger{}
	jobIface, err := NewSyncLogRetentionJob(SyncLogRetentionJobParams{Logger: logger.Nop(), Purger: purger, Retention: 7})
	if err != nil {
		t.Fatalf("NewSyncLogRetentionJob: %v", err)
	}
	job := jobIface.(*syncLogRetentionJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.Add(-7 * 24 * time.Hour); !purger.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, purger.cutoff)
	}

	purger.err = errors.New("boom")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
