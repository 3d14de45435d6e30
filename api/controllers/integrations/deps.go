package integrations

import (
	"context"

	"github.com/angelmondragon/foodsync-backend/internal/sweeper"
	"github.com/angelmondragon/foodsync-backend/internal/synclog"
	"github.com/angelmondragon/foodsync-backend/pkg/pagination"
	"github.com/angelmondragon/foodsync-backend/pkg/queue"
)

// ConnectionTester is the credential probe both platform clients expose.
type ConnectionTester interface {
	TestConnection(ctx context.Context) error
}

// QueueAdmin is the broker surface the queue endpoints need.
type QueueAdmin interface {
	queue.Scheduler
	Stats(ctx context.Context, queue string) (queue.Stats, error)
	RetryFailed(ctx context.Context, queue string) (int, error)
}

type SyncLogReader interface {
	List(ctx context.Context, filter synclog.Filter, params pagination.Params) (*synclog.ListResult, error)
}

type EntityRetrier interface {
	Retry(ctx context.Context, kind sweeper.Kind, id int64) error
}
