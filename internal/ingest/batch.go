package ingest

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"loft/internal/logging"
)

// BatchItem pairs one request with its terminal outcome.
type BatchItem struct {
	Request Request
	Result  *Result
	Err     error
}

// Batch runs several lifecycles concurrently. They share the transport
// slot budget and the encoder reference, so raising concurrency here
// never oversubscribes either.
type Batch struct {
	deps        Deps
	concurrency int
	logger      *slog.Logger
}

// NewBatch builds a batch runner. Concurrency below one runs the items
// sequentially.
func NewBatch(deps Deps, concurrency int) *Batch {
	if concurrency < 1 {
		concurrency = 1
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Batch{
		deps:        deps,
		concurrency: concurrency,
		logger:      logging.NewComponentLogger(logger, "ingest-batch"),
	}
}

// Run ingests every request and returns one item per request in input
// order. Individual failures do not stop the batch; the per-item error
// is recorded and the rest continue. onStart, when non-nil, is called
// with each lifecycle before its run begins so the caller can wire
// decisions and cancellation.
func (b *Batch) Run(ctx context.Context, requests []Request, onStart func(index int, lc *Lifecycle)) []BatchItem {
	items := make([]BatchItem, len(requests))

	var group errgroup.Group
	group.SetLimit(b.concurrency)
	for i, req := range requests {
		items[i].Request = req
		group.Go(func() error {
			lc := NewLifecycle(b.deps, req)
			if onStart != nil {
				onStart(i, lc)
			}
			result, err := lc.Run(ctx)
			items[i].Result = result
			items[i].Err = err
			if err != nil {
				b.logger.Warn("batch item did not persist",
					logging.String("path", req.Path),
					logging.Error(err))
			}
			return nil
		})
	}
	_ = group.Wait()
	return items
}
