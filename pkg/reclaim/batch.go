package reclaim

import (
	"context"
	"crypto/ed25519"
	"sync"

	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/screamsociety/reclaim/pkg/metrics"
	"github.com/screamsociety/reclaim/pkg/rate"
	syncutil "github.com/screamsociety/reclaim/pkg/sync"
)

const (
	defaultBatchConcurrency = 4
	batchLockStripes        = 64
)

// Batch fans a set of assets out over the pipeline with bounded
// concurrency. Assets are isolated from each other; any single asset's
// failure, including a rejected signature, never aborts its siblings.
type Batch struct {
	log      *logrus.Entry
	pipeline *Pipeline
	sem      *semaphore.Weighted
	locks    *syncutil.StripedLock
}

// NewBatch returns a Batch running at most concurrency assets at a time.
func NewBatch(pipeline *Pipeline, concurrency int64) *Batch {
	if concurrency <= 0 {
		concurrency = defaultBatchConcurrency
	}

	return &Batch{
		log:      logrus.StandardLogger().WithField("type", "reclaim/batch"),
		pipeline: pipeline,
		sem:      semaphore.NewWeighted(concurrency),
		locks:    syncutil.NewStripedLock(batchLockStripes),
	}
}

// Process runs every asset to a terminal result. The returned slice is
// positionally aligned with the input. Bulk work runs at normal priority
// so interactive callers sharing the gate aren't starved.
func (b *Batch) Process(ctx context.Context, assets []AssetRef, signer Signer, destination ed25519.PublicKey, mode Mode) []*TransferResult {
	results := make([]*TransferResult, len(assets))

	var wg sync.WaitGroup
	for i, asset := range assets {
		if err := b.sem.Acquire(ctx, 1); err != nil {
			results[i] = failedResult(asset, ErrorKindSubmissionFailure, err.Error())
			continue
		}

		wg.Add(1)
		go func(i int, asset AssetRef) {
			defer wg.Done()
			defer b.sem.Release(1)

			// Duplicate asset ids in one batch serialize on a striped
			// lock so two attempts never race on the same leaf.
			lock := b.locks.Get(asset.AssetID)
			lock.Lock()
			defer lock.Unlock()

			results[i] = b.pipeline.Process(ctx, asset, signer, destination, mode, rate.PriorityNormal)
		}(i, asset)
	}
	wg.Wait()

	var succeeded int
	for _, result := range results {
		if result.Succeeded() {
			succeeded++
		}
	}
	metrics.RecordCount(ctx, "reclaim/batch/assets", uint64(len(assets)))
	metrics.RecordCount(ctx, "reclaim/batch/succeeded", uint64(succeeded))
	metrics.RecordEvent(ctx, "ReclaimBatch", map[string]interface{}{
		"mode":      mode.String(),
		"assets":    len(assets),
		"succeeded": succeeded,
	})

	b.log.WithFields(logrus.Fields{
		"signer":    base58.Encode(signer.PublicKey()),
		"assets":    len(assets),
		"succeeded": succeeded,
	}).Info("batch complete")

	return results
}
