package rpc

import (
	"context"
	"sync"
	"time"

	"github.com/kloudmate/header-resolver/detector"
)

// BatchLogger is the subset of domain events the push loop emits.
type BatchLogger interface {
	RPCBatchQueued(batchSize, queueSize int)
	RPCBatchSending(count int, reason string)
}

// SendDataToUpdater drains the resolver queue and pushes resolutions in
// batches until ctx is done, then flushes what is left. The caller must have
// called wg.Add(1).
func SendDataToUpdater(ctx context.Context, wg *sync.WaitGroup, hr *detector.HeaderResolver, logger BatchLogger, flushInterval time.Duration) {
	defer wg.Done()
	var batch []detector.Resolution
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case result := <-hr.Queue:
			hr.BatchMutex.Lock()
			batch = append(batch, result)
			currentSize := len(batch)
			hr.BatchMutex.Unlock()

			if currentSize >= hr.QueueSize {
				logger.RPCBatchSending(currentSize, "queue_size_threshold_reached")
				hr.SendBatch(ctx, batch)
				batch = nil
			} else {
				logger.RPCBatchQueued(currentSize, hr.QueueSize)
			}
		case <-ctx.Done():
			// Drain whatever was queued before shutdown
			hr.BatchMutex.Lock()
			for drained := false; !drained; {
				select {
				case result := <-hr.Queue:
					batch = append(batch, result)
				default:
					drained = true
				}
			}
			if len(batch) > 0 {
				logger.RPCBatchSending(len(batch), "application_shutdown")
				// ctx is already done; give the final flush its own deadline
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				hr.SendBatch(flushCtx, batch)
				cancel()
			}
			hr.BatchMutex.Unlock()
			if hr.RpcClient != nil {
				hr.RpcClient.Close()
			}
			return
		case <-ticker.C:
			hr.BatchMutex.Lock()
			if len(batch) > 0 {
				logger.RPCBatchSending(len(batch), "periodic_flush_interval")
				hr.SendBatch(ctx, batch)
				batch = nil
			}
			hr.BatchMutex.Unlock()
		}
	}
}
