/**
 * Batch Driver - multi-image processing
 *
 * Runs a set of processing requests either sequentially or in bounded
 * concurrent chunks. A panicking or failing run is recorded in its slot and
 * never takes down its siblings; results keep input order.
 */

package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/epigraphia/inscription-worker/internal/logging"
)

// BatchResult is the per-run outcome slot.
type BatchResult struct {
	RunID   string
	ImageID string
	Success bool
	Error   string
	Result  *ProcessingResult
}

// BatchDriver fans requests over a RunProcessor.
type BatchDriver struct {
	processor     RunProcessor
	maxConcurrent int
	logger        *logging.Logger
}

// NewBatchDriver creates a driver. maxConcurrent below 1 is treated as 1.
func NewBatchDriver(processor RunProcessor, maxConcurrent int) *BatchDriver {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &BatchDriver{
		processor:     processor,
		maxConcurrent: maxConcurrent,
		logger:        logging.NewLogger("BatchDriver"),
	}
}

// ProcessSequential runs the requests one after another.
func (d *BatchDriver) ProcessSequential(ctx context.Context, requests []*ProcessRequest) []BatchResult {
	results := make([]BatchResult, len(requests))
	for i, req := range requests {
		results[i] = d.runOne(ctx, req)
	}
	d.logBatch(results)
	return results
}

// ProcessConcurrent runs the requests in chunks of at most maxConcurrent.
// Each chunk completes before the next one starts.
func (d *BatchDriver) ProcessConcurrent(ctx context.Context, requests []*ProcessRequest) []BatchResult {
	results := make([]BatchResult, len(requests))

	for chunkStart := 0; chunkStart < len(requests); chunkStart += d.maxConcurrent {
		chunkEnd := chunkStart + d.maxConcurrent
		if chunkEnd > len(requests) {
			chunkEnd = len(requests)
		}

		var wg sync.WaitGroup
		for i := chunkStart; i < chunkEnd; i++ {
			wg.Add(1)
			go func(slot int, req *ProcessRequest) {
				defer wg.Done()
				results[slot] = d.runOne(ctx, req)
			}(i, requests[i])
		}
		wg.Wait()
	}

	d.logBatch(results)
	return results
}

// runOne executes one request with panic isolation.
func (d *BatchDriver) runOne(ctx context.Context, req *ProcessRequest) (br BatchResult) {
	br = BatchResult{RunID: req.RunID, ImageID: req.ImageID}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Run panicked", "runID", req.RunID, "panic", r)
			br.Success = false
			br.Error = fmt.Sprintf("panic: %v", r)
			br.Result = nil
		}
	}()

	result, err := d.processor.Process(ctx, req)
	if err != nil {
		br.Error = err.Error()
		return br
	}

	br.Success = true
	br.Result = result
	return br
}

func (d *BatchDriver) logBatch(results []BatchResult) {
	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	d.logger.Info("Batch complete",
		"total", len(results), "succeeded", succeeded, "failed", len(results)-succeeded)
}
