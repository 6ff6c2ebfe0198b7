package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/fintrack/receipt-processor/constants"
	"github.com/fintrack/receipt-processor/internal/repository"
)

// BatchResult summarizes one batch run.
type BatchResult struct {
	Total     int
	Succeeded int
	Failed    int
	Duration  time.Duration
	Failures  map[uuid.UUID]string
}

// BatchRunner drains UPLOADED jobs through a bounded worker pool. One job
// failing never aborts the batch.
type BatchRunner struct {
	processor *Processor
	jobs      repository.JobRepository
	poolSize  int
	logger    *slog.Logger
}

func NewBatchRunner(processor *Processor, jobs repository.JobRepository, poolSize int, logger *slog.Logger) *BatchRunner {
	if poolSize <= 0 {
		poolSize = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchRunner{processor: processor, jobs: jobs, poolSize: poolSize, logger: logger}
}

// Run processes up to limit UPLOADED jobs concurrently and waits for all of
// them to finish.
func (b *BatchRunner) Run(ctx context.Context, limit int) (BatchResult, error) {
	start := time.Now()

	pending, err := b.jobs.ListByStatus(ctx, constants.JobStatusUploaded, limit)
	if err != nil {
		return BatchResult{}, fmt.Errorf("list uploaded jobs: %w", err)
	}
	if len(pending) == 0 {
		return BatchResult{Duration: time.Since(start), Failures: map[uuid.UUID]string{}}, nil
	}

	pool, err := ants.NewPool(b.poolSize)
	if err != nil {
		return BatchResult{}, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures = map[uuid.UUID]string{}
	)
	for _, job := range pending {
		job := job
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			if err := b.processor.Process(ctx, job); err != nil {
				mu.Lock()
				failures[job.ID] = err.Error()
				mu.Unlock()
			}
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			failures[job.ID] = fmt.Sprintf("submit to pool: %v", err)
			mu.Unlock()
		}
	}
	wg.Wait()

	res := BatchResult{
		Total:     len(pending),
		Succeeded: len(pending) - len(failures),
		Failed:    len(failures),
		Duration:  time.Since(start),
		Failures:  failures,
	}
	b.logger.Info("pipeline.batch.done",
		"total", res.Total,
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"duration_ms", res.Duration.Milliseconds())
	return res, nil
}
