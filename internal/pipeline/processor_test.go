package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrack/receipt-processor/constants"
	"github.com/fintrack/receipt-processor/internal/common"
	"github.com/fintrack/receipt-processor/internal/config"
	"github.com/fintrack/receipt-processor/internal/entity"
	"github.com/fintrack/receipt-processor/internal/extract"
	"github.com/fintrack/receipt-processor/internal/llm"
)

type fakeJobs struct {
	mu          sync.Mutex
	processing  []uuid.UUID
	extractions map[uuid.UUID]entity.ExtractionResult
	failed      map[uuid.UUID]string
	markErr     error
	uploaded    []*entity.Job
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{
		extractions: map[uuid.UUID]entity.ExtractionResult{},
		failed:      map[uuid.UUID]string{},
	}
}

func (f *fakeJobs) Create(context.Context, *entity.Job) error { return nil }
func (f *fakeJobs) GetByID(context.Context, uuid.UUID, uuid.UUID) (*entity.Job, error) {
	return nil, common.ErrNotFound
}
func (f *fakeJobs) List(context.Context, uuid.UUID, int, int) ([]*entity.Job, error) {
	return nil, nil
}
func (f *fakeJobs) ListByStatus(_ context.Context, status constants.JobStatus, limit int) ([]*entity.Job, error) {
	if status != constants.JobStatusUploaded {
		return nil, nil
	}
	if limit > len(f.uploaded) {
		limit = len(f.uploaded)
	}
	return f.uploaded[:limit], nil
}
func (f *fakeJobs) MarkProcessing(_ context.Context, id uuid.UUID) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processing = append(f.processing, id)
	return nil
}
func (f *fakeJobs) SaveExtraction(_ context.Context, id uuid.UUID, res entity.ExtractionResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extractions[id] = res
	return nil
}
func (f *fakeJobs) MarkFailed(_ context.Context, id uuid.UUID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = message
	return nil
}
func (f *fakeJobs) Reset(context.Context, uuid.UUID, uuid.UUID) error { return nil }
func (f *fakeJobs) Delete(context.Context, uuid.UUID) error { return nil }

type fakeFiles struct {
	content map[uuid.UUID][]byte
}

func (f *fakeFiles) Store(_ context.Context, jobID, _ uuid.UUID, content []byte) error {
	f.content[jobID] = content
	return nil
}
func (f *fakeFiles) Fetch(_ context.Context, jobID, _ uuid.UUID) ([]byte, error) {
	c, ok := f.content[jobID]
	if !ok {
		return nil, common.ErrNotFound
	}
	return c, nil
}
func (f *fakeFiles) Delete(context.Context, uuid.UUID, uuid.UUID) error { return nil }

type fakeTxs struct {
	mu      sync.Mutex
	batches map[uuid.UUID][]*entity.Transaction
	err     error
}

func (f *fakeTxs) CreateBatch(_ context.Context, jobID uuid.UUID, txs []*entity.Transaction, _ string, _ int64) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches[jobID] = txs
	return nil
}
func (f *fakeTxs) GetByID(context.Context, uuid.UUID, uuid.UUID) (*entity.Transaction, error) {
	return nil, common.ErrNotFound
}
func (f *fakeTxs) GetPending(context.Context, uuid.UUID, int) ([]*entity.Transaction, error) {
	return nil, nil
}
func (f *fakeTxs) Approve(context.Context, uuid.UUID, uuid.UUID) error        { return nil }
func (f *fakeTxs) Reject(context.Context, uuid.UUID, uuid.UUID, string) error { return nil }
func (f *fakeTxs) MarkExpenseCreated(context.Context, uuid.UUID, uuid.UUID, string) error {
	return nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []*entity.ProcessingLogEntry
	err     error
}

func (f *fakeAudit) Append(_ context.Context, e *entity.ProcessingLogEntry) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}
func (f *fakeAudit) ListByJob(context.Context, uuid.UUID) ([]*entity.ProcessingLogEntry, error) {
	return f.entries, nil
}
func (f *fakeAudit) PurgeOlderThan(context.Context, time.Time) (int64, error) { return 0, nil }

func (f *fakeAudit) steps(status string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.entries {
		if e.Status == status {
			out = append(out, e.Step)
		}
	}
	return out
}

type fakeExtractor struct {
	res entity.ExtractionResult
	err error
}

func (f *fakeExtractor) Extract(context.Context, extract.Input) (entity.ExtractionResult, error) {
	return f.res, f.err
}

type fakeStructurer struct {
	res entity.StructuringResult
	err error
}

func (f *fakeStructurer) Structure(context.Context, llm.StructureRequest) (entity.StructuringResult, error) {
	return f.res, f.err
}

func pipelineConfig(t *testing.T) config.PipelineConfig {
	return config.PipelineConfig{
		ConcurrentLimit:        2,
		MaxTransactionsPerFile: 5,
		ExtractionTimeout:      5 * time.Second,
		StructuringTimeout:     5 * time.Second,
		ProcessTimeout:         10 * time.Second,
		TempDir:                t.TempDir(),
	}
}

func testJob(t *testing.T) *entity.Job {
	t.Helper()
	job, err := entity.NewJob(uuid.New(), "receipt.txt", []byte("COFFEE HOUSE $4.50"), "txt", "text/plain")
	require.NoError(t, err)
	return job
}

func goodExtraction() entity.ExtractionResult {
	return entity.ExtractionResult{Text: "COFFEE HOUSE $4.50", Confidence: 0.95, Method: "document-parse", Pages: 1}
}

func goodStructuring() entity.StructuringResult {
	return entity.StructuringResult{
		Candidates: []entity.Candidate{{
			Amount:     decimal.NewFromFloat(4.5),
			Currency:   "USD",
			Merchant:   "Coffee House",
			Date:       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			Confidence: 0.9,
		}},
		OverallConfidence: 0.9,
		Provider:          "openai/gpt-4o-mini",
		Duration:          200 * time.Millisecond,
	}
}

func TestProcessorSuccess(t *testing.T) {
	job := testJob(t)
	jobs := newFakeJobs()
	files := &fakeFiles{content: map[uuid.UUID][]byte{job.ID: []byte("COFFEE HOUSE $4.50")}}
	txs := &fakeTxs{batches: map[uuid.UUID][]*entity.Transaction{}}
	audit := &fakeAudit{}

	p := NewProcessor(pipelineConfig(t), jobs, files, txs, audit,
		&fakeExtractor{res: goodExtraction()}, &fakeStructurer{res: goodStructuring()}, nil)

	require.NoError(t, p.Process(context.Background(), job))

	assert.Equal(t, []uuid.UUID{job.ID}, jobs.processing)
	assert.Equal(t, "COFFEE HOUSE $4.50", jobs.extractions[job.ID].Text)
	require.Len(t, txs.batches[job.ID], 1)
	assert.Equal(t, 1, txs.batches[job.ID][0].Seq)
	assert.Empty(t, jobs.failed)

	completed := audit.steps(entity.StepCompleted)
	assert.Contains(t, completed, StepExtract)
	assert.Contains(t, completed, StepStructure)
	assert.Contains(t, completed, StepPersist)
	assert.Contains(t, completed, StepPipeline)
	assert.Empty(t, audit.steps(entity.StepFailed))
}

func TestProcessorExtractionFailure(t *testing.T) {
	job := testJob(t)
	jobs := newFakeJobs()
	files := &fakeFiles{content: map[uuid.UUID][]byte{job.ID: []byte("x")}}
	txs := &fakeTxs{batches: map[uuid.UUID][]*entity.Transaction{}}
	audit := &fakeAudit{}

	p := NewProcessor(pipelineConfig(t), jobs, files, txs, audit,
		&fakeExtractor{err: errors.New("tesseract crashed")}, &fakeStructurer{res: goodStructuring()}, nil)

	err := p.Process(context.Background(), job)
	require.ErrorIs(t, err, common.ErrExtractionFailed)
	assert.Equal(t, "text extraction failed", jobs.failed[job.ID])
	assert.Empty(t, txs.batches)
	assert.Contains(t, audit.steps(entity.StepFailed), StepExtract)
}

func TestProcessorEmptyExtractionFails(t *testing.T) {
	job := testJob(t)
	jobs := newFakeJobs()
	files := &fakeFiles{content: map[uuid.UUID][]byte{job.ID: []byte("x")}}
	txs := &fakeTxs{batches: map[uuid.UUID][]*entity.Transaction{}}

	p := NewProcessor(pipelineConfig(t), jobs, files, txs, &fakeAudit{},
		&fakeExtractor{res: entity.ExtractionResult{Text: "", Confidence: 0.2}}, &fakeStructurer{res: goodStructuring()}, nil)

	err := p.Process(context.Background(), job)
	require.Error(t, err)
	assert.True(t, common.IsValidationError(err))
	assert.Equal(t, "no text could be extracted from the file", jobs.failed[job.ID])
}

func TestProcessorStructuringFailure(t *testing.T) {
	job := testJob(t)
	jobs := newFakeJobs()
	files := &fakeFiles{content: map[uuid.UUID][]byte{job.ID: []byte("x")}}
	txs := &fakeTxs{batches: map[uuid.UUID][]*entity.Transaction{}}
	audit := &fakeAudit{}

	p := NewProcessor(pipelineConfig(t), jobs, files, txs, audit,
		&fakeExtractor{res: goodExtraction()},
		&fakeStructurer{err: common.ErrNoTransactions}, nil)

	err := p.Process(context.Background(), job)
	require.ErrorIs(t, err, common.ErrNoTransactions)
	assert.Equal(t, "no transactions could be identified in this file", jobs.failed[job.ID])
	// the extraction artifacts were saved before the failure
	assert.Equal(t, "COFFEE HOUSE $4.50", jobs.extractions[job.ID].Text)
	assert.Contains(t, audit.steps(entity.StepFailed), StepStructure)
}

func TestProcessorMissingFile(t *testing.T) {
	job := testJob(t)
	jobs := newFakeJobs()
	files := &fakeFiles{content: map[uuid.UUID][]byte{}}
	txs := &fakeTxs{batches: map[uuid.UUID][]*entity.Transaction{}}

	p := NewProcessor(pipelineConfig(t), jobs, files, txs, &fakeAudit{},
		&fakeExtractor{res: goodExtraction()}, &fakeStructurer{res: goodStructuring()}, nil)

	err := p.Process(context.Background(), job)
	require.Error(t, err)
	assert.NotEmpty(t, jobs.failed[job.ID])
}

func TestProcessorClaimFailureStopsEarly(t *testing.T) {
	job := testJob(t)
	jobs := newFakeJobs()
	jobs.markErr = common.ErrInvalidTransition
	files := &fakeFiles{content: map[uuid.UUID][]byte{job.ID: []byte("x")}}
	txs := &fakeTxs{batches: map[uuid.UUID][]*entity.Transaction{}}
	audit := &fakeAudit{}

	p := NewProcessor(pipelineConfig(t), jobs, files, txs, audit,
		&fakeExtractor{res: goodExtraction()}, &fakeStructurer{res: goodStructuring()}, nil)

	err := p.Process(context.Background(), job)
	require.ErrorIs(t, err, common.ErrInvalidTransition)
	assert.Empty(t, audit.entries)
	assert.Empty(t, jobs.failed) // the claim failed, nothing to mark
}

func TestProcessorAuditOutageIsNonFatal(t *testing.T) {
	job := testJob(t)
	jobs := newFakeJobs()
	files := &fakeFiles{content: map[uuid.UUID][]byte{job.ID: []byte("x")}}
	txs := &fakeTxs{batches: map[uuid.UUID][]*entity.Transaction{}}
	audit := &fakeAudit{err: errors.New("mongo unavailable")}

	p := NewProcessor(pipelineConfig(t), jobs, files, txs, audit,
		&fakeExtractor{res: goodExtraction()}, &fakeStructurer{res: goodStructuring()}, nil)

	require.NoError(t, p.Process(context.Background(), job))
	require.Len(t, txs.batches[job.ID], 1)
}

func TestBatchRunner(t *testing.T) {
	t.Run("failures do not abort the batch", func(t *testing.T) {
		jobA := testJob(t)
		jobB := testJob(t)
		jobs := newFakeJobs()
		jobs.uploaded = []*entity.Job{jobA, jobB}
		// only jobA's bytes exist, jobB fails at fetch
		files := &fakeFiles{content: map[uuid.UUID][]byte{jobA.ID: []byte("x")}}
		txs := &fakeTxs{batches: map[uuid.UUID][]*entity.Transaction{}}

		p := NewProcessor(pipelineConfig(t), jobs, files, txs, &fakeAudit{},
			&fakeExtractor{res: goodExtraction()}, &fakeStructurer{res: goodStructuring()}, nil)
		runner := NewBatchRunner(p, jobs, 2, nil)

		res, err := runner.Run(context.Background(), 10)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Total)
		assert.Equal(t, 1, res.Succeeded)
		assert.Equal(t, 1, res.Failed)
		assert.Contains(t, res.Failures, jobB.ID)
		require.Len(t, txs.batches[jobA.ID], 1)
	})

	t.Run("empty queue", func(t *testing.T) {
		jobs := newFakeJobs()
		p := NewProcessor(pipelineConfig(t), jobs,
			&fakeFiles{content: map[uuid.UUID][]byte{}},
			&fakeTxs{batches: map[uuid.UUID][]*entity.Transaction{}}, &fakeAudit{},
			&fakeExtractor{}, &fakeStructurer{}, nil)
		runner := NewBatchRunner(p, jobs, 2, nil)

		res, err := runner.Run(context.Background(), 10)
		require.NoError(t, err)
		assert.Zero(t, res.Total)
	})
}
