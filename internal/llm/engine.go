package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/fintrack/receipt-processor/internal/common"
	"github.com/fintrack/receipt-processor/internal/entity"
)

// EngineConfig bounds the structuring engine.
type EngineConfig struct {
	MaxTransactions int // ceiling per job; over-long responses are truncated
}

// Engine invokes the primary provider, falls back to the backup exactly
// once, validates the response against the schema, and cleans the
// candidates. There is no retry loop beyond the single fallback.
type Engine struct {
	cfg     EngineConfig
	primary Provider
	backup  Provider // may be nil
	logger  *slog.Logger
	now     func() time.Time
}

func NewEngine(cfg EngineConfig, primary Provider, backup Provider, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxTransactions <= 0 {
		cfg.MaxTransactions = 5
	}
	return &Engine{cfg: cfg, primary: primary, backup: backup, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

func (e *Engine) Structure(ctx context.Context, req StructureRequest) (entity.StructuringResult, error) {
	start := time.Now()
	sys := BuildSystemPrompt(e.cfg.MaxTransactions)
	user := BuildUserPrompt(req)

	e.logger.Info("llm.structure.start",
		"job_id", req.JobID,
		"provider", e.primary.Name(),
		"text_len", len(req.Text),
		"extraction_confidence", req.ExtractionConfidence,
	)

	content, provider, err := e.complete(ctx, req, sys, user)
	if err != nil {
		return entity.StructuringResult{}, err
	}

	candidates, err := e.parseAndClean(req, provider, content)
	if err != nil {
		return entity.StructuringResult{}, err
	}

	overall := overallConfidence(req.ExtractionConfidence, candidates)
	e.logger.Info("llm.structure.ok",
		"job_id", req.JobID,
		"provider", provider,
		"candidates", len(candidates),
		"overall_confidence", overall,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	return entity.StructuringResult{
		Candidates:        candidates,
		OverallConfidence: overall,
		Provider:          provider,
		Duration:          time.Since(start),
	}, nil
}

// complete calls the primary provider and, on any failure, the backup
// exactly once.
func (e *Engine) complete(ctx context.Context, req StructureRequest, sys, user string) (content, provider string, err error) {
	content, err = e.primary.Complete(ctx, sys, user)
	if err == nil {
		return content, e.primary.Name(), nil
	}
	e.logger.Warn("llm.structure.primary_failed",
		"job_id", req.JobID, "provider", e.primary.Name(), "error", err)

	if e.backup == nil {
		return "", "", fmt.Errorf("%w: primary provider: %v", common.ErrStructuringFailed, err)
	}
	content, backupErr := e.backup.Complete(ctx, sys, user)
	if backupErr != nil {
		e.logger.Error("llm.structure.backup_failed",
			"job_id", req.JobID, "provider", e.backup.Name(), "error", backupErr)
		return "", "", fmt.Errorf("%w: primary: %v; backup: %v", common.ErrStructuringFailed, err, backupErr)
	}
	return content, e.backup.Name(), nil
}

// parseAndClean extracts the JSON payload, validates it against the schema,
// cleans the candidates, and enforces the ceiling.
func (e *Engine) parseAndClean(req StructureRequest, provider, content string) ([]entity.Candidate, error) {
	payload, err := ExtractJSONPayload(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStructuringFailed, err)
	}
	schema := BuildTransactionsJSONSchema()
	if err := ValidateJSONAgainstSchema(schema, payload); err != nil {
		e.logger.Error("llm.structure.schema_validation_failed",
			"job_id", req.JobID, "provider", provider, "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrStructuringFailed, err)
	}

	var raw rawResponse
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: unmarshal response: %v", common.ErrStructuringFailed, err)
	}

	candidates := cleanCandidates(raw.Transactions, e.now(), e.logger)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: provider %s", common.ErrNoTransactions, provider)
	}
	if len(candidates) > e.cfg.MaxTransactions {
		e.logger.Warn("llm.structure.truncated",
			"job_id", req.JobID, "returned", len(candidates), "max", e.cfg.MaxTransactions)
		candidates = candidates[:e.cfg.MaxTransactions]
	}
	return candidates, nil
}

// overallConfidence blends extraction and structuring confidence, weighted
// toward the structuring result since textual interpretation dominates
// correctness risk.
func overallConfidence(extraction float32, candidates []entity.Candidate) float32 {
	if len(candidates) == 0 {
		return clamp01(0.3 * extraction)
	}
	var sum float64
	for _, c := range candidates {
		sum += float64(c.Confidence)
	}
	mean := float32(sum / float64(len(candidates)))
	return clamp01(0.3*extraction + 0.7*mean)
}
