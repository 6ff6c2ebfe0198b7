package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fintrack/receipt-processor/constants"
	"github.com/fintrack/receipt-processor/internal/common"
)

// Job is one uploaded file and its processing record.
type Job struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	Filename         string // stored name
	OriginalFilename string
	FileSize         int64
	FileType         string // normalized extension
	MimeType         string
	Checksum         string // sha256 hex of the content
	Status           constants.JobStatus
	ErrorMessage     string
	RetryCount       int

	// Extraction artifacts, written only by the orchestrator.
	OCRText          string
	OCRConfidence    float32
	ExtractionMethod string
	AIProvider       string
	AIProcessingMS   int64

	// Denormalized counters, recomputed transactionally on every
	// transaction mutation.
	TotalTransactions    int
	ProcessedTransactions int
	ApprovedTransactions  int

	CreatedAt             time.Time
	UpdatedAt             time.Time
	ProcessingStartedAt   *time.Time
	ProcessingCompletedAt *time.Time
}

// NewJob builds an UPLOADED job for validated content. The checksum is
// computed here so each stored job carries a verifiable content hash.
func NewJob(userID uuid.UUID, originalFilename string, content []byte, ext, mimeType string) (*Job, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: user id is required", common.ErrInvalidInput)
	}
	if len(content) == 0 {
		return nil, common.NewValidationError(common.CodeEmptyFile, "file content is empty", nil)
	}
	sum := sha256.Sum256(content)
	id := uuid.New()
	now := time.Now().UTC()
	return &Job{
		ID:               id,
		UserID:           userID,
		Filename:         id.String() + "." + constants.NormalizeExt(ext),
		OriginalFilename: originalFilename,
		FileSize:         int64(len(content)),
		FileType:         constants.NormalizeExt(ext),
		MimeType:         mimeType,
		Checksum:         hex.EncodeToString(sum[:]),
		Status:           constants.JobStatusUploaded,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}
