package entity

import "time"

// ExtractionResult is the output of Stage 1: file bytes -> normalized text.
type ExtractionResult struct {
	Text       string
	Confidence float32 // [0,1]
	Method     string  // "image-ocr" | "pdf-text" | "pdf-ocr" | "document-parse"
	Pages      int
	Duration   time.Duration
	Warnings   []string
}

// StructuringResult is the output of Stage 2: normalized text -> cleaned
// transaction candidates.
type StructuringResult struct {
	Candidates        []Candidate
	OverallConfidence float32 // 0.3*extraction + 0.7*mean(candidate confidences)
	Provider          string
	Duration          time.Duration
}
