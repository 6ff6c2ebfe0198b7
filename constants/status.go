package constants

// JobStatus is the canonical status for rows in receipt_jobs.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusUploaded     JobStatus = "UPLOADED"      // accepted, waiting for processing
	JobStatusProcessing   JobStatus = "PROCESSING"    // in progress
	JobStatusOCRCompleted JobStatus = "OCR_COMPLETED" // stage 1 completed (text extracted)
	JobStatusCompleted    JobStatus = "COMPLETED"     // stage 2 completed (transactions created)
	JobStatusApproved     JobStatus = "APPROVED"      // every transaction reviewed
	JobStatusFailed       JobStatus = "FAILED"        // terminal failure, resettable to UPLOADED
)

// CanTransition reports whether the job state machine allows from -> to.
// Status only moves forward, except for the explicit FAILED -> UPLOADED reset.
func (s JobStatus) CanTransition(to JobStatus) bool {
	switch to {
	case JobStatusProcessing:
		return s == JobStatusUploaded
	case JobStatusOCRCompleted:
		return s == JobStatusProcessing
	case JobStatusCompleted:
		return s == JobStatusOCRCompleted
	case JobStatusApproved:
		return s == JobStatusCompleted
	case JobStatusFailed:
		return s == JobStatusProcessing || s == JobStatusOCRCompleted
	case JobStatusUploaded:
		return s == JobStatusFailed
	default:
		return false
	}
}

// TxStatus is the workflow status for rows in receipt_transactions.
type TxStatus string

const (
	TxStatusPending        TxStatus = "PENDING"
	TxStatusApproved       TxStatus = "APPROVED"
	TxStatusRejected       TxStatus = "REJECTED"
	TxStatusExpenseCreated TxStatus = "EXPENSE_CREATED" // terminal, immutable
)

// Terminal reports whether a transaction status admits no further changes.
func (s TxStatus) Terminal() bool {
	return s == TxStatusRejected || s == TxStatusExpenseCreated
}
