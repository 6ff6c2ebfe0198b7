package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobStatusCanTransition(t *testing.T) {
	allowed := []struct{ from, to JobStatus }{
		{JobStatusUploaded, JobStatusProcessing},
		{JobStatusProcessing, JobStatusOCRCompleted},
		{JobStatusOCRCompleted, JobStatusCompleted},
		{JobStatusCompleted, JobStatusApproved},
		{JobStatusProcessing, JobStatusFailed},
		{JobStatusOCRCompleted, JobStatusFailed},
		{JobStatusFailed, JobStatusUploaded}, // retry reset
	}
	for _, tr := range allowed {
		assert.True(t, tr.from.CanTransition(tr.to), "%s -> %s should be allowed", tr.from, tr.to)
	}

	denied := []struct{ from, to JobStatus }{
		{JobStatusUploaded, JobStatusOCRCompleted},  // skipping a stage
		{JobStatusUploaded, JobStatusCompleted},
		{JobStatusCompleted, JobStatusProcessing},   // no going back
		{JobStatusApproved, JobStatusCompleted},
		{JobStatusApproved, JobStatusFailed},
		{JobStatusUploaded, JobStatusFailed},        // failure requires work in flight
		{JobStatusCompleted, JobStatusUploaded},
		{JobStatusProcessing, JobStatusProcessing},
	}
	for _, tr := range denied {
		assert.False(t, tr.from.CanTransition(tr.to), "%s -> %s should be denied", tr.from, tr.to)
	}
}

func TestTxStatusTerminal(t *testing.T) {
	assert.False(t, TxStatusPending.Terminal())
	assert.False(t, TxStatusApproved.Terminal()) // still exportable
	assert.True(t, TxStatusRejected.Terminal())
	assert.True(t, TxStatusExpenseCreated.Terminal())
}
