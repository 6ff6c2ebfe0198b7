// Package server exposes the job lifecycle and approval workflow over
// HTTP.
package server

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fintrack/receipt-processor/internal/service"
)

const userIDHeader = "X-User-ID"

// maxUploadBytes bounds the multipart read before the per-family ceilings
// apply.
const maxUploadBytes = 32 << 20

type Handler struct {
	svc    *service.ReceiptService
	logger *slog.Logger
}

func NewHandler(svc *service.ReceiptService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// userID resolves the caller identity. Responds and returns false when the
// header is missing or malformed.
func (h *Handler) userID(c *gin.Context) (uuid.UUID, bool) {
	raw := c.GetHeader(userIDHeader)
	if raw == "" {
		respondWithError(c, http.StatusUnauthorized, "missing "+userIDHeader+" header", "")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		respondWithError(c, http.StatusUnauthorized, "invalid "+userIDHeader+" header", "")
		return uuid.Nil, false
	}
	return id, true
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondWithError(c, http.StatusBadRequest, "invalid "+name, "")
		return uuid.Nil, false
	}
	return id, true
}

// UploadReceipt accepts a multipart upload and creates an UPLOADED job.
func (h *Handler) UploadReceipt(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondWithError(c, http.StatusBadRequest, "multipart field 'file' is required", "")
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		respondWithError(c, http.StatusBadRequest, "failed to open uploaded file", "")
		return
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		respondWithError(c, http.StatusBadRequest, "failed to read uploaded file", "")
		return
	}
	if len(content) > maxUploadBytes {
		respondWithError(c, http.StatusRequestEntityTooLarge, "upload exceeds the request size limit", "")
		return
	}

	job, err := h.svc.CreateJob(c.Request.Context(), userID, fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"), content)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toJobResponse(job, false))
}

func (h *Handler) GetJob(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	jobID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	job, err := h.svc.GetJob(c.Request.Context(), jobID, userID)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toJobResponse(job, true))
}

func (h *Handler) ListJobs(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	jobs, err := h.svc.ListJobs(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": toJobListResponse(jobs)})
}

// GetJobAudit returns the append-only step trail for a job.
func (h *Handler) GetJobAudit(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	jobID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	entries, err := h.svc.GetJobAudit(c.Request.Context(), jobID, userID)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// ProcessJob runs the pipeline synchronously for one job.
func (h *Handler) ProcessJob(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	jobID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	job, err := h.svc.ProcessJob(c.Request.Context(), jobID, userID)
	if err != nil {
		if job != nil {
			// The job moved to FAILED; report the state plus the failure.
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"job":   toJobResponse(job, false),
				"error": job.ErrorMessage,
			})
			return
		}
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toJobResponse(job, true))
}

// ResetJob moves a FAILED job back to UPLOADED.
func (h *Handler) ResetJob(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	jobID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	job, err := h.svc.ResetJob(c.Request.Context(), jobID, userID)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toJobResponse(job, false))
}

// ProcessBatch drains pending uploads through the worker pool.
func (h *Handler) ProcessBatch(c *gin.Context) {
	if _, ok := h.userID(c); !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	res, err := h.svc.ProcessBatch(c.Request.Context(), limit)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	failures := make(map[string]string, len(res.Failures))
	for id, msg := range res.Failures {
		failures[id.String()] = msg
	}
	c.JSON(http.StatusOK, gin.H{
		"total":       res.Total,
		"succeeded":   res.Succeeded,
		"failed":      res.Failed,
		"duration_ms": res.Duration.Milliseconds(),
		"failures":    failures,
	})
}

func (h *Handler) ListPendingTransactions(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	txs, err := h.svc.GetPendingTransactions(c.Request.Context(), userID, limit)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": toTransactionListResponse(txs)})
}

func (h *Handler) ApproveTransaction(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	txID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	tx, err := h.svc.ApproveTransaction(c.Request.Context(), txID, userID)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTransactionResponse(tx))
}

type rejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *Handler) RejectTransaction(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	txID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, http.StatusBadRequest, "a rejection reason is required", "")
		return
	}
	tx, err := h.svc.RejectTransaction(c.Request.Context(), txID, userID, req.Reason)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTransactionResponse(tx))
}

// ExportTransaction retries expense creation for an approved transaction.
func (h *Handler) ExportTransaction(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	txID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	tx, err := h.svc.ExportExpense(c.Request.Context(), txID, userID)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTransactionResponse(tx))
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
