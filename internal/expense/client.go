// Package expense posts approved transactions to the downstream expense
// service.
package expense

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/fintrack/receipt-processor/internal/config"
	"github.com/fintrack/receipt-processor/internal/entity"
)

// Creator is the seam the service layer depends on.
type Creator interface {
	CreateExpense(ctx context.Context, tx *entity.Transaction) (string, error)
}

// Client talks to the expense service HTTP API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(cfg config.ExpenseConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type createExpenseRequest struct {
	UserID       uuid.UUID `json:"user_id"`
	Amount       string    `json:"amount"`
	CurrencyCode string    `json:"currency_code"`
	MerchantName string    `json:"merchant_name"`
	Description  string    `json:"description"`
	Date         string    `json:"date"`
	Category     string    `json:"category,omitempty"`
	SourceID     uuid.UUID `json:"source_transaction_id"`
}

type createExpenseResponse struct {
	ID string `json:"id"`
}

// CreateExpense posts one approved transaction and returns the expense id
// assigned by the downstream service.
func (c *Client) CreateExpense(ctx context.Context, tx *entity.Transaction) (string, error) {
	payload := createExpenseRequest{
		UserID:       tx.UserID,
		Amount:       tx.Amount.StringFixed(2),
		CurrencyCode: tx.CurrencyCode,
		MerchantName: tx.MerchantName,
		Description:  tx.Description,
		Date:         tx.TxDate.Format("2006-01-02"),
		Category:     tx.CategorySuggestion,
		SourceID:     tx.ID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal expense request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/expenses", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build expense request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("expense.create.error", "transaction_id", tx.ID.String(), "error", err)
		return "", fmt.Errorf("expense service request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read expense response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("expense.create.http_error",
			"transaction_id", tx.ID.String(),
			"status", resp.StatusCode,
			"body", truncate(string(raw), 512))
		return "", fmt.Errorf("expense service returned status %d", resp.StatusCode)
	}

	var out createExpenseResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode expense response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("expense service returned no id")
	}

	c.logger.Info("expense.create.ok",
		"transaction_id", tx.ID.String(),
		"expense_id", out.ID,
		"duration_ms", time.Since(start).Milliseconds())
	return out.ID, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
