// Package config provides configuration structures and validation for the
// receipt processor. Settings are loaded once at startup and passed into
// constructors; nothing reads ambient global state.
package config

import (
	"errors"
	"strings"
	"time"
)

// Config holds the complete application configuration.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	OCR         OCRConfig
	Provider    ProviderConfig
	Pipeline    PipelineConfig
	Expense     ExpenseConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	MigrationsPath  string
}

// MongoDBConfig contains MongoDB configuration for the audit log store
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// OCRConfig contains settings for the external OCR engine.
type OCRConfig struct {
	Tesseract string // binary name or absolute path; if empty -> "tesseract"
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Languages string // tesseract language hint set, e.g. "eng"
	PSM       int    // page segmentation mode; 6 is good for uniform blocks
	DPI       int    // rasterization scale hint for PDF page rendering
}

// ProviderConfig contains reasoning provider settings: a primary client and
// exactly one backup attempted when the primary fails.
type ProviderConfig struct {
	Primary PrimaryProviderConfig
	Backup  BackupProviderConfig
}

// PrimaryProviderConfig configures the OpenAI-style chat client.
type PrimaryProviderConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// BackupProviderConfig configures the Ollama chat client.
type BackupProviderConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
	Enabled bool
}

// PipelineConfig bounds the orchestrator and the extraction strategies.
type PipelineConfig struct {
	ConcurrentLimit        int           // worker pool size for batch processing
	MaxTransactionsPerFile int           // transaction ceiling per job
	MaxPDFPages            int           // page cap for the OCR-per-page fallback
	MinTextLength          int           // below this, PDF text layer is treated as absent
	MaxDocumentRows        int           // row cap for the structured-document strategy
	MaxImageBytes          int64         // size ceiling, image family
	MaxPDFBytes            int64         // size ceiling, pdf family
	MaxDocumentBytes       int64         // size ceiling, document family
	ExtractionTimeout      time.Duration // per OCR/backend call
	StructuringTimeout     time.Duration // per provider call
	ProcessTimeout         time.Duration // whole job
	TempDir                string        // scratch space for per-job temp files
	AuditRetentionDays     int           // processing_log retention sweep cutoff
}

// ExpenseConfig configures the downstream expense collaborator client.
type ExpenseConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// validate performs validation of all configuration values.
func (c *Config) validate() error {
	var validationErrors []string

	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}

	if c.Postgres.URL == "" {
		validationErrors = append(validationErrors, "POSTGRES_URL is required")
	}
	if c.Postgres.MaxConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
	}

	if c.MongoDB.URI == "" {
		validationErrors = append(validationErrors, "MONGO_URI is required")
	}
	if c.MongoDB.Database == "" {
		validationErrors = append(validationErrors, "MONGO_DATABASE is required")
	}

	if c.Pipeline.ConcurrentLimit <= 0 {
		validationErrors = append(validationErrors, "PIPELINE_CONCURRENT_LIMIT must be greater than 0")
	}
	if c.Pipeline.MaxTransactionsPerFile <= 0 {
		validationErrors = append(validationErrors, "PIPELINE_MAX_TRANSACTIONS_PER_FILE must be greater than 0")
	}
	if c.Pipeline.MaxPDFPages <= 0 {
		validationErrors = append(validationErrors, "PIPELINE_MAX_PDF_PAGES must be greater than 0")
	}
	if c.Pipeline.ExtractionTimeout <= 0 {
		validationErrors = append(validationErrors, "PIPELINE_EXTRACTION_TIMEOUT must be greater than 0")
	}
	if c.Pipeline.StructuringTimeout <= 0 {
		validationErrors = append(validationErrors, "PIPELINE_STRUCTURING_TIMEOUT must be greater than 0")
	}
	if c.Pipeline.ProcessTimeout <= 0 {
		validationErrors = append(validationErrors, "PIPELINE_PROCESS_TIMEOUT must be greater than 0")
	}

	if c.Provider.Primary.Model == "" {
		validationErrors = append(validationErrors, "PROVIDER_PRIMARY_MODEL is required")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}
	return nil
}
