package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/raaihank/piiredact/internal/redact"
)

// Record is one audited redaction run. It holds a hash of the document,
// never its text.
type Record struct {
	ID              int64          `json:"id"`
	RequestID       string         `json:"request_id"`
	Source          string         `json:"source"`
	DocumentHash    string         `json:"document_hash"`
	InputBytes      int            `json:"input_bytes"`
	TotalMatches    int            `json:"total_matches"`
	Counts          map[string]int `json:"counts"`
	Strategy        string         `json:"strategy"`
	RuleFingerprint string         `json:"rule_fingerprint"`
	Warnings        int            `json:"warnings"`
	DurationMS      float64        `json:"duration_ms"`
	CreatedAt       time.Time      `json:"created_at"`
}

// recordRow is the redaction_records table layout
type recordRow struct {
	ID              int64   `db:"id"`
	RequestID       string  `db:"request_id"`
	Source          string  `db:"source"`
	DocumentHash    string  `db:"document_hash"`
	InputBytes      int     `db:"input_bytes"`
	TotalMatches    int     `db:"total_matches"`
	Strategy        string  `db:"strategy"`
	RuleFingerprint string  `db:"rule_fingerprint"`
	Warnings        int     `db:"warnings"`
	DurationMS      float64 `db:"duration_ms"`
	CreatedAtMS     int64   `db:"created_at_ms"`
}

type countRow struct {
	RecordID int64  `db:"record_id"`
	Category string `db:"category"`
	Matches  int    `db:"matches"`
}

// Stats aggregates the audit trail
type Stats struct {
	TotalRecords int64            `json:"total_records"`
	TotalMatches int64            `json:"total_matches"`
	ByCategory   map[string]int64 `json:"by_category"`
	BySource     map[string]int64 `json:"by_source"`
}

// Config contains audit database configuration
type Config struct {
	Driver          string        `yaml:"driver" mapstructure:"driver"` // sqlite or postgres
	DSN             string        `yaml:"dsn" mapstructure:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// NewRecord summarizes a redaction result for the audit trail
func NewRecord(requestID, source, text string, result *redact.Result, strategy, fingerprint string, elapsed time.Duration) *Record {
	sum := sha256.Sum256([]byte(text))
	counts := make(map[string]int, len(result.Counts))
	for category, n := range result.Counts {
		counts[category] = n
	}
	return &Record{
		RequestID:       requestID,
		Source:          source,
		DocumentHash:    hex.EncodeToString(sum[:]),
		InputBytes:      len(text),
		TotalMatches:    result.Total(),
		Counts:          counts,
		Strategy:        strategy,
		RuleFingerprint: fingerprint,
		Warnings:        len(result.Warnings),
		DurationMS:      float64(elapsed.Microseconds()) / 1000,
	}
}
