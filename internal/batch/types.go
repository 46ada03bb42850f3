package batch

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/raaihank/piiredact/internal/redact"
)

// Document is one input record
type Document struct {
	ID   string `parquet:"id" json:"id"`
	Text string `parquet:"text" json:"text"`
}

// Outcome is the redaction of one document. Error is set instead of the
// redaction fields when the document could not be redacted.
type Outcome struct {
	ID           string             `json:"id"`
	RedactedText string             `json:"redacted_text,omitempty"`
	Matches      []redact.MatchSpan `json:"matches,omitempty"`
	Counts       map[string]int     `json:"counts,omitempty"`
	Warnings     []string           `json:"warnings,omitempty"`
	Error        string             `json:"error,omitempty"`
}

// outputRow is the flat layout used for CSV and Parquet output
type outputRow struct {
	ID           string `parquet:"id"`
	RedactedText string `parquet:"redacted_text"`
	TotalMatches int64  `parquet:"total_matches"`
	Counts       string `parquet:"counts"` // JSON object
	Error        string `parquet:"error"`
}

// Summary represents the result of processing a batch
type Summary struct {
	Documents    int             `json:"documents"`
	Redacted     int             `json:"redacted"`
	Failed       int             `json:"failed"`
	TotalMatches int             `json:"total_matches"`
	Counts       map[string]int  `json:"counts"`
	Warnings     int             `json:"warnings"`
	Duration     time.Duration   `json:"duration"`
	Errors       []DocumentError `json:"errors,omitempty"`
}

// DocumentError names a document that failed
type DocumentError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Config contains batch runner configuration
type Config struct {
	Workers    int    `yaml:"workers" mapstructure:"workers"`
	IDColumn   string `yaml:"id_column" mapstructure:"id_column"`
	TextColumn string `yaml:"text_column" mapstructure:"text_column"`
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSONL   FileFormat = "jsonl"
)

// DetectFileFormat detects file format from extension. Unknown extensions
// are treated as JSON lines.
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV
	case ".parquet":
		return FormatParquet
	default:
		return FormatJSONL
	}
}
