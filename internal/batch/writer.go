package batch

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/segmentio/parquet-go"

	"github.com/raaihank/piiredact/internal/fsutil"
)

// WriteOutcomes writes outcomes to path in input order, choosing the
// encoder by extension. The file is replaced atomically.
func WriteOutcomes(path string, outcomes []Outcome) error {
	format := DetectFileFormat(path)
	return fsutil.WriteAtomic(path, func(w io.Writer) error {
		return EncodeOutcomes(w, format, outcomes)
	})
}

// EncodeOutcomes writes outcomes to w in the given format
func EncodeOutcomes(w io.Writer, format FileFormat, outcomes []Outcome) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, outcomes)
	case FormatParquet:
		return writeParquet(w, outcomes)
	default:
		return writeJSONL(w, outcomes)
	}
}

func writeJSONL(w io.Writer, outcomes []Outcome) error {
	encoder := json.NewEncoder(w)
	for i := range outcomes {
		if err := encoder.Encode(&outcomes[i]); err != nil {
			return fmt.Errorf("failed to encode outcome %s: %w", outcomes[i].ID, err)
		}
	}
	return nil
}

func writeCSV(w io.Writer, outcomes []Outcome) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"id", "redacted_text", "total_matches", "counts", "error"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, o := range outcomes {
		row, err := flatten(o)
		if err != nil {
			return err
		}
		record := []string{row.ID, row.RedactedText, strconv.FormatInt(row.TotalMatches, 10), row.Counts, row.Error}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeParquet(w io.Writer, outcomes []Outcome) error {
	writer := parquet.NewWriter(w, parquet.SchemaOf(new(outputRow)))
	for _, o := range outcomes {
		row, err := flatten(o)
		if err != nil {
			return err
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write Parquet record: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finish Parquet file: %w", err)
	}
	return nil
}

func flatten(o Outcome) (*outputRow, error) {
	row := &outputRow{
		ID:           o.ID,
		RedactedText: o.RedactedText,
		TotalMatches: int64(len(o.Matches)),
		Error:        o.Error,
	}
	if o.Error == "" {
		counts := o.Counts
		if counts == nil {
			counts = map[string]int{}
		}
		data, err := json.Marshal(counts)
		if err != nil {
			return nil, fmt.Errorf("failed to encode counts for %s: %w", o.ID, err)
		}
		row.Counts = string(data)
	}
	return row, nil
}
