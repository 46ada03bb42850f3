package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/segmentio/parquet-go"
)

// ReadDocuments loads every document of path, choosing the decoder by
// extension. Documents without an id are numbered from 1.
func ReadDocuments(path string, config *Config) ([]Document, error) {
	switch DetectFileFormat(path) {
	case FormatCSV:
		return readCSV(path, config)
	case FormatParquet:
		return readParquet(path)
	default:
		return readJSONL(path, config)
	}
}

func readCSV(path string, config *Config) ([]Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	idCol, textCol := -1, -1
	for i, name := range header {
		switch name {
		case config.IDColumn:
			idCol = i
		case config.TextColumn:
			textCol = i
		}
	}
	if textCol < 0 {
		return nil, fmt.Errorf("CSV header has no %q column", config.TextColumn)
	}

	var docs []Document
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}
		if textCol >= len(record) {
			return nil, fmt.Errorf("CSV line %d has %d fields, want at least %d", line, len(record), textCol+1)
		}

		doc := Document{Text: record[textCol]}
		if idCol >= 0 && idCol < len(record) {
			doc.ID = record[idCol]
		}
		docs = append(docs, doc)
	}
	return numberDocuments(docs), nil
}

func readParquet(path string) ([]Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Parquet file: %w", err)
	}
	defer file.Close()

	reader := parquet.NewReader(file)
	defer reader.Close()

	var docs []Document
	for {
		var doc Document
		err := reader.Read(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read Parquet record: %w", err)
		}
		docs = append(docs, doc)
	}
	return numberDocuments(docs), nil
}

func readJSONL(path string, config *Config) ([]Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSON file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	decoder.UseNumber()

	var docs []Document
	for n := 1; ; n++ {
		var record map[string]any
		err := decoder.Decode(&record)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read JSON record %d: %w", n, err)
		}

		text, ok := record[config.TextColumn].(string)
		if !ok {
			return nil, fmt.Errorf("JSON record %d has no string %q field", n, config.TextColumn)
		}
		doc := Document{Text: text}
		switch id := record[config.IDColumn].(type) {
		case string:
			doc.ID = id
		case json.Number:
			doc.ID = id.String()
		}
		docs = append(docs, doc)
	}
	return numberDocuments(docs), nil
}

func numberDocuments(docs []Document) []Document {
	for i := range docs {
		if docs[i].ID == "" {
			docs[i].ID = strconv.Itoa(i + 1)
		}
	}
	return docs
}
