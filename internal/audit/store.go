// Package audit keeps a SQL trail of redaction runs: document hashes and
// per-category counts, never document text.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var schemas = map[string][]string{
	DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS redaction_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			request_id TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL,
			document_hash TEXT NOT NULL,
			input_bytes INTEGER NOT NULL,
			total_matches INTEGER NOT NULL,
			strategy TEXT NOT NULL,
			rule_fingerprint TEXT NOT NULL,
			warnings INTEGER NOT NULL DEFAULT 0,
			duration_ms REAL NOT NULL,
			created_at_ms INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS redaction_counts (
			record_id INTEGER NOT NULL REFERENCES redaction_records(id) ON DELETE CASCADE,
			category TEXT NOT NULL,
			matches INTEGER NOT NULL,
			PRIMARY KEY (record_id, category)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_redaction_records_created ON redaction_records(created_at_ms)`,
	},
	DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS redaction_records (
			id BIGSERIAL PRIMARY KEY,
			request_id TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL,
			document_hash TEXT NOT NULL,
			input_bytes INTEGER NOT NULL,
			total_matches INTEGER NOT NULL,
			strategy TEXT NOT NULL,
			rule_fingerprint TEXT NOT NULL,
			warnings INTEGER NOT NULL DEFAULT 0,
			duration_ms DOUBLE PRECISION NOT NULL,
			created_at_ms BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS redaction_counts (
			record_id BIGINT NOT NULL REFERENCES redaction_records(id) ON DELETE CASCADE,
			category TEXT NOT NULL,
			matches INTEGER NOT NULL,
			PRIMARY KEY (record_id, category)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_redaction_records_created ON redaction_records(created_at_ms)`,
	},
}

// Store persists audit records with sqlite or PostgreSQL
type Store struct {
	db     *sqlx.DB
	driver string
	logger *zap.Logger
}

// NewStore connects to the audit database and creates its tables
func NewStore(ctx context.Context, config *Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, ok := schemas[config.Driver]; !ok {
		return nil, fmt.Errorf("unsupported audit driver: %s", config.Driver)
	}

	db, err := sqlx.ConnectContext(ctx, config.Driver, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to audit database: %w", err)
	}

	if config.Driver == DriverSQLite {
		// sqlite serializes writers, and an in-memory database lives on
		// a single connection.
		db.SetMaxOpenConns(1)
	} else {
		if config.MaxOpenConns > 0 {
			db.SetMaxOpenConns(config.MaxOpenConns)
		}
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	store := &Store{db: db, driver: config.Driver, logger: logger}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit store: %w", err)
	}

	logger.Info("Audit store initialized",
		zap.String("driver", config.Driver),
		zap.String("dsn", maskDSN(config.DSN)))

	return store, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schemas[s.driver] {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Record inserts rec and its per-category counts in one transaction and
// sets rec.ID and rec.CreatedAt.
func (s *Store) Record(ctx context.Context, rec *Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer tx.Rollback()

	query := tx.Rebind(`
		INSERT INTO redaction_records (request_id, source, document_hash, input_bytes, total_matches,
			strategy, rule_fingerprint, warnings, duration_ms, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)

	err = tx.QueryRowxContext(ctx, query,
		rec.RequestID,
		rec.Source,
		rec.DocumentHash,
		rec.InputBytes,
		rec.TotalMatches,
		rec.Strategy,
		rec.RuleFingerprint,
		rec.Warnings,
		rec.DurationMS,
		rec.CreatedAt.UnixMilli(),
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}

	countQuery := tx.Rebind(`INSERT INTO redaction_counts (record_id, category, matches) VALUES (?, ?, ?)`)
	for category, n := range rec.Counts {
		if _, err := tx.ExecContext(ctx, countQuery, rec.ID, category, n); err != nil {
			return fmt.Errorf("failed to insert audit counts: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit record: %w", err)
	}

	s.logger.Debug("Audit record stored",
		zap.Int64("id", rec.ID),
		zap.String("source", rec.Source),
		zap.Int("total_matches", rec.TotalMatches))
	return nil
}

// Recent returns up to limit records, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []recordRow
	query := s.db.Rebind(`
		SELECT id, request_id, source, document_hash, input_bytes, total_matches,
			strategy, rule_fingerprint, warnings, duration_ms, created_at_ms
		FROM redaction_records
		ORDER BY id DESC
		LIMIT ?`)
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}

	records := make([]*Record, len(rows))
	if len(rows) == 0 {
		return records, nil
	}

	byID := make(map[int64]*Record, len(rows))
	ids := make([]int64, len(rows))
	for i, row := range rows {
		rec := &Record{
			ID:              row.ID,
			RequestID:       row.RequestID,
			Source:          row.Source,
			DocumentHash:    row.DocumentHash,
			InputBytes:      row.InputBytes,
			TotalMatches:    row.TotalMatches,
			Counts:          map[string]int{},
			Strategy:        row.Strategy,
			RuleFingerprint: row.RuleFingerprint,
			Warnings:        row.Warnings,
			DurationMS:      row.DurationMS,
			CreatedAt:       time.UnixMilli(row.CreatedAtMS),
		}
		records[i] = rec
		byID[row.ID] = rec
		ids[i] = row.ID
	}

	countQuery, args, err := sqlx.In(`SELECT record_id, category, matches FROM redaction_counts WHERE record_id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build counts query: %w", err)
	}
	var counts []countRow
	if err := s.db.SelectContext(ctx, &counts, s.db.Rebind(countQuery), args...); err != nil {
		return nil, fmt.Errorf("failed to query audit counts: %w", err)
	}
	for _, c := range counts {
		if rec, ok := byID[c.RecordID]; ok {
			rec.Counts[c.Category] = c.Matches
		}
	}

	return records, nil
}

// Stats aggregates every stored record
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByCategory: map[string]int64{}, BySource: map[string]int64{}}

	var totals struct {
		Records int64 `db:"records"`
		Matches int64 `db:"matches"`
	}
	if err := s.db.GetContext(ctx, &totals,
		`SELECT COUNT(*) AS records, COALESCE(SUM(total_matches), 0) AS matches FROM redaction_records`); err != nil {
		return nil, fmt.Errorf("failed to get audit totals: %w", err)
	}
	stats.TotalRecords = totals.Records
	stats.TotalMatches = totals.Matches

	type group struct {
		Name string `db:"name"`
		N    int64  `db:"n"`
	}

	var categories []group
	if err := s.db.SelectContext(ctx, &categories,
		`SELECT category AS name, SUM(matches) AS n FROM redaction_counts GROUP BY category`); err != nil {
		return nil, fmt.Errorf("failed to get category stats: %w", err)
	}
	for _, g := range categories {
		stats.ByCategory[g.Name] = g.N
	}

	var sources []group
	if err := s.db.SelectContext(ctx, &sources,
		`SELECT source AS name, COUNT(*) AS n FROM redaction_records GROUP BY source`); err != nil {
		return nil, fmt.Errorf("failed to get source stats: %w", err)
	}
	for _, g := range sources {
		stats.BySource[g.Name] = g.N
	}

	return stats, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDSN hides the password of a postgres URL or key/value DSN
func maskDSN(dsn string) string {
	if at := strings.LastIndex(dsn, "@"); at >= 0 {
		if scheme := strings.Index(dsn, "://"); scheme >= 0 {
			userinfo := dsn[scheme+3 : at]
			if colon := strings.Index(userinfo, ":"); colon >= 0 {
				return dsn[:scheme+3+colon+1] + "***" + dsn[at:]
			}
		}
		return dsn
	}
	if !strings.Contains(dsn, "password=") {
		return dsn
	}
	fields := strings.Fields(dsn)
	for i, f := range fields {
		if strings.HasPrefix(f, "password=") {
			fields[i] = "password=***"
		}
	}
	return strings.Join(fields, " ")
}
