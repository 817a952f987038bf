// Package store persists pseudonymization run reports in SQLite.
//
// A report records what was replaced (spans, entity types, scores and
// the pseudonymized text) for audit purposes. The original document text
// is deliberately NOT persisted: together with the unsaved salt this
// keeps the store useless for reversing the pseudonymization.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dativo-io/veil/internal/engine"
	veilotel "github.com/dativo-io/veil/internal/otel"
)

var tracer = veilotel.Tracer("github.com/dativo-io/veil/internal/store")

// Report is the persisted audit record for one pseudonymization run.
type Report struct {
	ID                string              `json:"id"`
	Timestamp         time.Time           `json:"timestamp"`
	Source            string              `json:"source"` // cli | api
	EntitiesFound     int                 `json:"entities_found"`
	Unresolved        int                 `json:"unresolved"`
	EntityTypes       []string            `json:"entity_types"`
	PseudonymizedText string              `json:"pseudonymized_text"`
	Replacements      []ReportReplacement `json:"replacements"`
}

// ReportReplacement mirrors engine.Replacement without the original text.
type ReportReplacement struct {
	Start      int     `json:"start"`
	End        int     `json:"end"`
	EntityType string  `json:"entity_type"`
	Score      float64 `json:"score"`
	Unresolved bool    `json:"unresolved,omitempty"`
}

// NewReport builds a Report from an engine result. Original values are
// stripped from the replacement records before persistence.
func NewReport(source string, res *engine.Result) *Report {
	r := &Report{
		ID:                uuid.NewString(),
		Timestamp:         time.Now().UTC(),
		Source:            source,
		EntitiesFound:     res.EntitiesFound(),
		EntityTypes:       res.EntityTypes(),
		PseudonymizedText: res.PseudonymizedText,
	}
	for _, rep := range res.Replacements {
		if rep.Unresolved {
			r.Unresolved++
		}
		r.Replacements = append(r.Replacements, ReportReplacement{
			Start:      rep.Start,
			End:        rep.End,
			EntityType: rep.EntityType,
			Score:      rep.Score,
			Unresolved: rep.Unresolved,
		})
	}
	return r
}

// Store persists reports in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (and if needed initializes) the reports database.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening reports database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		timestamp TIMESTAMP NOT NULL,
		source TEXT NOT NULL,
		entities_found INTEGER NOT NULL,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reports_timestamp ON reports(timestamp);
	CREATE INDEX IF NOT EXISTS idx_reports_source ON reports(source);
	`

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		return nil, fmt.Errorf("creating reports schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save persists a report.
func (s *Store) Save(ctx context.Context, r *Report) error {
	ctx, span := tracer.Start(ctx, "store.save",
		trace.WithAttributes(attribute.String("report.id", r.ID)))
	defer span.End()

	reportJSON, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	query := `INSERT INTO reports (id, timestamp, source, entities_found, report_json)
	          VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query,
		r.ID, r.Timestamp, r.Source, r.EntitiesFound, string(reportJSON)); err != nil {
		return fmt.Errorf("storing report: %w", err)
	}
	return nil
}

// Get retrieves a report by ID.
func (s *Store) Get(ctx context.Context, id string) (*Report, error) {
	ctx, span := tracer.Start(ctx, "store.get",
		trace.WithAttributes(attribute.String("report.id", id)))
	defer span.End()

	var reportJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT report_json FROM reports WHERE id = ?`, id).Scan(&reportJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("report %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying report: %w", err)
	}

	var r Report
	if err := json.Unmarshal([]byte(reportJSON), &r); err != nil {
		return nil, fmt.Errorf("unmarshaling report: %w", err)
	}
	return &r, nil
}

// List returns reports matching the given filters, newest first.
func (s *Store) List(ctx context.Context, source string, from, to time.Time, limit int) ([]Report, error) {
	ctx, span := tracer.Start(ctx, "store.list",
		trace.WithAttributes(attribute.String("report.source", source)))
	defer span.End()

	query := `SELECT report_json FROM reports WHERE 1=1`
	args := []interface{}{}

	if source != "" {
		query += ` AND source = ?`
		args = append(args, source)
	}
	if !from.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, from)
	}
	if !to.IsZero() {
		query += ` AND timestamp <= ?`
		args = append(args, to)
	}

	query += ` ORDER BY timestamp DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying reports: %w", err)
	}
	defer rows.Close()

	var results []Report
	for rows.Next() {
		var reportJSON string
		if err := rows.Scan(&reportJSON); err != nil {
			return nil, fmt.Errorf("scanning report row: %w", err)
		}
		var r Report
		if err := json.Unmarshal([]byte(reportJSON), &r); err != nil {
			return nil, fmt.Errorf("unmarshaling report: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
