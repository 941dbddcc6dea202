package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"hypocycle/domain/core"
	"hypocycle/domain/spec"
	"hypocycle/domain/verdict"
	"hypocycle/internal/errors"
	"hypocycle/internal/migration"
	"hypocycle/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // pure go sqlite driver
	"go.uber.org/zap"
)

// Driver names accepted by Open
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// RecordStore implements ports.RecordRepository over PostgreSQL or SQLite
type RecordStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

var _ ports.RecordRepository = (*RecordStore)(nil)

// Open connects to the database and applies migrations
func Open(ctx context.Context, driver, dsn string, logger *zap.Logger) (*RecordStore, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, errors.ConfigInvalid("unsupported store driver " + driver)
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, fmt.Errorf("connect %s: %w", driver, err))
	}
	if driver == DriverSQLite {
		// a single writer avoids SQLITE_BUSY under concurrent cycles
		db.SetMaxOpenConns(1)
	}

	if err := migration.NewRunner().Run(ctx, db); err != nil {
		_ = db.Close()
		return nil, errors.WithCode(errors.CodeDatabaseError, err)
	}

	return New(db, logger), nil
}

// New wraps an already migrated connection
func New(db *sqlx.DB, logger *zap.Logger) *RecordStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordStore{db: db, logger: logger}
}

// Close closes the underlying connection
func (s *RecordStore) Close() error {
	return s.db.Close()
}

type recordRow struct {
	CycleID         string         `db:"cycle_id"`
	Hypothesis      string         `db:"hypothesis"`
	TrendIncreasing bool           `db:"trend_increasing"`
	Conclusion      string         `db:"conclusion"`
	NextSteps       string         `db:"next_steps"`
	Results         string         `db:"results"`
	Ordering        string         `db:"ordering"`
	OrderedIDs      string         `db:"ordered_ids"`
	Statistics      sql.NullString `db:"statistics"`
	Partial         bool           `db:"partial"`
	AnalyzedAt      int64          `db:"analyzed_at"`
}

const recordColumns = `cycle_id, hypothesis, trend_increasing, conclusion, next_steps, results,
	ordering, ordered_ids, statistics, partial, analyzed_at`

// SaveRecord upserts a record under its cycle id
func (s *RecordStore) SaveRecord(ctx context.Context, record *verdict.AnalysisRecord) error {
	if record.CycleID.IsEmpty() {
		return errors.InvalidInput("analysis record has no cycle id")
	}
	row, err := toRow(record)
	if err != nil {
		return errors.Wrap(err, "failed to encode analysis record")
	}

	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO analysis_records (`+recordColumns+`)
		VALUES (:cycle_id, :hypothesis, :trend_increasing, :conclusion, :next_steps, :results,
			:ordering, :ordered_ids, :statistics, :partial, :analyzed_at)
		ON CONFLICT (cycle_id) DO UPDATE SET
			hypothesis = EXCLUDED.hypothesis,
			trend_increasing = EXCLUDED.trend_increasing,
			conclusion = EXCLUDED.conclusion,
			next_steps = EXCLUDED.next_steps,
			results = EXCLUDED.results,
			ordering = EXCLUDED.ordering,
			ordered_ids = EXCLUDED.ordered_ids,
			statistics = EXCLUDED.statistics,
			partial = EXCLUDED.partial,
			analyzed_at = EXCLUDED.analyzed_at`, row)
	if err != nil {
		return errors.WithCode(errors.CodeDatabaseError, fmt.Errorf("save record %s: %w", record.CycleID, err))
	}

	s.logger.Debug("analysis record saved", zap.String("cycle_id", record.CycleID.String()))
	return nil
}

// GetRecord retrieves a record by cycle id
func (s *RecordStore) GetRecord(ctx context.Context, id core.CycleID) (*verdict.AnalysisRecord, error) {
	var row recordRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+recordColumns+` FROM analysis_records WHERE cycle_id = ?`), id.String())
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("cycle " + id.String())
	}
	if err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, fmt.Errorf("get record %s: %w", id, err))
	}
	return fromRow(row)
}

// ListRecords returns the most recent records first
func (s *RecordStore) ListRecords(ctx context.Context, limit int) ([]*verdict.AnalysisRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM analysis_records ORDER BY analyzed_at DESC, cycle_id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, fmt.Errorf("list records: %w", err))
	}

	records := make([]*verdict.AnalysisRecord, 0, len(rows))
	for _, row := range rows {
		record, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

type specRow struct {
	NamespacedID  string `db:"namespaced_id"`
	CycleID       string `db:"cycle_id"`
	SampleID      string `db:"sample_id"`
	Position      int    `db:"position"`
	SchemaVersion string `db:"schema_version"`
	Payload       string `db:"payload"`
}

// SaveBatch replaces the specs stored for a cycle
func (s *RecordStore) SaveBatch(ctx context.Context, cycle core.CycleID, specs []spec.SampleSpecification) error {
	if cycle.IsEmpty() {
		return errors.InvalidInput("batch has no cycle id")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.WithCode(errors.CodeDatabaseError, fmt.Errorf("begin batch: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM sample_specs WHERE cycle_id = ?`), cycle.String()); err != nil {
		return errors.WithCode(errors.CodeDatabaseError, fmt.Errorf("clear batch %s: %w", cycle, err))
	}

	for i, sp := range specs {
		payload, err := json.Marshal(sp)
		if err != nil {
			return errors.Wrapf(err, "failed to encode spec %s", sp.SampleID)
		}
		row := specRow{
			NamespacedID:  sp.SampleID.Namespaced(cycle),
			CycleID:       cycle.String(),
			SampleID:      sp.SampleID.String(),
			Position:      i,
			SchemaVersion: sp.SchemaVersion,
			Payload:       string(payload),
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO sample_specs (namespaced_id, cycle_id, sample_id, position, schema_version, payload)
			VALUES (:namespaced_id, :cycle_id, :sample_id, :position, :schema_version, :payload)`, row); err != nil {
			return errors.WithCode(errors.CodeDatabaseError, fmt.Errorf("save spec %s: %w", row.NamespacedID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.WithCode(errors.CodeDatabaseError, fmt.Errorf("commit batch %s: %w", cycle, err))
	}
	return nil
}

// GetBatch returns the specs of a cycle in batch order. Stored specs are
// validated against the current schema version before they are returned.
func (s *RecordStore) GetBatch(ctx context.Context, cycle core.CycleID) ([]spec.SampleSpecification, error) {
	var rows []specRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT namespaced_id, cycle_id, sample_id, position, schema_version, payload
		FROM sample_specs WHERE cycle_id = ? ORDER BY position`), cycle.String())
	if err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, fmt.Errorf("get batch %s: %w", cycle, err))
	}
	if len(rows) == 0 {
		return nil, errors.NotFound("batch for cycle " + cycle.String())
	}

	specs := make([]spec.SampleSpecification, 0, len(rows))
	for _, row := range rows {
		sp, err := spec.ValidateJSON([]byte(row.Payload))
		if err != nil {
			return nil, fmt.Errorf("stored spec %s: %w", row.NamespacedID, err)
		}
		specs = append(specs, sp)
	}
	return specs, nil
}

func toRow(record *verdict.AnalysisRecord) (recordRow, error) {
	nextSteps, err := json.Marshal(record.NextSteps)
	if err != nil {
		return recordRow{}, err
	}
	results, err := json.Marshal(record.Results)
	if err != nil {
		return recordRow{}, err
	}
	orderedIDs, err := json.Marshal(record.OrderedIDs)
	if err != nil {
		return recordRow{}, err
	}

	row := recordRow{
		CycleID:         record.CycleID.String(),
		Hypothesis:      record.Hypothesis,
		TrendIncreasing: record.TrendIncreasing,
		Conclusion:      string(record.Conclusion),
		NextSteps:       string(nextSteps),
		Results:         string(results),
		Ordering:        string(record.Ordering),
		OrderedIDs:      string(orderedIDs),
		Partial:         record.Partial,
		AnalyzedAt:      record.AnalyzedAt.UnixNano(),
	}
	if row.Ordering == "" {
		row.Ordering = string(verdict.OrderingLexicographic)
	}
	if record.Statistics != nil {
		stats, err := json.Marshal(record.Statistics)
		if err != nil {
			return recordRow{}, err
		}
		row.Statistics = sql.NullString{String: string(stats), Valid: true}
	}
	return row, nil
}

func fromRow(row recordRow) (*verdict.AnalysisRecord, error) {
	record := &verdict.AnalysisRecord{
		CycleID:         core.CycleID(row.CycleID),
		Hypothesis:      row.Hypothesis,
		TrendIncreasing: row.TrendIncreasing,
		Conclusion:      verdict.Conclusion(row.Conclusion),
		Ordering:        verdict.Ordering(row.Ordering),
		Partial:         row.Partial,
		AnalyzedAt:      time.Unix(0, row.AnalyzedAt).UTC(),
	}

	if err := json.Unmarshal([]byte(row.NextSteps), &record.NextSteps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal next_steps: %w", err)
	}
	if err := json.Unmarshal([]byte(row.Results), &record.Results); err != nil {
		return nil, fmt.Errorf("failed to unmarshal results: %w", err)
	}
	if err := json.Unmarshal([]byte(row.OrderedIDs), &record.OrderedIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ordered_ids: %w", err)
	}
	if row.Statistics.Valid {
		record.Statistics = &verdict.TrendStatistics{}
		if err := json.Unmarshal([]byte(row.Statistics.String), record.Statistics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal statistics: %w", err)
		}
	}
	return record, nil
}
