// Package storage persists analysis reports and archives uploaded documents.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/ericksa/contractlens/internal/analysis"
	"github.com/ericksa/contractlens/internal/logging"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

const reportsTable = "reports"

var (
	ErrNotFound = errors.New("storage: report not found")
	ErrNoUser   = errors.New("storage: user id is required")

	// ErrCorruptReport means a stored payload could not be decoded.
	ErrCorruptReport = errors.New("storage: report payload unreadable")
	errNoDriver      = errors.New("storage: unsupported driver")
)

// StoredReport is one persisted analysis.
type StoredReport struct {
	ID                  string          `json:"id" yaml:"id"`
	UserID              string          `json:"userId" yaml:"userId"`
	FileName            string          `json:"fileName" yaml:"fileName"`
	Language            string          `json:"language" yaml:"language"`
	OverallScore        int             `json:"overallScore" yaml:"overallScore"`
	PowerImbalanceScore int             `json:"powerImbalanceScore" yaml:"powerImbalanceScore"`
	Output              analysis.Output `json:"output" yaml:"output"`
	CreatedAt           time.Time       `json:"createdAt" yaml:"createdAt"`
}

// ReportStore keeps reports in SQLite or Postgres.
type ReportStore struct {
	db     *sql.DB
	sb     sq.StatementBuilderType
	sealer *Sealer
	logger *zap.Logger

	now   func() time.Time
	newID func() string
}

// OpenReports opens dsn with driver and prepares the schema.
func OpenReports(ctx context.Context, driver, dsn string, sealer *Sealer, logger *zap.Logger) (*ReportStore, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("%w: %q", errNoDriver, driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// one writer; also keeps ":memory:" databases alive across calls
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	store, err := NewReportStore(ctx, db, driver, sealer, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewReportStore wraps an open database and creates the schema if needed.
func NewReportStore(ctx context.Context, db *sql.DB, driver string, sealer *Sealer, logger *zap.Logger) (*ReportStore, error) {
	var placeholder sq.PlaceholderFormat = sq.Question
	if driver == DriverPostgres {
		placeholder = sq.Dollar
	}
	s := &ReportStore{
		db:     db,
		sb:     sq.StatementBuilder.PlaceholderFormat(placeholder),
		sealer: sealer,
		logger: logging.OrNop(logger).Named("storage.reports"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ReportStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS reports (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			file_name TEXT NOT NULL,
			language TEXT NOT NULL,
			overall_score INTEGER NOT NULL,
			power_imbalance INTEGER NOT NULL,
			payload TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS reports_user_created ON reports (user_id, created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate reports: %w", err)
		}
	}
	return nil
}

// DB exposes the underlying handle for collaborators sharing the database.
func (s *ReportStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *ReportStore) Close() error { return s.db.Close() }

// Save persists out for userID and returns the new record id.
func (s *ReportStore) Save(ctx context.Context, userID, fileName string, out analysis.Output) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", ErrNoUser
	}

	payload, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	sealed, err := s.sealer.Seal(payload)
	if err != nil {
		return "", fmt.Errorf("seal report: %w", err)
	}

	id := s.newID()
	query, args, err := s.sb.Insert(reportsTable).
		Columns("id", "user_id", "file_name", "language", "overall_score", "power_imbalance", "payload", "created_at").
		Values(id, userID, fileName, string(out.BhashaOutput.Language), out.RiskReport.OverallScore, out.PowerImbalanceScore, sealed, s.now().UTC().UnixNano()).
		ToSql()
	if err != nil {
		return "", err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return "", fmt.Errorf("insert report: %w", err)
	}

	s.logger.Debug("report saved", zap.String("id", id), zap.String("user", userID), zap.String("file", fileName))
	return id, nil
}

// List returns userID's reports, newest first. Rows whose payload cannot be
// unsealed or decoded are logged and skipped.
func (s *ReportStore) List(ctx context.Context, userID string) ([]StoredReport, error) {
	query, args, err := s.selectReports().
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	reports := []StoredReport{}
	for rows.Next() {
		r, err := s.scan(rows)
		if errors.Is(err, ErrSealBroken) || errors.Is(err, ErrCorruptReport) {
			s.logger.Warn("skipping unreadable report", zap.String("id", r.ID), zap.String("user", userID), zap.Error(err))
			continue
		}
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// Get returns one of userID's reports.
func (s *ReportStore) Get(ctx context.Context, userID, id string) (StoredReport, error) {
	query, args, err := s.selectReports().
		Where(sq.Eq{"user_id": userID, "id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return StoredReport{}, err
	}

	r, err := s.scan(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return StoredReport{}, ErrNotFound
	}
	return r, err
}

func (s *ReportStore) selectReports() sq.SelectBuilder {
	return s.sb.Select("id", "user_id", "file_name", "language", "overall_score", "power_imbalance", "payload", "created_at").
		From(reportsTable)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *ReportStore) scan(row rowScanner) (StoredReport, error) {
	var (
		r       StoredReport
		payload string
		created int64
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.FileName, &r.Language, &r.OverallScore, &r.PowerImbalanceScore, &payload, &created); err != nil {
		return StoredReport{}, err
	}
	r.CreatedAt = time.Unix(0, created).UTC()

	plain, err := s.sealer.Open(payload)
	if err != nil {
		return StoredReport{ID: r.ID}, fmt.Errorf("report %s: %w", r.ID, err)
	}
	if err := json.Unmarshal(plain, &r.Output); err != nil {
		return StoredReport{ID: r.ID}, fmt.Errorf("report %s: %w: %v", r.ID, ErrCorruptReport, err)
	}
	return r, nil
}
