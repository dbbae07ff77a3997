// Package audit records every analysis, negotiation and history access.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"

	"github.com/ericksa/contractlens/internal/logging"
)

const auditTable = "audit_log"

type Auditor struct {
	db     *sql.DB
	sb     sq.StatementBuilderType
	logger *zap.Logger
	now    func() time.Time
}

type AuditEntry struct {
	ID         int64     `json:"id" yaml:"id"`
	Action     string    `json:"action" yaml:"action"`
	UserID     string    `json:"userId,omitempty" yaml:"userId,omitempty"`
	Subject    string    `json:"subject,omitempty" yaml:"subject,omitempty"`
	Input      string    `json:"input,omitempty" yaml:"input,omitempty"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
	DurationMS int64     `json:"durationMs" yaml:"durationMs"`
	Timestamp  time.Time `json:"timestamp" yaml:"timestamp"`
}

// Record is one audited action.
type Record struct {
	Action   string
	UserID   string
	Subject  string
	Input    any
	Err      error
	Duration time.Duration
}

// NewAuditor creates the audit table in db. driver is "sqlite3" or
// "postgres". A nil db yields an Auditor that only logs.
func NewAuditor(ctx context.Context, db *sql.DB, driver string, logger *zap.Logger) (*Auditor, error) {
	a := &Auditor{
		db:     db,
		sb:     sq.StatementBuilder.PlaceholderFormat(sq.Question),
		logger: logging.OrNop(logger).Named("audit"),
		now:    time.Now,
	}
	if db == nil {
		return a, nil
	}

	idColumn := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if driver == "postgres" {
		idColumn = "id BIGSERIAL PRIMARY KEY"
		a.sb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+auditTable+` (
		`+idColumn+`,
		action TEXT NOT NULL,
		user_id TEXT,
		subject TEXT,
		input TEXT,
		error TEXT,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL
	)`)
	if err != nil {
		return nil, fmt.Errorf("create audit table: %w", err)
	}
	return a, nil
}

// Log writes rec. Failures are logged, never returned.
func (a *Auditor) Log(ctx context.Context, rec Record) {
	if a == nil {
		return
	}

	fields := []zap.Field{
		zap.String("action", rec.Action),
		zap.String("user", rec.UserID),
		zap.String("subject", rec.Subject),
		zap.Duration("duration", rec.Duration),
	}
	if rec.Err != nil {
		fields = append(fields, zap.Error(rec.Err))
	}
	a.logger.Info("audit", fields...)

	if a.db == nil {
		return
	}

	var input, errStr string
	if rec.Input != nil {
		if b, err := json.Marshal(rec.Input); err == nil {
			input = string(b)
		}
	}
	if rec.Err != nil {
		errStr = rec.Err.Error()
	}

	query, args, err := a.sb.Insert(auditTable).
		Columns("action", "user_id", "subject", "input", "error", "duration_ms", "created_at").
		Values(rec.Action, rec.UserID, rec.Subject, input, errStr, rec.Duration.Milliseconds(), a.now().UTC().UnixNano()).
		ToSql()
	if err == nil {
		_, err = a.db.ExecContext(context.WithoutCancel(ctx), query, args...)
	}
	if err != nil {
		a.logger.Warn("failed to write audit log", zap.Error(err))
	}
}

// GetLogs returns the newest entries first.
func (a *Auditor) GetLogs(ctx context.Context, limit int) ([]AuditEntry, error) {
	if a == nil || a.db == nil {
		return []AuditEntry{}, nil
	}
	if limit <= 0 {
		limit = 100
	}

	query, args, err := a.sb.Select("id", "action", "user_id", "subject", "input", "error", "duration_ms", "created_at").
		From(auditTable).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []AuditEntry{}
	for rows.Next() {
		var (
			e                            AuditEntry
			user, subject, input, errStr sql.NullString
			created                      int64
		)
		if err := rows.Scan(&e.ID, &e.Action, &user, &subject, &input, &errStr, &e.DurationMS, &created); err != nil {
			return nil, err
		}
		e.UserID, e.Subject, e.Input, e.Error = user.String, subject.String, input.String, errStr.String
		e.Timestamp = time.Unix(0, created).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
