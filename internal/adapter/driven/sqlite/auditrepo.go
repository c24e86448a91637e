package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/keyledger/internal/domain/model"
	"github.com/ericfisherdev/keyledger/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.AuditLog = (*AuditRepo)(nil)

// AuditRepo is the SQLite implementation of the AuditLog port interface.
// Entries are written on the writer connection outside any lifecycle
// transaction so a rolled back operation still leaves its audit trail.
type AuditRepo struct {
	db *DB
}

// NewAuditRepo creates a new AuditRepo backed by the given DB.
func NewAuditRepo(db *DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// Append writes one audit entry.
func (r *AuditRepo) Append(ctx context.Context, entry model.AuditEntry) error {
	const query = `
		INSERT INTO audit_entries (id, subject_id, event_type, source, request_id, endpoint, outcome, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	at := entry.At
	if at.IsZero() {
		at = time.Now()
	}

	var subject any
	if entry.SubjectID != nil {
		subject = *entry.SubjectID
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		entry.ID, subject, string(entry.EventType), entry.Source, entry.RequestID,
		entry.Endpoint, string(entry.Outcome), entry.Detail, formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("append audit entry %s: %w", entry.ID, err)
	}
	return nil
}

// List returns audit entries matching filter, newest first.
func (r *AuditRepo) List(ctx context.Context, filter model.AuditFilter) ([]model.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	if filter.SubjectID != "" {
		where = append(where, "subject_id = ?")
		args = append(args, filter.SubjectID)
	}
	if filter.EventType != "" {
		where = append(where, "event_type = ?")
		args = append(args, string(filter.EventType))
	}
	if filter.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, string(filter.Outcome))
	}

	query := `
		SELECT id, subject_id, event_type, source, request_id, endpoint, outcome, detail, created_at
		FROM audit_entries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, normalizeLimit(filter.Limit))

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []model.AuditEntry{}
	for rows.Next() {
		var (
			entry     model.AuditEntry
			subject   sql.NullString
			eventType string
			outcome   string
			createdAt string
		)
		if err := rows.Scan(
			&entry.ID, &subject, &eventType, &entry.Source, &entry.RequestID,
			&entry.Endpoint, &outcome, &entry.Detail, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if subject.Valid {
			s := subject.String
			entry.SubjectID = &s
		}
		entry.EventType = model.EventType(eventType)
		entry.Outcome = model.Outcome(outcome)
		entry.At, err = parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at for audit entry %s: %w", entry.ID, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}

	return entries, nil
}
