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
var _ driven.RotationLedger = (*RotationRepo)(nil)

// RotationRepo is the SQLite implementation of the RotationLedger port interface.
// Triggers in the schema reject UPDATE and DELETE on the rotations table.
type RotationRepo struct {
	db *DB
	tx *sql.Tx
}

// NewRotationRepo creates a new RotationRepo backed by the given DB.
func NewRotationRepo(db *DB) *RotationRepo {
	return &RotationRepo{db: db}
}

// Record appends one rotation edge.
func (r *RotationRepo) Record(ctx context.Context, edge model.RotationEdge) error {
	const query = `
		INSERT INTO rotations (retired_id, retired_key_hash, retired_key_prefix, replacement_id, owner, label, reason, rotated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	at := edge.At
	if at.IsZero() {
		at = time.Now()
	}

	var q querier = r.db.Writer
	if r.tx != nil {
		q = r.tx
	}

	_, err := q.ExecContext(ctx, query,
		edge.RetiredID, edge.RetiredKeyHash, edge.RetiredKeyPrefix, edge.ReplacementID,
		edge.Owner, edge.Label, edge.Reason, formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("record rotation %s -> %s: %w", edge.RetiredID, edge.ReplacementID, err)
	}
	return nil
}

// List returns rotation edges matching filter, newest first.
func (r *RotationRepo) List(ctx context.Context, filter model.RotationFilter) ([]model.RotationEdge, error) {
	var (
		where []string
		args  []any
	)
	if filter.ReplacementID != "" {
		where = append(where, "replacement_id = ?")
		args = append(args, filter.ReplacementID)
	}
	if filter.RetiredID != "" {
		where = append(where, "retired_id = ?")
		args = append(args, filter.RetiredID)
	}

	query := `
		SELECT id, retired_id, retired_key_hash, retired_key_prefix, replacement_id, owner, label, reason, rotated_at
		FROM rotations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY rotated_at DESC, id DESC LIMIT ?"
	args = append(args, normalizeLimit(filter.Limit))

	var q querier = r.db.Reader
	if r.tx != nil {
		q = r.tx
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rotations: %w", err)
	}
	defer rows.Close()

	edges := []model.RotationEdge{}
	for rows.Next() {
		var (
			edge      model.RotationEdge
			rotatedAt string
		)
		if err := rows.Scan(
			&edge.ID, &edge.RetiredID, &edge.RetiredKeyHash, &edge.RetiredKeyPrefix, &edge.ReplacementID,
			&edge.Owner, &edge.Label, &edge.Reason, &rotatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan rotation: %w", err)
		}
		edge.At, err = parseTime(rotatedAt)
		if err != nil {
			return nil, fmt.Errorf("parse rotated_at for rotation %d: %w", edge.ID, err)
		}
		edges = append(edges, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rotations: %w", err)
	}

	return edges, nil
}
