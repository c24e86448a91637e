package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/keyledger/internal/domain/model"
	"github.com/ericfisherdev/keyledger/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port interface.
// Only the keyed digest of a presented key is stored; the plaintext never reaches the database.
type CredentialRepo struct {
	db *DB
	tx *sql.Tx // Non-nil when the repo is bound to a Transactor transaction.
}

// NewCredentialRepo creates a new CredentialRepo backed by the given DB.
func NewCredentialRepo(db *DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

func (r *CredentialRepo) reader() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db.Reader
}

func (r *CredentialRepo) writer() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db.Writer
}

const credentialColumns = `id, owner, label, key_prefix, key_hash, created_at, last_used_at, active`

// Insert stores a new credential. The insert is skipped, and
// ErrCredentialConflict returned, when the ID or key hash belongs to a
// tombstoned credential.
func (r *CredentialRepo) Insert(ctx context.Context, cred model.Credential) (model.Credential, error) {
	const query = `
		INSERT INTO credentials (id, owner, label, key_prefix, key_hash, created_at, last_used_at, active)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM credential_tombstones WHERE key_hash = ? OR credential_id = ?
		)
	`

	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now().UTC()
	}
	cred.CreatedAt = cred.CreatedAt.UTC()

	var lastUsed any
	if cred.LastUsedAt != nil {
		lastUsed = formatTime(*cred.LastUsedAt)
	}

	result, err := r.writer().ExecContext(ctx, query,
		cred.ID, cred.Owner, cred.Label, cred.KeyPrefix, cred.KeyHash,
		formatTime(cred.CreatedAt), lastUsed, boolToInt(cred.Active),
		cred.KeyHash, cred.ID,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return model.Credential{}, fmt.Errorf("insert credential %s: %w", cred.ID, driven.ErrCredentialConflict)
		}
		return model.Credential{}, fmt.Errorf("insert credential %s: %w", cred.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return model.Credential{}, fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return model.Credential{}, fmt.Errorf("insert credential %s: retired key or id: %w", cred.ID, driven.ErrCredentialConflict)
	}

	return cred, nil
}

// FindByKeyHash returns the credential with the given hash, active or not.
// Returns nil, nil if no credential matches.
func (r *CredentialRepo) FindByKeyHash(ctx context.Context, keyHash string) (*model.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE key_hash = ?`
	return r.findOne(ctx, "find credential by hash", query, keyHash)
}

// FindActiveByKeyHash returns the credential with the given hash only if it is active.
func (r *CredentialRepo) FindActiveByKeyHash(ctx context.Context, keyHash string) (*model.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE key_hash = ? AND active = 1`
	return r.findOne(ctx, "find active credential by hash", query, keyHash)
}

// GetByID returns the credential with the given ID, or nil, nil.
func (r *CredentialRepo) GetByID(ctx context.Context, id string) (*model.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE id = ?`
	return r.findOne(ctx, "get credential "+id, query, id)
}

func (r *CredentialRepo) findOne(ctx context.Context, op, query string, arg any) (*model.Credential, error) {
	cred, err := scanCredential(r.reader().QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cred, nil
}

// MarkUsed records the time the credential last passed validation.
func (r *CredentialRepo) MarkUsed(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE credentials SET last_used_at = ? WHERE id = ?`
	return r.execOne(ctx, "mark credential used "+id, query, formatTime(at), id)
}

// Deactivate flags the credential inactive. Deactivating an inactive
// credential is not an error.
func (r *CredentialRepo) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE credentials SET active = 0 WHERE id = ?`
	return r.execOne(ctx, "deactivate credential "+id, query, id)
}

// Delete removes a credential and tombstones its key hash in one transaction.
func (r *CredentialRepo) Delete(ctx context.Context, id string) error {
	if r.tx != nil {
		return deleteCredential(ctx, r.tx, id)
	}

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after commit is a no-op.

	if err := deleteCredential(ctx, tx, id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete credential %s: %w", id, err)
	}
	return nil
}

func deleteCredential(ctx context.Context, q querier, id string) error {
	const tombstoneQuery = `
		INSERT INTO credential_tombstones (key_hash, credential_id, retired_at)
		SELECT key_hash, id, ? FROM credentials WHERE id = ?
	`
	result, err := q.ExecContext(ctx, tombstoneQuery, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("tombstone credential %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("delete credential %s: %w", id, driven.ErrCredentialNotFound)
	}

	const deleteQuery = `DELETE FROM credentials WHERE id = ?`
	if _, err := q.ExecContext(ctx, deleteQuery, id); err != nil {
		return fmt.Errorf("delete credential %s: %w", id, err)
	}
	return nil
}

// ListAll returns at most limit credentials ordered by creation time, newest first.
func (r *CredentialRepo) ListAll(ctx context.Context, limit int) ([]model.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := r.reader().QueryContext(ctx, query, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	creds := []model.Credential{}
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}

	return creds, nil
}

func (r *CredentialRepo) execOne(ctx context.Context, op, query string, args ...any) error {
	result, err := r.writer().ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, driven.ErrCredentialNotFound)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanCredential(s scanner) (model.Credential, error) {
	var (
		cred      model.Credential
		createdAt string
		lastUsed  sql.NullString
		active    int
	)

	if err := s.Scan(&cred.ID, &cred.Owner, &cred.Label, &cred.KeyPrefix, &cred.KeyHash, &createdAt, &lastUsed, &active); err != nil {
		return model.Credential{}, err
	}

	var err error
	cred.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return model.Credential{}, fmt.Errorf("parse created_at: %w", err)
	}
	cred.LastUsedAt, err = parseNullTime(lastUsed)
	if err != nil {
		return model.Credential{}, fmt.Errorf("parse last_used_at: %w", err)
	}
	cred.Active = active == 1

	return cred, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// maxListLimit caps listings when callers pass a non-positive or oversized limit.
const maxListLimit = 10000

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
