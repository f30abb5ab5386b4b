package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"docpipe/internal/domain"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
	document_id    TEXT PRIMARY KEY,
	content_hash   TEXT NOT NULL,
	category       TEXT NOT NULL DEFAULT '',
	schema_name    TEXT NOT NULL DEFAULT '',
	schema_version INTEGER NOT NULL DEFAULT 0,
	status         TEXT NOT NULL,
	attempts       TEXT NOT NULL DEFAULT '[]',
	result         TEXT,
	failure_reason TEXT NOT NULL DEFAULT '',
	claimed_by     TEXT NOT NULL DEFAULT '',
	updated_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
`

type sessionRow struct {
	DocumentID    string         `db:"document_id"`
	ContentHash   string         `db:"content_hash"`
	Category      string         `db:"category"`
	SchemaName    string         `db:"schema_name"`
	SchemaVersion int            `db:"schema_version"`
	Status        string         `db:"status"`
	Attempts      string         `db:"attempts"`
	Result        sql.NullString `db:"result"`
	FailureReason string         `db:"failure_reason"`
	ClaimedBy     string         `db:"claimed_by"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

// Store is a sqlite-backed CheckpointStore. A session snapshot is one row;
// claims are a conditional update on claimed_by, so mutual exclusion is
// per-document and never a store-wide lock.
type Store struct {
	db *sqlx.DB
}

// New opens (or creates) the checkpoint database at path.
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating checkpoint dir: %w", err)
		}
	}
	db, err := sqlx.Connect("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint db: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing checkpoint schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Load(ctx context.Context, documentID uuid.UUID) (*domain.ExtractionSession, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row,
		`SELECT document_id, content_hash, category, schema_name, schema_version,
		        status, attempts, result, failure_reason, claimed_by, updated_at
		 FROM sessions WHERE document_id = ?`, documentID.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", documentID, err)
	}
	return rowToSession(&row)
}

func (s *Store) Save(ctx context.Context, sess *domain.ExtractionSession) error {
	attemptsJSON, err := json.Marshal(sess.Attempts)
	if err != nil {
		return fmt.Errorf("marshaling attempts: %w", err)
	}
	var resultJSON sql.NullString
	if sess.Result != nil {
		raw, err := json.Marshal(sess.Result)
		if err != nil {
			return fmt.Errorf("marshaling result: %w", err)
		}
		resultJSON = sql.NullString{String: string(raw), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (document_id, content_hash, category, schema_name, schema_version,
		                      status, attempts, result, failure_reason, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			content_hash = excluded.content_hash,
			category = excluded.category,
			schema_name = excluded.schema_name,
			schema_version = excluded.schema_version,
			status = excluded.status,
			attempts = excluded.attempts,
			result = excluded.result,
			failure_reason = excluded.failure_reason,
			updated_at = excluded.updated_at`,
		sess.DocumentID.String(), sess.ContentHash, string(sess.Category),
		sess.SchemaName, sess.SchemaVersion, string(sess.Status),
		string(attemptsJSON), resultJSON, sess.FailureReason, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving session %s: %w", sess.DocumentID, err)
	}
	return nil
}

// Claim acquires the per-document lock for owner. Re-claiming one's own
// document succeeds, so a restarted worker can resume its in-flight work.
func (s *Store) Claim(ctx context.Context, documentID uuid.UUID, owner string) (bool, error) {
	// Ensure the row exists so a claim can precede the first Save.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (document_id, content_hash, status, updated_at)
		VALUES (?, '', ?, ?)
		ON CONFLICT(document_id) DO NOTHING`,
		documentID.String(), string(domain.SessionStatusPending), time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("ensuring session row for claim: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET claimed_by = ?
		WHERE document_id = ? AND (claimed_by = '' OR claimed_by = ?)`,
		owner, documentID.String(), owner)
	if err != nil {
		return false, fmt.Errorf("claiming session %s: %w", documentID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking claim for %s: %w", documentID, err)
	}
	return affected == 1, nil
}

// Release drops the claim if owner still holds it.
func (s *Store) Release(ctx context.Context, documentID uuid.UUID, owner string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET claimed_by = ''
		WHERE document_id = ? AND claimed_by = ?`,
		documentID.String(), owner)
	if err != nil {
		return fmt.Errorf("releasing session %s: %w", documentID, err)
	}
	return nil
}

func (s *Store) ListByStatus(ctx context.Context, status domain.SessionStatus) ([]domain.ExtractionSession, error) {
	var rows []sessionRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT document_id, content_hash, category, schema_name, schema_version,
		        status, attempts, result, failure_reason, claimed_by, updated_at
		 FROM sessions WHERE status = ? ORDER BY updated_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("listing sessions by status %s: %w", status, err)
	}
	sessions := make([]domain.ExtractionSession, 0, len(rows))
	for i := range rows {
		sess, err := rowToSession(&rows[i])
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, nil
}

func rowToSession(row *sessionRow) (*domain.ExtractionSession, error) {
	docID, err := uuid.Parse(row.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("parsing document_id %q: %w", row.DocumentID, err)
	}
	sess := &domain.ExtractionSession{
		DocumentID:    docID,
		ContentHash:   row.ContentHash,
		Category:      domain.DocumentCategory(row.Category),
		SchemaName:    row.SchemaName,
		SchemaVersion: row.SchemaVersion,
		Status:        domain.SessionStatus(row.Status),
		FailureReason: row.FailureReason,
		UpdatedAt:     row.UpdatedAt,
	}
	if row.Attempts != "" {
		if err := json.Unmarshal([]byte(row.Attempts), &sess.Attempts); err != nil {
			return nil, fmt.Errorf("unmarshaling attempts for %s: %w", row.DocumentID, err)
		}
	}
	if row.Result.Valid {
		var result domain.ValidatedResult
		if err := json.Unmarshal([]byte(row.Result.String), &result); err != nil {
			return nil, fmt.Errorf("unmarshaling result for %s: %w", row.DocumentID, err)
		}
		sess.Result = &result
	}
	return sess, nil
}
