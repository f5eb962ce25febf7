// Package store keeps the upload history: one row per processed upload,
// successful or not, in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hazyhaar/ppadmin/dbopen"
	"github.com/hazyhaar/ppadmin/idgen"
)

// Schema creates the uploads table.
const Schema = `
CREATE TABLE IF NOT EXISTS uploads (
    id          TEXT PRIMARY KEY,
    data_group  TEXT NOT NULL,
    data_type   TEXT NOT NULL,
    filename    TEXT NOT NULL,
    format      TEXT,
    records     INTEGER NOT NULL DEFAULT 0,
    status      TEXT NOT NULL,
    problems    TEXT NOT NULL DEFAULT '[]',
    user_id     TEXT,
    request_id  TEXT,
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_uploads_dataset ON uploads(data_group, data_type, created_at);
CREATE INDEX IF NOT EXISTS idx_uploads_created ON uploads(created_at);
`

// Upload is one history row.
type Upload struct {
	ID        string    `json:"id"`
	DataGroup string    `json:"data_group"`
	DataType  string    `json:"data_type"`
	Filename  string    `json:"filename"`
	Format    string    `json:"format,omitempty"`
	Records   int       `json:"records"`
	Status    string    `json:"status"`
	Problems  []string  `json:"problems"`
	UserID    string    `json:"user_id,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store wraps the history database.
type Store struct {
	db    *sql.DB
	newID idgen.Generator
	now   func() time.Time
}

// Open opens (or creates) the history database at path.
func Open(path string) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return New(db), nil
}

// New wraps an already opened database. The schema must exist.
func New(db *sql.DB) *Store {
	return &Store{db: db, newID: idgen.Upload, now: time.Now}
}

// DB returns the underlying database.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Record inserts u, filling ID and CreatedAt when unset.
func (s *Store) Record(ctx context.Context, u *Upload) error {
	if u.ID == "" {
		u.ID = s.newID()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	if u.Problems == nil {
		u.Problems = []string{}
	}
	problems, err := json.Marshal(u.Problems)
	if err != nil {
		return fmt.Errorf("store: encode problems: %w", err)
	}
	_, err = dbopen.Exec(ctx, s.db, `
		INSERT INTO uploads (id, data_group, data_type, filename, format, records, status, problems, user_id, request_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.DataGroup, u.DataType, u.Filename, u.Format, u.Records, u.Status,
		string(problems), u.UserID, u.RequestID, u.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("store: insert upload: %w", err)
	}
	return nil
}

// Recent returns the latest uploads, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Upload, error) {
	return s.query(ctx, `SELECT `+columns+` FROM uploads ORDER BY created_at DESC, id DESC LIMIT ?`, clamp(limit))
}

// ForDataSet returns the latest uploads to one data set, newest first.
func (s *Store) ForDataSet(ctx context.Context, group, typ string, limit int) ([]Upload, error) {
	return s.query(ctx, `SELECT `+columns+` FROM uploads
		WHERE data_group = ? AND data_type = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, group, typ, clamp(limit))
}

const columns = `id, data_group, data_type, filename, format, records, status, problems, user_id, request_id, created_at`

func clamp(limit int) int {
	if limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Upload, error) {
	rows, err := dbopen.Query(ctx, s.db, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query uploads: %w", err)
	}
	defer rows.Close()

	out := []Upload{}
	for rows.Next() {
		var (
			u                         Upload
			format, userID, requestID sql.NullString
			problems                  string
			createdAt                 int64
		)
		if err := rows.Scan(&u.ID, &u.DataGroup, &u.DataType, &u.Filename, &format, &u.Records,
			&u.Status, &problems, &userID, &requestID, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan upload: %w", err)
		}
		u.Format, u.UserID, u.RequestID = format.String, userID.String, requestID.String
		if err := json.Unmarshal([]byte(problems), &u.Problems); err != nil {
			return nil, fmt.Errorf("store: decode problems of %s: %w", u.ID, err)
		}
		u.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, u)
	}
	return out, rows.Err()
}
