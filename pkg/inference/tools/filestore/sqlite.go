// Package filestore keeps a durable copy of workspace files, keyed by app id, for hosts
// that rebuild workspaces from storage.
package filestore

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-go-golems/codesmith/pkg/inference/tools"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// File is one stored file.
type File struct {
	Path      string
	Content   []byte
	UpdatedAt time.Time
}

// SQLiteStore implements tools.FileStore over a SQLite table.
type SQLiteStore struct{ db *sql.DB }

var _ tools.FileStore = (*SQLiteStore)(nil)

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open file store db")
	}
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrate file store db")
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS app_files (
  app_id TEXT NOT NULL,
  path TEXT NOT NULL,
  content BLOB NOT NULL,
  updated_at TEXT NOT NULL,
  PRIMARY KEY (app_id, path)
);
`)
	return err
}

func (s *SQLiteStore) Put(ctx context.Context, appID, path string, content []byte) error {
	if content == nil {
		content = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO app_files (app_id, path, content, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (app_id, path) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		appID, path, content, time.Now().UTC().Format(time.RFC3339Nano))
	return errors.Wrapf(err, "store %s", path)
}

// Delete removes path. Deleting a path that was never stored is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, appID, path string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM app_files WHERE app_id = ? AND path = ?`, appID, path)
	return errors.Wrapf(err, "delete %s", path)
}

// Get returns sql.ErrNoRows when the file is not stored.
func (s *SQLiteStore) Get(ctx context.Context, appID, path string) (*File, error) {
	var (
		f  File
		at string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT path, content, updated_at FROM app_files WHERE app_id = ? AND path = ?`, appID, path).
		Scan(&f.Path, &f.Content, &at)
	if err != nil {
		return nil, err
	}
	if f.UpdatedAt, err = time.Parse(time.RFC3339Nano, at); err != nil {
		return nil, errors.Wrap(err, "parse updated_at")
	}
	return &f, nil
}

// List returns the stored paths of an app in lexical order.
func (s *SQLiteStore) List(ctx context.Context, appID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM app_files WHERE app_id = ? ORDER BY path`, appID)
	if err != nil {
		return nil, errors.Wrap(err, "list files")
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}
