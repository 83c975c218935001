package transcript

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// SQLiteStore implements Recorder using a SQLite database.
type SQLiteStore struct{ db *sql.DB }

var _ Recorder = (*SQLiteStore)(nil)

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open transcript db")
	}
	// one writer; keeps :memory: databases on a single connection
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrate transcript db")
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS transcripts (
  id TEXT PRIMARY KEY,
  session_id TEXT,
  created_at TEXT NOT NULL,
  finalized_at TEXT,
  final_response TEXT,
  metadata TEXT
);

CREATE TABLE IF NOT EXISTS transcript_entries (
  transcript_id TEXT NOT NULL REFERENCES transcripts(id),
  idx INTEGER NOT NULL,
  at TEXT NOT NULL,
  role TEXT NOT NULL,
  content TEXT NOT NULL,
  metadata TEXT,
  PRIMARY KEY (transcript_id, idx)
);
`)
	return err
}

func marshalMetadata(m map[string]any) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, errors.Wrap(err, "marshal metadata")
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalMetadata(ns sql.NullString) (map[string]any, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(ns.String), &m); err != nil {
		return nil, errors.Wrap(err, "unmarshal metadata")
	}
	return m, nil
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func (s *SQLiteStore) Start(ctx context.Context, sessionID string, metadata map[string]any) (string, error) {
	md, err := marshalMetadata(metadata)
	if err != nil {
		return "", err
	}
	id := NewID()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO transcripts (id, session_id, created_at, metadata) VALUES (?, ?, ?, ?)`,
		id, sessionID, time.Now().UTC().Format(time.RFC3339Nano), md)
	if err != nil {
		return "", errors.Wrap(err, "insert transcript")
	}
	return id, nil
}

// state returns whether the transcript exists and is finalized.
func (s *SQLiteStore) state(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var finalized sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT finalized_at FROM transcripts WHERE id = ?`, id).Scan(&finalized)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, errors.Wrap(ErrNotFound, id)
	case err != nil:
		return false, err
	}
	return finalized.Valid, nil
}

func (s *SQLiteStore) Append(ctx context.Context, id string, e Entry) (idx int, err error) {
	md, err := marshalMetadata(e.Metadata)
	if err != nil {
		return 0, err
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	finalized, err := s.state(ctx, tx, id)
	if err != nil {
		return 0, err
	}
	if finalized {
		return 0, errors.Wrap(ErrFinalized, id)
	}
	if err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transcript_entries WHERE transcript_id = ?`, id).Scan(&idx); err != nil {
		return 0, err
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO transcript_entries (transcript_id, idx, at, role, content, metadata) VALUES (?, ?, ?, ?, ?, ?)`,
		id, idx, e.Timestamp.UTC().Format(time.RFC3339Nano), e.Role, e.Content, md); err != nil {
		return 0, errors.Wrap(err, "insert entry")
	}
	return idx, tx.Commit()
}

func (s *SQLiteStore) Finalize(ctx context.Context, id string, finalResponse string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	finalized, err := s.state(ctx, tx, id)
	if err != nil {
		return err
	}
	if finalized {
		return errors.Wrap(ErrFinalized, id)
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE transcripts SET finalized_at = ?, final_response = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), finalResponse, id); err != nil {
		return errors.Wrap(err, "finalize transcript")
	}
	return tx.Commit()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Transcript, error) {
	var (
		t                  = &Transcript{ID: id}
		createdAt          string
		finalizedAt, final sql.NullString
		sessionID, md      sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, created_at, finalized_at, final_response, metadata FROM transcripts WHERE id = ?`, id).
		Scan(&sessionID, &createdAt, &finalizedAt, &final, &md)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, errors.Wrap(ErrNotFound, id)
	case err != nil:
		return nil, err
	}
	t.SessionID = sessionID.String
	t.FinalResponse = final.String
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if finalizedAt.Valid {
		ft, err := parseTime(finalizedAt.String)
		if err != nil {
			return nil, err
		}
		t.FinalizedAt = &ft
	}
	if t.Metadata, err = unmarshalMetadata(md); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT at, role, content, metadata FROM transcript_entries WHERE transcript_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			e   Entry
			at  string
			emd sql.NullString
		)
		if err := rows.Scan(&at, &e.Role, &e.Content, &emd); err != nil {
			return nil, err
		}
		if e.Timestamp, err = parseTime(at); err != nil {
			return nil, err
		}
		if e.Metadata, err = unmarshalMetadata(emd); err != nil {
			return nil, err
		}
		t.Entries = append(t.Entries, e)
	}
	return t, rows.Err()
}

func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT t.id, t.session_id, t.created_at, t.finalized_at IS NOT NULL,
       (SELECT COUNT(*) FROM transcript_entries e WHERE e.transcript_id = t.id)
FROM transcripts t`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sm        Summary
			sessionID sql.NullString
			createdAt string
		)
		if err := rows.Scan(&sm.ID, &sessionID, &createdAt, &sm.Finalized, &sm.Entries); err != nil {
			return nil, err
		}
		sm.SessionID = sessionID.String
		if sm.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortSummaries(out)
	return out, nil
}
