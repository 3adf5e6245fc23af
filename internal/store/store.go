package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("not found")

// SessionStatus represents the lifecycle of a rendering session.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionRunning   SessionStatus = "running"
	SessionDone      SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
	SessionFailed    SessionStatus = "failed"
)

// Finished reports whether the status is terminal.
func (s SessionStatus) Finished() bool {
	return s == SessionDone || s == SessionCancelled || s == SessionFailed
}

// Session is one consumed model stream and the tree it produced.
type Session struct {
	ID          string                 `json:"id"`
	Source      string                 `json:"source"`
	Status      SessionStatus          `json:"status"`
	State       string                 `json:"state,omitempty"`
	Tokens      int                    `json:"tokens"`
	Patches     int                    `json:"patches"`
	PatchErrors int                    `json:"patchErrors"`
	Bytes       int64                  `json:"bytes"`
	Terminated  bool                   `json:"terminated"`
	Text        string                 `json:"text,omitempty"`
	Tree        json.RawMessage        `json:"tree,omitempty"`
	Request     map[string]interface{} `json:"request,omitempty"`
	Error       string                 `json:"error,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	UpdatedAt   time.Time              `json:"updatedAt"`
}

// HistoryEntry stores notable session events (patch failures, cancellations).
type HistoryEntry struct {
	ID        string                 `json:"id"`
	Event     string                 `json:"event"`
	SessionID string                 `json:"sessionId,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// Store wraps the SQL database used for persistence.
type Store struct {
	db      *sql.DB
	dialect dialect
}

// Open initializes the datastore. driver is one of sqlite, postgres or
// mysql; for sqlite dsn is a file path.
func Open(dsn string, driver string) (*Store, error) {
	if driver == "" {
		driver = string(dialectSQLite)
	}
	d := dialect(driver)
	switch d {
	case dialectSQLite, dialectPostgres, dialectMySQL:
	default:
		return nil, fmt.Errorf("unsupported datastore driver: %s", driver)
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("datastore DSN is required")
	}

	conn := dsn
	if d == dialectSQLite {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create datastore directory: %w", err)
		}
		conn = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", dsn)
	}
	db, err := sql.Open(d.sqlDriver(), conn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s datastore: %w", d, err)
	}
	if d == dialectSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(30)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(2 * time.Minute)
	}
	if err := initSchema(db, d); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, dialect: d}, nil
}

func initSchema(db *sql.DB, d dialect) error {
	for _, stmt := range d.schema() {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("schema apply failed: %w", err)
		}
	}
	return nil
}

// Driver returns the configured dialect name.
func (s *Store) Driver() string {
	return string(s.dialect)
}

// Close shuts down the datastore.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const sessionColumns = `id, source, status, state, tokens, patches, patch_errors, bytes, terminated, text, tree, request, error, created_at, updated_at`

// CreateSession inserts a new session record.
func (s *Store) CreateSession(sess *Session) error {
	if sess.ID == "" {
		return errors.New("session id required")
	}
	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	if sess.Status == "" {
		sess.Status = SessionPending
	}
	request, err := json.Marshal(sess.Request)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(s.dialect.rebind(`INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		sess.ID, sess.Source, sess.Status, sess.State, sess.Tokens, sess.Patches, sess.PatchErrors, sess.Bytes, sess.Terminated,
		sess.Text, string(sess.Tree), string(request), sess.Error, sess.CreatedAt, sess.UpdatedAt,
	)
	return err
}

// UpdateSession persists the mutable fields of an existing session.
func (s *Store) UpdateSession(sess *Session) error {
	sess.UpdatedAt = time.Now().UTC()
	res, err := s.db.Exec(s.dialect.rebind(`UPDATE sessions SET status=?, state=?, tokens=?, patches=?, patch_errors=?, bytes=?, terminated=?, text=?, tree=?, error=?, updated_at=? WHERE id=?`),
		sess.Status, sess.State, sess.Tokens, sess.Patches, sess.PatchErrors, sess.Bytes, sess.Terminated,
		sess.Text, string(sess.Tree), sess.Error, sess.UpdatedAt, sess.ID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %s: %w", sess.ID, ErrNotFound)
	}
	return nil
}

// GetSession loads a session by ID.
func (s *Store) GetSession(id string) (*Session, error) {
	row := s.db.QueryRow(s.dialect.rebind(`SELECT `+sessionColumns+` FROM sessions WHERE id=?`), id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return sess, err
}

// ListSessions returns recent sessions sorted from newest to oldest. Text
// and tree are omitted.
func (s *Store) ListSessions(status SessionStatus, limit int) ([]Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	var args []interface{}
	if status != "" {
		query += ` WHERE status=?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query = fmt.Sprintf("%s LIMIT %d", query, limit)
	}
	rows, err := s.db.Query(s.dialect.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sess.Text = ""
		sess.Tree = nil
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		sess                         Session
		state, text, tree, req, fail sql.NullString
	)
	if err := row.Scan(&sess.ID, &sess.Source, &sess.Status, &state, &sess.Tokens, &sess.Patches, &sess.PatchErrors,
		&sess.Bytes, &sess.Terminated, &text, &tree, &req, &fail, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return nil, err
	}
	sess.State = state.String
	sess.Text = text.String
	sess.Error = fail.String
	if tree.Valid && tree.String != "" {
		sess.Tree = json.RawMessage(tree.String)
	}
	if req.Valid {
		_ = json.Unmarshal([]byte(req.String), &sess.Request)
	}
	return &sess, nil
}

// AppendHistory writes an entry to the history log.
func (s *Store) AppendHistory(entry *HistoryEntry) error {
	entry.CreatedAt = time.Now().UTC()
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return err
	}
	query := `INSERT INTO history (event, session_id, metadata, created_at) VALUES (?, ?, ?, ?)`
	if s.dialect == dialectPostgres {
		var id int64
		if err := s.db.QueryRow(s.dialect.rebind(query+` RETURNING id`), entry.Event, entry.SessionID, string(metadata), entry.CreatedAt).Scan(&id); err != nil {
			return err
		}
		entry.ID = fmt.Sprintf("%d", id)
		return nil
	}
	res, err := s.db.Exec(query, entry.Event, entry.SessionID, string(metadata), entry.CreatedAt)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = fmt.Sprintf("%d", id)
	}
	return nil
}

// ListHistory returns the newest history entries, optionally for a single
// session.
func (s *Store) ListHistory(sessionID string, limit int) ([]HistoryEntry, error) {
	query := `SELECT id, event, session_id, metadata, created_at FROM history`
	var args []interface{}
	if sessionID != "" {
		query += ` WHERE session_id=?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query = fmt.Sprintf("%s LIMIT %d", query, limit)
	}
	rows, err := s.db.Query(s.dialect.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var sessionID, metadata sql.NullString
		var id int64
		if err := rows.Scan(&id, &e.Event, &sessionID, &metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ID = fmt.Sprintf("%d", id)
		e.SessionID = sessionID.String
		if metadata.Valid {
			_ = json.Unmarshal([]byte(metadata.String), &e.Metadata)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CleanupSessionsBefore deletes sessions in the given statuses last updated
// before the cutoff, along with their history. It returns the number of
// sessions removed.
func (s *Store) CleanupSessionsBefore(before time.Time, statuses ...SessionStatus) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(statuses))
	args := []interface{}{before.UTC()}
	for i, st := range statuses {
		placeholders[i] = "?"
		args = append(args, string(st))
	}
	where := `updated_at < ? AND status IN (` + strings.Join(placeholders, ",") + `)`

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(s.dialect.rebind(`DELETE FROM history WHERE session_id IN (SELECT id FROM sessions WHERE `+where+`)`), args...); err != nil {
		return 0, fmt.Errorf("cleanup history: %w", err)
	}
	res, err := tx.Exec(s.dialect.rebind(`DELETE FROM sessions WHERE `+where), args...)
	if err != nil {
		return 0, fmt.Errorf("cleanup sessions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CleanupHistoryBefore deletes history entries older than the cutoff.
func (s *Store) CleanupHistoryBefore(before time.Time) (int64, error) {
	res, err := s.db.Exec(s.dialect.rebind(`DELETE FROM history WHERE created_at < ?`), before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
