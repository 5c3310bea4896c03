package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// Store persists call sessions, conversation logs, AI suggestions, and the
// knowledge base to PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL at connStr and applies pending migrations.
func Open(connStr string) (*Store, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("store open: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store ping: %w", err)
	}
	if err = migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`)
	if err != nil {
		return err
	}

	var current int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), -1) FROM schema_version`)
	if err = row.Scan(&current); err != nil {
		return err
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	for i := current + 1; i < len(entries); i++ {
		data, readErr := migrationFS.ReadFile("migrations/" + entries[i].Name())
		if readErr != nil {
			return fmt.Errorf("read migration %d: %w", i, readErr)
		}
		if _, execErr := db.Exec(string(data)); execErr != nil {
			return fmt.Errorf("migration %d: %w", i, execErr)
		}
		if _, execErr := db.Exec(`INSERT INTO schema_version (version) VALUES ($1)`, i); execErr != nil {
			return fmt.Errorf("migration %d record: %w", i, execErr)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession inserts a new call session in ringing state and returns the
// stored row with its server-assigned id and start timestamp.
func (s *Store) CreateSession(ctx context.Context, customerName, customerPhone string) (*Session, error) {
	sess := &Session{
		CustomerName:  customerName,
		CustomerPhone: customerPhone,
		Status:        StatusRinging,
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO call_sessions (customer_name, customer_phone, status)
		 VALUES ($1, $2, 'ringing')
		 RETURNING id, started_at`,
		customerName, customerPhone,
	).Scan(&sess.ID, &sess.StartedAt)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// GetSession returns a session by id, or ErrNotFound.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	var sess Session
	var operatorID sql.NullString
	var endedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, customer_name, customer_phone, operator_id, status, started_at, ended_at
		 FROM call_sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &sess.CustomerName, &sess.CustomerPhone, &operatorID, &sess.Status, &sess.StartedAt, &endedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if operatorID.Valid {
		sess.OperatorID = &operatorID.String
	}
	if endedAt.Valid {
		sess.EndedAt = &endedAt.Time
	}
	return &sess, nil
}

// AcceptSession atomically moves a ringing session to active and assigns the
// operator. Returns false when the session was not in ringing state, so a
// racing second accept observes a no-op rather than an error.
func (s *Store) AcceptSession(ctx context.Context, id, operatorID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE call_sessions SET status = 'active', operator_id = $2
		 WHERE id = $1 AND status = 'ringing'`,
		id, operatorID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// RejectSession moves a ringing session straight to ended with no operator
// assigned. Returns false if the session was not ringing.
func (s *Store) RejectSession(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE call_sessions SET status = 'ended', ended_at = now()
		 WHERE id = $1 AND status = 'ringing'`,
		id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// EndSession moves an active session to ended. The conditional update makes a
// second end from the other side a no-op, so ended_at keeps its first value.
func (s *Store) EndSession(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE call_sessions SET status = 'ended', ended_at = now()
		 WHERE id = $1 AND status = 'active'`,
		id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ExpireRinging ends ringing sessions older than maxAge and returns their ids.
func (s *Store) ExpireRinging(ctx context.Context, maxAge time.Duration) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`UPDATE call_sessions SET status = 'ended', ended_at = now()
		 WHERE status = 'ringing' AND started_at < now() - make_interval(secs => $1)
		 RETURNING id`,
		maxAge.Seconds(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AppendLogEntry inserts one final transcription result. The entry's id and
// created_at are filled in from the stored row.
func (s *Store) AppendLogEntry(ctx context.Context, e *LogEntry) error {
	var confidence sql.NullFloat64
	if e.Confidence != nil {
		confidence = sql.NullFloat64{Float64: *e.Confidence, Valid: true}
	}
	return s.db.QueryRowContext(ctx,
		`INSERT INTO conversation_logs (session_id, speaker, text, confidence)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		e.SessionID, e.Speaker, e.Text, confidence,
	).Scan(&e.ID, &e.CreatedAt)
}

// ListLogEntries returns a session's conversation log ordered oldest first.
func (s *Store) ListLogEntries(ctx context.Context, sessionID string) ([]LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, speaker, text, confidence, created_at
		 FROM conversation_logs WHERE session_id = $1 ORDER BY created_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		var confidence sql.NullFloat64
		if err = rows.Scan(&e.ID, &e.SessionID, &e.Speaker, &e.Text, &confidence, &e.CreatedAt); err != nil {
			return nil, err
		}
		if confidence.Valid {
			e.Confidence = &confidence.Float64
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// InsertSuggestion persists one AI suggestion with used = false.
func (s *Store) InsertSuggestion(ctx context.Context, sg *Suggestion) error {
	return s.db.QueryRowContext(ctx,
		`INSERT INTO ai_suggestions (session_id, suggestion, context)
		 VALUES ($1, $2, $3)
		 RETURNING id, used, created_at`,
		sg.SessionID, sg.Suggestion, sg.Context,
	).Scan(&sg.ID, &sg.Used, &sg.CreatedAt)
}

// RecentSuggestions returns the most recent suggestions for a session,
// newest first.
func (s *Store) RecentSuggestions(ctx context.Context, sessionID string, limit int) ([]Suggestion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, suggestion, context, used, created_at
		 FROM ai_suggestions WHERE session_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var suggestions []Suggestion
	for rows.Next() {
		var sg Suggestion
		if err = rows.Scan(&sg.ID, &sg.SessionID, &sg.Suggestion, &sg.Context, &sg.Used, &sg.CreatedAt); err != nil {
			return nil, err
		}
		suggestions = append(suggestions, sg)
	}
	return suggestions, rows.Err()
}

// MarkSuggestionUsed sets used = true. Idempotent: marking an already-used
// suggestion succeeds. Returns ErrNotFound for an unknown id.
func (s *Store) MarkSuggestionUsed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ai_suggestions SET used = true WHERE id = $1`, id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddKnowledge inserts one knowledge base entry with its embedding.
func (s *Store) AddKnowledge(ctx context.Context, e *KnowledgeEntry) error {
	embedding, err := json.Marshal(e.Embedding)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}
	return s.db.QueryRowContext(ctx,
		`INSERT INTO knowledge_base (category, question, answer, embedding)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		e.Category, e.Question, e.Answer, embedding,
	).Scan(&e.ID, &e.CreatedAt)
}

// ListKnowledge returns all knowledge base entries with embeddings.
func (s *Store) ListKnowledge(ctx context.Context) ([]KnowledgeEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, category, question, answer, embedding, created_at FROM knowledge_base`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []KnowledgeEntry
	for rows.Next() {
		var e KnowledgeEntry
		var embedding []byte
		if err = rows.Scan(&e.ID, &e.Category, &e.Question, &e.Answer, &embedding, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(embedding) > 0 {
			if err = json.Unmarshal(embedding, &e.Embedding); err != nil {
				return nil, fmt.Errorf("unmarshal embedding: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountKnowledge returns the number of knowledge base entries.
func (s *Store) CountKnowledge(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge_base`).Scan(&n)
	return n, err
}
