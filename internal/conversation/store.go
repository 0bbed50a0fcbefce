// Package conversation persists finished chat exchanges and the user's
// last provider/model selection.
package conversation

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hearthside-ai/hearthside/internal/intent"
)

const DefaultMaxStored = 200

// Message is one persisted turn. Tool traffic is kept so a conversation
// can be replayed with full fidelity.
type Message struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	ToolName string `json:"tool_name,omitempty"`
}

// Conversation is a completed exchange (one or more rounds).
type Conversation struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Title     string    `json:"title"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	Messages  []Message `json:"messages"`
}

// Summary is the listing view of a conversation, without messages.
type Summary struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Title     string    `json:"title"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	Turns     int       `json:"turns"`
}

// Store manages conversation persistence.
type Store struct {
	db        *sql.DB
	maxStored int
	logger    *slog.Logger
}

// NewStore creates a conversation store using the given database path.
// The caller must have registered the "sqlite" driver.
func NewStore(dbPath string, maxStored int, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return NewStoreWithDB(db, maxStored, logger)
}

// NewStoreWithDB creates a conversation store on an existing connection.
func NewStoreWithDB(db *sql.DB, maxStored int, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if maxStored <= 0 {
		maxStored = DefaultMaxStored
	}
	s := &Store{db: db, maxStored: maxStored, logger: logger.With("component", "conversation")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			title TEXT NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			created_at TEXT NOT NULL,
			messages TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_created ON conversations(created_at DESC);

		CREATE TABLE IF NOT EXISTS selection (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append stores a completed conversation, replacing the stored messages
// when the id already exists: a session re-appends its whole transcript
// after each turn. Pasted context blobs are stripped from user messages
// before persistence; they are transient input, not conversation
// content. Assigns an id when missing.
func (s *Store) Append(conv *Conversation) error {
	if conv.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate conversation id: %w", err)
		}
		conv.ID = id.String()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}
	if conv.Title == "" {
		conv.Title = deriveTitle(conv.Messages)
	}

	stored := make([]Message, len(conv.Messages))
	for i, m := range conv.Messages {
		stored[i] = m
		if m.Role == "user" {
			stored[i].Content = intent.StripAttachedContext(m.Content)
		}
	}

	msgJSON, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO conversations (id, session_id, title, provider, model, created_at, messages)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session_id = excluded.session_id,
			title = excluded.title,
			provider = excluded.provider,
			model = excluded.model,
			messages = excluded.messages
	`, conv.ID, conv.SessionID, conv.Title, conv.Provider, conv.Model,
		conv.CreatedAt.Format(time.RFC3339Nano), string(msgJSON))
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}

	if err := s.evict(); err != nil {
		s.logger.Warn("conversation eviction failed", "error", err)
	}
	return nil
}

// List returns the most recent conversations, newest first.
func (s *Store) List(limit int) ([]Summary, error) {
	if limit <= 0 || limit > s.maxStored {
		limit = s.maxStored
	}
	rows, err := s.db.Query(`
		SELECT id, session_id, title, provider, model, created_at, messages
		FROM conversations ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, Summary{
			ID:        conv.ID,
			SessionID: conv.SessionID,
			Title:     conv.Title,
			Provider:  conv.Provider,
			Model:     conv.Model,
			CreatedAt: conv.CreatedAt,
			Turns:     len(conv.Messages),
		})
	}
	return summaries, rows.Err()
}

// Get retrieves one conversation with its messages.
func (s *Store) Get(id string) (*Conversation, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, title, provider, model, created_at, messages
		FROM conversations WHERE id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("conversation %q not found", id)
	}
	return scanConversation(rows)
}

// Delete removes a conversation.
func (s *Store) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("conversation %q not found", id)
	}
	return nil
}

// evict removes the oldest conversations beyond the global cap.
func (s *Store) evict() error {
	_, err := s.db.Exec(`
		DELETE FROM conversations WHERE id NOT IN (
			SELECT id FROM conversations ORDER BY created_at DESC, id DESC LIMIT ?
		)
	`, s.maxStored)
	return err
}

func scanConversation(rows *sql.Rows) (*Conversation, error) {
	var conv Conversation
	var createdStr, msgJSON string

	if err := rows.Scan(&conv.ID, &conv.SessionID, &conv.Title, &conv.Provider, &conv.Model, &createdStr, &msgJSON); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	conv.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	if err := json.Unmarshal([]byte(msgJSON), &conv.Messages); err != nil {
		return nil, fmt.Errorf("parse messages: %w", err)
	}
	return &conv, nil
}

// deriveTitle takes the first user message, bounded.
func deriveTitle(messages []Message) string {
	for _, m := range messages {
		if m.Role != "user" || m.Content == "" {
			continue
		}
		title := m.Content
		if len(title) > 80 {
			cut := 80
			// Back up to a rune boundary so multibyte text is not split.
			for cut > 0 && !utf8.RuneStart(title[cut]) {
				cut--
			}
			title = title[:cut] + "…"
		}
		return title
	}
	return "Conversation"
}

// Selection is the persisted provider/model choice.
type Selection struct {
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SaveSelection records the active provider/model so it survives restarts.
func (s *Store) SaveSelection(provider, model string) error {
	_, err := s.db.Exec(`
		INSERT INTO selection (id, provider, model, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET provider = excluded.provider, model = excluded.model, updated_at = excluded.updated_at
	`, provider, model, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save selection: %w", err)
	}
	return nil
}

// GetSelection returns the persisted selection, or nil when none is stored.
func (s *Store) GetSelection() (*Selection, error) {
	var sel Selection
	var updatedStr string
	err := s.db.QueryRow(`SELECT provider, model, updated_at FROM selection WHERE id = 1`).
		Scan(&sel.Provider, &sel.Model, &updatedStr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get selection: %w", err)
	}
	sel.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
	return &sel, nil
}
