package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"ChatGate/internal/conversation"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store is the durable home of sessions, chats, and messages. Every
// operation is one SQLite transaction, so a partially applied write is
// never visible. The store performs no cross-caller serialization:
// read-modify-write ordering on a chat is the caller's responsibility.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createSessionsTable := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		name TEXT,
		created_at DATETIME,
		updated_at DATETIME
	);`

	createChatsTable := `
	CREATE TABLE IF NOT EXISTS chats (
		id TEXT PRIMARY KEY,
		session_id TEXT,
		title TEXT,
		created_at DATETIME,
		FOREIGN KEY(session_id) REFERENCES sessions(id)
	);`

	createMessagesTable := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id TEXT,
		role TEXT,
		content TEXT,
		timestamp DATETIME,
		FOREIGN KEY(chat_id) REFERENCES chats(id)
	);`

	for _, stmt := range []string{createSessionsTable, createChatsTable, createMessagesTable} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession persists a new named session with no chats.
func (s *Store) CreateSession(ctx context.Context, name string) (*conversation.Session, error) {
	now := time.Now().UTC()
	sess := &conversation.Session{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
		ChatIDs:   []string{},
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)",
		sess.ID, sess.Name, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("created session", "session_id", sess.ID, "name", name)
	return sess, nil
}

// ListSessions returns all sessions with their chat ids in insertion order.
func (s *Store) ListSessions(ctx context.Context) ([]conversation.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, created_at, updated_at FROM sessions ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []conversation.Session{}
	for rows.Next() {
		var sess conversation.Session
		if err := rows.Scan(&sess.ID, &sess.Name, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	for i := range sessions {
		chatIDs, err := s.chatIDs(ctx, sessions[i].ID)
		if err != nil {
			return nil, err
		}
		sessions[i].ChatIDs = chatIDs
	}

	return sessions, nil
}

// GetSession loads a single session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*conversation.Session, error) {
	var sess conversation.Session
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, created_at, updated_at FROM sessions WHERE id = ?", id).
		Scan(&sess.ID, &sess.Name, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, conversation.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	chatIDs, err := s.chatIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.ChatIDs = chatIDs
	return &sess, nil
}

// RenameSession updates a session's name and bumps updated_at.
func (s *Store) RenameSession(ctx context.Context, id, name string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET name = ?, updated_at = ? WHERE id = ?",
		name, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to rename session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to rename session: %w", err)
	}
	if n == 0 {
		return conversation.ErrSessionNotFound
	}
	return nil
}

// DeleteSession removes the session and all its chats and messages in one
// transaction.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n == 0 {
		return conversation.ErrSessionNotFound
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM messages WHERE chat_id IN (SELECT id FROM chats WHERE session_id = ?)", id); err != nil {
		return fmt.Errorf("failed to delete session messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chats WHERE session_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete session chats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("deleted session", "session_id", id)
	return nil
}

// CreateChat adds a chat to an existing session. The chat row and the
// session's updated_at bump land in the same transaction.
func (s *Store) CreateChat(ctx context.Context, sessionID, title string) (*conversation.Chat, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chats WHERE session_id = ?", sessionID).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("failed to count chats: %w", err)
	}

	if title == "" {
		title = fmt.Sprintf("Chat %d", count+1)
	}

	now := time.Now().UTC()
	chat := &conversation.Chat{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Title:     title,
		CreatedAt: now,
		Messages:  []conversation.Message{},
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE sessions SET updated_at = ? WHERE id = ?", now, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	if n == 0 {
		return nil, conversation.ErrSessionNotFound
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO chats (id, session_id, title, created_at) VALUES (?, ?, ?, ?)",
		chat.ID, chat.SessionID, chat.Title, chat.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("created chat", "chat_id", chat.ID, "session_id", sessionID, "title", title)
	return chat, nil
}

// ListChats returns chat summaries (no messages) for a session in
// insertion order.
func (s *Store) ListChats(ctx context.Context, sessionID string) ([]conversation.Chat, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, session_id, title, created_at FROM chats WHERE session_id = ? ORDER BY rowid",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	chats := []conversation.Chat{}
	for rows.Next() {
		var chat conversation.Chat
		if err := rows.Scan(&chat.ID, &chat.SessionID, &chat.Title, &chat.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}

	return chats, nil
}

// LoadChat loads a chat with its full ordered message history.
func (s *Store) LoadChat(ctx context.Context, id string) (*conversation.Chat, error) {
	var chat conversation.Chat
	err := s.db.QueryRowContext(ctx,
		"SELECT id, session_id, title, created_at FROM chats WHERE id = ?", id).
		Scan(&chat.ID, &chat.SessionID, &chat.Title, &chat.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, conversation.ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load chat: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT role, content, timestamp FROM messages WHERE chat_id = ? ORDER BY id", id)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	messages := []conversation.Message{}
	for rows.Next() {
		var msg conversation.Message
		if err := rows.Scan(&msg.Role, &msg.Content, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	chat.Messages = messages
	return &chat, nil
}

// SaveChat overwrites the chat record and its messages in one transaction.
// The message rows are replaced wholesale so the stored history always
// matches the chat handed in.
func (s *Store) SaveChat(ctx context.Context, chat *conversation.Chat) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE chats SET session_id = ?, title = ?, created_at = ? WHERE id = ?",
		chat.SessionID, chat.Title, chat.CreatedAt, chat.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save chat: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save chat: %w", err)
	}
	if n == 0 {
		return conversation.ErrChatNotFound
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE chat_id = ?", chat.ID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}

	for _, msg := range chat.Messages {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO messages (chat_id, role, content, timestamp) VALUES (?, ?, ?, ?)",
			chat.ID, msg.Role, msg.Content, msg.Timestamp); err != nil {
			return fmt.Errorf("failed to save message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("chat saved", "chat_id", chat.ID, "message_count", len(chat.Messages))
	return nil
}

// DeleteChat removes a chat and its messages and bumps the owning
// session's updated_at.
func (s *Store) DeleteChat(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var sessionID string
	err = tx.QueryRowContext(ctx, "SELECT session_id FROM chats WHERE id = ?", id).Scan(&sessionID)
	if err == sql.ErrNoRows {
		return conversation.ErrChatNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load chat: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE chat_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chats WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE sessions SET updated_at = ? WHERE id = ?", time.Now().UTC(), sessionID); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("deleted chat", "chat_id", id, "session_id", sessionID)
	return nil
}

func (s *Store) chatIDs(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM chats WHERE session_id = ? ORDER BY rowid", sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan chat id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load chat ids: %w", err)
	}
	return ids, nil
}
