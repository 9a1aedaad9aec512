package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mikey/ta-triage/internal/core"
)

// SQLiteStore is a SQLite implementation of the KnowledgeStore interface.
// Interaction history is stored as a JSON column; sender identity is the
// primary key.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore creates a new SQLite knowledge store
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Create table if it doesn't exist
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS senders (
			identity TEXT PRIMARY KEY,
			name TEXT,
			history TEXT,
			last_interaction TIMESTAMP
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger,
	}, nil
}

// Get retrieves a sender record
func (s *SQLiteStore) Get(ctx context.Context, identity string) (*core.Sender, error) {
	var name, historyJSON string
	var lastInteraction sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT name, history, last_interaction
		FROM senders
		WHERE identity = ?
	`, identity).Scan(&name, &historyJSON, &lastInteraction)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.ErrSenderNotFound
		}
		return nil, fmt.Errorf("failed to query sender: %w", err)
	}

	sender := &core.Sender{
		Identity: identity,
		Name:     name,
	}
	if historyJSON != "" {
		if err := json.Unmarshal([]byte(historyJSON), &sender.History); err != nil {
			return nil, fmt.Errorf("failed to decode interaction history: %w", err)
		}
	}
	if lastInteraction.Valid {
		t, err := time.Parse(time.RFC3339, lastInteraction.String)
		if err != nil {
			s.logger.Warn("Failed to parse last_interaction timestamp",
				zap.String("identity", identity),
				zap.Error(err))
		} else {
			sender.LastInteraction = t
		}
	}

	return sender, nil
}

// Add inserts a new sender record
func (s *SQLiteStore) Add(ctx context.Context, sender *core.Sender) error {
	return s.upsert(ctx, sender)
}

// Update replaces an existing sender record
func (s *SQLiteStore) Update(ctx context.Context, sender *core.Sender) error {
	return s.upsert(ctx, sender)
}

func (s *SQLiteStore) upsert(ctx context.Context, sender *core.Sender) error {
	historyJSON, err := json.Marshal(sender.History)
	if err != nil {
		return fmt.Errorf("failed to encode interaction history: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO senders (identity, name, history, last_interaction)
		VALUES (?, ?, ?, ?)
	`, sender.Identity, sender.Name, string(historyJSON), sender.LastInteraction.Format(time.RFC3339))

	if err != nil {
		return fmt.Errorf("failed to upsert sender: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
