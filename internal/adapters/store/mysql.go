package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/mikey/ta-triage/internal/core"
)

// MySQLStore is a MySQL implementation of the KnowledgeStore interface
type MySQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMySQLStore creates a new MySQL knowledge store
func NewMySQLStore(dsn string, logger *zap.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS senders (
			identity VARCHAR(255) PRIMARY KEY,
			name VARCHAR(255),
			history JSON,
			last_interaction TIMESTAMP NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &MySQLStore{
		db:     db,
		logger: logger,
	}, nil
}

// Get retrieves a sender record
func (s *MySQLStore) Get(ctx context.Context, identity string) (*core.Sender, error) {
	var name, historyJSON string
	var lastInteraction sql.NullTime

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
		sender.LastInteraction = lastInteraction.Time
	}

	return sender, nil
}

// Add inserts a new sender record
func (s *MySQLStore) Add(ctx context.Context, sender *core.Sender) error {
	return s.upsert(ctx, sender)
}

// Update replaces an existing sender record
func (s *MySQLStore) Update(ctx context.Context, sender *core.Sender) error {
	return s.upsert(ctx, sender)
}

func (s *MySQLStore) upsert(ctx context.Context, sender *core.Sender) error {
	historyJSON, err := json.Marshal(sender.History)
	if err != nil {
		return fmt.Errorf("failed to encode interaction history: %w", err)
	}

	var lastInteraction interface{}
	if !sender.LastInteraction.IsZero() {
		lastInteraction = sender.LastInteraction.UTC().Format("2006-01-02 15:04:05")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO senders (identity, name, history, last_interaction)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			name = VALUES(name),
			history = VALUES(history),
			last_interaction = VALUES(last_interaction)
	`, sender.Identity, sender.Name, string(historyJSON), lastInteraction)

	if err != nil {
		return fmt.Errorf("failed to upsert sender: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
