package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/averlon/instantagent/internal/domain"
	"github.com/averlon/instantagent/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db           *sql.DB
	transcriptMu sync.Mutex // serializes transcript writes to avoid SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		identity TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		display_name TEXT NOT NULL,
		goal TEXT NOT NULL,
		model_id TEXT NOT NULL,
		model_name TEXT NOT NULL,
		specialization TEXT,
		position INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_agents_owner ON agents(owner, position);

	CREATE TABLE IF NOT EXISTS transcripts (
		agent_id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		messages_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transcripts_owner ON transcripts(owner);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user record by identity.
func (s *SQLiteStore) GetUser(ctx context.Context, identity string) (*domain.User, error) {
	query := `SELECT identity, created_at, updated_at FROM users WHERE identity = ?`
	row := s.db.QueryRowContext(ctx, query, identity)

	var user domain.User
	var createdAt, updatedAt int64
	err := row.Scan(&user.Identity, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

// UpsertUser creates or refreshes a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (identity, created_at, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(identity) DO UPDATE SET
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		user.Identity, user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// LoadRegistry returns the ordered agent list persisted under identity.
func (s *SQLiteStore) LoadRegistry(ctx context.Context, identity string) ([]*domain.Agent, error) {
	query := `
		SELECT id, owner, display_name, goal, model_id, model_name, specialization, created_at
		FROM agents WHERE owner = ? ORDER BY position`

	rows, err := s.db.QueryContext(ctx, query, identity)
	if err != nil {
		return nil, fmt.Errorf("query registry: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close registry rows", "error", closeErr)
		}
	}()

	agents := make([]*domain.Agent, 0)
	for rows.Next() {
		var agent domain.Agent
		var specialization sql.NullString
		var createdAt int64

		if err := rows.Scan(
			&agent.ID, &agent.Owner, &agent.DisplayName, &agent.Goal,
			&agent.ModelID, &agent.ModelName, &specialization, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan agent row: %w", err)
		}

		agent.Specialization = specialization.String
		agent.CreatedAt = time.Unix(createdAt, 0)
		agents = append(agents, &agent)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registry: %w", err)
	}
	return agents, nil
}

// SaveAgent appends an agent to its owner's registry. Position is
// assigned inside a transaction so creation order survives restarts.
func (s *SQLiteStore) SaveAgent(ctx context.Context, agent *domain.Agent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save agent: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var specialization interface{}
	if agent.Specialization != "" {
		specialization = agent.Specialization
	}

	query := `
	INSERT INTO agents (id, owner, display_name, goal, model_id, model_name, specialization, position, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?,
		(SELECT COALESCE(MAX(position), -1) + 1 FROM agents WHERE owner = ?), ?)
	ON CONFLICT(id) DO UPDATE SET
		display_name = excluded.display_name`

	_, err = tx.ExecContext(ctx, query,
		agent.ID, agent.Owner, agent.DisplayName, agent.Goal,
		agent.ModelID, agent.ModelName, specialization,
		agent.Owner, agent.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert agent: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save agent: %w", err)
	}
	return nil
}

// DeleteAgent removes an agent and its transcript. Retries with
// exponential backoff on SQLITE_BUSY so a deletion racing a transcript
// flush does not surface as an error.
func (s *SQLiteStore) DeleteAgent(ctx context.Context, identity, agentID string) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		err := s.deleteAgentOnce(ctx, identity, agentID)
		if err == nil {
			return nil
		}

		if shared.IsSQLiteConflictError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i)
			slog.Debug("DeleteAgent hit SQLITE_BUSY, retrying",
				"identity", identity,
				"agent_id", agentID,
				"attempt", i+1,
				"delay", delay)
			time.Sleep(delay)
			continue
		}

		return fmt.Errorf("delete agent %s after %d attempts: %w", agentID, i+1, err)
	}

	return nil
}

func (s *SQLiteStore) deleteAgentOnce(ctx context.Context, identity, agentID string) error {
	s.transcriptMu.Lock()
	defer s.transcriptMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete agent: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM agents WHERE id = ? AND owner = ?`, agentID, identity); err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM transcripts WHERE agent_id = ? AND owner = ?`, agentID, identity); err != nil {
		return fmt.Errorf("delete transcript: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete agent: %w", err)
	}
	return nil
}

// GetTranscript returns the transcript persisted for an agent, or nil
// when none exists.
func (s *SQLiteStore) GetTranscript(ctx context.Context, identity, agentID string) (domain.Transcript, error) {
	s.transcriptMu.Lock()
	defer s.transcriptMu.Unlock()

	query := `SELECT messages_json FROM transcripts WHERE agent_id = ? AND owner = ?`
	row := s.db.QueryRowContext(ctx, query, agentID, identity)

	var messagesJSON string
	err := row.Scan(&messagesJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan transcript: %w", err)
	}

	var transcript domain.Transcript
	if err := json.Unmarshal([]byte(messagesJSON), &transcript); err != nil {
		return nil, fmt.Errorf("decode transcript for agent %s: %w", agentID, err)
	}
	return transcript, nil
}

// SaveTranscript replaces the whole transcript for an agent.
func (s *SQLiteStore) SaveTranscript(ctx context.Context, identity, agentID string, t domain.Transcript) error {
	s.transcriptMu.Lock()
	defer s.transcriptMu.Unlock()

	messagesJSON, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode transcript for agent %s: %w", agentID, err)
	}

	query := `
	INSERT INTO transcripts (agent_id, owner, messages_json, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(agent_id) DO UPDATE SET
		messages_json = excluded.messages_json,
		updated_at = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, query,
		agentID, identity, string(messagesJSON), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert transcript: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
