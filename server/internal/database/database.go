package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/tomhv/usagegraph/internal/model"
	"github.com/tomhv/usagegraph/internal/pricing"
)

// DB wraps the SQL database connection
type DB struct {
	*sql.DB
}

// User represents a user account
type User struct {
	ID           string
	Username     string
	PasswordHash string
	APIKey       string
	CreatedAt    time.Time
}

// Client represents a sync client
type Client struct {
	ID         string
	UserID     string
	Name       string
	LastSyncAt *time.Time
	CreatedAt  time.Time
}

// Open opens a SQLite database connection
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set busy timeout to avoid "database is locked" errors under concurrent load
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	return &DB{db}, nil
}

// Migrate creates the database schema. Only raw messages are stored;
// graphs and summaries are recomputed from them on demand.
func (db *DB) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		api_key TEXT UNIQUE NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		last_sync_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		client_id TEXT NOT NULL,
		source TEXT NOT NULL,
		model_id TEXT NOT NULL,
		provider_id TEXT,
		session_id TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		date TEXT NOT NULL,
		input_tokens INTEGER NOT NULL,
		output_tokens INTEGER NOT NULL,
		cache_read_tokens INTEGER DEFAULT 0,
		cache_write_tokens INTEGER DEFAULT 0,
		reasoning_tokens INTEGER DEFAULT 0,
		cost REAL DEFAULT 0,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		UNIQUE(user_id, source, session_id, timestamp, model_id)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_user_timestamp ON messages(user_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_messages_user_date ON messages(user_id, date);
	CREATE INDEX IF NOT EXISTS idx_clients_user ON clients(user_id);

	CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		expiry REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_expiry ON sessions(expiry);
	`

	_, err := db.Exec(schema)
	return err
}

// CreateUser creates a new user
func (db *DB) CreateUser(user *User) error {
	_, err := db.Exec(
		`INSERT INTO users (id, username, password_hash, api_key, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.PasswordHash, user.APIKey, user.CreatedAt,
	)
	return err
}

// GetUserByUsername retrieves a user by username
func (db *DB) GetUserByUsername(username string) (*User, error) {
	user := &User{}
	err := db.QueryRow(
		`SELECT id, username, password_hash, api_key, created_at
		 FROM users WHERE username = ?`,
		username,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.APIKey, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID
func (db *DB) GetUserByID(id string) (*User, error) {
	user := &User{}
	err := db.QueryRow(
		`SELECT id, username, password_hash, api_key, created_at
		 FROM users WHERE id = ?`,
		id,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.APIKey, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByAPIKey retrieves a user by API key
func (db *DB) GetUserByAPIKey(apiKey string) (*User, error) {
	user := &User{}
	err := db.QueryRow(
		`SELECT id, username, password_hash, api_key, created_at
		 FROM users WHERE api_key = ?`,
		apiKey,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.APIKey, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetOrCreateClient gets an existing client or creates a new one
func (db *DB) GetOrCreateClient(userID, clientID, clientName string) (*Client, error) {
	// Try to get existing client
	client := &Client{}
	var lastSyncAt sql.NullTime
	err := db.QueryRow(
		`SELECT id, user_id, name, last_sync_at, created_at FROM clients WHERE id = ? AND user_id = ?`,
		clientID, userID,
	).Scan(&client.ID, &client.UserID, &client.Name, &lastSyncAt, &client.CreatedAt)

	if err == nil {
		if lastSyncAt.Valid {
			client.LastSyncAt = &lastSyncAt.Time
		}
		return client, nil
	}

	if err != sql.ErrNoRows {
		return nil, err
	}

	// Create new client
	now := time.Now()
	_, err = db.Exec(
		`INSERT INTO clients (id, user_id, name, created_at) VALUES (?, ?, ?, ?)`,
		clientID, userID, clientName, now,
	)
	if err != nil {
		return nil, err
	}

	return &Client{
		ID:        clientID,
		UserID:    userID,
		Name:      clientName,
		CreatedAt: now,
	}, nil
}

// UpdateClientLastSync updates the last sync time for a client
func (db *DB) UpdateClientLastSync(clientID string, lastSyncAt time.Time) error {
	_, err := db.Exec(`UPDATE clients SET last_sync_at = ? WHERE id = ?`, lastSyncAt, clientID)
	return err
}

// GetClientSyncStatus returns the last sync time for a client
func (db *DB) GetClientSyncStatus(userID, clientID string) (*time.Time, error) {
	var lastSyncAt sql.NullTime
	err := db.QueryRow(
		`SELECT last_sync_at FROM clients WHERE id = ? AND user_id = ?`,
		clientID, userID,
	).Scan(&lastSyncAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !lastSyncAt.Valid {
		return nil, nil
	}
	return &lastSyncAt.Time, nil
}

// InsertMessages inserts synced messages for a user, ignoring duplicates.
// Costs are recomputed server-side so clients cannot report arbitrary values.
func (db *DB) InsertMessages(userID, clientID string, messages []model.UnifiedMessage, catalog *pricing.Catalog) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO messages
		(user_id, client_id, source, model_id, provider_id, session_id, timestamp, date,
		 input_tokens, output_tokens, cache_read_tokens, cache_write_tokens, reasoning_tokens, cost)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var inserted int64
	for _, m := range messages {
		cost := catalog.CalculateCost(m.ModelID, m.Tokens)
		result, err := stmt.Exec(
			userID, clientID, m.Source, m.ModelID, m.ProviderID, m.SessionID, m.Timestamp, m.Date,
			m.Tokens.Input, m.Tokens.Output, m.Tokens.CacheRead, m.Tokens.CacheWrite, m.Tokens.Reasoning, cost,
		)
		if err != nil {
			return 0, err
		}
		n, _ := result.RowsAffected()
		inserted += n
	}

	return inserted, tx.Commit()
}

// LoadMessages returns all stored messages for a user ordered by timestamp.
// Graph results are computed from these rows on demand, never persisted.
func (db *DB) LoadMessages(userID string) ([]model.UnifiedMessage, error) {
	rows, err := db.Query(`
		SELECT source, model_id, provider_id, session_id, timestamp, date,
		       input_tokens, output_tokens, cache_read_tokens, cache_write_tokens, reasoning_tokens, cost
		FROM messages
		WHERE user_id = ?
		ORDER BY timestamp
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []model.UnifiedMessage
	for rows.Next() {
		var m model.UnifiedMessage
		var provider sql.NullString
		if err := rows.Scan(
			&m.Source, &m.ModelID, &provider, &m.SessionID, &m.Timestamp, &m.Date,
			&m.Tokens.Input, &m.Tokens.Output, &m.Tokens.CacheRead, &m.Tokens.CacheWrite, &m.Tokens.Reasoning, &m.Cost,
		); err != nil {
			return nil, err
		}
		if provider.Valid {
			m.ProviderID = provider.String
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

// CountMessages returns the number of stored messages for a user
func (db *DB) CountMessages(userID string) (int64, error) {
	var n int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}
