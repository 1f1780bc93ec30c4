package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"confprog/internal/bookmark"
)

var (
	ErrUserExists         = errors.New("username already taken")
	ErrNotFound           = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// User is one account row.
type User struct {
	Username    string
	Saved       bookmark.Snapshot
	CreatedAt   time.Time
	LastLoginAt time.Time
}

// DB stores accounts and their saved programs in SQLite.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and brings the schema
// up to date. Use ":memory:" for an ephemeral database.
func Open(ctx context.Context, path string) (*DB, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't support multiple writers well
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	d := &DB{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := d.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return d, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// initSchema creates the tables and adds columns missing from databases
// created by older versions.
func (d *DB) initSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		username       TEXT PRIMARY KEY,
		password_hash  TEXT NOT NULL,
		saved_sessions TEXT DEFAULT '[]',
		created_at     TEXT,
		last_login_at  TEXT
	);

	CREATE TABLE IF NOT EXISTS login_history (
		id       INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL,
		login_at TEXT NOT NULL,
		FOREIGN KEY (username) REFERENCES users(username)
	);
	`
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	existing, err := d.columns(ctx, "users")
	if err != nil {
		return err
	}
	migrations := []struct {
		column string
		ddl    string
	}{
		{"created_at", "ALTER TABLE users ADD COLUMN created_at TEXT"},
		{"last_login_at", "ALTER TABLE users ADD COLUMN last_login_at TEXT"},
		{"saved_posters", "ALTER TABLE users ADD COLUMN saved_posters TEXT DEFAULT '[]'"},
		{"saved_talks", "ALTER TABLE users ADD COLUMN saved_talks TEXT DEFAULT '[]'"},
	}
	for _, m := range migrations {
		if _, ok := existing[m.column]; ok {
			continue
		}
		if _, err := d.db.ExecContext(ctx, m.ddl); err != nil {
			return fmt.Errorf("add column %s: %w", m.column, err)
		}
	}
	return nil
}

func (d *DB) columns(ctx context.Context, table string) (map[string]struct{}, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := map[string]struct{}{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols[name] = struct{}{}
	}
	return cols, rows.Err()
}

// Create registers a new user with a bcrypt password hash.
func (d *DB) Create(ctx context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	_, err = d.db.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)",
		username, string(hash), d.now().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUserExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Authenticate checks the password and, on success, records the login and
// returns the user's saved program.
func (d *DB) Authenticate(ctx context.Context, username, password string) (*User, error) {
	var hash string
	err := d.db.QueryRowContext(ctx,
		"SELECT password_hash FROM users WHERE username = ?", username,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	now := d.now().Format(time.RFC3339Nano)
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "UPDATE users SET last_login_at = ? WHERE username = ?", now, username); err != nil {
		return nil, fmt.Errorf("update last login: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO login_history (username, login_at) VALUES (?, ?)", username, now); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return d.Get(ctx, username)
}

// Get loads a user by name.
func (d *DB) Get(ctx context.Context, username string) (*User, error) {
	var (
		sessions, posters, talks sql.NullString
		created, lastLogin       sql.NullString
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT saved_sessions, saved_posters, saved_talks, created_at, last_login_at
		FROM users WHERE username = ?`, username,
	).Scan(&sessions, &posters, &talks, &created, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}

	u := &User{Username: username}
	if u.Saved.Sessions, err = decodeIDs(sessions); err != nil {
		return nil, fmt.Errorf("decode saved_sessions: %w", err)
	}
	if u.Saved.Posters, err = decodeIDs(posters); err != nil {
		return nil, fmt.Errorf("decode saved_posters: %w", err)
	}
	if u.Saved.Talks, err = decodeIDs(talks); err != nil {
		return nil, fmt.Errorf("decode saved_talks: %w", err)
	}
	u.CreatedAt = parseTime(created)
	u.LastLoginAt = parseTime(lastLogin)
	return u, nil
}

// SaveProgram replaces the stored snapshot. The last write wins.
func (d *DB) SaveProgram(ctx context.Context, username string, snap bookmark.Snapshot) error {
	sessions, err := encodeIDs(snap.Sessions)
	if err != nil {
		return err
	}
	posters, err := encodeIDs(snap.Posters)
	if err != nil {
		return err
	}
	talks, err := encodeIDs(snap.Talks)
	if err != nil {
		return err
	}

	res, err := d.db.ExecContext(ctx,
		"UPDATE users SET saved_sessions = ?, saved_posters = ?, saved_talks = ? WHERE username = ?",
		sessions, posters, talks, username,
	)
	if err != nil {
		return fmt.Errorf("update saved program: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// LoginCount returns how many logins were recorded for username.
func (d *DB) LoginCount(ctx context.Context, username string) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM login_history WHERE username = ?", username).Scan(&n)
	return n, err
}

func encodeIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeIDs(v sql.NullString) ([]string, error) {
	if !v.Valid || v.String == "" {
		return []string{}, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(v.String), &ids); err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func parseTime(v sql.NullString) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
