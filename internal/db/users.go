package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// Valid user roles, lowest to highest privilege.
const (
	RoleView    = "view"
	RoleOperate = "operate"
	RoleAdmin   = "admin"
)

var (
	// ErrUserNotFound reports a lookup for a username with no record.
	ErrUserNotFound = errors.New("db: user not found")
	// ErrInvalidCredentials reports a failed password check.
	ErrInvalidCredentials = errors.New("db: invalid credentials")
	// ErrInvalidRole reports a role outside the fixed set.
	ErrInvalidRole = errors.New("db: invalid role")
)

// UserStore manages bridge operator accounts and the command audit trail.
type UserStore struct {
	db *Database
}

// User represents a bridge operator account.
type User struct {
	ID        int       `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditEntry records one bridged command for later review.
type AuditEntry struct {
	ID        int       `json:"id"`
	Operator  string    `json:"operator"`
	Module    string    `json:"module"`
	Function  string    `json:"function"`
	Args      string    `json:"args"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// NewUserStore opens the store, migrates the schema and seeds the initial
// admin account when the users table is empty.
func NewUserStore(dbPath, adminPassword string) (*UserStore, error) {
	database, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	store := &UserStore{db: database}

	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate user store: %w", err)
	}
	if err := store.seedAdmin(adminPassword); err != nil {
		return nil, fmt.Errorf("failed to seed admin user: %w", err)
	}

	return store, nil
}

// migrate creates the database schema.
func (s *UserStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'view',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			operator TEXT NOT NULL,
			module TEXT NOT NULL,
			function TEXT NOT NULL,
			args TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
		CREATE INDEX IF NOT EXISTS idx_audit_operator ON audit_log(operator);
		CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	log.Debug().Msg("database schema migrated")
	return nil
}

// seedAdmin creates the initial admin account on an empty users table.
func (s *UserStore) seedAdmin(password string) error {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if password == "" {
		password = "changeme"
		log.Warn().Msg("seeding admin user with default password, change it immediately")
	}
	if err := s.CreateUser("admin", password, RoleAdmin); err != nil {
		return err
	}
	log.Info().Str("username", "admin").Msg("initial admin user created")
	return nil
}

// ValidRole reports whether role is one of the fixed role names.
func ValidRole(role string) bool {
	return role == RoleView || role == RoleOperate || role == RoleAdmin
}

// CreateUser creates a new operator account with a bcrypt-hashed password.
func (s *UserStore) CreateUser(username, password, role string) error {
	if !ValidRole(role) {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	_, err = s.db.Exec(
		"INSERT INTO users (username, password_hash, role) VALUES (?, ?, ?)",
		username, string(hash), role)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	log.Info().Str("username", username).Str("role", role).Msg("user created")
	return nil
}

// Authenticate verifies a username/password pair and returns the user.
func (s *UserStore) Authenticate(username, password string) (*User, error) {
	var u User
	var hash string
	err := s.db.QueryRow(
		"SELECT id, username, password_hash, role, created_at FROM users WHERE username = ?",
		username).Scan(&u.ID, &u.Username, &hash, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Hash anyway so missing and wrong-password cases take similar time.
		bcrypt.CompareHashAndPassword([]byte("$2a$10$0000000000000000000000uGZwBfVm5rm1wmu4ehPKYTjC2vGcqG6"), []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("user lookup failed: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return &u, nil
}

// GetUser returns a user by username.
func (s *UserStore) GetUser(username string) (*User, error) {
	var u User
	err := s.db.QueryRow(
		"SELECT id, username, role, created_at FROM users WHERE username = ?",
		username).Scan(&u.ID, &u.Username, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user lookup failed: %w", err)
	}
	return &u, nil
}

// ListUsers returns all operator accounts.
func (s *UserStore) ListUsers() ([]User, error) {
	rows, err := s.db.Query(
		"SELECT id, username, role, created_at FROM users ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Role, &u.CreatedAt); err != nil {
			continue
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SetRole changes a user's role.
func (s *UserStore) SetRole(username, role string) error {
	if !ValidRole(role) {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	res, err := s.db.Exec("UPDATE users SET role = ? WHERE username = ?", role, username)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	log.Info().Str("username", username).Str("role", role).Msg("user role changed")
	return nil
}

// SetPassword replaces a user's password.
func (s *UserStore) SetPassword(username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	res, err := s.db.Exec("UPDATE users SET password_hash = ? WHERE username = ?", string(hash), username)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DeleteUser removes an operator account.
func (s *UserStore) DeleteUser(username string) error {
	res, err := s.db.Exec("DELETE FROM users WHERE username = ?", username)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// RecordAudit appends one command execution to the audit trail.
func (s *UserStore) RecordAudit(operator, module, function, args, status string) error {
	_, err := s.db.Exec(
		"INSERT INTO audit_log (operator, module, function, args, status) VALUES (?, ?, ?, ?, ?)",
		operator, module, function, args, status)
	return err
}

// ListAudit returns the most recent audit entries, newest first.
func (s *UserStore) ListAudit(limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		"SELECT id, operator, module, function, args, status, created_at FROM audit_log ORDER BY created_at DESC, id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.Operator, &e.Module, &e.Function, &e.Args, &e.Status, &e.CreatedAt); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PurgeAudit removes audit entries older than the retention window.
func (s *UserStore) PurgeAudit(days int) (int64, error) {
	res, err := s.db.Exec(
		"DELETE FROM audit_log WHERE created_at < datetime('now', ?)",
		fmt.Sprintf("-%d days", days))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close closes the underlying database.
func (s *UserStore) Close() error {
	return s.db.Close()
}
