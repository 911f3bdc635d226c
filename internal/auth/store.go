// Package auth provides account registration, email verification and
// JWT login over a SQLite user store. Emails are stored encrypted; a
// deterministic HMAC of the lowercased email serves as the lookup key
// so the plaintext never needs to be indexed.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"guardian/internal/encryption"
)

var (
	// ErrEmailTaken is returned when registering an existing email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials covers unknown email and wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned for lookups of unknown users.
	ErrUserNotFound = errors.New("user not found")
)

// User is the decrypted account view.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists user accounts.
type Store struct {
	db        *sql.DB
	cipher    *encryption.Cipher
	lookupKey []byte
}

// NewStore opens (or creates) the user database at dbPath. The secret
// keys the email lookup HMAC.
func NewStore(dbPath string, cipher *encryption.Cipher, secret string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db, cipher: cipher, lookupKey: []byte(secret)}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("user storage initialized", "path", dbPath)
	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email_encrypted TEXT NOT NULL,
		email_hash TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		verified INTEGER NOT NULL DEFAULT 0,
		verification_token_hash TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_email_hash ON users(email_hash);
	`
	_, err := s.db.Exec(schema)
	return err
}

// emailHash computes the deterministic lookup key for an email.
func (s *Store) emailHash(email string) string {
	mac := hmac.New(sha256.New, s.lookupKey)
	mac.Write([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(mac.Sum(nil))
}

// Create inserts a new user. Returns the user and the plaintext
// verification token; the token is never stored.
func (s *Store) Create(email, password string) (User, string, error) {
	if err := ValidatePassword(password); err != nil {
		return User{}, "", err
	}

	passwordHash, err := HashPassword(password)
	if err != nil {
		return User{}, "", fmt.Errorf("hashing password: %w", err)
	}

	token, tokenHash, err := newVerificationToken()
	if err != nil {
		return User{}, "", fmt.Errorf("generating verification token: %w", err)
	}

	user := User{
		ID:        uuid.New().String(),
		Email:     strings.ToLower(strings.TrimSpace(email)),
		CreatedAt: time.Now().UTC(),
	}

	_, err = s.db.Exec(`
		INSERT INTO users (id, email_encrypted, email_hash, password_hash, verified, verification_token_hash, created_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)`,
		user.ID,
		s.cipher.Encrypt(user.Email),
		s.emailHash(user.Email),
		passwordHash,
		tokenHash,
		user.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return User{}, "", ErrEmailTaken
		}
		return User{}, "", fmt.Errorf("creating user: %w", err)
	}
	return user, token, nil
}

// Authenticate checks credentials and returns the user on success.
func (s *Store) Authenticate(email, password string) (User, error) {
	row := s.db.QueryRow(`
		SELECT id, email_encrypted, password_hash, verified, created_at
		FROM users WHERE email_hash = ?`, s.emailHash(email))

	var user User
	var encryptedEmail, passwordHash string
	err := row.Scan(&user.ID, &encryptedEmail, &passwordHash, &user.Verified, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, fmt.Errorf("looking up user: %w", err)
	}
	if !CheckPassword(passwordHash, password) {
		return User{}, ErrInvalidCredentials
	}

	user.Email = s.cipher.Decrypt(encryptedEmail)
	return user, nil
}

// VerifyEmail marks the account matching the token as verified.
func (s *Store) VerifyEmail(token string) error {
	result, err := s.db.Exec(`
		UPDATE users SET verified = 1, verification_token_hash = NULL
		WHERE verification_token_hash = ?`, hashToken(token))
	if err != nil {
		return fmt.Errorf("verifying email: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Get retrieves a user by id.
func (s *Store) Get(id string) (User, error) {
	row := s.db.QueryRow(`
		SELECT id, email_encrypted, verified, created_at
		FROM users WHERE id = ?`, id)

	var user User
	var encryptedEmail string
	err := row.Scan(&user.ID, &encryptedEmail, &user.Verified, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("looking up user: %w", err)
	}
	user.Email = s.cipher.Decrypt(encryptedEmail)
	return user, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
