package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/roomrelay/internal/store"
	"github.com/vovakirdan/roomrelay/internal/utils"
)

//go:embed schema.sql
var schema string

// DefaultOpTimeout bounds every statement when the caller did not set one.
const DefaultOpTimeout = 5 * time.Second

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db        *sql.DB
	opTimeout time.Duration
	now       func() time.Time
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithOpTimeout sets the per-statement timeout.
func WithOpTimeout(d time.Duration) Option {
	return func(s *SQLiteStore) {
		if d > 0 {
			s.opTimeout = d
		}
	}
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file, or ":memory:".
func New(dbPath string, opts ...Option) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, applySchema, opts...)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests that need a custom schema or seed rows.
func NewWithSetup(dbPath string, setup func(*sql.DB) error, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with single connection; it also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db, opTimeout: DefaultOpTimeout, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func applySchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// ==== MessageStore implementation ====

// InsertMessage persists a room message.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *store.Message) (*store.Message, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := *msg
	if row.ID == "" {
		row.ID = utils.NewRecordID()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.now()
	}
	row.CreatedAt = row.CreatedAt.UTC()
	row.UpdatedAt = s.now()

	query := `
		INSERT INTO messages (id, room, sender, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, row.ID, row.Room, row.Sender, row.Body, row.CreatedAt, row.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	return s.getMessage(ctx, row.ID)
}

func (s *SQLiteStore) getMessage(ctx context.Context, id string) (*store.Message, error) {
	query := `
		SELECT id, room, sender, body, created_at, updated_at
		FROM messages
		WHERE id = ?
	`
	var msg store.Message
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&msg.ID,
		&msg.Room,
		&msg.Sender,
		&msg.Body,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}

	return &msg, nil
}

// FindMessages returns up to limit messages, newest first.
func (s *SQLiteStore) FindMessages(ctx context.Context, room string, limit int) ([]*store.Message, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = store.DefaultHistoryLimit
	}

	var (
		rows *sql.Rows
		err  error
	)
	if room == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, room, sender, body, created_at, updated_at
			FROM messages
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, room, sender, body, created_at, updated_at
			FROM messages
			WHERE room = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		`, room, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.ID, &msg.Room, &msg.Sender, &msg.Body, &msg.CreatedAt, &msg.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}

// ==== PrivateMessageStore implementation ====

// InsertPrivateMessage persists a private message.
func (s *SQLiteStore) InsertPrivateMessage(ctx context.Context, msg *store.PrivateMessage) (*store.PrivateMessage, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := *msg
	if row.ID == "" {
		row.ID = utils.NewRecordID()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.now()
	}
	row.CreatedAt = row.CreatedAt.UTC()
	row.UpdatedAt = s.now()

	query := `
		INSERT INTO private_messages (id, sender, receiver, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, row.ID, row.Sender, row.Receiver, row.Body, row.CreatedAt, row.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert private message: %w", err)
	}

	var stored store.PrivateMessage
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sender, receiver, body, created_at, updated_at
		FROM private_messages
		WHERE id = ?
	`, row.ID).Scan(&stored.ID, &stored.Sender, &stored.Receiver, &stored.Body, &stored.CreatedAt, &stored.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("private message %s: %w", row.ID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query private message: %w", err)
	}

	return &stored, nil
}

// ==== IdentityStore implementation ====

// UpsertIdentity binds ownedUsername to generatedName in a single statement.
func (s *SQLiteStore) UpsertIdentity(ctx context.Context, ownedUsername, generatedName string) (*store.Identity, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := s.now()
	query := `
		INSERT INTO identities (owned_username, current_name, previous_name, online, in_private, created_at, updated_at)
		VALUES (?, ?, '', 1, 0, ?, ?)
		ON CONFLICT(owned_username) DO UPDATE SET
			previous_name = identities.current_name,
			current_name  = excluded.current_name,
			online        = 1,
			updated_at    = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, ownedUsername, generatedName, now, now); err != nil {
		return nil, fmt.Errorf("upsert identity: %w", err)
	}

	return s.findIdentity(ctx, ownedUsername)
}

// FindIdentity retrieves an identity by owned username.
func (s *SQLiteStore) FindIdentity(ctx context.Context, ownedUsername string) (*store.Identity, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.findIdentity(ctx, ownedUsername)
}

func (s *SQLiteStore) findIdentity(ctx context.Context, ownedUsername string) (*store.Identity, error) {
	query := `
		SELECT owned_username, current_name, previous_name, online, in_private, created_at, updated_at
		FROM identities
		WHERE owned_username = ?
	`
	var ident store.Identity
	err := s.db.QueryRowContext(ctx, query, ownedUsername).Scan(
		&ident.OwnedUsername,
		&ident.CurrentName,
		&ident.PreviousName,
		&ident.Online,
		&ident.InPrivate,
		&ident.CreatedAt,
		&ident.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("identity %q: %w", ownedUsername, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query identity: %w", err)
	}

	return &ident, nil
}

// MarkIdentityOffline clears the online flag.
func (s *SQLiteStore) MarkIdentityOffline(ctx context.Context, ownedUsername string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `
		UPDATE identities SET online = 0, updated_at = ?
		WHERE owned_username = ?
	`, s.now(), ownedUsername)
	if err != nil {
		return fmt.Errorf("mark identity offline: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("identity %q: %w", ownedUsername, store.ErrNotFound)
	}
	return nil
}

// SetInPrivate toggles the private-window flag.
func (s *SQLiteStore) SetInPrivate(ctx context.Context, ownedUsername string, inPrivate bool) (*store.Identity, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `
		UPDATE identities SET in_private = ?, updated_at = ?
		WHERE owned_username = ?
	`, inPrivate, s.now(), ownedUsername)
	if err != nil {
		return nil, fmt.Errorf("set in_private: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("identity %q: %w", ownedUsername, store.ErrNotFound)
	}

	return s.findIdentity(ctx, ownedUsername)
}

// ==== SocketStore implementation ====

// InsertSocket records the display name handed to a connection.
func (s *SQLiteStore) InsertSocket(ctx context.Context, generatedName, socketID string) (*store.Socket, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := s.now()
	sock := store.Socket{
		ID:        utils.NewRecordID(),
		SocketID:  socketID,
		Username:  generatedName,
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := `
		INSERT INTO sockets (id, socket_id, username, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, sock.ID, sock.SocketID, sock.Username, sock.CreatedAt, sock.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert socket: %w", err)
	}

	return &sock, nil
}

// DeleteSocket removes every binding for the display name.
func (s *SQLiteStore) DeleteSocket(ctx context.Context, generatedName string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM sockets WHERE username = ?`, generatedName); err != nil {
		return fmt.Errorf("delete socket: %w", err)
	}
	return nil
}

// ListSockets returns a page of socket bindings.
func (s *SQLiteStore) ListSockets(ctx context.Context, limit, page int) (store.Page[*store.Socket], error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sockets`).Scan(&total); err != nil {
		return store.Page[*store.Socket]{}, fmt.Errorf("count sockets: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, socket_id, username, created_at, updated_at
		FROM sockets
		ORDER BY updated_at DESC, created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, store.Offset(limit, page))
	if err != nil {
		return store.Page[*store.Socket]{}, fmt.Errorf("query sockets: %w", err)
	}
	defer rows.Close()

	var sockets []*store.Socket
	for rows.Next() {
		var sock store.Socket
		if err := rows.Scan(&sock.ID, &sock.SocketID, &sock.Username, &sock.CreatedAt, &sock.UpdatedAt); err != nil {
			return store.Page[*store.Socket]{}, fmt.Errorf("scan socket: %w", err)
		}
		sockets = append(sockets, &sock)
	}
	if err := rows.Err(); err != nil {
		return store.Page[*store.Socket]{}, err
	}

	return store.NewPage(sockets, limit, page, total), nil
}
