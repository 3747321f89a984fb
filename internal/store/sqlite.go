package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/thread-reply/internal/model"
)

// SQLiteStore implements the Journal interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// A single connection keeps :memory: databases shared and
	// serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// SchemaVersion returns the highest applied migration.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.GetContext(ctx, &v, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

const replyColumns = `id, message_id, to_address, subject, in_reply_to,
	references_chain, attachments, dispatcher, sent_at`

// RecordReply inserts a journal entry.
func (s *SQLiteStore) RecordReply(ctx context.Context, r model.SentReply) error {
	if strings.TrimSpace(r.MessageID) == "" {
		return fmt.Errorf("journal entry message id must not be empty")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.SentAt.IsZero() {
		r.SentAt = time.Now()
	}
	r.SentAt = r.SentAt.UTC()

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO sent_replies (`+replyColumns+`)
		VALUES (
			:id, :message_id, :to_address, :subject, :in_reply_to,
			:references_chain, :attachments, :dispatcher, :sent_at
		)`, r)
	if err != nil {
		return fmt.Errorf("recording reply %s: %w", r.MessageID, err)
	}
	return nil
}

// ListReplies retrieves journal entries, newest first.
func (s *SQLiteStore) ListReplies(ctx context.Context, limit int) ([]model.SentReply, error) {
	query := "SELECT " + replyColumns + " FROM sent_replies ORDER BY sent_at DESC, rowid DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	var replies []model.SentReply
	if err := s.db.SelectContext(ctx, &replies, query); err != nil {
		return nil, fmt.Errorf("listing replies: %w", err)
	}
	return replies, nil
}

// RepliesTo retrieves the entries that answered messageID directly or
// carry it in their References chain.
func (s *SQLiteStore) RepliesTo(ctx context.Context, messageID string) ([]model.SentReply, error) {
	var replies []model.SentReply
	err := s.db.SelectContext(ctx, &replies, `
		SELECT `+replyColumns+` FROM sent_replies
		WHERE in_reply_to = ?
		   OR (' ' || references_chain || ' ') LIKE ?
		ORDER BY sent_at DESC, rowid DESC`,
		messageID, "% "+messageID+" %",
	)
	if err != nil {
		return nil, fmt.Errorf("querying replies to %s: %w", messageID, err)
	}
	return replies, nil
}
