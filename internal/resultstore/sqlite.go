package resultstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3" // Required by the library implementation.

	"summaryd/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore persists documents in a single SQLite file and applies the
// embedded migrations on open.
type SQLiteStore struct {
	db  *sql.DB
	log *slog.Logger
}

func NewSQLiteStore(ctx context.Context, dbPath string, log *slog.Logger) (*SQLiteStore, error) {
	dbFile, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open DB file: %w", err)
	}

	dbInstance, err := sqlite3.WithInstance(dbFile, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("create DB instance: %w", err)
	}

	srcInstance, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("create source instance: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", srcInstance, "sqlite3", dbInstance)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return nil, fmt.Errorf("apply migrations: %w", err)
		}

		log.InfoContext(ctx, "No migrations to apply",
			"dbPath", dbPath)
	} else {
		log.InfoContext(ctx, "DB is migrated",
			"dbPath", dbPath)
	}

	return &SQLiteStore{db: dbFile, log: log}, nil
}

func (s *SQLiteStore) PutSource(ctx context.Context, documentID string, sourceText string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	query := `insert into documents
	(document_id, source_text, source_length, created_at, updated_at)
	values (?, ?, ?, ?, ?)
	on conflict (document_id) do update
	set source_text = excluded.source_text,
	    source_length = excluded.source_length,
	    summary_text = null,
	    summary_length = null,
	    updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query, documentID, sourceText, len(sourceText), now, now)
	if err != nil {
		return fmt.Errorf("write source text: %w", err)
	}

	return nil
}

func (s *SQLiteStore) SetSummary(ctx context.Context, documentID string, summaryText string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	query := `update documents
	set summary_text = ?, summary_length = ?, updated_at = ?
	where document_id = ?`

	res, err := s.db.ExecContext(ctx, query, summaryText, len(summaryText), now, documentID)
	if err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("count affected rows: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}

	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, documentID string) (*domain.Document, error) {
	query := `select source_text, summary_text, source_length, summary_length,
	created_at, updated_at
	from documents
	where document_id = ?`

	var (
		doc           domain.Document
		summaryText   sql.NullString
		summaryLength sql.NullInt64
		createdAt     string
		updatedAt     string
	)

	row := s.db.QueryRowContext(ctx, query, documentID)
	err := row.Scan(
		&doc.SourceText,
		&summaryText,
		&doc.SourceLength,
		&summaryLength,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}

	doc.DocumentID = documentID
	if summaryText.Valid {
		doc.SummaryText = &summaryText.String
	}
	if summaryLength.Valid {
		doc.SummaryLength = int(summaryLength.Int64)
	}

	if doc.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if doc.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &doc, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
