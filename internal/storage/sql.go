package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/haasonsaas/pinboard/pkg/models"
)

// Dialect selects the SQL flavour and database/sql driver.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

const migrationModeKey = "automatic_migration_mode"

// ParseDialect maps a configured driver name to a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pq":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// rebind rewrites ? placeholders into $n for Postgres.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Open opens and pings a database with the pool settings from config.
// Migrations are not applied.
func Open(driver, dsn string, config *SQLConfig) (*sql.DB, Dialect, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, "", fmt.Errorf("dsn is required")
	}
	dialect, err := ParseDialect(driver)
	if err != nil {
		return nil, "", err
	}
	if config == nil {
		config = DefaultSQLConfig()
	}

	if dialect == DialectSQLite && !strings.Contains(dsn, "?") {
		dsn += "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open database: %w", err)
	}

	maxOpen := config.MaxOpenConns
	if dialect == DialectSQLite && strings.Contains(dsn, ":memory:") {
		// Each connection to :memory: gets its own database.
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("ping database: %w", err)
	}
	return db, dialect, nil
}

// NewSQLStoresFromDSN opens a database, applies migrations and returns SQL-backed stores.
func NewSQLStoresFromDSN(driver, dsn string, config *SQLConfig) (StoreSet, error) {
	if config == nil {
		config = DefaultSQLConfig()
	}
	db, dialect, err := Open(driver, dsn, config)
	if err != nil {
		return StoreSet{}, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if _, err := Migrate(ctx, db, dialect); err != nil {
		_ = db.Close()
		return StoreSet{}, fmt.Errorf("migrate database: %w", err)
	}

	stores := NewSQLStores(db, dialect)
	stores.closer = db.Close
	return stores, nil
}

// NewSQLStores wraps an already migrated database.
func NewSQLStores(db *sql.DB, dialect Dialect) StoreSet {
	return StoreSet{
		Messages:  &sqlMessageStore{db: db, dialect: dialect},
		Pinboards: &sqlPinboardStore{db: db, dialect: dialect},
		Settings:  &sqlSettingsStore{db: db, dialect: dialect},
		Privacy:   &sqlPrivacyStore{db: db, dialect: dialect},
		pruner: func(ctx context.Context) error {
			return Prune(ctx, db, dialect)
		},
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "duplicate key")
}

type sqlMessageStore struct {
	db      *sql.DB
	dialect Dialect
}

func (s *sqlMessageStore) Get(ctx context.Context, id string) (*models.Message, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT id, channel_id, guild_id, author_id, content, pinned, created_at, updated_at
		 FROM messages WHERE id = ?`), id)

	var msg models.Message
	if err := row.Scan(
		&msg.ID,
		&msg.ChannelID,
		&msg.GuildID,
		&msg.AuthorID,
		&msg.Content,
		&msg.Pinned,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return &msg, nil
}

func (s *sqlMessageStore) Create(ctx context.Context, msg *models.Message) error {
	if msg == nil || msg.ID == "" {
		return fmt.Errorf("message is required")
	}
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	updatedAt := msg.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(
		`INSERT INTO messages (id, channel_id, guild_id, author_id, content, pinned, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		msg.ID,
		msg.ChannelID,
		msg.GuildID,
		msg.AuthorID,
		msg.Content,
		msg.Pinned,
		createdAt.UTC(),
		updatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

func (s *sqlMessageStore) Update(ctx context.Context, msg *models.Message) error {
	if msg == nil || msg.ID == "" {
		return fmt.Errorf("message is required")
	}
	updatedAt := msg.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	result, err := s.db.ExecContext(ctx, s.dialect.rebind(
		`UPDATE messages SET content = ?, pinned = ?, updated_at = ? WHERE id = ?`),
		msg.Content,
		msg.Pinned,
		updatedAt.UTC(),
		msg.ID,
	)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return expectAffected(result, "update message")
}

func (s *sqlMessageStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM messages WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return expectAffected(result, "delete message")
}

func (s *sqlMessageStore) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT count(*) FROM messages WHERE id = ?`), id).Scan(&n); err != nil {
		return false, fmt.Errorf("check message: %w", err)
	}
	return n > 0, nil
}

func expectAffected(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

type sqlPinboardStore struct {
	db      *sql.DB
	dialect Dialect
}

func (s *sqlPinboardStore) Register(ctx context.Context, board *models.Pinboard) error {
	if board == nil || board.ChannelID == "" {
		return fmt.Errorf("pinboard is required")
	}
	createdAt := board.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(
		`INSERT INTO pinboards (channel_id, created_at) VALUES (?, ?)`),
		board.ChannelID, createdAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("register pinboard: %w", err)
	}
	return nil
}

func (s *sqlPinboardStore) List(ctx context.Context, limit int) ([]*models.Pinboard, error) {
	query := `SELECT channel_id, created_at FROM pinboards ORDER BY LENGTH(channel_id), channel_id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list pinboards: %w", err)
	}
	defer rows.Close()

	var boards []*models.Pinboard
	for rows.Next() {
		var board models.Pinboard
		if err := rows.Scan(&board.ChannelID, &board.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pinboard: %w", err)
		}
		boards = append(boards, &board)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pinboards: %w", err)
	}
	return boards, nil
}

func (s *sqlPinboardStore) Link(ctx context.Context, link *models.PinboardLink) error {
	if link == nil || link.SourceChannelID == "" || link.PinboardChannelID == "" {
		return fmt.Errorf("link requires both a source and a pinboard channel")
	}
	createdAt := link.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(
		`INSERT INTO pinboard_links (source_channel_id, pinboard_channel_id, created_at) VALUES (?, ?, ?)`),
		link.SourceChannelID, link.PinboardChannelID, createdAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("link pinboard: %w", err)
	}
	return nil
}

func (s *sqlPinboardStore) Links(ctx context.Context) ([]*models.PinboardLink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_channel_id, pinboard_channel_id, created_at
		 FROM pinboard_links
		 ORDER BY LENGTH(source_channel_id), source_channel_id, LENGTH(pinboard_channel_id), pinboard_channel_id`)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer rows.Close()

	var links []*models.PinboardLink
	for rows.Next() {
		var link models.PinboardLink
		if err := rows.Scan(&link.SourceChannelID, &link.PinboardChannelID, &link.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, &link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}
	return links, nil
}

func (s *sqlPinboardStore) PinboardsFor(ctx context.Context, sourceChannelID string) ([]string, error) {
	return s.queryIDs(ctx,
		`SELECT pinboard_channel_id FROM pinboard_links WHERE source_channel_id = ?
		 ORDER BY LENGTH(pinboard_channel_id), pinboard_channel_id`,
		sourceChannelID)
}

func (s *sqlPinboardStore) LinkedSources(ctx context.Context, pinboardChannelID string) ([]string, error) {
	return s.queryIDs(ctx,
		`SELECT source_channel_id FROM pinboard_links WHERE pinboard_channel_id = ?
		 ORDER BY LENGTH(source_channel_id), source_channel_id`,
		pinboardChannelID)
}

func (s *sqlPinboardStore) TrackedChannels(ctx context.Context) ([]string, error) {
	return s.queryIDs(ctx,
		`SELECT source_channel_id FROM pinboard_links
		 GROUP BY source_channel_id ORDER BY LENGTH(source_channel_id), source_channel_id`)
}

func (s *sqlPinboardStore) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query channel ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan channel id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channel ids: %w", err)
	}
	return ids, nil
}

type sqlSettingsStore struct {
	db      *sql.DB
	dialect Dialect
}

func (s *sqlSettingsStore) MigrationMode(ctx context.Context) (models.MigrationMode, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT value FROM settings WHERE key = ?`), migrationModeKey).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DefaultMigrationMode, nil
		}
		return "", fmt.Errorf("get migration mode: %w", err)
	}
	mode, err := models.ParseMigrationMode(value)
	if err != nil {
		return "", fmt.Errorf("stored migration mode: %w", err)
	}
	return mode, nil
}

func (s *sqlSettingsStore) SetMigrationMode(ctx context.Context, mode models.MigrationMode) error {
	if !mode.Valid() {
		return fmt.Errorf("invalid migration mode %q", mode)
	}
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`),
		migrationModeKey, mode.String())
	if err != nil {
		return fmt.Errorf("set migration mode: %w", err)
	}
	return nil
}

func (s *sqlSettingsStore) SeedMigrationMode(ctx context.Context, mode models.MigrationMode) (bool, error) {
	if !mode.Valid() {
		return false, fmt.Errorf("invalid migration mode %q", mode)
	}
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO NOTHING`),
		migrationModeKey, mode.String())
	if err != nil {
		return false, fmt.Errorf("seed migration mode: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("seed migration mode: %w", err)
	}
	return n > 0, nil
}

type sqlPrivacyStore struct {
	db      *sql.DB
	dialect Dialect
}

func (s *sqlPrivacyStore) IsProtected(ctx context.Context, userID string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT count(*) FROM protected_users WHERE user_id = ?`), userID).Scan(&n); err != nil {
		return false, fmt.Errorf("check protected user: %w", err)
	}
	return n > 0, nil
}

func (s *sqlPrivacyStore) Protect(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(
		`INSERT INTO protected_users (user_id, created_at) VALUES (?, ?)
		 ON CONFLICT (user_id) DO NOTHING`),
		userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("protect user: %w", err)
	}
	return nil
}

func (s *sqlPrivacyStore) Unprotect(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.rebind(
		`DELETE FROM protected_users WHERE user_id = ?`), userID); err != nil {
		return fmt.Errorf("unprotect user: %w", err)
	}
	return nil
}
