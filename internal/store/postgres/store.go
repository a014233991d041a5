// Package postgres persists articles in Postgres. The url_hash column is
// unique, so writing an article is an upsert: a second result for the same
// normalized URL replaces the first instead of accumulating duplicates.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/newsgrid/harvester/internal/config"
	"github.com/newsgrid/harvester/internal/pipeline"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

var articleColumns = []string{
	"id",
	"url",
	"source",
	"category",
	"priority",
	"url_hash",
	"scraped_date",
	"scraping_method",
	"status",
	"error_message",
	"processing_time",
	"retry_count",
	"metadata",
}

// pool is the slice of the pgxpool API the store needs; narrowed so pgxmock
// can substitute for a live database in tests.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store reads and writes article records.
type Store struct {
	pool    pool
	table   string
	builder sq.StatementBuilderType
	logger  *zap.Logger
}

var _ pipeline.ArticleStore = (*Store)(nil)

// New connects a pool and verifies the connection before returning.
func New(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return NewWithPool(p, cfg.Table, logger)
}

// NewWithPool constructs a store from an existing pool (primarily for
// testing).
func NewWithPool(p pool, table string, logger *zap.Logger) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "articles"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		pool:    p,
		table:   table,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		logger:  logger,
	}, nil
}

// Migrate creates the article table and its indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	priority TEXT NOT NULL DEFAULT 'medium',
	url_hash TEXT NOT NULL UNIQUE,
	scraped_date TIMESTAMPTZ NOT NULL,
	scraping_method TEXT NOT NULL,
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	processing_time DOUBLE PRECISION NOT NULL DEFAULT 0,
	retry_count INTEGER NOT NULL DEFAULT 0,
	metadata JSONB
)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_category_idx ON %s (category)`, s.table, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_source_idx ON %s (source)`, s.table, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_priority_idx ON %s (priority)`, s.table, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_status_listing_idx ON %s (status, priority, scraped_date DESC)`, s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", s.table, err)
		}
	}
	return nil
}

// Upsert writes an article, replacing any existing row with the same
// url_hash in one statement.
func (s *Store) Upsert(ctx context.Context, article pipeline.Article) error {
	if article.Technical.URLHash == "" {
		return fmt.Errorf("article url_hash is required")
	}
	metaJSON, err := marshalMetadata(article.Metadata)
	if err != nil {
		return err
	}

	query, args, err := s.builder.
		Insert(s.table).
		Columns(articleColumns...).
		Values(
			article.ID,
			article.URL,
			article.Source,
			article.Category,
			string(article.Priority),
			article.Technical.URLHash,
			article.Technical.ScrapedDate,
			string(article.Technical.ScrapingMethod),
			string(article.Technical.Status),
			article.Technical.ErrorMessage,
			article.Technical.ProcessingTime,
			article.Technical.RetryCount,
			metaJSON,
		).
		Suffix(`ON CONFLICT (url_hash) DO UPDATE SET
	id = EXCLUDED.id,
	url = EXCLUDED.url,
	source = EXCLUDED.source,
	category = EXCLUDED.category,
	priority = EXCLUDED.priority,
	scraped_date = EXCLUDED.scraped_date,
	scraping_method = EXCLUDED.scraping_method,
	status = EXCLUDED.status,
	error_message = EXCLUDED.error_message,
	processing_time = EXCLUDED.processing_time,
	retry_count = EXCLUDED.retry_count,
	metadata = EXCLUDED.metadata`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert article %s: %w", article.Technical.URLHash, err)
	}
	s.logger.Debug("article stored",
		zap.String("url_hash", article.Technical.URLHash),
		zap.String("status", string(article.Technical.Status)),
	)
	return nil
}

// FindByHash returns the article with the given url_hash, or nil when no
// row matches.
func (s *Store) FindByHash(ctx context.Context, urlHash string) (*pipeline.Article, error) {
	return s.findOne(ctx, sq.Eq{"url_hash": urlHash})
}

// FindByID returns the article with the given queue id, or nil when no row
// matches.
func (s *Store) FindByID(ctx context.Context, id string) (*pipeline.Article, error) {
	return s.findOne(ctx, sq.Eq{"id": id})
}

func (s *Store) findOne(ctx context.Context, pred sq.Eq) (*pipeline.Article, error) {
	query, args, err := s.builder.
		Select(articleColumns...).
		From(s.table).
		Where(pred).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	article, err := scanArticle(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find article: %w", err)
	}
	return article, nil
}

// FindByStatus returns the most recently scraped articles with the given
// status, newest first.
func (s *Store) FindByStatus(ctx context.Context, status pipeline.Status, limit int) ([]pipeline.Article, error) {
	if limit <= 0 {
		limit = 50
	}
	query, args, err := s.builder.
		Select(articleColumns...).
		From(s.table).
		Where(sq.Eq{"status": string(status)}).
		OrderBy("scraped_date DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find articles by status: %w", err)
	}
	defer rows.Close()

	var out []pipeline.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		out = append(out, *article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return out, nil
}

// Statistics reports row counts per status and the overall success rate.
func (s *Store) Statistics(ctx context.Context) (pipeline.StoreStatistics, error) {
	query := fmt.Sprintf(`SELECT
	COUNT(*),
	COUNT(*) FILTER (WHERE status = 'success'),
	COUNT(*) FILTER (WHERE status = 'failed'),
	COUNT(*) FILTER (WHERE status = 'pending')
FROM %s`, s.table)

	var stats pipeline.StoreStatistics
	row := s.pool.QueryRow(ctx, query)
	if err := row.Scan(&stats.Total, &stats.Success, &stats.Failed, &stats.Pending); err != nil {
		return pipeline.StoreStatistics{}, fmt.Errorf("store statistics: %w", err)
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Success) / float64(stats.Total) * 100
	}
	return stats, nil
}

// HealthCheck reports whether the database answers a ping.
func (s *Store) HealthCheck(ctx context.Context) bool {
	return s.pool.Ping(ctx) == nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func marshalMetadata(meta *pipeline.Metadata) ([]byte, error) {
	if meta == nil {
		return nil, nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return b, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanArticle(row scannable) (*pipeline.Article, error) {
	var (
		article     pipeline.Article
		priority    string
		method      string
		status      string
		scrapedDate time.Time
		metaJSON    []byte
	)
	err := row.Scan(
		&article.ID,
		&article.URL,
		&article.Source,
		&article.Category,
		&priority,
		&article.Technical.URLHash,
		&scrapedDate,
		&method,
		&status,
		&article.Technical.ErrorMessage,
		&article.Technical.ProcessingTime,
		&article.Technical.RetryCount,
		&metaJSON,
	)
	if err != nil {
		return nil, err
	}
	article.Priority = pipeline.Priority(priority)
	article.Technical.ScrapedDate = scrapedDate
	article.Technical.ScrapingMethod = pipeline.Method(method)
	article.Technical.Status = pipeline.Status(status)
	if len(metaJSON) > 0 {
		var meta pipeline.Metadata
		if err := json.Unmarshal(metaJSON, &meta); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		article.Metadata = &meta
	}
	return &article, nil
}
