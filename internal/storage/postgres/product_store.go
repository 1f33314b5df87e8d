// Package postgres provides the Postgres-backed product store.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/product"
	"github.com/JakeFAU/catalog-crawler/internal/storage"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "shoes"

// Config controls the Postgres connection pool used for product rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxConn interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// ProductStore appends product rows to a single table.
type ProductStore struct {
	pool  pgxConn
	table string
}

var _ crawler.ProductStore = (*ProductStore)(nil)

// NewProductStore connects to Postgres using the provided config.
func NewProductStore(ctx context.Context, cfg Config) (*ProductStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
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
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ProductStore{pool: pool, table: table}, nil
}

// NewProductStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewProductStoreWithPool(pool pgxConn, table string) (*ProductStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &ProductStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// EnsureSchema creates the product table when it does not exist yet.
func (s *ProductStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return storage.ErrNotConfigured
	}
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	title TEXT,
	description TEXT,
	price TEXT,
	size_type TEXT,
	product_size TEXT,
	product_details TEXT,
	images_links TEXT
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Insert appends row in a single statement and returns the assigned id.
// No uniqueness is enforced.
func (s *ProductStore) Insert(ctx context.Context, row product.Row) (string, error) {
	if s == nil || s.pool == nil {
		return "", storage.ErrNotConfigured
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	title,
	description,
	price,
	size_type,
	product_size,
	product_details,
	images_links
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
)
RETURNING id`, s.table)

	var id int64
	err := s.pool.QueryRow(ctx, query,
		row.Title,
		row.Description,
		row.Price,
		row.SizeType,
		row.ProductSize,
		row.ProductDetails,
		row.ImagesLinks,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert product: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

// Exists reports whether a row with exactly this title is stored.
func (s *ProductStore) Exists(ctx context.Context, title string) (bool, error) {
	if s == nil || s.pool == nil {
		return false, storage.ErrNotConfigured
	}
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE title = $1)`, s.table)
	var exists bool
	if err := s.pool.QueryRow(ctx, query, title).Scan(&exists); err != nil {
		return false, fmt.Errorf("check product exists: %w", err)
	}
	return exists, nil
}

// Close releases the underlying pool resources.
func (s *ProductStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}
