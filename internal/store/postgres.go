package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/propstatus/internal/db"
	"github.com/sells-group/propstatus/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()

	nowFunc func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	sqlGetAddress   = `SELECT address FROM properties WHERE id = $1`
	sqlGetProperty  = `SELECT ` + propertyColumns + ` FROM properties WHERE id = $1`
	sqlListByTenant = `SELECT ` + propertyColumns + ` FROM properties WHERE tenant = $1 ORDER BY id`
	sqlUpdateStatus = `UPDATE properties SET status = $1, updated_at = $2 WHERE id = $3`
)

// preparedStatements are prepared on each new connection; the refresh
// scheduler issues them once per property per interval.
var preparedStatements = map[string]string{
	"get_address":    sqlGetAddress,
	"get_property":   sqlGetProperty,
	"list_by_tenant": sqlListByTenant,
	"update_status":  sqlUpdateStatus,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, nowFunc: time.Now}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS properties (
	id         BIGSERIAL PRIMARY KEY,
	tenant     TEXT NOT NULL,
	address    TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'Active',
	price      DOUBLE PRECISION NOT NULL DEFAULT 0,
	agent      TEXT NOT NULL DEFAULT '',
	company    TEXT NOT NULL DEFAULT '',
	image_url  TEXT NOT NULL DEFAULT '',
	paid       BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant, address)
);

CREATE INDEX IF NOT EXISTS idx_properties_tenant ON properties(tenant);
CREATE INDEX IF NOT EXISTS idx_properties_status ON properties(status);
`

// importUpsert refreshes listing details on re-import; status is owned by
// the refresh scheduler and never overwritten here.
var importUpsert = db.UpsertConfig{
	Table:        "properties",
	Columns:      []string{"tenant", "address", "status", "price", "agent", "company", "image_url", "paid", "created_at", "updated_at"},
	ConflictKeys: []string{"tenant", "address"},
	UpdateCols:   []string{"price", "agent", "company", "image_url", "paid", "updated_at"},
}

func (s *PostgresStore) now() time.Time {
	if s.nowFunc == nil {
		return time.Now().UTC()
	}
	return s.nowFunc().UTC()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetAddress(ctx context.Context, id int64) (string, error) {
	var address string
	err := s.pool.QueryRow(ctx, sqlGetAddress, id).Scan(&address)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", notFound(id)
	}
	if err != nil {
		return "", eris.Wrapf(err, "postgres: get address %d", id)
	}
	return address, nil
}

func (s *PostgresStore) GetProperty(ctx context.Context, id int64) (*model.Property, error) {
	p, err := scanProperty(s.pool.QueryRow(ctx, sqlGetProperty, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get property %d", id)
	}
	return p, nil
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenant string) ([]model.Property, error) {
	rows, err := s.pool.Query(ctx, sqlListByTenant, tenant)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list properties for %s", tenant)
	}
	defer rows.Close()

	var props []model.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan property")
		}
		props = append(props, *p)
	}
	return props, eris.Wrap(rows.Err(), "postgres: iterate properties")
}

func (s *PostgresStore) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT tenant FROM properties ORDER BY tenant`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tenants")
	}
	tenants, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return tenants, eris.Wrap(err, "postgres: collect tenants")
}

func (s *PostgresStore) CreateProperty(ctx context.Context, p model.Property) (int64, error) {
	if err := validateProperty(p); err != nil {
		return 0, err
	}
	now := s.now()
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO properties (tenant, address, status, price, agent, company, image_url, paid, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		p.Tenant, p.Address, string(initialStatus(p.Status)), p.Price, p.Agent, p.Company, p.ImageURL, p.Paid, now, now,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert property")
	}
	return id, nil
}

func (s *PostgresStore) ImportProperties(ctx context.Context, props []model.Property) (int64, error) {
	now := s.now()
	rows := make([][]any, 0, len(props))
	for _, p := range props {
		if err := validateProperty(p); err != nil {
			return 0, err
		}
		rows = append(rows, []any{
			p.Tenant, p.Address, string(initialStatus(p.Status)), p.Price, p.Agent, p.Company, p.ImageURL, p.Paid, now, now,
		})
	}
	n, err := db.Upsert(ctx, s.pool, importUpsert, rows)
	return n, eris.Wrap(err, "postgres: import properties")
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id int64, status model.ListingStatus) error {
	tag, err := s.pool.Exec(ctx, sqlUpdateStatus, string(status), s.now(), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: update status %d", id)
	}
	if tag.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}
