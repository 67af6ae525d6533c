package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/propstatus/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB

	nowFunc func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, nowFunc: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS properties (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	tenant     TEXT NOT NULL,
	address    TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'Active',
	price      REAL NOT NULL DEFAULT 0,
	agent      TEXT NOT NULL DEFAULT '',
	company    TEXT NOT NULL DEFAULT '',
	image_url  TEXT NOT NULL DEFAULT '',
	paid       BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (tenant, address)
);

CREATE INDEX IF NOT EXISTS idx_properties_tenant ON properties(tenant);
CREATE INDEX IF NOT EXISTS idx_properties_status ON properties(status);
`

const propertyColumns = `id, tenant, address, status, price, agent, company, image_url, paid, created_at, updated_at`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetAddress(ctx context.Context, id int64) (string, error) {
	var address string
	err := s.db.QueryRowContext(ctx, `SELECT address FROM properties WHERE id = ?`, id).Scan(&address)
	if errors.Is(err, sql.ErrNoRows) {
		return "", notFound(id)
	}
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: get address %d", id)
	}
	return address, nil
}

func (s *SQLiteStore) GetProperty(ctx context.Context, id int64) (*model.Property, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+propertyColumns+` FROM properties WHERE id = ?`, id)
	p, err := scanProperty(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get property %d", id)
	}
	return p, nil
}

func (s *SQLiteStore) ListByTenant(ctx context.Context, tenant string) ([]model.Property, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+propertyColumns+` FROM properties WHERE tenant = ? ORDER BY id`, tenant)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list properties for %s", tenant)
	}
	defer rows.Close() //nolint:errcheck

	var props []model.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan property")
		}
		props = append(props, *p)
	}
	return props, eris.Wrap(rows.Err(), "sqlite: iterate properties")
}

func (s *SQLiteStore) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT tenant FROM properties ORDER BY tenant`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tenants")
	}
	defer rows.Close() //nolint:errcheck

	var tenants []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tenant")
		}
		tenants = append(tenants, t)
	}
	return tenants, eris.Wrap(rows.Err(), "sqlite: iterate tenants")
}

func (s *SQLiteStore) CreateProperty(ctx context.Context, p model.Property) (int64, error) {
	if err := validateProperty(p); err != nil {
		return 0, err
	}
	now := s.nowFunc().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO properties (tenant, address, status, price, agent, company, image_url, paid, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Tenant, p.Address, string(initialStatus(p.Status)), p.Price, p.Agent, p.Company, p.ImageURL, p.Paid, now, now,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: insert property")
	}
	id, err := res.LastInsertId()
	return id, eris.Wrap(err, "sqlite: last insert id")
}

func (s *SQLiteStore) ImportProperties(ctx context.Context, props []model.Property) (int64, error) {
	if len(props) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin import")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO properties (tenant, address, status, price, agent, company, image_url, paid, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant, address) DO UPDATE SET
			price = excluded.price, agent = excluded.agent, company = excluded.company,
			image_url = excluded.image_url, paid = excluded.paid, updated_at = excluded.updated_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare import")
	}
	defer stmt.Close() //nolint:errcheck

	now := s.nowFunc().UTC()
	var n int64
	for _, p := range props {
		if err := validateProperty(p); err != nil {
			return 0, err
		}
		res, err := stmt.ExecContext(ctx,
			p.Tenant, p.Address, string(initialStatus(p.Status)), p.Price, p.Agent, p.Company, p.ImageURL, p.Paid, now, now)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: import %s", p.Address)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit import")
	}
	return n, nil
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id int64, status model.ListingStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE properties SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), s.nowFunc().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update status %d", id)
	}
	return checkRowsAffected(res, id)
}

func checkRowsAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return notFound(id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanProperty(row scannable) (*model.Property, error) {
	var p model.Property
	var status string
	if err := row.Scan(&p.ID, &p.Tenant, &p.Address, &status, &p.Price, &p.Agent, &p.Company,
		&p.ImageURL, &p.Paid, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Status = model.ParseListingStatus(status)
	return &p, nil
}
