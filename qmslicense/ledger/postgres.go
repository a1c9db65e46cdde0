package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultPostgresTable = "qms_license_issuances"

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// PostgresOption configures a PostgresLedger.
type PostgresOption func(*PostgresLedger)

// WithTableName sets the PostgreSQL table name. Default: "qms_license_issuances".
func WithTableName(name string) PostgresOption {
	return func(l *PostgresLedger) {
		l.tableName = name
	}
}

// PostgresLedger implements Ledger using PostgreSQL.
type PostgresLedger struct {
	pool      *pgxpool.Pool
	tableName string
}

// NewPostgresLedger creates a PostgreSQL-backed ledger.
// It auto-creates the table and indexes on initialization.
func NewPostgresLedger(ctx context.Context, pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresLedger, error) {
	l := &PostgresLedger{
		pool:      pool,
		tableName: defaultPostgresTable,
	}
	for _, opt := range opts {
		opt(l)
	}
	if !validIdentifier.MatchString(l.tableName) {
		return nil, fmt.Errorf("invalid table name %q: must match [a-zA-Z_][a-zA-Z0-9_]*", l.tableName)
	}
	if err := l.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("create table: %w", err)
	}
	return l, nil
}

func (l *PostgresLedger) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			license_id     TEXT PRIMARY KEY,
			issuer         TEXT NOT NULL,
			organization   TEXT NOT NULL,
			tier           TEXT NOT NULL,
			modules        TEXT[] NOT NULL,
			max_users      BIGINT NOT NULL,
			max_storage_gb BIGINT NOT NULL,
			issued_at      TIMESTAMPTZ NOT NULL,
			expires_at     TIMESTAMPTZ NOT NULL,
			grace_days     INTEGER NOT NULL,
			fingerprint    TEXT NOT NULL DEFAULT '',
			token_sha256   TEXT NOT NULL,
			recorded_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_%s_organization_issued
			ON %s (organization, issued_at);
		CREATE INDEX IF NOT EXISTS idx_%s_expires
			ON %s (expires_at);
	`, l.tableName, l.tableName, l.tableName, l.tableName, l.tableName)
	_, err := l.pool.Exec(ctx, query)
	return err
}

func (l *PostgresLedger) Record(ctx context.Context, rec Record) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	modules := rec.Modules
	if modules == nil {
		modules = []string{}
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (license_id, issuer, organization, tier, modules, max_users, max_storage_gb,
			issued_at, expires_at, grace_days, fingerprint, token_sha256, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, l.tableName)
	_, err := l.pool.Exec(ctx, query,
		rec.LicenseID, rec.Issuer, rec.Organization, rec.Tier, modules, rec.MaxUsers, rec.MaxStorageGB,
		rec.IssuedAt, rec.ExpiresAt, rec.GraceDays, rec.Fingerprint, rec.TokenSHA256, rec.RecordedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("record license: %w", err)
	}
	return nil
}

const postgresColumns = `license_id, issuer, organization, tier, modules, max_users, max_storage_gb,
	issued_at, expires_at, grace_days, fingerprint, token_sha256, recorded_at`

func scanRecord(row pgx.Row) (Record, error) {
	var r Record
	err := row.Scan(&r.LicenseID, &r.Issuer, &r.Organization, &r.Tier, &r.Modules,
		&r.MaxUsers, &r.MaxStorageGB, &r.IssuedAt, &r.ExpiresAt, &r.GraceDays,
		&r.Fingerprint, &r.TokenSHA256, &r.RecordedAt)
	return r, err
}

func (l *PostgresLedger) Get(ctx context.Context, licenseID string) (*Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE license_id = $1`, postgresColumns, l.tableName)
	r, err := scanRecord(l.pool.QueryRow(ctx, query, licenseID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get license: %w", err)
	}
	return &r, nil
}

// sqlWhere renders f as a WHERE clause with positional arguments.
func (f Filter) sqlWhere() (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Organization != "" {
		add("organization = $%d", f.Organization)
	}
	if f.Tier != "" {
		add("tier = $%d", f.Tier)
	}
	if !f.ExpiresBefore.IsZero() {
		add("expires_at < $%d", f.ExpiresBefore)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (l *PostgresLedger) List(ctx context.Context, f Filter) ([]Record, error) {
	where, args := f.sqlWhere()
	query := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY issued_at, license_id`, postgresColumns, l.tableName, where)

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list licenses: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan license: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (l *PostgresLedger) Count(ctx context.Context, f Filter) (int, error) {
	where, args := f.sqlWhere()
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s%s`, l.tableName, where)
	var count int
	if err := l.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count licenses: %w", err)
	}
	return count, nil
}

func (l *PostgresLedger) Close(_ context.Context) error {
	return nil // caller owns the pgxpool.Pool
}
