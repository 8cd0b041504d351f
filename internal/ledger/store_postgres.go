package ledger

import (
	"context"
	"database/sql"
	"database/sql/driver"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"openbadges/pkg/domain"
	"openbadges/pkg/platform/sentinel"
)

//go:embed schema.sql
var postgresSchema string

// PostgresLedger persists accounts in a single PostgreSQL table. The primary
// key on address is the create-if-absent guard.
type PostgresLedger struct {
	db *sql.DB
}

// NewPostgresLedger constructs a PostgreSQL-backed ledger.
func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// Migrate creates the ledger table and indexes if they are missing.
func (l *PostgresLedger) Migrate(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, postgresSchema); err != nil {
		return classify("migrate ledger schema", err)
	}
	return nil
}

func (l *PostgresLedger) CreateIfAbsent(ctx context.Context, acct Account) error {
	query := `
		INSERT INTO ledger_accounts (address, kind, nonce, issuer, achievement, recipient, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (address) DO NOTHING
	`
	res, err := l.db.ExecContext(ctx, query,
		acct.Address.String(),
		string(acct.Kind),
		int16(acct.Nonce),
		nullableAddress(acct.Issuer),
		nullableAddress(acct.Achievement),
		nullableAddress(acct.Recipient),
		[]byte(acct.Data),
		acct.CreatedAt,
		acct.UpdatedAt,
	)
	if err != nil {
		return classify("create account", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create account rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrAlreadyExists
	}
	return nil
}

func (l *PostgresLedger) Read(ctx context.Context, addr domain.Address) (Account, error) {
	query := `
		SELECT address, kind, nonce, issuer, achievement, recipient, data, created_at, updated_at
		FROM ledger_accounts
		WHERE address = $1
	`
	acct, err := scanAccount(l.db.QueryRowContext(ctx, query, addr.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Account{}, classify("read account", err)
	}
	return acct, nil
}

func (l *PostgresLedger) Replace(ctx context.Context, acct Account) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE ledger_accounts SET data = $2, updated_at = $3 WHERE address = $1`,
		acct.Address.String(), []byte(acct.Data), acct.UpdatedAt,
	)
	if err != nil {
		return classify("replace account", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("replace account rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// CompareAndReplace compares as jsonb, so key order and whitespace in
// expected do not matter.
func (l *PostgresLedger) CompareAndReplace(ctx context.Context, acct Account, expected json.RawMessage) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE ledger_accounts SET data = $2, updated_at = $3 WHERE address = $1 AND data = $4::jsonb`,
		acct.Address.String(), []byte(acct.Data), acct.UpdatedAt, []byte(expected),
	)
	if err != nil {
		return classify("replace account", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("replace account rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := l.Read(ctx, acct.Address); err != nil {
		return err
	}
	return sentinel.ErrConflict
}

func (l *PostgresLedger) List(ctx context.Context, f Filter) ([]Account, int, error) {
	where, args := buildWhere(f)

	var total int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_accounts`+where, args...).Scan(&total); err != nil {
		return nil, 0, classify("count accounts", err)
	}

	query := `SELECT address, kind, nonce, issuer, achievement, recipient, data, created_at, updated_at FROM ledger_accounts` +
		where + ` ORDER BY created_at, address`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, classify("list accounts", err)
	}
	defer rows.Close()

	accts := make([]Account, 0)
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan account: %w", err)
		}
		accts = append(accts, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, classify("iterate accounts", err)
	}
	return accts, total, nil
}

func buildWhere(f Filter) (string, []any) {
	var clauses []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if f.Kind != "" {
		add("kind", string(f.Kind))
	}
	if !f.Issuer.IsZero() {
		add("issuer", f.Issuer.String())
	}
	if !f.Achievement.IsZero() {
		add("achievement", f.Achievement.String())
	}
	if !f.Recipient.IsZero() {
		add("recipient", f.Recipient.String())
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (Account, error) {
	var (
		acct                           Account
		kind                           string
		nonce                          int16
		issuer, achievement, recipient sql.NullString
		data                           []byte
	)
	if err := row.Scan(&acct.Address, &kind, &nonce, &issuer, &achievement, &recipient, &data, &acct.CreatedAt, &acct.UpdatedAt); err != nil {
		return Account{}, err
	}
	acct.Kind = Kind(kind)
	acct.Nonce = byte(nonce)
	acct.Data = data

	var err error
	if acct.Issuer, err = parseNullable(issuer); err != nil {
		return Account{}, err
	}
	if acct.Achievement, err = parseNullable(achievement); err != nil {
		return Account{}, err
	}
	if acct.Recipient, err = parseNullable(recipient); err != nil {
		return Account{}, err
	}
	return acct, nil
}

func nullableAddress(a domain.Address) sql.NullString {
	if a.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: a.String(), Valid: true}
}

func parseNullable(s sql.NullString) (domain.Address, error) {
	if !s.Valid {
		return domain.Address{}, nil
	}
	return domain.ParseAddress(s.String)
}

// classify marks connection-level failures as sentinel.ErrUnavailable so the
// service reports them as retryable; everything else stays an internal error.
func classify(op string, err error) error {
	if isTransient(err) {
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 08: connection exception, 57P: operator intervention (shutdown).
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P")
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
