package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"openbadges/pkg/domain"
	"openbadges/pkg/platform/sentinel"
)

// sqliteAccount is the gorm row shape. Addresses are stored in base58 so the
// file can be inspected with the sqlite3 shell.
type sqliteAccount struct {
	Address     string `gorm:"primaryKey"`
	Kind        string `gorm:"index:idx_kind_created,priority:1;not null"`
	Nonce       uint8
	Issuer      string `gorm:"index"`
	Achievement string `gorm:"index"`
	Recipient   string `gorm:"index"`
	Data        []byte
	CreatedAt   time.Time `gorm:"index:idx_kind_created,priority:2;autoCreateTime:false"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false"`
}

func (sqliteAccount) TableName() string { return "ledger_accounts" }

// SQLiteLedger is a single-file ledger for local development and demo runs.
type SQLiteLedger struct {
	db *gorm.DB
}

// OpenSQLite opens (or creates) the database at path and migrates the schema.
// Use ":memory:" for an ephemeral ledger.
func OpenSQLite(path string) (*SQLiteLedger, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite ledger: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serialises writers.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&sqliteAccount{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite ledger: %w", err)
	}
	return &SQLiteLedger{db: db}, nil
}

// Close releases the underlying database handle.
func (l *SQLiteLedger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (l *SQLiteLedger) CreateIfAbsent(ctx context.Context, acct Account) error {
	row := toSQLiteRow(acct)
	res := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "address"}}, DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return fmt.Errorf("create account: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return sentinel.ErrAlreadyExists
	}
	return nil
}

func (l *SQLiteLedger) Read(ctx context.Context, addr domain.Address) (Account, error) {
	var row sqliteAccount
	err := l.db.WithContext(ctx).Where("address = ?", addr.String()).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Account{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("read account: %w", err)
	}
	return row.toAccount()
}

func (l *SQLiteLedger) Replace(ctx context.Context, acct Account) error {
	res := l.db.WithContext(ctx).Model(&sqliteAccount{}).
		Where("address = ?", acct.Address.String()).
		Updates(map[string]any{"data": []byte(acct.Data), "updated_at": acct.UpdatedAt})
	if res.Error != nil {
		return fmt.Errorf("replace account: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (l *SQLiteLedger) CompareAndReplace(ctx context.Context, acct Account, expected json.RawMessage) error {
	res := l.db.WithContext(ctx).Model(&sqliteAccount{}).
		Where("address = ? AND data = ?", acct.Address.String(), []byte(expected)).
		Updates(map[string]any{"data": []byte(acct.Data), "updated_at": acct.UpdatedAt})
	if res.Error != nil {
		return fmt.Errorf("replace account: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if _, err := l.Read(ctx, acct.Address); err != nil {
		return err
	}
	return sentinel.ErrConflict
}

func (l *SQLiteLedger) List(ctx context.Context, f Filter) ([]Account, int, error) {
	q := l.db.WithContext(ctx).Model(&sqliteAccount{})
	if f.Kind != "" {
		q = q.Where("kind = ?", string(f.Kind))
	}
	if !f.Issuer.IsZero() {
		q = q.Where("issuer = ?", f.Issuer.String())
	}
	if !f.Achievement.IsZero() {
		q = q.Where("achievement = ?", f.Achievement.String())
	}
	if !f.Recipient.IsZero() {
		q = q.Where("recipient = ?", f.Recipient.String())
	}
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since.UTC())
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count accounts: %w", err)
	}

	q = q.Order("created_at").Order("address").Offset(max(f.Offset, 0))
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var rows []sqliteAccount
	if err := q.Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}

	accts := make([]Account, 0, len(rows))
	for _, row := range rows {
		acct, err := row.toAccount()
		if err != nil {
			return nil, 0, err
		}
		accts = append(accts, acct)
	}
	return accts, int(total), nil
}

func toSQLiteRow(acct Account) sqliteAccount {
	row := sqliteAccount{
		Address:   acct.Address.String(),
		Kind:      string(acct.Kind),
		Nonce:     acct.Nonce,
		Data:      []byte(acct.Data),
		CreatedAt: acct.CreatedAt.UTC(),
		UpdatedAt: acct.UpdatedAt.UTC(),
	}
	if !acct.Issuer.IsZero() {
		row.Issuer = acct.Issuer.String()
	}
	if !acct.Achievement.IsZero() {
		row.Achievement = acct.Achievement.String()
	}
	if !acct.Recipient.IsZero() {
		row.Recipient = acct.Recipient.String()
	}
	return row
}

func (r sqliteAccount) toAccount() (Account, error) {
	acct := Account{
		Kind:      Kind(r.Kind),
		Nonce:     r.Nonce,
		Data:      r.Data,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	var err error
	if acct.Address, err = domain.ParseAddress(r.Address); err != nil {
		return Account{}, fmt.Errorf("decode account address: %w", err)
	}
	for _, f := range []struct {
		src string
		dst *domain.Address
	}{
		{r.Issuer, &acct.Issuer},
		{r.Achievement, &acct.Achievement},
		{r.Recipient, &acct.Recipient},
	} {
		if f.src == "" {
			continue
		}
		if *f.dst, err = domain.ParseAddress(f.src); err != nil {
			return Account{}, fmt.Errorf("decode account reference: %w", err)
		}
	}
	return acct, nil
}
