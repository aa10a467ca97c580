package repo

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"finbot/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// fixed width so lexical order is chronological
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLite is a Store on an embedded modernc SQLite database.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// OpenSQLite opens path (":memory:" works) and applies migrations.
func OpenSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; database/sql serialises callers on the single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", p, err)
		}
	}

	s := &SQLite{db: db, logger: logger.With("component", "store_sqlite"), now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	files, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		if strings.HasSuffix(f.Name(), ".sql") {
			names = append(names, f.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		version := strings.TrimSuffix(name, filepath.Ext(name))
		var exists int
		if err := s.db.QueryRow(`SELECT COUNT(1) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", version, err)
		}
		if exists > 0 {
			continue
		}
		body, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(body)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, version, s.stamp()); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		s.logger.Info("applied migration", "version", version)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) stamp() string {
	return s.now().UTC().Format(sqliteTimeLayout)
}

func (s *SQLite) CreateOrGetUser(ctx context.Context, p UserProfile) (*domain.User, error) {
	lang := p.Language
	if lang == "" {
		lang = "en"
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, telegram_id, username, first_name, language, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (telegram_id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name
		RETURNING id, telegram_id, username, first_name, language, created_at`,
		uuid.NewString(), p.TelegramID, p.Username, p.FirstName, lang, s.stamp())
	user, err := scanSQLiteUser(row)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return user, nil
}

func (s *SQLite) GetUserByExternalID(ctx context.Context, telegramID int64) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, telegram_id, username, first_name, language, created_at
		FROM users WHERE telegram_id = ?`, telegramID)
	user, err := scanSQLiteUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *SQLite) CreateAccount(ctx context.Context, in NewAccount) (*domain.Account, error) {
	if err := validateNewAccount(in); err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM accounts WHERE user_id = ?`, in.UserID).Scan(&count); err != nil {
		return nil, fmt.Errorf("count accounts: %w", err)
	}

	acc := &domain.Account{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		Name:      strings.TrimSpace(in.Name),
		Type:      in.Type,
		Balance:   in.Balance,
		Currency:  in.Currency,
		IsDefault: count == 0,
		CreatedAt: s.now().UTC(),
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (id, user_id, name, type, balance, currency, is_default, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		acc.ID, acc.UserID, acc.Name, string(acc.Type), acc.Balance.String(), acc.Currency, boolInt(acc.IsDefault),
		acc.CreatedAt.Format(sqliteTimeLayout)); err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return acc, nil
}

func (s *SQLite) GetUserAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, type, balance, currency, is_default, created_at
		FROM accounts WHERE user_id = ? ORDER BY created_at ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		acc, err := scanSQLiteAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *acc)
	}
	return out, rows.Err()
}

func (s *SQLite) SetDefaultAccount(ctx context.Context, userID, accountID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := sqliteCheckOwner(ctx, tx, userID, accountID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE accounts SET is_default = CASE WHEN id = ? THEN 1 ELSE 0 END WHERE user_id = ?`, accountID, userID); err != nil {
		return fmt.Errorf("set default: %w", err)
	}
	return tx.Commit()
}

func (s *SQLite) CreateTransaction(ctx context.Context, in NewTransaction) (*domain.Transaction, *domain.Account, error) {
	if err := validateNewTransaction(in); err != nil {
		return nil, nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if in.DraftID != "" {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM transactions WHERE draft_id = ?`, in.DraftID).Scan(&n); err != nil {
			return nil, nil, fmt.Errorf("check draft: %w", err)
		}
		if n > 0 {
			return nil, nil, ErrDuplicate
		}
	}
	if err := sqliteCheckOwner(ctx, tx, in.UserID, in.AccountID); err != nil {
		return nil, nil, err
	}

	row := tx.QueryRowContext(ctx, `
		SELECT id, user_id, name, type, balance, currency, is_default, created_at
		FROM accounts WHERE id = ?`, in.AccountID)
	acc, err := scanSQLiteAccount(row)
	if err != nil {
		return nil, nil, fmt.Errorf("load account: %w", err)
	}

	now := s.now().UTC()
	t := &domain.Transaction{
		ID:          uuid.NewString(),
		UserID:      in.UserID,
		AccountID:   in.AccountID,
		Type:        in.Type,
		Amount:      in.Amount,
		Description: in.Description,
		Category:    in.Category,
		Currency:    in.Currency,
		Date:        txDate(in.Date, now),
		DraftID:     in.DraftID,
		CreatedAt:   now,
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, account_id, type, amount, description, category, currency, tx_date, draft_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.AccountID, string(t.Type), t.Amount.String(), t.Description, t.Category, t.Currency,
		t.Date, nullString(t.DraftID), now.Format(sqliteTimeLayout)); err != nil {
		return nil, nil, fmt.Errorf("insert transaction: %w", err)
	}

	acc.Balance = acc.Balance.Add(in.Type.Signed(in.Amount))
	if _, err := tx.ExecContext(ctx, `UPDATE accounts SET balance = ? WHERE id = ?`, acc.Balance.String(), acc.ID); err != nil {
		return nil, nil, fmt.Errorf("update balance: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit: %w", err)
	}
	return t, acc, nil
}

func (s *SQLite) RecentTransactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	return s.SearchTransactions(ctx, TransactionFilter{UserID: userID, Limit: limit})
}

func (s *SQLite) SearchTransactions(ctx context.Context, f TransactionFilter) ([]domain.Transaction, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{f.UserID}
	)
	if f.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.Category != "" {
		where = append(where, "category = ? COLLATE NOCASE")
		args = append(args, f.Category)
	}
	if f.FromDate != "" {
		where = append(where, "tx_date >= ?")
		args = append(args, f.FromDate)
	}
	if f.ToDate != "" {
		where = append(where, "tx_date <= ?")
		args = append(args, f.ToDate)
	}
	query := `SELECT id, user_id, account_id, type, amount, description, category, currency, tx_date, COALESCE(draft_id, ''), created_at
		FROM transactions WHERE ` + strings.Join(where, " AND ") + ` ORDER BY tx_date DESC, created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var (
			t               domain.Transaction
			typ, amt, stamp string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.AccountID, &typ, &amt, &t.Description, &t.Category, &t.Currency, &t.Date, &t.DraftID, &stamp); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Type = domain.TxType(typ)
		if t.Amount, err = decimal.NewFromString(amt); err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", amt, err)
		}
		t.CreatedAt = parseSQLiteTime(stamp)
		// amounts are TEXT here, so the range filter runs in Go
		if !matchesAmount(f, t.Amount) {
			continue
		}
		out = append(out, t)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, rows.Err()
}

func (s *SQLite) InsertMessage(ctx context.Context, m MessageRecord) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (user_id, direction, type, content, intent, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.UserID, m.Direction, m.Type, m.Content, m.Intent, s.stamp()); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *SQLite) RecentMessages(ctx context.Context, userID string, limit int) ([]MessageRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, direction, type, content, intent, created_at FROM (
			SELECT id, user_id, direction, type, content, intent, created_at
			FROM messages WHERE user_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var out []MessageRecord
	for rows.Next() {
		var (
			m     MessageRecord
			stamp string
		)
		if err := rows.Scan(&m.UserID, &m.Direction, &m.Type, &m.Content, &m.Intent, &stamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = parseSQLiteTime(stamp)
		out = append(out, m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteUser(row rowScanner) (*domain.User, error) {
	var (
		u     domain.User
		stamp string
	)
	if err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.Language, &stamp); err != nil {
		return nil, err
	}
	u.CreatedAt = parseSQLiteTime(stamp)
	return &u, nil
}

func scanSQLiteAccount(row rowScanner) (*domain.Account, error) {
	var (
		a               domain.Account
		typ, bal, stamp string
		isDefault       int
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &typ, &bal, &a.Currency, &isDefault, &stamp); err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	balance, err := decimal.NewFromString(bal)
	if err != nil {
		return nil, fmt.Errorf("parse balance %q: %w", bal, err)
	}
	a.Type = domain.AccountType(typ)
	a.Balance = balance
	a.IsDefault = isDefault != 0
	a.CreatedAt = parseSQLiteTime(stamp)
	return &a, nil
}

func sqliteCheckOwner(ctx context.Context, tx *sql.Tx, userID, accountID string) error {
	var owner string
	err := tx.QueryRowContext(ctx, `SELECT user_id FROM accounts WHERE id = ?`, accountID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup account owner: %w", err)
	}
	if owner != userID {
		return ErrForbidden
	}
	return nil
}

func parseSQLiteTime(s string) time.Time {
	for _, layout := range []string{sqliteTimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
