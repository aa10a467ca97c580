package repo

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"finbot/internal/domain"
)

//go:embed schema_postgres.sql
var postgresSchema string

const pgUniqueViolation = "23505"

// Postgres is a Store backed by a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres connects, pings and ensures the schema exists.
func NewPostgres(ctx context.Context, databaseURL string, logger *slog.Logger) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Postgres{pool: pool, logger: logger.With("component", "store_postgres")}, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) CreateOrGetUser(ctx context.Context, prof UserProfile) (*domain.User, error) {
	lang := prof.Language
	if lang == "" {
		lang = "en"
	}
	var u domain.User
	err := p.pool.QueryRow(ctx, `
		INSERT INTO users (id, telegram_id, username, first_name, language)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (telegram_id) DO UPDATE SET
			username = EXCLUDED.username,
			first_name = EXCLUDED.first_name
		RETURNING id, telegram_id, username, first_name, language, created_at`,
		uuid.NewString(), prof.TelegramID, prof.Username, prof.FirstName, lang,
	).Scan(&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.Language, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return &u, nil
}

func (p *Postgres) GetUserByExternalID(ctx context.Context, telegramID int64) (*domain.User, error) {
	var u domain.User
	err := p.pool.QueryRow(ctx, `
		SELECT id, telegram_id, username, first_name, language, created_at
		FROM users WHERE telegram_id = $1`, telegramID,
	).Scan(&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.Language, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (p *Postgres) CreateAccount(ctx context.Context, in NewAccount) (*domain.Account, error) {
	if err := validateNewAccount(in); err != nil {
		return nil, err
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// serialise first-account detection per user
	if _, err := tx.Exec(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, in.UserID); err != nil {
		return nil, fmt.Errorf("lock user: %w", err)
	}
	var count int
	if err := tx.QueryRow(ctx, `SELECT COUNT(1) FROM accounts WHERE user_id = $1`, in.UserID).Scan(&count); err != nil {
		return nil, fmt.Errorf("count accounts: %w", err)
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO accounts (id, user_id, name, type, balance, currency, is_default)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7)
		RETURNING id, user_id, name, type, balance::text, currency, is_default, created_at`,
		uuid.NewString(), in.UserID, strings.TrimSpace(in.Name), string(in.Type), in.Balance.String(), in.Currency, count == 0)
	acc, err := scanPGAccount(row)
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return acc, nil
}

func (p *Postgres) GetUserAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, user_id, name, type, balance::text, currency, is_default, created_at
		FROM accounts WHERE user_id = $1 ORDER BY created_at ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		acc, err := scanPGAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, *acc)
	}
	return out, rows.Err()
}

func (p *Postgres) SetDefaultAccount(ctx context.Context, userID, accountID string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := pgCheckOwner(ctx, tx, userID, accountID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE accounts SET is_default = (id = $1) WHERE user_id = $2`, accountID, userID); err != nil {
		return fmt.Errorf("set default: %w", err)
	}
	return tx.Commit(ctx)
}

func (p *Postgres) CreateTransaction(ctx context.Context, in NewTransaction) (*domain.Transaction, *domain.Account, error) {
	if err := validateNewTransaction(in); err != nil {
		return nil, nil, err
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := pgCheckOwner(ctx, tx, in.UserID, in.AccountID); err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
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
	}
	var draftID *string
	if in.DraftID != "" {
		draftID = &in.DraftID
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO transactions (id, user_id, account_id, type, amount, description, category, currency, tx_date, draft_id)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10)
		RETURNING created_at`,
		t.ID, t.UserID, t.AccountID, string(t.Type), t.Amount.String(), t.Description, t.Category, t.Currency, t.Date, draftID,
	).Scan(&t.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, nil, ErrDuplicate
		}
		return nil, nil, fmt.Errorf("insert transaction: %w", err)
	}

	row := tx.QueryRow(ctx, `
		UPDATE accounts SET balance = balance + $1::numeric WHERE id = $2
		RETURNING id, user_id, name, type, balance::text, currency, is_default, created_at`,
		in.Type.Signed(in.Amount).String(), in.AccountID)
	acc, err := scanPGAccount(row)
	if err != nil {
		return nil, nil, fmt.Errorf("update balance: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit: %w", err)
	}
	return t, acc, nil
}

func (p *Postgres) RecentTransactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	return p.SearchTransactions(ctx, TransactionFilter{UserID: userID, Limit: limit})
}

func (p *Postgres) SearchTransactions(ctx context.Context, f TransactionFilter) ([]domain.Transaction, error) {
	var (
		where = []string{"user_id = $1"}
		args  = []any{f.UserID}
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.AccountID != "" {
		add("account_id = $%d", f.AccountID)
	}
	if f.Type != "" {
		add("type = $%d", string(f.Type))
	}
	if f.Category != "" {
		add("lower(category) = lower($%d)", f.Category)
	}
	if f.MinAmount != nil {
		add("amount >= $%d::numeric", f.MinAmount.String())
	}
	if f.MaxAmount != nil {
		add("amount <= $%d::numeric", f.MaxAmount.String())
	}
	if f.FromDate != "" {
		add("tx_date >= $%d", f.FromDate)
	}
	if f.ToDate != "" {
		add("tx_date <= $%d", f.ToDate)
	}
	query := `SELECT id, user_id, account_id, type, amount::text, description, category, currency, tx_date, COALESCE(draft_id, ''), created_at
		FROM transactions WHERE ` + strings.Join(where, " AND ") + ` ORDER BY tx_date DESC, created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var (
			t        domain.Transaction
			typ, amt string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.AccountID, &typ, &amt, &t.Description, &t.Category, &t.Currency, &t.Date, &t.DraftID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Type = domain.TxType(typ)
		if t.Amount, err = decimal.NewFromString(amt); err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", amt, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) InsertMessage(ctx context.Context, m MessageRecord) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO messages (user_id, direction, type, content, intent)
		VALUES ($1, $2, $3, $4, $5)`,
		m.UserID, m.Direction, m.Type, m.Content, m.Intent)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (p *Postgres) RecentMessages(ctx context.Context, userID string, limit int) ([]MessageRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := p.pool.Query(ctx, `
		SELECT user_id, direction, type, content, intent, created_at FROM (
			SELECT id, user_id, direction, type, content, intent, created_at
			FROM messages WHERE user_id = $1 ORDER BY id DESC LIMIT $2
		) recent ORDER BY id ASC`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var out []MessageRecord
	for rows.Next() {
		var m MessageRecord
		if err := rows.Scan(&m.UserID, &m.Direction, &m.Type, &m.Content, &m.Intent, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanPGAccount(row pgx.Row) (*domain.Account, error) {
	var (
		a        domain.Account
		typ, bal string
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &typ, &bal, &a.Currency, &a.IsDefault, &a.CreatedAt); err != nil {
		return nil, err
	}
	balance, err := decimal.NewFromString(bal)
	if err != nil {
		return nil, fmt.Errorf("parse balance %q: %w", bal, err)
	}
	a.Type = domain.AccountType(typ)
	a.Balance = balance
	return &a, nil
}

func pgCheckOwner(ctx context.Context, tx pgx.Tx, userID, accountID string) error {
	var owner string
	err := tx.QueryRow(ctx, `SELECT user_id FROM accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
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
