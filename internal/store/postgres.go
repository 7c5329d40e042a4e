package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/atomicbank/internal/domain"
)

//go:embed schema.sql
var schema string

// PostgresStore persists the ledger in PostgreSQL. Amounts travel as text and are
// cast to NUMERIC in SQL so no precision is lost.
type PostgresStore struct {
	Db *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresStore{Db: pool}, nil
}

func (s *PostgresStore) Close() {
	s.Db.Close()
}

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.Db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) EnsureAccount(ctx context.Context, id int64, opening decimal.Decimal) error {
	tx, err := s.Db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, "INSERT INTO accounts (id, balance) VALUES ($1, 0) ON CONFLICT (id) DO NOTHING", id)
	if err != nil {
		return fmt.Errorf("account insert failed: %w", err)
	}
	if tag.RowsAffected() == 1 && opening.IsPositive() {
		if _, err := book(ctx, tx, domain.DepositSourceID, id, opening); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// SeedAccounts bulk-creates the given accounts that do not exist yet, each with an
// opening deposit. It returns how many accounts were created.
func (s *PostgresStore) SeedAccounts(ctx context.Context, ids []int64, opening decimal.Decimal) (int64, error) {
	rows, err := s.Db.Query(ctx, "SELECT id FROM accounts WHERE id = ANY($1)", ids)
	if err != nil {
		return 0, fmt.Errorf("existing accounts query failed: %w", err)
	}
	existing, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return 0, fmt.Errorf("existing accounts scan failed: %w", err)
	}
	seen := make(map[int64]bool, len(existing))
	for _, id := range existing {
		seen[id] = true
	}

	now := time.Now().UTC()
	var accounts, deposits [][]any
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		accounts = append(accounts, []any{id, numeric(opening), now})
		if opening.IsPositive() {
			deposits = append(deposits, []any{domain.DepositSourceID, id, numeric(opening), now})
		}
	}
	if len(accounts) == 0 {
		return 0, nil
	}

	tx, err := s.Db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	count, err := tx.CopyFrom(ctx,
		pgx.Identifier{"accounts"},
		[]string{"id", "balance", "created_at"},
		pgx.CopyFromRows(accounts),
	)
	if err != nil {
		return 0, fmt.Errorf("bulk account insert failed: %w", err)
	}
	if len(deposits) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"transactions"},
			[]string{"source_account_id", "target_account_id", "amount", "created_at"},
			pgx.CopyFromRows(deposits),
		)
		if err != nil {
			return 0, fmt.Errorf("bulk deposit insert failed: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("tx commit failed: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) Balance(ctx context.Context, id int64) (decimal.Decimal, error) {
	var raw string
	err := s.Db.QueryRow(ctx, "SELECT balance::text FROM accounts WHERE id = $1", id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrAccountNotFound
		}
		return decimal.Zero, fmt.Errorf("balance query failed: %w", err)
	}
	return decimal.NewFromString(raw)
}

func (s *PostgresStore) Transactions(ctx context.Context, id int64) ([]domain.Transaction, error) {
	var exists bool
	if err := s.Db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)", id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("account lookup failed: %w", err)
	}
	if !exists {
		return nil, ErrAccountNotFound
	}

	rows, err := s.Db.Query(ctx,
		`SELECT id, source_account_id, target_account_id, amount::text, created_at
		   FROM transactions
		  WHERE source_account_id = $1 OR target_account_id = $1
		  ORDER BY id DESC`,
		id)
	if err != nil {
		return nil, fmt.Errorf("transactions query failed: %w", err)
	}
	defer rows.Close()

	out := []domain.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Transfer moves funds inside one repeatable-read transaction. Both accounts are
// locked in id order so concurrent opposite transfers cannot deadlock.
func (s *PostgresStore) Transfer(ctx context.Context, req domain.TransferRequest, idem Idempotency) (Receipt, error) {
	return s.inTx(ctx, idem, func(tx pgx.Tx) (domain.Transaction, error) {
		first, second := req.FromAccountID, req.ToAccountID
		if first > second {
			first, second = second, first
		}

		balances := make(map[int64]decimal.Decimal, 2)
		for _, id := range []int64{first, second} {
			b, err := lockAccount(ctx, tx, id)
			if err != nil {
				return domain.Transaction{}, err
			}
			balances[id] = b
		}

		if balances[req.FromAccountID].LessThan(req.Amount) {
			return domain.Transaction{}, ErrInsufficientFunds
		}
		return book(ctx, tx, req.FromAccountID, req.ToAccountID, req.Amount)
	})
}

func (s *PostgresStore) Deposit(ctx context.Context, req domain.DepositRequest, idem Idempotency) (Receipt, error) {
	return s.inTx(ctx, idem, func(tx pgx.Tx) (domain.Transaction, error) {
		if _, err := lockAccount(ctx, tx, req.ToAccountID); err != nil {
			return domain.Transaction{}, err
		}
		return book(ctx, tx, domain.DepositSourceID, req.ToAccountID, req.Amount)
	})
}

// inTx wraps fn with idempotency reservation and replay.
func (s *PostgresStore) inTx(ctx context.Context, idem Idempotency, fn func(pgx.Tx) (domain.Transaction, error)) (Receipt, error) {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return Receipt{}, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if idem.Key != "" {
		var storedHash string
		var storedTx *int64
		err = tx.QueryRow(ctx,
			"SELECT request_hash, transaction_id FROM idempotency_keys WHERE key = $1",
			idem.Key,
		).Scan(&storedHash, &storedTx)

		switch {
		case err == nil:
			if storedHash != idem.RequestHash {
				return Receipt{}, ErrIdempotencyMismatch
			}
			if storedTx == nil {
				return Receipt{}, ErrIdempotencyConflict
			}
			t, err := scanTransaction(tx.QueryRow(ctx,
				"SELECT id, source_account_id, target_account_id, amount::text, created_at FROM transactions WHERE id = $1",
				*storedTx))
			if err != nil {
				return Receipt{}, err
			}
			return Receipt{Transaction: t, Replayed: true}, nil
		case !errors.Is(err, pgx.ErrNoRows):
			return Receipt{}, fmt.Errorf("idempotency query failed: %w", err)
		}

		_, err = tx.Exec(ctx,
			"INSERT INTO idempotency_keys (key, request_hash, status) VALUES ($1, $2, 'in_progress')",
			idem.Key, idem.RequestHash,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return Receipt{}, ErrIdempotencyConflict
			}
			return Receipt{}, fmt.Errorf("key reservation failed: %w", err)
		}
	}

	t, err := fn(tx)
	if err != nil {
		return Receipt{}, err
	}

	if idem.Key != "" {
		_, err = tx.Exec(ctx,
			"UPDATE idempotency_keys SET status = 'completed', transaction_id = $1 WHERE key = $2",
			t.ID, idem.Key,
		)
		if err != nil {
			return Receipt{}, fmt.Errorf("idempotency update failed: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Receipt{}, fmt.Errorf("tx commit failed: %w", err)
	}
	return Receipt{Transaction: t}, nil
}

func lockAccount(ctx context.Context, tx pgx.Tx, id int64) (decimal.Decimal, error) {
	var raw string
	err := tx.QueryRow(ctx, "SELECT balance::text FROM accounts WHERE id = $1 FOR UPDATE", id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrAccountNotFound
		}
		return decimal.Zero, fmt.Errorf("lock acquisition failed: %w", err)
	}
	return decimal.NewFromString(raw)
}

// book inserts the transaction row and applies it to balances.
func book(ctx context.Context, tx pgx.Tx, source, target int64, amount decimal.Decimal) (domain.Transaction, error) {
	t, err := scanTransaction(tx.QueryRow(ctx,
		`INSERT INTO transactions (source_account_id, target_account_id, amount)
		 VALUES ($1, $2, $3::numeric)
		 RETURNING id, source_account_id, target_account_id, amount::text, created_at`,
		source, target, amount.String()))
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("transaction insert failed: %w", err)
	}

	if source != domain.DepositSourceID {
		if _, err := tx.Exec(ctx, "UPDATE accounts SET balance = balance - $1::numeric WHERE id = $2", amount.String(), source); err != nil {
			return domain.Transaction{}, fmt.Errorf("debit failed: %w", err)
		}
	}
	if _, err := tx.Exec(ctx, "UPDATE accounts SET balance = balance + $1::numeric WHERE id = $2", amount.String(), target); err != nil {
		return domain.Transaction{}, fmt.Errorf("credit failed: %w", err)
	}
	return t, nil
}

func scanTransaction(row pgx.Row) (domain.Transaction, error) {
	var (
		t      domain.Transaction
		amount string
	)
	if err := row.Scan(&t.ID, &t.SourceAccountID, &t.TargetAccountID, &amount, &t.Timestamp); err != nil {
		return domain.Transaction{}, fmt.Errorf("transaction scan failed: %w", err)
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("transaction amount: %w", err)
	}
	t.Amount = d
	t.Timestamp = t.Timestamp.UTC()
	return t, nil
}

// numeric converts for binary COPY, which cannot take the text form.
func numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}
