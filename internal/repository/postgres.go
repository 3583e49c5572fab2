package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Bhasyam-Meenamrutha/multi-vault-flow/internal/models"
)

// Ожидаемая схема БД:
//
//	CREATE TABLE vaults (
//	    id         TEXT PRIMARY KEY,
//	    name       TEXT NOT NULL,
//	    members    TEXT[] NOT NULL,
//	    quorum     INT NOT NULL,
//	    balance    BIGINT NOT NULL CHECK (balance >= 0),
//	    created_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE TABLE withdrawal_requests (
//	    id           TEXT PRIMARY KEY,
//	    vault_id     TEXT NOT NULL REFERENCES vaults (id),
//	    requester_id TEXT NOT NULL,
//	    amount       BIGINT NOT NULL CHECK (amount > 0),
//	    purpose      TEXT NOT NULL DEFAULT '',
//	    approvals    TEXT[] NOT NULL,
//	    rejections   TEXT[] NOT NULL,
//	    status       TEXT NOT NULL,
//	    created_at   TIMESTAMPTZ NOT NULL,
//	    expires_at   TIMESTAMPTZ NOT NULL
//	);
//	CREATE TABLE ledger_entries (
//	    seq        BIGSERIAL PRIMARY KEY,
//	    vault_id   TEXT NOT NULL REFERENCES vaults (id),
//	    kind       TEXT NOT NULL,
//	    amount     BIGINT,
//	    actor_id   TEXT,
//	    request_id TEXT,
//	    created_at TIMESTAMPTZ NOT NULL
//	);

// PostgresStore реализует Store поверх PostgreSQL.
// Критические секции строятся на транзакциях с блокировкой строк
// (SELECT ... FOR UPDATE): сначала строка заявки, затем строка хранилища -
// порядок блокировок одинаков во всех операциях, взаимная блокировка исключена.
var _ Store = (*PostgresStore)(nil)

type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore создает Store поверх готового подключения к PostgreSQL.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateVault сохраняет новое хранилище средств.
func (s *PostgresStore) CreateVault(ctx context.Context, v *models.Vault) error {
	query := `INSERT INTO vaults (id, name, members, quorum, balance, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.db.ExecContext(ctx, query, v.ID, v.Name, v.Members, v.Quorum, v.Balance, v.CreatedAt)
	if err != nil {
		log.Printf("[PostgresStore] Ошибка создания хранилища %s: %v", v.ID, err)
		return fmt.Errorf("ошибка записи хранилища: %w", err)
	}
	return nil
}

// GetVault находит хранилище по ID.
func (s *PostgresStore) GetVault(ctx context.Context, vaultID string) (*models.Vault, error) {
	query := `SELECT id, name, members, quorum, balance, created_at FROM vaults WHERE id = $1`
	var v models.Vault
	if err := s.db.GetContext(ctx, &v, query, vaultID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVaultNotFound
		}
		return nil, fmt.Errorf("ошибка выполнения запроса на получение хранилища: %w", err)
	}
	return &v, nil
}

// ListVaults возвращает все хранилища в порядке создания.
func (s *PostgresStore) ListVaults(ctx context.Context) ([]models.Vault, error) {
	query := `SELECT id, name, members, quorum, balance, created_at FROM vaults ORDER BY created_at, id`
	vaults := make([]models.Vault, 0)
	if err := s.db.SelectContext(ctx, &vaults, query); err != nil {
		return nil, fmt.Errorf("ошибка выполнения запроса на список хранилищ: %w", err)
	}
	return vaults, nil
}

// CreateRequest сохраняет новую заявку и запись журнала о ее создании
// в одной транзакции.
func (s *PostgresStore) CreateRequest(
	ctx context.Context,
	r *models.WithdrawalRequest,
	entry models.LedgerEntry,
) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		// Блокируем строку хранилища: вставка заявки и запись журнала должны
		// сериализоваться с голосами и пополнениями этого же хранилища.
		if _, err := lockVault(ctx, tx, r.VaultID); err != nil {
			return err
		}
		query := `INSERT INTO withdrawal_requests
		          (id, vault_id, requester_id, amount, purpose, approvals, rejections, status, created_at, expires_at)
		          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
		if _, err := tx.ExecContext(ctx, query,
			r.ID, r.VaultID, r.RequesterID, r.Amount, r.Purpose,
			r.Approvals, r.Rejections, r.Status, r.CreatedAt, r.ExpiresAt,
		); err != nil {
			return fmt.Errorf("ошибка записи заявки: %w", err)
		}
		return insertEntry(ctx, tx, &entry)
	})
}

// GetRequest находит заявку по ID.
func (s *PostgresStore) GetRequest(ctx context.Context, requestID string) (*models.WithdrawalRequest, error) {
	query := `SELECT id, vault_id, requester_id, amount, purpose, approvals, rejections, status, created_at, expires_at
	          FROM withdrawal_requests WHERE id = $1`
	var r models.WithdrawalRequest
	if err := s.db.GetContext(ctx, &r, query, requestID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("ошибка выполнения запроса на получение заявки: %w", err)
	}
	return &r, nil
}

// ListRequests возвращает заявки хранилища в порядке создания.
func (s *PostgresStore) ListRequests(
	ctx context.Context,
	vaultID string,
	status models.RequestStatus,
) ([]models.WithdrawalRequest, error) {
	if _, err := s.GetVault(ctx, vaultID); err != nil {
		return nil, err
	}
	query := `SELECT id, vault_id, requester_id, amount, purpose, approvals, rejections, status, created_at, expires_at
	          FROM withdrawal_requests WHERE vault_id = $1`
	args := []any{vaultID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at, id`
	requests := make([]models.WithdrawalRequest, 0)
	if err := s.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, fmt.Errorf("ошибка выполнения запроса на список заявок: %w", err)
	}
	return requests, nil
}

// ListPendingDue возвращает ID открытых заявок с истекшим сроком.
func (s *PostgresStore) ListPendingDue(ctx context.Context, now time.Time) ([]string, error) {
	query := `SELECT id FROM withdrawal_requests
	          WHERE status = $1 AND expires_at <= $2 ORDER BY created_at, id`
	ids := make([]string, 0)
	if err := s.db.SelectContext(ctx, &ids, query, models.StatusPending, now); err != nil {
		return nil, fmt.Errorf("ошибка выполнения запроса на просроченные заявки: %w", err)
	}
	return ids, nil
}

// UpdateVault выполняет fn внутри транзакции с заблокированной строкой хранилища.
func (s *PostgresStore) UpdateVault(ctx context.Context, vaultID string, fn func(tx *VaultTx) error) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		vault, err := lockVault(ctx, tx, vaultID)
		if err != nil {
			return err
		}
		vtx := &VaultTx{Vault: vault}
		if err = fn(vtx); err != nil {
			return err
		}
		if err = updateVaultRow(ctx, tx, vault); err != nil {
			return err
		}
		for i := range vtx.entries {
			if err = insertEntry(ctx, tx, &vtx.entries[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateRequest выполняет fn внутри транзакции с заблокированными строками
// заявки и ее хранилища (именно в этом порядке).
func (s *PostgresStore) UpdateRequest(ctx context.Context, requestID string, fn func(tx *RequestTx) error) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		query := `SELECT id, vault_id, requester_id, amount, purpose, approvals, rejections, status, created_at, expires_at
		          FROM withdrawal_requests WHERE id = $1 FOR UPDATE`
		var r models.WithdrawalRequest
		if err := tx.GetContext(ctx, &r, query, requestID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrRequestNotFound
			}
			return fmt.Errorf("ошибка блокировки заявки: %w", err)
		}
		vault, err := lockVault(ctx, tx, r.VaultID)
		if err != nil {
			return err
		}

		rtx := &RequestTx{Request: &r, Vault: vault}
		if err = fn(rtx); err != nil {
			return err
		}

		update := `UPDATE withdrawal_requests
		           SET approvals = $2, rejections = $3, status = $4 WHERE id = $1`
		if _, err = tx.ExecContext(ctx, update, r.ID, r.Approvals, r.Rejections, r.Status); err != nil {
			return fmt.Errorf("ошибка обновления заявки: %w", err)
		}
		if err = updateVaultRow(ctx, tx, vault); err != nil {
			return err
		}
		for i := range rtx.entries {
			if err = insertEntry(ctx, tx, &rtx.entries[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListLedger возвращает записи журнала по фильтру.
func (s *PostgresStore) ListLedger(ctx context.Context, f LedgerFilter) ([]models.LedgerEntry, error) {
	query := `SELECT seq, vault_id, kind, amount, actor_id, request_id, created_at FROM ledger_entries WHERE 1=1`
	args := make([]any, 0, 3)
	if f.VaultID != "" {
		args = append(args, f.VaultID)
		query += fmt.Sprintf(" AND vault_id = $%d", len(args))
	}
	if f.Kind != "" {
		args = append(args, f.Kind)
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	query += ` ORDER BY created_at, seq`
	entries := make([]models.LedgerEntry, 0)
	if err := s.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("ошибка выполнения запроса на журнал операций: %w", err)
	}
	return entries, nil
}

// inTx выполняет fn в транзакции с откатом при ошибке.
func (s *PostgresStore) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Printf("[PostgresStore] Ошибка отката транзакции: %v", rbErr)
		}
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// lockVault блокирует строку хранилища до конца транзакции и возвращает ее.
func lockVault(ctx context.Context, tx *sqlx.Tx, vaultID string) (*models.Vault, error) {
	query := `SELECT id, name, members, quorum, balance, created_at FROM vaults WHERE id = $1 FOR UPDATE`
	var v models.Vault
	if err := tx.GetContext(ctx, &v, query, vaultID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVaultNotFound
		}
		return nil, fmt.Errorf("ошибка блокировки хранилища: %w", err)
	}
	return &v, nil
}

// updateVaultRow сохраняет изменившийся баланс хранилища.
func updateVaultRow(ctx context.Context, tx *sqlx.Tx, v *models.Vault) error {
	if _, err := tx.ExecContext(ctx, `UPDATE vaults SET balance = $2 WHERE id = $1`, v.ID, v.Balance); err != nil {
		return fmt.Errorf("ошибка обновления баланса хранилища: %w", err)
	}
	return nil
}

// insertEntry дописывает запись в журнал и проставляет в нее номер,
// выданный BIGSERIAL.
func insertEntry(ctx context.Context, tx *sqlx.Tx, e *models.LedgerEntry) error {
	query := `INSERT INTO ledger_entries (vault_id, kind, amount, actor_id, request_id, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6) RETURNING seq`
	row := tx.QueryRowxContext(ctx, query, e.VaultID, e.Kind, e.Amount, e.ActorID, e.RequestID, e.CreatedAt)
	if err := row.Scan(&e.Seq); err != nil {
		return fmt.Errorf("ошибка записи в журнал операций: %w", err)
	}
	return nil
}
