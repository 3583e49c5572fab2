package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Bhasyam-Meenamrutha/multi-vault-flow/internal/models"
)

// Store определяет хранилище состояния сервиса: хранилища средств, заявки
// на вывод и журнал операций. Реализации обязаны гарантировать, что функция,
// переданная в UpdateVault/UpdateRequest, выполняется в эксклюзивной
// критической секции соответствующего хранилища средств: запись в журнал и
// изменение сущности фиксируются как единое целое либо не фиксируются вовсе.
type Store interface {
	// CreateVault сохраняет новое хранилище. Запись в журнал не производится:
	// создание хранилища не является денежным событием.
	CreateVault(ctx context.Context, v *models.Vault) error
	// GetVault возвращает хранилище по ID или ErrVaultNotFound.
	GetVault(ctx context.Context, vaultID string) (*models.Vault, error)
	// ListVaults возвращает все хранилища в порядке создания.
	ListVaults(ctx context.Context) ([]models.Vault, error)

	// CreateRequest сохраняет новую заявку вместе с записью журнала о ее
	// создании (единая атомарная операция в критической секции хранилища).
	CreateRequest(ctx context.Context, r *models.WithdrawalRequest, entry models.LedgerEntry) error
	// GetRequest возвращает заявку по ID или ErrRequestNotFound.
	GetRequest(ctx context.Context, requestID string) (*models.WithdrawalRequest, error)
	// ListRequests возвращает заявки хранилища, опционально отфильтрованные
	// по статусу (пустой статус - без фильтра), в порядке создания.
	ListRequests(ctx context.Context, vaultID string, status models.RequestStatus) ([]models.WithdrawalRequest, error)
	// ListPendingDue возвращает ID открытых заявок, срок которых истек к моменту now.
	ListPendingDue(ctx context.Context, now time.Time) ([]string, error)

	// UpdateVault выполняет fn в эксклюзивной критической секции хранилища.
	// Изменения tx.Vault и накопленные записи журнала фиксируются только
	// если fn вернула nil; при ошибке состояние не меняется.
	UpdateVault(ctx context.Context, vaultID string, fn func(tx *VaultTx) error) error
	// UpdateRequest выполняет fn в эксклюзивной критической секции хранилища,
	// которому принадлежит заявка. fn получает изменяемые копии заявки и
	// хранилища: последовательность "проверка кворума - списание - смена
	// статуса - записи журнала" видна извне как один атомарный шаг.
	UpdateRequest(ctx context.Context, requestID string, fn func(tx *RequestTx) error) error

	// ListLedger возвращает записи журнала по фильтру, упорядоченные по
	// метке времени (при равенстве - по монотонному номеру записи).
	ListLedger(ctx context.Context, f LedgerFilter) ([]models.LedgerEntry, error)
}

// VaultTx - изменяемое состояние хранилища внутри критической секции.
type VaultTx struct {
	Vault   *models.Vault
	entries []models.LedgerEntry
}

// Append добавляет запись журнала, которая будет зафиксирована вместе
// с изменениями хранилища.
func (tx *VaultTx) Append(e models.LedgerEntry) {
	tx.entries = append(tx.entries, e)
}

// Entries возвращает накопленные записи. После успешной фиксации в них
// проставлены выданные журналом монотонные номера.
func (tx *VaultTx) Entries() []models.LedgerEntry {
	return tx.entries
}

// RequestTx - изменяемое состояние заявки и ее хранилища внутри
// критической секции.
type RequestTx struct {
	Request *models.WithdrawalRequest
	Vault   *models.Vault
	entries []models.LedgerEntry
}

// Append добавляет запись журнала, которая будет зафиксирована вместе
// с изменениями заявки и хранилища.
func (tx *RequestTx) Append(e models.LedgerEntry) {
	tx.entries = append(tx.entries, e)
}

// Entries возвращает накопленные записи. После успешной фиксации в них
// проставлены выданные журналом монотонные номера.
func (tx *RequestTx) Entries() []models.LedgerEntry {
	return tx.entries
}

// LedgerFilter - параметры выборки записей журнала.
// Нулевые значения означают отсутствие фильтра по соответствующему полю.
type LedgerFilter struct {
	VaultID string
	Kind    models.EntryKind
	Since   time.Time
}

// Ошибки репозитория.
var (
	ErrVaultNotFound   = errors.New("хранилище не найдено")
	ErrRequestNotFound = errors.New("заявка не найдена")
	ErrVaultExists     = errors.New("хранилище с таким ID уже существует")
	ErrRequestExists   = errors.New("заявка с таким ID уже существует")
	ErrStoreClosed     = errors.New("хранилище данных недоступно")
)
