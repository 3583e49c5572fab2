package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Bhasyam-Meenamrutha/multi-vault-flow/internal/models"
	"github.com/Bhasyam-Meenamrutha/multi-vault-flow/internal/notify"
	"github.com/Bhasyam-Meenamrutha/multi-vault-flow/internal/repository"
)

// VaultService определяет интерфейс для работы с хранилищами средств:
// создание, пополнение, чтение и выборка журнала операций.
type VaultService interface {
	CreateVault(ctx context.Context, name string, members []string, quorum int) (*models.Vault, error)
	Deposit(ctx context.Context, vaultID, actorID string, amount int64) (*models.LedgerEntry, error)
	GetVault(ctx context.Context, vaultID string) (*models.Vault, error)
	ListVaults(ctx context.Context) ([]models.Vault, error)
	ListLedger(ctx context.Context, f repository.LedgerFilter) ([]models.LedgerEntry, error)
}

// vaultService реализует логику работы с хранилищами средств.
var _ VaultService = (*vaultService)(nil) // Проверка соответствия интерфейсу

type vaultService struct {
	store    repository.Store
	notifier notify.Notifier
}

// NewVaultService создает новый экземпляр сервиса хранилищ.
func NewVaultService(store repository.Store, notifier notify.Notifier) VaultService {
	return &vaultService{store: store, notifier: notifier}
}

// CreateVault проверяет конфигурацию и создает новое хранилище с нулевым
// балансом. Запись в журнал не производится: создание не является денежным
// событием.
func (s *vaultService) CreateVault(
	ctx context.Context,
	name string,
	members []string,
	quorum int,
) (*models.Vault, error) {
	if err := validateVaultConfig(name, members, quorum); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	vault := &models.Vault{
		ID:        uuid.NewString(),
		Name:      name,
		Members:   append([]string(nil), members...),
		Quorum:    quorum,
		Balance:   0,
		CreatedAt: now,
	}

	if err := s.store.CreateVault(ctx, vault); err != nil {
		log.Printf("[VaultService] Ошибка сохранения хранилища «%s»: %v", name, err)
		return nil, mapStoreErr(err)
	}

	log.Printf("[VaultService] Создано хранилище %s («%s», участников: %d, кворум: %d)",
		vault.ID, name, len(members), quorum)
	s.notifier.Publish(models.Event{
		Type:      models.EventVaultCreated,
		VaultID:   vault.ID,
		CreatedAt: now,
	})
	return vault.Clone(), nil
}

// Deposit атомарно увеличивает баланс хранилища и дописывает в журнал запись
// о пополнении. Пополнения коммутируют и никогда не конфликтуют между собой.
func (s *vaultService) Deposit(
	ctx context.Context,
	vaultID, actorID string,
	amount int64,
) (*models.LedgerEntry, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: сумма пополнения %d", ErrInvalidAmount, amount)
	}

	now := time.Now().UTC()
	var committed *repository.VaultTx
	err := s.store.UpdateVault(ctx, vaultID, func(tx *repository.VaultTx) error {
		tx.Vault.Balance += amount
		tx.Append(models.NewDepositEntry(vaultID, actorID, amount, now))
		committed = tx
		return nil
	})
	if err != nil {
		log.Printf("[VaultService] Ошибка пополнения хранилища %s на %d: %v", vaultID, amount, err)
		return nil, mapStoreErr(err)
	}

	entry := committed.Entries()[0]
	log.Printf("[VaultService] Хранилище %s пополнено участником %s на %d (запись журнала %d)",
		vaultID, actorID, amount, entry.Seq)
	s.notifier.Publish(models.Event{
		Type:      models.EventDeposited,
		VaultID:   vaultID,
		ActorID:   actorID,
		Amount:    amount,
		CreatedAt: now,
	})
	return &entry, nil
}

// GetVault возвращает хранилище по ID.
func (s *vaultService) GetVault(ctx context.Context, vaultID string) (*models.Vault, error) {
	vault, err := s.store.GetVault(ctx, vaultID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return vault, nil
}

// ListVaults возвращает все хранилища в порядке создания.
func (s *vaultService) ListVaults(ctx context.Context) ([]models.Vault, error) {
	vaults, err := s.store.ListVaults(ctx)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return vaults, nil
}

// ListLedger возвращает записи журнала по фильтру в порядке меток времени.
func (s *vaultService) ListLedger(
	ctx context.Context,
	f repository.LedgerFilter,
) ([]models.LedgerEntry, error) {
	entries, err := s.store.ListLedger(ctx, f)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return entries, nil
}

// validateVaultConfig проверяет параметры нового хранилища.
func validateVaultConfig(name string, members []string, quorum int) error {
	if name == "" {
		return fmt.Errorf("%w: пустое имя", ErrInvalidConfiguration)
	}
	if len(members) < 1 {
		return fmt.Errorf("%w: нужен хотя бы один участник", ErrInvalidConfiguration)
	}
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		if m == "" {
			return fmt.Errorf("%w: пустой идентификатор участника", ErrInvalidConfiguration)
		}
		if _, ok := seen[m]; ok {
			return fmt.Errorf("%w: участник %s указан дважды", ErrInvalidConfiguration, m)
		}
		seen[m] = struct{}{}
	}
	if quorum < 1 || quorum > len(members) {
		return fmt.Errorf("%w: кворум %d при %d участниках", ErrInvalidConfiguration, quorum, len(members))
	}
	return nil
}

// mapStoreErr переводит ошибки репозитория в ошибки сервисного слоя.
// Неизвестные ошибки хранилища данных фатальны для операции и
// классифицируются как его недоступность.
func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrVaultNotFound):
		return ErrVaultNotFound
	case errors.Is(err, repository.ErrRequestNotFound):
		return ErrRequestNotFound
	case isServiceErr(err):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
}

// isServiceErr сообщает, принадлежит ли ошибка таксономии сервисного слоя
// (такие ошибки возвращаются из критических секций как есть).
func isServiceErr(err error) bool {
	for _, target := range []error{
		ErrInvalidConfiguration, ErrInvalidAmount, ErrVaultNotFound, ErrRequestNotFound,
		ErrNotMember, ErrDuplicateVote, ErrInsufficientFunds, ErrAlreadyTerminal,
		ErrInvalidDecision, ErrStorageUnavailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
