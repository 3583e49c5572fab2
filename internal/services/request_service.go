package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Bhasyam-Meenamrutha/multi-vault-flow/internal/models"
	"github.com/Bhasyam-Meenamrutha/multi-vault-flow/internal/notify"
	"github.com/Bhasyam-Meenamrutha/multi-vault-flow/internal/repository"
)

// DefaultRequestTTL - срок действия заявки с момента создания.
const DefaultRequestTTL = 24 * time.Hour

// VoteResult - результат голосования по заявке.
type VoteResult struct {
	Request *models.WithdrawalRequest
	// Executed - этим голосом собран кворум и средства списаны.
	Executed bool
	// Deferred - кворум собран, но списание отложено из-за нехватки средств:
	// заявка остается открытой до следующего подходящего голоса либо истечет.
	Deferred bool
}

// RequestService определяет интерфейс движка заявок на вывод средств:
// создание, голосование с проверкой кворума и чтение.
type RequestService interface {
	CreateRequest(ctx context.Context, vaultID, requesterID string, amount int64, purpose string) (*models.WithdrawalRequest, error)
	Vote(ctx context.Context, requestID, actorID string, decision models.VoteDecision) (*VoteResult, error)
	GetRequest(ctx context.Context, requestID string) (*models.WithdrawalRequest, error)
	ListRequests(ctx context.Context, vaultID string, status models.RequestStatus) ([]models.WithdrawalRequest, error)
}

// requestService реализует машину состояний заявки:
// pending -> {approved, rejected, expired}, терминальные статусы неизменны.
var _ RequestService = (*requestService)(nil) // Проверка соответствия интерфейсу

type requestService struct {
	store    repository.Store
	notifier notify.Notifier
	ttl      time.Duration
}

// NewRequestService создает новый экземпляр движка заявок.
// При ttl == 0 используется DefaultRequestTTL.
func NewRequestService(store repository.Store, notifier notify.Notifier, ttl time.Duration) RequestService {
	if ttl == 0 {
		ttl = DefaultRequestTTL
	}
	return &requestService{store: store, notifier: notifier, ttl: ttl}
}

// CreateRequest создает заявку на вывод средств. Требователь должен быть
// участником хранилища и автоматически становится первым одобрившим.
// Сумма не сверяется с текущим балансом: баланс изменчив, проверка
// откладывается до исполнения.
func (s *requestService) CreateRequest(
	ctx context.Context,
	vaultID, requesterID string,
	amount int64,
	purpose string,
) (*models.WithdrawalRequest, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: сумма вывода %d", ErrInvalidAmount, amount)
	}

	vault, err := s.store.GetVault(ctx, vaultID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if !vault.IsMember(requesterID) {
		return nil, fmt.Errorf("%w: %s не входит в хранилище %s", ErrNotMember, requesterID, vaultID)
	}

	now := time.Now().UTC()
	request := &models.WithdrawalRequest{
		ID:          uuid.NewString(),
		VaultID:     vaultID,
		RequesterID: requesterID,
		Amount:      amount,
		Purpose:     purpose,
		Approvals:   []string{requesterID}, // требователь одобряет автоматически
		Rejections:  []string{},
		Status:      models.StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}
	entry := models.NewWithdrawalRequestedEntry(vaultID, requesterID, request.ID, amount, now)

	if err = s.store.CreateRequest(ctx, request, entry); err != nil {
		log.Printf("[RequestService] Ошибка сохранения заявки для хранилища %s: %v", vaultID, err)
		return nil, mapStoreErr(err)
	}

	log.Printf("[RequestService] Создана заявка %s: %s запрашивает %d из хранилища %s",
		request.ID, requesterID, amount, vaultID)
	s.notifier.Publish(models.Event{
		Type:      models.EventRequestCreated,
		VaultID:   vaultID,
		RequestID: request.ID,
		ActorID:   requesterID,
		Amount:    amount,
		CreatedAt: now,
	})
	return request.Clone(), nil
}

// Vote регистрирует голос участника по заявке. Последовательность
// "проверка кворума - списание - смена статуса - записи журнала" выполняется
// одним атомарным шагом в критической секции хранилища: два голоса,
// одновременно добирающих кворум, не могут исполнить заявку дважды.
func (s *requestService) Vote(
	ctx context.Context,
	requestID, actorID string,
	decision models.VoteDecision,
) (*VoteResult, error) {
	if !decision.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
	}

	now := time.Now().UTC()
	result := &VoteResult{}
	var events []models.Event

	err := s.store.UpdateRequest(ctx, requestID, func(tx *repository.RequestTx) error {
		req, vault := tx.Request, tx.Vault

		if req.Status.IsTerminal() || req.ExpiredAt(now) {
			// Просроченная, но еще не обработанная фоновым процессом заявка
			// тоже считается завершенной: голос не должен ее оживить.
			return fmt.Errorf("%w: статус %s", ErrAlreadyTerminal, req.EffectiveStatus(now))
		}
		if !vault.IsMember(actorID) {
			return fmt.Errorf("%w: %s не входит в хранилище %s", ErrNotMember, actorID, vault.ID)
		}
		if req.HasVoted(actorID) {
			return fmt.Errorf("%w: %s по заявке %s", ErrDuplicateVote, actorID, requestID)
		}

		switch decision {
		case models.DecisionReject:
			// Отклонение фиксируется, но заявку не завершает: в минимальной
			// модели терминальны только сбор кворума и истечение срока.
			req.Rejections = append(req.Rejections, actorID)
			tx.Append(models.NewRejectionEntry(vault.ID, actorID, requestID, now))
		case models.DecisionApprove:
			req.Approvals = append(req.Approvals, actorID)
			tx.Append(models.NewApprovalEntry(vault.ID, actorID, requestID, now))

			if len(req.Approvals) >= vault.Quorum {
				if vault.Balance < req.Amount {
					// Кворум собран, но средств не хватает: заявка остается
					// открытой, исполнение отложено до следующего подходящего
					// голоса. Это штатная ситуация, а не ошибка операции.
					result.Deferred = true
					log.Printf("[RequestService] Заявка %s: кворум собран, исполнение отложено "+
						"(запрошено %d, доступно %d)", requestID, req.Amount, vault.Balance)
					break
				}
				// Единственный путь списания средств. Выполняется в той же
				// критической секции, что и проверка кворума: исполнение
				// строго однократно.
				vault.Balance -= req.Amount
				req.Status = models.StatusApproved
				tx.Append(models.NewWithdrawalExecutedEntry(vault.ID, requestID, req.Amount, now))
				result.Executed = true
			}
		}

		result.Request = req.Clone()
		events = s.voteEvents(req, actorID, decision, result, now)
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	log.Printf("[RequestService] Голос %s (%s) по заявке %s засчитан (исполнено: %t, отложено: %t)",
		actorID, decision, requestID, result.Executed, result.Deferred)
	for _, e := range events {
		s.notifier.Publish(e)
	}
	return result, nil
}

// GetRequest возвращает заявку по ID. Статус отражает проверку срока на
// чтении: открытая заявка с истекшим сроком видна как expired еще до
// обработки фоновым процессом.
func (s *requestService) GetRequest(ctx context.Context, requestID string) (*models.WithdrawalRequest, error) {
	request, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	request.Status = request.EffectiveStatus(time.Now().UTC())
	return request, nil
}

// ListRequests возвращает заявки хранилища, опционально по статусу.
// Статусы отражают проверку срока на чтении.
func (s *requestService) ListRequests(
	ctx context.Context,
	vaultID string,
	status models.RequestStatus,
) ([]models.WithdrawalRequest, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: неизвестный статус %q", ErrInvalidDecision, status)
	}
	// Фильтруем после пересчета статусов: заявка с истекшим сроком должна
	// попадать в выборку expired, а не pending.
	requests, err := s.store.ListRequests(ctx, vaultID, "")
	if err != nil {
		return nil, mapStoreErr(err)
	}
	now := time.Now().UTC()
	out := make([]models.WithdrawalRequest, 0, len(requests))
	for i := range requests {
		requests[i].Status = requests[i].EffectiveStatus(now)
		if status != "" && requests[i].Status != status {
			continue
		}
		out = append(out, requests[i])
	}
	return out, nil
}

// voteEvents собирает события для публикации после фиксации голоса.
func (s *requestService) voteEvents(
	req *models.WithdrawalRequest,
	actorID string,
	decision models.VoteDecision,
	result *VoteResult,
	now time.Time,
) []models.Event {
	events := []models.Event{{
		Type:      models.EventVoted,
		VaultID:   req.VaultID,
		RequestID: req.ID,
		ActorID:   actorID,
		Decision:  decision,
		Status:    req.Status,
		CreatedAt: now,
	}}
	if result.Executed {
		events = append(events, models.Event{
			Type:      models.EventRequestApproved,
			VaultID:   req.VaultID,
			RequestID: req.ID,
			Amount:    req.Amount,
			Status:    models.StatusApproved,
			CreatedAt: now,
		})
	}
	return events
}
