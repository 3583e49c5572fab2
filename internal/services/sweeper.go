package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Bhasyam-Meenamrutha/multi-vault-flow/internal/models"
	"github.com/Bhasyam-Meenamrutha/multi-vault-flow/internal/notify"
	"github.com/Bhasyam-Meenamrutha/multi-vault-flow/internal/repository"
)

// DefaultSweepInterval - период фонового обхода просроченных заявок.
const DefaultSweepInterval = time.Second

// Sweeper - фоновый процесс, переводящий просроченные открытые заявки
// в статус expired. Единственный компонент, меняющий заявку без действия
// участника. Остановка процесса лишь прекращает автоматическое истечение:
// открытые заявки остаются открытыми до следующего голоса или запуска.
type Sweeper struct {
	store    repository.Store
	notifier notify.Notifier
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSweeper создает фоновый процесс истечения заявок.
// При interval <= 0 используется DefaultSweepInterval.
func NewSweeper(store repository.Store, notifier notify.Notifier, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{store: store, notifier: notifier, interval: interval}
}

// Start запускает периодический обход в отдельной горутине.
// Повторный запуск без Stop не предусмотрен.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		log.Printf("[Sweeper] Запущен, период обхода %s", s.interval)
		for {
			select {
			case <-ctx.Done():
				log.Println("[Sweeper] Остановлен")
				return
			case <-ticker.C:
				if _, err := s.ExpireDue(ctx, time.Now().UTC()); err != nil {
					log.Printf("[Sweeper] Ошибка обхода: %v", err)
				}
			}
		}
	}()
}

// Stop останавливает обход и дожидается завершения горутины.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// ExpireDue переводит все открытые заявки с истекшим к моменту now сроком
// в статус expired и дописывает в журнал запись об истечении (запись вида
// rejection без актора). Возвращает число завершенных заявок.
// Идемпотентен: заявка, уже ставшая терминальной между выборкой и захватом
// критической секции, пропускается без ошибки.
func (s *Sweeper) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.store.ListPendingDue(ctx, now)
	if err != nil {
		return 0, mapStoreErr(err)
	}

	expired := 0
	for _, requestID := range due {
		var event models.Event
		err = s.store.UpdateRequest(ctx, requestID, func(tx *repository.RequestTx) error {
			req := tx.Request
			if !req.ExpiredAt(now) {
				// Статус успел измениться (голос собрал кворум или заявку
				// уже завершил предыдущий обход) - пропускаем без изменений.
				return errSweepSkip
			}
			req.Status = models.StatusExpired
			tx.Append(models.NewExpiryEntry(req.VaultID, req.ID, now))
			event = models.Event{
				Type:      models.EventRequestExpired,
				VaultID:   req.VaultID,
				RequestID: req.ID,
				Status:    models.StatusExpired,
				CreatedAt: now,
			}
			return nil
		})
		switch {
		case err == nil:
			expired++
			log.Printf("[Sweeper] Заявка %s завершена по истечении срока", requestID)
			s.notifier.Publish(event)
		case errors.Is(err, errSweepSkip), errors.Is(err, repository.ErrRequestNotFound):
			// Не ошибка обхода: заявка уже обработана.
		default:
			return expired, fmt.Errorf("ошибка завершения заявки %s: %w", requestID, mapStoreErr(err))
		}
	}
	return expired, nil
}

// errSweepSkip - внутренний маркер: заявка больше не подлежит истечению.
var errSweepSkip = errors.New("заявка уже обработана")
