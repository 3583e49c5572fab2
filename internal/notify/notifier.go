// Package notify отвечает за доставку событий жизненного цикла внешним
// потребителям (UI, алерты): подписчикам внутри процесса и, опционально,
// в обменник AMQP.
package notify

import (
	"log"
	"sync"

	"github.com/Bhasyam-Meenamrutha/multi-vault-flow/internal/models"
)

// Notifier определяет интерфейс публикации событий жизненного цикла.
// Publish вызывается после фиксации перехода состояния; доставка
// выполняется по принципу "лучшее из возможного" и не влияет на исход
// самой операции.
type Notifier interface {
	Publish(event models.Event)
}

// Noop - реализация Notifier, игнорирующая события.
type Noop struct{}

// Publish ничего не делает.
func (Noop) Publish(models.Event) {}

// Bus - внутрипроцессная шина событий: раздает события всем подписчикам
// через буферизованные каналы. Медленный подписчик события теряет,
// а не блокирует публикующую операцию.
var _ Notifier = (*Bus)(nil)

type Bus struct {
	mu   sync.RWMutex
	subs []chan models.Event
}

const subscriberBuffer = 64 // емкость канала подписчика

// NewBus создает пустую шину событий.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe регистрирует нового подписчика и возвращает канал его событий.
func (b *Bus) Subscribe() <-chan models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan models.Event, subscriberBuffer)
	b.subs = append(b.subs, ch)
	return ch
}

// Publish раздает событие всем подписчикам без блокировки.
func (b *Bus) Publish(event models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			// Буфер подписчика переполнен: событие для него пропускается.
			log.Printf("[Notify] Подписчик не успевает, событие %s пропущено", event.Type)
		}
	}
}

// Fanout объединяет несколько Notifier в один.
type Fanout []Notifier

// Publish передает событие каждому вложенному Notifier по очереди.
func (f Fanout) Publish(event models.Event) {
	for _, n := range f {
		n.Publish(event)
	}
}
