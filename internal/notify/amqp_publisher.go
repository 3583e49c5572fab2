package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Bhasyam-Meenamrutha/multi-vault-flow/internal/models"
)

const (
	defaultExchange   = "multivault.events"
	publishTimeout    = 5 * time.Second
	contentTypeJSON   = "application/json"
	deliveryTransient = amqp.Transient
)

// AMQPChannel - минимальный срез канала AMQP, который использует издатель.
// Выделен в интерфейс, чтобы в тестах подставлять заглушку вместо
// живого соединения.
type AMQPChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher публикует события жизненного цикла в обменник AMQP
// (тип topic, ключ маршрутизации - тип события). Ошибки публикации
// логируются и не прерывают вызывающую операцию.
var _ Notifier = (*AMQPPublisher)(nil)

type AMQPPublisher struct {
	ch       AMQPChannel
	exchange string
}

// NewAMQPPublisher объявляет обменник и возвращает издателя поверх канала.
func NewAMQPPublisher(ch AMQPChannel, exchange string) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = defaultExchange
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("ошибка объявления обменника %s: %w", exchange, err)
	}
	return &AMQPPublisher{ch: ch, exchange: exchange}, nil
}

// DialAMQP открывает соединение с брокером и возвращает издателя
// вместе с функцией закрытия соединения.
func DialAMQP(url, exchange string) (*AMQPPublisher, func(), error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка соединения с AMQP: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("ошибка открытия канала AMQP: %w", err)
	}
	pub, err := NewAMQPPublisher(ch, exchange)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, err
	}
	closeFn := func() {
		if closeErr := ch.Close(); closeErr != nil {
			log.Printf("[Notify] Ошибка закрытия канала AMQP: %v", closeErr)
		}
		if closeErr := conn.Close(); closeErr != nil {
			log.Printf("[Notify] Ошибка закрытия соединения AMQP: %v", closeErr)
		}
	}
	return pub, closeFn, nil
}

// Publish сериализует событие в JSON и отправляет его в обменник.
func (p *AMQPPublisher) Publish(event models.Event) {
	body, err := json.Marshal(event)
	if err != nil {
		log.Printf("[Notify] Ошибка сериализации события %s: %v", event.Type, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	err = p.ch.PublishWithContext(ctx, p.exchange, string(event.Type), false, false, amqp.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: deliveryTransient,
		Timestamp:    event.CreatedAt,
		Body:         body,
	})
	if err != nil {
		log.Printf("[Notify] Ошибка публикации события %s в обменник %s: %v", event.Type, p.exchange, err)
	}
}
