package models

import "time"

// EventType - тип события жизненного цикла для внешних подписчиков (UI, алерты).
type EventType string

const (
	EventVaultCreated    EventType = "VaultCreated"
	EventDeposited       EventType = "Deposited"
	EventRequestCreated  EventType = "RequestCreated"
	EventVoted           EventType = "Voted"
	EventRequestApproved EventType = "RequestApproved"
	// EventRequestRejected зарезервирован для терминального отклонения.
	// В минимальной модели движок заявку по отклонениям не завершает,
	// поэтому событие объявлено, но не публикуется.
	EventRequestRejected EventType = "RequestRejected"
	EventRequestExpired  EventType = "RequestExpired"
)

// Event - уведомление о совершенном переходе состояния.
// Публикуется после фиксации перехода, по одному событию на переход.
type Event struct {
	Type      EventType     `json:"type"`
	VaultID   string        `json:"vault_id"`
	RequestID string        `json:"request_id,omitempty"`
	ActorID   string        `json:"actor_id,omitempty"`
	Amount    int64         `json:"amount,omitempty"`
	Decision  VoteDecision  `json:"decision,omitempty"`
	Status    RequestStatus `json:"status,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}
