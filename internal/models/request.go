package models

import (
	"time"

	"github.com/lib/pq"
)

// RequestStatus описывает состояние заявки на вывод средств.
type RequestStatus string

const (
	// StatusPending - заявка открыта, голосование продолжается.
	StatusPending RequestStatus = "pending"
	// StatusApproved - кворум собран, средства списаны. Терминальный статус.
	StatusApproved RequestStatus = "approved"
	// StatusRejected - заявка отклонена. Терминальный статус.
	// В минимальной модели движок до него не доходит: одиночное отклонение
	// фиксируется, но заявку не завершает.
	StatusRejected RequestStatus = "rejected"
	// StatusExpired - истек срок действия заявки. Терминальный статус.
	StatusExpired RequestStatus = "expired"
)

// IsTerminal сообщает, является ли статус терминальным.
// Из терминального статуса переходов нет.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusExpired
}

// Valid проверяет, что статус принадлежит закрытому набору значений.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// VoteDecision - решение участника по заявке.
type VoteDecision string

const (
	DecisionApprove VoteDecision = "approve"
	DecisionReject  VoteDecision = "reject"
)

// Valid проверяет, что решение принадлежит закрытому набору значений.
func (d VoteDecision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// WithdrawalRequest представляет заявку на вывод средств из хранилища.
// Требователь автоматически становится первым одобрившим.
// Множества Approvals и Rejections не пересекаются.
type WithdrawalRequest struct {
	ID          string         `db:"id"           json:"id"`
	VaultID     string         `db:"vault_id"     json:"vault_id"`
	RequesterID string         `db:"requester_id" json:"requester_id"`
	Amount      int64          `db:"amount"       json:"amount"` // минимальные единицы, > 0
	Purpose     string         `db:"purpose"      json:"purpose"`
	Approvals   pq.StringArray `db:"approvals"    json:"approvals"`
	Rejections  pq.StringArray `db:"rejections"   json:"rejections"`
	Status      RequestStatus  `db:"status"       json:"status"`
	CreatedAt   time.Time      `db:"created_at"   json:"created_at"`
	ExpiresAt   time.Time      `db:"expires_at"   json:"expires_at"`
}

// HasVoted сообщает, голосовал ли участник по заявке (в любую сторону).
func (r *WithdrawalRequest) HasVoted(memberID string) bool {
	for _, id := range r.Approvals {
		if id == memberID {
			return true
		}
	}
	for _, id := range r.Rejections {
		if id == memberID {
			return true
		}
	}
	return false
}

// ExpiredAt сообщает, истекла ли заявка к моменту now.
// Терминальные заявки не считаются истекающими.
func (r *WithdrawalRequest) ExpiredAt(now time.Time) bool {
	return r.Status == StatusPending && !now.Before(r.ExpiresAt)
}

// EffectiveStatus возвращает статус заявки с учетом проверки срока на чтении:
// открытая заявка с истекшим сроком отображается как expired еще до того,
// как ее обработает фоновый процесс.
func (r *WithdrawalRequest) EffectiveStatus(now time.Time) RequestStatus {
	if r.ExpiredAt(now) {
		return StatusExpired
	}
	return r.Status
}

// Clone возвращает глубокую копию заявки.
func (r *WithdrawalRequest) Clone() *WithdrawalRequest {
	cp := *r
	cp.Approvals = append(pq.StringArray(nil), r.Approvals...)
	cp.Rejections = append(pq.StringArray(nil), r.Rejections...)
	return &cp
}
