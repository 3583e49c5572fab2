package models

import "time"

// EntryKind - вид записи журнала операций. Набор закрыт: новые виды
// добавляются только вместе с конструктором, который гарантирует
// корректную комбинацию полей для этого вида.
type EntryKind string

const (
	// KindDeposit - пополнение хранилища. Обязательны сумма и актор.
	KindDeposit EntryKind = "deposit"
	// KindWithdrawalRequested - создана заявка на вывод. Обязательны сумма, актор и заявка.
	KindWithdrawalRequested EntryKind = "withdrawal_requested"
	// KindApproval - участник одобрил заявку. Обязательны актор и заявка.
	KindApproval EntryKind = "approval"
	// KindRejection - участник отклонил заявку, либо заявка истекла
	// (в этом случае актор отсутствует). Обязательна заявка.
	KindRejection EntryKind = "rejection"
	// KindWithdrawalExecuted - кворум собран, средства списаны.
	// Обязательны сумма и заявка. Ровно одна такая запись на заявку.
	KindWithdrawalExecuted EntryKind = "withdrawal_executed"
)

// Valid проверяет, что вид записи принадлежит закрытому набору значений.
func (k EntryKind) Valid() bool {
	switch k {
	case KindDeposit, KindWithdrawalRequested, KindApproval, KindRejection, KindWithdrawalExecuted:
		return true
	}
	return false
}

// LedgerEntry - неизменяемая запись журнала операций хранилища.
// Журнал только дополняется: записи никогда не изменяются и не удаляются.
// Seq монотонно возрастает и разрешает порядок записей при равных метках времени.
type LedgerEntry struct {
	Seq       int64     `db:"seq"        json:"seq"`
	VaultID   string    `db:"vault_id"   json:"vault_id"`
	Kind      EntryKind `db:"kind"       json:"kind"`
	Amount    *int64    `db:"amount"     json:"amount,omitempty"`     // NULL для approval/rejection
	ActorID   *string   `db:"actor_id"   json:"actor_id,omitempty"`   // NULL для истечения и исполнения
	RequestID *string   `db:"request_id" json:"request_id,omitempty"` // NULL для deposit
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Конструкторы ниже - единственный способ собрать запись журнала:
// каждый вид несет только релевантные ему поля, некорректные комбинации
// (например, deposit без суммы) невозможны по построению.

// NewDepositEntry создает запись о пополнении хранилища.
func NewDepositEntry(vaultID, actorID string, amount int64, now time.Time) LedgerEntry {
	return LedgerEntry{
		VaultID:   vaultID,
		Kind:      KindDeposit,
		Amount:    &amount,
		ActorID:   &actorID,
		CreatedAt: now,
	}
}

// NewWithdrawalRequestedEntry создает запись о новой заявке на вывод.
func NewWithdrawalRequestedEntry(vaultID, actorID, requestID string, amount int64, now time.Time) LedgerEntry {
	return LedgerEntry{
		VaultID:   vaultID,
		Kind:      KindWithdrawalRequested,
		Amount:    &amount,
		ActorID:   &actorID,
		RequestID: &requestID,
		CreatedAt: now,
	}
}

// NewApprovalEntry создает запись об одобрении заявки участником.
func NewApprovalEntry(vaultID, actorID, requestID string, now time.Time) LedgerEntry {
	return LedgerEntry{
		VaultID:   vaultID,
		Kind:      KindApproval,
		ActorID:   &actorID,
		RequestID: &requestID,
		CreatedAt: now,
	}
}

// NewRejectionEntry создает запись об отклонении заявки участником.
func NewRejectionEntry(vaultID, actorID, requestID string, now time.Time) LedgerEntry {
	return LedgerEntry{
		VaultID:   vaultID,
		Kind:      KindRejection,
		ActorID:   &actorID,
		RequestID: &requestID,
		CreatedAt: now,
	}
}

// NewExpiryEntry создает запись об истечении срока заявки.
// Актор отсутствует: заявку завершила система, а не участник.
func NewExpiryEntry(vaultID, requestID string, now time.Time) LedgerEntry {
	return LedgerEntry{
		VaultID:   vaultID,
		Kind:      KindRejection,
		RequestID: &requestID,
		CreatedAt: now,
	}
}

// NewWithdrawalExecutedEntry создает запись об исполнении вывода средств.
func NewWithdrawalExecutedEntry(vaultID, requestID string, amount int64, now time.Time) LedgerEntry {
	return LedgerEntry{
		VaultID:   vaultID,
		Kind:      KindWithdrawalExecuted,
		Amount:    &amount,
		RequestID: &requestID,
		CreatedAt: now,
	}
}
