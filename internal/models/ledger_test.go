package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bhasyam-Meenamrutha/multi-vault-flow/internal/models"
)

// Конструкторы записей журнала должны собирать только корректные комбинации
// полей для каждого вида записи.
func TestLedgerEntryConstructors(t *testing.T) {
	now := time.Now().UTC()

	t.Run("Пополнение несет сумму и актора, но не заявку", func(t *testing.T) {
		e := models.NewDepositEntry("vault-1", "alice", 500, now)
		assert.Equal(t, models.KindDeposit, e.Kind)
		require.NotNil(t, e.Amount)
		assert.Equal(t, int64(500), *e.Amount)
		require.NotNil(t, e.ActorID)
		assert.Equal(t, "alice", *e.ActorID)
		assert.Nil(t, e.RequestID)
	})

	t.Run("Создание заявки несет сумму, актора и заявку", func(t *testing.T) {
		e := models.NewWithdrawalRequestedEntry("vault-1", "alice", "req-1", 300, now)
		assert.Equal(t, models.KindWithdrawalRequested, e.Kind)
		require.NotNil(t, e.Amount)
		assert.Equal(t, int64(300), *e.Amount)
		require.NotNil(t, e.RequestID)
		assert.Equal(t, "req-1", *e.RequestID)
	})

	t.Run("Одобрение несет актора и заявку без суммы", func(t *testing.T) {
		e := models.NewApprovalEntry("vault-1", "bob", "req-1", now)
		assert.Equal(t, models.KindApproval, e.Kind)
		assert.Nil(t, e.Amount)
		require.NotNil(t, e.ActorID)
		assert.Equal(t, "bob", *e.ActorID)
	})

	t.Run("Отклонение участником несет актора", func(t *testing.T) {
		e := models.NewRejectionEntry("vault-1", "bob", "req-1", now)
		assert.Equal(t, models.KindRejection, e.Kind)
		require.NotNil(t, e.ActorID)
	})

	t.Run("Истечение срока - запись отклонения без актора", func(t *testing.T) {
		e := models.NewExpiryEntry("vault-1", "req-1", now)
		assert.Equal(t, models.KindRejection, e.Kind)
		assert.Nil(t, e.ActorID, "заявку завершила система, актора нет")
		require.NotNil(t, e.RequestID)
		assert.Equal(t, "req-1", *e.RequestID)
	})

	t.Run("Исполнение несет сумму и заявку без актора", func(t *testing.T) {
		e := models.NewWithdrawalExecutedEntry("vault-1", "req-1", 300, now)
		assert.Equal(t, models.KindWithdrawalExecuted, e.Kind)
		require.NotNil(t, e.Amount)
		assert.Equal(t, int64(300), *e.Amount)
		assert.Nil(t, e.ActorID)
	})
}

func TestEntryKind_Valid(t *testing.T) {
	for _, k := range []models.EntryKind{
		models.KindDeposit, models.KindWithdrawalRequested, models.KindApproval,
		models.KindRejection, models.KindWithdrawalExecuted,
	} {
		assert.True(t, k.Valid(), string(k))
	}
	assert.False(t, models.EntryKind("transfer").Valid())
}
