package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bhasyam-Meenamrutha/multi-vault-flow/internal/models"
	"github.com/Bhasyam-Meenamrutha/multi-vault-flow/internal/repository"
	"github.com/Bhasyam-Meenamrutha/multi-vault-flow/internal/services"
)

// fixture поднимает хранилище участников с заданным балансом и оба сервиса
// поверх одного стора.
type fixture struct {
	store    *repository.MemoryStore
	notifier *recordingNotifier
	vaults   services.VaultService
	requests services.RequestService
	vault    *models.Vault
}

func newFixture(t *testing.T, members []string, quorum int, balance int64, ttl time.Duration) *fixture {
	t.Helper()
	ctx := context.Background()

	store := repository.NewMemoryStore()
	notifier := &recordingNotifier{}
	vaults := services.NewVaultService(store, notifier)
	requests := services.NewRequestService(store, notifier, ttl)

	vault, err := vaults.CreateVault(ctx, "Общая касса", members, quorum)
	require.NoError(t, err)
	if balance > 0 {
		_, err = vaults.Deposit(ctx, vault.ID, members[0], balance)
		require.NoError(t, err)
	}
	return &fixture{store: store, notifier: notifier, vaults: vaults, requests: requests, vault: vault}
}

func (f *fixture) balance(t *testing.T) int64 {
	t.Helper()
	vault, err := f.vaults.GetVault(context.Background(), f.vault.ID)
	require.NoError(t, err)
	return vault.Balance
}

func (f *fixture) ledgerByKind(t *testing.T, kind models.EntryKind) []models.LedgerEntry {
	t.Helper()
	entries, err := f.vaults.ListLedger(context.Background(),
		repository.LedgerFilter{VaultID: f.vault.ID, Kind: kind})
	require.NoError(t, err)
	return entries
}

func TestRequestService_CreateRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []string{"alice", "bob", "carol"}, 2, 100, 0)

	t.Run("Требователь автоматически одобряет", func(t *testing.T) {
		req, err := f.requests.CreateRequest(ctx, f.vault.ID, "alice", 40, "закупка")
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, req.Status)
		assert.EqualValues(t, []string{"alice"}, []string(req.Approvals))
		assert.Empty(t, req.Rejections)
		assert.WithinDuration(t, req.CreatedAt.Add(services.DefaultRequestTTL), req.ExpiresAt, time.Second)

		entries := f.ledgerByKind(t, models.KindWithdrawalRequested)
		require.Len(t, entries, 1)
	})

	t.Run("Сумма сверх баланса допустима при создании", func(t *testing.T) {
		// Проверка баланса откладывается до исполнения: баланс изменчив.
		_, err := f.requests.CreateRequest(ctx, f.vault.ID, "bob", 100500, "на вырост")
		require.NoError(t, err)
	})

	t.Run("Не участник", func(t *testing.T) {
		_, err := f.requests.CreateRequest(ctx, f.vault.ID, "mallory", 10, "")
		assert.ErrorIs(t, err, services.ErrNotMember)
	})

	t.Run("Неположительная сумма", func(t *testing.T) {
		_, err := f.requests.CreateRequest(ctx, f.vault.ID, "alice", 0, "")
		assert.ErrorIs(t, err, services.ErrInvalidAmount)
	})

	t.Run("Несуществующее хранилище", func(t *testing.T) {
		_, err := f.requests.CreateRequest(ctx, "нет-такого", "alice", 10, "")
		assert.ErrorIs(t, err, services.ErrVaultNotFound)
	})
}

// Сценарий: три участника, кворум 2, баланс 100. Заявка на 40 исполняется
// вторым голосом: ровно одна запись withdrawal_executed, баланс 60.
func TestRequestService_QuorumExecutes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []string{"alice", "bob", "carol"}, 2, 100, 0)

	req, err := f.requests.CreateRequest(ctx, f.vault.ID, "alice", 40, "закупка")
	require.NoError(t, err)

	result, err := f.requests.Vote(ctx, req.ID, "bob", models.DecisionApprove)
	require.NoError(t, err)
	assert.True(t, result.Executed)
	assert.False(t, result.Deferred)
	assert.Equal(t, models.StatusApproved, result.Request.Status)

	assert.Equal(t, int64(60), f.balance(t))

	executed := f.ledgerByKind(t, models.KindWithdrawalExecuted)
	require.Len(t, executed, 1)
	assert.Equal(t, int64(40), *executed[0].Amount)
	assert.Nil(t, executed[0].ActorID, "списание совершает система, а не участник")

	approvedEvents := f.notifier.ByType(models.EventRequestApproved)
	require.Len(t, approvedEvents, 1)
	assert.Equal(t, req.ID, approvedEvents[0].RequestID)

	t.Run("Голос по завершенной заявке", func(t *testing.T) {
		_, err := f.requests.Vote(ctx, req.ID, "carol", models.DecisionApprove)
		assert.ErrorIs(t, err, services.ErrAlreadyTerminal)
	})
}

func TestRequestService_Vote_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []string{"alice", "bob", "carol"}, 3, 100, 0)

	req, err := f.requests.CreateRequest(ctx, f.vault.ID, "alice", 40, "")
	require.NoError(t, err)

	t.Run("Неизвестное решение", func(t *testing.T) {
		_, err := f.requests.Vote(ctx, req.ID, "bob", "maybe")
		assert.ErrorIs(t, err, services.ErrInvalidDecision)
	})

	t.Run("Не участник", func(t *testing.T) {
		_, err := f.requests.Vote(ctx, req.ID, "mallory", models.DecisionApprove)
		assert.ErrorIs(t, err, services.ErrNotMember)
	})

	t.Run("Повторный голос требователя", func(t *testing.T) {
		_, err := f.requests.Vote(ctx, req.ID, "alice", models.DecisionApprove)
		assert.ErrorIs(t, err, services.ErrDuplicateVote)
	})

	t.Run("Повторный голос после отклонения", func(t *testing.T) {
		_, err := f.requests.Vote(ctx, req.ID, "bob", models.DecisionReject)
		require.NoError(t, err)
		_, err = f.requests.Vote(ctx, req.ID, "bob", models.DecisionApprove)
		assert.ErrorIs(t, err, services.ErrDuplicateVote)
	})

	t.Run("Несуществующая заявка", func(t *testing.T) {
		_, err := f.requests.Vote(ctx, "нет-такой", "bob", models.DecisionApprove)
		assert.ErrorIs(t, err, services.ErrRequestNotFound)
	})
}

// Отклонение не завершает заявку: она остается открытой и может быть
// исполнена последующими одобрениями. Множества голосов не пересекаются.
func TestRequestService_RejectionIsNotTerminal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []string{"alice", "bob", "carol", "dave"}, 3, 100, 0)

	req, err := f.requests.CreateRequest(ctx, f.vault.ID, "alice", 40, "")
	require.NoError(t, err)

	result, err := f.requests.Vote(ctx, req.ID, "bob", models.DecisionReject)
	require.NoError(t, err)
	assert.False(t, result.Executed)
	assert.Equal(t, models.StatusPending, result.Request.Status, "отклонение не терминально")

	rejections := f.ledgerByKind(t, models.KindRejection)
	require.Len(t, rejections, 1)

	_, err = f.requests.Vote(ctx, req.ID, "carol", models.DecisionApprove)
	require.NoError(t, err)
	result, err = f.requests.Vote(ctx, req.ID, "dave", models.DecisionApprove)
	require.NoError(t, err)
	assert.True(t, result.Executed, "заявка с отклонением все равно собрала кворум")

	assert.EqualValues(t, []string{"alice", "carol", "dave"}, []string(result.Request.Approvals))
	assert.EqualValues(t, []string{"bob"}, []string(result.Request.Rejections))
	assert.Equal(t, int64(60), f.balance(t))
}

// Сценарий: две заявки по 80 при балансе 100. Исполниться может только одна,
// вторая получает отложенное исполнение. Баланс заканчивается на 20.
func TestRequestService_InsufficientFundsDefers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []string{"alice", "bob", "carol"}, 2, 100, 0)

	first, err := f.requests.CreateRequest(ctx, f.vault.ID, "alice", 80, "первая")
	require.NoError(t, err)
	second, err := f.requests.CreateRequest(ctx, f.vault.ID, "bob", 80, "вторая")
	require.NoError(t, err)

	result, err := f.requests.Vote(ctx, first.ID, "carol", models.DecisionApprove)
	require.NoError(t, err)
	require.True(t, result.Executed)
	assert.Equal(t, int64(20), f.balance(t))

	t.Run("Кворум при нехватке средств откладывает исполнение", func(t *testing.T) {
		result, err := f.requests.Vote(ctx, second.ID, "carol", models.DecisionApprove)
		require.NoError(t, err)
		assert.False(t, result.Executed)
		assert.True(t, result.Deferred)
		assert.Equal(t, models.StatusPending, result.Request.Status, "заявка остается открытой")
		assert.Equal(t, int64(20), f.balance(t), "баланс не тронут")

		executed := f.ledgerByKind(t, models.KindWithdrawalExecuted)
		assert.Len(t, executed, 1, "исполнилась ровно одна заявка")
	})

	t.Run("Отложенная заявка исполняется после пополнения", func(t *testing.T) {
		_, err := f.vaults.Deposit(ctx, f.vault.ID, "alice", 60)
		require.NoError(t, err)

		// Кворум уже собран, но исполнение случается только при следующем
		// подходящем голосе. Пополнение само по себе заявку не исполняет.
		got, err := f.requests.GetRequest(ctx, second.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, got.Status)

		result, err := f.requests.Vote(ctx, second.ID, "alice", models.DecisionApprove)
		require.NoError(t, err)
		assert.True(t, result.Executed)
		assert.Equal(t, int64(0), f.balance(t))
	})
}

// Два голоса, одновременно добирающие кворум по разным заявкам на весь
// баланс, не могут исполниться оба: списание строго однократно и только
// в пределах баланса.
func TestRequestService_ConcurrentQuorum_ExactlyOnce(t *testing.T) {
	ctx := context.Background()
	const rounds = 20

	for r := 0; r < rounds; r++ {
		f := newFixture(t, []string{"alice", "bob", "carol"}, 2, 100, 0)

		first, err := f.requests.CreateRequest(ctx, f.vault.ID, "alice", 80, "")
		require.NoError(t, err)
		second, err := f.requests.CreateRequest(ctx, f.vault.ID, "bob", 80, "")
		require.NoError(t, err)

		var wg sync.WaitGroup
		results := make([]*services.VoteResult, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			r, err := f.requests.Vote(ctx, first.ID, "carol", models.DecisionApprove)
			require.NoError(t, err)
			results[0] = r
		}()
		go func() {
			defer wg.Done()
			r, err := f.requests.Vote(ctx, second.ID, "carol", models.DecisionApprove)
			require.NoError(t, err)
			results[1] = r
		}()
		wg.Wait()

		executedCount := 0
		for _, r := range results {
			if r.Executed {
				executedCount++
			} else {
				assert.True(t, r.Deferred, "не исполнившийся кворум помечен отложенным")
			}
		}
		assert.Equal(t, 1, executedCount, "исполнилась ровно одна из двух заявок")
		assert.Equal(t, int64(20), f.balance(t))
		assert.Len(t, f.ledgerByKind(t, models.KindWithdrawalExecuted), 1)
	}
}

// Повторный голос, добирающий кворум по уже исполненной заявке, невозможен:
// гонка двух одинаковых голосов заканчивается одним исполнением и одной
// ошибкой повторного голоса либо завершенности.
func TestRequestService_ConcurrentSameRequest_ExactlyOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []string{"alice", "bob", "carol"}, 2, 100, 0)

	req, err := f.requests.CreateRequest(ctx, f.vault.ID, "alice", 40, "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	voters := []string{"bob", "carol"}
	executed := make(chan bool, len(voters))
	wg.Add(len(voters))
	for _, voter := range voters {
		voter := voter
		go func() {
			defer wg.Done()
			r, err := f.requests.Vote(ctx, req.ID, voter, models.DecisionApprove)
			if err != nil {
				// Опоздавший голос по уже исполненной заявке.
				assert.ErrorIs(t, err, services.ErrAlreadyTerminal)
				return
			}
			executed <- r.Executed
		}()
	}
	wg.Wait()
	close(executed)

	executedCount := 0
	for e := range executed {
		if e {
			executedCount++
		}
	}
	assert.Equal(t, 1, executedCount)
	assert.Equal(t, int64(60), f.balance(t))
	assert.Len(t, f.ledgerByKind(t, models.KindWithdrawalExecuted), 1)
}

// Журнал воспроизводит баланс: сумма пополнений минус сумма списаний
// равна текущему балансу хранилища.
func TestRequestService_LedgerReplaysBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []string{"alice", "bob", "carol"}, 2, 0, 0)

	_, err := f.vaults.Deposit(ctx, f.vault.ID, "alice", 70)
	require.NoError(t, err)
	_, err = f.vaults.Deposit(ctx, f.vault.ID, "bob", 30)
	require.NoError(t, err)

	req, err := f.requests.CreateRequest(ctx, f.vault.ID, "alice", 40, "")
	require.NoError(t, err)
	_, err = f.requests.Vote(ctx, req.ID, "bob", models.DecisionApprove)
	require.NoError(t, err)

	entries, err := f.vaults.ListLedger(ctx, repository.LedgerFilter{VaultID: f.vault.ID})
	require.NoError(t, err)

	var replayed int64
	for _, e := range entries {
		switch e.Kind {
		case models.KindDeposit:
			replayed += *e.Amount
		case models.KindWithdrawalExecuted:
			replayed -= *e.Amount
		}
	}
	assert.Equal(t, f.balance(t), replayed)
}

func TestRequestService_ExpiredRequestRejectsVotes(t *testing.T) {
	ctx := context.Background()
	// Отрицательный TTL: заявка рождается уже просроченной.
	f := newFixture(t, []string{"alice", "bob"}, 2, 100, -time.Minute)

	req, err := f.requests.CreateRequest(ctx, f.vault.ID, "alice", 40, "")
	require.NoError(t, err)

	t.Run("Статус на чтении отражает истекший срок", func(t *testing.T) {
		got, err := f.requests.GetRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusExpired, got.Status)
	})

	t.Run("Опоздавший голос отклоняется", func(t *testing.T) {
		// Фоновый процесс еще не перевел заявку в expired, но голос
		// все равно не принимается.
		_, err := f.requests.Vote(ctx, req.ID, "bob", models.DecisionApprove)
		assert.ErrorIs(t, err, services.ErrAlreadyTerminal)
	})

	t.Run("Баланс не изменился", func(t *testing.T) {
		assert.Equal(t, int64(100), f.balance(t))
	})
}

func TestRequestService_ListRequests(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []string{"alice", "bob", "carol"}, 2, 100, 0)

	open, err := f.requests.CreateRequest(ctx, f.vault.ID, "alice", 10, "открытая")
	require.NoError(t, err)
	done, err := f.requests.CreateRequest(ctx, f.vault.ID, "bob", 20, "исполненная")
	require.NoError(t, err)
	_, err = f.requests.Vote(ctx, done.ID, "carol", models.DecisionApprove)
	require.NoError(t, err)

	t.Run("Без фильтра", func(t *testing.T) {
		all, err := f.requests.ListRequests(ctx, f.vault.ID, "")
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("Только открытые", func(t *testing.T) {
		pending, err := f.requests.ListRequests(ctx, f.vault.ID, models.StatusPending)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, open.ID, pending[0].ID)
	})

	t.Run("Только исполненные", func(t *testing.T) {
		approved, err := f.requests.ListRequests(ctx, f.vault.ID, models.StatusApproved)
		require.NoError(t, err)
		require.Len(t, approved, 1)
		assert.Equal(t, done.ID, approved[0].ID)
	})

	t.Run("Неизвестный статус", func(t *testing.T) {
		_, err := f.requests.ListRequests(ctx, f.vault.ID, "весь-в-делах")
		assert.Error(t, err)
	})
}
