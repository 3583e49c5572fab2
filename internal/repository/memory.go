package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Bhasyam-Meenamrutha/multi-vault-flow/internal/models"
)

// MemoryStore - потокобезопасная реализация Store в памяти.
// Каждое хранилище средств защищено собственным мьютексом: операции над
// одним хранилищем (и его заявками) сериализуются, разные хранилища
// обрабатываются параллельно. Наружу всегда отдаются копии, внутреннее
// состояние заменяется целиком при фиксации критической секции.
var _ Store = (*MemoryStore)(nil)

type MemoryStore struct {
	mu       sync.RWMutex
	vaults   map[string]*models.Vault
	locks    map[string]*sync.Mutex // мьютекс критической секции по ID хранилища
	order    []string               // ID хранилищ в порядке создания
	requests map[string]*models.WithdrawalRequest
	byVault  map[string][]string // ID заявок по ID хранилища, в порядке создания
	ledger   []models.LedgerEntry
	seq      int64
	closed   bool
}

// NewMemoryStore создает пустое хранилище данных в памяти.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vaults:   make(map[string]*models.Vault),
		locks:    make(map[string]*sync.Mutex),
		requests: make(map[string]*models.WithdrawalRequest),
		byVault:  make(map[string][]string),
	}
}

// Close переводит хранилище в недоступное состояние: все последующие
// операции завершаются ErrStoreClosed. Начатые критические секции,
// не успевшие зафиксироваться, также завершатся ошибкой.
func (s *MemoryStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// CreateVault сохраняет новое хранилище средств.
func (s *MemoryStore) CreateVault(_ context.Context, v *models.Vault) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.vaults[v.ID]; ok {
		return ErrVaultExists
	}
	s.vaults[v.ID] = v.Clone()
	s.locks[v.ID] = &sync.Mutex{}
	s.order = append(s.order, v.ID)
	return nil
}

// GetVault возвращает копию хранилища по ID.
func (s *MemoryStore) GetVault(_ context.Context, vaultID string) (*models.Vault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	v, ok := s.vaults[vaultID]
	if !ok {
		return nil, ErrVaultNotFound
	}
	return v.Clone(), nil
}

// ListVaults возвращает копии всех хранилищ в порядке создания.
func (s *MemoryStore) ListVaults(_ context.Context) ([]models.Vault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	out := make([]models.Vault, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.vaults[id].Clone())
	}
	return out, nil
}

// CreateRequest сохраняет новую заявку и запись журнала о ее создании
// в критической секции хранилища-владельца.
func (s *MemoryStore) CreateRequest(_ context.Context, r *models.WithdrawalRequest, entry models.LedgerEntry) error {
	lk, err := s.vaultLock(r.VaultID)
	if err != nil {
		return err
	}
	lk.Lock()
	defer lk.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.requests[r.ID]; ok {
		return ErrRequestExists
	}
	s.requests[r.ID] = r.Clone()
	s.byVault[r.VaultID] = append(s.byVault[r.VaultID], r.ID)
	s.appendLocked(entry)
	return nil
}

// GetRequest возвращает копию заявки по ID.
func (s *MemoryStore) GetRequest(_ context.Context, requestID string) (*models.WithdrawalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	r, ok := s.requests[requestID]
	if !ok {
		return nil, ErrRequestNotFound
	}
	return r.Clone(), nil
}

// ListRequests возвращает копии заявок хранилища в порядке создания.
func (s *MemoryStore) ListRequests(
	_ context.Context,
	vaultID string,
	status models.RequestStatus,
) ([]models.WithdrawalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	if _, ok := s.vaults[vaultID]; !ok {
		return nil, ErrVaultNotFound
	}
	ids := s.byVault[vaultID]
	out := make([]models.WithdrawalRequest, 0, len(ids))
	for _, id := range ids {
		r := s.requests[id]
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, *r.Clone())
	}
	return out, nil
}

// ListPendingDue возвращает ID открытых заявок с истекшим сроком.
func (s *MemoryStore) ListPendingDue(_ context.Context, now time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	var out []string
	for _, vaultID := range s.order {
		for _, id := range s.byVault[vaultID] {
			if s.requests[id].ExpiredAt(now) {
				out = append(out, id)
			}
		}
	}
	return out, nil
}

// UpdateVault выполняет fn под мьютексом хранилища и фиксирует изменения
// вместе с накопленными записями журнала, только если fn вернула nil.
func (s *MemoryStore) UpdateVault(_ context.Context, vaultID string, fn func(tx *VaultTx) error) error {
	lk, err := s.vaultLock(vaultID)
	if err != nil {
		return err
	}
	lk.Lock()
	defer lk.Unlock()

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	cur := s.vaults[vaultID].Clone()
	s.mu.RUnlock()

	tx := &VaultTx{Vault: cur}
	if err = fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.vaults[vaultID] = cur
	for i := range tx.entries {
		tx.entries[i] = s.appendLocked(tx.entries[i])
	}
	return nil
}

// UpdateRequest выполняет fn под мьютексом хранилища-владельца заявки.
// fn получает копии заявки и хранилища; фиксация - только при nil.
func (s *MemoryStore) UpdateRequest(_ context.Context, requestID string, fn func(tx *RequestTx) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	r, ok := s.requests[requestID]
	if !ok {
		s.mu.RUnlock()
		return ErrRequestNotFound
	}
	vaultID := r.VaultID
	lk := s.locks[vaultID]
	s.mu.RUnlock()

	lk.Lock()
	defer lk.Unlock()

	// Перечитываем под мьютексом: между поиском и захватом состояние
	// могло измениться другим голосом или фоновым процессом.
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	req := s.requests[requestID].Clone()
	vault := s.vaults[vaultID].Clone()
	s.mu.RUnlock()

	tx := &RequestTx{Request: req, Vault: vault}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.requests[requestID] = req
	s.vaults[vaultID] = vault
	for i := range tx.entries {
		tx.entries[i] = s.appendLocked(tx.entries[i])
	}
	return nil
}

// ListLedger возвращает записи журнала по фильтру, отсортированные по метке
// времени; равные метки упорядочиваются по монотонному номеру записи.
func (s *MemoryStore) ListLedger(_ context.Context, f LedgerFilter) ([]models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	out := make([]models.LedgerEntry, 0)
	for _, e := range s.ledger {
		if f.VaultID != "" && e.VaultID != f.VaultID {
			continue
		}
		if f.Kind != "" && e.Kind != f.Kind {
			continue
		}
		if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// vaultLock возвращает мьютекс критической секции хранилища.
func (s *MemoryStore) vaultLock(vaultID string) (*sync.Mutex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	lk, ok := s.locks[vaultID]
	if !ok {
		return nil, ErrVaultNotFound
	}
	return lk, nil
}

// appendLocked присваивает записи монотонный номер, дописывает ее в журнал
// и возвращает зафиксированный вариант записи.
// Вызывается только под s.mu.Lock: порядок номеров совпадает с порядком фиксации.
func (s *MemoryStore) appendLocked(e models.LedgerEntry) models.LedgerEntry {
	s.seq++
	e.Seq = s.seq
	s.ledger = append(s.ledger, e)
	return e
}
