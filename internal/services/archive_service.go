package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/Bhasyam-Meenamrutha/multi-vault-flow/internal/repository"
	"github.com/Bhasyam-Meenamrutha/multi-vault-flow/internal/storage"
)

// ArchiveService определяет интерфейс выгрузки журнала операций хранилища
// в объектное хранилище (аудиторский архив).
type ArchiveService interface {
	// ArchiveLedger выгружает журнал хранилища в JSON-архив и возвращает
	// ключ объекта и число записей в нем.
	ArchiveLedger(ctx context.Context, vaultID string) (string, int, error)
}

// archiveService реализует выгрузку журнала в ArchiveStorage.
var _ ArchiveService = (*archiveService)(nil)

type archiveService struct {
	store   repository.Store
	archive storage.ArchiveStorage
}

// NewArchiveService создает новый экземпляр сервиса архивации журнала.
func NewArchiveService(store repository.Store, archive storage.ArchiveStorage) ArchiveService {
	return &archiveService{store: store, archive: archive}
}

// ArchiveLedger сериализует журнал хранилища в JSON и загружает его
// одним объектом. Журнал неизменяем, поэтому архив воспроизводим:
// повторная выгрузка с тем же содержимым дает эквивалентный объект.
func (s *archiveService) ArchiveLedger(ctx context.Context, vaultID string) (string, int, error) {
	// Проверяем существование хранилища до выгрузки.
	if _, err := s.store.GetVault(ctx, vaultID); err != nil {
		return "", 0, mapStoreErr(err)
	}

	entries, err := s.store.ListLedger(ctx, repository.LedgerFilter{VaultID: vaultID})
	if err != nil {
		return "", 0, mapStoreErr(err)
	}

	body, err := json.Marshal(entries)
	if err != nil {
		return "", 0, fmt.Errorf("ошибка сериализации журнала хранилища %s: %w", vaultID, err)
	}

	objectKey := fmt.Sprintf("ledgers/%s/%s.json", vaultID, time.Now().UTC().Format("20060102T150405Z"))
	reader := bytes.NewReader(body)
	if err = s.archive.UploadArchive(ctx, objectKey, reader, int64(len(body)), "application/json"); err != nil {
		log.Printf("[ArchiveService] Ошибка выгрузки архива журнала хранилища %s: %v", vaultID, err)
		return "", 0, fmt.Errorf("ошибка выгрузки архива: %w", err)
	}

	log.Printf("[ArchiveService] Журнал хранилища %s выгружен в '%s' (%d записей)", vaultID, objectKey, len(entries))
	return objectKey, len(entries), nil
}
