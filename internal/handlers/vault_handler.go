package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Bhasyam-Meenamrutha/multi-vault-flow/internal/middleware"
	"github.com/Bhasyam-Meenamrutha/multi-vault-flow/internal/models"
	"github.com/Bhasyam-Meenamrutha/multi-vault-flow/internal/repository"
	"github.com/Bhasyam-Meenamrutha/multi-vault-flow/internal/services"
)

// VaultHandler обрабатывает HTTP-запросы, связанные с хранилищами средств
// и журналом операций.
type VaultHandler struct {
	vaultService   services.VaultService
	archiveService services.ArchiveService // nil, если архивация не настроена
}

// NewVaultHandler создает новый экземпляр VaultHandler.
func NewVaultHandler(vs services.VaultService, as services.ArchiveService) *VaultHandler {
	return &VaultHandler{vaultService: vs, archiveService: as}
}

// Create обрабатывает POST запрос на создание хранилища.
func (h *VaultHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateVaultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[VaultHandler:Create] Ошибка декодирования запроса: %v", err)
		writeError(w, http.StatusBadRequest, "bad_request", "Неверный формат запроса")
		return
	}

	vault, err := h.vaultService.CreateVault(r.Context(), req.Name, req.Members, req.Quorum)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, vault)
}

// List обрабатывает GET запрос на список всех хранилищ.
func (h *VaultHandler) List(w http.ResponseWriter, r *http.Request) {
	vaults, err := h.vaultService.ListVaults(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vaults)
}

// Get обрабатывает GET запрос на получение хранилища по ID.
func (h *VaultHandler) Get(w http.ResponseWriter, r *http.Request) {
	vaultID := chi.URLParam(r, "vaultID")
	vault, err := h.vaultService.GetVault(r.Context(), vaultID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vault)
}

// Deposit обрабатывает POST запрос на пополнение хранилища.
// Идентификатор вносителя берется из контекста запроса.
func (h *VaultHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	memberID, ok := middleware.GetMemberIDFromContext(r.Context())
	if !ok {
		log.Printf("[VaultHandler:Deposit] Не удалось получить идентификатор участника из контекста")
		writeError(w, http.StatusInternalServerError, "internal", "Внутренняя ошибка сервера")
		return
	}

	var req models.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[VaultHandler:Deposit] Ошибка декодирования запроса: %v", err)
		writeError(w, http.StatusBadRequest, "bad_request", "Неверный формат запроса")
		return
	}

	vaultID := chi.URLParam(r, "vaultID")
	entry, err := h.vaultService.Deposit(r.Context(), vaultID, memberID, req.Amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

// ListLedger обрабатывает GET запрос на выборку журнала операций.
// Параметры: vault_id, kind, since (RFC 3339) - все опциональны.
func (h *VaultHandler) ListLedger(w http.ResponseWriter, r *http.Request) {
	f := repository.LedgerFilter{
		VaultID: r.URL.Query().Get("vault_id"),
		Kind:    models.EntryKind(r.URL.Query().Get("kind")),
	}
	if f.Kind != "" && !f.Kind.Valid() {
		writeError(w, http.StatusBadRequest, "bad_request", "Неизвестный вид записи журнала")
		return
	}
	if since := r.URL.Query().Get("since"); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "Неверный формат параметра since")
			return
		}
		f.Since = ts
	}

	entries, err := h.vaultService.ListLedger(r.Context(), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// ArchiveLedger обрабатывает POST запрос на выгрузку журнала хранилища
// в аудиторский архив.
func (h *VaultHandler) ArchiveLedger(w http.ResponseWriter, r *http.Request) {
	if h.archiveService == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "Архивация журнала не настроена")
		return
	}

	vaultID := chi.URLParam(r, "vaultID")
	objectKey, count, err := h.archiveService.ArchiveLedger(r.Context(), vaultID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, models.ArchiveResponse{ObjectKey: objectKey, Entries: count})
}

// writeJSON кодирует ответ в JSON с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Handlers] Ошибка кодирования ответа: %v", err)
	}
}

// writeError отправляет унифицированное тело ошибки.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, models.ErrorResponse{Code: code, Message: message})
}

// writeServiceError переводит ошибку сервисного слоя в HTTP-ответ.
// Каждому виду ошибки соответствует свой статус и машиночитаемый код.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidConfiguration):
		writeError(w, http.StatusBadRequest, "invalid_configuration", err.Error())
	case errors.Is(err, services.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "invalid_amount", err.Error())
	case errors.Is(err, services.ErrInvalidDecision):
		writeError(w, http.StatusBadRequest, "invalid_decision", err.Error())
	case errors.Is(err, services.ErrVaultNotFound):
		writeError(w, http.StatusNotFound, "vault_not_found", err.Error())
	case errors.Is(err, services.ErrRequestNotFound):
		writeError(w, http.StatusNotFound, "request_not_found", err.Error())
	case errors.Is(err, services.ErrNotMember):
		writeError(w, http.StatusForbidden, "not_member", err.Error())
	case errors.Is(err, services.ErrDuplicateVote):
		writeError(w, http.StatusConflict, "duplicate_vote", err.Error())
	case errors.Is(err, services.ErrAlreadyTerminal):
		writeError(w, http.StatusConflict, "already_terminal", err.Error())
	case errors.Is(err, services.ErrInsufficientFunds):
		writeError(w, http.StatusConflict, "insufficient_funds", err.Error())
	case errors.Is(err, services.ErrStorageUnavailable):
		log.Printf("[Handlers] Хранилище данных недоступно: %v", err)
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "Хранилище данных недоступно")
	default:
		log.Printf("[Handlers] Внутренняя ошибка: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "Внутренняя ошибка сервера")
	}
}
