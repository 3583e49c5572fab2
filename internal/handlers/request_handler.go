package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Bhasyam-Meenamrutha/multi-vault-flow/internal/middleware"
	"github.com/Bhasyam-Meenamrutha/multi-vault-flow/internal/models"
	"github.com/Bhasyam-Meenamrutha/multi-vault-flow/internal/services"
)

// RequestHandler обрабатывает HTTP-запросы, связанные с заявками на вывод
// средств и голосованием.
type RequestHandler struct {
	requestService services.RequestService
}

// NewRequestHandler создает новый экземпляр RequestHandler.
func NewRequestHandler(rs services.RequestService) *RequestHandler {
	return &RequestHandler{requestService: rs}
}

// Create обрабатывает POST запрос на создание заявки на вывод.
// Требователем становится участник из контекста запроса.
func (h *RequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	memberID, ok := middleware.GetMemberIDFromContext(r.Context())
	if !ok {
		log.Printf("[RequestHandler:Create] Не удалось получить идентификатор участника из контекста")
		writeError(w, http.StatusInternalServerError, "internal", "Внутренняя ошибка сервера")
		return
	}

	var req models.WithdrawalRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[RequestHandler:Create] Ошибка декодирования запроса: %v", err)
		writeError(w, http.StatusBadRequest, "bad_request", "Неверный формат запроса")
		return
	}

	vaultID := chi.URLParam(r, "vaultID")
	request, err := h.requestService.CreateRequest(r.Context(), vaultID, memberID, req.Amount, req.Purpose)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, request)
}

// List обрабатывает GET запрос на список заявок хранилища.
// Параметр status опционален.
func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	vaultID := chi.URLParam(r, "vaultID")
	status := models.RequestStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "bad_request", "Неизвестный статус заявки")
		return
	}

	requests, err := h.requestService.ListRequests(r.Context(), vaultID, status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

// Get обрабатывает GET запрос на получение заявки по ID.
func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	request, err := h.requestService.GetRequest(r.Context(), requestID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

// Vote обрабатывает POST запрос на голосование по заявке.
// Отложенное исполнение (кворум собран, средств не хватает) - не ошибка:
// возвращается 202 Accepted с признаком deferred.
func (h *RequestHandler) Vote(w http.ResponseWriter, r *http.Request) {
	memberID, ok := middleware.GetMemberIDFromContext(r.Context())
	if !ok {
		log.Printf("[RequestHandler:Vote] Не удалось получить идентификатор участника из контекста")
		writeError(w, http.StatusInternalServerError, "internal", "Внутренняя ошибка сервера")
		return
	}

	var req models.VoteRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[RequestHandler:Vote] Ошибка декодирования запроса: %v", err)
		writeError(w, http.StatusBadRequest, "bad_request", "Неверный формат запроса")
		return
	}

	requestID := chi.URLParam(r, "requestID")
	result, err := h.requestService.Vote(r.Context(), requestID, memberID, req.Decision)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status := http.StatusOK
	if result.Deferred {
		status = http.StatusAccepted
	}
	writeJSON(w, status, models.VoteResponse{
		Request:  result.Request,
		Executed: result.Executed,
		Deferred: result.Deferred,
	})
}
