package models

// DTO для HTTP API. Хэндлеры декодируют запросы в эти структуры
// и кодируют из них ответы.

// CreateVaultRequest - тело запроса на создание хранилища.
type CreateVaultRequest struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
	Quorum  int      `json:"quorum"`
}

// DepositRequest - тело запроса на пополнение хранилища.
type DepositRequest struct {
	Amount int64 `json:"amount"`
}

// WithdrawalRequestBody - тело запроса на создание заявки на вывод.
type WithdrawalRequestBody struct {
	Amount  int64  `json:"amount"`
	Purpose string `json:"purpose"`
}

// VoteRequestBody - тело запроса на голосование по заявке.
type VoteRequestBody struct {
	Decision VoteDecision `json:"decision"`
}

// VoteResponse - результат голосования.
// Deferred означает, что кворум собран, но исполнение отложено
// из-за нехватки средств (заявка остается открытой).
type VoteResponse struct {
	Request  *WithdrawalRequest `json:"request"`
	Executed bool               `json:"executed"`
	Deferred bool               `json:"deferred"`
}

// ArchiveResponse - результат выгрузки журнала в архив.
type ArchiveResponse struct {
	ObjectKey string `json:"object_key"`
	Entries   int    `json:"entries"`
}

// ErrorResponse - унифицированное тело ошибки API.
// Code - машиночитаемый вид ошибки, чтобы клиент мог объяснить участнику,
// почему его действие не было принято.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
