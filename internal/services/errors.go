package services

import "errors"

// Ошибки сервисного слоя. Каждая отклоненная команда возвращает конкретный
// вид ошибки, а не общий сбой: клиент должен уметь объяснить участнику,
// почему его действие не было принято. Ошибки валидации не оставляют
// частичных изменений и не порождают записей журнала.
var (
	// ErrInvalidConfiguration - некорректные параметры хранилища
	// (пустое имя, дубликаты участников, кворум вне границ).
	ErrInvalidConfiguration = errors.New("некорректная конфигурация хранилища")
	// ErrInvalidAmount - сумма операции должна быть положительной.
	ErrInvalidAmount = errors.New("некорректная сумма операции")
	// ErrVaultNotFound - хранилище не найдено.
	ErrVaultNotFound = errors.New("хранилище не найдено")
	// ErrRequestNotFound - заявка не найдена.
	ErrRequestNotFound = errors.New("заявка не найдена")
	// ErrNotMember - актор не является участником хранилища.
	ErrNotMember = errors.New("актор не является участником хранилища")
	// ErrDuplicateVote - участник уже голосовал по этой заявке.
	ErrDuplicateVote = errors.New("участник уже голосовал по этой заявке")
	// ErrInsufficientFunds - недостаточно средств для списания.
	ErrInsufficientFunds = errors.New("недостаточно средств в хранилище")
	// ErrAlreadyTerminal - заявка уже в терминальном статусе, голос не засчитан.
	ErrAlreadyTerminal = errors.New("заявка уже завершена")
	// ErrInvalidDecision - решение должно быть approve или reject.
	ErrInvalidDecision = errors.New("некорректное решение по заявке")
	// ErrStorageUnavailable - хранилище данных недоступно, операция
	// прервана целиком без частичных изменений.
	ErrStorageUnavailable = errors.New("хранилище данных недоступно")
)
