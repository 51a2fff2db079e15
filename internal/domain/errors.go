package domain

import "errors"

var (
	// ErrNotFound возвращается когда запись не найдена
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict возвращается при несовпадении state_version
	ErrVersionConflict = errors.New("state version conflict")

	// ErrPositionTypeMismatch возвращается при покупке в позицию
	// с другим типом счета
	ErrPositionTypeMismatch = errors.New("position type mismatch")

	// ErrInsufficientQuantity возвращается при продаже большего
	// количества, чем есть в позиции
	ErrInsufficientQuantity = errors.New("insufficient position quantity")

	// ErrInvalidDecision возвращается когда решение оракула не прошло
	// структурную проверку
	ErrInvalidDecision = errors.New("invalid decision payload")

	// ErrEmptyPatch возвращается при обновлении состояния без полей
	ErrEmptyPatch = errors.New("empty state patch")
)
