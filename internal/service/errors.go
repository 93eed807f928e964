// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrUnknownView — неизвестный сохранённый вид.
	ErrUnknownView = errors.New("неизвестный вид: допустимые значения — all, clients, team, admins")
	// ErrDirectoryUnavailable — каталог пользователей недоступен.
	ErrDirectoryUnavailable = errors.New("каталог пользователей недоступен")
	// ErrIDPUnavailable — Identity Provider (Keycloak) недоступен.
	ErrIDPUnavailable = errors.New("Identity Provider недоступен")
)
