package model

import "time"

// SyncState — состояние синхронизации каталога (одна строка в БД).
// Хранится в таблице sync_state (id = 1, всегда одна запись).
type SyncState struct {
	// ID — всегда 1
	ID int
	// LastDirectorySyncAt — время последней синхронизации каталога с Keycloak
	LastDirectorySyncAt *time.Time
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// DirectorySyncResult — результат синхронизации каталога с Keycloak.
type DirectorySyncResult struct {
	// TotalKeycloak — количество пользователей, полученных из Keycloak
	TotalKeycloak int
	// Upserted — записей создано или обновлено
	Upserted int
	// Removed — записей удалено (пропали из Keycloak)
	Removed int
	// Failed — пользователей, которых не удалось обработать
	Failed int
	// StartedAt — время начала синхронизации
	StartedAt time.Time
	// CompletedAt — время завершения синхронизации
	CompletedAt time.Time
}

// ImportResult — результат импорта каталога из XLSX.
type ImportResult struct {
	// Rows — обработано строк данных
	Rows int
	// Imported — записей создано или обновлено
	Imported int
	// Errors — ошибки по строкам (номер строки в листе → описание)
	Errors map[int]string
}
