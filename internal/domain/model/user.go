// Пакет model — доменные модели Workstation.
package model

import (
	"strings"
	"time"
)

// Статусы пользователя в каталоге.
const (
	// StatusActive — аккаунт включён в IdP.
	StatusActive = "ACTIVE"
	// StatusInactive — аккаунт выключен и ждёт подтверждения администратором.
	StatusInactive = "INACTIVE"
)

// Роли пользователя в каталоге (в порядке возрастания привилегий).
const (
	RoleClient = "CLIENT"
	RoleTeam   = "TEAM"
	RoleAdmin  = "ADMIN"
)

// Источники записей каталога.
const (
	// SourceKeycloak — запись создана синхронизацией с Keycloak.
	SourceKeycloak = "keycloak"
	// SourceImport — запись загружена из XLSX-файла.
	SourceImport = "import"
)

// User — запись каталога пользователей.
// Каталог принадлежит слою данных: агрегатор метрик и фильтры только читают записи.
type User struct {
	// ID — уникальный идентификатор (Keycloak sub или UUID для импорта)
	ID string
	// Username — имя пользователя
	Username string
	// Email — адрес электронной почты
	Email string
	// FirstName — имя
	FirstName string
	// LastName — фамилия
	LastName string
	// Role — роль в каталоге (CLIENT, TEAM, ADMIN); может быть пустой
	Role string
	// Status — ACTIVE или INACTIVE; любое другое значение не попадает в счётчики статусов
	Status string
	// Department — отдел (атрибут IdP или колонка импорта)
	Department string
	// Groups — группы пользователя в IdP
	Groups []string
	// Source — источник записи (keycloak, import)
	Source string
	// CreatedAt — дата создания аккаунта
	CreatedAt time.Time
	// SyncedAt — время последней синхронизации записи
	SyncedAt time.Time
}

// DisplayName возвращает «Имя Фамилия», а если они пусты — username.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}
