// Пакет testutil — каталог и хранилище фильтров в памяти для тестов HTTP-слоя.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/arturkryukov/artstore/workstation/internal/domain/filters"
	"github.com/arturkryukov/artstore/workstation/internal/domain/model"
	"github.com/arturkryukov/artstore/workstation/internal/repository"
	"github.com/arturkryukov/artstore/workstation/internal/service"
)

// MemDirectory — каталог пользователей в памяти.
// Реализует service.UserSource и service.UserWriter.
type MemDirectory struct {
	mu    sync.Mutex
	users []model.User
	err   error
}

// NewMemDirectory создаёт каталог с копией users.
func NewMemDirectory(users ...model.User) *MemDirectory {
	return &MemDirectory{users: append([]model.User(nil), users...)}
}

// List возвращает страницу отфильтрованных пользователей.
func (m *MemDirectory) List(_ context.Context, f filters.UserFilters, now time.Time, limit, offset int) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return service.Page(filters.Filter(f, m.users, now), limit, offset), nil
}

// Count возвращает количество отфильтрованных пользователей.
func (m *MemDirectory) Count(_ context.Context, f filters.UserFilters, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	return len(filters.Filter(f, m.users, now)), nil
}

// Upsert заменяет пользователя с тем же ID или добавляет нового.
func (m *MemDirectory) Upsert(_ context.Context, u *model.User) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.users {
		if m.users[i].ID == u.ID {
			m.users[i] = *u
			return false, nil
		}
	}
	m.users = append(m.users, *u)
	return true, nil
}

// InTx выполняет fn без транзакции, напрямую над каталогом.
func (m *MemDirectory) InTx(_ context.Context, fn func(service.UserWriter) error) error {
	return fn(m)
}

// SetErr задаёт ошибку, возвращаемую List и Count (nil — сброс).
func (m *MemDirectory) SetErr(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// MemFilterStore — хранилище фильтров владельцев в памяти.
type MemFilterStore struct {
	mu    sync.Mutex
	saved map[string]filters.UserFilters
}

// NewMemFilterStore создаёт пустое хранилище.
func NewMemFilterStore() *MemFilterStore {
	return &MemFilterStore{saved: make(map[string]filters.UserFilters)}
}

// Get возвращает repository.ErrNotFound, если владелец ничего не сохранял.
func (m *MemFilterStore) Get(_ context.Context, owner string) (filters.UserFilters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.saved[owner]
	if !ok {
		return filters.UserFilters{}, repository.ErrNotFound
	}
	return f, nil
}

// Save сохраняет фильтры владельца.
func (m *MemFilterStore) Save(_ context.Context, owner string, f filters.UserFilters) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[owner] = f
	return nil
}

// SampleUsers — четыре пользователя: два клиента (один INACTIVE), команда, администратор (INACTIVE).
func SampleUsers(now time.Time) []model.User {
	return []model.User{
		{ID: "1", Username: "client1", Email: "client1@example.com", Role: model.RoleClient, Status: model.StatusActive,
			Department: "Sales", Source: model.SourceKeycloak, CreatedAt: now.Add(-time.Hour)},
		{ID: "2", Username: "client2", Email: "client2@example.com", Role: model.RoleClient, Status: model.StatusInactive,
			Source: model.SourceKeycloak, CreatedAt: now.Add(-10 * 24 * time.Hour)},
		{ID: "3", Username: "team1", Email: "team1@example.com", Role: model.RoleTeam, Status: model.StatusActive,
			Department: "Design", Source: model.SourceKeycloak, CreatedAt: now.Add(-40 * 24 * time.Hour)},
		{ID: "4", Username: "admin1", Email: "admin1@example.com", Role: model.RoleAdmin, Status: model.StatusInactive,
			Source: model.SourceKeycloak, CreatedAt: now.Add(-2 * time.Hour)},
	}
}
