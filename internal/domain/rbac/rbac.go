// Пакет rbac — роли каталога и их определение по группам IdP.
// Роли упорядочены: CLIENT < TEAM < ADMIN.
// Итоговая роль пользователя — максимальная из совпавших групп.
package rbac

import "github.com/arturkryukov/artstore/workstation/internal/domain/model"

// roleWeight — вес роли для сравнения.
// Чем выше вес, тем больше привилегий.
var roleWeight = map[string]int{
	model.RoleClient: 1,
	model.RoleTeam:   2,
	model.RoleAdmin:  3,
}

// GroupMapping — соответствие групп IdP ролям каталога.
type GroupMapping struct {
	AdminGroups  []string
	TeamGroups   []string
	ClientGroups []string
}

// maxRole возвращает роль с максимальными привилегиями из двух.
func maxRole(a, b string) string {
	if roleWeight[a] >= roleWeight[b] {
		return a
	}
	return b
}

// HighestRole возвращает максимальную роль из набора.
// Если набор пуст — возвращает пустую строку.
func HighestRole(roles []string) string {
	if len(roles) == 0 {
		return ""
	}
	highest := roles[0]
	for _, r := range roles[1:] {
		highest = maxRole(highest, r)
	}
	return highest
}

// MapGroupsToRole определяет роль пользователя по его группам IdP.
// Возвращает максимальную роль из всех совпадений.
// Если ни одна группа не совпала — CLIENT.
func MapGroupsToRole(groups []string, m GroupMapping) string {
	adminSet := toSet(m.AdminGroups)
	teamSet := toSet(m.TeamGroups)
	clientSet := toSet(m.ClientGroups)

	var roles []string
	for _, g := range groups {
		if adminSet[g] {
			roles = append(roles, model.RoleAdmin)
		}
		if teamSet[g] {
			roles = append(roles, model.RoleTeam)
		}
		if clientSet[g] {
			roles = append(roles, model.RoleClient)
		}
	}

	if role := HighestRole(roles); role != "" {
		return role
	}
	return model.RoleClient
}

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	_, ok := roleWeight[role]
	return ok
}

// CanView — может ли роль открыть рабочее место (TEAM и выше).
func CanView(role string) bool {
	return roleWeight[role] >= roleWeight[model.RoleTeam]
}

// CanManage — может ли роль импортировать и синхронизировать каталог.
func CanManage(role string) bool {
	return role == model.RoleAdmin
}

// toSet конвертирует срез строк в map для быстрого поиска.
func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, item := range items {
		s[item] = true
	}
	return s
}
