package models

import (
	"time"

	"github.com/lib/pq"
)

// Vault представляет общее хранилище средств с фиксированным составом
// участников и порогом подписей для вывода средств.
// Баланс хранится в минимальных единицах (int64), без плавающей точки.
type Vault struct {
	ID        string         `db:"id"         json:"id"`
	Name      string         `db:"name"       json:"name"`
	Members   pq.StringArray `db:"members"    json:"members"` // порядок = порядок вступления
	Quorum    int            `db:"quorum"     json:"quorum"`  // 1 <= Quorum <= len(Members)
	Balance   int64          `db:"balance"    json:"balance"` // минимальные единицы, всегда >= 0
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// IsMember проверяет, является ли указанный идентификатор участником хранилища.
func (v *Vault) IsMember(memberID string) bool {
	for _, m := range v.Members {
		if m == memberID {
			return true
		}
	}
	return false
}

// Clone возвращает глубокую копию хранилища.
// Используется репозиторием, чтобы не отдавать наружу внутреннее состояние.
func (v *Vault) Clone() *Vault {
	cp := *v
	cp.Members = append(pq.StringArray(nil), v.Members...)
	return &cp
}
