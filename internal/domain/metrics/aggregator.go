// aggregator.go — мемоизация ComputeStats.
// Ключ — xxhash последовательности (id, status, role) коллекции.
// Хранилище — hashicorp/golang-lru/v2/expirable.
package metrics

import (
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/artstore/workstation/internal/domain/model"
)

// Prometheus-метрики кэша показателей.
var (
	statsCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_stats_cache_hits_total",
		Help: "Общее количество попаданий в кэш показателей.",
	})
	statsCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_stats_cache_misses_total",
		Help: "Общее количество промахов кэша показателей.",
	})
)

// Aggregator — ComputeStats с кэшем по отпечатку коллекции.
// Безопасен для конкурентного использования.
type Aggregator struct {
	cache *expirable.LRU[uint64, QuickStatsData]
	now   func() time.Time
}

// NewAggregator создаёт агрегатор.
// size — максимальное количество отпечатков, ttl — время жизни записи.
func NewAggregator(size int, ttl time.Duration) *Aggregator {
	return &Aggregator{
		cache: expirable.NewLRU[uint64, QuickStatsData](size, nil, ttl),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Compute возвращает показатели коллекции.
// При попадании в кэш RefreshedAt выставляется на момент вызова.
func (a *Aggregator) Compute(users []model.User) QuickStatsData {
	now := a.now()
	key := Fingerprint(users)

	if cached, ok := a.cache.Get(key); ok {
		statsCacheHitsTotal.Inc()
		cached.RefreshedAt = now
		return cached
	}
	statsCacheMissesTotal.Inc()

	stats := ComputeStatsAt(users, now)
	a.cache.Add(key, stats)
	return stats
}

// Len возвращает количество записей в кэше.
func (a *Aggregator) Len() int {
	return a.cache.Len()
}

// Fingerprint — xxhash по (id, status, role) каждой записи.
// Разделители исключают совпадение при склейке соседних полей.
func Fingerprint(users []model.User) uint64 {
	d := xxhash.New()
	for i := range users {
		_, _ = d.WriteString(users[i].ID)
		_, _ = d.Write([]byte{0x1f})
		_, _ = d.WriteString(users[i].Status)
		_, _ = d.Write([]byte{0x1f})
		_, _ = d.WriteString(users[i].Role)
		_, _ = d.Write([]byte{0x1e})
	}
	return d.Sum64()
}
