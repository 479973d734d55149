// Package ratelimit throttles outgoing calls to a remote instance with a
// token bucket.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket реализует алгоритм token bucket для ограничения частоты запросов
type TokenBucket struct {
	capacity     int           // Максимальное количество токенов
	tokens       int           // Текущее количество токенов
	refillRate   time.Duration // Интервал пополнения
	refillAmount int           // Количество токенов при пополнении
	lastRefill   time.Time
	now          func() time.Time
	mu           sync.Mutex

	allowed  int64
	rejected int64
}

// Stats хранит счётчики лимитера
type Stats struct {
	Allowed  int64
	Rejected int64
}

// New создаёт лимитер на perSecond запросов в секунду.
// Возвращает nil при perSecond <= 0: nil-лимитер пропускает всё.
func New(perSecond float64) *TokenBucket {
	if perSecond <= 0 {
		return nil
	}
	capacity := int(perSecond)
	if capacity < 1 {
		capacity = 1
	}
	return NewTokenBucket(capacity, time.Duration(float64(time.Second)/perSecond), 1)
}

// NewTokenBucket создаёт лимитер с явными параметрами.
// refillInterval: интервал пополнения, refillAmount: токенов за интервал.
func NewTokenBucket(capacity int, refillInterval time.Duration, refillAmount int) *TokenBucket {
	return &TokenBucket{
		capacity:     capacity,
		tokens:       capacity,
		refillRate:   refillInterval,
		refillAmount: refillAmount,
		lastRefill:   time.Now(),
		now:          time.Now,
	}
}

// TryAcquire пытается получить токен. Если токенов нет, возвращает false
// и время до следующего пополнения.
func (b *TokenBucket) TryAcquire() (bool, time.Duration) {
	if b == nil {
		return true, 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	elapsed := now.Sub(b.lastRefill)
	if elapsed >= b.refillRate {
		intervals := int(elapsed / b.refillRate)
		b.tokens += intervals * b.refillAmount
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		// Остаток сохраняем для точности
		b.lastRefill = now.Add(-elapsed % b.refillRate)
	}

	if b.tokens > 0 {
		b.tokens--
		b.allowed++
		return true, 0
	}

	b.rejected++
	return false, b.refillRate - (now.Sub(b.lastRefill) % b.refillRate)
}

// Wait блокирует до получения токена или отмены контекста
func (b *TokenBucket) Wait(ctx context.Context) error {
	for {
		ok, wait := b.TryAcquire()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Stats возвращает текущие счётчики
func (b *TokenBucket) Stats() Stats {
	if b == nil {
		return Stats{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{Allowed: b.allowed, Rejected: b.rejected}
}
