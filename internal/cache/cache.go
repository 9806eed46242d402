// Package cache хранит отрендеренные страницы в памяти процесса с фиксированным TTL.
//
// Запись в ленту кэш не сбрасывает: свежая страница может отставать от базы
// не больше чем на TTL. Сбросить всё сразу можно через Clear.
package cache

import (
	"context"
	"sync"
	"time"
)

const DefaultTTL = 20 * time.Second

type entry struct {
	payload   []byte
	expiresAt time.Time
}

type Cache struct {
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry
	mu      sync.Mutex
}

type Option func(*Cache)

// WithClock подменяет источник времени, в тестах - детерминированными часами.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) TTL() time.Duration { return c.ttl }

// Get возвращает содержимое только свежей записи. Просроченная запись
// удаляется при обращении.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.payload, true
}

func (c *Cache) Set(key string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{payload: payload, expiresAt: c.now().Add(c.ttl)}
}

// GetOrCompute отдает свежую запись или пересчитывает её через compute.
// Ошибка compute ничего не кэширует.
func (c *Cache) GetOrCompute(key string, compute func() ([]byte, error)) ([]byte, bool, error) {
	if payload, ok := c.Get(key); ok {
		return payload, true, nil
	}
	payload, err := compute()
	if err != nil {
		return nil, false, err
	}
	c.Set(key, payload)
	return payload, false, nil
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]entry)
}

// Sweep удаляет просроченные записи и возвращает их количество.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Run периодически чистит просроченные записи, пока жив ctx.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = c.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}
