package relayapi

import (
	"sync"
	"time"
)

type clientBucket struct {
	tokens     float64
	refilledAt time.Time
	lastSeen   time.Time
}

// clientRateLimiter enforces a per-minute request budget per client IP. Each
// client gets a token bucket holding one minute's budget; tokens stream back
// continuously at budget/60 per second. When the tracked set is full the
// longest-idle client is dropped to make room.
type clientRateLimiter struct {
	mu sync.Mutex

	perMinute  int
	maxClients int
	buckets    map[string]clientBucket
}

func newClientRateLimiter(perMinute, maxClients int) *clientRateLimiter {
	return &clientRateLimiter{
		perMinute:  perMinute,
		maxClients: maxClients,
		buckets:    make(map[string]clientBucket),
	}
}

// Limit reports the configured per-minute budget, as advertised to clients.
func (l *clientRateLimiter) Limit() int { return l.perMinute }

func (l *clientRateLimiter) Allow(ip string, now time.Time) bool {
	if l == nil {
		return true
	}
	if ip == "" {
		ip = "unknown"
	}
	budget := float64(l.perMinute)

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[ip]
	if !ok {
		if len(l.buckets) >= l.maxClients {
			l.evictIdlest()
		}
		l.buckets[ip] = clientBucket{
			tokens:     budget - 1,
			refilledAt: now,
			lastSeen:   now,
		}
		return true
	}

	if elapsed := now.Sub(b.refilledAt).Seconds(); elapsed > 0 {
		b.tokens += elapsed * budget / 60.0
		if b.tokens > budget {
			b.tokens = budget
		}
	}
	b.refilledAt = now
	b.lastSeen = now

	if b.tokens < 1 {
		l.buckets[ip] = b
		return false
	}
	b.tokens -= 1
	l.buckets[ip] = b
	return true
}

func (l *clientRateLimiter) evictIdlest() {
	var idlestIP string
	var idlestAt time.Time
	first := true
	for ip, b := range l.buckets {
		if first || b.lastSeen.Before(idlestAt) {
			idlestIP = ip
			idlestAt = b.lastSeen
			first = false
		}
	}
	if idlestIP != "" {
		delete(l.buckets, idlestIP)
	}
}
