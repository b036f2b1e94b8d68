// Package ratelimit is a per-IP token-bucket limiter for the REST surface,
// adapted from the teacher's rate_limit.go: same bucket/limiter/bypass-list
// shapes, generalized to take its config from internal/config instead of
// reading os.Getenv at package init.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TokenBucket is a single IP's rate limiter.
type TokenBucket struct {
	tokens         float64
	capacity       float64
	refillRate     float64 // tokens per second
	lastRefillTime time.Time
	mu             sync.Mutex
}

func NewTokenBucket(capacity, refillRate float64) *TokenBucket {
	return &TokenBucket{
		tokens:         capacity,
		capacity:       capacity,
		refillRate:     refillRate,
		lastRefillTime: time.Now(),
	}
}

func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefillTime).Seconds()
	tb.tokens += elapsed * tb.refillRate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefillTime = now

	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true
	}
	return false
}

// IPLimiter hands out one TokenBucket per client IP.
type IPLimiter struct {
	ips   map[string]*TokenBucket
	mu    sync.Mutex
	rate  float64
	burst float64
}

func NewIPLimiter(rate, burst float64) *IPLimiter {
	return &IPLimiter{
		ips:   make(map[string]*TokenBucket),
		rate:  rate,
		burst: burst,
	}
}

func (l *IPLimiter) GetLimiter(ip string) *TokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.ips[ip]
	if !exists {
		limiter = NewTokenBucket(l.burst, l.rate)
		l.ips[ip] = limiter
	}
	return limiter
}

// BypassList exempts trusted IPs/CIDRs/'*' from rate limiting and, reused,
// from the admin-panel IP allowlist.
type BypassList struct {
	bypassAll bool
	exactIPs  map[string]struct{}
	cidrs     []*net.IPNet
}

func ParseBypassList(raw string) BypassList {
	list := BypassList{
		exactIPs: make(map[string]struct{}),
		cidrs:    make([]*net.IPNet, 0),
	}

	for _, token := range strings.Split(raw, ",") {
		entry := strings.TrimSpace(token)
		if entry == "" {
			continue
		}
		if entry == "*" {
			list.bypassAll = true
			continue
		}
		if strings.Contains(entry, "/") {
			_, network, err := net.ParseCIDR(entry)
			if err != nil {
				continue
			}
			list.cidrs = append(list.cidrs, network)
			continue
		}

		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		list.exactIPs[ip.String()] = struct{}{}
	}

	return list
}

func (l BypassList) Contains(rawIP string) bool {
	if l.bypassAll {
		return true
	}

	ip := ParseIP(rawIP)
	if ip == nil {
		return false
	}
	if _, ok := l.exactIPs[ip.String()]; ok {
		return true
	}
	for _, network := range l.cidrs {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// Middleware wraps next with per-IP rate limiting, bypassing IPs in bypass.
func Middleware(limiter *IPLimiter, bypass BypassList, log *zap.Logger, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r, false)
		if bypass.Contains(ip) {
			next(w, r)
			return
		}
		if !limiter.GetLimiter(ip).Allow() {
			http.Error(w, "429 Too Many Requests", http.StatusTooManyRequests)
			log.Warn("rate limit exceeded", zap.String("ip", ip))
			return
		}
		next(w, r)
	}
}

// ClientIP resolves the caller's address, honoring X-Real-IP/X-Forwarded-For
// only when trustProxy is set (the deployment sits behind a reverse proxy).
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			ips := strings.Split(forwarded, ",")
			return strings.TrimSpace(ips[0])
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func ParseIP(raw string) net.IP {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	if host, _, err := net.SplitHostPort(trimmed); err == nil {
		trimmed = host
	}
	if zoneIndex := strings.Index(trimmed, "%"); zoneIndex >= 0 {
		trimmed = trimmed[:zoneIndex]
	}

	return net.ParseIP(trimmed)
}
