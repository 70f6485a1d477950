package websocket

import (
	"net/http"
	"sync"
	"sync/atomic"
)

// LimitReason describes why a connection was rejected.
type LimitReason string

const (
	LimitReasonGlobal LimitReason = "global_limit"
	LimitReasonPerIP  LimitReason = "per_ip_limit"
)

// HTTPStatus is the handshake status returned for a rejection.
func (r LimitReason) HTTPStatus() int {
	if r == LimitReasonPerIP {
		return http.StatusTooManyRequests
	}
	return http.StatusServiceUnavailable
}

// ConnectionLimits caps concurrent relay connections per instance and per source IP.
type ConnectionLimits struct {
	current atomic.Int64
	max     int64

	mu     sync.Mutex
	ips    map[string]int
	maxPer int
}

func NewConnectionLimits(globalMax int64, perIPMax int) *ConnectionLimits {
	return &ConnectionLimits{
		max:    globalMax,
		ips:    make(map[string]int),
		maxPer: perIPMax,
	}
}

// Acquire reserves a slot for ip. Every successful Acquire must be paired with Release.
func (l *ConnectionLimits) Acquire(ip string) (bool, LimitReason) {
	if !l.acquireGlobal() {
		return false, LimitReasonGlobal
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ips[ip] >= l.maxPer {
		l.current.Add(-1)
		return false, LimitReasonPerIP
	}
	l.ips[ip]++
	return true, ""
}

func (l *ConnectionLimits) acquireGlobal() bool {
	for {
		current := l.current.Load()
		if current >= l.max {
			return false
		}
		if l.current.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (l *ConnectionLimits) Release(ip string) {
	l.mu.Lock()
	if count := l.ips[ip]; count > 0 {
		if count == 1 {
			delete(l.ips, ip)
		} else {
			l.ips[ip] = count - 1
		}
	}
	l.mu.Unlock()

	l.current.Add(-1)
}

func (l *ConnectionLimits) Current() int64 {
	return l.current.Load()
}

func (l *ConnectionLimits) CountForIP(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ips[ip]
}
