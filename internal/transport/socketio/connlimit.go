package socketio

import (
	"net"
	"sync"

	"github.com/samber/lo"
)

// ClientLimiter caps how many remote (non-loopback) clients may control the
// player at once. Loopback clients are never limited. When a new remote
// client would exceed the cap, the longest-connected remote client is
// evicted.
type ClientLimiter struct {
	mu        sync.Mutex
	maxRemote int
	remote    []string          // oldest first
	addrs     map[string]string // client id -> address
}

// NewClientLimiter creates a limiter admitting up to maxRemote remote
// clients. maxRemote <= 0 disables the cap.
func NewClientLimiter(maxRemote int) *ClientLimiter {
	return &ClientLimiter{
		maxRemote: maxRemote,
		addrs:     make(map[string]string),
	}
}

// Admit registers a client and returns the id of the client to evict, or
// "" when nobody has to go.
func (l *ClientLimiter) Admit(id, addr string) (evict string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, known := l.addrs[id]; known {
		return ""
	}
	l.addrs[id] = addr
	if isLoopback(addr) {
		return ""
	}

	l.remote = append(l.remote, id)
	if l.maxRemote <= 0 || len(l.remote) <= l.maxRemote {
		return ""
	}
	evict = l.remote[0]
	l.remote = l.remote[1:]
	delete(l.addrs, evict)
	return evict
}

// Release forgets a disconnected client.
func (l *ClientLimiter) Release(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, known := l.addrs[id]; !known {
		return
	}
	delete(l.addrs, id)
	l.remote = lo.Without(l.remote, id)
}

// Remote returns the number of remote clients currently admitted.
func (l *ClientLimiter) Remote() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.remote)
}

// isLoopback accepts bare IPs and host:port pairs.
func isLoopback(addr string) bool {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	ip := net.ParseIP(addr)
	return ip != nil && ip.IsLoopback()
}
