package protect

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aabbtree77/headless/internal/httpx"
)

type IPRateLimiterConfig struct {
	Enable      bool
	MaxRequests int
	Window      time.Duration
}

type ipWindow struct {
	start time.Time
	count int
}

// IPRateGuard throttles login attempts per client address. Each client's
// window opens on its first attempt; expired windows are pruned lazily.
type IPRateGuard struct {
	cfg IPRateLimiterConfig
	now func() time.Time

	mu      sync.Mutex
	clients map[string]*ipWindow
	pruned  time.Time
}

func NewIPRateGuard(cfg IPRateLimiterConfig) *IPRateGuard {
	return &IPRateGuard{
		cfg:     cfg,
		now:     time.Now,
		clients: make(map[string]*ipWindow),
	}
}

func (g *IPRateGuard) Name() string { return "login-throttle" }

func (g *IPRateGuard) Check(w http.ResponseWriter, r *http.Request) bool {
	if !g.cfg.Enable || g.cfg.MaxRequests <= 0 || g.cfg.Window <= 0 {
		return true
	}
	ip := GetIP(r)
	if ip == "" {
		return true
	}

	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.prune(now)

	win, ok := g.clients[ip]
	if !ok || now.Sub(win.start) >= g.cfg.Window {
		win = &ipWindow{start: now}
		g.clients[ip] = win
	}
	if win.count >= g.cfg.MaxRequests {
		retry := win.start.Add(g.cfg.Window).Sub(now)
		w.Header().Set("Retry-After", strconv.Itoa(int((retry+time.Second-1)/time.Second)))
		httpx.TooManyRequests(w)
		return false
	}
	win.count++
	return true
}

// prune drops expired windows at most once per window length.
func (g *IPRateGuard) prune(now time.Time) {
	if now.Sub(g.pruned) < g.cfg.Window {
		return
	}
	for ip, win := range g.clients {
		if now.Sub(win.start) >= g.cfg.Window {
			delete(g.clients, ip)
		}
	}
	g.pruned = now
}

// GetIP returns the client address. The first X-Forwarded-For hop wins,
// since the platform is expected to sit behind a trusted proxy.
func GetIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return ""
	}
	return host
}
