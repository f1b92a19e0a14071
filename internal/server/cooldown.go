package server

import (
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"netbuy-ranker/internal/observability"
)

// CallerHeader identifies the caller for cooldown purposes. It is honored only on
// requests arriving from a trusted proxy; otherwise the remote host is the caller.
const CallerHeader = "X-Caller-ID"

// Cooldown admits one request per caller per period. Rejected requests do not reset
// the period.
type Cooldown struct {
	period  time.Duration
	message string
	trusted []netip.Prefix
	now     func() time.Time

	mu       sync.Mutex
	limiters map[string]*callerLimiter
}

type callerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewCooldown creates a cooldown of the given period. A zero period admits everything.
// Requests from a trusted address may name their caller with CallerHeader.
func NewCooldown(period time.Duration, trusted ...netip.Prefix) *Cooldown {
	return &Cooldown{
		period:   period,
		message:  cooldownMessage(period),
		trusted:  trusted,
		now:      time.Now,
		limiters: make(map[string]*callerLimiter),
	}
}

func cooldownMessage(period time.Duration) string {
	return "Please wait " + seconds(period) + " seconds before using this command again."
}

func seconds(d time.Duration) string {
	return strconv.Itoa(int(d.Round(time.Second) / time.Second))
}

// Allow reports whether caller may proceed now.
func (c *Cooldown) Allow(caller string) bool {
	if c.period <= 0 {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.evictLocked(now)

	cl, ok := c.limiters[caller]
	if !ok {
		cl = &callerLimiter{limiter: rate.NewLimiter(rate.Every(c.period), 1)}
		c.limiters[caller] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

// evictLocked drops callers idle for longer than the period; their bucket is full again anyway.
func (c *Cooldown) evictLocked(now time.Time) {
	if len(c.limiters) < 1024 {
		return
	}
	for k, cl := range c.limiters {
		if now.Sub(cl.lastSeen) > c.period {
			delete(c.limiters, k)
		}
	}
}

// Middleware rejects callers still in their cooldown with 429.
func (c *Cooldown) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.Allow(c.callerID(r)) {
			observability.RecordRefreshRejected()
			w.Header().Set("Retry-After", seconds(c.period))
			writeError(w, c.message, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (c *Cooldown) callerID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if id := strings.TrimSpace(r.Header.Get(CallerHeader)); id != "" && c.fromTrusted(host) {
		return id
	}
	return host
}

func (c *Cooldown) fromTrusted(host string) bool {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range c.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
