package middleware

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/phrazzld/genqueue/internal/api/shared"
)

// SubmitLimiter applies a token-bucket limit per authenticated subject.
// Requests without a subject are keyed by remote host.
type SubmitLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewSubmitLimiter allows perSecond sustained requests per subject with the
// given burst. A zero rate disables limiting; a non-positive burst is 1.
func NewSubmitLimiter(perSecond float64, burst int) *SubmitLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &SubmitLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Limit rejects requests over the subject's budget with 429.
func (l *SubmitLimiter) Limit(next http.Handler) http.Handler {
	if l.limit <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := shared.GetSubject(r.Context())
		if !ok {
			key = remoteHost(r)
		}
		if !l.limiter(key).Allow() {
			w.Header().Set("Retry-After", "1")
			shared.RespondWithError(w, r, http.StatusTooManyRequests, "Too many job submissions")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *SubmitLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	return lim
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
