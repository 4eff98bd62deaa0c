package http

import (
	"bytes"
	"crypto/sha256"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"toolrent-backend/internal/config"
	"toolrent-backend/internal/logger"
	"toolrent-backend/internal/security"

	"github.com/gorilla/mux"
	"github.com/oklog/ulid/v2"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const (
	HeaderRequestID      = "X-Request-ID"
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"
)

// RequestID tags every request with a ULID, reusing a client supplied one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = ulid.Make().String()
		}
		w.Header().Set(HeaderRequestID, id)
		ctx := logger.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Logging records method, route, status and latency of every request.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.InfoContext(r.Context(), "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"route", routeName(r),
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// IPRateLimiter keeps a rate limiter for each client address. Limiters of
// addresses idle for longer than the cache expiry are dropped.
type IPRateLimiter struct {
	limiters *cache.Cache
	r        rate.Limit
	b        int
}

func NewIPRateLimiter(r rate.Limit, b int, idle time.Duration) *IPRateLimiter {
	return &IPRateLimiter{
		limiters: cache.New(idle, 2*idle),
		r:        r,
		b:        b,
	}
}

// GetLimiter returns the limiter for ip, creating it on first use.
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	if v, found := i.limiters.Get(ip); found {
		// Touch the entry so an active client keeps its limiter.
		i.limiters.SetDefault(ip, v)
		return v.(*rate.Limiter)
	}

	limiter := rate.NewLimiter(i.r, i.b)
	if err := i.limiters.Add(ip, limiter, cache.DefaultExpiration); err != nil {
		if v, found := i.limiters.Get(ip); found {
			return v.(*rate.Limiter)
		}
	}
	return limiter
}

// Len reports how many client addresses currently hold a limiter.
func (i *IPRateLimiter) Len() int {
	return i.limiters.ItemCount()
}

func (i *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !i.GetLimiter(clientIP(r)).Allow() {
			logger.WarnContext(r.Context(), "Rate limit exceeded", "client_ip", clientIP(r), "route", routeName(r))
			writeErrorBody(w, http.StatusTooManyRequests, errorBody{Code: "RATE_LIMITED", Error: "too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Auth enforces the security level configured for the matched route name.
func Auth(tm security.TokenManager) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			level := config.GetSecurityLevel(routeName(r))
			if level == config.SecurityPublic {
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r)
			if token == "" {
				writeErrorBody(w, http.StatusUnauthorized, errorBody{Code: "UNAUTHENTICATED", Error: "authorization token is not provided"})
				return
			}
			claims, err := tm.ValidateToken(token)
			if err != nil {
				writeErrorBody(w, http.StatusUnauthorized, errorBody{Code: "UNAUTHENTICATED", Error: err.Error()})
				return
			}
			if level == config.SecurityAdmin && !claims.IsAdmin() {
				writeErrorBody(w, http.StatusForbidden, errorBody{Code: "FORBIDDEN", Error: "admin role required"})
				return
			}

			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

type cachedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

// idempotencyEntry is stored under a key from the moment its first request
// starts. resp is nil while that request is still running.
type idempotencyEntry struct {
	fingerprint [sha256.Size]byte
	resp        *cachedResponse
}

// Idempotency replays the stored response of a successful POST carrying an
// Idempotency-Key the same caller has already used. Reusing a key with a
// different body is rejected with 422, and a retry that arrives while the
// first request is still running gets 409. Must run after Auth.
func Idempotency(store *cache.Cache, ttl time.Duration) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderIdempotencyKey)
			if r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				badRequest(w, "failed to read request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			caller := "anonymous"
			if c := ClaimsFromContext(r.Context()); c != nil {
				caller = c.MemberID.String()
			}
			cacheKey := caller + "|" + r.Method + "|" + r.URL.Path + "|" + key
			fingerprint := sha256.Sum256(body)

			for {
				if err := store.Add(cacheKey, idempotencyEntry{fingerprint: fingerprint}, ttl); err == nil {
					break
				}
				v, found := store.Get(cacheKey)
				if !found {
					// Expired or released between Add and Get.
					continue
				}
				existing := v.(idempotencyEntry)
				switch {
				case existing.fingerprint != fingerprint:
					writeErrorBody(w, http.StatusUnprocessableEntity, errorBody{Code: "IDEMPOTENCY_KEY_REUSED", Error: "idempotency key was used with a different request body"})
				case existing.resp == nil:
					writeErrorBody(w, http.StatusConflict, errorBody{Code: "IDEMPOTENCY_IN_PROGRESS", Error: "a request with this idempotency key is still in progress"})
				default:
					replay(w, existing.resp)
				}
				return
			}

			completed := false
			defer func() {
				if !completed {
					store.Delete(cacheKey)
				}
			}()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK, body: &bytes.Buffer{}}
			next.ServeHTTP(rec, r)

			// Only successful responses are replayed; errors may be retried.
			if rec.status >= 200 && rec.status < 300 {
				headers := w.Header().Clone()
				headers.Del(HeaderRequestID)
				store.Set(cacheKey, idempotencyEntry{
					fingerprint: fingerprint,
					resp:        &cachedResponse{status: rec.status, headers: headers, body: rec.body.Bytes()},
				}, ttl)
				completed = true
			}
		})
	}
}

func replay(w http.ResponseWriter, resp *cachedResponse) {
	for k, v := range resp.headers {
		w.Header()[k] = v
	}
	w.Header().Set(HeaderReplayed, "true")
	w.WriteHeader(resp.status)
	w.Write(resp.body)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	body   *bytes.Buffer
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.body != nil {
		r.body.Write(b)
	}
	return r.ResponseWriter.Write(b)
}

func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		return route.GetName()
	}
	return ""
}

func bearerToken(r *http.Request) string {
	token := r.Header.Get("Authorization")
	// Remove Bearer prefix if present
	if len(token) > 7 && strings.ToUpper(token[0:7]) == "BEARER " {
		token = token[7:]
	}
	return strings.TrimSpace(token)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
