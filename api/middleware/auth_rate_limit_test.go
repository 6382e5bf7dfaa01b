package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mosly/envelope-stock/pkg/config"
	pkgerrors "github.com/mosly/envelope-stock/pkg/errors"
)

type fakeRateStore struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeRateStore() *fakeRateStore {
	return &fakeRateStore{counts: make(map[string]int64)}
}

func (f *fakeRateStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeRateStore) RateLimitKey(scope string) string {
	return "rl:" + scope
}

func loginRequest(remote string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/session", strings.NewReader(`{"password":"secret"}`))
	req.RemoteAddr = remote
	return req
}

func limited(policy RateLimitPolicy, store rateCounter) http.Handler {
	return RateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestRateLimitAllowsUnderLimit(t *testing.T) {
	store := newFakeRateStore()
	handler := limited(RateLimitPolicy{Name: "login", Window: time.Minute, Limit: 2}, store)

	for i, remaining := range []string{"1", "0"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, loginRequest("1.2.3.4:5678"))
		assert.Equal(t, http.StatusOK, rec.Code, "attempt %d", i+1)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, remaining, rec.Header().Get("X-RateLimit-Remaining"))
	}
	assert.Equal(t, int64(2), store.counts["rl:login:ip:1.2.3.4"])
}

func TestRateLimitRejectsOverLimit(t *testing.T) {
	store := newFakeRateStore()
	handler := limited(RateLimitPolicy{Name: "login", Window: 90 * time.Second, Limit: 1}, store)

	handler.ServeHTTP(httptest.NewRecorder(), loginRequest("9.9.9.9:1"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, loginRequest("9.9.9.9:2"))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeRateLimit), errorCode(t, rec.Body.Bytes()))
	assert.Equal(t, "90", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	other := httptest.NewRecorder()
	handler.ServeHTTP(other, loginRequest("8.8.8.8:1"))
	assert.Equal(t, http.StatusOK, other.Code, "other clients keep their own window")
}

func TestRateLimitForwardedForOnlyWhenTrusted(t *testing.T) {
	req := func() *http.Request {
		r := loginRequest("10.0.0.1:1")
		r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		return r
	}

	store := newFakeRateStore()
	limited(RateLimitPolicy{Name: "login", Window: time.Minute, Limit: 5}, store).ServeHTTP(httptest.NewRecorder(), req())
	assert.Equal(t, int64(1), store.counts["rl:login:ip:10.0.0.1"])

	store = newFakeRateStore()
	limited(RateLimitPolicy{Name: "login", Window: time.Minute, Limit: 5, TrustProxy: true}, store).ServeHTTP(httptest.NewRecorder(), req())
	assert.Equal(t, int64(1), store.counts["rl:login:ip:203.0.113.7"])
}

func TestClientAddrIgnoresGarbageHeaders(t *testing.T) {
	r := loginRequest("10.0.0.1:1")
	r.Header.Set("X-Forwarded-For", "not-an-ip")
	r.Header.Set("X-Real-IP", "2001:db8::1")
	assert.Equal(t, "2001:db8::1", clientAddr(r, true))

	r.Header.Del("X-Real-IP")
	assert.Equal(t, "10.0.0.1", clientAddr(r, true))
}

func TestRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	store := newFakeRateStore()
	handler := limited(LoginRateLimit(config.AuthRateLimitConfig{LoginWindow: 0, LoginIPLimit: 1}), store)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, loginRequest("1.1.1.1:1"))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Empty(t, store.counts)
}

func TestRateLimitFailsClosedOnStoreError(t *testing.T) {
	store := newFakeRateStore()
	store.err = errors.New("connection refused")
	rec := httptest.NewRecorder()
	limited(RateLimitPolicy{Name: "login", Window: time.Minute, Limit: 5}, store).ServeHTTP(rec, loginRequest("1.1.1.1:1"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
