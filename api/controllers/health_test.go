package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mosly/envelope-stock/pkg/config"
	"github.com/mosly/envelope-stock/pkg/db"
)

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type statsPinger struct{ pingerFunc }

func (statsPinger) Stats() db.PoolStats { return db.PoolStats{Open: 2, InUse: 1, Idle: 1, MaxOpen: 10} }

func TestHealthLive(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}
	w := httptest.NewRecorder()

	HealthLive(cfg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dev", w.Header().Get("X-Mosly-Env"))
}

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}
	ok := pingerFunc(func(context.Context) error { return nil })
	down := pingerFunc(func(context.Context) error { return errors.New("connection refused") })

	w := httptest.NewRecorder()
	HealthReady(cfg, nil, ok, ok).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	HealthReady(cfg, nil, ok, down).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "redis")
	assert.NotContains(t, w.Body.String(), "database")
}

func TestHealthReadyReportsPoolStats(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}
	database := statsPinger{pingerFunc(func(context.Context) error { return nil })}

	w := httptest.NewRecorder()
	HealthReady(cfg, nil, database, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"database_pool":{"open":2,"in_use":1,"idle":1,"max_open":10}`)
}
