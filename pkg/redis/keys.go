package redis

import "strings"

const defaultPrefix = "mosly"

// Keyspace builds the colon-separated keys used by each Redis concern.
// Empty parts are dropped so optional scopes never leave "::" behind.
type Keyspace struct {
	Prefix string
}

func (k Keyspace) join(kind string, parts ...string) string {
	prefix := strings.TrimSpace(k.Prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte(':')
	b.WriteString(kind)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

// IdempotencyKey stores the replayable response of one mutating request.
func (k Keyspace) IdempotencyKey(scope, id string) string {
	return k.join("idempotency", scope, id)
}

// RateLimitKey counts login attempts for scope.
func (k Keyspace) RateLimitKey(scope string) string {
	return k.join("rate_limit", scope)
}

// AccessSessionKey marks an issued access token as live.
func (k Keyspace) AccessSessionKey(accessID string) string {
	return k.join("session", "access", accessID)
}

// LockKey names the reconciliation lease and the cron worker lock.
func (k Keyspace) LockKey(parts ...string) string {
	return k.join("lock", parts...)
}

// CacheKey names short-lived read caches such as fetched order ranges.
func (k Keyspace) CacheKey(parts ...string) string {
	return k.join("cache", parts...)
}
