// Package pagination implements keyset paging over the movement ledger. A
// cursor is the last seq a caller saw plus the filter it was issued under.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100

	cursorPrefix = "seq:"
)

// ErrInvalidCursor wraps every cursor decoding failure.
var ErrInvalidCursor = errors.New("invalid cursor")

type Params struct {
	Limit  int
	Cursor string
}

// Cursor points at the last ledger sequence number returned. Scope is the
// filter the cursor was issued for; reusing it under another filter fails.
type Cursor struct {
	Seq   int64
	Scope string
}

// NormalizeLimit clamps limit into (0, MaxLimit], using DefaultLimit for zero.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// LimitWithBuffer asks for one extra row to learn whether a next page exists.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

func EncodeCursor(cursor Cursor) string {
	payload := cursorPrefix + strconv.FormatInt(cursor.Seq, 10)
	if cursor.Scope != "" {
		payload += "|" + cursor.Scope
	}
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

// ParseCursor decodes value. A blank value is the first page and yields nil.
func ParseCursor(value string) (*Cursor, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	raw, ok := strings.CutPrefix(string(decoded), cursorPrefix)
	if !ok {
		return nil, fmt.Errorf("%w: unknown format", ErrInvalidCursor)
	}
	seqPart, scope, _ := strings.Cut(raw, "|")
	seq, err := strconv.ParseInt(seqPart, 10, 64)
	if err != nil || seq <= 0 {
		return nil, fmt.Errorf("%w: bad sequence %q", ErrInvalidCursor, seqPart)
	}
	return &Cursor{Seq: seq, Scope: scope}, nil
}

// ParseScopedCursor is ParseCursor plus a check that the cursor belongs to scope.
func ParseScopedCursor(value, scope string) (*Cursor, error) {
	cursor, err := ParseCursor(value)
	if err != nil || cursor == nil {
		return cursor, err
	}
	if cursor.Scope != scope {
		return nil, fmt.Errorf("%w: issued for a different filter", ErrInvalidCursor)
	}
	return cursor, nil
}

// Page trims rows fetched with LimitWithBuffer back to the requested size and,
// when more rows remain, encodes the cursor after the last one kept.
func Page[T any](rows []T, limit int, scope string, seqOf func(T) int64) ([]T, string) {
	limit = NormalizeLimit(limit)
	if len(rows) <= limit {
		return rows, ""
	}
	rows = rows[:limit]
	return rows, EncodeCursor(Cursor{Seq: seqOf(rows[limit-1]), Scope: scope})
}
