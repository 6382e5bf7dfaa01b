package security_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/mosly/envelope-stock/pkg/config"
	"github.com/mosly/envelope-stock/pkg/security"
)

func testPasswordConfig() config.PasswordConfig {
	return config.PasswordConfig{
		ArgonMemoryKB:    32768,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := security.HashPassword("very-secure-password", testPasswordConfig())
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=32768,t=1,p=1$") {
		t.Fatalf("unexpected hash format %q", hash)
	}

	ok, err := security.VerifyPassword("very-secure-password", hash)
	if err != nil {
		t.Fatalf("VerifyPassword returned error for valid hash: %v", err)
	}
	if !ok {
		t.Fatal("VerifyPassword failed for the correct password")
	}

	ok, err = security.VerifyPassword("bogus-password", hash)
	if err != nil {
		t.Fatalf("VerifyPassword returned error for invalid password: %v", err)
	}
	if ok {
		t.Fatal("VerifyPassword returned true for incorrect password")
	}
}

func TestHashPasswordSaltsEachHash(t *testing.T) {
	first, err := security.HashPassword("same", testPasswordConfig())
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	second, err := security.HashPassword("same", testPasswordConfig())
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct salts")
	}
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	if _, err := security.HashPassword("", testPasswordConfig()); err == nil {
		t.Fatal("expected empty password error")
	}
}

func TestVerifyPasswordBadHash(t *testing.T) {
	cases := []string{
		"not-a-hash",
		"$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8,t=1,p=1$!!$aGFzaA",
	}
	for _, encoded := range cases {
		if _, err := security.VerifyPassword("irrelevant", encoded); !errors.Is(err, security.ErrInvalidHash) {
			t.Fatalf("expected ErrInvalidHash for %q, got %v", encoded, err)
		}
	}
}

func TestParseHashRoundTrip(t *testing.T) {
	encoded, err := security.HashPassword("round-trip", testPasswordConfig())
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	parsed, err := security.ParseHash(encoded)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.String() != encoded {
		t.Fatalf("re-encoding changed the hash:\n%s\n%s", parsed.String(), encoded)
	}
	if parsed.Params.Memory != 32768 || parsed.Params.KeyLen != 32 || parsed.Params.SaltLen != 16 {
		t.Fatalf("unexpected params %+v", parsed.Params)
	}
	if !parsed.Matches("round-trip") || parsed.Matches("round-trap") {
		t.Fatal("Matches disagrees with the password")
	}
}

func TestNeedsRehash(t *testing.T) {
	weak := testPasswordConfig()
	encoded, err := security.HashPassword("operator", weak)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if security.NeedsRehash(encoded, weak) {
		t.Fatal("hash made with the current params should not need a rehash")
	}

	stronger := weak
	stronger.ArgonMemoryKB = 65536
	if !security.NeedsRehash(encoded, stronger) {
		t.Fatal("expected rehash when memory cost increases")
	}
	if !security.NeedsRehash("garbage", weak) {
		t.Fatal("unparseable hashes always need a rehash")
	}
}
