// Package security hashes and checks the shared operator password with argon2id.
package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/mosly/envelope-stock/pkg/config"
)

// ErrInvalidHash signals a malformed argon2id hash string.
var ErrInvalidHash = errors.New("invalid argon2id hash")

const hashPrefix = "$argon2id$v=19$"

// ArgonParams are the cost parameters encoded in each hash.
type ArgonParams struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLen     uint32
	KeyLen      uint32
}

// ParamsFromConfig clamps configured costs to the range we accept.
func ParamsFromConfig(cfg config.PasswordConfig) ArgonParams {
	return ArgonParams{
		Memory:      uint32(clamp(cfg.ArgonMemoryKB, 8, 512*1024)),
		Time:        uint32(clamp(cfg.ArgonTime, 1, 10)),
		Parallelism: uint8(clamp(cfg.ArgonParallelism, 1, 255)),
		SaltLen:     uint32(clamp(cfg.ArgonSaltLen, 8, 64)),
		KeyLen:      uint32(clamp(cfg.ArgonKeyLen, 16, 64)),
	}
}

// Hash is a decoded PHC-style argon2id string.
type Hash struct {
	Params ArgonParams
	salt   []byte
	key    []byte
}

// HashPassword returns the encoded argon2id hash of password.
func HashPassword(password string, cfg config.PasswordConfig) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	params := ParamsFromConfig(cfg)
	salt := make([]byte, params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	h := Hash{Params: params, salt: salt, key: derive(password, salt, params)}
	return h.String(), nil
}

// VerifyPassword reports whether password matches encoded in constant time.
func VerifyPassword(password, encoded string) (bool, error) {
	h, err := ParseHash(encoded)
	if err != nil {
		return false, err
	}
	return h.Matches(password), nil
}

// NeedsRehash reports whether encoded was produced with weaker costs than cfg.
func NeedsRehash(encoded string, cfg config.PasswordConfig) bool {
	h, err := ParseHash(encoded)
	if err != nil {
		return true
	}
	want := ParamsFromConfig(cfg)
	return h.Params.Memory < want.Memory || h.Params.Time < want.Time || h.Params.KeyLen < want.KeyLen
}

// ParseHash decodes "$argon2id$v=19$m=..,t=..,p=..$salt$key".
func ParseHash(encoded string) (*Hash, error) {
	rest, ok := strings.CutPrefix(encoded, hashPrefix)
	if !ok {
		return nil, ErrInvalidHash
	}
	parts := strings.Split(rest, "$")
	if len(parts) != 3 {
		return nil, ErrInvalidHash
	}

	var params ArgonParams
	if _, err := fmt.Sscanf(parts[0], "m=%d,t=%d,p=%d", &params.Memory, &params.Time, &params.Parallelism); err != nil {
		return nil, ErrInvalidHash
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrInvalidHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, ErrInvalidHash
	}
	if params.Memory == 0 || params.Time == 0 || params.Parallelism == 0 || len(salt) == 0 || len(key) == 0 {
		return nil, ErrInvalidHash
	}
	params.SaltLen = uint32(len(salt))
	params.KeyLen = uint32(len(key))
	return &Hash{Params: params, salt: salt, key: key}, nil
}

// Matches recomputes the key for password and compares in constant time.
func (h *Hash) Matches(password string) bool {
	return subtle.ConstantTimeCompare(h.key, derive(password, h.salt, h.Params)) == 1
}

func (h *Hash) String() string {
	return fmt.Sprintf("%sm=%d,t=%d,p=%d$%s$%s", hashPrefix,
		h.Params.Memory, h.Params.Time, h.Params.Parallelism,
		base64.RawStdEncoding.EncodeToString(h.salt),
		base64.RawStdEncoding.EncodeToString(h.key))
}

func derive(password string, salt []byte, params ArgonParams) []byte {
	return argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Parallelism, params.KeyLen)
}

func clamp(value, lo, hi int) int {
	return max(lo, min(value, hi))
}
