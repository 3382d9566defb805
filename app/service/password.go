package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"go-auth-api/config"
)

// PasswordHasher wraps Argon2id with configurable cost parameters. Hashing is
// CPU-bound, so concurrent requests share a bounded set of worker slots
// instead of each burning a core at once.
type PasswordHasher struct {
	time        uint32
	memoryKiB   uint32
	parallelism uint8
	saltLength  uint32
	keyLength   uint32
	slots       chan struct{}
}

func NewPasswordHasher(cfg config.Argon2Config) *PasswordHasher {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &PasswordHasher{
		time:        cfg.Time,
		memoryKiB:   cfg.MemoryKiB,
		parallelism: cfg.Parallelism,
		saltLength:  cfg.SaltLength,
		keyLength:   cfg.KeyLength,
		slots:       make(chan struct{}, workers),
	}
}

// Hash derives an Argon2id key and returns it in the standard encoded form
// $argon2id$v=19$m=<KiB>,t=<iters>,p=<par>$<salt>$<key>.
func (h *PasswordHasher) Hash(ctx context.Context, password string) (string, error) {
	if err := h.acquire(ctx); err != nil {
		return "", err
	}
	defer h.release()

	salt := make([]byte, h.saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(password), salt, h.time, h.memoryKiB, h.parallelism, h.keyLength)

	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.memoryKiB,
		h.time,
		h.parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
	return encoded, nil
}

// Verify reports whether password matches the encoded hash. Mismatches and
// malformed hashes both report false; Verify never fails loudly on bad input.
func (h *PasswordHasher) Verify(ctx context.Context, password, encodedHash string) bool {
	memoryKiB, iterations, parallelism, salt, expected, err := decodeArgon2Hash(encodedHash)
	if err != nil {
		return false
	}

	if err := h.acquire(ctx); err != nil {
		return false
	}
	defer h.release()

	key := argon2.IDKey([]byte(password), salt, iterations, memoryKiB, parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(key, expected) == 1
}

func (h *PasswordHasher) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case h.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *PasswordHasher) release() {
	<-h.slots
}

func decodeArgon2Hash(encoded string) (memoryKiB, iterations uint32, parallelism uint8, salt, key []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return 0, 0, 0, nil, nil, fmt.Errorf("malformed argon2 hash")
	}

	var version int
	if _, err = fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return 0, 0, 0, nil, nil, fmt.Errorf("unsupported argon2 version")
	}

	var par uint32
	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memoryKiB, &iterations, &par); err != nil {
		return 0, 0, 0, nil, nil, fmt.Errorf("malformed argon2 parameters")
	}
	if memoryKiB == 0 || iterations == 0 || par == 0 || par > 255 {
		return 0, 0, 0, nil, nil, fmt.Errorf("invalid argon2 parameters")
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return 0, 0, 0, nil, nil, err
	}
	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return 0, 0, 0, nil, nil, err
	}
	if len(key) == 0 {
		return 0, 0, 0, nil, nil, fmt.Errorf("empty argon2 key")
	}

	return memoryKiB, iterations, uint8(par), salt, key, nil
}
