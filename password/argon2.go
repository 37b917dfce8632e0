// Package password wraps Argon2id key derivation behind a bounded
// worker pool. Hashes use the PHC string format so parameters travel
// with the digest and can be upgraded transparently.
package password

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	algorithmID = "argon2id"

	// Floors, not defaults. Memory-hardness is the whole point of the
	// primitive; construction refuses weaker parameters.
	minMemoryKB    uint32 = 64 * 1024
	minIterations  uint32 = 3
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16

	minPasswordBytes = 8
	maxPasswordBytes = 512
)

var (
	// ErrPasswordLength is returned when the plaintext is outside the
	// accepted byte range.
	ErrPasswordLength = errors.New("password length out of range")
	// ErrHashMalformed is returned when a stored digest cannot be
	// parsed. Accounts provisioned without a local password carry an
	// empty digest and land here on verify.
	ErrHashMalformed = errors.New("malformed password hash")
)

// Config holds Argon2id parameters plus the hashing concurrency cap.
type Config struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// MaxConcurrent bounds in-flight derivations. Argon2id is memory-
	// and CPU-hard on purpose; without a cap a burst of logins can
	// starve every other request in the process.
	MaxConcurrent int
}

// DefaultConfig returns parameters at the security floors with a small
// derivation pool.
func DefaultConfig() Config {
	return Config{
		Memory:        minMemoryKB,
		Iterations:    minIterations,
		Parallelism:   2,
		SaltLength:    16,
		KeyLength:     32,
		MaxConcurrent: 4,
	}
}

// Hasher derives and verifies Argon2id digests. Safe for concurrent use.
type Hasher struct {
	config Config
	slots  chan struct{}
}

// NewHasher validates cfg against the security floors and returns a
// Hasher.
func NewHasher(cfg Config) (*Hasher, error) {
	if cfg.Memory < minMemoryKB {
		return nil, fmt.Errorf("argon2 memory must be >= %d KiB", minMemoryKB)
	}
	if cfg.Iterations < minIterations {
		return nil, fmt.Errorf("argon2 iterations must be >= %d", minIterations)
	}
	if cfg.Parallelism < minParallelism {
		return nil, errors.New("argon2 parallelism must be >= 1")
	}
	if cfg.SaltLength < minSaltLength {
		return nil, errors.New("argon2 salt length must be >= 16")
	}
	if cfg.KeyLength < minKeyLength {
		return nil, errors.New("argon2 key length must be >= 16")
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}

	return &Hasher{
		config: cfg,
		slots:  make(chan struct{}, cfg.MaxConcurrent),
	}, nil
}

// Hash derives a PHC-encoded digest of the plaintext. Blocks while the
// worker pool is saturated; honors ctx cancellation while waiting.
func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	if len(password) < minPasswordBytes || len(password) > maxPasswordBytes {
		return "", ErrPasswordLength
	}

	if err := h.acquire(ctx); err != nil {
		return "", err
	}
	defer h.release()

	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		h.config.Iterations,
		h.config.Memory,
		h.config.Parallelism,
		h.config.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.config.Memory,
		h.config.Iterations,
		h.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether plaintext matches the encoded digest, in
// constant time over the derived key.
func (h *Hasher) Verify(ctx context.Context, password, encoded string) (bool, error) {
	params, err := parsePHC(encoded)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrHashMalformed, err)
	}

	if err := h.acquire(ctx); err != nil {
		return false, err
	}
	defer h.release()

	computed := argon2.IDKey(
		[]byte(password),
		params.salt,
		params.iterations,
		params.memory,
		params.parallelism,
		uint32(len(params.key)),
	)

	return subtle.ConstantTimeCompare(computed, params.key) == 1, nil
}

// NeedsRehash reports whether the stored digest was derived with
// weaker parameters than the current configuration.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	params, err := parsePHC(encoded)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrHashMalformed, err)
	}

	if h.config.Memory > params.memory {
		return true, nil
	}
	if h.config.Iterations > params.iterations {
		return true, nil
	}
	if uint32(len(params.key)) != h.config.KeyLength {
		return true, nil
	}
	return false, nil
}

func (h *Hasher) acquire(ctx context.Context) error {
	select {
	case h.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hasher) release() {
	<-h.slots
}

type phcParams struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func parsePHC(encoded string) (*phcParams, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, errors.New("invalid PHC format")
	}
	if parts[1] != algorithmID {
		return nil, errors.New("unsupported hash algorithm")
	}

	version, ok := strings.CutPrefix(parts[2], "v=")
	if !ok {
		return nil, errors.New("missing argon2 version")
	}
	ver, err := strconv.Atoi(version)
	if err != nil || ver != argon2.Version {
		return nil, errors.New("unsupported argon2 version")
	}

	params := &phcParams{}
	for _, pair := range strings.Split(parts[3], ",") {
		k, v, found := strings.Cut(pair, "=")
		if !found {
			return nil, errors.New("invalid parameter entry")
		}
		switch k {
		case "m":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return nil, errors.New("invalid memory parameter")
			}
			params.memory = uint32(n)
		case "t":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return nil, errors.New("invalid iterations parameter")
			}
			params.iterations = uint32(n)
		case "p":
			n, err := strconv.ParseUint(v, 10, 8)
			if err != nil {
				return nil, errors.New("invalid parallelism parameter")
			}
			params.parallelism = uint8(n)
		default:
			return nil, errors.New("unsupported parameter")
		}
	}
	if params.memory == 0 || params.iterations == 0 || params.parallelism == 0 {
		return nil, errors.New("missing argon2 parameters")
	}

	if params.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, errors.New("invalid salt encoding")
	}
	if len(params.salt) < int(minSaltLength) {
		return nil, errors.New("invalid salt length")
	}
	if params.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, errors.New("invalid key encoding")
	}
	if len(params.key) < int(minKeyLength) {
		return nil, errors.New("invalid key length")
	}

	return params, nil
}
