package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argon2Version = 19
	saltLength    = 16
	keyLength     = 32
)

// Params are the Argon2id cost parameters.
type Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
}

// DefaultParams is the OWASP minimum for Argon2id (19 MiB, 2 passes, 1 lane).
var DefaultParams = Params{MemoryKiB: 19456, Iterations: 2, Parallelism: 1}

// Hasher hashes and verifies short-lived secrets (OTP codes, refresh tokens) with Argon2id.
// Records are self-describing PHC strings, so parameters can change without invalidating
// existing rows. Callers must not log or persist the plaintext.
type Hasher struct {
	params Params
}

// NewHasher returns a Hasher with the given parameters. Zero fields take DefaultParams values.
func NewHasher(p Params) *Hasher {
	if p.MemoryKiB == 0 {
		p.MemoryKiB = DefaultParams.MemoryKiB
	}
	if p.Iterations == 0 {
		p.Iterations = DefaultParams.Iterations
	}
	if p.Parallelism == 0 {
		p.Parallelism = DefaultParams.Parallelism
	}
	return &Hasher{params: p}
}

// Hash returns $argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<key_b64> with a fresh salt.
func (h *Hasher) Hash(secret string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}
	key := argon2.IDKey([]byte(secret), salt, h.params.Iterations, h.params.MemoryKiB, h.params.Parallelism, keyLength)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Version,
		h.params.MemoryKiB,
		h.params.Iterations,
		h.params.Parallelism,
		b64.EncodeToString(salt),
		b64.EncodeToString(key),
	), nil
}

// Verify reports whether secret matches record. Malformed records and records whose
// cost is far above the configured cost are treated as a mismatch.
func (h *Hasher) Verify(secret, record string) bool {
	params, salt, expected, ok := decode(record)
	if !ok || !h.withinBounds(params) {
		return false
	}
	key := argon2.IDKey([]byte(secret), salt, params.Iterations, params.MemoryKiB, params.Parallelism, uint32(len(expected))) // #nosec G115 -- bounded by decode
	return subtle.ConstantTimeCompare(key, expected) == 1
}

func (h *Hasher) withinBounds(got Params) bool {
	return got.MemoryKiB <= h.params.MemoryKiB*2 &&
		got.Iterations <= h.params.Iterations*2 &&
		uint32(got.Parallelism) <= uint32(h.params.Parallelism)*2
}

func decode(record string) (Params, []byte, []byte, bool) {
	parts := strings.Split(record, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" || parts[2] != "v=19" {
		return Params{}, nil, nil, false
	}
	var mem, it, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &it, &par); err != nil {
		return Params{}, nil, nil, false
	}
	if mem == 0 || it == 0 || par == 0 || par > 255 {
		return Params{}, nil, nil, false
	}
	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil || len(salt) < 8 || len(salt) > 64 {
		return Params{}, nil, nil, false
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil || len(key) < 16 || len(key) > 128 {
		return Params{}, nil, nil, false
	}
	return Params{MemoryKiB: mem, Iterations: it, Parallelism: uint8(par)}, salt, key, true
}
