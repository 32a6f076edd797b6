package security

import "time"

// Test secrets for unit tests only. Do not use in production.
const (
	testAccessSecret  = "test-access-secret-0123456789abcdef"
	testRefreshSecret = "test-refresh-secret-0123456789abcdef"
)

// NewTestTokenProvider returns a TokenProvider using fixed test secrets.
// For unit tests only. Callers must not use in production.
func NewTestTokenProvider() *TokenProvider {
	return NewTokenProvider(TokenConfig{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		Issuer:        "test-issuer",
		Audience:      "test-audience",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
	})
}

// NewTestHasher returns a Hasher with minimal Argon2 cost so tests run quickly.
func NewTestHasher() *Hasher {
	return NewHasher(Params{MemoryKiB: 64, Iterations: 1, Parallelism: 1})
}
