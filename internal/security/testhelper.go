package security

import "time"

// NewTestAuthority returns a SignatureAuthority with fixed, distinct secrets per level and kind.
// For unit tests only. Callers must not use in production.
func NewTestAuthority() *SignatureAuthority {
	a, err := NewSignatureAuthority(map[Level]Secrets{
		LevelUser:  {Access: []byte("test-user-access-secret"), Refresh: []byte("test-user-refresh-secret")},
		LevelAdmin: {Access: []byte("test-admin-access-secret"), Refresh: []byte("test-admin-refresh-secret")},
	})
	if err != nil {
		panic(err)
	}
	return a
}

// NewTestTokenProvider returns a TokenProvider over NewTestAuthority with a 15m access and 24h refresh TTL.
// For unit tests only. Callers must not use in production.
func NewTestTokenProvider() *TokenProvider {
	return NewTokenProvider(NewTestAuthority(), "test-issuer", 15*time.Minute, 24*time.Hour)
}
