package security

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestTokenProvider_IssuePairSharesSessionAndIssueTime(t *testing.T) {
	p := NewTestTokenProvider()
	pair, err := p.IssuePair("u1", LevelUser, "s1")
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" || pair.AccessToken == pair.RefreshToken {
		t.Fatal("pair should hold two distinct non-empty tokens")
	}
	access, err := p.Parse(pair.AccessToken, LevelUser, KindAccess)
	if err != nil {
		t.Fatalf("Parse access: %v", err)
	}
	refresh, err := p.Parse(pair.RefreshToken, LevelUser, KindRefresh)
	if err != nil {
		t.Fatalf("Parse refresh: %v", err)
	}
	if access.SessionID != "s1" || refresh.SessionID != "s1" {
		t.Errorf("sid: access=%q refresh=%q, want s1", access.SessionID, refresh.SessionID)
	}
	if access.PrincipalID() != "u1" || refresh.PrincipalID() != "u1" {
		t.Errorf("sub: access=%q refresh=%q", access.PrincipalID(), refresh.PrincipalID())
	}
	if !access.IssuedAtTime().Equal(refresh.IssuedAtTime()) || !access.IssuedAtTime().Equal(pair.IssuedAt) {
		t.Errorf("iat differs: access=%v refresh=%v pair=%v", access.IssuedAtTime(), refresh.IssuedAtTime(), pair.IssuedAt)
	}
	if !pair.RefreshExpiresAt.After(pair.AccessExpiresAt) {
		t.Error("refresh should outlive access")
	}
	if !access.Complete() {
		t.Error("issued claims should be complete")
	}
}

func TestTokenProvider_IssuedAtKeepsMilliseconds(t *testing.T) {
	tests := []time.Duration{
		0,
		time.Millisecond,
		123 * time.Millisecond,
		999*time.Millisecond + 999*time.Microsecond,
	}
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for _, offset := range tests {
		now := base.Add(offset)
		p := NewTestTokenProvider().WithClock(fixedClock(now))
		pair, err := p.IssuePair("u1", LevelUser, "s1")
		if err != nil {
			t.Fatalf("IssuePair: %v", err)
		}
		want := now.Truncate(time.Millisecond)
		if !pair.IssuedAt.Equal(want) {
			t.Errorf("pair iat at +%v = %v, want %v", offset, pair.IssuedAt, want)
		}
		claims, err := p.Parse(pair.AccessToken, LevelUser, KindAccess)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if !claims.IssuedAtTime().Equal(want) {
			t.Errorf("parsed iat at +%v = %v, want %v", offset, claims.IssuedAtTime(), want)
		}
	}
}

func TestTokenProvider_KindsAndLevelsDoNotCrossVerify(t *testing.T) {
	p := NewTestTokenProvider()
	pair, err := p.IssuePair("u1", LevelAdmin, "s1")
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	tests := []struct {
		name  string
		token string
		level Level
		kind  Kind
	}{
		{"access as refresh", pair.AccessToken, LevelAdmin, KindRefresh},
		{"refresh as access", pair.RefreshToken, LevelAdmin, KindAccess},
		{"admin token under user level", pair.AccessToken, LevelUser, KindAccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.Parse(tt.token, tt.level, tt.kind); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("err = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestTokenProvider_Expiry(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	p := NewTestTokenProvider().WithClock(fixedClock(t0))
	pair, err := p.IssuePair("u1", LevelUser, "s1")
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	later := p.WithClock(fixedClock(t0.Add(16 * time.Minute)))
	if _, err := later.Parse(pair.AccessToken, LevelUser, KindAccess); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired access err = %v, want ErrInvalidToken", err)
	}
	if _, err := later.Parse(pair.RefreshToken, LevelUser, KindRefresh); err != nil {
		t.Errorf("refresh should still be valid: %v", err)
	}
}

func TestTokenProvider_RejectsForeignTokens(t *testing.T) {
	p := NewTestTokenProvider()
	secrets, _ := NewTestAuthority().SecretsFor(LevelUser)
	now := time.Now()
	base := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "test-issuer",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		SessionID: "s1",
	}
	hs512, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, base).SignedString(secrets.Access)
	wrongIss := base
	wrongIss.Issuer = "someone-else"
	wrongIssTok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, wrongIss).SignedString(secrets.Access)
	noExp := base
	noExp.ExpiresAt = nil
	noExpTok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, noExp).SignedString(secrets.Access)
	good, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, base).SignedString(secrets.Access)
	goodParts := strings.Split(good, ".")
	otherParts := strings.Split(wrongIssTok, ".")
	tampered := goodParts[0] + "." + otherParts[1] + "." + goodParts[2]

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not.a.jwt"},
		{"empty", ""},
		{"other algorithm", hs512},
		{"wrong issuer", wrongIssTok},
		{"no expiry", noExpTok},
		{"tampered signature", tampered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.Parse(tt.token, LevelUser, KindAccess); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("err = %v, want ErrInvalidToken", err)
			}
		})
	}
	if _, err := p.Parse(good, LevelUser, KindAccess); err != nil {
		t.Errorf("control token should verify: %v", err)
	}
}

func TestTokenProvider_IncompleteClaimsStillParse(t *testing.T) {
	p := NewTestTokenProvider()
	secrets, _ := NewTestAuthority().SecretsFor(LevelUser)
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u1",
		Issuer:    "test-issuer",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secrets.Access)
	got, err := p.Parse(tok, LevelUser, KindAccess)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Complete() {
		t.Error("claims without iat and sid should not be complete")
	}
	if !got.IssuedAtTime().IsZero() {
		t.Error("missing iat should read as zero time")
	}
}

func TestTokenProvider_UnknownLevel(t *testing.T) {
	p := NewTestTokenProvider()
	if _, err := p.IssuePair("u1", Level("ROOT"), "s1"); !errors.Is(err, ErrUnknownSignatureLevel) {
		t.Errorf("IssuePair err = %v, want ErrUnknownSignatureLevel", err)
	}
	if _, err := p.Parse("x", Level("ROOT"), KindAccess); !errors.Is(err, ErrUnknownSignatureLevel) {
		t.Errorf("Parse err = %v, want ErrUnknownSignatureLevel", err)
	}
}
