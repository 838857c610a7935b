package security

import (
	"errors"
	"testing"
)

func TestHasher_HashAndVerify(t *testing.T) {
	h := NewHasher(4)
	hash, err := h.Hash("secret123")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "" || hash == "secret123" {
		t.Fatalf("Hash returned %q", hash)
	}
	if !h.Verify("secret123", hash) {
		t.Fatal("Verify should accept the original secret")
	}
}

func TestHasher_VerifyWrongSecret(t *testing.T) {
	h := NewHasher(4)
	hash, _ := h.Hash("secret123")
	if h.Verify("wrong", hash) {
		t.Fatal("Verify with wrong secret should fail")
	}
}

func TestHasher_SaltedHashesDiffer(t *testing.T) {
	h := NewHasher(4)
	a, _ := h.Hash("123456")
	b, _ := h.Hash("123456")
	if a == b {
		t.Error("two hashes of the same secret should differ")
	}
	if !h.Verify("123456", a) || !h.Verify("123456", b) {
		t.Error("both hashes should verify")
	}
}

func TestHasher_EmptyInput(t *testing.T) {
	h := NewHasher(4)
	if _, err := h.Hash(""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Hash(\"\") err = %v, want ErrInvalidInput", err)
	}
}

func TestHasher_VerifyNeverPanics(t *testing.T) {
	h := NewHasher(4)
	tests := []struct {
		name           string
		secret, hashed string
	}{
		{"empty hash", "x", ""},
		{"empty secret", "", "$2a$04$abcdefghijklmnopqrstuu"},
		{"malformed hash", "x", "not-a-bcrypt-hash"},
		{"truncated hash", "x", "$2a$04$"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if h.Verify(tt.secret, tt.hashed) {
				t.Error("Verify should return false")
			}
		})
	}
}

func TestHasher_Cost(t *testing.T) {
	h := NewHasher(12)
	if h.Cost != 12 {
		t.Errorf("Cost want 12, got %d", h.Cost)
	}
	h0 := NewHasher(0)
	if h0.Cost < 4 {
		t.Errorf("zero cost should be clamped to at least MinCost, got %d", h0.Cost)
	}
	if NewHasher(99).Cost != 31 {
		t.Errorf("cost above max should clamp to 31")
	}
}
