package hash

import "testing"

func TestHashAndCheck(t *testing.T) {
	h, err := HashPassword("setup-secret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPasswordHash("setup-secret", h) {
		t.Fatal("expected match")
	}
	if CheckPasswordHash("other", h) {
		t.Fatal("expected mismatch")
	}
	if CheckPasswordHash("setup-secret", "not-a-hash") {
		t.Fatal("garbage hash must not match")
	}
}
