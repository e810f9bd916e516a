package fieldcrypt

import "testing"

func TestSearchHashNormalizes(t *testing.T) {
	base := SearchHash("user@example.com")
	if SearchHash("  USER@Example.COM  ") != base {
		t.Fatal("search hash must be case- and whitespace-insensitive")
	}
	if SearchHash("other@example.com") == base {
		t.Fatal("distinct values must not collide")
	}
	if len(base) != 64 {
		t.Fatalf("expected hex sha256, got %d chars", len(base))
	}
}

func TestHashEqual(t *testing.T) {
	h := SearchHash("user@example.com")
	if !HashEqual(h, h) {
		t.Fatal("equal hashes must compare equal")
	}
	if HashEqual(h, SearchHash("nope@example.com")) {
		t.Fatal("different hashes must not compare equal")
	}
}
