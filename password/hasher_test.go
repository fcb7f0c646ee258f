package password

import (
	"strings"
	"testing"
)

func testHasher(t *testing.T) *Hasher {
	t.Helper()

	hasher, err := NewHasher(Config{Cost: MinCost})
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}
	return hasher
}

func TestHashAndVerify(t *testing.T) {
	hasher := testHasher(t)

	digest, err := hasher.Hash("Str0ng&Secret")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(digest, "$2") {
		t.Fatalf("unexpected digest prefix: %s", digest)
	}

	if !hasher.Verify("Str0ng&Secret", digest) {
		t.Fatal("expected password verification to succeed")
	}
}

func TestVerifyWrongPassword(t *testing.T) {
	hasher := testHasher(t)

	digest, err := hasher.Hash("correct-Passw0rd!")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	if hasher.Verify("wrong-Passw0rd!", digest) {
		t.Fatal("expected wrong password verification to fail")
	}
}

func TestVerifySingleCharacterMutation(t *testing.T) {
	hasher := testHasher(t)

	const plaintext = "Str0ng&Secret"
	digest, err := hasher.Hash(plaintext)
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	for i := 0; i < len(plaintext); i++ {
		mutated := []byte(plaintext)
		mutated[i] ^= 0x01
		if hasher.Verify(string(mutated), digest) {
			t.Fatalf("mutation at index %d verified", i)
		}
	}
}

func TestHashSaltsPerCall(t *testing.T) {
	hasher := testHasher(t)

	first, err := hasher.Hash("Str0ng&Secret")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	second, err := hasher.Hash("Str0ng&Secret")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct digests for repeated hashing")
	}
}

func TestVerifyMalformedDigest(t *testing.T) {
	hasher := testHasher(t)

	for _, digest := range []string{"", "not-a-digest", "$2b$10$truncated"} {
		if hasher.Verify("whatever", digest) {
			t.Fatalf("malformed digest %q verified", digest)
		}
	}
}

func TestNewHasherRejectsCostOutOfRange(t *testing.T) {
	for _, cost := range []int{0, 9, 16, 31} {
		if _, err := NewHasher(Config{Cost: cost}); err == nil {
			t.Fatalf("expected error for cost %d", cost)
		}
	}
}

func TestNeedsRehash(t *testing.T) {
	low, err := NewHasher(Config{Cost: MinCost})
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}
	high, err := NewHasher(Config{Cost: MinCost + 2})
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	digest, err := low.Hash("Str0ng&Secret")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	if !high.NeedsRehash(digest) {
		t.Fatal("expected rehash for digest below configured cost")
	}
	if low.NeedsRehash(digest) {
		t.Fatal("unexpected rehash for digest at configured cost")
	}
	if high.NeedsRehash("garbage") {
		t.Fatal("unexpected rehash for unreadable digest")
	}
}
