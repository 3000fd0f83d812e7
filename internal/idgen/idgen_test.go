package idgen

import (
	"regexp"
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if !strings.HasPrefix(id, DefaultPrefix) {
		t.Errorf("Generate() = %q, want prefix %q", id, DefaultPrefix)
	}
	if got, want := len(id), len(DefaultPrefix)+Length; got != want {
		t.Errorf("Generate() length = %d, want %d (id=%q)", got, want, id)
	}

	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(DefaultPrefix) + `[a-zA-Z0-9]+$`)
	for i := 0; i < 100; i++ {
		id, err := Generate()
		if err != nil {
			t.Fatalf("Generate() error on iteration %d: %v", i, err)
		}
		if !pattern.MatchString(id) {
			t.Fatalf("Generate() = %q, unexpected characters", id)
		}
	}
}

func TestGenerateWithPrefix(t *testing.T) {
	id, err := GenerateWithPrefix("item-")
	if err != nil {
		t.Fatalf("GenerateWithPrefix() error: %v", err)
	}
	if !strings.HasPrefix(id, "item-") {
		t.Errorf("GenerateWithPrefix(%q) = %q", "item-", id)
	}
	if got, want := len(id), len("item-")+Length; got != want {
		t.Errorf("length = %d, want %d", got, want)
	}
}

func TestNewNonce(t *testing.T) {
	n, err := NewNonce()
	if err != nil {
		t.Fatalf("NewNonce() error: %v", err)
	}
	if len(n) != NonceLength {
		t.Errorf("NewNonce() length = %d, want %d", len(n), NonceLength)
	}
	if strings.HasPrefix(n, DefaultPrefix) {
		t.Errorf("NewNonce() = %q, should not carry an ID prefix", n)
	}
}

func TestGenerate_Uniqueness(t *testing.T) {
	const count = 10_000
	seen := make(map[string]struct{}, count)
	for i := 0; i < count; i++ {
		id, err := Generate()
		if err != nil {
			t.Fatalf("Generate() error on iteration %d: %v", i, err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate ID after %d generations: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}
