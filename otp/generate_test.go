package otp

import (
	"strings"
	"testing"
)

func TestGenerateNumeric(t *testing.T) {
	code, err := GenerateNumeric(6)
	if err != nil {
		t.Fatalf("GenerateNumeric failed: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6 digits, got %q", code)
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			t.Errorf("unexpected character %q in %q", c, code)
		}
	}
}

func TestGenerateAlphanumeric(t *testing.T) {
	code, err := GenerateAlphanumeric(32)
	if err != nil {
		t.Fatalf("GenerateAlphanumeric failed: %v", err)
	}
	if len(code) != 32 {
		t.Fatalf("expected 32 characters, got %q", code)
	}
	if strings.ContainsAny(code, "IO01") {
		t.Errorf("expected no ambiguous characters in %q", code)
	}
	for _, c := range code {
		if !strings.ContainsRune(alphanumeric, c) {
			t.Errorf("unexpected character %q", c)
		}
	}
}

func TestGenerate_InvalidLength(t *testing.T) {
	for _, n := range []int{0, -1} {
		if _, err := GenerateNumeric(n); err == nil {
			t.Errorf("expected error for length %d", n)
		}
	}
}

// Every digit should appear in a large sample with roughly equal frequency.
func TestGenerateNumeric_Distribution(t *testing.T) {
	const draws = 20000
	code, err := GenerateNumeric(draws)
	if err != nil {
		t.Fatalf("GenerateNumeric failed: %v", err)
	}

	var counts [10]int
	for _, c := range code {
		counts[c-'0']++
	}
	expected := draws / 10
	for d, n := range counts {
		if n < expected*8/10 || n > expected*12/10 {
			t.Errorf("digit %d drawn %d times, expected about %d", d, n, expected)
		}
	}
}
