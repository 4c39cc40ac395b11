package topic_test

import (
	"errors"
	"testing"

	"digest/internal/topic"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "AI", "ai"},
		{"trims", "  ai ", "ai"},
		{"collapses whitespace", "machine\t learning \n news", "machine learning news"},
		{"already canonical", "space", "space"},
		{"unicode fold", "Straße", "strasse"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := topic.Normalize(tc.in)
			if err != nil {
				t.Fatalf("Normalize(%q) error: %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	once, err := topic.Normalize("  Quantum   Computing ")
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}
	twice, err := topic.Normalize(once)
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}
	if once != twice {
		t.Fatalf("normalization not idempotent: %q vs %q", once, twice)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	for _, in := range []string{"", "   ", "\t\n"} {
		if _, err := topic.Normalize(in); !errors.Is(err, topic.ErrEmpty) {
			t.Fatalf("Normalize(%q): expected ErrEmpty, got %v", in, err)
		}
	}
}
