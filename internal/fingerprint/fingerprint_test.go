package fingerprint

import (
	"testing"

	"github.com/knowit/knowit/internal/domain"
)

func TestNormalize(t *testing.T) {
	card := domain.Card{
		Front:   "  What is HTMX? \r\n",
		Back:    "A library for AJAX.",
		Context: "Web Development",
	}
	expected := "what is htmx?\na library for ajax.\nweb development"
	normalized := Normalize(card)

	if normalized != expected {
		t.Errorf("Expected normalized string to be '%s', but got '%s'", expected, normalized)
	}
}

func TestFingerprint(t *testing.T) {
	t.Run("generates correct digest", func(t *testing.T) {
		card := domain.Card{
			Front:   "Q",
			Back:    "A",
			Context: "C",
		}
		// SHA-256 of "q\na\nc"
		expected := "eb2456c1ee4f36305069dd0f63a30e92d5443129f5e8fd9a5ec490fbc4d4d8a2"
		got := Fingerprint(card)

		if got != expected {
			t.Errorf("Expected fingerprint '%s', but got '%s'", expected, got)
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		card1 := domain.Card{Front: "Test"}
		card2 := domain.Card{Front: "Test"}
		if Fingerprint(card1) != Fingerprint(card2) {
			t.Error("Expected fingerprints for identical cards to be the same")
		}
	})

	t.Run("normalization produces same digest", func(t *testing.T) {
		card1 := domain.Card{
			Front: "  what is go? ",
			Back:  "A programming language.",
		}
		card2 := domain.Card{
			Front: "What Is Go?",
			Back:  "A programming language.",
		}
		if Fingerprint(card1) != Fingerprint(card2) {
			t.Error("Expected fingerprints to match after normalization, but they differed.")
		}
	})

	t.Run("different cards have different digests", func(t *testing.T) {
		card1 := domain.Card{Front: "Card 1"}
		card2 := domain.Card{Front: "Card 2"}
		if Fingerprint(card1) == Fingerprint(card2) {
			t.Error("Expected fingerprints for different cards to be different")
		}
	})
}
