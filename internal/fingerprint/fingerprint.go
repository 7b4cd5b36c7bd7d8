// Package fingerprint gives a flashcard a stable, content-derived
// identity, so decks can be re-imported without duplicating cards.
package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/knowit/knowit/internal/domain"
)

// Normalize concatenates the card's content after cleaning each part.
// It trims whitespace, lowercases, and normalizes line endings for
// each field before joining them.
func Normalize(card domain.Card) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.TrimSpace(p)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return p
	}

	front := normalizePart(card.Front)
	back := normalizePart(card.Back)
	ctx := normalizePart(card.Context)

	// Joined with a newline so adjacent fields cannot collide, e.g.
	// "question" + "answer" never reads as "questionanswer".
	return strings.Join([]string{front, back, ctx}, "\n")
}

// Fingerprint normalizes the card and returns its SHA-256 as a hex string.
func Fingerprint(card domain.Card) string {
	normalized := Normalize(card)
	sum := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", sum)
}
