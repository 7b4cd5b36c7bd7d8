// Package parser extracts flashcards from markdown deck files. A card
// is a block of Q:/A:/C: prefixed sections; "---" or the next Q:
// starts a new card.
package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/knowit/knowit/internal/domain"
)

const (
	frontPrefix   = "Q:"
	backPrefix    = "A:"
	contextPrefix = "C:"
)

type section int

const (
	seeking section = iota
	readingFront
	readingBack
	readingContext
)

// ParseFile reads a deck file from the given path and extracts all cards.
func ParseFile(path string) ([]domain.Card, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads from an io.Reader and extracts all cards. Cards without
// a front are dropped.
func Parse(r io.Reader) ([]domain.Card, error) {
	scanner := bufio.NewScanner(r)
	var cards []domain.Card
	var current domain.Card
	var block []string
	state := seeking

	flushBlock := func() {
		if len(block) == 0 {
			return
		}
		content := strings.Join(block, "\n")
		switch state {
		case readingFront:
			current.Front = content
		case readingBack:
			current.Back = content
		case readingContext:
			current.Context = content
		}
		block = nil
	}

	finishCard := func() {
		flushBlock()
		if current.Front != "" {
			cards = append(cards, current)
		}
		current = domain.Card{}
		state = seeking
	}

	startSection := func(next section, line, prefix string) {
		flushBlock()
		if next == readingFront && state != seeking {
			// A new front always starts a new card.
			finishCard()
		}
		state = next
		block = append(block, strings.TrimPrefix(strings.TrimPrefix(line, prefix), " "))
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "---":
			finishCard()
		case strings.HasPrefix(line, frontPrefix):
			startSection(readingFront, line, frontPrefix)
		case strings.HasPrefix(line, backPrefix):
			startSection(readingBack, line, backPrefix)
		case strings.HasPrefix(line, contextPrefix):
			startSection(readingContext, line, contextPrefix)
		case state != seeking:
			block = append(block, line)
		}
	}
	finishCard() // Finish the very last card in the file

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cards, nil
}
