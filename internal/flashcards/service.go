// Package flashcards ties the review scheduler, the API client and
// the local cache together. The server owns the canonical review
// state; the cache is only updated once the server has acknowledged a
// change, so a failed call never surfaces stale state as current.
package flashcards

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/knowit/knowit/internal/api"
	"github.com/knowit/knowit/internal/domain"
	"github.com/knowit/knowit/internal/fingerprint"
	"github.com/knowit/knowit/internal/review"
	"github.com/knowit/knowit/internal/storage"
)

// Service exposes the flashcard operations backed by the KnowIt API.
type Service struct {
	client *api.Client
	db     *storage.DB
	now    func() time.Time
	log    *slog.Logger
}

// NewService creates a flashcard service.
func NewService(client *api.Client, db *storage.DB, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		client: client,
		db:     db,
		now:    time.Now,
		log:    logger,
	}
}

// cardPayload is the wire shape of a flashcard.
type cardPayload struct {
	ID           string     `json:"id"`
	Front        string     `json:"front"`
	Back         string     `json:"back"`
	Context      string     `json:"context,omitempty"`
	IntervalDays int        `json:"interval_days"`
	EaseFactor   float64    `json:"ease_factor"`
	NextReview   *time.Time `json:"next_review"`
	ReviewCount  int        `json:"review_count"`
}

func (p cardPayload) toDomain() domain.Card {
	card := domain.Card{
		ID:           p.ID,
		Front:        p.Front,
		Back:         p.Back,
		Context:      p.Context,
		IntervalDays: p.IntervalDays,
		EaseFactor:   p.EaseFactor,
		NextReviewAt: p.NextReview,
		ReviewCount:  p.ReviewCount,
	}
	card.Fingerprint = fingerprint.Fingerprint(card)
	return card
}

// reviewResult is what the review endpoint reports back. The server's
// values win over the local prediction.
type reviewResult struct {
	NextReview   *time.Time `json:"next_review"`
	IntervalDays int        `json:"interval_days"`
	EaseFactor   float64    `json:"ease_factor"`
}

// SubmitReview grades a card and returns its new scheduling state.
// The state is computed locally first, submitted to the server, then
// reconciled with whatever the server actually scheduled.
func (s *Service) SubmitReview(ctx context.Context, cardID string, rating review.Rating) (*domain.Card, error) {
	card, err := s.db.FindCardByID(cardID)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, fmt.Errorf("unknown card %s", cardID)
	}

	next := review.Next(*card, rating, s.now())

	var result reviewResult
	err = s.client.DoJSON(ctx, http.MethodPost, "/flashcards/"+url.PathEscape(cardID)+"/review",
		map[string]string{"flashcard_id": cardID, "rating": rating.String()}, &result)
	if err != nil {
		return nil, err
	}

	if result.NextReview != nil {
		next.NextReviewAt = result.NextReview
		next.IntervalDays = result.IntervalDays
		next.EaseFactor = result.EaseFactor
	}

	if err := s.db.UpdateReviewState(next); err != nil {
		return nil, fmt.Errorf("caching review state: %w", err)
	}
	return &next, nil
}

// CreateCard registers a new card with the server and caches it. The
// id is assigned locally so decks can be pushed without waiting for a
// server-generated identifier.
func (s *Service) CreateCard(ctx context.Context, front, back, cardContext string) (*domain.Card, error) {
	card := domain.Card{
		ID:      uuid.NewString(),
		Front:   front,
		Back:    back,
		Context: cardContext,
	}
	card.Fingerprint = fingerprint.Fingerprint(card)

	var created cardPayload
	err := s.client.DoJSON(ctx, http.MethodPost, "/flashcards", map[string]string{
		"id":      card.ID,
		"front":   card.Front,
		"back":    card.Back,
		"context": card.Context,
	}, &created)
	if err != nil {
		return nil, err
	}
	if created.ID != "" {
		card = created.toDomain()
	}

	if err := s.db.UpsertCard(card); err != nil {
		return nil, fmt.Errorf("caching new card: %w", err)
	}
	return &card, nil
}

// DeleteCard removes a card on the server and from the cache.
func (s *Service) DeleteCard(ctx context.Context, cardID string) error {
	if _, err := s.client.Do(ctx, http.MethodDelete, "/flashcards/"+url.PathEscape(cardID), nil); err != nil {
		return err
	}
	return s.db.DeleteCard(cardID)
}

// RefreshCards fetches the card list from the server and reconciles
// the local cache with it.
func (s *Service) RefreshCards(ctx context.Context) ([]domain.Card, error) {
	var payload struct {
		Flashcards []cardPayload `json:"flashcards"`
	}
	if err := s.client.DoJSON(ctx, http.MethodGet, "/flashcards", nil, &payload); err != nil {
		return nil, err
	}

	cards := make([]domain.Card, 0, len(payload.Flashcards))
	for _, p := range payload.Flashcards {
		card := p.toDomain()
		if err := s.db.UpsertCard(card); err != nil {
			return nil, fmt.Errorf("caching card %s: %w", card.ID, err)
		}
		cards = append(cards, card)
	}
	return cards, nil
}

// Timeline partitions the cached cards into the due/upcoming buckets.
func (s *Service) Timeline(ctx context.Context) (review.Timeline, error) {
	cards, err := s.db.ListCards()
	if err != nil {
		return review.Timeline{}, err
	}
	return review.BuildTimeline(cards, s.now()), nil
}

// DueCards returns the cached cards due right now, oldest first.
func (s *Service) DueCards(ctx context.Context) ([]domain.Card, error) {
	return s.db.DueCards(s.now())
}

// UploadRecording attaches an audio recording to a card and returns
// the URL the server stored it under.
func (s *Service) UploadRecording(ctx context.Context, cardID, fileName string, audio io.Reader) (string, error) {
	raw, err := s.client.Upload(ctx, "/flashcards/"+url.PathEscape(cardID)+"/recording",
		map[string]string{"flashcard_id": cardID}, "audio", fileName, audio)
	if err != nil {
		return "", err
	}
	var resp struct {
		URL string `json:"url"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &resp); err != nil {
			return "", fmt.Errorf("decoding upload response: %w", err)
		}
	}
	return resp.URL, nil
}
