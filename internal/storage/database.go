package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/knowit/knowit/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// InsertCard inserts a new card into the cache. A card that has never
// been reviewed keeps a NULL next_review_at, which marks it as due.
func (db *DB) InsertCard(card domain.Card, sourceID int64) error {
	_, err := db.conn.Exec(`
		INSERT INTO cards (id, front, back, context, fingerprint, interval_days, ease_factor, next_review_at, review_count, source_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		card.ID,
		card.Front,
		card.Back,
		card.Context,
		card.Fingerprint,
		card.IntervalDays,
		card.EaseFactor,
		nullableTime(card.NextReviewAt),
		card.ReviewCount,
		nullableID(sourceID),
	)
	if err != nil {
		return fmt.Errorf("failed to insert card %s: %w", card.ID, err)
	}
	return nil
}

// UpsertCard inserts the card or, when it already exists, replaces its
// content and scheduling state. Used when reconciling with the server.
func (db *DB) UpsertCard(card domain.Card) error {
	_, err := db.conn.Exec(`
		INSERT INTO cards (id, front, back, context, fingerprint, interval_days, ease_factor, next_review_at, review_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			front = excluded.front,
			back = excluded.back,
			context = excluded.context,
			fingerprint = excluded.fingerprint,
			interval_days = excluded.interval_days,
			ease_factor = excluded.ease_factor,
			next_review_at = excluded.next_review_at,
			review_count = excluded.review_count
	`,
		card.ID,
		card.Front,
		card.Back,
		card.Context,
		card.Fingerprint,
		card.IntervalDays,
		card.EaseFactor,
		nullableTime(card.NextReviewAt),
		card.ReviewCount,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert card %s: %w", card.ID, err)
	}
	return nil
}

// FindCardByID retrieves a card from the cache. A missing card is
// (nil, nil), not an error.
func (db *DB) FindCardByID(id string) (*domain.Card, error) {
	row := db.conn.QueryRow(`
		SELECT id, front, back, context, fingerprint, interval_days, ease_factor, next_review_at, review_count
		FROM cards WHERE id = ?
	`, id)
	card, err := scanCard(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find card by id %s: %w", id, err)
	}
	return card, nil
}

// FindCardByFingerprint retrieves a card by its content fingerprint.
func (db *DB) FindCardByFingerprint(fingerprint string) (*domain.Card, error) {
	row := db.conn.QueryRow(`
		SELECT id, front, back, context, fingerprint, interval_days, ease_factor, next_review_at, review_count
		FROM cards WHERE fingerprint = ?
	`, fingerprint)
	card, err := scanCard(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find card by fingerprint %s: %w", fingerprint, err)
	}
	return card, nil
}

// UpdateReviewState writes the card's new scheduling state after an
// acknowledged review.
func (db *DB) UpdateReviewState(card domain.Card) error {
	_, err := db.conn.Exec(`
		UPDATE cards
		SET interval_days = ?, ease_factor = ?, next_review_at = ?, review_count = ?
		WHERE id = ?
	`,
		card.IntervalDays,
		card.EaseFactor,
		nullableTime(card.NextReviewAt),
		card.ReviewCount,
		card.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update review state for card %s: %w", card.ID, err)
	}
	return nil
}

// ListCards returns every cached card in insertion order.
func (db *DB) ListCards() ([]domain.Card, error) {
	rows, err := db.conn.Query(`
		SELECT id, front, back, context, fingerprint, interval_days, ease_factor, next_review_at, review_count
		FROM cards ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()
	return collectCards(rows)
}

// DueCards returns the cards due at or before the given time,
// including cards that were never scheduled.
func (db *DB) DueCards(now time.Time) ([]domain.Card, error) {
	rows, err := db.conn.Query(`
		SELECT id, front, back, context, fingerprint, interval_days, ease_factor, next_review_at, review_count
		FROM cards
		WHERE next_review_at IS NULL OR next_review_at <= ?
		ORDER BY rowid
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to get due cards: %w", err)
	}
	defer rows.Close()
	return collectCards(rows)
}

// CardsBySourceID retrieves all cards imported from a specific source.
func (db *DB) CardsBySourceID(sourceID int64) ([]domain.Card, error) {
	rows, err := db.conn.Query(`
		SELECT id, front, back, context, fingerprint, interval_days, ease_factor, next_review_at, review_count
		FROM cards WHERE source_id = ?
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards for source ID %d: %w", sourceID, err)
	}
	defer rows.Close()
	return collectCards(rows)
}

// SetCardSource associates a card with the deck source it came from.
func (db *DB) SetCardSource(cardID string, sourceID int64) error {
	_, err := db.conn.Exec(`UPDATE cards SET source_id = ? WHERE id = ?`, nullableID(sourceID), cardID)
	if err != nil {
		return fmt.Errorf("failed to set source for card %s: %w", cardID, err)
	}
	return nil
}

// DeleteCard removes a card from the cache.
func (db *DB) DeleteCard(id string) error {
	_, err := db.conn.Exec(`DELETE FROM cards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete card %s: %w", id, err)
	}
	return nil
}

// Source represents a deck source, either a local path or a git URL.
type Source struct {
	ID          int64
	Path        string
	Type        string
	LastScanned sql.NullTime
}

// InsertSource inserts a new deck source and returns its ID.
func (db *DB) InsertSource(path, sourceType string) (int64, error) {
	res, err := db.conn.Exec(`
		INSERT INTO sources (path, type, last_scanned)
		VALUES (?, ?, NULL)
	`, path, sourceType)
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for source %s: %w", path, err)
	}
	return id, nil
}

// FindSourceByPath retrieves a source by its path.
func (db *DB) FindSourceByPath(path string) (*Source, error) {
	var s Source
	row := db.conn.QueryRow(`
		SELECT id, path, type, last_scanned
		FROM sources WHERE path = ?
	`, path)

	err := row.Scan(&s.ID, &s.Path, &s.Type, &s.LastScanned)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find source by path %s: %w", path, err)
	}
	return &s, nil
}

// GetAllSources retrieves all stored deck sources.
func (db *DB) GetAllSources() ([]Source, error) {
	rows, err := db.conn.Query(`
		SELECT id, path, type, last_scanned
		FROM sources
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var s Source
		if err := rows.Scan(&s.ID, &s.Path, &s.Type, &s.LastScanned); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// DeleteSource removes a deck source.
func (db *DB) DeleteSource(id int64) error {
	_, err := db.conn.Exec(`DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete source %d: %w", id, err)
	}
	return nil
}

// UpdateSourceLastScanned updates the last_scanned timestamp for a source.
func (db *DB) UpdateSourceLastScanned(sourceID int64) error {
	_, err := db.conn.Exec(`
		UPDATE sources
		SET last_scanned = ?
		WHERE id = ?
	`, time.Now(), sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", sourceID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (*domain.Card, error) {
	var c domain.Card
	var next sql.NullTime
	if err := row.Scan(
		&c.ID,
		&c.Front,
		&c.Back,
		&c.Context,
		&c.Fingerprint,
		&c.IntervalDays,
		&c.EaseFactor,
		&next,
		&c.ReviewCount,
	); err != nil {
		return nil, err
	}
	if next.Valid {
		t := next.Time
		c.NextReviewAt = &t
	}
	return &c, nil
}

func collectCards(rows *sql.Rows) ([]domain.Card, error) {
	var cards []domain.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		cards = append(cards, *card)
	}
	return cards, rows.Err()
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullableID(id int64) sql.NullInt64 {
	if id == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: id, Valid: true}
}
