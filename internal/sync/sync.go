// Package sync reconciles configured deck sources with the local
// cache and the server: new cards found in decks are pushed up,
// cards no longer present in their deck are removed.
package sync

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/knowit/knowit/internal/domain"
	"github.com/knowit/knowit/internal/fingerprint"
	"github.com/knowit/knowit/internal/gitsource"
	"github.com/knowit/knowit/internal/parser"
	"github.com/knowit/knowit/internal/storage"
)

// CardPusher is the slice of the flashcard service sync needs.
type CardPusher interface {
	CreateCard(ctx context.Context, front, back, cardContext string) (*domain.Card, error)
	DeleteCard(ctx context.Context, cardID string) error
}

// Run iterates over all deck sources and reconciles each of them.
func Run(ctx context.Context, db *storage.DB, pusher CardPusher, reposDir string) error {
	slog.Info("starting sync for all deck sources")
	sources, err := db.GetAllSources()
	if err != nil {
		return fmt.Errorf("loading sources: %w", err)
	}

	if len(sources) == 0 {
		slog.Info("no deck sources configured, add one with --add-source <path/or/url.git>")
		return nil
	}

	if err := os.MkdirAll(reposDir, os.ModePerm); err != nil {
		return fmt.Errorf("creating repos directory: %w", err)
	}

	for _, source := range sources {
		slog.Info("syncing deck source", "id", source.ID, "type", source.Type, "path", source.Path)

		sourceToReconcile := source
		if source.Type == "git" {
			localRepoPath, err := gitURLToLocalPath(reposDir, source.Path)
			if err != nil {
				slog.Error("determining local path for deck repo", "url", source.Path, "error", err)
				continue
			}
			if err := gitsource.Sync(ctx, source.Path, localRepoPath); err != nil {
				slog.Error("syncing deck repo", "url", source.Path, "error", err)
				continue
			}
			sourceToReconcile.Path = localRepoPath
		}
		reconcileSource(ctx, db, pusher, &sourceToReconcile)
	}
	slog.Info("sync complete")
	return nil
}

func reconcileSource(ctx context.Context, db *storage.DB, pusher CardPusher, source *storage.Source) {
	var parsed, pushed int
	var errs []error
	foundFingerprints := make(map[string]bool)

	walkErr := filepath.WalkDir(source.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		fileCards, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			errs = append(errs, fmt.Errorf("parsing %s: %w", path, parseErr))
		}
		for _, card := range fileCards {
			card.Fingerprint = fingerprint.Fingerprint(card)
			parsed++
			foundFingerprints[card.Fingerprint] = true

			existing, findErr := db.FindCardByFingerprint(card.Fingerprint)
			if findErr != nil {
				errs = append(errs, fmt.Errorf("cache check for %s: %w", card.Fingerprint, findErr))
				continue
			}
			if existing != nil {
				continue
			}

			slog.Info("new card found, pushing", "fingerprint", card.Fingerprint)
			created, pushErr := pusher.CreateCard(ctx, card.Front, card.Back, card.Context)
			if pushErr != nil {
				// Left out of the cache; the next sync retries it.
				errs = append(errs, fmt.Errorf("pushing card %s: %w", card.Fingerprint, pushErr))
				continue
			}
			pushed++
			if err := db.SetCardSource(created.ID, source.ID); err != nil {
				errs = append(errs, fmt.Errorf("recording source for %s: %w", created.ID, err))
			}
		}
		return nil
	})

	if walkErr != nil {
		slog.Error("walking deck directory", "path", source.Path, "error", walkErr)
		return
	}

	cached, err := db.CardsBySourceID(source.ID)
	if err != nil {
		slog.Error("loading cached cards for source", "source_id", source.ID, "error", err)
		return
	}

	var orphaned int
	for _, card := range cached {
		if foundFingerprints[card.Fingerprint] {
			continue
		}
		slog.Info("orphaned card, deleting", "id", card.ID)
		orphaned++
		if err := pusher.DeleteCard(ctx, card.ID); err != nil {
			slog.Warn("failed to delete orphaned card", "id", card.ID, "error", err)
		}
	}

	if err := db.UpdateSourceLastScanned(source.ID); err != nil {
		slog.Warn("failed to update last scanned for source", "source_id", source.ID, "error", err)
	}

	slog.Info("reconciliation complete",
		"path", source.Path,
		"parsed_cards", parsed,
		"pushed_cards", pushed,
		"orphaned_deleted", orphaned,
		"errors", len(errs),
	)
}

// DetectSourceType classifies a source path as a git URL or a local
// directory.
func DetectSourceType(path string) string {
	if strings.HasSuffix(path, ".git") || strings.HasPrefix(path, "git@") ||
		strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		return "git"
	}
	return "local"
}

func gitURLToLocalPath(baseDir, repoURL string) (string, error) {
	parsedURL, err := url.Parse(repoURL)
	if err != nil || (parsedURL.Scheme != "https" && parsedURL.Scheme != "http") {
		if strings.Contains(repoURL, "@") {
			parts := strings.Split(repoURL, ":")
			if len(parts) == 2 {
				hostAndUser := strings.Split(parts[0], "@")
				if len(hostAndUser) == 2 {
					host := hostAndUser[1]
					repoPath := strings.TrimSuffix(parts[1], ".git")
					return filepath.Join(baseDir, host, repoPath), nil
				}
			}
		}
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}

	sanitizedPath := strings.TrimSuffix(parsedURL.Path, ".git")
	return filepath.Join(baseDir, parsedURL.Host, sanitizedPath), nil
}
