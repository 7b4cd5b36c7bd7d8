// Command knowit is the KnowIt client: it signs in against the
// backend, keeps a local flashcard cache, syncs markdown decks and
// drives spaced-repetition reviews.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/knowit/knowit/internal/account"
	"github.com/knowit/knowit/internal/api"
	"github.com/knowit/knowit/internal/config"
	"github.com/knowit/knowit/internal/flashcards"
	"github.com/knowit/knowit/internal/review"
	"github.com/knowit/knowit/internal/storage"
	"github.com/knowit/knowit/internal/sync"
)

const usage = `Usage: knowit [flags] <command> [args]

Commands:
  register <email> <password> <name>   create an account and sign in
  login <email> <password>             sign in
  logout                               sign out and wipe local credentials
  whoami                               show the signed-in user
  add-source <path-or-git-url>         register a markdown deck source
  sync                                 reconcile deck sources with the server
  refresh                              pull the card list from the server
  due                                  list cards due for review
  timeline                             show the review timeline
  review <card-id> <forgot|hard|good>  grade a card
  upload <card-id> <audio-file>        attach a recording to a card
`

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err := run(context.Background(), os.Args[1:]); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("knowit", pflag.ContinueOnError)
	flags.Usage = func() { fmt.Fprint(os.Stderr, usage); flags.PrintDefaults() }
	cfgPath := flags.String("config", "", "path to a YAML config file")
	flags.String("server_url", "", "KnowIt API base URL")
	flags.String("db_path", "knowit.db", "path to the local cache database")
	flags.String("repos_dir", "repos", "directory deck repositories are cloned into")
	if err := flags.Parse(args); err != nil {
		return err
	}

	rest := flags.Args()
	if len(rest) == 0 {
		flags.Usage()
		return fmt.Errorf("missing command")
	}

	cfg, err := config.Load(*cfgPath, flags)
	if err != nil {
		return err
	}

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	client := api.New(api.Config{
		BaseURL:       cfg.ServerURL,
		RefreshPath:   cfg.RefreshPath,
		Timeout:       cfg.Timeout(),
		UploadTimeout: cfg.UploadTimeout(),
	}, db, nil)
	accounts := account.NewService(client, db, nil)
	cards := flashcards.NewService(client, db, nil)

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "register":
		if len(cmdArgs) != 3 {
			return fmt.Errorf("usage: knowit register <email> <password> <name>")
		}
		user, err := accounts.Register(ctx, cmdArgs[0], cmdArgs[1], cmdArgs[2])
		if err != nil {
			return err
		}
		fmt.Printf("Welcome, %s.\n", user.Name)
		return nil

	case "login":
		if len(cmdArgs) != 2 {
			return fmt.Errorf("usage: knowit login <email> <password>")
		}
		user, err := accounts.Login(ctx, cmdArgs[0], cmdArgs[1])
		if err != nil {
			return err
		}
		fmt.Printf("Signed in as %s.\n", user.Email)
		return nil

	case "logout":
		if err := accounts.Logout(ctx); err != nil {
			return err
		}
		fmt.Println("Signed out.")
		return nil

	case "whoami":
		user, err := accounts.CurrentUser(ctx)
		if err != nil {
			return err
		}
		if user == nil {
			fmt.Println("Not signed in.")
			return nil
		}
		fmt.Printf("%s <%s>\n", user.Name, user.Email)
		return nil

	case "add-source":
		if len(cmdArgs) != 1 {
			return fmt.Errorf("usage: knowit add-source <path-or-git-url>")
		}
		return addSource(db, cmdArgs[0])

	case "sync":
		return sync.Run(ctx, db, cards, cfg.ReposDir)

	case "refresh":
		fetched, err := cards.RefreshCards(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Cached %d cards.\n", len(fetched))
		return nil

	case "due":
		due, err := cards.DueCards(ctx)
		if err != nil {
			return err
		}
		if len(due) == 0 {
			fmt.Println("Nothing due. Come back later.")
			return nil
		}
		for _, c := range due {
			fmt.Printf("%s  %s\n", c.ID, c.Front)
		}
		return nil

	case "timeline":
		tl, err := cards.Timeline(ctx)
		if err != nil {
			return err
		}
		for _, b := range tl.Buckets {
			fmt.Printf("%-10s %d\n", b.Period, b.Count)
		}
		fmt.Printf("\n%d due, %d scheduled in total.\n", tl.TotalDue, tl.TotalUpcoming)
		return nil

	case "review":
		if len(cmdArgs) != 2 {
			return fmt.Errorf("usage: knowit review <card-id> <forgot|hard|good>")
		}
		rating, err := review.ParseRating(cmdArgs[1])
		if err != nil {
			return err
		}
		next, err := cards.SubmitReview(ctx, cmdArgs[0], rating)
		if err != nil {
			return err
		}
		fmt.Printf("Next review in %d days (%s).\n", next.IntervalDays, next.NextReviewAt.Format("2006-01-02"))
		return nil

	case "upload":
		if len(cmdArgs) != 2 {
			return fmt.Errorf("usage: knowit upload <card-id> <audio-file>")
		}
		f, err := os.Open(cmdArgs[1])
		if err != nil {
			return err
		}
		defer f.Close()
		url, err := cards.UploadRecording(ctx, cmdArgs[0], filepath.Base(cmdArgs[1]), f)
		if err != nil {
			return err
		}
		fmt.Printf("Stored at %s\n", url)
		return nil

	default:
		flags.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func addSource(db *storage.DB, path string) error {
	sourceType := sync.DetectSourceType(path)
	if sourceType == "local" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("resolving source path: %w", err)
		}
		path = abs
	}

	existing, err := db.FindSourceByPath(path)
	if err != nil {
		return err
	}
	if existing != nil {
		fmt.Printf("Source already registered: %s\n", path)
		return nil
	}

	if _, err := db.InsertSource(path, sourceType); err != nil {
		return err
	}
	fmt.Printf("Added %s source %s\n", sourceType, path)
	return nil
}
