package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/burntcarrot/docsync/commons"
	"github.com/burntcarrot/docsync/server/relay"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Flags represents the command-line flags that are passed to the relay.
type Flags struct {
	Addr         string
	Secret       string
	AnnounceOnly bool
	Seed         string
	Owner        string
	Issue        string
	Debug        bool
}

func parseFlags() Flags {
	addr := flag.String("addr", ":8080", "Server's network address")
	secret := flag.String("secret", os.Getenv("DOCSYNC_SECRET"), "HS256 secret for bearer tokens (empty: the token is the user id)")
	announceOnly := flag.Bool("announce-only", false, "Send initial_state without content, so clients fetch over REST")
	seed := flag.String("seed", "", "Create an empty document with this id on startup")
	owner := flag.String("owner", "admin", "Owner of the seeded document")
	issue := flag.String("issue", "", "Print a token for this user and exit")
	debug := flag.Bool("debug", false, "Log every operation")

	flag.Parse()

	return Flags{
		Addr:         *addr,
		Secret:       *secret,
		AnnounceOnly: *announceOnly,
		Seed:         *seed,
		Owner:        *owner,
		Issue:        *issue,
		Debug:        *debug,
	}
}

func main() {
	flags := parseFlags()

	if flags.Issue != "" {
		if flags.Secret == "" {
			color.Red("-issue needs a -secret")
			os.Exit(1)
		}
		token, err := relay.IssueToken([]byte(flags.Secret), flags.Issue, 24*time.Hour)
		if err != nil {
			color.Red("Failed to issue token: %s", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	logger := logrus.New()
	if flags.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	s := relay.New(relay.Config{
		Secret:       []byte(flags.Secret),
		AnnounceOnly: flags.AnnounceOnly,
		Logger:       logger,
	})

	if flags.Seed != "" {
		s.Store().Put(commons.Document{ID: flags.Seed, Title: flags.Seed, OwnerID: flags.Owner})
		color.Green("Seeded document %s owned by %s", flags.Seed, flags.Owner)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go s.Run(ctx)

	srv := &http.Server{
		Addr:              flags.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	color.Green("Starting relay on %s", flags.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		color.Red("Error starting server, exiting: %s", err)
		os.Exit(1)
	}
	color.Yellow("Relay stopped")
}
