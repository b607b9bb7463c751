package main

import (
	"context"
	"errors"
	"os"

	"github.com/burntcarrot/docsync/api"
	"github.com/burntcarrot/docsync/client/editor"
	"github.com/burntcarrot/docsync/engine"
	"github.com/burntcarrot/docsync/tui"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

var (
	// Local editor view.
	e *editor.Editor

	// Sync controller for the open document.
	ctrl *engine.Controller

	// File the content is saved to.
	fileName string

	// The client's logger.
	logger = logrus.New()

	// Command-line flags.
	flags Flags
)

func main() {
	// Parse flags.
	flags = parseFlags()
	fileName = flags.File

	// Ask for whatever the flags did not provide.
	session, err := tui.Prompt(tui.Session{DocID: flags.Doc, Token: flags.Token})
	if err != nil {
		if errors.Is(err, tui.ErrCancelled) {
			return
		}
		color.Red("Prompt error, exiting: %s\n", err)
		os.Exit(1)
	}

	// Set up the logger.
	logFile, debugLogFile, err := setupLogger(logger)
	if err != nil {
		color.Red("Failed to set up logger, exiting: %s\n", err)
		os.Exit(1)
	}
	defer closeLogFiles(logFile, debugLogFile)

	if flags.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	wsEndpoint, apiBase := endpoints(flags)

	cfg := engine.DefaultConfig(wsEndpoint)
	cfg.Logger = logger

	store := api.NewClient(apiBase, session.Token, api.WithLogger(logger))
	surface := newTermSurface()
	ctrl = engine.New(cfg, session.DocID, session.Token, store, surface)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Run the sync controller next to the UI.
	done := make(chan error, 1)
	go func() {
		done <- ctrl.Run(ctx)
	}()

	err = UI(surface, done)

	// Tear down the session before leaving the terminal.
	cancel()
	ctrl.Close()

	if err != nil && !errors.Is(err, errExit) {
		color.Red("\n%s\n", err)
		os.Exit(1)
	}

	color.Green("Closed %s\n", session.DocID)
}
