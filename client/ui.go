package main

import (
	"context"
	"errors"

	"github.com/burntcarrot/docsync/client/editor"
	"github.com/burntcarrot/docsync/commons"
	"github.com/burntcarrot/docsync/engine"
	"github.com/burntcarrot/docsync/ot"
	"github.com/nsf/termbox-go"
)

// errExit is returned by the main loop when the user quits.
var errExit = errors.New("docsync: exiting")

// termSurface hands the controller's views and errors to the UI goroutine.
// Only the newest view is kept.
type termSurface struct {
	views chan engine.View
	errs  chan error
}

func newTermSurface() *termSurface {
	return &termSurface{
		views: make(chan engine.View, 1),
		errs:  make(chan error, 16),
	}
}

// Render implements engine.Surface.
func (s *termSurface) Render(v engine.View) {
	for {
		select {
		case s.views <- v:
			return
		default:
			// drop the older view
			select {
			case <-s.views:
			default:
			}
		}
	}
}

// ReportError implements engine.Surface.
func (s *termSurface) ReportError(err error) {
	select {
	case s.errs <- err:
	default:
		logger.Warnf("dropping error: %v", err)
	}
}

// UI creates a new editor view and runs the main loop.
func UI(surface *termSurface, done <-chan error) error {
	err := termbox.Init()
	if err != nil {
		return err
	}
	defer termbox.Close()

	e = editor.NewEditor(editor.EditorConfig{ScrollEnabled: true})
	e.SetSize(termbox.Size())
	e.Info = "connecting..."
	e.Draw()

	return mainLoop(surface, done)
}

// mainLoop is the main update loop for the UI.
func mainLoop(surface *termSurface, done <-chan error) error {
	termboxChan := getTermboxChan()

	// event select
	for {
		select {
		case termboxEvent := <-termboxChan:
			err := handleTermboxEvent(termboxEvent)
			if err != nil {
				return err
			}

		case view := <-surface.views:
			applyView(view)

		case err := <-surface.errs:
			showError(err)

		case err := <-done:
			if err == nil || errors.Is(err, context.Canceled) {
				return errExit
			}
			return err
		}
	}
}

// applyView updates the editor with the controller's state. Content is only
// taken from views that include every edit made so far, otherwise a view
// would undo keystrokes the controller has not seen yet.
func applyView(v engine.View) {
	printView(v)

	e.Info = statusLine(v)
	if v.Edits == localEdits && string(e.Text) != v.Content {
		e.SetText(v.Content)
		e.Cursor = ot.UnitToRune(e.Text, v.Caret)
	}
	e.Draw()
}

func showError(err error) {
	var cerr *commons.Error
	if errors.As(err, &cerr) && cerr.Fatal() {
		logger.Errorf("session ended: %v", err)
		e.Info = "disconnected: " + err.Error()
	}

	e.StatusMsg = err.Error()
	e.SetStatusBar()
	e.Draw()
}
