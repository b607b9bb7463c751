package main

import (
	"os"

	"github.com/burntcarrot/docsync/ot"
	"github.com/nsf/termbox-go"
)

// localEdits counts the edits reported to the controller.
var localEdits uint64

// handleTermboxEvent handles key input by updating the editor and reporting the change to the sync controller.
func handleTermboxEvent(ev termbox.Event) error {
	if ev.Type == termbox.EventResize {
		e.SetSize(ev.Width, ev.Height)
		e.Draw()
		return nil
	}

	// We only want to deal with termbox key events (EventKey).
	if ev.Type == termbox.EventKey {
		// the text on screen before this key, which edits are computed against
		base := string(e.Text)

		switch ev.Key {

		// The default keys for exiting an session are Esc and Ctrl+C.
		case termbox.KeyEsc, termbox.KeyCtrlC:
			return errExit

		// The default key for saving the editor's contents is Ctrl+S.
		case termbox.KeyCtrlS:
			// If no file name is specified, set filename to "docsync-content.txt"
			if fileName == "" {
				fileName = "docsync-content.txt"
			}

			err := os.WriteFile(fileName, []byte(string(e.Text)), 0644) // skipcq: GSC-G306
			if err != nil {
				e.StatusMsg = "Failed to save to " + fileName
				logger.Errorf("failed to save to %s: %v", fileName, err)
				e.SetStatusBar()
				break
			}

			e.StatusMsg = "Saved document to " + fileName
			e.SetStatusBar()

		// Ctrl+U asks the server to revert our last operation.
		case termbox.KeyCtrlU:
			ctrl.Undo()
			e.StatusMsg = "Undo requested"
			e.SetStatusBar()

		// The default keys for moving left inside the text area are the left arrow key, and Ctrl+B (move backward).
		case termbox.KeyArrowLeft, termbox.KeyCtrlB:
			e.MoveCursor(-1, 0)
			moveCaret()

		// The default keys for moving right inside the text area are the right arrow key, and Ctrl+F (move forward).
		case termbox.KeyArrowRight, termbox.KeyCtrlF:
			e.MoveCursor(1, 0)
			moveCaret()

		// The default keys for moving up inside the text area are the up arrow key, and Ctrl+P (move to previous line).
		case termbox.KeyArrowUp, termbox.KeyCtrlP:
			e.MoveCursor(0, -1)
			moveCaret()

		// The default keys for moving down inside the text area are the down arrow key, and Ctrl+N (move to next line).
		case termbox.KeyArrowDown, termbox.KeyCtrlN:
			e.MoveCursor(0, 1)
			moveCaret()

		// Home key, moves cursor to initial position (X=0).
		case termbox.KeyHome:
			e.SetX(0)
			moveCaret()

		// End key, moves cursor to final position (X= length of text).
		case termbox.KeyEnd:
			e.SetX(len(e.Text))
			moveCaret()

		// Backspace deletes the character before the cursor.
		case termbox.KeyBackspace, termbox.KeyBackspace2:
			e.DeleteRune()
			edit(base)

		// Delete removes the character under the cursor.
		case termbox.KeyDelete:
			e.DeleteForward()
			edit(base)

		// The Tab key inserts 4 spaces to simulate a "tab".
		case termbox.KeyTab:
			for i := 0; i < 4; i++ {
				e.AddRune(' ')
			}
			edit(base)

		// The Enter key inserts a newline character to the editor's content.
		case termbox.KeyEnter:
			e.AddRune('\n')
			edit(base)

		// The Space key inserts a space character to the editor's content.
		case termbox.KeySpace:
			e.AddRune(' ')
			edit(base)

		// Every other key is eligible to be a candidate for insertion.
		default:
			if ev.Ch != 0 {
				e.AddRune(ev.Ch)
				edit(base)
			}
		}
	}

	e.Draw()
	return nil
}

// edit reports the change from base to the editor's content to the
// controller, which turns it into operations.
func edit(base string) {
	localEdits++
	ctrl.Edit(base, string(e.Text), ot.RuneToUnit(e.Text, e.Cursor))
}

func moveCaret() {
	ctrl.MoveCaret(ot.RuneToUnit(e.Text, e.Cursor))
}

// getTermboxChan returns a channel of termbox Events repeatedly waiting on user input.
func getTermboxChan() chan termbox.Event {
	termboxChan := make(chan termbox.Event)

	go func() {
		for {
			termboxChan <- termbox.PollEvent()
		}
	}()

	return termboxChan
}
