package editor

import (
	"fmt"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/nsf/termbox-go"
)

// EditorConfig configures an Editor.
type EditorConfig struct {
	ScrollEnabled bool
}

// Editor is a plain-text view over a rune slice with a status bar on the last
// row. Cursor is a rune index into Text.
type Editor struct {
	Text   []rune
	Cursor int

	Width  int
	Height int

	// ColOff and RowOff are the first column and row shown.
	ColOff int
	RowOff int

	// Info is shown in the status bar when no message is active.
	Info string

	// StatusMsg is shown in the status bar until msgUntil.
	StatusMsg string
	msgUntil  time.Time

	ScrollEnabled bool
}

func NewEditor(conf EditorConfig) *Editor {
	return &Editor{
		ScrollEnabled: conf.ScrollEnabled,
	}
}

func (e *Editor) GetText() []rune {
	return e.Text
}

// SetText replaces the text, keeping the cursor in bounds.
func (e *Editor) SetText(text string) {
	e.Text = []rune(text)
	if e.Cursor > len(e.Text) {
		e.Cursor = len(e.Text)
	}
}

func (e *Editor) GetX() int {
	x, _ := e.calcXY(e.Cursor)
	return x
}

func (e *Editor) SetX(x int) {
	e.Cursor = x
}

func (e *Editor) GetY() int {
	_, y := e.calcXY(e.Cursor)
	return y
}

func (e *Editor) GetWidth() int {
	return e.Width
}

func (e *Editor) GetHeight() int {
	return e.Height
}

func (e *Editor) SetSize(w, h int) {
	e.Width = w
	e.Height = h
}

// AddRune inserts a rune at the cursor and moves the cursor past it.
func (e *Editor) AddRune(r rune) {
	if e.Cursor < 0 {
		e.Cursor = 0
	}
	if e.Cursor > len(e.Text) {
		e.Cursor = len(e.Text)
	}

	e.Text = append(e.Text, 0)
	copy(e.Text[e.Cursor+1:], e.Text[e.Cursor:])
	e.Text[e.Cursor] = r
	e.MoveCursor(1, 0)
}

// DeleteRune removes the rune before the cursor, like backspace.
func (e *Editor) DeleteRune() {
	if e.Cursor <= 0 || len(e.Text) == 0 {
		return
	}
	if e.Cursor > len(e.Text) {
		e.Cursor = len(e.Text)
	}

	e.Text = append(e.Text[:e.Cursor-1], e.Text[e.Cursor:]...)
	e.MoveCursor(-1, 0)
}

// DeleteForward removes the rune under the cursor.
func (e *Editor) DeleteForward() {
	if e.Cursor < 0 || e.Cursor >= len(e.Text) {
		return
	}
	e.Text = append(e.Text[:e.Cursor], e.Text[e.Cursor+1:]...)
}

// Draw updates the UI by setting cells with the editor's content.
func (e *Editor) Draw() {
	_ = termbox.Clear(termbox.ColorDefault, termbox.ColorDefault)

	rows := e.textRows()

	cx, cy := e.calcXY(e.Cursor)
	termbox.SetCursor(cx-1-e.ColOff, cy-1-e.RowOff)

	x, y := 0, 0
	for i := 0; i < len(e.Text); i++ {
		if e.Text[i] == rune('\n') {
			x = 0
			y++
			continue
		}

		col, row := x-e.ColOff, y-e.RowOff
		if row >= 0 && row < rows && col >= 0 && col < e.Width {
			termbox.SetCell(col, row, e.Text[i], termbox.ColorDefault, termbox.ColorDefault)
		}

		// Update x by rune's Width.
		x = x + runewidth.RuneWidth(e.Text[i])
	}

	e.drawStatusBar()

	// Flush back buffer!
	termbox.Flush()
}

// SetStatusBar shows StatusMsg for the next five seconds.
func (e *Editor) SetStatusBar() {
	e.msgUntil = time.Now().Add(5 * time.Second)
}

func (e *Editor) drawStatusBar() {
	str := e.Info
	if time.Now().Before(e.msgUntil) {
		str = e.StatusMsg
	}
	if str == "" {
		x, y := e.calcXY(e.Cursor)
		str = fmt.Sprintf("x=%d, y=%d, cursor=%d, len(text)=%d", x, y, e.Cursor, len(e.Text))
	}

	x := 0
	for _, r := range str {
		if x >= e.Width {
			break
		}
		termbox.SetCell(x, e.Height-1, r, termbox.ColorBlack, termbox.ColorWhite)
		x += runewidth.RuneWidth(r)
	}
	for ; x < e.Width; x++ {
		termbox.SetCell(x, e.Height-1, ' ', termbox.ColorBlack, termbox.ColorWhite)
	}
}

// textRows is the number of rows available for text.
func (e *Editor) textRows() int {
	if e.Height <= 1 {
		return 0
	}
	return e.Height - 1
}

// MoveCursor updates the Cursor position.
func (e *Editor) MoveCursor(x, y int) {
	if len(e.Text) == 0 && e.Cursor == 0 {
		return
	}
	// Move cursor horizontally.
	newCursor := e.Cursor + x

	// Move cursor vertically.
	if y > 0 {
		newCursor = e.calcCursorDown()
	}

	if y < 0 {
		newCursor = e.calcCursorUp()
	}

	// Reset to bounds.
	if newCursor > len(e.Text) {
		newCursor = len(e.Text)
	}

	if newCursor < 0 {
		newCursor = 0
	}

	e.Cursor = newCursor

	if e.ScrollEnabled {
		e.scroll()
	}
}

// scroll moves the offsets so that the cursor stays visible.
func (e *Editor) scroll() {
	x, y := e.calcXY(e.Cursor)
	col, row := x-1, y-1

	if rows := e.textRows(); rows > 0 {
		if row < e.RowOff {
			e.RowOff = row
		}
		if row >= e.RowOff+rows {
			e.RowOff = row - rows + 1
		}
	}

	if e.Width > 0 {
		if col < e.ColOff {
			e.ColOff = col
		}
		if col >= e.ColOff+e.Width {
			e.ColOff = col - e.Width + 1
		}
	}
}

// For the functions calcCursorUp and calcCursorDown, newline characters are found by iterating
// backward and forward from the current Cursor position. These characters are taken as the "start"
// and "end" of the current line. The "offset" from the start of the current line to the Cursor
// is calculated and used to determine the final Cursor position on the target line, based on whether the
// offset is greater than the length of the target line. "pos" is used as a placeholder variable for
// the Cursor.

// calcCursorUp calculates the intended Cursor position after moving the Cursor up one line.
func (e *Editor) calcCursorUp() int {
	pos := e.Cursor
	offset := 0

	// If the initial cursor is out of the bounds of the Text or already on a newline, move it.
	if pos == len(e.Text) || e.Text[pos] == '\n' {
		offset++
		pos--
	}

	if pos < 0 {
		pos = 0
	}

	start, end := pos, pos

	// Find the start of the current line.
	for start > 0 && e.Text[start] != '\n' {
		start--
	}

	// If the Cursor is already on the first line, move to the beginning of the Text.
	if start == 0 {
		return 0
	}

	// Find the end of the current line.
	for end < len(e.Text) && e.Text[end] != '\n' {
		end++
	}

	// Find the start of the previous line.
	prevStart := start - 1
	for prevStart >= 0 && e.Text[prevStart] != '\n' {
		prevStart--
	}

	// Calculate the distance from the start of the current line to the Cursor.
	offset += pos - start
	if offset <= start-prevStart {
		return prevStart + offset
	} else {
		return start
	}
}

// calcCursorDown calculates the intended Cursor position after moving the Cursor down one line.
func (e *Editor) calcCursorDown() int {
	pos := e.Cursor
	offset := 0

	// If the initial Cursor is out of the bounds of the Text or already on a newline, move it.
	if pos == len(e.Text) || e.Text[pos] == '\n' {
		offset++
		pos--
	}

	if pos < 0 {
		pos = 0
	}

	start, end := pos, pos

	// Find the start of the current line.
	for start > 0 && e.Text[start] != '\n' {
		start--
	}

	// This handles the case where the Cursor is on the first line. This is necessary because the start
	// of the first line is not a newline character, unlike the other lines in the Text.
	if start == 0 && e.Text[start] != '\n' {
		offset++
	}

	// Find the end of the current line.
	for end < len(e.Text) && e.Text[end] != '\n' {
		end++
	}

	// This handles the case where the Cursor is on a newline. end has to be incremented, otherwise
	// start == end.
	if e.Text[pos] == '\n' && e.Cursor != 0 {
		end++
	}

	// If the Cursor is already on the last line, move to the end of the Text.
	if end == len(e.Text) {
		return len(e.Text)
	}

	// Find the end of the next line.
	nextEnd := end + 1
	for nextEnd < len(e.Text) && e.Text[nextEnd] != '\n' {
		nextEnd++
	}

	// Calculate the distance from the start of the current line to the Cursor.
	offset += pos - start
	if offset < nextEnd-end {
		return end + offset
	} else {
		return nextEnd
	}
}

// calcXY calculates the 1-based cell position of a rune index.
func (e *Editor) calcXY(index int) (int, int) {
	x := 1
	y := 1

	if index < 0 {
		return x, y
	}

	if index > len(e.Text) {
		index = len(e.Text)
	}

	for i := 0; i < index; i++ {
		if e.Text[i] == rune('\n') {
			x = 1
			y++
		} else {
			x = x + runewidth.RuneWidth(e.Text[i])
		}
	}
	return x, y
}
