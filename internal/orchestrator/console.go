package orchestrator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// emptyLine is sent in place of a blank input line so the model still gets a
// turn to respond to.
const emptyLine = "."

// IsQuit reports whether line is one of the quit sentinels q, exit or quit,
// ignoring case and surrounding space.
func IsQuit(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "q", "exit", "quit":
		return true
	default:
		return false
	}
}

var (
	youStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f"))
	modelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#58a6ff"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681"))
)

// console prints labelled lines. Writes are serialised by the caller: only the
// receive task prints model output and only the input task prints prompts.
type console struct {
	w io.Writer
}

func (c console) prompt(label string) {
	fmt.Fprint(c.w, youStyle.Render(label)+" ")
}

func (c console) model(text string) {
	fmt.Fprintln(c.w, modelStyle.Render("Model:")+" "+text)
}

func (c console) note(text string) {
	fmt.Fprintln(c.w, dimStyle.Render(text))
}

// lineReader reads lines on its own goroutine so that waiting for input can be
// abandoned when the run is cancelled. The goroutine exits at EOF or on a read
// error; a read blocked on a terminal outlives the run until the process exits.
type lineReader struct {
	lines chan string
	done  chan struct{}
	quit  chan struct{}
	err   error
}

func newLineReader(r io.Reader) *lineReader {
	lr := &lineReader{
		lines: make(chan string),
		done:  make(chan struct{}),
		quit:  make(chan struct{}),
	}
	go func() {
		defer close(lr.done)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lr.lines <- sc.Text():
			case <-lr.quit:
				return
			}
		}
		lr.err = sc.Err()
	}()
	return lr
}

// stop releases the reader goroutine once its current read returns.
func (lr *lineReader) stop() { close(lr.quit) }

// next returns the next line. At end of input it returns io.EOF.
func (lr *lineReader) next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line := <-lr.lines:
		return line, nil
	case <-lr.done:
		if lr.err != nil {
			return "", fmt.Errorf("orchestrator: read input: %w", lr.err)
		}
		return "", io.EOF
	}
}
