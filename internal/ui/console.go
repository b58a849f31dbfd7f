package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Console writes operator-facing status to the terminal: a spinner while the
// feed request is in flight, then a one-line summary or error.
type Console struct {
	out          io.Writer
	err          io.Writer
	showProgress bool

	mu       sync.Mutex
	spinner  *Spinner
	done     chan struct{}
	lastLine string
}

// NewConsole returns a console on stdout/stderr. The spinner only runs when
// stderr is a terminal.
func NewConsole(showProgress bool) *Console {
	return NewConsoleWithWriters(os.Stdout, os.Stderr, showProgress && isTerminal(os.Stderr))
}

func NewConsoleWithWriters(out, err io.Writer, showProgress bool) *Console {
	return &Console{out: out, err: err, showProgress: showProgress}
}

// isTerminal checks if the output is a terminal
func isTerminal(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// StartSpinner shows message with an animated frame on stderr until
// StopSpinner is called.
func (c *Console) StartSpinner(message string) {
	if !c.showProgress {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.spinner != nil {
		return
	}

	c.spinner = NewSpinner(message)
	c.spinner.Start()
	c.done = make(chan struct{})

	go func(sp *Spinner, done <-chan struct{}) {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				c.setLine(sp.String())
			}
		}
	}(c.spinner, c.done)
}

// StopSpinner stops the spinner and clears its line.
func (c *Console) StopSpinner() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.spinner == nil {
		return
	}
	c.spinner.Stop()
	close(c.done)
	c.spinner = nil
	c.clearLine()
}

func (c *Console) setLine(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.spinner == nil {
		return
	}
	c.clearLine()
	fmt.Fprint(c.err, line+"\r")
	c.lastLine = line
}

func (c *Console) clearLine() {
	if c.lastLine != "" {
		spaces := strings.Repeat(" ", len([]rune(c.lastLine)))
		fmt.Fprint(c.err, "\r"+spaces+"\r")
		c.lastLine = ""
	}
}

// Success prints the run summary on stdout.
func (c *Console) Success(format string, args ...interface{}) {
	color.New(color.FgGreen).Fprintf(c.out, format+"\n", args...)
}

// Error prints a fatal diagnostic on stderr.
func (c *Console) Error(err error) {
	c.StopSpinner()
	color.New(color.FgRed, color.Bold).Fprintf(c.err, "Error: %v\n", err)
}

// Info prints a plain status line on stderr.
func (c *Console) Info(format string, args ...interface{}) {
	fmt.Fprintf(c.err, format+"\n", args...)
}
