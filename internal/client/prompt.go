package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// ErrInterrupted is returned by a LineReader when the user asked to leave
// (Ctrl-C or Ctrl-D at a terminal prompt).
var ErrInterrupted = errors.New("prompt interrupted")

// LineReader supplies lines typed by the user.
type LineReader interface {
	ReadLine() (string, error)
}

// Prompt is a LineReader that is also where received messages are written,
// so a terminal prompt can be redrawn below them.
type Prompt interface {
	LineReader
	io.Writer
	Close() error
	// Interactive reports whether the prompt owns a raw-mode terminal.
	Interactive() bool
}

// NewPrompt returns a line-editing prompt when in is a terminal and a plain
// line reader otherwise. Close restores the terminal.
func NewPrompt(in *os.File, out io.Writer, prefix string) (Prompt, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return &linePrompt{scanner: bufio.NewScanner(in), out: out}, nil
	}

	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("enable raw terminal: %w", err)
	}

	screen := struct {
		io.Reader
		io.Writer
	}{in, out}

	return &terminalPrompt{
		term:    term.NewTerminal(screen, prefix),
		restore: func() error { return term.Restore(fd, state) },
	}, nil
}

type terminalPrompt struct {
	term    *term.Terminal
	restore func() error
}

// ReadLine maps the terminal's EOF (Ctrl-C, or Ctrl-D on an empty line) to
// ErrInterrupted; raw mode means no SIGINT is delivered for Ctrl-C.
func (p *terminalPrompt) ReadLine() (string, error) {
	line, err := p.term.ReadLine()
	if errors.Is(err, io.EOF) {
		return "", ErrInterrupted
	}
	return line, err
}

func (p *terminalPrompt) Write(b []byte) (int, error) {
	return p.term.Write(b)
}

func (p *terminalPrompt) Close() error {
	return p.restore()
}

func (p *terminalPrompt) Interactive() bool { return true }

type linePrompt struct {
	scanner *bufio.Scanner
	out     io.Writer
}

func (p *linePrompt) ReadLine() (string, error) {
	if p.scanner.Scan() {
		return p.scanner.Text(), nil
	}
	if err := p.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (p *linePrompt) Write(b []byte) (int, error) {
	return p.out.Write(b)
}

func (p *linePrompt) Close() error {
	return nil
}

func (p *linePrompt) Interactive() bool { return false }
