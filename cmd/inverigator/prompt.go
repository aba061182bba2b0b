package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"inverigator/internal/navigator"
	"inverigator/internal/resolver"
)

// promptChooser asks on the terminal. Empty or invalid input cancels.
type promptChooser struct {
	in  *bufio.Reader
	out io.Writer
}

func newPromptChooser(in io.Reader, out io.Writer) promptChooser {
	return promptChooser{in: bufio.NewReader(in), out: out}
}

func (c promptChooser) Choose(_ context.Context, title string, choices []navigator.Choice) (int, error) {
	fmt.Fprintf(c.out, "🤔 %s:\n", title)
	for i, ch := range choices {
		fmt.Fprintf(c.out, "  %d) %s  %s\n", i+1, ch.Label, ch.Detail)
	}
	fmt.Fprintf(c.out, "Select 1-%d (empty to cancel): ", len(choices))

	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return 0, navigator.ErrChoiceCancelled
	}
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || n < 1 || n > len(choices) {
		return 0, navigator.ErrChoiceCancelled
	}
	return n - 1, nil
}

// fixedChooser answers with a preselected 0-based index.
type fixedChooser int

func (f fixedChooser) Choose(_ context.Context, _ string, choices []navigator.Choice) (int, error) {
	if int(f) >= len(choices) {
		return 0, fmt.Errorf("--pick %d out of range (%d candidates): %w", int(f)+1, len(choices), navigator.ErrChoiceCancelled)
	}
	return int(f), nil
}

// printOpener stands in for an editor: it prints file:line:column.
type printOpener struct {
	rel func(string) string
	out io.Writer
}

func (p printOpener) Open(_ context.Context, loc resolver.Location) error {
	out := p.out
	if out == nil {
		out = os.Stdout
	}
	_, err := fmt.Fprintf(out, "📍 %s:%d:%d\n", p.rel(loc.File), loc.Line+1, loc.Column+1)
	return err
}
