package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/openmined/syftvault/internal/manifest"
)

// PromptRetry asks the user whether to try saving the remote index again.
// End of input counts as no.
type PromptRetry struct {
	Out io.Writer
	in  *bufio.Reader
}

func NewPromptRetry(in io.Reader, out io.Writer) *PromptRetry {
	return &PromptRetry{Out: out, in: bufio.NewReader(in)}
}

func (p *PromptRetry) ShouldRetry(ctx context.Context, attempt int, err error) bool {
	if ctx.Err() != nil {
		return false
	}

	fmt.Fprintln(p.Out, red.Render(fmt.Sprintf("Saving the remote index failed (attempt %d): %v", attempt, err)))
	fmt.Fprintln(p.Out, gray.Render("Uploaded objects are kept. Without an index the next backup uploads them again."))
	fmt.Fprint(p.Out, "Retry? [y/N]: ")

	line, _ := p.in.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// retryPolicy prompts on an interactive terminal. Otherwise it returns nil
// and the vault falls back to the configured attempt count.
func retryPolicy() manifest.RetryPolicy {
	fd := os.Stdin.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return nil
	}
	return NewPromptRetry(os.Stdin, os.Stderr)
}
