package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"

	"bgmrules/internal/resolve"
)

// progressReporter prints stage progress. On a terminal each stage redraws
// a single line; otherwise every update is its own line.
type progressReporter struct {
	mu        sync.Mutex
	out       io.Writer
	redraw    bool
	lastStage string
}

var _ resolve.Observer = (*progressReporter)(nil)

func newProgressReporter(out io.Writer) *progressReporter {
	return &progressReporter{out: out, redraw: isTerminal(out)}
}

func (p *progressReporter) OnProgress(stage string, completed, total int, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	line := fmt.Sprintf("[%s] %d/%d", stage, completed, total)
	if message != "" {
		line += " " + message
	}
	if !p.redraw {
		fmt.Fprintln(p.out, line)
		return
	}
	if p.lastStage != "" && p.lastStage != stage {
		fmt.Fprintln(p.out)
	}
	p.lastStage = stage
	fmt.Fprintf(p.out, "\r\033[K%s", line)
	if completed >= total {
		fmt.Fprintln(p.out)
		p.lastStage = ""
	}
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
