package logpoint

import (
	"fmt"
	"io"
	"os"
	"syscall"

	colorable "github.com/mattn/go-colorable"
	isatty "github.com/mattn/go-isatty"

	"github.com/go-delve/logpoint/pkg/logflags"
	"github.com/go-delve/logpoint/pkg/proc"
)

const (
	ansiBold  = "\x1b[1m"
	ansiRed   = "\x1b[31m"
	ansiReset = "\x1b[0m"
)

// Printer reports the events of a session as text, one line per hit
// holding the value of the symbol, and one line for the outcome.
type Printer struct {
	out   io.Writer
	color bool
}

// NewPrinter returns a printer writing to w. Colors are only used if color
// is true and w is a terminal.
func NewPrinter(w io.Writer, color bool) *Printer {
	p := &Printer{out: w}
	if f, ok := w.(*os.File); ok && color && isatty.IsTerminal(f.Fd()) {
		p.out = colorable.NewColorable(f)
		p.color = true
	}
	return p
}

// Hit implements proc.Reporter.
func (p *Printer) Hit(h proc.Hit) {
	if p.color {
		fmt.Fprintf(p.out, "%s%d%s\n", ansiBold, h.Value, ansiReset)
		return
	}
	fmt.Fprintf(p.out, "%d\n", h.Value)
}

// Forwarded implements proc.Reporter.
func (p *Printer) Forwarded(pid int, sig syscall.Signal) {
	logflags.TracerLogger().Debugf("tracee %d stopped by %v, forwarded", pid, sig)
}

// Exited implements proc.Reporter.
func (p *Printer) Exited(o proc.Outcome) {
	if p.color && !o.Exited {
		fmt.Fprintf(p.out, "%s%s%s\n", ansiRed, o, ansiReset)
		return
	}
	fmt.Fprintln(p.out, o)
}
