//go:build linux

package native

import (
	"fmt"
	"os"
	"os/exec"

	isatty "github.com/mattn/go-isatty"
)

// openTTY opens the terminal at path for reading and writing.
func openTTY(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	if !isatty.IsTerminal(f.Fd()) {
		f.Close()
		return nil, fmt.Errorf("%s is not a terminal", path)
	}
	return f, nil
}

// redirectToTTY starts process in a new session whose controlling terminal
// is tty, which also replaces its standard streams.
func redirectToTTY(process *exec.Cmd, tty *os.File) {
	process.Stdin, process.Stdout, process.Stderr = tty, tty, tty

	attr := process.SysProcAttr
	// a session leader can not be moved to another process group
	attr.Setpgid = false
	attr.Setsid = true
	attr.Setctty = true
	// Ctty is a descriptor number in the child, stdin.
	attr.Ctty = 0
}
