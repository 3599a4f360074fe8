package util

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Tables and reports are written to stdout; logs, prompts and progress bars go
// to stderr. Each side checks its own stream, so `prms ... > out.txt` still
// shows progress while the file stays free of colour codes.

// IsTerminal checks if the given file descriptor is a terminal
func IsTerminal(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}

// ColorTables reports whether output on stdout should carry colour codes
func ColorTables(noColor bool) bool {
	return !noColor && IsTerminal(os.Stdout.Fd())
}

// ShowProgress reports whether a progress bar may be drawn on stderr
func ShowProgress() bool {
	return IsTerminal(os.Stderr.Fd()) && !IsQuiet()
}

// ReadSecret prints prompt on stderr and reads one line from in. Input is not
// echoed when in is a terminal; otherwise the line is read through r, which
// must wrap in, so piped credentials work.
func ReadSecret(prompt string, in *os.File, r *bufio.Reader) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	if IsTerminal(in.Fd()) {
		b, err := term.ReadPassword(int(in.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}

	line, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
