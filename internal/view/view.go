// Package view renders read-only projections of store data for the terminal.
// Nothing here mutates state; callers pass copies taken from the store.
package view

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/prms-console/internal/util"
	"github.com/mitchellh/colorstring"
)

// Options control how projections are rendered
type Options struct {
	Color bool // emit ANSI colour codes
	Limit int  // maximum rows per table, 0 = unlimited
}

func (o Options) colorize() colorstring.Colorize {
	return colorstring.Colorize{
		Colors:  colorstring.DefaultColors,
		Disable: !o.Color,
		Reset:   true,
	}
}

func (o Options) paint(color, text string) string {
	c := o.colorize()
	return c.Color("[" + color + "]" + text)
}

// Badge renders a short bracketed label such as [RULE] or [ERR]
func (o Options) Badge(color, label string) string {
	return o.paint(color, "["+label+"]")
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func row(tw io.Writer, cols ...string) {
	fmt.Fprintln(tw, strings.Join(cols, "\t"))
}

// truncated reports how many of n rows fit under the limit
func (o Options) truncated(n int) (shown int, hidden int) {
	if o.Limit <= 0 || n <= o.Limit {
		return n, 0
	}
	return o.Limit, n - o.Limit
}

func moreRows(w io.Writer, hidden int) {
	if hidden > 0 {
		fmt.Fprintf(w, "... %s more\n", humanize.Comma(int64(hidden)))
	}
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// Since renders a timestamp relative to now, "never" when zero
func Since(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}

// Error prints an error with a badge naming its kind
func Error(w io.Writer, err error, opts Options) {
	if err == nil {
		return
	}
	kind := util.KindOf(err)
	color := "red"
	switch kind {
	case util.KindSoftWarning, util.KindBusy:
		color = "yellow"
	case util.KindValidation:
		color = "magenta"
	}
	label := strings.ToUpper(string(kind))
	if label == "" {
		label = "ERROR"
	}
	fmt.Fprintf(w, "%s %s\n", opts.Badge(color, label), err)
}

// Status prints a one-line partition summary
func Status(w io.Writer, name string, count int, loading bool, updated time.Time, err error, opts Options) {
	state := opts.paint("green", "ready")
	switch {
	case loading:
		state = opts.paint("yellow", "loading")
	case err != nil:
		state = opts.paint("red", "error")
	case updated.IsZero():
		state = opts.paint("dark_gray", "not loaded")
	}
	fmt.Fprintf(w, "%s: %s rows, %s, updated %s\n", name, humanize.Comma(int64(count)), state, Since(updated))
	if err != nil {
		Error(w, err, opts)
	}
}
