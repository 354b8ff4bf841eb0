package aurgate

import (
	"fmt"
	"io"
)

// color-compatible printer interface (works with *color.Theme and *color.Style)
type colorPrinter interface {
	Sprintf(format string, a ...any) string
}

// cFprintf prints with a colored style or falls back to fmt.Fprintf when nil
func cFprintf(w io.Writer, p colorPrinter, format string, a ...any) {
	if p == nil {
		fmt.Fprintf(w, format, a...)
		return
	}
	fmt.Fprint(w, p.Sprintf(format, a...))
}

// cFprintln prints a line with the given style or falls back to fmt.Fprintln when nil
func cFprintln(w io.Writer, p colorPrinter, a ...any) {
	if p == nil {
		fmt.Fprintln(w, a...)
		return
	}
	fmt.Fprintln(w, p.Sprintf("%s", fmt.Sprint(a...)))
}

// arrowf prints the "-> " marker followed by a styled message.
func arrowf(w io.Writer, p colorPrinter, format string, a ...any) {
	cFprintf(w, colArrow, "-> ")
	cFprintf(w, p, format, a...)
}
