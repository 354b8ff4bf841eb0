package aurgate

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// TerminalReader reads answers to prompts line by line.
type TerminalReader struct {
	reader *bufio.Reader
}

// NewTerminalReader wraps r; pass os.Stdin for the real terminal.
func NewTerminalReader(r io.Reader) *TerminalReader {
	return &TerminalReader{reader: bufio.NewReader(r)}
}

// ReadLineLowercase returns the next line, trimmed and lower-cased.
// End of input while waiting for an answer is ErrAborted.
func (t *TerminalReader) ReadLineLowercase() (string, error) {
	line, err := t.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		if err == io.EOF {
			return "", ErrAborted
		}
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.ToLower(strings.TrimSpace(line)), nil
}

// askForConfirmation prompts on stderr and defaults to 'yes'.
func askForConfirmation(in LineReader, p colorPrinter, format string, a ...any) bool {
	mainPrompt := fmt.Sprintf(format, a...)
	fullPrompt := fmt.Sprintf("%s [Y/n]: ", mainPrompt)

	for {
		cFprintf(os.Stderr, p, "%s", fullPrompt)
		response, err := in.ReadLineLowercase()
		if err != nil {
			return false // On error (like Ctrl+D), default to "no"
		}
		if response == "y" || response == "yes" || response == "" {
			return true
		}
		if response == "n" || response == "no" {
			return false
		}
		cFprintln(os.Stderr, colWarn, "Invalid input.")
	}
}
