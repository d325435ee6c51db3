package orchestrator

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Prompter answers yes/no questions put to the operator.
type Prompter interface {
	Confirm(prompt string) (bool, error)
}

// TerminalPrompter reads an answer from a terminal. AssumeYes answers
// every question affirmatively, for non-interactive runs.
type TerminalPrompter struct {
	In        io.Reader
	Out       io.Writer
	AssumeYes bool
}

func (p *TerminalPrompter) Confirm(prompt string) (bool, error) {
	if p.AssumeYes {
		return true, nil
	}
	if _, err := fmt.Fprintf(p.Out, "%s [y/N]: ", prompt); err != nil {
		return false, err
	}
	reader := bufio.NewReader(p.In)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
