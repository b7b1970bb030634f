package approval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
)

// CLIGate prompts the operator on a terminal for each outbound message.
type CLIGate struct {
	reader io.Reader
	writer io.Writer
}

// NewCLIGate creates a new CLI approval gate.
func NewCLIGate(reader io.Reader, writer io.Writer) *CLIGate {
	return &CLIGate{
		reader: reader,
		writer: writer,
	}
}

// RequestApproval prompts the operator and blocks until an answer arrives
// or ctx is cancelled. Cancellation counts as a denial.
func (c *CLIGate) RequestApproval(ctx context.Context, sessionID, content string) (Decision, error) {
	c.displayRequest(sessionID, content)

	decisionChan := make(chan Decision, 1)
	errorChan := make(chan error, 1)

	go func() {
		decision, err := c.readDecision(sessionID)
		if err != nil {
			errorChan <- err
		} else {
			decisionChan <- decision
		}
	}()

	select {
	case decision := <-decisionChan:
		return decision, nil

	case err := <-errorChan:
		return Decision{}, err

	case <-ctx.Done():
		fmt.Fprintln(c.writer, "")
		fmt.Fprintln(c.writer, "  ⏱️  Approval request CANCELLED")
		fmt.Fprintln(c.writer, "")
		return Decision{Approved: false, Reason: "cancelled"}, ctx.Err()
	}
}

func (c *CLIGate) displayRequest(sessionID, content string) {
	fmt.Fprintln(c.writer, "")
	fmt.Fprintln(c.writer, "╔════════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(c.writer, "║              🔐 OUTBOUND MESSAGE APPROVAL REQUIRED             ║")
	fmt.Fprintln(c.writer, "╚════════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(c.writer, "")
	fmt.Fprintf(c.writer, "  Session:    %s\n", sessionID)
	fmt.Fprintf(c.writer, "  Message:    %s\n", content)
	fmt.Fprintln(c.writer, "")
	fmt.Fprint(c.writer, "  Send this message to the remote model? [y/N]: ")
}

func (c *CLIGate) readDecision(sessionID string) (Decision, error) {
	scanner := bufio.NewScanner(c.reader)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return Decision{}, fmt.Errorf("failed to read input: %w", err)
		}
		// EOF or no input
		return Decision{Approved: false, Reason: "no input provided"}, nil
	}

	input := strings.TrimSpace(strings.ToLower(scanner.Text()))

	var decision Decision
	switch input {
	case "y", "yes":
		decision = Decision{Approved: true, Reason: "approved by operator"}
		fmt.Fprintln(c.writer, "")
		fmt.Fprintln(c.writer, "  ✅ Message APPROVED")
		fmt.Fprintln(c.writer, "")

		log.Info().
			Str("session_id", sessionID).
			Msg("Message approved via CLI")

	case "n", "no", "":
		decision = Decision{Approved: false, Reason: "denied by operator"}
		fmt.Fprintln(c.writer, "")
		fmt.Fprintln(c.writer, "  ❌ Message DENIED")
		fmt.Fprintln(c.writer, "")

		log.Info().
			Str("session_id", sessionID).
			Msg("Message denied via CLI")

	default:
		decision = Decision{Approved: false, Reason: fmt.Sprintf("invalid input: %s", input)}
		fmt.Fprintln(c.writer, "")
		fmt.Fprintf(c.writer, "  ⚠️  Invalid input: %s (defaulting to DENY)\n", input)
		fmt.Fprintln(c.writer, "")

		log.Warn().
			Str("session_id", sessionID).
			Str("input", input).
			Msg("Invalid input for approval")
	}

	return decision, nil
}
