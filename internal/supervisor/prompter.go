package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// DefaultPromptTimeout is how long the restart prompt waits for the
// operator before restarting on its own.
const DefaultPromptTimeout = 10 * time.Second

// Prompter obtains the operator's restart-or-stop decision after the
// server exits. Await blocks at most timeout per attempt and returns the
// context error when the wait is canceled.
type Prompter interface {
	Await(ctx context.Context, timeout time.Duration) (Decision, error)
}

// ConsolePrompter asks for decisions on out and reads them line by line
// from in. A single reader goroutine is started lazily on the first Await
// and feeds a channel, so waiting for input is a select over the line
// channel and a timer rather than a blocking read or a poll loop. The
// goroutine lives until in is closed; there is no portable way to
// interrupt a pending console read.
type ConsolePrompter struct {
	// in is the operator input source, usually os.Stdin.
	in io.Reader
	// out receives the prompt text, usually os.Stdout.
	out io.Writer

	// once guards the lazy start of the reader goroutine.
	once sync.Once
	// lines carries operator input; closed when in is exhausted.
	lines chan string
}

// NewConsolePrompter returns a prompter reading decisions from in and
// prompting on out.
func NewConsolePrompter(in io.Reader, out io.Writer) *ConsolePrompter {
	return &ConsolePrompter{
		in:  in,
		out: out,
	}
}

// Await prompts the operator and waits up to timeout for a decision.
// Unrecognized input reprompts with a fresh timeout; an expired timeout
// or exhausted input source yields the restart default. The returned
// error is non-nil only when ctx is canceled during the wait.
func (p *ConsolePrompter) Await(ctx context.Context, timeout time.Duration) (Decision, error) {
	if timeout <= 0 {
		timeout = DefaultPromptTimeout
	}

	p.once.Do(p.startReader)

	// Separate the prompt from the server's output.
	fmt.Fprintln(p.out)

	for {
		fmt.Fprintf(p.out, "%d seconds to respond.\n", int(timeout.Round(time.Second).Seconds()))
		fmt.Fprintln(p.out, `Restart ("r") or stop ("s")?`)

		timer := time.NewTimer(timeout)

		select {
		case <-ctx.Done():
			timer.Stop()

			return DecisionRestart, fmt.Errorf("await decision: %w", ctx.Err())
		case line, ok := <-p.lines:
			timer.Stop()

			if !ok {
				// Input source is gone (non-interactive run). Disable
				// this case and let the next timeout supply the default.
				p.lines = nil

				continue
			}

			decision, valid := ParseDecision(line)
			if !valid {
				fmt.Fprintln(p.out, "Invalid response. Please try again.")

				continue
			}

			if decision == DecisionStop {
				fmt.Fprintln(p.out, "Stopping.")
			} else {
				fmt.Fprintln(p.out, "Restarting server.")
			}

			return decision, nil
		case <-timer.C:
			fmt.Fprintln(p.out, "No response. Automatically restarting server...")

			return DecisionRestart, nil
		}
	}
}

// startReader pumps lines from the input source into the line channel
// until the source ends, then closes the channel.
func (p *ConsolePrompter) startReader() {
	lines := make(chan string)
	p.lines = lines

	scanner := bufio.NewScanner(p.in)

	go func() {
		defer close(lines)

		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
}
