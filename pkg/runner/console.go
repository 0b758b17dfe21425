package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// ContentRenderer transforms an answer before it is printed (e.g. markdown to ANSI).
type ContentRenderer func(string) (string, error)

// Console is line-based terminal I/O for interactive chats.
type Console struct {
	Reader   *bufio.Reader
	Writer   io.Writer
	Renderer ContentRenderer
	Prompt   string

	inputChan chan inputResult
	startOnce sync.Once
}

type inputResult struct {
	text string
	err  error
}

// NewConsole creates a console over r and w, defaulting to Stdin and Stdout.
func NewConsole(r io.Reader, w io.Writer, renderer ContentRenderer) *Console {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &Console{
		Reader:   bufio.NewReader(r),
		Writer:   w,
		Renderer: renderer,
		Prompt:   "> ",
	}
}

// The reader runs in its own goroutine so Input can return on context
// cancellation while a read is blocked.
func (c *Console) initPump() {
	c.startOnce.Do(func() {
		c.inputChan = make(chan inputResult)
		go c.pump()
	})
}

func (c *Console) pump() {
	defer close(c.inputChan)
	for {
		text, err := c.Reader.ReadString('\n')
		if text != "" {
			c.inputChan <- inputResult{text: text}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.inputChan <- inputResult{err: err}
			}
			return
		}
	}
}

// Input prompts and reads one line. It returns io.EOF when the input ends.
func (c *Console) Input(ctx context.Context) (string, error) {
	c.initPump()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
		fmt.Fprint(c.Writer, c.Prompt)
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res, ok := <-c.inputChan:
		if !ok {
			return "", io.EOF
		}
		if res.err != nil {
			return "", res.err
		}
		return strings.TrimSpace(res.text), nil
	}
}

// Answer prints an answer through the renderer.
func (c *Console) Answer(text string) {
	out := text
	if c.Renderer != nil {
		if rendered, err := c.Renderer(text); err == nil {
			out = rendered
		}
	}
	fmt.Fprintln(c.Writer, strings.TrimSpace(out))
}

// System prints a meta-message, distinct from answers.
func (c *Console) System(msg string) {
	fmt.Fprintf(c.Writer, "[System] %s\n", msg)
}

// Confirm implements Confirmer with a y/N question.
func (c *Console) Confirm(ctx context.Context, prompt string) (bool, error) {
	c.System(prompt + " [y/N]")
	answer, err := c.Input(ctx)
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}

// Chat reads utterances from c and runs a turn for each until the input ends
// or the user types exit. Failed turns are reported and the chat continues.
func (r *Runner) Chat(ctx context.Context, sessionID string, c *Console) error {
	signals := NewSignalManager(ctx)
	defer signals.Stop()

	for {
		text, err := c.Input(signals.Context())
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("input error: %w", err)
		}
		switch text {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		res, err := r.Turn(signals.Context(), TurnRequest{SessionID: sessionID, Text: text})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if errors.Is(err, ErrInputTooLarge) || errors.Is(err, ErrInvalidUTF8) {
				c.System(fmt.Sprintf("Error: %v. Please try again.", err))
				continue
			}
			c.System("Sorry, I was unable to respond. Please try again.")
			r.logger.Error("Chat turn failed", "session_id", sessionID, "error", err)
			continue
		}
		sessionID = res.SessionID
		c.Answer(res.Answer)
	}
}
