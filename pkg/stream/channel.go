// Package stream writes protocol envelopes to an output channel in order and
// closes it after the terminal envelope.
package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/aretw0/tendril/pkg/domain"
)

// Channel is an ordered, closable sink of envelopes.
// Writes and Close after Close fail with domain.ErrChannelClosed.
type Channel interface {
	Write(env domain.ProtocolEnvelope) error
	Close() error
}

// WriterChannel writes envelopes as newline-delimited JSON and flushes after each one.
type WriterChannel struct {
	mu     sync.Mutex
	w      io.Writer
	enc    *json.Encoder
	closed bool
}

// NewWriterChannel creates a channel over w. If w can flush (http.Flusher,
// bufio.Writer) it is flushed after every envelope.
func NewWriterChannel(w io.Writer) *WriterChannel {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &WriterChannel{w: w, enc: enc}
}

func (c *WriterChannel) Write(env domain.ProtocolEnvelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("write %s: %w", env.ActionEvent, domain.ErrChannelClosed)
	}
	if err := c.enc.Encode(env); err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	return flush(c.w)
}

func (c *WriterChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("close: %w", domain.ErrChannelClosed)
	}
	c.closed = true
	return flush(c.w)
}

func flush(w io.Writer) error {
	switch f := w.(type) {
	case interface{ Flush() error }:
		return f.Flush()
	case interface{ Flush() }:
		f.Flush()
	}
	return nil
}

// BufferChannel keeps envelopes in memory.
type BufferChannel struct {
	mu        sync.Mutex
	envelopes []domain.ProtocolEnvelope
	closed    bool
}

// NewBufferChannel creates an empty in-memory channel.
func NewBufferChannel() *BufferChannel {
	return &BufferChannel{}
}

func (c *BufferChannel) Write(env domain.ProtocolEnvelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("write %s: %w", env.ActionEvent, domain.ErrChannelClosed)
	}
	c.envelopes = append(c.envelopes, env)
	return nil
}

func (c *BufferChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("close: %w", domain.ErrChannelClosed)
	}
	c.closed = true
	return nil
}

// Envelopes returns a copy of the envelopes written so far.
func (c *BufferChannel) Envelopes() []domain.ProtocolEnvelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.ProtocolEnvelope(nil), c.envelopes...)
}

// Closed reports whether Close was called.
func (c *BufferChannel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
