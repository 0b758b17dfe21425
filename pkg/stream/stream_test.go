package stream_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finish(text string) domain.ProtocolEnvelope {
	return domain.NewEnvelope(domain.EventFinish, text, "done", domain.Context{})
}

func TestSplit(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"42", []string{"42"}},
		{"I am custom orchestration.", []string{"I", " am", " custom", " orchestration."}},
		{"line one\n\nline two", []string{"line", " one", "\n\nline", " two"}},
		{"  padded", []string{"  padded"}},
	}
	for _, tt := range tests {
		got := stream.Split(tt.in)
		assert.Equal(t, tt.want, got, "split %q", tt.in)
		assert.Equal(t, tt.in, strings.Join(got, ""))
	}
}

func TestChunk(t *testing.T) {
	fragments := []string{"I", " am", " streaming", "!"}
	envs, err := stream.Chunk(finish("I am streaming!"), fragments, "seed")
	require.NoError(t, err)
	require.Len(t, envs, len(fragments))

	for i, env := range envs[:len(envs)-1] {
		assert.Equal(t, domain.EventInvokeTool, env.ActionEvent)
		assert.False(t, env.Terminal())

		var block domain.ContentBlock
		require.NoError(t, json.Unmarshal([]byte(env.Output.Text), &block))
		require.NotNil(t, block.ToolUse)
		assert.Equal(t, domain.StreamAnswerTool, block.ToolUse.Name)
		assert.Equal(t, stream.ChunkID("seed", i), block.ToolUse.ToolUseID)
		assert.JSONEq(t, `{"text":"`+fragments[i]+`"}`, string(block.ToolUse.Input))
	}

	last := envs[len(envs)-1]
	assert.Equal(t, domain.EventFinish, last.ActionEvent)
	assert.True(t, last.Terminal())
	assert.Equal(t, "!", last.Output.Text)

	again, err := stream.Chunk(finish("I am streaming!"), fragments, "seed")
	require.NoError(t, err)
	assert.Equal(t, envs, again)
	assert.NotEqual(t, stream.ChunkID("seed", 0), stream.ChunkID("other", 0))
}

func TestChunk_PassThrough(t *testing.T) {
	single, err := stream.Chunk(finish("42"), []string{"42"}, "s")
	require.NoError(t, err)
	assert.Equal(t, []domain.ProtocolEnvelope{finish("42")}, single)

	model := domain.NewEnvelope(domain.EventInvokeModel, "{}", "", domain.Context{})
	out, err := stream.Chunk(model, []string{"a", "b"}, "s")
	require.NoError(t, err)
	assert.Equal(t, []domain.ProtocolEnvelope{model}, out)
}

func TestEmit_Order(t *testing.T) {
	fragments := stream.Split("one two three four five")
	envs, err := stream.Chunk(finish("one two three four five"), fragments, "x")
	require.NoError(t, err)

	ch := stream.NewBufferChannel()
	require.NoError(t, stream.Emit(ch, envs...))

	got := ch.Envelopes()
	require.Len(t, got, 5)
	assert.Equal(t, envs, got)
	assert.True(t, ch.Closed())

	err = ch.Write(finish("late"))
	assert.ErrorIs(t, err, domain.ErrChannelClosed)
	assert.Len(t, ch.Envelopes(), 5)
}

func TestEmit_RejectsEarlyTerminal(t *testing.T) {
	ch := stream.NewBufferChannel()
	err := stream.Emit(ch, finish("a"), finish("b"))
	require.Error(t, err)
	assert.Empty(t, ch.Envelopes())
	assert.False(t, ch.Closed())
}

func TestEmit_ClosedChannel(t *testing.T) {
	ch := stream.NewBufferChannel()
	require.NoError(t, ch.Close())

	err := stream.Emit(ch, finish("a"))
	assert.ErrorIs(t, err, domain.ErrChannelClosed)
	assert.ErrorIs(t, ch.Close(), domain.ErrChannelClosed)
}

func TestWriterChannel(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	ch := stream.NewWriterChannel(w)

	require.NoError(t, ch.Write(domain.NewEnvelope(domain.EventInvokeTool, `{"toolUse":{}}`, "chunk", domain.Context{})))
	// Flushed after every envelope, not only on close.
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))

	require.NoError(t, ch.Write(finish("<done>")))
	require.NoError(t, ch.Close())
	assert.ErrorIs(t, ch.Write(finish("late")), domain.ErrChannelClosed)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var env domain.ProtocolEnvelope
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &env))
	assert.Equal(t, domain.EventFinish, env.ActionEvent)
	assert.Equal(t, "1.0", env.Version)
	assert.Contains(t, lines[1], "<done>")
	assert.Contains(t, lines[1], `"sessionAttributes":{}`)
}
