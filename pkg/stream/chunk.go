package stream

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/google/uuid"
)

var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:tendril:stream-answer"))

// Split breaks text into word fragments. Whitespace stays attached to the
// word that follows it, so joining the fragments gives back text.
func Split(text string) []string {
	var (
		parts []string
		cur   strings.Builder
		prev  rune = -1
	)
	for _, r := range text {
		if unicode.IsSpace(r) && prev != -1 && !unicode.IsSpace(prev) && cur.Len() > 0 {
			parts = append(parts, cur.String())
			cur.Reset()
		}
		cur.WriteRune(r)
		prev = r
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

// ChunkID returns the deterministic toolUseId of fragment i for a given seed.
func ChunkID(seed string, i int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s#%d", seed, i))).String()
}

// Chunk turns a FINISH envelope into one envelope per fragment: non-terminal
// INVOKE_TOOL envelopes for the stream answer tool, then a terminal FINISH
// carrying the last fragment. Non-FINISH envelopes and single-fragment answers
// are returned unchanged.
func Chunk(final domain.ProtocolEnvelope, fragments []string, seed string) ([]domain.ProtocolEnvelope, error) {
	if final.ActionEvent != domain.EventFinish || len(fragments) < 2 {
		return []domain.ProtocolEnvelope{final}, nil
	}

	out := make([]domain.ProtocolEnvelope, 0, len(fragments))
	for i, fragment := range fragments[:len(fragments)-1] {
		input, err := json.Marshal(map[string]string{"text": fragment})
		if err != nil {
			return nil, err
		}
		block := domain.ContentBlock{ToolUse: &domain.ToolUse{
			ToolUseID: ChunkID(seed, i),
			Name:      domain.StreamAnswerTool,
			Input:     input,
		}}
		text, err := json.Marshal(block)
		if err != nil {
			return nil, err
		}
		env := final
		env.ActionEvent = domain.EventInvokeTool
		env.Output.Text = string(text)
		env.Output.Trace.Event.Text = fmt.Sprintf("stream chunk %d/%d", i+1, len(fragments))
		out = append(out, env)
	}

	last := final
	last.Output.Text = fragments[len(fragments)-1]
	return append(out, last), nil
}
