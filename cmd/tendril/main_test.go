package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(append(args, "--config", filepath.Join(t.TempDir(), "none.yaml")))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tendril version")
	assert.Contains(t, out, "(protocol 1.0)")
}

func TestInvokeCommand(t *testing.T) {
	inv := `{"state":"START","input":{"text":"Hello"},"context":{"agentConfiguration":{"instruction":"Be brief."},"session":[]}}`

	out, err := execute(t, inv, "invoke")
	require.NoError(t, err)

	sc := bufio.NewScanner(strings.NewReader(out))
	require.True(t, sc.Scan())
	var env domain.ProtocolEnvelope
	require.NoError(t, json.Unmarshal(sc.Bytes(), &env))
	assert.Equal(t, domain.EventInvokeModel, env.ActionEvent)
	assert.False(t, sc.Scan(), "a single envelope")
}

func TestInvokeCommand_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inv.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"state":"TOOL_INVOKED","input":{"text":"nope"},"context":{"agentConfiguration":{"instruction":"x"}}}`), 0o644))

	_, err := execute(t, "", "invoke", path)
	assert.ErrorIs(t, err, domain.ErrMalformedInput)
}

func TestHistoryCommand(t *testing.T) {
	inv := `{"state":"START","input":{"text":"Hello"},"context":{"agentConfiguration":{"instruction":"x"}}}`

	out, err := execute(t, inv, "history")
	require.NoError(t, err)

	var msgs []domain.Message
	require.NoError(t, json.Unmarshal([]byte(out), &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hello", msgs[0].Content[0].Text)
}

func TestSessionLsCommand(t *testing.T) {
	out, err := execute(t, "", "session", "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "No active sessions found.")
}
