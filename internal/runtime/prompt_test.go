package runtime_test

import (
	"strings"
	"testing"

	"github.com/aretw0/tendril/internal/runtime"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestSystemPrompt(t *testing.T) {
	c := domain.Context{
		AgentConfiguration: domain.AgentConfiguration{Instruction: "You are a travel agent."},
		PromptSessionAttributes: map[string]string{
			"origin":      "LIS",
			"destination": "NRT",
		},
	}

	prompt := runtime.SystemPrompt(c)

	assert.True(t, strings.HasPrefix(prompt, "You are a travel agent.\n"))
	assert.Contains(t, prompt, "Never assume any parameter values")
	assert.Contains(t, prompt, runtime.RefusalReply)
	assert.Contains(t, prompt, "<key>destination</key>\n  <value>NRT</value>")

	dest := strings.Index(prompt, "<key>destination</key>")
	origin := strings.Index(prompt, "<key>origin</key>")
	assert.Less(t, dest, origin, "attributes are rendered in key order")
	assert.Equal(t, prompt, runtime.SystemPrompt(c))
}
