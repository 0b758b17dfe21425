package tendril_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/tendril"
	"github.com/aretw0/tendril/pkg/domain"
)

// ExampleEngine_Decide routes a model response that called the terminal tool.
func ExampleEngine_Decide() {
	eng := tendril.New()

	inv := domain.Invocation{
		State: domain.StateModelInvoked,
		Input: &domain.InvocationInput{
			Text: `{"stopReason":"tool_use","output":{"role":"assistant","content":[{"toolUse":{"toolUseId":"t1","name":"answer","input":{"text":"It is sunny in Lisbon."}}}]}}`,
		},
		Context: domain.Context{
			AgentConfiguration: domain.AgentConfiguration{Instruction: "You are a weather assistant."},
		},
	}

	envs, err := eng.Decide(context.Background(), inv)
	if err != nil {
		log.Fatal(err)
	}

	for _, env := range envs {
		fmt.Println(env.ActionEvent, env.Output.Text)
	}
	// Output:
	// FINISH It is sunny in Lisbon.
}
