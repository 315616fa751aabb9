package planner

import (
	"context"
	"errors"

	"github.com/fleetguard/governor/core"
)

// scriptedClient is a test double for ReasoningClient, grounded on the
// teacher's ai/providers/mock.Client: a fixed list of scripted responses
// consumed one per Complete call, with a CallCount for assertions and an
// injectable Error for failure-path tests.
type scriptedClient struct {
	responses []string
	err       error
	calls     int
}

func (c *scriptedClient) Complete(ctx context.Context, model, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	if c.calls > len(c.responses) {
		return "", errors.New("scriptedClient: no more mock responses")
	}
	return c.responses[c.calls-1], nil
}

// newScriptedCascade builds a single-model Cascade backed by client, via
// NewCascadeWithClients — bypassing env/API-key resolution so tests never
// touch a real provider.
func newScriptedCascade(client ReasoningClient) *Cascade {
	const model = "mock/scripted"
	return NewCascadeWithClients([]string{model}, map[string]ReasoningClient{model: client}, core.AIConfig{}, nil)
}
