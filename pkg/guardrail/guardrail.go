// Package guardrail provides a local ports.GuardrailEvaluator that blocks
// content matching denied terms. It stands in for a managed guardrail service
// when running the reference runtime outside the cloud.
package guardrail

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/aretw0/tendril/pkg/domain"
)

// ErrUnknownGuardrail is returned when no policy matches the requested identifier.
var ErrUnknownGuardrail = errors.New("unknown guardrail")

// Policy is a named set of denied terms.
type Policy struct {
	ID             string   `yaml:"id" mapstructure:"id"`
	Version        string   `yaml:"version" mapstructure:"version"`
	DeniedTerms    []string `yaml:"deniedTerms" mapstructure:"deniedTerms"`
	BlockedMessage string   `yaml:"blockedMessage" mapstructure:"blockedMessage"`
}

type compiled struct {
	Policy
	pattern *regexp.Regexp
}

// Evaluator applies registered policies.
type Evaluator struct {
	policies map[string]compiled
}

// New compiles the given policies. Terms match whole words, case-insensitively.
func New(policies ...Policy) (*Evaluator, error) {
	e := &Evaluator{policies: make(map[string]compiled, len(policies))}
	for _, p := range policies {
		if p.ID == "" {
			return nil, fmt.Errorf("guardrail policy without id")
		}
		c := compiled{Policy: p}
		if len(p.DeniedTerms) > 0 {
			quoted := make([]string, 0, len(p.DeniedTerms))
			for _, term := range p.DeniedTerms {
				quoted = append(quoted, regexp.QuoteMeta(strings.TrimSpace(term)))
			}
			re, err := regexp.Compile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)
			if err != nil {
				return nil, fmt.Errorf("guardrail %s: %w", p.ID, err)
			}
			c.pattern = re
		}
		e.policies[p.ID] = c
	}
	return e, nil
}

// ApplyGuardrail evaluates every content item of the request.
// The version is informational: policies are looked up by identifier only.
func (e *Evaluator) ApplyGuardrail(ctx context.Context, req domain.GuardrailRequest) (domain.GuardrailAssessment, error) {
	p, ok := e.policies[req.GuardrailIdentifier]
	if !ok {
		return domain.GuardrailAssessment{}, fmt.Errorf("%w: %s", ErrUnknownGuardrail, req.GuardrailIdentifier)
	}
	if p.pattern == nil {
		return domain.GuardrailAssessment{Action: domain.GuardrailActionNone}, nil
	}
	for _, c := range req.Content {
		if p.pattern.MatchString(c.Text.Text) {
			msg := p.BlockedMessage
			if msg == "" {
				msg = domain.GuardrailDefaultBlockedMsg
			}
			return domain.GuardrailAssessment{
				Action:  domain.GuardrailActionIntervened,
				Outputs: []domain.GuardrailOutput{{Text: msg}},
			}, nil
		}
	}
	return domain.GuardrailAssessment{Action: domain.GuardrailActionNone}, nil
}
