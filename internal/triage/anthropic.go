// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package triage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/aktagon/llmkit/anthropic"
	llmtypes "github.com/aktagon/llmkit/anthropic/types"

	"github.com/pdiddy/review-engine/pkg/types"
)

// triageSystemPrompt frames the screening task for the model.
const triageSystemPrompt = `You are screening scholarly articles for a systematic literature review. Given a review question and one article's metadata, decide whether the article should be included for full-text review. Be inclusive when in doubt: it is cheaper to discard an article later than to miss a relevant one.`

// triagePromptTmpl renders the per-record user prompt.
var triagePromptTmpl = template.Must(template.New("triage").Parse(`Review question: {{.Question}}

Article:
Title: {{.Title}}
Authors: {{.Authors}}
Abstract: {{.Abstract}}

Should this article be included?`))

// triageSchema constrains the model to a binary decision plus justification.
const triageSchema = `{
  "name": "triage_decision",
  "description": "Binary screening decision for one article",
  "strict": true,
  "schema": {
    "type": "object",
    "properties": {
      "include": {"type": "boolean"},
      "justification": {"type": "string"}
    },
    "required": ["include", "justification"],
    "additionalProperties": false
  }
}`

// AnthropicBackend asks the Claude API for a structured screening decision.
type AnthropicBackend struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Decide sends one record to the model and parses the structured reply.
func (b *AnthropicBackend) Decide(ctx context.Context, question string, rec types.Record) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	prompt, err := renderPrompt(question, rec)
	if err != nil {
		return Decision{}, fmt.Errorf("rendering prompt: %w", err)
	}

	maxTokens := b.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	settings := llmtypes.RequestSettings{
		Model:       b.Model,
		MaxTokens:   maxTokens,
		Temperature: b.Temperature,
	}

	resp, err := anthropic.PromptWithSettings(triageSystemPrompt, prompt, triageSchema, b.APIKey, settings)
	if err != nil {
		return Decision{}, fmt.Errorf("triage request: %w", types.ErrProvider)
	}
	if len(resp.Content) == 0 {
		return Decision{}, fmt.Errorf("empty triage response: %w", types.ErrProvider)
	}

	return parseDecision(resp.Content[0].Text)
}

// renderPrompt fills the triage template from record metadata.
func renderPrompt(question string, rec types.Record) (string, error) {
	var buf bytes.Buffer
	err := triagePromptTmpl.Execute(&buf, struct {
		Question, Title, Authors, Abstract string
	}{
		Question: question,
		Title:    rec.Title,
		Authors:  strings.Join(rec.Authors, ", "),
		Abstract: rec.Abstract,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// parseDecision decodes the model's structured JSON answer.
func parseDecision(text string) (Decision, error) {
	var dec Decision
	if err := json.Unmarshal([]byte(text), &dec); err != nil {
		return Decision{}, fmt.Errorf("malformed triage response: %w", types.ErrProvider)
	}
	if dec.Justification == "" {
		return Decision{}, fmt.Errorf("triage response missing justification: %w", types.ErrProvider)
	}
	return dec, nil
}
