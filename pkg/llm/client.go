// Package llm implements the concrete contracts.LanguageModelClient,
// wrapping anthropic-sdk-go for NL-to-SPARQL generation and answer
// contextualization (spec.md §6 "Language-model client").
package llm

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/sirupsen/logrus"

	"github.com/chainlens/nlquery/pkg/contracts"
	"github.com/chainlens/nlquery/pkg/planner"
	"github.com/chainlens/nlquery/pkg/shared/logging"
	"github.com/chainlens/nlquery/pkg/types"
)

// DefaultMaxTokens bounds every completion and streamed contextualize
// call.
const DefaultMaxTokens = 4096

// DefaultNLToSparqlPrompt is the system prompt used to drive deterministic
// NL-to-SPARQL generation when the caller doesn't supply its own.
const DefaultNLToSparqlPrompt = "You translate natural-language questions about a blockchain knowledge graph into SPARQL. Respond with SPARQL only, wrapped in a ```sparql code fence, or a JSON array of {\"sparql\": \"...\"} steps for multi-step plans."

// Client wraps an anthropic.Client as a contracts.LanguageModelClient.
type Client struct {
	api       anthropic.Client
	model     anthropic.Model
	maxTokens int64
	log       *logrus.Logger
}

// New builds a Client from an Anthropic API key and model id.
func New(apiKey string, model anthropic.Model, log *logrus.Logger) *Client {
	return &Client{
		api:       anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: DefaultMaxTokens,
		log:       log,
	}
}

// GenerateComplete drives one-shot NL-to-SPARQL generation in
// deterministic mode (spec.md §4.7 GENERATE, "temperature 0").
func (c *Client) GenerateComplete(ctx context.Context, prompt, systemPrompt string, temperature float64) (string, error) {
	fields := logging.AIFields("generate_complete", string(c.model))
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(temperature),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		c.log.WithFields(fields.Error(err).ToLogrus()).Warn("generate_complete call failed")
		return "", err
	}
	return concatText(msg), nil
}

func concatText(msg *anthropic.Message) string {
	var out string
	for _, block := range msg.Content {
		if text := block.AsAny(); text != nil {
			if tb, ok := text.(anthropic.TextBlock); ok {
				out += tb.Text
			}
		}
	}
	return out
}

// ContextualizeAnswer opens a streamed explanation over sparqlResults
// (spec.md §4.7 CONTEXTUALIZE), returned as a contracts.AnswerStream the
// Stream Multiplexer (C5) pulls from.
func (c *Client) ContextualizeAnswer(ctx context.Context, userQuery, sparqlQuery, sparqlResults, systemPrompt string) (contracts.AnswerStream, error) {
	userMessage := "Question: " + userQuery + "\n\nSPARQL executed:\n" + sparqlQuery + "\n\nResults:\n" + sparqlResults

	stream := c.api.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userMessage)),
		},
	})
	return &answerStream{stream: stream}, nil
}

// answerStream adapts anthropic-sdk-go's server-sent-event stream to
// contracts.AnswerStream, surfacing only text-delta chunks.
type answerStream struct {
	stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
}

func (a *answerStream) Next(ctx context.Context) (string, bool, error) {
	for a.stream.Next() {
		event := a.stream.Current()
		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if textDelta, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && textDelta.Text != "" {
				return textDelta.Text, true, nil
			}
			continue
		}
	}
	if err := a.stream.Err(); err != nil {
		return "", false, err
	}
	return "", false, nil
}

func (a *answerStream) Close() error {
	return a.stream.Close()
}

// DetectAndParseSparql classifies a raw model response, delegating to the
// Plan Parser (component C2).
func (c *Client) DetectAndParseSparql(raw string) types.SparqlPayload {
	return planner.ParseModelResponse(raw)
}

// HealthCheck issues a minimal completion to confirm the API key and
// model are reachable.
func (c *Client) HealthCheck(ctx context.Context) (bool, error) {
	_, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) Model() string { return string(c.model) }

func (c *Client) NLToSparqlPrompt() string { return DefaultNLToSparqlPrompt }
