package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"course-rag/internal/llmservice"
	"course-rag/internal/models"
	"course-rag/internal/tools"
)

// Generator makes one language model round-trip.
type Generator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, tools []llms.Tool) (*llms.ContentResponse, error)
}

// Orchestrator drives the bounded tool-calling dialogue for one query. With
// maxRounds tool rounds it makes at most maxRounds+1 model calls, and the
// last call never carries tool schemas.
type Orchestrator struct {
	llm          Generator
	registry     *tools.Registry
	maxRounds    int
	systemPrompt string
}

func NewOrchestrator(llm Generator, registry *tools.Registry, maxRounds int) *Orchestrator {
	if maxRounds < 0 {
		maxRounds = 0
	}
	return &Orchestrator{
		llm:          llm,
		registry:     registry,
		maxRounds:    maxRounds,
		systemPrompt: models.SystemPrompt,
	}
}

// Run answers query given the prior history and returns the sources of any
// tools it executed.
func (o *Orchestrator) Run(ctx context.Context, query string, history []models.Message) (string, []models.Source, error) {
	messages := o.buildMessages(query, history)
	toolDefs := llmservice.ToolsFromDefinitions(o.registry.Definitions())
	scope := o.registry.Scope()
	var sources []models.Source

	for round := 0; ; round++ {
		var offered []llms.Tool
		if round < o.maxRounds {
			offered = toolDefs
		}

		resp, err := o.llm.GenerateContent(ctx, messages, offered)
		if err != nil {
			return "", nil, err
		}
		if resp == nil || len(resp.Choices) == 0 {
			return "", nil, fmt.Errorf("%w: no choices returned", models.ErrModelCall)
		}
		choice := resp.Choices[0]

		if len(offered) > 0 && len(choice.ToolCalls) > 0 {
			messages = append(messages, assistantToolCalls(choice))
			for _, tc := range choice.ToolCalls {
				name, args := "", ""
				if tc.FunctionCall != nil {
					name, args = tc.FunctionCall.Name, tc.FunctionCall.Arguments
				}
				output, err := o.execute(ctx, scope, name, json.RawMessage(args))
				if err != nil {
					return "", nil, err
				}
				sources = append(sources, scope.DrainLastSources()...)
				messages = append(messages, llms.MessageContent{
					Role: llms.ChatMessageTypeTool,
					Parts: []llms.ContentPart{llms.ToolCallResponse{
						ToolCallID: tc.ID,
						Name:       name,
						Content:    output,
					}},
				})
			}
			continue
		}

		if len(offered) > 0 {
			if name, args, ok := parseDSML(choice.Content); ok {
				log.Debug().Str("tool", name).Msg("Executing tool call found in content markup")
				output, err := o.execute(ctx, scope, name, args)
				if err != nil {
					return "", nil, err
				}
				sources = append(sources, scope.DrainLastSources()...)
				messages = append(messages,
					llms.TextParts(llms.ChatMessageTypeAI, choice.Content),
					llms.TextParts(llms.ChatMessageTypeHuman, output),
				)
				continue
			}
		}

		answer := strings.TrimSpace(choice.Content)
		if answer == "" {
			return "", nil, fmt.Errorf("%w: empty answer", models.ErrModelCall)
		}
		log.Debug().Int("model_calls", round+1).Int("sources", len(sources)).Msg("Query answered")
		return answer, sources, nil
	}
}

func (o *Orchestrator) buildMessages(query string, history []models.Message) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(history)+2)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, o.systemPrompt))
	for _, m := range history {
		role := llms.ChatMessageTypeHuman
		if m.Role == models.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, m.Content))
	}
	return append(messages, llms.TextParts(llms.ChatMessageTypeHuman, query))
}

// execute runs one tool call and returns the text fed back to the model.
// Only retrieval failures abort the turn; other failures become tool output
// so the model can explain them.
func (o *Orchestrator) execute(ctx context.Context, scope *tools.Scope, name string, args json.RawMessage) (string, error) {
	result, err := scope.Dispatch(ctx, name, args)
	switch {
	case err == nil:
		return result.Text, nil
	case errors.Is(err, models.ErrRetrieval):
		return "", err
	case errors.Is(err, models.ErrCourseNotFound):
		return err.Error(), nil
	default:
		log.Warn().Err(err).Str("tool", name).Msg("Tool call failed")
		return "Error: " + err.Error(), nil
	}
}

func assistantToolCalls(choice *llms.ContentChoice) llms.MessageContent {
	parts := make([]llms.ContentPart, 0, len(choice.ToolCalls)+1)
	if choice.Content != "" {
		parts = append(parts, llms.TextContent{Text: choice.Content})
	}
	for _, tc := range choice.ToolCalls {
		parts = append(parts, tc)
	}
	return llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: parts}
}
