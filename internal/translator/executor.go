package translator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kosub/subtrans/internal/config"
	"github.com/kosub/subtrans/internal/llm"
	"github.com/kosub/subtrans/pkg/log"
)

// deliverToolName is the structured payload the model must emit. Tool-call
// arguments are the only accepted translation carrier; plain text answers
// never produce translations.
const deliverToolName = "deliver_translations"

const systemPrompt = `You are a professional short-form translation expert for multiple languages.

Important instructions (must be followed):
1. Translate accurately and naturally into every requested language.
2. After translating, call the deliver_translations tool exactly once.
3. The tool arguments must be valid JSON of the form:
   {"translations": {"en": "translation", "ja": "翻訳", ...}}
4. After the tool call, reply "done" and stop.
5. Do not add analysis, explanations, or further tool calls.

Translation quality:
- Reflect the surrounding context naturally
- Be grammatically correct and convey the exact meaning
- Preserve the nuance of the original text`

const userRequestTemplate = `Translate the following text naturally and fluently into these languages (%s).
1. Use the context to express intent and nuance.
2. The translation must convey the meaning precisely and be grammatically correct.
3. The source language entry, if requested, is the original text verbatim; the context is reference only.

Context: %s

Text to translate: %s`

// LLMExecutor executes translations through an OpenAI-compatible chat
// endpoint using a single forced tool call.
type LLMExecutor struct {
	client   *llm.Client
	patterns config.Patterns
	timeout  time.Duration
}

// NewLLMExecutor creates an executor with a per-call wall-clock timeout and
// externally supplied response-validity patterns.
func NewLLMExecutor(client *llm.Client, patterns config.Patterns, timeout time.Duration) *LLMExecutor {
	return &LLMExecutor{
		client:   client,
		patterns: patterns,
		timeout:  timeout,
	}
}

// Execute performs one translation call. Timeouts and transient backend
// errors come back as OK=false with zero tokens; nothing here panics or
// returns an error, so callers can retry freely.
func (e *LLMExecutor) Execute(ctx context.Context, sourceText string, contextText string, targetLangs []string) Result {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	messages := []llm.Message{
		{Role: "user", Content: fmt.Sprintf(userRequestTemplate, strings.Join(targetLangs, ","), contextText, sourceText)},
	}

	opts := llm.NewChatCompletionOptions().WithSystemPrompt(systemPrompt)

	resp, err := e.client.ChatCompletionWithTools(callCtx, messages, []llm.Tool{deliverTool()}, opts)
	if err != nil {
		e.logCallError(err)
		return Result{}
	}

	result := Result{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}

	if !e.isValidResponse(resp) {
		return result
	}

	translations := extractTranslations(resp)
	if len(translations) == 0 {
		return result
	}

	result.OK = true
	result.Translations = translations
	return result
}

// logCallError classifies a call failure for log severity only; every
// failure surfaces to the caller the same way.
func (e *LLMExecutor) logCallError(err error) {
	if errors.Is(err, llm.ErrTimeout) {
		log.Warn("Translation timeout (will retry)")
		return
	}
	msg := strings.ToLower(err.Error())
	for _, transient := range []string{"json", "parse", "rate", "400", "429"} {
		if strings.Contains(msg, transient) {
			log.Warn("Retryable error (will retry): %v", err)
			return
		}
	}
	log.Error("Translation execution error: %v", err)
}

// isValidResponse applies the two-part validity predicate: a tool-call
// payload is always acceptable; a textual answer must be minimally long and
// must not match the configured degenerate-phrase lists.
func (e *LLMExecutor) isValidResponse(resp *llm.ChatResponse) bool {
	if resp == nil || len(resp.Choices) == 0 {
		return false
	}

	message := resp.Choices[0].Message
	if len(message.ToolCalls) > 0 {
		return true
	}

	content := strings.TrimSpace(message.Content)
	if len(content) < e.patterns.MinAnswerLength {
		return false
	}

	contentLower := strings.ToLower(content)
	for _, p := range e.patterns.RepetitivePatterns {
		if strings.Contains(contentLower, strings.ToLower(p)) {
			return false
		}
	}
	for _, p := range e.patterns.ToolPatterns {
		if strings.Contains(contentLower, strings.ToLower(p)) {
			return false
		}
	}

	return true
}

// extractTranslations pulls the language→text map out of the most recent
// deliver_translations call.
func extractTranslations(resp *llm.ChatResponse) map[string]string {
	message := resp.Choices[0].Message
	for i := len(message.ToolCalls) - 1; i >= 0; i-- {
		call := message.ToolCalls[i]
		if call.Function.Name != deliverToolName {
			continue
		}
		var args struct {
			Translations map[string]string `json:"translations"`
		}
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			log.Error("Failed to parse %s arguments: %v", deliverToolName, err)
			continue
		}
		if len(args.Translations) > 0 {
			return args.Translations
		}
	}
	return nil
}

func deliverTool() llm.Tool {
	return llm.Tool{
		Type: "function",
		Function: llm.ToolFunction{
			Name:        deliverToolName,
			Description: "Deliver the finished translation for every requested language",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"translations": map[string]any{
						"type":                 "object",
						"description":          "Mapping from language code to translated text",
						"additionalProperties": map[string]any{"type": "string"},
					},
				},
				"required": []string{"translations"},
			},
		},
	}
}
