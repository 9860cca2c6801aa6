package translator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kosub/subtrans/internal/config"
	"github.com/kosub/subtrans/internal/llm"
)

func newTestExecutor(t *testing.T, handler http.HandlerFunc) *LLMExecutor {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := llm.NewClient(&llm.Config{
		APIKey:      "test-key",
		APIURL:      server.URL,
		Model:       "test-model",
		MaxTokens:   2000,
		Temperature: 0.1,
		Timeout:     5,
	})
	require.NoError(t, err)

	return NewLLMExecutor(client, config.DefaultPatterns(), 5*time.Second)
}

func toolCallResponse(t *testing.T, translations map[string]string) []byte {
	t.Helper()
	args, err := json.Marshal(map[string]any{"translations": translations})
	require.NoError(t, err)

	resp := llm.ChatResponse{
		Choices: []llm.Choice{{
			Message: llm.Message{
				Role: "assistant",
				ToolCalls: []llm.ToolCall{{
					ID:   "call_1",
					Type: "function",
					Function: llm.ToolCallFunction{
						Name:      "deliver_translations",
						Arguments: string(args),
					},
				}},
			},
			FinishReason: "tool_calls",
		}},
		Usage: llm.Usage{PromptTokens: 120, CompletionTokens: 40, TotalTokens: 160},
	}
	body, err := json.Marshal(resp)
	require.NoError(t, err)
	return body
}

func textResponse(t *testing.T, content string) []byte {
	t.Helper()
	resp := llm.ChatResponse{
		Choices: []llm.Choice{{
			Message:      llm.Message{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: llm.Usage{PromptTokens: 80, CompletionTokens: 20},
	}
	body, err := json.Marshal(resp)
	require.NoError(t, err)
	return body
}

func TestExecute_ToolCallSuccess(t *testing.T) {
	exec := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write(toolCallResponse(t, map[string]string{"de": "Hallo", "es": "Hola"}))
	})

	result := exec.Execute(context.Background(), "Hello", "context lines", []string{"de", "es"})

	require.True(t, result.OK)
	assert.Equal(t, "Hallo", result.Translations["de"])
	assert.Equal(t, "Hola", result.Translations["es"])
	assert.Equal(t, 120, result.InputTokens)
	assert.Equal(t, 40, result.OutputTokens)
}

func TestExecute_RequestCarriesLangsAndText(t *testing.T) {
	var captured llm.ChatRequest
	exec := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Write(toolCallResponse(t, map[string]string{"de": "Hallo"}))
	})

	exec.Execute(context.Background(), "Hello there", "previous line", []string{"de", "ja"})

	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Contains(t, captured.Messages[1].Content, "de,ja")
	assert.Contains(t, captured.Messages[1].Content, "previous line")
	assert.Contains(t, captured.Messages[1].Content, "Hello there")
	require.Len(t, captured.Tools, 1)
	assert.Equal(t, "deliver_translations", captured.Tools[0].Function.Name)
}

func TestExecute_TextOnlyResponseYieldsNoTranslations(t *testing.T) {
	exec := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(textResponse(t, "Here is a fluent answer without any structured payload."))
	})

	result := exec.Execute(context.Background(), "Hello", "", []string{"de"})

	assert.False(t, result.OK)
	assert.Empty(t, result.Translations)
	// Token usage is still accounted for failed attempts.
	assert.Equal(t, 80, result.InputTokens)
	assert.Equal(t, 20, result.OutputTokens)
}

func TestExecute_DegeneratePhraseRejected(t *testing.T) {
	exec := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(textResponse(t, "Let me check the context before I answer this question."))
	})

	result := exec.Execute(context.Background(), "Hello", "", []string{"de"})
	assert.False(t, result.OK)
}

func TestExecute_ShortAnswerRejected(t *testing.T) {
	exec := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(textResponse(t, "ok"))
	})

	result := exec.Execute(context.Background(), "Hello", "", []string{"de"})
	assert.False(t, result.OK)
}

func TestExecute_ServerErrorReturnsZeroResult(t *testing.T) {
	exec := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{}`))
	})

	result := exec.Execute(context.Background(), "Hello", "", []string{"de"})

	assert.False(t, result.OK)
	assert.Empty(t, result.Translations)
	assert.Zero(t, result.InputTokens)
	assert.Zero(t, result.OutputTokens)
}

func TestExecute_MalformedToolArguments(t *testing.T) {
	exec := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		resp := llm.ChatResponse{
			Choices: []llm.Choice{{
				Message: llm.Message{
					Role: "assistant",
					ToolCalls: []llm.ToolCall{{
						ID:       "call_1",
						Type:     "function",
						Function: llm.ToolCallFunction{Name: "deliver_translations", Arguments: "{broken"},
					}},
				},
			}},
		}
		body, err := json.Marshal(resp)
		require.NoError(t, err)
		w.Write(body)
	})

	result := exec.Execute(context.Background(), "Hello", "", []string{"de"})
	assert.False(t, result.OK)
}

func TestExecute_UsesLatestDeliverCall(t *testing.T) {
	exec := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		firstArgs, _ := json.Marshal(map[string]any{"translations": map[string]string{"de": "alt"}})
		secondArgs, _ := json.Marshal(map[string]any{"translations": map[string]string{"de": "neu"}})
		resp := llm.ChatResponse{
			Choices: []llm.Choice{{
				Message: llm.Message{
					Role: "assistant",
					ToolCalls: []llm.ToolCall{
						{ID: "call_1", Type: "function", Function: llm.ToolCallFunction{Name: "deliver_translations", Arguments: string(firstArgs)}},
						{ID: "call_2", Type: "function", Function: llm.ToolCallFunction{Name: "deliver_translations", Arguments: string(secondArgs)}},
					},
				},
			}},
		}
		body, err := json.Marshal(resp)
		require.NoError(t, err)
		w.Write(body)
	})

	result := exec.Execute(context.Background(), "Hello", "", []string{"de"})
	require.True(t, result.OK)
	assert.Equal(t, "neu", result.Translations["de"])
}
