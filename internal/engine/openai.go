package engine

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIEngine adapts the OpenAI API to the Engine interface.
type OpenAIEngine struct {
	client     *openai.Client
	chatModel  string
	embedModel string
}

// NewOpenAIEngine creates an OpenAIEngine using the given API key and models.
func NewOpenAIEngine(apiKey, chatModel, embedModel string) *OpenAIEngine {
	return &OpenAIEngine{
		client:     openai.NewClient(apiKey),
		chatModel:  chatModel,
		embedModel: embedModel,
	}
}

func (e *OpenAIEngine) Chat(ctx context.Context, messages []Message, jsonSchema *Schema) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	req := openai.ChatCompletionRequest{
		Model:    e.chatModel,
		Messages: msgs,
	}
	if jsonSchema != nil {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := e.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (e *OpenAIEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.embedModel),
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("creating embedding: empty response")
	}
	return resp.Data[0].Embedding, nil
}
