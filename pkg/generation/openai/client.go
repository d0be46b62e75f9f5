// Package openai implements the generation client on the OpenAI chat
// completion streaming API.
package openai

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/promptline/promptline/pkg/generation"
	"github.com/promptline/promptline/pkg/models"
)

// Client streams chat completions from the OpenAI API.
type Client struct {
	api    *openai.Client
	logger *slog.Logger
}

// NewClient creates a client authenticated with the given API key.
func NewClient(apiKey string, logger *slog.Logger) *Client {
	return &Client{
		api:    openai.NewClient(apiKey),
		logger: logger,
	}
}

// Stream starts a streaming chat completion and returns a handle that
// delivers the accumulated text exactly once.
func (c *Client) Stream(ctx context.Context, req generation.Request) (*generation.Handle, error) {
	handle := generation.NewHandle()

	stream, err := c.api.CreateChatCompletionStream(ctx, buildRequest(req))
	if err != nil {
		return nil, err
	}

	go c.consume(ctx, stream, handle)

	return handle, nil
}

func (c *Client) consume(ctx context.Context, stream *openai.ChatCompletionStream, handle *generation.Handle) {
	defer func() {
		if err := stream.Close(); err != nil {
			c.logger.ErrorContext(ctx, "Failed to close completion stream", "error", err)
		}
	}()

	var (
		text         strings.Builder
		usage        models.Usage
		finishReason models.FinishReason
	)

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			handle.Fail(err)

			return
		}

		if response.Usage != nil {
			usage.PromptTokens = response.Usage.PromptTokens
			usage.CompletionTokens = response.Usage.CompletionTokens
		}

		if len(response.Choices) == 0 {
			continue
		}

		choice := response.Choices[0]
		text.WriteString(choice.Delta.Content)

		if choice.FinishReason != "" {
			finishReason = models.FinishReason(choice.FinishReason)
		}
	}

	handle.Complete(generation.Completion{
		Text:         text.String(),
		Usage:        usage,
		FinishReason: finishReason,
	})
}

func buildRequest(req generation.Request) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Conversation)+2)

	if req.SystemPreamble != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPreamble,
		})
	}

	for _, msg := range req.Conversation {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	tools := make([]openai.Tool, 0, len(req.Tools))
	for _, tool := range req.Tools {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}

	request := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}

	if len(tools) > 0 {
		request.Tools = tools
	}

	return request
}
