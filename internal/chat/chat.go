// Package chat relays streamed chat completions for a transcript conversation.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"voice-scribe-go/internal/config"
	"voice-scribe-go/internal/logger"
	"voice-scribe-go/internal/types"
)

// Preamble is prepended to every conversation sent upstream.
const Preamble = "You are a helpful assistant."

// EmitFunc receives every delta chunk in arrival order.
type EmitFunc func(types.ChatDeltaChunk) error

// Completer streams one assistant turn for history.
type Completer interface {
	Complete(ctx context.Context, history []types.ConversationMessage, emit EmitFunc) error
}

type Service struct {
	api   *openai.Client
	model func() string
	log   *logger.Logger
}

// New returns a Service using api. The model name is resolved per call from
// OPENAI_MODEL.
func New(api *openai.Client, log *logger.Logger) *Service {
	if log == nil {
		log = logger.New()
	}
	return &Service{api: api, model: config.ChatModel, log: log}
}

// Complete sends the preamble plus the full history and relays the streamed
// reply. Chunks that fail to decode are logged and skipped. No state is kept
// between calls.
func (s *Service) Complete(ctx context.Context, history []types.ConversationMessage, emit EmitFunc) error {
	const op = "chat.complete"
	if err := Validate(history); err != nil {
		return err
	}
	model := s.model()
	log := logger.FromContext(ctx, s.log).WithField("component", "chat").WithField("model", model).WithField("messages", len(history))

	stream, err := s.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAI(history),
		Stream:   true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return types.TransportError(op, ctx.Err())
		}
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			log.WithField("status", apiErr.HTTPStatusCode).WithField("code", apiErr.Code).Error("chat stream rejected")
		}
		return types.ChatServiceError(op, fmt.Errorf("open stream: %w", err))
	}
	defer stream.Close()

	chunks, skipped := 0, 0
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return types.TransportError(op, ctx.Err())
			}
			if isDecodeError(err) {
				skipped++
				log.WithError(err).Warn("skipping malformed completion chunk")
				continue
			}
			return types.ChatServiceError(op, fmt.Errorf("recv: %w", err))
		}

		chunk := toDelta(resp)
		if len(chunk.Choices) == 0 {
			continue
		}
		if err := emit(chunk); err != nil {
			return types.TransportError(op, err)
		}
		chunks++
	}

	log.WithField("chunks", chunks).WithField("skipped", skipped).Info("chat turn complete")
	return nil
}

// Validate rejects histories the upstream service would refuse.
func Validate(history []types.ConversationMessage) error {
	if len(history) == 0 {
		return types.ValidationError("chat.validate", "empty conversation")
	}
	for i, m := range history {
		switch m.Role {
		case types.RoleSystem, types.RoleUser, types.RoleAssistant:
		default:
			return types.ValidationError("chat.validate", fmt.Sprintf("message %d: unknown role %q", i, m.Role))
		}
	}
	return nil
}

func toOpenAI(history []types.ConversationMessage) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: Preamble})
	for _, m := range history {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return msgs
}

func toDelta(resp openai.ChatCompletionStreamResponse) types.ChatDeltaChunk {
	chunk := types.ChatDeltaChunk{Choices: make([]types.ChatDeltaChoice, 0, len(resp.Choices))}
	for _, c := range resp.Choices {
		chunk.Choices = append(chunk.Choices, types.ChatDeltaChoice{Delta: types.ChatDelta{Content: c.Delta.Content}})
	}
	return chunk
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

// Mock streams a canned reply word by word. Enabled with USE_MOCK_LLM=true.
type Mock struct{}

func (Mock) Complete(ctx context.Context, history []types.ConversationMessage, emit EmitFunc) error {
	if err := Validate(history); err != nil {
		return err
	}
	reply := fmt.Sprintf("MOCK REPLY: received %d messages.", len(history))
	words := strings.SplitAfter(reply, " ")
	for _, w := range words {
		if err := ctx.Err(); err != nil {
			return types.TransportError("chat.mock", err)
		}
		chunk := types.ChatDeltaChunk{Choices: []types.ChatDeltaChoice{{Delta: types.ChatDelta{Content: w}}}}
		if err := emit(chunk); err != nil {
			return types.TransportError("chat.mock", err)
		}
	}
	return nil
}
