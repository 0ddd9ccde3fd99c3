package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"voice-scribe-go/internal/stream"
	"voice-scribe-go/internal/types"
)

// Seed builds the system message that puts a transcript in front of the assistant.
func Seed(transcript string) types.ConversationMessage {
	content := fmt.Sprintf(`You are an experienced analyst. I will provide you with a meeting transcription, and I need your assistance in analyzing it. Please hold off on responding until I give you further instructions.
Here is the data you will be analyzing, respond with markdown formatted text to the following questions:

[%s]
`, transcript)
	return types.ConversationMessage{Role: types.RoleSystem, Content: content}
}

// Conversation is the client side history. It is append-only.
type Conversation struct {
	messages []types.ConversationMessage
}

// NewConversation starts a conversation seeded with transcript.
func NewConversation(transcript string) *Conversation {
	return &Conversation{messages: []types.ConversationMessage{Seed(transcript)}}
}

// Empty reports whether the transcript seed is still missing.
func (c *Conversation) Empty() bool {
	return len(c.messages) == 0 || c.messages[0].Role != types.RoleSystem
}

func (c *Conversation) Append(m types.ConversationMessage) {
	c.messages = append(c.messages, m)
}

// ApplyDelta grows the trailing assistant message, opening one if the last
// message belongs to someone else.
func (c *Conversation) ApplyDelta(chunk types.ChatDeltaChunk) {
	content := chunk.Content()
	if n := len(c.messages); n > 0 && c.messages[n-1].Role == types.RoleAssistant {
		c.messages[n-1].Content += content
		return
	}
	c.messages = append(c.messages, types.ConversationMessage{Role: types.RoleAssistant, Content: content})
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []types.ConversationMessage {
	out := make([]types.ConversationMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// Consume reads a relayed chat stream, calling onDelta for every content
// fragment, and returns the accumulated assistant message. Blank and
// malformed lines are skipped; an error frame ends the turn with an error.
func Consume(r io.Reader, log logrus.FieldLogger, onDelta func(string)) (types.ConversationMessage, error) {
	msg := types.ConversationMessage{Role: types.RoleAssistant}
	err := stream.Scan(r, func(line []byte) error {
		if e := stream.ErrorOf(line); e != "" {
			return types.ChatServiceError("chat.consume", errors.New(e))
		}
		var chunk types.ChatDeltaChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			if log != nil {
				log.WithError(err).Warn("skipping malformed chat line")
			}
			return nil
		}
		content := chunk.Content()
		msg.Content += content
		if onDelta != nil && content != "" {
			onDelta(content)
		}
		return nil
	})
	return msg, err
}

// Accumulate is Consume without a delta callback.
func Accumulate(r io.Reader, log logrus.FieldLogger) (types.ConversationMessage, error) {
	return Consume(r, log, nil)
}
