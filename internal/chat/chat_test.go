package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"voice-scribe-go/internal/llm"
	"voice-scribe-go/internal/logger"
	"voice-scribe-go/internal/types"
)

type fakeCompletions struct {
	lines  []string
	status int

	mu      sync.Mutex
	request map[string]any
}

func (f *fakeCompletions) sent() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.request
}

func (f *fakeCompletions) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/chat/completions" {
		http.NotFound(w, r)
		return
	}
	var req map[string]any
	_ = json.NewDecoder(r.Body).Decode(&req)
	f.mu.Lock()
	f.request = req
	f.mu.Unlock()
	if f.status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		io.WriteString(w, `{"error":{"message":"model overloaded","type":"server_error"}}`)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	for _, l := range f.lines {
		fmt.Fprintf(w, "%s\n\n", l)
	}
	io.WriteString(w, "data: [DONE]\n\n")
}

func deltaLine(content string) string {
	return fmt.Sprintf(`data: {"id":"c1","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":%q}}]}`, content)
}

func newTestService(t *testing.T, h http.Handler) *Service {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(llm.NewClient("test-key", srv.URL+"/v1"), logger.Discard())
}

func TestCompleteRelaysDeltas(t *testing.T) {
	t.Setenv("OPENAI_MODEL", "")
	fake := &fakeCompletions{lines: []string{
		`data: {"id":"c1","choices":[{"index":0,"delta":{"role":"assistant"}}]}`,
		deltaLine("He"),
		`data: {"id":"c1","choices":[{"index":0,"delta":{"content":"bro`,
		deltaLine("llo"),
	}}
	s := newTestService(t, fake)

	history := []types.ConversationMessage{Seed("the transcript"), {Role: types.RoleUser, Content: "hi"}}
	conv := &Conversation{}
	for _, m := range history {
		conv.Append(m)
	}
	err := s.Complete(context.Background(), history, func(c types.ChatDeltaChunk) error {
		conv.ApplyDelta(c)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	msgs := conv.Messages()
	if len(msgs) != 3 {
		t.Fatalf("messages = %+v", msgs)
	}
	if last := msgs[2]; last.Role != types.RoleAssistant || last.Content != "Hello" {
		t.Fatalf("assistant message = %+v", last)
	}

	req := fake.sent()
	if req["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v", req["model"])
	}
	sent, _ := req["messages"].([]any)
	if len(sent) != 3 {
		t.Fatalf("sent %d messages", len(sent))
	}
	first, _ := sent[0].(map[string]any)
	if first["role"] != "system" || first["content"] != Preamble {
		t.Errorf("preamble not prepended: %v", first)
	}
}

func TestCompleteModelOverride(t *testing.T) {
	t.Setenv("OPENAI_MODEL", "gpt-4.1")
	fake := &fakeCompletions{lines: []string{deltaLine("ok")}}
	s := newTestService(t, fake)
	err := s.Complete(context.Background(), []types.ConversationMessage{{Role: "user", Content: "hi"}}, func(types.ChatDeltaChunk) error { return nil })
	if err != nil {
		t.Fatal(err)
	}
	if got := fake.sent()["model"]; got != "gpt-4.1" {
		t.Fatalf("model = %v", got)
	}
}

func TestCompleteUpstreamFailure(t *testing.T) {
	s := newTestService(t, &fakeCompletions{status: http.StatusInternalServerError})
	err := s.Complete(context.Background(), []types.ConversationMessage{{Role: "user", Content: "hi"}}, func(types.ChatDeltaChunk) error { return nil })
	if !types.IsKind(err, types.KindChatService) {
		t.Fatalf("err = %v", err)
	}
}

func TestCompleteEmitFailureIsTransport(t *testing.T) {
	s := newTestService(t, &fakeCompletions{lines: []string{deltaLine("a"), deltaLine("b")}})
	calls := 0
	err := s.Complete(context.Background(), []types.ConversationMessage{{Role: "user", Content: "hi"}}, func(types.ChatDeltaChunk) error {
		calls++
		return errors.New("client went away")
	})
	if !types.IsKind(err, types.KindTransport) || calls != 1 {
		t.Fatalf("err = %v calls = %d", err, calls)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(nil); !types.IsKind(err, types.KindValidation) {
		t.Errorf("empty: %v", err)
	}
	if err := Validate([]types.ConversationMessage{{Role: "tool", Content: "x"}}); !types.IsKind(err, types.KindValidation) {
		t.Errorf("bad role: %v", err)
	}
	if err := Validate([]types.ConversationMessage{{Role: "user", Content: "x"}}); err != nil {
		t.Errorf("valid: %v", err)
	}
}

func TestMockComplete(t *testing.T) {
	var sb strings.Builder
	err := Mock{}.Complete(context.Background(), []types.ConversationMessage{{Role: "user", Content: "hi"}}, func(c types.ChatDeltaChunk) error {
		sb.WriteString(c.Content())
		return nil
	})
	if err != nil || sb.String() != "MOCK REPLY: received 1 messages." {
		t.Fatalf("got %q, %v", sb.String(), err)
	}
}
